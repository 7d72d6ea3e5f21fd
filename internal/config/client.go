package config

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Client holds all configuration for the snake client process.
type Client struct {
	// Game server
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`
	PlayerName string `yaml:"player_name"`

	// Transport
	DialTimeout  time.Duration `yaml:"dial_timeout"`  // connect + name send (default: 10s)
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 0 = wait forever for server messages
	WriteTimeout time.Duration `yaml:"write_timeout"` // per-write deadline (default: 5s)
	MaxLineSize  int           `yaml:"max_line_size"` // bytes, 0 = protocol default

	LogLevel string `yaml:"log_level"`

	// Session persistence
	Database DatabaseConfig `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`

	// Browser view
	Viewer ViewerConfig `yaml:"viewer"`
}

// RecorderConfig controls session persistence.
type RecorderConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"` // pending writes before events are dropped
}

// ViewerConfig controls the WebSocket render bridge.
type ViewerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BindAddress   string        `yaml:"bind_address"`
	Port          int           `yaml:"port"`
	SendQueueSize int           `yaml:"send_queue_size"` // per-subscriber outbox
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// Addr returns "bind_address:port".
func (v ViewerConfig) Addr() string {
	return net.JoinHostPort(v.BindAddress, strconv.Itoa(v.Port))
}

// ServerAddr returns the game server address "host:port".
func (c Client) ServerAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// Validate checks values that would make the client unusable.
func (c Client) Validate() error {
	var errs []error
	if c.ServerHost == "" {
		errs = append(errs, errors.New("server_host is required"))
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, errors.New("server_port must be in 1..65535"))
	}
	if c.MaxLineSize < 0 {
		errs = append(errs, errors.New("max_line_size must not be negative"))
	}
	if c.Recorder.Enabled && c.Recorder.QueueSize <= 0 {
		errs = append(errs, errors.New("recorder.queue_size must be positive"))
	}
	if c.Viewer.Enabled && c.Viewer.SendQueueSize <= 0 {
		errs = append(errs, errors.New("viewer.send_queue_size must be positive"))
	}
	return errors.Join(errs...)
}

// DefaultClient returns Client config with sensible defaults.
func DefaultClient() Client {
	return Client{
		ServerHost:   "localhost",
		ServerPort:   11000,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		LogLevel:     "info",
		Database:     DefaultDatabase(),
		Recorder: RecorderConfig{
			Enabled:   false,
			QueueSize: 1024,
		},
		Viewer: ViewerConfig{
			Enabled:       true,
			BindAddress:   "127.0.0.1",
			Port:          8081,
			SendQueueSize: 256,
			WriteTimeout:  5 * time.Second,
		},
	}
}

// LoadClient loads client config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
