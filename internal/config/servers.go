package config

import (
	"net"
	"strconv"
	"time"
)

// ChatServer holds configuration for the line-based chat server.
type ChatServer struct {
	BindAddress  string        `yaml:"bind_address"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // idle client disconnect, 0 = never
	WriteTimeout time.Duration `yaml:"write_timeout"` // per-write deadline
	MaxLineSize  int           `yaml:"max_line_size"`
	LogLevel     string        `yaml:"log_level"`
}

// Addr returns "bind_address:port".
func (c ChatServer) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// DefaultChatServer returns ChatServer config with sensible defaults.
func DefaultChatServer() ChatServer {
	return ChatServer{
		BindAddress:  "0.0.0.0",
		Port:         11000,
		WriteTimeout: 5 * time.Second,
		MaxLineSize:  4096,
		LogLevel:     "info",
	}
}

// LoadChatServer loads chat server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadChatServer(path string) (ChatServer, error) {
	cfg := DefaultChatServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StatsServer holds configuration for the HTTP stats page.
type StatsServer struct {
	BindAddress     string         `yaml:"bind_address"`
	Port            int            `yaml:"port"`
	ReadTimeout     time.Duration  `yaml:"read_timeout"`
	WriteTimeout    time.Duration  `yaml:"write_timeout"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	LogLevel        string         `yaml:"log_level"`
	Database        DatabaseConfig `yaml:"database"`
}

// Addr returns "bind_address:port".
func (c StatsServer) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// DefaultStatsServer returns StatsServer config with sensible defaults.
func DefaultStatsServer() StatsServer {
	return StatsServer{
		BindAddress:     "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
		Database:        DefaultDatabase(),
	}
}

// LoadStatsServer loads stats server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadStatsServer(path string) (StatsServer, error) {
	cfg := DefaultStatsServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
