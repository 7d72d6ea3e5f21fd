package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/snakenet/internal/client"
	"github.com/udisondev/snakenet/internal/config"
	"github.com/udisondev/snakenet/internal/db"
	"github.com/udisondev/snakenet/internal/protocol"
	"github.com/udisondev/snakenet/internal/recorder"
	"github.com/udisondev/snakenet/internal/viewer"
)

const ClientConfigPath = "config/client.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader) error {
	fs := flag.NewFlagSet("snakeclient", flag.ContinueOnError)
	name := fs.String("name", "", "player name (overrides player_name)")
	server := fs.String("server", "", "game server host:port (overrides server_host/server_port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadClient(config.PathFromEnv("SNAKENET_CLIENT_CONFIG", ClientConfigPath))
	if err != nil {
		return fmt.Errorf("loading client config: %w", err)
	}
	if *name != "" {
		cfg.PlayerName = *name
	}
	if *server != "" {
		host, port, err := net.SplitHostPort(*server)
		if err != nil {
			return fmt.Errorf("parsing -server: %w", err)
		}
		if cfg.ServerPort, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("parsing -server port %q: %w", port, err)
		}
		cfg.ServerHost = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	logLevel, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("snake client starting", "server", cfg.ServerAddr(), "player", cfg.PlayerName)

	faults := &faultLatch{}
	ctrl := client.New(cfg.ServerAddr(),
		client.WithObserver(client.LogObserver{}),
		client.WithObserver(faults),
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithConnOptions(protocol.Options{
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxLineSize:  cfg.MaxLineSize,
		}),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Recorder.Enabled {
		if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()
		slog.Info("session recorder enabled", "database", cfg.Database.DBName)

		rec := recorder.New(database.Games(), cfg.Recorder.QueueSize)
		ctrl.AddObserver(rec)
		g.Go(func() error {
			return rec.Run(gctx)
		})
	}

	if cfg.Viewer.Enabled {
		hub := viewer.NewHub(ctrl, viewer.Options{
			SendQueueSize: cfg.Viewer.SendQueueSize,
			WriteTimeout:  cfg.Viewer.WriteTimeout,
		})
		ctrl.AddObserver(hub)

		srv := &http.Server{
			Addr:              cfg.Viewer.Addr(),
			Handler:           hub,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("viewer listening", "address", "http://"+cfg.Viewer.Addr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("viewer server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Конец сессии по любой причине останавливает остальные компоненты.
	g.Go(func() error {
		if err := ctrl.Connect(gctx, cfg.PlayerName); err != nil {
			return err
		}
		<-ctrl.Done()
		if ctx.Err() != nil {
			return nil
		}
		if err := faults.Err(); err != nil {
			return err
		}
		return errSessionOver
	})

	// stdin не прерывается отменой контекста, поэтому он вне errgroup.
	go steer(stdin, ctrl)

	if err := g.Wait(); err != nil && !errors.Is(err, errSessionOver) {
		return err
	}
	slog.Info("snake client stopped")
	return nil
}

var errSessionOver = errors.New("session over")

// steer читает клавиши со stdin, по одной на строку: w/a/s/d, стрелки
// или имена направлений.
func steer(r io.Reader, ctrl *client.Controller) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key := strings.TrimSpace(sc.Text())
		if key == "" {
			continue
		}
		dir, ok := protocol.DirectionForKey(key)
		if !ok {
			slog.Debug("unknown steering key", "key", key)
			continue
		}
		if err := ctrl.SendMove(dir); err != nil {
			slog.Warn("move not sent", "direction", dir, "err", err)
		}
	}
}

// faultLatch запоминает последнюю ошибку сессии.
type faultLatch struct {
	client.BaseObserver

	mu  sync.Mutex
	err error
}

func (f *faultLatch) OnError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *faultLatch) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
