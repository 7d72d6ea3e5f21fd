package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/snakenet/internal/chat"
	"github.com/udisondev/snakenet/internal/config"
)

const ChatConfigPath = "config/chatserver.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadChatServer(config.PathFromEnv("SNAKENET_CHAT_CONFIG", ChatConfigPath))
	if err != nil {
		return fmt.Errorf("loading chat config: %w", err)
	}

	logLevel, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	srv := chat.NewServer(cfg, chat.NewRegistry())
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("chat server: %w", err)
	}
	slog.Info("chat server stopped")
	return nil
}
