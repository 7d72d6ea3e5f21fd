// Package chat implements a line-based TCP chat server: the first line a
// client sends is its name, every later line is relayed to all clients.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/udisondev/snakenet/internal/config"
	"github.com/udisondev/snakenet/internal/protocol"
)

const sendQueueSize = 64

// Server принимает подключения чата.
type Server struct {
	cfg      config.ChatServer
	registry *Registry
	nextID   atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
}

// NewServer создаёт сервер поверх реестра registry.
func NewServer(cfg config.ChatServer, registry *Registry) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
	}
}

// Addr возвращает адрес, на котором слушает сервер.
// Возвращает nil если сервер ещё не запущен.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run слушает cfg.Addr() до отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve принимает готовый listener и запускает accept loop.
// Используется для тестирования с произвольным listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	slog.Info("chat server started", "address", ln.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("failed to accept new connection", "err", err)
			continue
		}

		wg.Go(func() {
			s.handleConnection(ctx, conn)
		})
	}
}

func (s *Server) handleConnection(ctx context.Context, nc net.Conn) {
	conn := protocol.NewConn(nc, protocol.Options{
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		MaxLineSize:  s.cfg.MaxLineSize,
	})
	c := newClient(s.nextID.Add(1), conn, sendQueueSize)
	defer c.Close()
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	slog.Debug("new chat client connected", "client", nc.RemoteAddr())

	name, err := conn.ReadLine()
	if err != nil || strings.TrimSpace(name) == "" {
		slog.Debug("chat client left before sending a name", "client", nc.RemoteAddr(), "err", err)
		return
	}
	c.name = name

	go c.writePump()
	s.registry.Register(c)
	defer func() {
		s.registry.Unregister(c)
		s.registry.Broadcast(name + " has left the chat.")
		slog.Info("chat client left", "name", name, "client_id", c.id)
	}()

	slog.Info("chat client joined", "name", name, "client_id", c.id)
	s.registry.Broadcast(name + " has joined the chat.")

	for {
		msg, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				slog.Warn("dropping oversized chat message", "name", name)
				continue
			}
			if !errors.Is(err, protocol.ErrClosed) && ctx.Err() == nil {
				slog.Debug("chat read failed", "name", name, "err", err)
			}
			return
		}

		s.registry.Broadcast(name + ": " + msg)
	}
}
