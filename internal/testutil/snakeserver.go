package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// SnakeServer изображает игровой сервер на loopback порту.
// Принимает подключения и отдаёт их тесту как Peer.
type SnakeServer struct {
	t     testing.TB
	ln    net.Listener
	addr  string
	conns chan net.Conn

	mu       sync.Mutex
	accepted []net.Conn
}

// NewSnakeServer запускает accept loop. Listener и все принятые
// соединения закрываются при завершении теста.
func NewSnakeServer(t testing.TB) *SnakeServer {
	t.Helper()

	ln, addr := ListenTCP(t)
	s := &SnakeServer{
		t:     t,
		ln:    ln,
		addr:  addr,
		conns: make(chan net.Conn, 8),
	}

	t.Cleanup(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.accepted {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.accepted = append(s.accepted, conn)
			s.mu.Unlock()
			s.conns <- conn
		}
	}()

	return s
}

// Addr возвращает адрес сервера "host:port".
func (s *SnakeServer) Addr() string {
	return s.addr
}

// Close прекращает приём новых подключений.
func (s *SnakeServer) Close() {
	_ = s.ln.Close()
}

// Accept ждёт следующего подключения клиента.
func (s *SnakeServer) Accept() *Peer {
	s.t.Helper()

	select {
	case conn := <-s.conns:
		return &Peer{t: s.t, conn: conn, r: bufio.NewReader(conn)}
	case <-time.After(DefaultTimeout):
		s.t.Fatalf("no client connected to %s within %v", s.addr, DefaultTimeout)
		return nil
	}
}

// Handshake принимает подключение, читает имя игрока и отправляет
// player ID и размер мира.
func (s *SnakeServer) Handshake(wantName string, playerID, size int) *Peer {
	s.t.Helper()

	p := s.Accept()
	if got := p.ReadLine(); got != wantName {
		s.t.Fatalf("player name: got %q, want %q", got, wantName)
	}
	p.Sendf("%d", playerID)
	p.Sendf("%d", size)
	return p
}

// DialPeer подключается к addr и возвращает Peer для построчного обмена.
// Соединение закрывается при завершении теста.
func DialPeer(t testing.TB, addr string) *Peer {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &Peer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// Peer представляет одну сторону построчного TCP соединения в тесте.
type Peer struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// ReadLine читает одну строку от клиента без завершающего перевода строки.
func (p *Peer) ReadLine() string {
	p.t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	line, err := p.r.ReadString('\n')
	if err != nil {
		p.t.Fatalf("reading from client: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// Send отправляет клиенту строки, каждая завершается '\n'.
func (p *Peer) Send(lines ...string) {
	p.t.Helper()

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	_ = p.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if _, err := p.conn.Write([]byte(b.String())); err != nil {
		p.t.Fatalf("writing to client: %v", err)
	}
}

// Sendf форматирует и отправляет одну строку.
func (p *Peer) Sendf(format string, args ...any) {
	p.t.Helper()
	p.Send(fmt.Sprintf(format, args...))
}

// SendRaw пишет байты как есть, без добавления '\n'.
func (p *Peer) SendRaw(b []byte) {
	p.t.Helper()

	_ = p.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if _, err := p.conn.Write(b); err != nil {
		p.t.Fatalf("writing to client: %v", err)
	}
}

// Close закрывает соединение со стороны сервера (клиент увидит EOF).
func (p *Peer) Close() {
	_ = p.conn.Close()
}

// Reset закрывает соединение с RST вместо FIN: клиент увидит ошибку чтения.
func (p *Peer) Reset() {
	if tc, ok := p.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	_ = p.conn.Close()
}

// ExpectClosed проверяет, что клиент закрыл соединение.
func (p *Peer) ExpectClosed() {
	p.t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	for {
		if _, err := p.r.ReadByte(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				p.t.Fatalf("client did not close the connection within %v", DefaultTimeout)
			}
			return
		}
	}
}
