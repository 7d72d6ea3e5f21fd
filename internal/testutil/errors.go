package testutil

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// ErrSimulated is a sentinel error for testing error handling paths
var ErrSimulated = errors.New("simulated error for testing")

// FailingConn оборачивает net.Conn и возвращает ErrSimulated на Write,
// когда включён FailWrites. Чтение проксируется без изменений.
type FailingConn struct {
	net.Conn
	FailWrites atomic.Bool
}

func (c *FailingConn) Write(b []byte) (int, error) {
	if c.FailWrites.Load() {
		return 0, ErrSimulated
	}
	return c.Conn.Write(b)
}

// CountingDialer считает попытки подключения и делегирует их net.Dialer.
// Last хранит последнее установленное соединение, обёрнутое в FailingConn.
type CountingDialer struct {
	Dials atomic.Int32
	Err   error // если задан, DialContext возвращает его без сетевой активности

	last atomic.Pointer[FailingConn]
}

func (d *CountingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.Dials.Add(1)
	if d.Err != nil {
		return nil, d.Err
	}

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	fc := &FailingConn{Conn: nc}
	d.last.Store(fc)
	return fc, nil
}

// Last возвращает последнее соединение или nil.
func (d *CountingDialer) Last() *FailingConn {
	return d.last.Load()
}

// BlockingDialer блокирует DialContext до отмены ctx.
// Started закрывается при первом вызове.
type BlockingDialer struct {
	Started chan struct{}

	once sync.Once
}

func NewBlockingDialer() *BlockingDialer {
	return &BlockingDialer{Started: make(chan struct{})}
}

func (d *BlockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	d.once.Do(func() { close(d.Started) })
	<-ctx.Done()
	return nil, ctx.Err()
}
