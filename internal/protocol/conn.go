package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned when the peer closed the connection.
var ErrClosed = errors.New("connection closed by remote host")

// Options tunes a Conn. Zero values mean "no limit" / defaults.
type Options struct {
	ReadTimeout  time.Duration // idle read deadline, 0 = wait forever
	WriteTimeout time.Duration // per-write deadline, 0 = none
	MaxLineSize  int           // 0 = DefaultMaxLineSize
}

// Conn is a newline-delimited UTF-8 message channel over a stream socket.
//
// ReadLine must be called from a single goroutine. Send is safe for
// concurrent use. Close may be called from any goroutine and unblocks a
// pending ReadLine.
type Conn struct {
	nc   net.Conn
	r    *bufio.Reader
	opts Options

	wmu  sync.Mutex
	wbuf []byte

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn, opts Options) *Conn {
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	return &Conn{
		nc:   nc,
		r:    bufio.NewReaderSize(nc, 4096),
		opts: opts,
		wbuf: make([]byte, 0, 256),
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// ReadLine blocks until one full message arrives.
// A clean remote close is reported as ErrClosed.
func (c *Conn) ReadLine() (string, error) {
	if c.opts.ReadTimeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return "", fmt.Errorf("set read deadline: %w", err)
		}
	}

	line, err := ReadLine(c.r, c.opts.MaxLineSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrClosed
		}
		if errors.Is(err, ErrLineTooLong) {
			return "", err
		}
		return "", fmt.Errorf("reading line: %w", err)
	}
	return string(line), nil
}

// Send writes one message. The newline terminator is appended.
func (c *Conn) Send(msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.opts.WriteTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := WriteLine(c.nc, c.wbuf, msg); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying socket. Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
