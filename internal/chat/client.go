package chat

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/udisondev/snakenet/internal/protocol"
)

// ErrQueueFull возвращается Send, когда клиент не успевает читать.
var ErrQueueFull = errors.New("send queue full")

// Client представляет одно подключение к чату.
// Исходящие сообщения буферизуются в sendCh и пишутся writePump.
type Client struct {
	id   uint64
	name string
	conn *protocol.Conn

	sendCh    chan string
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newClient(id uint64, conn *protocol.Conn, queueSize int) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		sendCh:  make(chan string, queueSize),
		closeCh: make(chan struct{}),
	}
}

// ID возвращает идентификатор подключения.
func (c *Client) ID() uint64 {
	return c.id
}

// Name возвращает имя, присланное первой строкой.
func (c *Client) Name() string {
	return c.name
}

// Send ставит сообщение в очередь. Не блокирует: при переполненной
// очереди клиент отключается.
func (c *Client) Send(msg string) error {
	select {
	case <-c.closeCh:
		return protocol.ErrClosed
	default:
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		slog.Warn("chat send queue full, disconnecting slow client", "client", c.conn.RemoteAddr(), "name", c.name)
		c.Close()
		return ErrQueueFull
	}
}

// Close закрывает соединение и останавливает writePump. Безопасно вызывать повторно.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		_ = c.conn.Close()
	})
}

// writePump единственный пишет в conn.
func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.Send(msg); err != nil {
				slog.Warn("chat write failed", "client", c.conn.RemoteAddr(), "name", c.name, "err", err)
				c.Close()
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
