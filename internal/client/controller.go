package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/snakenet/internal/model"
	"github.com/udisondev/snakenet/internal/protocol"
	"github.com/udisondev/snakenet/internal/world"
)

// DefaultDialTimeout bounds Connect when no dial timeout is configured.
const DefaultDialTimeout = 10 * time.Second

// Dialer opens the TCP connection to the game server. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers o before any session starts.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(c *Controller) {
		c.dialer = d
	}
}

// WithDialTimeout bounds the TCP dial and the name send.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.dialTimeout = d
	}
}

// WithConnOptions sets read/write deadlines and the maximum line size.
func WithConnOptions(opts protocol.Options) Option {
	return func(c *Controller) {
		c.connOpts = opts
	}
}

// Controller owns one server connection at a time and reconciles the
// server's message stream into a World.
//
// Connect, Disconnect, SendMove and the accessors are safe for concurrent
// use. Inbound messages are processed by a single receiver goroutine per
// session; observers are notified from it.
type Controller struct {
	addr        string
	dialer      Dialer
	dialTimeout time.Duration
	connOpts    protocol.Options

	mu        sync.Mutex
	observers []Observer
	state     State
	conn      *protocol.Conn
	session   Session
	playerID  int
	hasID     bool
	closing   bool  // teardown requested, receiver will finish
	aborted   bool  // Disconnect during Connecting
	fault     error // write-side failure recorded for the receiver
	cancel    context.CancelFunc
	stopWatch func() bool
	done      chan struct{}

	worldMu sync.RWMutex
	world   *world.World
}

// New creates a disconnected controller for the server at addr ("host:port").
func New(addr string, opts ...Option) *Controller {
	done := make(chan struct{})
	close(done)

	c := &Controller{
		addr:        addr,
		dialer:      &net.Dialer{},
		dialTimeout: DefaultDialTimeout,
		state:       StateDisconnected,
		done:        done,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddObserver registers o. Observers added mid-session see events from
// the next message onwards.
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Addr returns the server address.
func (c *Controller) Addr() string {
	return c.addr
}

// State returns the current protocol state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a live socket exists and no teardown is pending.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closing
}

// PlayerID returns the server-assigned ID of the local player.
// ok is false until the first handshake integer arrives.
func (c *Controller) PlayerID() (id int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.hasID
}

// Session returns the current (or last) session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Done is closed when the current session's teardown has completed and
// OnDisconnected has been delivered.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current session ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// World returns a snapshot of the reconciled world, or nil before the
// handshake completes. The snapshot is not affected by later messages.
func (c *Controller) World() *world.World {
	c.worldMu.RLock()
	defer c.worldMu.RUnlock()
	if c.world == nil {
		return nil
	}
	return c.world.Copy()
}

// Connect validates name, dials the server and sends the name as the first
// message. On success the handshake continues in the background.
//
// Validation and dial failures are returned directly and leave the
// controller Disconnected. Cancelling ctx later disconnects the session.
func (c *Controller) Connect(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	dialCtx, cancel := c.dialContext(ctx)
	c.state = StateConnecting
	c.aborted = false
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(dialCtx, name)
	cancel()

	c.mu.Lock()
	c.cancel = nil
	if c.aborted {
		if err == nil {
			_ = conn.Close()
		}
		err = ErrConnectAborted
	}
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	sess := Session{
		ID:         uuid.New(),
		PlayerName: name,
		ServerAddr: c.addr,
		StartedAt:  time.Now(),
	}
	done := make(chan struct{})

	c.conn = conn
	c.session = sess
	c.state = StateAwaitingPlayerID
	c.playerID, c.hasID = 0, false
	c.closing = false
	c.fault = nil
	c.done = done
	c.stopWatch = context.AfterFunc(ctx, c.Disconnect)
	c.mu.Unlock()

	c.worldMu.Lock()
	c.world = nil
	c.worldMu.Unlock()

	r := &receiver{
		c:        c,
		conn:     conn,
		session:  sess,
		departed: make(map[int]struct{}),
		log:      slog.With("session", sess.ID.String(), "server", c.addr),
	}
	go r.run(done)

	return nil
}

func (c *Controller) dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.dialTimeout > 0 {
		return context.WithTimeout(ctx, c.dialTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) dial(ctx context.Context, name string) (*protocol.Conn, error) {
	nc, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to server %s: %w", c.addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetWriteDeadline(deadline)
	}
	conn := protocol.NewConn(nc, c.connOpts)
	if err := conn.Send(name); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending player name: %w", err)
	}
	_ = nc.SetWriteDeadline(time.Time{})

	return conn, nil
}

// Disconnect closes the current connection. The receiver goroutine
// completes teardown and delivers OnDisconnected; use Wait to block on it.
// Calling Disconnect while already disconnected is a no-op.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateConnecting:
		c.aborted = true
		if c.cancel != nil {
			c.cancel()
		}
	case c.conn != nil && !c.closing:
		c.closing = true
		_ = c.conn.Close()
	}
}

// SendMove sends a direction command. It is only valid while Streaming.
// A write failure tears the session down and is reported through OnError.
func (c *Controller) SendMove(d protocol.Direction) error {
	msg, err := protocol.EncodeMove(d)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, state, closing := c.conn, c.state, c.closing
	c.mu.Unlock()

	if conn == nil || closing || state != StateStreaming {
		return ErrNotStreaming
	}

	if err := conn.Send(msg); err != nil {
		err = fmt.Errorf("sending move command: %w", err)
		c.fail(conn, err)
		return err
	}
	return nil
}

// fail records a write-side fault and closes conn so the receiver exits.
func (c *Controller) fail(conn *protocol.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || c.closing {
		return
	}
	c.fault = err
	c.closing = true
	_ = conn.Close()
}

func (c *Controller) notify(fn func(Observer)) {
	c.mu.Lock()
	obs := c.observers
	c.mu.Unlock()
	for _, o := range obs {
		fn(o)
	}
}

func (c *Controller) mutateWorld(fn func(*world.World)) {
	c.worldMu.Lock()
	defer c.worldMu.Unlock()
	if c.world != nil {
		fn(c.world)
	}
}

// receiver is the per-session read loop.
type receiver struct {
	c        *Controller
	conn     *protocol.Conn
	session  Session
	departed map[int]struct{} // IDs seen with dc=true, never re-added
	log      *slog.Logger
}

func (r *receiver) run(done chan struct{}) {
	defer close(done)

	c := r.c
	c.notify(func(o Observer) { o.OnConnected(r.session) })
	c.notify(func(o Observer) { o.OnStatus("Connected to server " + r.session.ServerAddr) })

	for {
		if !r.live() {
			r.finish(nil)
			return
		}

		line, err := r.conn.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				r.log.Warn("dropping oversized message", "err", err)
				continue
			}
			r.finish(err)
			return
		}

		r.handle(line)
	}
}

func (r *receiver) live() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.conn == r.conn && !r.c.closing
}

func (r *receiver) handle(line string) {
	c := r.c

	switch c.State() {
	case StateAwaitingPlayerID:
		id, err := protocol.ParseInt(line)
		if err != nil {
			r.log.Debug("ignoring non-integer line while awaiting player id", "line", line)
			return
		}
		c.mu.Lock()
		c.playerID, c.hasID = id, true
		c.state = StateAwaitingWorldSize
		c.mu.Unlock()
		r.log.Debug("player id assigned", "player_id", id)

	case StateAwaitingWorldSize:
		size, err := protocol.ParseInt(line)
		if err != nil {
			r.log.Debug("ignoring non-integer line while awaiting world size", "line", line)
			return
		}
		if size <= 0 {
			r.log.Warn("ignoring non-positive world size", "size", size)
			return
		}

		c.worldMu.Lock()
		c.world = world.New(size)
		c.worldMu.Unlock()

		c.mu.Lock()
		c.state = StateStreaming
		id := c.playerID
		c.mu.Unlock()

		c.notify(func(o Observer) { o.OnWorldReady(id, size) })

	case StateStreaming:
		r.reconcile(line)
	}
}

func (r *receiver) reconcile(line string) {
	msg, err := protocol.Decode([]byte(line))
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownShape) {
			r.log.Warn("ignoring unrecognized message", "line", line)
		} else {
			r.log.Warn("ignoring malformed message", "kind", msg.Kind, "err", err)
		}
		return
	}

	switch msg.Kind {
	case protocol.KindPlayer:
		r.applyPlayer(msg.Player)
	case protocol.KindPowerup:
		r.applyPowerup(msg.Powerup)
	case protocol.KindWall:
		r.applyWall(msg.Wall)
	}
}

func (r *receiver) applyPlayer(p *model.Player) {
	c := r.c

	if _, gone := r.departed[p.ID]; gone {
		r.log.Debug("ignoring update for departed player", "player_id", p.ID)
		return
	}

	if p.Disconnected {
		r.departed[p.ID] = struct{}{}
		c.mutateWorld(func(w *world.World) { w.RemovePlayer(p.ID) })
		c.notify(func(o Observer) { o.OnPlayerRemoved(p) })
		return
	}

	c.mutateWorld(func(w *world.World) { w.UpdatePlayer(p) })
	c.notify(func(o Observer) { o.OnPlayerUpdate(p) })
}

func (r *receiver) applyPowerup(p *model.Powerup) {
	c := r.c

	if p.Died {
		c.mutateWorld(func(w *world.World) { w.RemovePowerup(p.ID) })
		c.notify(func(o Observer) { o.OnPowerupRemoved(p.ID) })
		return
	}

	c.mutateWorld(func(w *world.World) { w.UpdatePowerup(p) })
	c.notify(func(o Observer) { o.OnPowerupUpdate(p) })
}

func (r *receiver) applyWall(wl *model.Wall) {
	c := r.c

	// Walls are immutable: a repeated ID re-announces the stored wall.
	stored := wl
	c.mutateWorld(func(w *world.World) {
		if !w.AddWall(wl) {
			stored, _ = w.Wall(wl.ID)
		}
	})
	c.notify(func(o Observer) { o.OnWallAdded(stored) })
}

// finish tears the session down. readErr is nil when the loop exited
// because Disconnect or a write fault closed the connection.
func (r *receiver) finish(readErr error) {
	c := r.c

	c.mu.Lock()
	closing, fault := c.closing, c.fault
	c.closing = true
	var failure error
	switch {
	case fault != nil:
		failure = fault
	case closing:
		// user-requested
	case readErr == nil, errors.Is(readErr, protocol.ErrClosed):
		// remote close
	default:
		failure = fmt.Errorf("%w: %w", ErrConnectionLost, readErr)
	}
	if failure != nil {
		c.state = StateFaulted
	}
	stop := c.stopWatch
	c.stopWatch = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	_ = r.conn.Close()

	if failure != nil {
		r.log.Error("session failed", "err", failure)
		c.notify(func(o Observer) { o.OnError(failure) })
	} else if !closing {
		c.notify(func(o Observer) { o.OnStatus("Server closed the connection") })
	}

	c.worldMu.Lock()
	c.world = nil
	c.worldMu.Unlock()

	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	c.closing = false
	c.fault = nil
	c.mu.Unlock()

	c.notify(func(o Observer) { o.OnStatus("Disconnected from server") })
	c.notify(func(o Observer) { o.OnDisconnected() })
}
