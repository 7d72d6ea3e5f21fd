package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/snakenet/internal/model"
	"github.com/udisondev/snakenet/internal/protocol"
	"github.com/udisondev/snakenet/internal/testutil"
)

// eventLog records observer calls in delivery order.
type eventLog struct {
	ctrl *Controller

	mu          sync.Mutex
	events      []string
	statuses    []string
	errs        []error
	errStates   []State
	sessions    []Session
	removed     []*model.Player
	disconnects chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{disconnects: make(chan struct{}, 8)}
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) OnStatus(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, msg)
}

func (l *eventLog) OnError(err error) {
	st := l.ctrl.State()
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.errStates = append(l.errStates, st)
	l.mu.Unlock()
	l.add("error")
}

func (l *eventLog) OnConnected(s Session) {
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	l.add("connected")
}

func (l *eventLog) OnWorldReady(playerID, size int) {
	l.add(fmt.Sprintf("world %d %d", playerID, size))
}

func (l *eventLog) OnPlayerUpdate(p *model.Player) {
	l.add(fmt.Sprintf("player %d", p.ID))
}

func (l *eventLog) OnPlayerRemoved(p *model.Player) {
	l.mu.Lock()
	l.removed = append(l.removed, p)
	l.mu.Unlock()
	l.add(fmt.Sprintf("player_removed %d", p.ID))
}

func (l *eventLog) OnPowerupUpdate(p *model.Powerup) {
	l.add(fmt.Sprintf("powerup %d", p.ID))
}

func (l *eventLog) OnPowerupRemoved(id int) {
	l.add(fmt.Sprintf("powerup_removed %d", id))
}

func (l *eventLog) OnWallAdded(w *model.Wall) {
	l.add(fmt.Sprintf("wall %d", w.ID))
}

func (l *eventLog) OnDisconnected() {
	l.add("disconnected")
	l.disconnects <- struct{}{}
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func (l *eventLog) Statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.statuses...)
}

func (l *eventLog) has(e string) bool {
	for _, got := range l.Events() {
		if got == e {
			return true
		}
	}
	return false
}

func (l *eventLog) waitFor(t *testing.T, e string) {
	t.Helper()
	testutil.WaitFor(t, func() bool { return l.has(e) }, testutil.DefaultTimeout)
}

func (l *eventLog) waitDisconnected(t *testing.T) {
	t.Helper()
	select {
	case <-l.disconnects:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("OnDisconnected not delivered")
	}
}

func playerJSON(id int, name string, score int, dc bool) string {
	return fmt.Sprintf(
		`{"snake":%d,"body":[{"X":10.0,"Y":10.0},{"X":10.0,"Y":20.0}],"dir":{"X":0.0,"Y":-1.0},"name":%q,"score":%d,"died":false,"alive":true,"dc":%t,"join":false}`,
		id, name, score, dc)
}

func powerupJSON(id int, died bool) string {
	return fmt.Sprintf(`{"power":%d,"loc":{"X":5.0,"Y":7.0},"died":%t}`, id, died)
}

func wallJSON(id, x1, y1, x2, y2 int) string {
	return fmt.Sprintf(`{"wall":%d,"p1":{"X":%d,"Y":%d},"p2":{"X":%d,"Y":%d}}`, id, x1, y1, x2, y2)
}

type harness struct {
	srv  *testutil.SnakeServer
	ctrl *Controller
	log  *eventLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	srv := testutil.NewSnakeServer(t)
	log := newEventLog()
	ctrl := New(srv.Addr(), append([]Option{WithObserver(log), WithDialTimeout(testutil.DefaultTimeout)}, opts...)...)
	log.ctrl = ctrl

	t.Cleanup(func() {
		ctrl.Disconnect()
		<-ctrl.Done()
	})

	return &harness{srv: srv, ctrl: ctrl, log: log}
}

// stream connects and completes the handshake.
func (h *harness) stream(t *testing.T, name string, playerID, size int) *testutil.Peer {
	t.Helper()

	ctx := testutil.ContextWithTimeout(t, 30*time.Second)
	require.NoError(t, h.ctrl.Connect(ctx, name))
	peer := h.srv.Handshake(name, playerID, size)
	h.log.waitFor(t, fmt.Sprintf("world %d %d", playerID, size))
	require.Equal(t, StateStreaming, h.ctrl.State())
	return peer
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"single char", "A", nil},
		{"sixteen chars", strings.Repeat("a", 16), nil},
		{"sixteen multibyte runes", strings.Repeat("é", 16), nil},
		{"empty", "", ErrNameRequired},
		{"blank", "   ", ErrNameRequired},
		{"seventeen chars", strings.Repeat("a", 17), ErrNameTooLong},
		{"newline", "Al\nice", ErrNameInvalid},
		{"carriage return", "Alice\r", ErrNameInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestController_Connect_InvalidNameNeverDials(t *testing.T) {
	for _, name := range []string{"", strings.Repeat("x", 17)} {
		dialer := &testutil.CountingDialer{}
		log := newEventLog()
		ctrl := New("127.0.0.1:1", WithDialer(dialer), WithObserver(log))
		log.ctrl = ctrl

		err := ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), name)
		require.Error(t, err)

		assert.Zero(t, dialer.Dials.Load(), "no transport activity for %q", name)
		assert.Equal(t, StateDisconnected, ctrl.State())
		assert.Empty(t, log.Events())
	}
}

func TestController_Connect_SendsNameForValidLengths(t *testing.T) {
	for _, n := range []int{1, 8, 16} {
		t.Run(fmt.Sprintf("len=%d", n), func(t *testing.T) {
			h := newHarness(t)
			name := strings.Repeat("n", n)

			require.NoError(t, h.ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), name))
			peer := h.srv.Accept()
			assert.Equal(t, name, peer.ReadLine())
			assert.Equal(t, StateAwaitingPlayerID, h.ctrl.State())
		})
	}
}

func TestController_Connect_DialFailure(t *testing.T) {
	log := newEventLog()
	ctrl := New(testutil.UnusedAddr(t), WithObserver(log))
	log.ctrl = ctrl

	err := ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), "Alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to connect to server")

	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.False(t, ctrl.IsConnected())
	assert.Empty(t, log.Events(), "dial failures are returned, not observed")

	// Still usable afterwards.
	srv := testutil.NewSnakeServer(t)
	ctrl2 := New(srv.Addr())
	require.NoError(t, ctrl2.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), "Alice"))
	ctrl2.Disconnect()
	<-ctrl2.Done()
}

func TestController_Connect_DialerError(t *testing.T) {
	dialer := &testutil.CountingDialer{Err: testutil.ErrSimulated}
	ctrl := New("snake.invalid:11000", WithDialer(dialer))

	err := ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), "Alice")
	require.ErrorIs(t, err, testutil.ErrSimulated)
	assert.Equal(t, int32(1), dialer.Dials.Load())
	assert.Equal(t, StateDisconnected, ctrl.State())
}

func TestController_Connect_AlreadyConnected(t *testing.T) {
	h := newHarness(t)
	h.stream(t, "Alice", 1, 100)

	err := h.ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), "Bob")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, StateStreaming, h.ctrl.State())
}

func TestController_EndToEndAlice(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Connect(testutil.ContextWithTimeout(t, 30*time.Second), "Alice"))
	peer := h.srv.Handshake("Alice", 3, 100)
	h.log.waitFor(t, "world 3 100")

	id, ok := h.ctrl.PlayerID()
	require.True(t, ok)
	assert.Equal(t, 3, id)

	w := h.ctrl.World()
	require.NotNil(t, w)
	assert.Equal(t, 100, w.Size())

	peer.Send(playerJSON(3, "Alice", 0, false))
	h.log.waitFor(t, "player 3")

	w = h.ctrl.World()
	require.Equal(t, 1, w.PlayerCount())
	p, ok := w.Player(3)
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 2, p.Len())

	peer.Send(playerJSON(3, "Alice", 0, true))
	h.log.waitFor(t, "player_removed 3")
	assert.Zero(t, h.ctrl.World().PlayerCount())

	assert.Equal(t, []string{"connected", "world 3 100", "player 3", "player_removed 3"}, h.log.Events())
}

func TestController_HandshakeOrdering(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Connect(testutil.ContextWithTimeout(t, 30*time.Second), "Alice"))
	peer := h.srv.Accept()
	require.Equal(t, "Alice", peer.ReadLine())

	// A third integer in world-size position is not a world size.
	peer.Send("7", "50", "99", wallJSON(1, 0, 0, 0, 10))
	h.log.waitFor(t, "wall 1")

	id, ok := h.ctrl.PlayerID()
	require.True(t, ok)
	assert.Equal(t, 7, id)
	assert.Equal(t, 50, h.ctrl.World().Size())
}

func TestController_HandshakeSkipsNonIntegerLines(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Connect(testutil.ContextWithTimeout(t, 30*time.Second), "Alice"))
	peer := h.srv.Accept()
	require.Equal(t, "Alice", peer.ReadLine())

	peer.Send("hello", "  12345 ", playerJSON(1, "early", 0, false), "0", "-4", "2000")
	h.log.waitFor(t, "world 12345 2000")

	assert.Equal(t, 2000, h.ctrl.World().Size())
	assert.Zero(t, h.ctrl.World().PlayerCount(), "entity data before the world exists is dropped")
}

func TestController_PlayerUpsertIsIdempotent(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(playerJSON(2, "Bob", 1, false), playerJSON(2, "Bob", 5, false), wallJSON(9, 0, 0, 1, 1))
	h.log.waitFor(t, "wall 9")

	w := h.ctrl.World()
	require.Equal(t, 1, w.PlayerCount())
	p, _ := w.Player(2)
	assert.Equal(t, 5, p.Score)
}

func TestController_RemovalIsMonotonic(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(
		playerJSON(4, "Carol", 3, false),
		playerJSON(4, "Carol", 3, true),
		playerJSON(4, "Carol", 9, false), // stale
		wallJSON(1, 0, 0, 1, 1),
	)
	h.log.waitFor(t, "wall 1")

	_, ok := h.ctrl.World().Player(4)
	assert.False(t, ok)
	assert.Equal(t, []string{"connected", "world 1 100", "player 4", "player_removed 4", "wall 1"}, h.log.Events())

	h.log.mu.Lock()
	defer h.log.mu.Unlock()
	require.Len(t, h.log.removed, 1)
	assert.Equal(t, "Carol", h.log.removed[0].Name)
}

func TestController_PowerupLifecycle(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(powerupJSON(5, false))
	h.log.waitFor(t, "powerup 5")
	assert.Equal(t, 1, h.ctrl.World().PowerupCount())

	peer.Send(powerupJSON(5, true))
	h.log.waitFor(t, "powerup_removed 5")
	assert.Zero(t, h.ctrl.World().PowerupCount())

	// Same ID, not terminal: a fresh entry.
	peer.Send(`{"power":5,"loc":{"X":1.0,"Y":2.0},"died":false}`)
	testutil.WaitFor(t, func() bool { return h.ctrl.World().PowerupCount() == 1 }, testutil.DefaultTimeout)
	p, ok := h.ctrl.World().Powerup(5)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Loc.X)
	assert.Equal(t, 2.0, p.Loc.Y)
}

func TestController_DisconnectDuringDialAborts(t *testing.T) {
	dialer := testutil.NewBlockingDialer()
	log := newEventLog()
	ctrl := New("127.0.0.1:1", WithDialer(dialer), WithObserver(log), WithDialTimeout(time.Minute))
	log.ctrl = ctrl

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Connect(testutil.ContextWithTimeout(t, 30*time.Second), "Alice") }()

	select {
	case <-dialer.Started:
	case <-testutil.ContextWithTimeout(t, testutil.DefaultTimeout).Done():
		t.Fatal("dial did not start")
	}
	assert.Equal(t, StateConnecting, ctrl.State())

	ctrl.Disconnect()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectAborted)
		assert.NotErrorIs(t, err, context.Canceled)
	case <-testutil.ContextWithTimeout(t, testutil.DefaultTimeout).Done():
		t.Fatal("Connect did not return after Disconnect")
	}
	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.Empty(t, log.Events(), "an aborted connect emits no events")
}

type wallCapture struct {
	BaseObserver

	mu    sync.Mutex
	walls []model.Wall
}

func (c *wallCapture) OnWallAdded(w *model.Wall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walls = append(c.walls, *w)
}

func (c *wallCapture) Walls() []model.Wall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Wall(nil), c.walls...)
}

func TestController_WallFirstInsertWins(t *testing.T) {
	walls := &wallCapture{}
	h := newHarness(t, WithObserver(walls))
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(wallJSON(3, 0, 0, 0, 50), wallJSON(3, 9, 9, 9, 9), powerupJSON(1, false))
	h.log.waitFor(t, "powerup 1")

	wl, ok := h.ctrl.World().Wall(3)
	require.True(t, ok)
	assert.Equal(t, 0, wl.P1.X)
	assert.Equal(t, 50, wl.P2.Y)

	got := walls.Walls()
	require.Len(t, got, 2, "every wall record is announced")
	assert.Equal(t, got[0], got[1], "a repeated ID re-announces the stored wall")
	assert.Equal(t, 50, got[1].P2.Y)
	assert.Equal(t, 1, h.ctrl.World().WallCount())
}

func TestController_BadFramesDoNotEndSession(t *testing.T) {
	h := newHarness(t, WithConnOptions(protocol.Options{MaxLineSize: 512}))
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(
		`{"snake":"three"}`,
		`{"power":1,"loc":"nowhere"}`,
		`{"hello":"world"}`,
		`not json at all`,
		`[1,2,3]`,
		"",
		`{"snake":`+strings.Repeat("9", 1000)+`}`,
		playerJSON(8, "Dave", 1, false),
	)
	h.log.waitFor(t, "player 8")

	assert.Equal(t, StateStreaming, h.ctrl.State())
	assert.Empty(t, h.log.Errors())
	assert.Equal(t, 1, h.ctrl.World().PlayerCount())
	assert.Zero(t, h.ctrl.World().PowerupCount())
}

func TestController_WorldSnapshotIsIndependent(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	snap := h.ctrl.World()
	peer.Send(playerJSON(2, "Bob", 0, false))
	h.log.waitFor(t, "player 2")

	assert.Zero(t, snap.PlayerCount())
	assert.Equal(t, 1, h.ctrl.World().PlayerCount())
}

func TestController_SendMove(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.ctrl.SendMove(protocol.Up), ErrNotStreaming)

	peer := h.stream(t, "Alice", 1, 100)

	require.NoError(t, h.ctrl.SendMove(protocol.Up))
	require.NoError(t, h.ctrl.SendMove(protocol.Left))
	assert.Equal(t, `{"moving":"up"}`, peer.ReadLine())
	assert.Equal(t, `{"moving":"left"}`, peer.ReadLine())

	assert.ErrorIs(t, h.ctrl.SendMove(protocol.Direction("sideways")), protocol.ErrInvalidDirection)
	assert.Equal(t, StateStreaming, h.ctrl.State())
}

func TestController_SendMoveBeforeWorld(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Connect(testutil.ContextWithTimeout(t, testutil.DefaultTimeout), "Alice"))
	peer := h.srv.Accept()
	require.Equal(t, "Alice", peer.ReadLine())

	assert.ErrorIs(t, h.ctrl.SendMove(protocol.Down), ErrNotStreaming)
}

func TestController_Disconnect(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)
	first := h.ctrl.Session()

	h.ctrl.Disconnect()
	h.log.waitDisconnected(t)
	require.NoError(t, h.ctrl.Wait(testutil.ContextWithTimeout(t, testutil.DefaultTimeout)))

	peer.ExpectClosed()
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.False(t, h.ctrl.IsConnected())
	assert.Nil(t, h.ctrl.World())
	assert.Empty(t, h.log.Errors())
	assert.Contains(t, h.log.Statuses(), "Disconnected from server")
	assert.NotContains(t, h.log.Statuses(), "Server closed the connection")

	events := h.log.Events()
	assert.Equal(t, "disconnected", events[len(events)-1])

	// Idempotent.
	h.ctrl.Disconnect()
	assert.Equal(t, StateDisconnected, h.ctrl.State())

	// Reconnect with a fresh session.
	h.stream(t, "Alice", 2, 60)
	assert.NotEqual(t, first.ID, h.ctrl.Session().ID)
	id, _ := h.ctrl.PlayerID()
	assert.Equal(t, 2, id)
	assert.Equal(t, 60, h.ctrl.World().Size())
}

func TestController_DisconnectWhileIdle(t *testing.T) {
	ctrl := New("127.0.0.1:1")
	ctrl.Disconnect()
	assert.Equal(t, StateDisconnected, ctrl.State())
	require.NoError(t, ctrl.Wait(testutil.ContextWithTimeout(t, time.Second)))
}

func TestController_ServerClose(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Close()
	h.log.waitDisconnected(t)

	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Empty(t, h.log.Errors(), "remote close is not a fault")
	assert.Contains(t, h.log.Statuses(), "Server closed the connection")
	assert.Nil(t, h.ctrl.World())
}

func TestController_ReadFailureFaults(t *testing.T) {
	h := newHarness(t)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Reset()
	h.log.waitDisconnected(t)

	errs := h.log.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrConnectionLost)

	h.log.mu.Lock()
	assert.Equal(t, []State{StateFaulted}, h.log.errStates)
	h.log.mu.Unlock()

	assert.Equal(t, StateDisconnected, h.ctrl.State())
	events := h.log.Events()
	assert.Equal(t, []string{"error", "disconnected"}, events[len(events)-2:])
}

func TestController_WriteFailureFaults(t *testing.T) {
	dialer := &testutil.CountingDialer{}
	h := newHarness(t, WithDialer(dialer))
	h.stream(t, "Alice", 1, 100)

	conn := dialer.Last()
	require.NotNil(t, conn)
	conn.FailWrites.Store(true)

	err := h.ctrl.SendMove(protocol.Right)
	require.ErrorIs(t, err, testutil.ErrSimulated)
	h.log.waitDisconnected(t)

	errs := h.log.Errors()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], testutil.ErrSimulated))
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.SendMove(protocol.Right), ErrNotStreaming)
}

func TestController_ContextCancelDisconnects(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := testutil.ContextWithCancel(t)
	require.NoError(t, h.ctrl.Connect(ctx, "Alice"))
	peer := h.srv.Handshake("Alice", 1, 100)
	h.log.waitFor(t, "world 1 100")

	cancel()
	h.log.waitDisconnected(t)
	peer.ExpectClosed()
	assert.Empty(t, h.log.Errors())
}

func TestController_ObserverOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	first := &funcObserver{onPlayer: func(*model.Player) { mu.Lock(); order = append(order, "first"); mu.Unlock() }}
	second := &funcObserver{onPlayer: func(*model.Player) { mu.Lock(); order = append(order, "second"); mu.Unlock() }}

	h := newHarness(t, WithObserver(first))
	h.ctrl.AddObserver(second)
	peer := h.stream(t, "Alice", 1, 100)

	peer.Send(playerJSON(1, "Alice", 0, false))
	h.log.waitFor(t, "player 1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

type funcObserver struct {
	BaseObserver
	onPlayer func(*model.Player)
}

func (o *funcObserver) OnPlayerUpdate(p *model.Player) { o.onPlayer(p) }

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateAwaitingPlayerID, "AWAITING_PLAYER_ID"},
		{StateAwaitingWorldSize, "AWAITING_WORLD_SIZE"},
		{StateStreaming, "STREAMING"},
		{StateFaulted, "FAULTED"},
		{State(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
