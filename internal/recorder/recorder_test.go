package recorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/snakenet/internal/client"
	"github.com/udisondev/snakenet/internal/model"
	"github.com/udisondev/snakenet/internal/testutil"
)

type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	nextID   int64
	startErr error
	writeErr error
}

func (f *fakeStore) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) StartGame(_ context.Context, key uuid.UUID, _ time.Time) (int64, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	f.record("start %d", id)
	return id, nil
}

func (f *fakeStore) EndGame(_ context.Context, gameID int64, _ time.Time) error {
	f.record("end %d", gameID)
	return f.writeErr
}

func (f *fakeStore) UpsertPlayer(_ context.Context, gameID int64, playerID int, name string, score int, _ time.Time) error {
	f.record("player %d %d %s %d", gameID, playerID, name, score)
	return f.writeErr
}

func (f *fakeStore) MarkPlayerLeft(_ context.Context, gameID int64, playerID int, _ time.Time) error {
	f.record("left %d %d", gameID, playerID)
	return f.writeErr
}

func player(id int, name string, score int) *model.Player {
	p := model.NewPlayer(id, 0, 0, 0)
	p.Name = name
	p.Score = score
	return p
}

// runRecorder starts Run and returns a stop func that waits for it to finish.
func runRecorder(t *testing.T, r *Recorder) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-done)
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestRecorder_WritesNewPlayersAndScoreIncreases(t *testing.T) {
	store := &fakeStore{}
	r := New(store, 16)

	r.OnConnected(client.Session{ID: uuid.New(), StartedAt: time.Now()})
	r.OnPlayerUpdate(player(3, "Alice", 0))
	r.OnPlayerUpdate(player(3, "Alice", 0)) // unchanged
	r.OnPlayerUpdate(player(4, "Bob", 2))
	r.OnPlayerUpdate(player(3, "Alice", 5))
	r.OnPlayerUpdate(player(3, "Alice", 4)) // lower
	r.OnPlayerRemoved(player(4, "Bob", 2))
	r.OnDisconnected()

	stop := runRecorder(t, r)
	stop()

	assert.Equal(t, []string{
		"start 1",
		"player 1 3 Alice 0",
		"player 1 4 Bob 2",
		"player 1 3 Alice 5",
		"left 1 4",
		"end 1",
	}, store.Calls())
	assert.Zero(t, r.Dropped())
}

func TestRecorder_NewSessionResetsScores(t *testing.T) {
	store := &fakeStore{}
	r := New(store, 16)
	stop := runRecorder(t, r)

	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(1, "Alice", 10))
	r.OnDisconnected()
	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(1, "Alice", 0))
	r.OnDisconnected()

	stop()
	assert.Equal(t, []string{
		"start 1", "player 1 1 Alice 10", "end 1",
		"start 2", "player 2 1 Alice 0", "end 2",
	}, store.Calls())
}

func TestRecorder_RemovedPlayerIsRewrittenIfSeenAgain(t *testing.T) {
	store := &fakeStore{}
	r := New(store, 16)

	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(2, "Bob", 3))
	r.OnPlayerRemoved(player(2, "Bob", 3))
	r.OnPlayerUpdate(player(2, "Bob", 3))

	runRecorder(t, r)()
	assert.Equal(t, []string{"start 1", "player 1 2 Bob 3", "left 1 2", "player 1 2 Bob 3"}, store.Calls())
}

func TestRecorder_StartFailureSkipsSession(t *testing.T) {
	store := &fakeStore{startErr: testutil.ErrSimulated}
	r := New(store, 16)

	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(1, "Alice", 1))
	r.OnPlayerRemoved(player(1, "Alice", 1))
	r.OnDisconnected()

	runRecorder(t, r)()
	assert.Empty(t, store.Calls())
}

func TestRecorder_WriteFailuresAreAbsorbed(t *testing.T) {
	store := &fakeStore{writeErr: testutil.ErrSimulated}
	r := New(store, 16)

	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(1, "Alice", 1))
	r.OnPlayerUpdate(player(1, "Alice", 2))
	r.OnDisconnected()

	runRecorder(t, r)()
	assert.Equal(t, []string{"start 1", "player 1 1 Alice 1", "player 1 1 Alice 2", "end 1"}, store.Calls())
}

func TestRecorder_FullQueueDrops(t *testing.T) {
	store := &fakeStore{}
	r := New(store, 2)

	r.OnConnected(client.Session{ID: uuid.New()})
	r.OnPlayerUpdate(player(1, "a", 0))
	r.OnPlayerUpdate(player(2, "b", 0))
	r.OnPlayerUpdate(player(3, "c", 0))

	assert.Equal(t, uint64(2), r.Dropped())

	runRecorder(t, r)()
	assert.Equal(t, []string{"start 1", "player 1 1 a 0"}, store.Calls())
}

func TestRecorder_WithController(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, 64)
	stop := runRecorder(t, rec)

	srv := testutil.NewSnakeServer(t)
	ctrl := client.New(srv.Addr(), client.WithObserver(rec))

	require.NoError(t, ctrl.Connect(testutil.ContextWithTimeout(t, 30*time.Second), "Alice"))
	peer := srv.Handshake("Alice", 3, 100)
	peer.Send(
		`{"snake":3,"body":[{"X":1.0,"Y":1.0}],"dir":{"X":1.0,"Y":0.0},"name":"Alice","score":0,"died":false,"alive":true,"dc":false,"join":true}`,
		`{"snake":3,"body":[{"X":2.0,"Y":1.0}],"dir":{"X":1.0,"Y":0.0},"name":"Alice","score":4,"died":false,"alive":true,"dc":false,"join":false}`,
		`{"snake":3,"body":[{"X":2.0,"Y":1.0}],"dir":{"X":1.0,"Y":0.0},"name":"Alice","score":4,"died":false,"alive":true,"dc":true,"join":false}`,
	)

	testutil.WaitFor(t, func() bool { return len(store.Calls()) == 4 }, testutil.DefaultTimeout)
	ctrl.Disconnect()
	require.NoError(t, ctrl.Wait(testutil.ContextWithTimeout(t, testutil.DefaultTimeout)))
	stop()

	assert.Equal(t, []string{
		"start 1",
		"player 1 3 Alice 0",
		"player 1 3 Alice 4",
		"left 1 3",
		"end 1",
	}, store.Calls())
}

func TestRecorder_WithClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(&fakeStore{}, 0, WithClock(func() time.Time { return fixed }))

	assert.Equal(t, DefaultQueueSize, cap(r.queue))
	r.OnDisconnected()
	ev := <-r.queue
	assert.Equal(t, fixed, ev.at)
	assert.Equal(t, "end", ev.kind.String())
}
