// Package recorder persists client sessions: game start/end, players seen,
// their best score and leave time.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/snakenet/internal/client"
	"github.com/udisondev/snakenet/internal/model"
)

// DefaultQueueSize задаёт ёмкость очереди событий по умолчанию.
const DefaultQueueSize = 1024

// flushTimeout ограничивает запись оставшихся событий после отмены Run.
const flushTimeout = 5 * time.Second

// Store сохраняет сессии. Реализуется db.GameRepository.
type Store interface {
	StartGame(ctx context.Context, key uuid.UUID, start time.Time) (int64, error)
	EndGame(ctx context.Context, gameID int64, end time.Time) error
	UpsertPlayer(ctx context.Context, gameID int64, playerID int, name string, score int, seen time.Time) error
	MarkPlayerLeft(ctx context.Context, gameID int64, playerID int, at time.Time) error
}

type eventKind uint8

const (
	eventStart eventKind = iota
	eventPlayer
	eventLeft
	eventEnd
)

type event struct {
	kind     eventKind
	session  uuid.UUID
	playerID int
	name     string
	score    int
	at       time.Time
}

// Recorder реализует client.Observer: складывает события в очередь,
// а Run записывает их в Store.
//
// Observer-методы никогда не блокируют receiver клиента: при переполнении
// очереди событие отбрасывается и учитывается в Dropped. Ошибки Store
// логируются и не влияют на состояние клиента.
type Recorder struct {
	client.BaseObserver

	store Store
	queue chan event
	now   func() time.Time

	dropped atomic.Uint64

	mu     sync.Mutex
	scores map[int]int // best score already queued per player, current session
}

// Option настраивает Recorder.
type Option func(*Recorder)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New создаёт Recorder с очередью на queueSize событий.
func New(store Store, queueSize int, opts ...Option) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		store:  store,
		queue:  make(chan event, queueSize),
		now:    time.Now,
		scores: make(map[int]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dropped возвращает число событий, отброшенных из-за переполнения очереди.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) OnConnected(s client.Session) {
	r.mu.Lock()
	clear(r.scores)
	r.mu.Unlock()

	r.enqueue(event{kind: eventStart, session: s.ID, at: s.StartedAt})
}

func (r *Recorder) OnPlayerUpdate(p *model.Player) {
	r.mu.Lock()
	best, seen := r.scores[p.ID]
	if seen && p.Score <= best {
		r.mu.Unlock()
		return
	}
	r.scores[p.ID] = p.Score
	r.mu.Unlock()

	r.enqueue(event{kind: eventPlayer, playerID: p.ID, name: p.Name, score: p.Score, at: r.now()})
}

func (r *Recorder) OnPlayerRemoved(p *model.Player) {
	r.mu.Lock()
	delete(r.scores, p.ID)
	r.mu.Unlock()

	r.enqueue(event{kind: eventLeft, playerID: p.ID, at: r.now()})
}

func (r *Recorder) OnDisconnected() {
	r.enqueue(event{kind: eventEnd, at: r.now()})
}

func (r *Recorder) enqueue(ev event) {
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		slog.Warn("recorder queue full, dropping event", "kind", ev.kind, "player_id", ev.playerID)
	}
}

// Run записывает события в Store до отмены ctx. После отмены уже
// поставленные в очередь события дописываются с ограничением flushTimeout.
func (r *Recorder) Run(ctx context.Context) error {
	w := &writer{store: r.store}

	for {
		select {
		case ev := <-r.queue:
			w.apply(ctx, ev)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			for {
				select {
				case ev := <-r.queue:
					w.apply(flushCtx, ev)
				default:
					return nil
				}
			}
		}
	}
}

// writer owns the current game ID. Used only by Run.
type writer struct {
	store  Store
	gameID int64 // 0 = no active game
}

func (w *writer) apply(ctx context.Context, ev event) {
	if ev.kind == eventStart {
		id, err := w.store.StartGame(ctx, ev.session, ev.at)
		if err != nil {
			slog.Error("recording game start failed", "session", ev.session, "err", err)
			w.gameID = 0
			return
		}
		w.gameID = id
		slog.Debug("game recorded", "session", ev.session, "game_id", id)
		return
	}

	if w.gameID == 0 {
		return
	}

	var err error
	switch ev.kind {
	case eventPlayer:
		err = w.store.UpsertPlayer(ctx, w.gameID, ev.playerID, ev.name, ev.score, ev.at)
	case eventLeft:
		err = w.store.MarkPlayerLeft(ctx, w.gameID, ev.playerID, ev.at)
	case eventEnd:
		err = w.store.EndGame(ctx, w.gameID, ev.at)
		w.gameID = 0
	}
	if err != nil {
		slog.Error("recording session event failed", "kind", ev.kind, "player_id", ev.playerID, "err", err)
	}
}

func (k eventKind) String() string {
	switch k {
	case eventStart:
		return "start"
	case eventPlayer:
		return "player"
	case eventLeft:
		return "left"
	case eventEnd:
		return "end"
	default:
		return "unknown"
	}
}
