// Package viewer bridges the reconciled world to browsers over WebSocket.
//
// A new subscriber first receives a "snapshot" envelope with the whole
// world, then live events in the order the client applied them. Browsers
// steer the local snake by sending {"moving":"up"} or {"key":"w"}.
package viewer

import (
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/snakenet/internal/client"
	"github.com/udisondev/snakenet/internal/model"
	"github.com/udisondev/snakenet/internal/protocol"
	"github.com/udisondev/snakenet/internal/world"
)

const (
	DefaultSendQueueSize = 256
	DefaultWriteTimeout  = 5 * time.Second

	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// Типы envelope.
const (
	TypeSnapshot       = "snapshot"
	TypeWorld          = "world"
	TypePlayer         = "player"
	TypePlayerRemoved  = "player_removed"
	TypePowerup        = "powerup"
	TypePowerupRemoved = "powerup_removed"
	TypeWall           = "wall"
	TypeDisconnected   = "disconnected"
)

//go:embed static/index.html
var static embed.FS

// Source отдаёт Hub состояние мира и принимает команды. Реализуется *client.Controller.
type Source interface {
	World() *world.World
	PlayerID() (int, bool)
	SendMove(d protocol.Direction) error
}

// Envelope оборачивает одно исходящее сообщение браузеру.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Snapshot содержит полное состояние мира для нового подписчика.
type Snapshot struct {
	PlayerID int              `json:"player_id"`
	Ready    bool             `json:"ready"`
	Size     int              `json:"size"`
	Players  []*model.Player  `json:"players"`
	Powerups []*model.Powerup `json:"powerups"`
	Walls    []*model.Wall    `json:"walls"`
}

// WorldInfo содержит данные события "world".
type WorldInfo struct {
	PlayerID int `json:"player_id"`
	Size     int `json:"size"`
}

// RemovedPowerup содержит данные события "powerup_removed".
type RemovedPowerup struct {
	ID int `json:"id"`
}

// Inbound описывает сообщение от браузера.
type Inbound struct {
	Moving string `json:"moving,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Options настраивает Hub.
type Options struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	CheckOrigin   func(r *http.Request) bool
}

// Hub реализует client.Observer и рассылает события мира подписчикам.
// Observer-методы не блокируют: медленный подписчик отключается.
type Hub struct {
	client.BaseObserver

	source       Source
	upgrader     websocket.Upgrader
	queueSize    int
	writeTimeout time.Duration
	mux          *http.ServeMux

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub создаёт Hub. Подключите его к контроллеру через AddObserver
// и отдайте как http.Handler.
func NewHub(source Source, opts Options) *Hub {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	h := &Hub{
		source:       source,
		upgrader:     websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		queueSize:    opts.SendQueueSize,
		writeTimeout: opts.WriteTimeout,
		mux:          http.NewServeMux(),
		subs:         make(map[*subscriber]struct{}),
	}
	h.mux.HandleFunc("GET /ws", h.serveWS)
	h.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "static/index.html")
	})
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Count возвращает число подписчиков.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close отключает всех подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s := &subscriber{
		hub:    h,
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan []byte, h.queueSize),
		closed: make(chan struct{}),
	}

	// Snapshot and registration under one lock: no event slips between them.
	h.mu.Lock()
	snap, err := json.Marshal(Envelope{Type: TypeSnapshot, Data: h.snapshot()})
	if err != nil {
		h.mu.Unlock()
		slog.Error("encoding world snapshot", "err", err)
		_ = conn.Close()
		return
	}
	s.send <- snap
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	slog.Debug("viewer subscribed", "remote", r.RemoteAddr)

	go s.writePump()
	go s.readPump()
}

func (h *Hub) snapshot() Snapshot {
	snap := Snapshot{
		Players:  []*model.Player{},
		Powerups: []*model.Powerup{},
		Walls:    []*model.Wall{},
	}
	snap.PlayerID, _ = h.source.PlayerID()

	w := h.source.World()
	if w == nil {
		return snap
	}
	snap.Ready = true
	snap.Size = w.Size()
	snap.Players = w.Players()
	snap.Powerups = w.Powerups()
	snap.Walls = w.Walls()
	return snap
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) broadcast(typ string, data any) {
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		slog.Error("encoding viewer event", "type", typ, "err", err)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Warn("viewer send queue full, dropping subscriber", "remote", s.remote)
		h.unregister(s)
		s.close()
	}
}

func (h *Hub) handleInbound(data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		slog.Debug("ignoring malformed viewer message", "err", err)
		return
	}

	var (
		dir protocol.Direction
		ok  bool
	)
	switch {
	case in.Moving != "":
		d, err := protocol.ParseDirection(in.Moving)
		dir, ok = d, err == nil
	case in.Key != "":
		dir, ok = protocol.DirectionForKey(in.Key)
	}
	if !ok {
		return
	}

	if err := h.source.SendMove(dir); err != nil {
		slog.Debug("move command not sent", "direction", dir, "err", err)
	}
}

func (h *Hub) OnWorldReady(playerID, size int) {
	h.broadcast(TypeWorld, WorldInfo{PlayerID: playerID, Size: size})
}

func (h *Hub) OnPlayerUpdate(p *model.Player) {
	h.broadcast(TypePlayer, p)
}

func (h *Hub) OnPlayerRemoved(p *model.Player) {
	h.broadcast(TypePlayerRemoved, p)
}

func (h *Hub) OnPowerupUpdate(p *model.Powerup) {
	h.broadcast(TypePowerup, p)
}

func (h *Hub) OnPowerupRemoved(id int) {
	h.broadcast(TypePowerupRemoved, RemovedPowerup{ID: id})
}

func (h *Hub) OnWallAdded(w *model.Wall) {
	h.broadcast(TypeWall, w)
}

func (h *Hub) OnDisconnected() {
	h.broadcast(TypeDisconnected, nil)
}

type subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// close останавливает writePump, который закрывает соединение.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.unregister(s)
		s.close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("viewer write failed", "remote", s.remote, "err", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *subscriber) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("viewer read failed", "remote", s.remote, "err", err)
			}
			return
		}
		s.hub.handleInbound(data)
	}
}
