package client

import (
	"log/slog"

	"github.com/udisondev/snakenet/internal/model"
)

// Observer receives controller events.
//
// Calls are synchronous and follow registration order. Every event of a
// session, from OnConnected to OnDisconnected, is delivered on that
// session's receiver goroutine in the order the underlying messages were
// applied to the World. Implementations must not block for long and must
// not call Controller.Wait.
//
// Entity arguments are owned by the World after the call; treat them as
// read-only.
type Observer interface {
	OnStatus(msg string)
	OnError(err error)
	OnConnected(s Session)
	OnWorldReady(playerID, size int)
	OnPlayerUpdate(p *model.Player)
	OnPlayerRemoved(p *model.Player)
	OnPowerupUpdate(p *model.Powerup)
	OnPowerupRemoved(id int)
	OnWallAdded(w *model.Wall) // also for a repeated ID, with the first-seen wall
	OnDisconnected()
}

// BaseObserver implements Observer with no-ops. Embed it to handle a subset of events.
type BaseObserver struct{}

func (BaseObserver) OnStatus(string)                {}
func (BaseObserver) OnError(error)                  {}
func (BaseObserver) OnConnected(Session)            {}
func (BaseObserver) OnWorldReady(int, int)          {}
func (BaseObserver) OnPlayerUpdate(*model.Player)   {}
func (BaseObserver) OnPlayerRemoved(*model.Player)  {}
func (BaseObserver) OnPowerupUpdate(*model.Powerup) {}
func (BaseObserver) OnPowerupRemoved(int)           {}
func (BaseObserver) OnWallAdded(*model.Wall)        {}
func (BaseObserver) OnDisconnected()                {}

// LogObserver writes lifecycle events to slog. Entity updates are logged at debug level.
type LogObserver struct {
	BaseObserver
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o LogObserver) OnStatus(msg string) {
	o.logger().Info(msg)
}

func (o LogObserver) OnError(err error) {
	o.logger().Error("client error", "err", err)
}

func (o LogObserver) OnConnected(s Session) {
	o.logger().Info("session started", "session", s.ID, "server", s.ServerAddr, "name", s.PlayerName)
}

func (o LogObserver) OnWorldReady(playerID, size int) {
	o.logger().Info("world ready", "player_id", playerID, "size", size)
}

func (o LogObserver) OnPlayerUpdate(p *model.Player) {
	o.logger().Debug("player update", "player_id", p.ID, "name", p.Name, "score", p.Score, "len", p.Len())
}

func (o LogObserver) OnPlayerRemoved(p *model.Player) {
	o.logger().Info("player left", "player_id", p.ID, "name", p.Name)
}

func (o LogObserver) OnDisconnected() {
	o.logger().Info("session ended")
}
