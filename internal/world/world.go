package world

import (
	"maps"
	"slices"

	"github.com/udisondev/snakenet/internal/model"
)

// World is the ID-indexed aggregate of everything the server has told us about.
// Size is fixed at construction.
//
// Not safe for concurrent use: the client controller owns the World and
// serializes mutations; other readers work on a Copy.
type World struct {
	size     int
	players  map[int]*model.Player
	powerups map[int]*model.Powerup
	walls    map[int]*model.Wall
}

// New creates an empty square world with the given side length.
func New(size int) *World {
	return &World{
		size:     size,
		players:  make(map[int]*model.Player),
		powerups: make(map[int]*model.Powerup),
		walls:    make(map[int]*model.Wall),
	}
}

// Copy returns a shallow copy: fresh maps, shared entity pointers.
func (w *World) Copy() *World {
	return &World{
		size:     w.size,
		players:  maps.Clone(w.players),
		powerups: maps.Clone(w.powerups),
		walls:    maps.Clone(w.walls),
	}
}

// Size returns the world side length.
func (w *World) Size() int {
	return w.size
}

// UpdatePlayer inserts or replaces the player with p.ID. Nil is ignored.
func (w *World) UpdatePlayer(p *model.Player) {
	if p == nil {
		return
	}
	w.players[p.ID] = p
}

// RemovePlayer deletes the player with id, if present.
func (w *World) RemovePlayer(id int) {
	delete(w.players, id)
}

// UpdatePowerup inserts or replaces the powerup with p.ID. Nil is ignored.
func (w *World) UpdatePowerup(p *model.Powerup) {
	if p == nil {
		return
	}
	w.powerups[p.ID] = p
}

// RemovePowerup deletes the powerup with id, if present.
func (w *World) RemovePowerup(id int) {
	delete(w.powerups, id)
}

// AddWall inserts wl unless a wall with the same ID exists.
// Returns true if the wall was inserted.
func (w *World) AddWall(wl *model.Wall) bool {
	if wl == nil {
		return false
	}
	if _, ok := w.walls[wl.ID]; ok {
		return false
	}
	w.walls[wl.ID] = wl
	return true
}

// Player returns the player with id.
func (w *World) Player(id int) (*model.Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Powerup returns the powerup with id.
func (w *World) Powerup(id int) (*model.Powerup, bool) {
	p, ok := w.powerups[id]
	return p, ok
}

// Wall returns the wall with id.
func (w *World) Wall(id int) (*model.Wall, bool) {
	wl, ok := w.walls[id]
	return wl, ok
}

// PlayerCount returns the number of tracked players.
func (w *World) PlayerCount() int { return len(w.players) }

// PowerupCount returns the number of tracked powerups.
func (w *World) PowerupCount() int { return len(w.powerups) }

// WallCount returns the number of tracked walls.
func (w *World) WallCount() int { return len(w.walls) }

// Players returns all players ordered by ID.
func (w *World) Players() []*model.Player {
	return sortedValues(w.players)
}

// Powerups returns all powerups ordered by ID.
func (w *World) Powerups() []*model.Powerup {
	return sortedValues(w.powerups)
}

// Walls returns all walls ordered by ID.
func (w *World) Walls() []*model.Wall {
	return sortedValues(w.walls)
}

// ForEachPlayer calls fn for every player. If fn returns false, iteration stops.
func (w *World) ForEachPlayer(fn func(*model.Player) bool) {
	for _, p := range w.players {
		if !fn(p) {
			return
		}
	}
}

// Step runs one local simulation tick: every player steps against the
// world size, every powerup rolls for expiry, expired powerups are dropped.
// Entities are replaced by stepped copies, so pointers held by a Copy of
// this world, or already handed to observers, never change.
func (w *World) Step() {
	for id, p := range w.players {
		next := p.Copy()
		next.Step(w.size)
		w.players[id] = next
	}
	for id, p := range w.powerups {
		next := p.Copy()
		next.Step()
		if next.Died {
			delete(w.powerups, id)
			continue
		}
		w.powerups[id] = next
	}
}

func sortedValues[T any](m map[int]T) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
