package model

import (
	"math/rand/v2"

	"github.com/udisondev/snakenet/internal/geom"
)

const (
	// DirChangeInterval is the exclusive upper bound of the random
	// countdown (in ticks) between heading changes.
	DirChangeInterval = 300

	// OutOfBoundsMargin is how far past the world edge a head may travel
	// before the snake dies.
	OutOfBoundsMargin = 20

	// MaxNameLength is the longest player name a client may send.
	MaxNameLength = 16
)

// Player is a snake as the server describes it.
// Body[0] is the head, the last element is the tail.
//
// Not safe for concurrent use; the world owner serializes access.
type Player struct {
	ID           int             `json:"snake"`
	Body         []geom.Vector2D `json:"body"`
	Dir          geom.Vector2D   `json:"dir"`
	Name         string          `json:"name"`
	Score        int             `json:"score"`
	Died         bool            `json:"died"`
	Alive        bool            `json:"alive"`
	Disconnected bool            `json:"dc"`
	Joined       bool            `json:"join"`

	rng           *rand.Rand
	frame         int
	nextDirChange int
	scheduled     bool
}

// NewPlayer creates a live snake of length one at (x, y) heading
// (1, 0) rotated by angle degrees.
func NewPlayer(id int, x, y int, angle float64) *Player {
	p := &Player{
		ID:    id,
		Body:  []geom.Vector2D{geom.NewVector(float64(x), float64(y))},
		Dir:   geom.NewVector(1, 0).Rotate(angle),
		Alive: true,
	}
	p.scheduleDirChange()
	return p
}

// SetRand replaces the random source used by Step.
// Nil restores the global source.
func (p *Player) SetRand(r *rand.Rand) {
	p.rng = r
	p.scheduleDirChange()
}

// Head returns the head segment, or the zero vector for an empty body.
func (p *Player) Head() geom.Vector2D {
	if len(p.Body) == 0 {
		return geom.Vector2D{}
	}
	return p.Body[0]
}

// Tail returns the last segment, or the zero vector for an empty body.
func (p *Player) Tail() geom.Vector2D {
	if len(p.Body) == 0 {
		return geom.Vector2D{}
	}
	return p.Body[len(p.Body)-1]
}

// Len returns the number of body segments.
func (p *Player) Len() int {
	return len(p.Body)
}

// Move advances the head by the heading and drops the tail segment.
// Body length is unchanged.
func (p *Player) Move() {
	if len(p.Body) == 0 {
		return
	}
	head := p.Body[0].Add(p.Dir)
	copy(p.Body[1:], p.Body[:len(p.Body)-1])
	p.Body[0] = head
}

// Grow appends a copy of the tail segment.
func (p *Player) Grow() {
	if len(p.Body) == 0 {
		return
	}
	p.Body = append(p.Body, p.Body[len(p.Body)-1])
}

// Rotate turns the heading by degrees, bypassing the random schedule.
func (p *Player) Rotate(degrees float64) {
	p.Dir = p.Dir.Rotate(degrees)
}

// Step runs one simulation tick against a square world of the given side:
// maybe rotate (when the countdown elapses), move, then bounds-check.
// A head outside [-OutOfBoundsMargin, size+OutOfBoundsMargin] on either
// axis kills the snake. A dead snake keeps turning and moving; Alive stays
// false and Died is set only on the tick of death.
func (p *Player) Step(size int) {
	wasDead := !p.Alive
	if wasDead {
		p.Died = false
	}
	if !p.scheduled {
		p.scheduleDirChange()
	}

	if p.frame == p.nextDirChange {
		p.frame = 0
		p.nextDirChange = p.randIntN(DirChangeInterval)
		p.Dir = p.Dir.Rotate(p.randFloat() * 360)
	}

	p.Move()

	if !wasDead && outOfBounds(p.Head(), size) {
		p.Alive = false
		p.Died = true
	}

	p.frame++
}

// Copy returns a deep copy of p sharing the random source.
func (p *Player) Copy() *Player {
	c := *p
	c.Body = append([]geom.Vector2D(nil), p.Body...)
	return &c
}

func (p *Player) scheduleDirChange() {
	p.frame = 0
	p.nextDirChange = p.randIntN(DirChangeInterval)
	p.scheduled = true
}

func (p *Player) randIntN(n int) int {
	if p.rng != nil {
		return p.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (p *Player) randFloat() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}

func outOfBounds(head geom.Vector2D, size int) bool {
	lo := float64(-OutOfBoundsMargin)
	hi := float64(size + OutOfBoundsMargin)
	return head.X < lo || head.X > hi || head.Y < lo || head.Y > hi
}
