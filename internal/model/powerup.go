package model

import (
	"math/rand/v2"

	"github.com/udisondev/snakenet/internal/geom"
)

// ExpiryOdds is the per-tick chance (1 in ExpiryOdds) that a powerup expires.
const ExpiryOdds = 1000

// Powerup is a consumable item. Died is the terminal flag: once set the
// powerup is inert and the world drops it.
type Powerup struct {
	ID   int           `json:"power"`
	Loc  geom.Vector2D `json:"loc"`
	Died bool          `json:"died"`

	rng *rand.Rand
}

// NewPowerup creates an active powerup at (x, y).
func NewPowerup(id int, x, y int) *Powerup {
	return &Powerup{
		ID:  id,
		Loc: geom.NewVector(float64(x), float64(y)),
	}
}

// SetRand replaces the random source used by Step.
func (p *Powerup) SetRand(r *rand.Rand) {
	p.rng = r
}

// Active reports whether the powerup has not been consumed or expired.
func (p *Powerup) Active() bool {
	return !p.Died
}

// Step gives the powerup a 1/ExpiryOdds chance to expire.
func (p *Powerup) Step() {
	if p.Died {
		return
	}
	var roll int
	if p.rng != nil {
		roll = p.rng.IntN(ExpiryOdds)
	} else {
		roll = rand.IntN(ExpiryOdds)
	}
	if roll == 0 {
		p.Died = true
	}
}

// Copy returns a copy of p sharing the random source.
func (p *Powerup) Copy() *Powerup {
	c := *p
	return &c
}
