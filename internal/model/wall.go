package model

import "github.com/udisondev/snakenet/internal/geom"

// Wall is an immutable segment between two grid points.
type Wall struct {
	ID int          `json:"wall"`
	P1 geom.Point2D `json:"p1"`
	P2 geom.Point2D `json:"p2"`
}

// NewWall creates a wall between p1 and p2.
func NewWall(id int, p1, p2 geom.Point2D) *Wall {
	return &Wall{ID: id, P1: p1, P2: p2}
}
