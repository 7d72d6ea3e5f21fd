package geom

import "strconv"

// Point2D is an integer grid position (wall endpoints).
type Point2D struct {
	X int `json:"X"`
	Y int `json:"Y"`
}

// NewPoint creates a Point2D.
func NewPoint(x, y int) Point2D {
	return Point2D{X: x, Y: y}
}

// Add returns p + o.
func (p Point2D) Add(o Point2D) Point2D {
	return Point2D{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p - o.
func (p Point2D) Sub(o Point2D) Point2D {
	return Point2D{X: p.X - o.X, Y: p.Y - o.Y}
}

// Mul scales X by s into both axes, same contract as Vector2D.Mul.
func (p Point2D) Mul(s int) Point2D {
	return Point2D{X: p.X * s, Y: p.X * s}
}

// Vector converts p to a Vector2D.
func (p Point2D) Vector() Vector2D {
	return Vector2D{X: float64(p.X), Y: float64(p.Y)}
}

func (p Point2D) String() string {
	return "(" + strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y) + ")"
}
