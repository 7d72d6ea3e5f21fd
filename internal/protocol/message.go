package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/udisondev/snakenet/internal/model"
)

var (
	// ErrUnknownShape is returned for a JSON object carrying none of the known discriminators.
	ErrUnknownShape = errors.New("unrecognized message shape")

	// ErrMalformed is returned when a line is not a JSON object or does not
	// fit the shape its discriminator announces.
	ErrMalformed = errors.New("malformed message")

	// ErrInvalidDirection is returned for a move direction outside the four cardinals.
	ErrInvalidDirection = errors.New("invalid direction")
)

// Discriminator fields. A record is classified by the first one present,
// in this order.
const (
	FieldSnake = "snake"
	FieldPower = "power"
	FieldWall  = "wall"
)

// Kind identifies the entity a streamed record describes.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlayer
	KindPowerup
	KindWall
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindPowerup:
		return "powerup"
	case KindWall:
		return "wall"
	default:
		return "unknown"
	}
}

// Message is a decoded streaming record. Exactly one entity field is set,
// matching Kind.
type Message struct {
	Kind    Kind
	Player  *model.Player
	Powerup *model.Powerup
	Wall    *model.Wall
}

// Sniff classifies a line by its discriminator field without decoding the entity.
func Sniff(line []byte) (Kind, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return KindUnknown, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch {
	case has(fields, FieldSnake):
		return KindPlayer, nil
	case has(fields, FieldPower):
		return KindPowerup, nil
	case has(fields, FieldWall):
		return KindWall, nil
	default:
		return KindUnknown, ErrUnknownShape
	}
}

// Decode classifies line and decodes it into the matching entity.
// On a decode failure the returned Message still carries the sniffed Kind.
func Decode(line []byte) (Message, error) {
	kind, err := Sniff(line)
	if err != nil {
		return Message{Kind: kind}, err
	}

	msg := Message{Kind: kind}
	switch kind {
	case KindPlayer:
		var p model.Player
		err = json.Unmarshal(line, &p)
		msg.Player = &p
	case KindPowerup:
		var p model.Powerup
		err = json.Unmarshal(line, &p)
		msg.Powerup = &p
	case KindWall:
		var w model.Wall
		err = json.Unmarshal(line, &w)
		msg.Wall = &w
	}
	if err != nil {
		return Message{Kind: kind}, fmt.Errorf("%w: decoding %s: %w", ErrMalformed, kind, err)
	}
	return msg, nil
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

// ParseInt parses a handshake line (player ID or world size).
func ParseInt(line string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parsing handshake integer %q: %w", line, err)
	}
	return n, nil
}

// Direction is a cardinal movement command.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	default:
		return false
	}
}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// MoveCommand is the client→server movement record: {"moving":"up"}.
type MoveCommand struct {
	Moving Direction `json:"moving"`
}

// EncodeMove renders the wire form of a move command.
func EncodeMove(d Direction) (string, error) {
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, d)
	}
	b, err := json.Marshal(MoveCommand{Moving: d})
	if err != nil {
		return "", fmt.Errorf("encoding move command: %w", err)
	}
	return string(b), nil
}

// DirectionForKey maps a key name (w/a/s/d or browser arrow keys) to a
// direction. Other keys report false.
func DirectionForKey(key string) (Direction, bool) {
	switch strings.ToLower(key) {
	case "w", "arrowup", "up":
		return Up, true
	case "s", "arrowdown", "down":
		return Down, true
	case "a", "arrowleft", "left":
		return Left, true
	case "d", "arrowright", "right":
		return Right, true
	default:
		return "", false
	}
}
