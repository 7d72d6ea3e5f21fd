package client

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/udisondev/snakenet/internal/model"
)

// Session identifies one connection lifetime, from Connect to teardown.
type Session struct {
	ID         uuid.UUID
	PlayerName string
	ServerAddr string
	StartedAt  time.Time
}

// ValidateName checks a player name before any network activity.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > model.MaxNameLength {
		return ErrNameTooLong
	}
	if strings.ContainsAny(name, "\r\n") {
		return ErrNameInvalid
	}
	return nil
}
