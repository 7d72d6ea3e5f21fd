package model

import (
	"time"

	"github.com/google/uuid"
)

// GameRecord описывает сохранённую игровую сессию клиента.
// EndTime == nil пока сессия не завершена.
type GameRecord struct {
	ID         int64
	SessionKey uuid.UUID
	StartTime  time.Time
	EndTime    *time.Time
}

// InProgress сообщает, что сессия ещё открыта.
func (g GameRecord) InProgress() bool {
	return g.EndTime == nil
}

// PlayerRecord описывает участие игрока в игровой сессии.
// MaxScore монотонно не убывает, LeaveTime == nil пока игрок в игре.
type PlayerRecord struct {
	GameID    int64
	PlayerID  int
	Name      string
	MaxScore  int
	EnterTime time.Time
	LeaveTime *time.Time
}

// InProgress сообщает, что игрок ещё не покинул сессию.
func (p PlayerRecord) InProgress() bool {
	return p.LeaveTime == nil
}

// PlayerGameRecord описывает участие игрока в сессии вместе со временем самой сессии.
type PlayerGameRecord struct {
	GameID    int64
	PlayerID  int
	Name      string
	MaxScore  int
	GameStart time.Time
	GameEnd   *time.Time
}

// InProgress сообщает, что сессия ещё открыта.
func (p PlayerGameRecord) InProgress() bool {
	return p.GameEnd == nil
}
