package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/snakenet/internal/model"
)

// GameRepository хранит игровые сессии и участие игроков в PostgreSQL.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository создаёт новый repository.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// StartGame регистрирует сессию и возвращает её ID.
// Повторный вызов с тем же ключом возвращает существующий ID.
func (r *GameRepository) StartGame(ctx context.Context, key uuid.UUID, start time.Time) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO games (session_key, start_time)
		 VALUES ($1, $2)
		 ON CONFLICT (session_key) DO UPDATE SET session_key = EXCLUDED.session_key
		 RETURNING id`,
		key, start,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("starting game %s: %w", key, err)
	}
	return id, nil
}

// EndGame закрывает сессию и всех ещё не вышедших игроков одной транзакцией.
// Уже закрытые записи не перезаписываются.
func (r *GameRepository) EndGame(ctx context.Context, gameID int64, end time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for game %d: %w", gameID, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "game_id", gameID, "err", err)
		}
	}()

	if _, err := tx.Exec(ctx,
		`UPDATE players SET leave_time = $2 WHERE game_id = $1 AND leave_time IS NULL`,
		gameID, end,
	); err != nil {
		return fmt.Errorf("closing players of game %d: %w", gameID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE games SET end_time = $2 WHERE id = $1 AND end_time IS NULL`,
		gameID, end,
	); err != nil {
		return fmt.Errorf("ending game %d: %w", gameID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for game %d: %w", gameID, err)
	}
	return nil
}

// UpsertPlayer добавляет игрока в сессию или обновляет имя и максимальный счёт.
// max_score никогда не уменьшается, enter_time фиксируется при первой записи.
func (r *GameRepository) UpsertPlayer(ctx context.Context, gameID int64, playerID int, name string, score int, seen time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO players (game_id, player_id, name, max_score, enter_time)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (game_id, player_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   max_score = GREATEST(players.max_score, EXCLUDED.max_score)`,
		gameID, playerID, name, score, seen,
	)
	if err != nil {
		return fmt.Errorf("upserting player %d in game %d: %w", playerID, gameID, err)
	}
	return nil
}

// MarkPlayerLeft записывает время выхода игрока. Повторный вызов ничего не меняет.
func (r *GameRepository) MarkPlayerLeft(ctx context.Context, gameID int64, playerID int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE players SET leave_time = $3
		 WHERE game_id = $1 AND player_id = $2 AND leave_time IS NULL`,
		gameID, playerID, at,
	)
	if err != nil {
		return fmt.Errorf("marking player %d left game %d: %w", playerID, gameID, err)
	}
	return nil
}

// GetGame возвращает сессию по ID.
// Возвращает nil, nil если сессия не найдена.
func (r *GameRepository) GetGame(ctx context.Context, gameID int64) (*model.GameRecord, error) {
	var g model.GameRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_key, start_time, end_time FROM games WHERE id = $1`, gameID,
	).Scan(&g.ID, &g.SessionKey, &g.StartTime, &g.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying game %d: %w", gameID, err)
	}
	return &g, nil
}

// ListGames возвращает все сессии по возрастанию ID.
func (r *GameRepository) ListGames(ctx context.Context) ([]model.GameRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_key, start_time, end_time FROM games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}

	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.GameRecord, error) {
		var g model.GameRecord
		err := row.Scan(&g.ID, &g.SessionKey, &g.StartTime, &g.EndTime)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning games: %w", err)
	}
	return games, nil
}

// ListPlayersByGame возвращает игроков сессии по возрастанию player_id.
func (r *GameRepository) ListPlayersByGame(ctx context.Context, gameID int64) ([]model.PlayerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT game_id, player_id, name, max_score, enter_time, leave_time
		 FROM players WHERE game_id = $1 ORDER BY player_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying players of game %d: %w", gameID, err)
	}

	players, err := pgx.CollectRows(rows, scanPlayer)
	if err != nil {
		return nil, fmt.Errorf("scanning players of game %d: %w", gameID, err)
	}
	return players, nil
}

// ListGamesByPlayer возвращает участие игрока во всех сессиях по возрастанию game_id.
func (r *GameRepository) ListGamesByPlayer(ctx context.Context, playerID int) ([]model.PlayerGameRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.game_id, p.player_id, p.name, p.max_score, g.start_time, g.end_time
		 FROM players p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.player_id = $1
		 ORDER BY p.game_id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("querying games of player %d: %w", playerID, err)
	}

	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PlayerGameRecord, error) {
		var pg model.PlayerGameRecord
		err := row.Scan(&pg.GameID, &pg.PlayerID, &pg.Name, &pg.MaxScore, &pg.GameStart, &pg.GameEnd)
		return pg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning games of player %d: %w", playerID, err)
	}
	return games, nil
}

func scanPlayer(row pgx.CollectableRow) (model.PlayerRecord, error) {
	var p model.PlayerRecord
	err := row.Scan(&p.GameID, &p.PlayerID, &p.Name, &p.MaxScore, &p.EnterTime, &p.LeaveTime)
	return p, err
}
