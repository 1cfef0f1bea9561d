package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/game/room"
)

// GameRecord is a finished room as persisted.
type GameRecord struct {
	ID      int64
	RoomID  string
	Mode    string
	Reason  string
	Moves   int
	EndedAt time.Time
}

// PlayerTotal is a player's score aggregated across finished games.
type PlayerTotal struct {
	PlayerID string
	Games    int
	Total    int
	Best     int
}

// ErrGameNotFound is returned when a game lookup yields no results.
var ErrGameNotFound = errors.New("game not found")

// ScoreRepository persists finished-room results and serves leaderboard
// queries.
type ScoreRepository struct {
	db *pgxpool.Pool
}

// NewScoreRepository creates a ScoreRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewScoreRepository(db *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// RecordResult stores a room result and its per-player scores in one
// transaction.
//
// Postcondition: Returns the new game id, or an error with nothing written.
func (r *ScoreRepository) RecordResult(ctx context.Context, res room.Result) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var gameID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO games (room_id, mode, reason, moves)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		res.RoomID, res.Mode, res.Reason, len(res.Ledger),
	).Scan(&gameID)
	if err != nil {
		return 0, fmt.Errorf("inserting game: %w", err)
	}

	for rank, fs := range res.FinalScores {
		_, err = tx.Exec(ctx,
			`INSERT INTO game_scores (game_id, player_id, score, rank)
			 VALUES ($1, $2, $3, $4)`,
			gameID, fs.PlayerID, fs.Score, rank+1,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting score for %s: %w", fs.PlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing result: %w", err)
	}
	return gameID, nil
}

// GetGame retrieves a persisted game by its room id. When a room id was
// reused across server runs, the most recent game wins.
//
// Postcondition: Returns the GameRecord or ErrGameNotFound.
func (r *ScoreRepository) GetGame(ctx context.Context, roomID string) (GameRecord, error) {
	var g GameRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, room_id, mode, reason, moves, ended_at
		 FROM games WHERE room_id = $1
		 ORDER BY ended_at DESC LIMIT 1`,
		roomID,
	).Scan(&g.ID, &g.RoomID, &g.Mode, &g.Reason, &g.Moves, &g.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameRecord{}, ErrGameNotFound
		}
		return GameRecord{}, fmt.Errorf("querying game: %w", err)
	}
	return g, nil
}

// TopPlayers returns the leaderboard ordered by total score.
//
// Precondition: limit must be >= 1.
func (r *ScoreRepository) TopPlayers(ctx context.Context, limit int) ([]PlayerTotal, error) {
	rows, err := r.db.Query(ctx,
		`SELECT player_id, COUNT(*), COALESCE(SUM(score), 0), COALESCE(MAX(score), 0)
		 FROM game_scores
		 GROUP BY player_id
		 ORDER BY COALESCE(SUM(score), 0) DESC, player_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var totals []PlayerTotal
	for rows.Next() {
		var pt PlayerTotal
		if err := rows.Scan(&pt.PlayerID, &pt.Games, &pt.Total, &pt.Best); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		totals = append(totals, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}
	return totals, nil
}

// ScoreWriter adapts the repository to the registry's end-of-room hook.
// Writes are fire-and-forget with bounded retries; a database outage never
// blocks or fails a room.
type ScoreWriter struct {
	repo    *ScoreRepository
	logger  *zap.Logger
	timeout time.Duration
}

// NewScoreWriter creates a ScoreWriter.
//
// Precondition: repo and logger must be non-nil.
func NewScoreWriter(repo *ScoreRepository, logger *zap.Logger) *ScoreWriter {
	return &ScoreWriter{
		repo:    repo,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Hook returns the function to register with the room registry. The
// registry already runs hooks on their own goroutine, so Hook may block on
// retries.
func (w *ScoreWriter) Hook() func(room.Result) {
	return func(res room.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
		var gameID int64
		err := backoff.Retry(func() error {
			var err error
			gameID, err = w.repo.RecordResult(ctx, res)
			return err
		}, policy)
		if err != nil {
			w.logger.Error("dropping room result after retries",
				zap.String("room", res.RoomID),
				zap.Error(err),
			)
			return
		}
		w.logger.Info("room result persisted",
			zap.String("room", res.RoomID),
			zap.Int64("game_id", gameID),
			zap.Int("players", len(res.FinalScores)),
		)
	}
}
