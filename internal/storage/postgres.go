package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/terra-clan/memgame/internal/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN         string
	Schema      string
	MaxConns    int32
	MinConns    int32
	MaxLifetime time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func newPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	} else {
		poolConfig.MaxConns = 10 // default
	}

	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	if cfg.Schema != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = pq.QuoteIdentifier(cfg.Schema) + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return pool, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Players ---

// CreatePlayer inserts the player and its empty profile in one transaction
func (r *PostgresRepository) CreatePlayer(ctx context.Context, p *models.Player) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO players (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, p.Username, p.PasswordHash).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create player: %w", err)
	}

	profile := models.NewPlayerProfile(p.ID)
	_, err = tx.Exec(ctx, `
		INSERT INTO player_profiles (player_id, most_played_level)
		VALUES ($1, $2)
	`, profile.PlayerID, profile.MostPlayedLevel)
	if err != nil {
		return fmt.Errorf("failed to create player profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit player: %w", err)
	}

	return nil
}

// GetPlayer retrieves a player by ID
func (r *PostgresRepository) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return r.getPlayer(ctx, "id", id)
}

// GetPlayerByUsername retrieves a player by username
func (r *PostgresRepository) GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error) {
	return r.getPlayer(ctx, "username", username)
}

func (r *PostgresRepository) getPlayer(ctx context.Context, field string, value any) (*models.Player, error) {
	query := fmt.Sprintf(`
		SELECT id, username, password_hash, created_at
		FROM players
		WHERE %s = $1
	`, field)

	var p models.Player
	err := r.pool.QueryRow(ctx, query, value).Scan(&p.ID, &p.Username, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return &p, nil
}

// --- Game sessions ---

const sessionColumns = `id, player_id, level, start_time, end_time, duration, is_won, attempts_left`

// CreateGameSession inserts an open session and fills in its ID
func (r *PostgresRepository) CreateGameSession(ctx context.Context, s *models.GameSession) error {
	query := `
		INSERT INTO game_sessions (player_id, level, start_time)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	if err := r.pool.QueryRow(ctx, query, s.PlayerID, s.Level, s.StartTime).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to create game session: %w", err)
	}

	return nil
}

// GetGameSession retrieves a session owned by playerID
func (r *PostgresRepository) GetGameSession(ctx context.Context, id, playerID int64) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE id = $1 AND player_id = $2
	`

	s, err := scanGameSession(r.pool.QueryRow(ctx, query, id, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get game session: %w", err)
	}

	return s, nil
}

// CompleteGameSession records the result of an open session. Sessions that
// already carry a result are left untouched and ErrSessionCompleted is returned.
func (r *PostgresRepository) CompleteGameSession(ctx context.Context, s *models.GameSession) error {
	query := `
		UPDATE game_sessions
		SET is_won = $3, duration = $4, end_time = $5, attempts_left = COALESCE($6, attempts_left)
		WHERE id = $1 AND player_id = $2 AND is_won IS NULL AND duration IS NULL
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.PlayerID,
		s.IsWon,
		s.Duration,
		nullTime(s.EndTime),
		s.AttemptsLeft,
	)
	if err != nil {
		return fmt.Errorf("failed to complete game session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionCompleted
	}

	return nil
}

// ListGameSessions returns every session of a player, newest first
func (r *PostgresRepository) ListGameSessions(ctx context.Context, playerID int64) ([]*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE player_id = $1
		ORDER BY start_time DESC, id DESC
	`
	return r.listGameSessions(ctx, query, playerID)
}

// ListCompletedGameSessions returns the completed sessions of a player in creation order
func (r *PostgresRepository) ListCompletedGameSessions(ctx context.Context, playerID int64) ([]*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM game_sessions
		WHERE player_id = $1 AND is_won IS NOT NULL AND duration IS NOT NULL
		ORDER BY id ASC
	`
	return r.listGameSessions(ctx, query, playerID)
}

func (r *PostgresRepository) listGameSessions(ctx context.Context, query string, playerID int64) ([]*models.GameSession, error) {
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.GameSession
	for rows.Next() {
		s, err := scanGameSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game sessions: %w", err)
	}

	return sessions, nil
}

func scanGameSession(row pgx.Row) (*models.GameSession, error) {
	var s models.GameSession
	var endTime sql.NullTime
	var duration, attemptsLeft sql.NullInt32
	var isWon sql.NullBool

	err := row.Scan(
		&s.ID,
		&s.PlayerID,
		&s.Level,
		&s.StartTime,
		&endTime,
		&duration,
		&isWon,
		&attemptsLeft,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if duration.Valid {
		d := int(duration.Int32)
		s.Duration = &d
	}
	if isWon.Valid {
		s.IsWon = &isWon.Bool
	}
	if attemptsLeft.Valid {
		a := int(attemptsLeft.Int32)
		s.AttemptsLeft = &a
	}

	return &s, nil
}

// --- Profiles ---

// GetProfile retrieves the stored profile of a player
func (r *PostgresRepository) GetProfile(ctx context.Context, playerID int64) (*models.PlayerProfile, error) {
	query := `
		SELECT player_id, total_wins, total_losses, games_played, avg_duration, most_played_level, updated_at
		FROM player_profiles
		WHERE player_id = $1
	`

	var p models.PlayerProfile
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&p.PlayerID,
		&p.TotalWins,
		&p.TotalLosses,
		&p.GamesPlayed,
		&p.AvgDuration,
		&p.MostPlayedLevel,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// SaveProfile inserts or replaces the profile of a player
func (r *PostgresRepository) SaveProfile(ctx context.Context, p *models.PlayerProfile) error {
	query := `
		INSERT INTO player_profiles (player_id, total_wins, total_losses, games_played, avg_duration, most_played_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id) DO UPDATE
		SET total_wins = EXCLUDED.total_wins,
		    total_losses = EXCLUDED.total_losses,
		    games_played = EXCLUDED.games_played,
		    avg_duration = EXCLUDED.avg_duration,
		    most_played_level = EXCLUDED.most_played_level,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		p.PlayerID,
		p.TotalWins,
		p.TotalLosses,
		p.GamesPlayed,
		p.AvgDuration,
		p.MostPlayedLevel,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

// Helper functions for nullable values

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
