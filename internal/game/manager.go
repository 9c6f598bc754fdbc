package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/terra-clan/memgame/internal/catalog"
	"github.com/terra-clan/memgame/internal/models"
	"github.com/terra-clan/memgame/internal/profile"
	"github.com/terra-clan/memgame/internal/storage"
)

// ProfilePath is where a player is sent after clearing the last level
const ProfilePath = "/profile"

// Common errors
var (
	ErrSessionNotFound  = errors.New("game session not found")
	ErrAlreadyCompleted = errors.New("game session already completed")
	ErrMissingData      = errors.New("missing data")
	ErrMalformedPayload = errors.New("invalid JSON")
	ErrStatsRefresh     = errors.New("failed to refresh player statistics")
)

// Manager defines the game session lifecycle
type Manager interface {
	StartSession(ctx context.Context, playerID int64, levelName string) (*StartedSession, error)
	AcknowledgeMove(ctx context.Context, playerID, sessionID int64) error
	EndSession(ctx context.Context, playerID, sessionID int64, payload EndPayload) (*EndResult, error)
}

// StartedSession is a freshly opened round with its board
type StartedSession struct {
	Session *models.GameSession
	Level   models.Level
	Board   []int
}

// EndResult describes a finalized round and where the player goes next
type EndResult struct {
	SessionID int64
	Won       bool
	Duration  int
	Message   string
	// NextLevel is set only when the round was won and another level follows
	NextLevel *models.Level
	// NextURL is empty for lost rounds
	NextURL string
}

// SessionManager implements Manager on top of a repository
type SessionManager struct {
	repo       storage.Repository
	catalog    *catalog.Catalog
	aggregator *profile.Aggregator
	shuffle    ShuffleFunc
	now        func() time.Time
}

// Option configures a SessionManager
type Option func(*SessionManager)

// WithShuffle replaces the board shuffler
func WithShuffle(fn ShuffleFunc) Option {
	return func(m *SessionManager) {
		m.shuffle = fn
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewManager creates a new SessionManager
func NewManager(repo storage.Repository, cat *catalog.Catalog, agg *profile.Aggregator, opts ...Option) *SessionManager {
	m := &SessionManager{
		repo:       repo,
		catalog:    cat,
		aggregator: agg,
		shuffle:    rand.Shuffle,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSession opens a new round of the named level for a player
func (m *SessionManager) StartSession(ctx context.Context, playerID int64, levelName string) (*StartedSession, error) {
	lvl, err := m.catalog.Resolve(levelName)
	if err != nil {
		return nil, err
	}

	session := &models.GameSession{
		PlayerID:  playerID,
		Level:     lvl.Name,
		StartTime: m.now(),
	}
	if err := m.repo.CreateGameSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create game session: %w", err)
	}

	slog.Info("game session started",
		"session_id", session.ID,
		"player_id", playerID,
		"level", lvl.Name,
	)

	return &StartedSession{
		Session: session,
		Level:   lvl,
		Board:   NewBoard(lvl.CardCount, m.shuffle),
	}, nil
}

// AcknowledgeMove accepts a move report. Moves are not validated, the round
// is played on the client.
func (m *SessionManager) AcknowledgeMove(ctx context.Context, playerID, sessionID int64) error {
	session, err := m.repo.GetGameSession(ctx, sessionID, playerID)
	if err != nil {
		return fmt.Errorf("failed to get game session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	slog.Debug("move acknowledged", "session_id", sessionID, "player_id", playerID)
	return nil
}

// EndSession records the result of a round and refreshes the player's
// statistics. When only the refresh fails, the result is returned together
// with an error wrapping ErrStatsRefresh.
func (m *SessionManager) EndSession(ctx context.Context, playerID, sessionID int64, payload EndPayload) (*EndResult, error) {
	report, err := payload.Normalize()
	if err != nil {
		return nil, err
	}

	session, err := m.repo.GetGameSession(ctx, sessionID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsFinalized() {
		return nil, ErrAlreadyCompleted
	}

	end := m.now()
	session.IsWon = &report.Won
	session.Duration = &report.Duration
	session.EndTime = &end
	if report.AttemptsLeft != nil {
		session.AttemptsLeft = report.AttemptsLeft
	}

	if err := m.repo.CompleteGameSession(ctx, session); err != nil {
		if errors.Is(err, storage.ErrSessionCompleted) {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to complete game session: %w", err)
	}

	slog.Info("game session completed",
		"session_id", session.ID,
		"player_id", playerID,
		"level", session.Level,
		"outcome", session.Outcome(),
		"duration", report.Duration,
	)

	result := m.navigate(session.ID, session.Level, report)

	if _, err := m.aggregator.Recompute(ctx, playerID); err != nil {
		return result, fmt.Errorf("%w: %w", ErrStatsRefresh, err)
	}

	return result, nil
}

func (m *SessionManager) navigate(sessionID int64, level string, report Report) *EndResult {
	result := &EndResult{
		SessionID: sessionID,
		Won:       report.Won,
		Duration:  report.Duration,
		Message:   "Game session finished and statistics updated",
	}
	if !report.Won {
		return result
	}

	next, ok := m.catalog.Next(level)
	if !ok {
		result.Message = "All levels completed!"
		result.NextURL = ProfilePath
		return result
	}

	result.NextLevel = &next
	result.NextURL = next.GamePath()
	result.Message = fmt.Sprintf("Level %s cleared. Preparing %s...", level, next.Name)
	return result
}
