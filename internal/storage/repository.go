package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/memgame/internal/models"
)

var (
	// ErrUsernameTaken is returned when a player with the same username exists
	ErrUsernameTaken = errors.New("username already taken")
	// ErrSessionCompleted is returned when completing a session that is not open
	ErrSessionCompleted = errors.New("game session already completed")
)

// Repository defines the interface for game persistence.
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// Players
	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error)

	// Game sessions
	CreateGameSession(ctx context.Context, s *models.GameSession) error
	GetGameSession(ctx context.Context, id, playerID int64) (*models.GameSession, error)
	CompleteGameSession(ctx context.Context, s *models.GameSession) error
	ListGameSessions(ctx context.Context, playerID int64) ([]*models.GameSession, error)
	ListCompletedGameSessions(ctx context.Context, playerID int64) ([]*models.GameSession, error)

	// Profiles
	GetProfile(ctx context.Context, playerID int64) (*models.PlayerProfile, error)
	SaveProfile(ctx context.Context, p *models.PlayerProfile) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
