package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/terra-clan/memgame/internal/models"
	"github.com/terra-clan/memgame/internal/storage"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// Common errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("a user with that username already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// ValidationError reports a rejected registration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Session is an issued login
type Session struct {
	Player    *models.Player
	Token     string
	ExpiresAt time.Time
}

// Service handles player accounts and logins
type Service struct {
	repo    storage.Repository
	hasher  *PasswordHasher
	tokens  *TokenManager
	revoker Revoker
}

// NewService creates a new auth Service
func NewService(repo storage.Repository, hasher *PasswordHasher, tokens *TokenManager, revoker Revoker) *Service {
	return &Service{
		repo:    repo,
		hasher:  hasher,
		tokens:  tokens,
		revoker: revoker,
	}
}

// Register validates the form and creates a player with an empty profile
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.Player, error) {
	username := strings.TrimSpace(req.Username)
	if err := validateRegistration(username, req.Password1, req.Password2); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password1)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	player := &models.Player{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.repo.CreatePlayer(ctx, player); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	slog.Info("player registered", "player_id", player.ID, "username", player.Username)
	return player, nil
}

// Authenticate checks a username and password
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.Player, error) {
	player, err := s.repo.GetPlayerByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if player == nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(player.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return player, nil
}

// IssueToken starts a login for an authenticated player
func (s *Service) IssueToken(player *models.Player) (*Session, error) {
	token, claims, err := s.tokens.Generate(player)
	if err != nil {
		return nil, err
	}
	return &Session{
		Player:    player,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify resolves a token to its player. Revoked tokens and tokens of
// deleted players are rejected with ErrInvalidToken.
func (s *Service) Verify(ctx context.Context, token string) (*models.Player, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	playerID, _ := claims.PlayerID()
	player, err := s.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if player == nil {
		return nil, ErrInvalidToken
	}
	return player, nil
}

// Logout revokes a token for the rest of its lifetime. Invalid tokens are
// ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := s.revoker.Revoke(ctx, claims.ID, remaining); err != nil {
		return err
	}

	slog.Info("player logged out", "player_id", claims.Subject)
	return nil
}

func validateRegistration(username, password1, password2 string) error {
	if username == "" {
		return &ValidationError{Field: "username", Message: "this field is required"}
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return &ValidationError{Field: "username", Message: fmt.Sprintf("ensure this value has at most %d characters", maxUsernameLength)}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Message: "enter a valid username: letters, numbers and @/./+/-/_ only"}
	}

	if password1 == "" {
		return &ValidationError{Field: "password1", Message: "this field is required"}
	}
	if password1 != password2 {
		return &ValidationError{Field: "password2", Message: "the two password fields didn't match"}
	}
	if utf8.RuneCountInString(password1) < minPasswordLength {
		return &ValidationError{Field: "password2", Message: fmt.Sprintf("this password is too short, it must contain at least %d characters", minPasswordLength)}
	}
	if len(password1) > maxPasswordBytes {
		return &ValidationError{Field: "password2", Message: "this password is too long"}
	}
	if isNumeric(password1) {
		return &ValidationError{Field: "password2", Message: "this password is entirely numeric"}
	}

	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
