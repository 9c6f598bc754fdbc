// Package storagetest provides an in-memory storage.Repository for tests.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/memgame/internal/models"
	"github.com/terra-clan/memgame/internal/storage"
)

// Memory is a storage.Repository backed by maps. It copies records on the
// way in and out so callers cannot mutate stored state.
type Memory struct {
	mu            sync.Mutex
	nextPlayerID  int64
	nextSessionID int64
	players       map[int64]*models.Player
	sessions      map[int64]*models.GameSession
	profiles      map[int64]*models.PlayerProfile

	// FailProfileSave makes SaveProfile fail, simulating a store outage
	// during aggregation. Use SetFailProfileSave once the repository is
	// shared with other goroutines.
	FailProfileSave bool
	// PingErr is returned by Ping
	PingErr error
}

var _ storage.Repository = (*Memory)(nil)

// ErrInjected is returned by operations configured to fail
var ErrInjected = errors.New("injected storage failure")

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		players:  make(map[int64]*models.Player),
		sessions: make(map[int64]*models.GameSession),
		profiles: make(map[int64]*models.PlayerProfile),
	}
}

func (m *Memory) CreatePlayer(_ context.Context, p *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.players {
		if existing.Username == p.Username {
			return storage.ErrUsernameTaken
		}
	}

	m.nextPlayerID++
	p.ID = m.nextPlayerID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	stored := *p
	m.players[p.ID] = &stored
	m.profiles[p.ID] = models.NewPlayerProfile(p.ID)
	return nil
}

func (m *Memory) GetPlayer(_ context.Context, id int64) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *Memory) GetPlayerByUsername(_ context.Context, username string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.players {
		if p.Username == username {
			out := *p
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateGameSession(_ context.Context, s *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSessionID++
	s.ID = m.nextSessionID
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *Memory) GetGameSession(_ context.Context, id, playerID int64) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.PlayerID != playerID {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *Memory) CompleteGameSession(_ context.Context, s *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok || stored.PlayerID != s.PlayerID || stored.IsFinalized() {
		return storage.ErrSessionCompleted
	}

	updated := copySession(stored)
	updated.IsWon = copyPtr(s.IsWon)
	updated.Duration = copyPtr(s.Duration)
	updated.EndTime = copyPtr(s.EndTime)
	if s.AttemptsLeft != nil {
		updated.AttemptsLeft = copyPtr(s.AttemptsLeft)
	}
	m.sessions[s.ID] = updated
	return nil
}

func (m *Memory) ListGameSessions(_ context.Context, playerID int64) ([]*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.sessionsOf(playerID, false)
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.After(result[j].StartTime)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (m *Memory) ListCompletedGameSessions(_ context.Context, playerID int64) ([]*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.sessionsOf(playerID, true)
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) sessionsOf(playerID int64, completedOnly bool) []*models.GameSession {
	var result []*models.GameSession
	for _, s := range m.sessions {
		if s.PlayerID != playerID {
			continue
		}
		if completedOnly && !s.IsCompleted() {
			continue
		}
		result = append(result, copySession(s))
	}
	return result
}

func (m *Memory) GetProfile(_ context.Context, playerID int64) (*models.PlayerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[playerID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *Memory) SaveProfile(_ context.Context, p *models.PlayerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailProfileSave {
		return ErrInjected
	}
	stored := *p
	m.profiles[p.PlayerID] = &stored
	return nil
}

// PutGameSession stores a session as-is, bypassing the normal lifecycle.
// Tests use it to seed history.
func (m *Memory) PutGameSession(s *models.GameSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == 0 {
		m.nextSessionID++
		s.ID = m.nextSessionID
	} else if s.ID > m.nextSessionID {
		m.nextSessionID = s.ID
	}
	m.sessions[s.ID] = copySession(s)
}

// SetFailProfileSave sets FailProfileSave under the repository lock
func (m *Memory) SetFailProfileSave(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailProfileSave = fail
}

// SetPingErr sets PingErr under the repository lock
func (m *Memory) SetPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingErr = err
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *Memory) Close() error {
	return nil
}

func copySession(s *models.GameSession) *models.GameSession {
	out := *s
	out.EndTime = copyPtr(s.EndTime)
	out.Duration = copyPtr(s.Duration)
	out.IsWon = copyPtr(s.IsWon)
	out.AttemptsLeft = copyPtr(s.AttemptsLeft)
	return &out
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
