package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/memgame/internal/models"
	"github.com/terra-clan/memgame/internal/storage"
)

// Aggregator rebuilds player statistics from their game history
type Aggregator struct {
	repo storage.Repository
	now  func() time.Time
}

// NewAggregator creates a new profile aggregator
func NewAggregator(repo storage.Repository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// Overview is the data behind the profile view
type Overview struct {
	Profile *models.PlayerProfile
	History []*models.GameSession
	// Stale is set when the statistics could not be refreshed and the last
	// stored profile is shown instead.
	Stale bool
}

// Summarize computes the statistics of a player from its sessions. Sessions
// without both an outcome and a duration are ignored. The most played level
// is the first one, in iteration order, to reach the highest count.
func Summarize(playerID int64, sessions []*models.GameSession) models.PlayerProfile {
	p := models.PlayerProfile{
		PlayerID:        playerID,
		MostPlayedLevel: models.NoLevelPlayed,
	}

	counts := make(map[string]int)
	var order []string
	var total int

	for _, s := range sessions {
		if !s.IsCompleted() {
			continue
		}

		p.GamesPlayed++
		if *s.IsWon {
			p.TotalWins++
		} else {
			p.TotalLosses++
		}
		total += *s.Duration

		if _, seen := counts[s.Level]; !seen {
			order = append(order, s.Level)
		}
		counts[s.Level]++
	}

	if p.GamesPlayed == 0 {
		return p
	}

	p.AvgDuration = float64(total) / float64(p.GamesPlayed)

	best := 0
	for _, level := range order {
		if counts[level] > best {
			best = counts[level]
			p.MostPlayedLevel = level
		}
	}

	return p
}

// Recompute rebuilds and persists the profile of a player. Calling it again
// without new completed sessions yields the same statistics.
func (a *Aggregator) Recompute(ctx context.Context, playerID int64) (*models.PlayerProfile, error) {
	sessions, err := a.repo.ListCompletedGameSessions(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed sessions: %w", err)
	}

	p := Summarize(playerID, sessions)
	p.UpdatedAt = a.now()

	if err := a.repo.SaveProfile(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	slog.Debug("profile recomputed",
		"player_id", playerID,
		"games_played", p.GamesPlayed,
		"wins", p.TotalWins,
		"losses", p.TotalLosses,
	)

	return &p, nil
}

// Overview recomputes the profile and returns it with the full history,
// newest session first. A failed recompute falls back to the stored profile.
func (a *Aggregator) Overview(ctx context.Context, playerID int64) (*Overview, error) {
	ov := &Overview{}

	p, err := a.Recompute(ctx, playerID)
	if err != nil {
		slog.Error("failed to recompute profile", "error", err, "player_id", playerID)

		p, err = a.repo.GetProfile(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		if p == nil {
			p = models.NewPlayerProfile(playerID)
		}
		ov.Stale = true
	}
	ov.Profile = p

	history, err := a.repo.ListGameSessions(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game history: %w", err)
	}
	ov.History = history

	return ov, nil
}
