package models

import (
	"time"
)

// NoLevelPlayed is shown as most played level before any round is completed
const NoLevelPlayed = "N/A"

// Player represents a registered account
type Player struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	CreatedAt    time.Time `json:"created_at"`
}

// PlayerProfile holds the aggregated statistics of a player.
// It is derived from the player's completed sessions and rebuilt on demand.
type PlayerProfile struct {
	PlayerID        int64     `json:"-"`
	TotalWins       int       `json:"total_wins"`
	TotalLosses     int       `json:"total_losses"`
	GamesPlayed     int       `json:"games_played"`
	AvgDuration     float64   `json:"avg_time_per_game"`
	MostPlayedLevel string    `json:"most_played_level"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewPlayerProfile returns the empty profile of a freshly created player
func NewPlayerProfile(playerID int64) *PlayerProfile {
	return &PlayerProfile{
		PlayerID:        playerID,
		MostPlayedLevel: NoLevelPlayed,
	}
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next,omitempty"`
}

// RegisterRequest mirrors the classic two-password signup form
type RegisterRequest struct {
	Username  string `json:"username"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// LevelInfo is a level entry of the level selection screen
type LevelInfo struct {
	Level
	URL string `json:"url"`
}

// ProfileResponse is returned by the profile view
type ProfileResponse struct {
	Username    string        `json:"username"`
	Profile     PlayerProfile `json:"profile"`
	GameHistory []SessionView `json:"game_history"`
	// StatsStale is set when the statistics could not be refreshed
	StatsStale bool `json:"stats_stale,omitempty"`
}
