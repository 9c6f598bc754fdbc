package models

import (
	"time"
)

// Outcome represents the result of a game session
type Outcome string

const (
	OutcomeUnknown Outcome = "unknown" // Round still in progress
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
)

// OutcomeFromWin maps a win flag to an outcome
func OutcomeFromWin(won bool) Outcome {
	if won {
		return OutcomeWon
	}
	return OutcomeLost
}

// GameSession is one playthrough of a level by a player.
// IsWon and Duration stay nil until the round is reported; once both are set
// the session is completed and never changes again.
type GameSession struct {
	ID           int64      `json:"id"`
	PlayerID     int64      `json:"-"`
	Level        string     `json:"level"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Duration     *int       `json:"duration,omitempty"` // seconds
	IsWon        *bool      `json:"is_won,omitempty"`
	AttemptsLeft *int       `json:"attempts_left,omitempty"`
}

// Outcome returns the tri-state result of the session
func (s *GameSession) Outcome() Outcome {
	if s.IsWon == nil {
		return OutcomeUnknown
	}
	return OutcomeFromWin(*s.IsWon)
}

// IsCompleted returns true once both outcome and duration are recorded
func (s *GameSession) IsCompleted() bool {
	return s.IsWon != nil && s.Duration != nil
}

// IsFinalized returns true if any part of the result has been recorded
func (s *GameSession) IsFinalized() bool {
	return s.IsWon != nil || s.Duration != nil
}

// SessionView is the history entry shown on the profile page
type SessionView struct {
	ID           int64      `json:"id"`
	Level        string     `json:"level"`
	Outcome      Outcome    `json:"outcome"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Duration     *int       `json:"duration,omitempty"`
	AttemptsLeft *int       `json:"attempts_left,omitempty"`
}

// View converts the session into its history representation
func (s *GameSession) View() SessionView {
	return SessionView{
		ID:           s.ID,
		Level:        s.Level,
		Outcome:      s.Outcome(),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Duration:     s.Duration,
		AttemptsLeft: s.AttemptsLeft,
	}
}

// StartGameResponse is returned when a level screen is requested
type StartGameResponse struct {
	Level           string `json:"level"`
	LevelSlug       string `json:"level_slug"`
	InitialAttempts int    `json:"initial_attempts"`
	Cards           []int  `json:"cards"`
	GameSessionID   int64  `json:"game_session_id"`
	GameTimeLimit   int    `json:"game_time_limit"`
	MoveURL         string `json:"move_url"`
	EndURL          string `json:"end_url"`
	LiveURL         string `json:"live_url"`
}

// MoveRequest is the body of a move report
type MoveRequest struct {
	SessionID int64 `json:"session_id"`
}

// EndGameRequest is the body sent by the client when a round ends.
// Both the current shape (result/time_used) and the legacy shape
// (is_won/duration) are accepted.
type EndGameRequest struct {
	Result       string `json:"result,omitempty"`
	Level        string `json:"level,omitempty"`
	TimeUsed     *int   `json:"time_used,omitempty"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
	IsWon        *bool  `json:"is_won,omitempty"`
	Duration     *int   `json:"duration,omitempty"`
}

// EndGameResponse is returned after a round has been recorded
type EndGameResponse struct {
	Status       string  `json:"status"`
	Message      string  `json:"message"`
	IsWon        bool    `json:"is_won"`
	Duration     int     `json:"duration"`
	SessionID    int64   `json:"session_id"`
	NextLevel    *string `json:"next_level"`
	NextLevelURL *string `json:"next_level_url"`
	StatsUpdated bool    `json:"stats_updated"`
}

// StatusResponse is the minimal status/message body used by the game API
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
