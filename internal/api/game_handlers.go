package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/memgame/internal/catalog"
	"github.com/terra-clan/memgame/internal/game"
	"github.com/terra-clan/memgame/internal/models"
)

func endPath(sessionID int64) string {
	return fmt.Sprintf("/game/end/%d", sessionID)
}

func livePath(sessionID int64) string {
	return fmt.Sprintf("/game/ws/%d", sessionID)
}

// Level selection

func (s *Server) handleSelectLevel(w http.ResponseWriter, r *http.Request) {
	levels := s.catalog.Levels()
	infos := make([]models.LevelInfo, 0, len(levels))
	for _, lvl := range levels {
		infos = append(infos, models.LevelInfo{Level: lvl, URL: lvl.GamePath()})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"levels": infos,
		"total":  len(infos),
	})
}

// Game handlers

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	player := PlayerFromContext(r.Context())

	lvl, err := s.catalog.Lookup(chi.URLParam(r, "level"))
	if err != nil {
		http.Redirect(w, r, selectLevelPath, http.StatusSeeOther)
		return
	}

	started, err := s.games.StartSession(r.Context(), player.ID, lvl.Name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownLevel) {
			http.Redirect(w, r, selectLevelPath, http.StatusSeeOther)
			return
		}
		slog.Error("failed to start game", "error", err, "player_id", player.ID, "level", lvl.Name)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to start game")
		return
	}

	id := started.Session.ID
	respondJSON(w, http.StatusOK, models.StartGameResponse{
		Level:           started.Level.Name,
		LevelSlug:       started.Level.Slug,
		InitialAttempts: started.Level.Attempts,
		Cards:           started.Board,
		GameSessionID:   id,
		GameTimeLimit:   started.Level.TimeLimit,
		MoveURL:         movePath,
		EndURL:          endPath(id),
		LiveURL:         livePath(id),
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	player := PlayerFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondGameError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		respondGameError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	raw, ok := fields["session_id"]
	if !ok || raw == nil || raw == "" {
		respondGameError(w, http.StatusBadRequest, "missing session_id")
		return
	}
	sessionID, ok := parseSessionID(raw)
	if !ok {
		respondGameError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	if sessionID <= 0 {
		respondGameError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	if err := s.games.AcknowledgeMove(r.Context(), player.ID, sessionID); err != nil {
		if errors.Is(err, game.ErrSessionNotFound) {
			respondGameError(w, http.StatusNotFound, "game session not found")
			return
		}
		slog.Error("failed to acknowledge move", "error", err, "session_id", sessionID)
		respondGameError(w, http.StatusInternalServerError, "failed to process move")
		return
	}

	respondGame(w, http.StatusOK, models.StatusResponse{Status: statusSuccess, Message: "move processed"})
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	player := PlayerFromContext(r.Context())

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		respondGameError(w, http.StatusNotFound, "game session not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondGameError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	payload, err := game.ParseEndPayload(body)
	if err != nil {
		respondGameError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.games.EndSession(r.Context(), player.ID, sessionID, payload)
	statsUpdated := true
	if err != nil {
		switch {
		case errors.Is(err, game.ErrStatsRefresh) && result != nil:
			// the round is recorded; only the derived statistics are behind
			slog.Error("failed to refresh statistics", "error", err, "session_id", sessionID, "player_id", player.ID)
			statsUpdated = false
		case errors.Is(err, game.ErrMalformedPayload):
			respondGameError(w, http.StatusBadRequest, "invalid JSON")
			return
		case errors.Is(err, game.ErrMissingData):
			respondGameError(w, http.StatusBadRequest, "missing data")
			return
		case errors.Is(err, game.ErrSessionNotFound):
			respondGameError(w, http.StatusNotFound, "game session not found")
			return
		case errors.Is(err, game.ErrAlreadyCompleted):
			respondGameError(w, http.StatusConflict, "game session already completed")
			return
		default:
			slog.Error("failed to end game", "error", err, "session_id", sessionID)
			respondGameError(w, http.StatusInternalServerError, "failed to end game")
			return
		}
	}

	resp := models.EndGameResponse{
		Status:       statusSuccess,
		Message:      result.Message,
		IsWon:        result.Won,
		Duration:     result.Duration,
		SessionID:    result.SessionID,
		StatsUpdated: statsUpdated,
	}
	if result.NextLevel != nil {
		resp.NextLevel = &result.NextLevel.Name
	}
	if result.NextURL != "" {
		resp.NextLevelURL = &result.NextURL
	}

	respondGame(w, http.StatusOK, resp)
}

// Profile

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	player := PlayerFromContext(r.Context())

	ov, err := s.profiles.Overview(r.Context(), player.ID)
	if err != nil {
		slog.Error("failed to load profile", "error", err, "player_id", player.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load profile")
		return
	}

	history := make([]models.SessionView, 0, len(ov.History))
	for _, session := range ov.History {
		history = append(history, session.View())
	}

	respondJSON(w, http.StatusOK, models.ProfileResponse{
		Username:    player.Username,
		Profile:     *ov.Profile,
		GameHistory: history,
		StatsStale:  ov.Stale,
	})
}

// parseSessionID accepts a JSON integer or a string holding one
func parseSessionID(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
