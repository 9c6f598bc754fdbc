package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/memgame/internal/game"
)

const (
	moveMessage  = "move"
	ackMessage   = "ack"
	errorMessage = "error"
)

// newUpgrader accepts same-origin upgrades and the listed origins. A "*"
// entry does not apply here since the upgrade is authenticated by cookie.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			continue
		}
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// LiveMessage is a frame of the live move channel
type LiveMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleMovesWS streams move acknowledgements for one session. Frames are
// acknowledged without touching game state, same as POST /game/move.
func (s *Server) handleMovesWS(w http.ResponseWriter, r *http.Request) {
	player := PlayerFromContext(r.Context())

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		respondGameError(w, http.StatusNotFound, "game session not found")
		return
	}

	if err := s.games.AcknowledgeMove(r.Context(), player.ID, sessionID); err != nil {
		if errors.Is(err, game.ErrSessionNotFound) {
			respondGameError(w, http.StatusNotFound, "game session not found")
			return
		}
		slog.Error("failed to check game session", "error", err, "session_id", sessionID)
		respondGameError(w, http.StatusInternalServerError, "failed to open live channel")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade to websocket", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	slog.Info("live channel connected", "session_id", sessionID, "player_id", player.ID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg LiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if s.sendLiveMessage(conn, LiveMessage{Type: errorMessage, Status: statusError, Message: "invalid JSON"}) != nil {
				break
			}
			continue
		}

		reply := LiveMessage{Type: ackMessage, Status: statusSuccess, Message: "move processed"}
		if msg.Type != moveMessage {
			reply = LiveMessage{Type: errorMessage, Status: statusError, Message: "unknown message type"}
		}
		if s.sendLiveMessage(conn, reply) != nil {
			break
		}
	}

	slog.Info("live channel disconnected", "session_id", sessionID, "player_id", player.ID)
}

func (s *Server) sendLiveMessage(conn *websocket.Conn, msg LiveMessage) error {
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("failed to send live message", "error", err)
		return err
	}
	return nil
}
