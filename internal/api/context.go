package api

import (
	"context"

	"github.com/terra-clan/memgame/internal/models"
)

type contextKey string

const playerContextKey contextKey = "player"

// PlayerFromContext extracts the logged in Player from context
func PlayerFromContext(ctx context.Context) *models.Player {
	player, ok := ctx.Value(playerContextKey).(*models.Player)
	if !ok {
		return nil
	}
	return player
}

// ContextWithPlayer adds the logged in Player to context
func ContextWithPlayer(ctx context.Context, player *models.Player) context.Context {
	return context.WithValue(ctx, playerContextKey, player)
}
