package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

// PGArchive copies accepted events into the webhook_events table.
// The table is created by cmd/migrate.
type PGArchive struct {
	pool *pgxpool.Pool
}

func NewPGArchive(pool *pgxpool.Pool) *PGArchive {
	return &PGArchive{pool: pool}
}

func (a *PGArchive) Archive(ctx context.Context, rec Record, ev types.Event) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, requester_id, conversation_id, user_id, received_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), ev.RequesterID, ev.ConversationID, ev.PrimaryUserID(), rec.Timestamp, rec.Payload)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}
