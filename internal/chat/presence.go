package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Presence records online/offline state and last-seen time per user.
type Presence struct {
	log     *slog.Logger
	records PresenceRepository
}

// NewPresence constructs a Presence tracker.
func NewPresence(log *slog.Logger, records PresenceRepository) *Presence {
	return &Presence{log: log, records: records}
}

// SetOnline upserts the user's presence record. LastSeen is refreshed on
// both transitions; last write wins, no history retained.
func (p *Presence) SetOnline(ctx context.Context, userID string, online bool, connectionID string) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}

	rec := PresenceRecord{
		UserID:       userID,
		Online:       online,
		LastSeen:     time.Now().UTC(),
		ConnectionID: connectionID,
	}
	if err := p.records.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}

	p.log.Info("chat.presence.update", "user_id", userID, "online", online, "connection_id", connectionID)
	return nil
}

// Status returns the user's presence record, nil when the user has never
// connected.
func (p *Presence) Status(ctx context.Context, userID string) (*PresenceRecord, error) {
	rec, err := p.records.Presence(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}
	return &rec, nil
}
