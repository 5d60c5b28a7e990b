package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Unread derives unread counts from message timestamps and each
// participant's last-read marker.
type Unread struct {
	log          *slog.Logger
	participants ParticipantRepository
	messages     MessageRepository
}

// NewUnread constructs an Unread counter.
func NewUnread(log *slog.Logger, participants ParticipantRepository, messages MessageRepository) *Unread {
	return &Unread{log: log, participants: participants, messages: messages}
}

// RoomUnread counts messages in the room authored by others after the
// user's last-read marker. Non-participants get 0 rather than an error;
// this leniency is deliberate and differs from the message operations.
func (u *Unread) RoomUnread(ctx context.Context, roomID, userID string) (int, error) {
	p, err := u.participants.Participant(ctx, roomID, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("check participant: %w", err)
	}

	n, err := u.messages.CountUnread(ctx, roomID, userID, p.LastReadAt)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// TotalUnread sums RoomUnread over every room the user participates in.
func (u *Unread) TotalUnread(ctx context.Context, userID string) (int, error) {
	roomIDs, err := u.participants.RoomIDsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	total := 0
	for _, roomID := range roomIDs {
		n, err := u.RoomUnread(ctx, roomID, userID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// MarkRead sets the user's last-read marker for the room to now.
// Idempotent: repeated calls converge to unread = 0 and never error,
// including when no participant row exists.
func (u *Unread) MarkRead(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return fmt.Errorf("%w: missing room or user id", ErrInvalidInput)
	}

	if err := u.participants.SetLastRead(ctx, roomID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set last read: %w", err)
	}

	u.log.Info("chat.room.read", "room_id", roomID, "user_id", userID)
	return nil
}
