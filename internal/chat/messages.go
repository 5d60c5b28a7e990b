package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultHistoryLimit is the history page size when callers pass none.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 200
	// MaxMessageChars limits message body length (runes).
	MaxMessageChars = 4000
)

// Messages persists and retrieves messages for a room, enforcing
// participant-only access.
type Messages struct {
	log          *slog.Logger
	messages     MessageRepository
	participants ParticipantRepository
}

// NewMessages constructs a Messages service.
func NewMessages(log *slog.Logger, messages MessageRepository, participants ParticipantRepository) *Messages {
	return &Messages{log: log, messages: messages, participants: participants}
}

// SendInput describes a message save request. Sender name and role are
// captured from the verified identity at send time and stored denormalized.
type SendInput struct {
	RoomID string
	Sender Identity
	Body   string
	Kind   string
}

// Save persists the message with SentAt = now and atomically bumps the
// room's last-message timestamp. ErrForbidden when the sender is not a
// participant; no partial state on failure.
func (s *Messages) Save(ctx context.Context, in SendInput) (Message, error) {
	body := strings.TrimSpace(in.Body)
	if in.RoomID == "" || in.Sender.UserID == "" {
		return Message{}, fmt.Errorf("%w: missing room or sender id", ErrInvalidInput)
	}
	if body == "" {
		return Message{}, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if len([]rune(body)) > MaxMessageChars {
		return Message{}, fmt.Errorf("%w: message too long (max %d chars)", ErrInvalidInput, MaxMessageChars)
	}

	if err := s.ensureParticipant(ctx, in.RoomID, in.Sender.UserID); err != nil {
		return Message{}, err
	}

	kind := in.Kind
	if kind == "" {
		kind = MessageKindText
	}

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		return Message{}, fmt.Errorf("new message id: %w", err)
	}

	msg := Message{
		ID:         id,
		RoomID:     in.RoomID,
		SenderID:   in.Sender.UserID,
		SenderName: in.Sender.Name,
		SenderRole: in.Sender.Role,
		Body:       body,
		Kind:       kind,
		SentAt:     now,
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	s.log.Info("chat.message.saved", "room_id", msg.RoomID, "message_id", msg.ID, "sender_id", msg.SenderID)
	return msg, nil
}

// History returns non-deleted messages for the room in chronological
// (oldest-first) order. The underlying query pages newest-first; the reorder
// before returning is a hard contract because callers render top-to-bottom.
func (s *Messages) History(ctx context.Context, roomID, userID string, limit, offset int) ([]Message, error) {
	if err := s.ensureParticipant(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	page, err := s.messages.RecentByRoom(ctx, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return reverseChronological(page), nil
}

func (s *Messages) ensureParticipant(ctx context.Context, roomID, userID string) error {
	_, err := s.participants.Participant(ctx, roomID, userID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("user %s in room %s: %w", userID, roomID, ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	return nil
}
