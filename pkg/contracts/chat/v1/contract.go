// Package v1 defines the Ecoblox chat realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// Client -> server operations. The server replies with an envelope of the
	// same type carrying the matching result payload.
	TypeJoinRoom       = "join_room"
	TypeLeaveRoom      = "leave_room"
	TypeSendMessage    = "send_message"
	TypeTypingStart    = "typing_start"
	TypeTypingStop     = "typing_stop"
	TypeMarkAsRead     = "mark_as_read"
	TypeGetUnreadCount = "get_unread_count"

	// Server -> client pushed events.
	TypeMessageReceived = "message_received"
	TypeUserTyping      = "user_typing"
	TypeUserOnline      = "user_online"
	TypeUserOffline     = "user_offline"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeJoinRoom,
		TypeLeaveRoom,
		TypeSendMessage,
		TypeTypingStart,
		TypeTypingStop,
		TypeMarkAsRead,
		TypeGetUnreadCount,
		TypeMessageReceived,
		TypeUserTyping,
		TypeUserOnline,
		TypeUserOffline,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}
