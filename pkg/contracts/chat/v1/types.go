package v1

import "time"

// Message is the wire representation of a persisted chat message.
// Sender name and role are denormalized at send time for display.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	SenderRole  string    `json:"senderRole"`
	Body        string    `json:"message"`
	MessageType string    `json:"messageType"`
	SentAt      time.Time `json:"sentAt"`
}

// ---- Client -> server payloads ----

// JoinRoomPayload subscribes the connection to a room channel.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// LeaveRoomPayload unsubscribes the connection from a room channel.
// Room membership in the participant sense is untouched.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload requests persisting and broadcasting a message.
type SendMessagePayload struct {
	RoomID      string `json:"roomId"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

// TypingPayload marks the start or stop of a typing indicator.
type TypingPayload struct {
	RoomID string `json:"roomId"`
}

// MarkAsReadPayload advances the caller's read marker for a room.
type MarkAsReadPayload struct {
	RoomID string `json:"roomId"`
}

// ---- Server -> client results ----

// AckResult is the minimal success/failure reply shape.
type AckResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JoinRoomResult carries history and the unread count on success.
type JoinRoomResult struct {
	Success     bool      `json:"success"`
	Messages    []Message `json:"messages,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	Error       string    `json:"error,omitempty"`
}

// SendMessageResult returns the persisted message on success.
type SendMessageResult struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// UnreadCountResult returns the global unread count for the caller.
type UnreadCountResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// ---- Server -> client events ----

// UserTypingEvent is pushed to other subscribers of a room channel.
type UserTypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEvent announces a user going online or offline.
// It is broadcast to every connection, not just room members.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
