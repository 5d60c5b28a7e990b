package api

import (
	"time"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

type roomDTO struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	TeacherID     string     `json:"teacherId"`
	StudentID     string     `json:"studentId"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	IsActive      bool       `json:"isActive"`
}

type participantDTO struct {
	UserID     string    `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
	JoinedAt   time.Time `json:"joinedAt"`
}

type profileDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type roomViewDTO struct {
	Room         roomDTO          `json:"room"`
	Participants []participantDTO `json:"participants"`
	Messages     []v1.Message     `json:"messages"`
}

type teacherRoomDTO struct {
	Room        roomDTO     `json:"room"`
	Student     profileDTO  `json:"student"`
	LastMessage *v1.Message `json:"lastMessage,omitempty"`
}

type roomListDTO struct {
	Rooms []teacherRoomDTO `json:"rooms"`
}

type messagesDTO struct {
	Messages []v1.Message `json:"messages"`
}

type unreadDTO struct {
	UnreadCount int `json:"unreadCount"`
}

type presenceDTO struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ensureRoomRequest struct {
	StudentID string `json:"studentId" validate:"omitempty,min=1,max=128"`
}

func toRoomDTO(r chat.Room) roomDTO {
	dto := roomDTO{
		ID:        r.ID,
		Kind:      r.Kind,
		TeacherID: r.TeacherID,
		StudentID: r.StudentID,
		CreatedAt: r.CreatedAt,
		IsActive:  r.IsActive,
	}
	if !r.LastMessageAt.IsZero() {
		t := r.LastMessageAt
		dto.LastMessageAt = &t
	}
	return dto
}

func toMessageDTO(m chat.Message) v1.Message {
	return v1.Message{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderRole:  string(m.SenderRole),
		Body:        m.Body,
		MessageType: m.Kind,
		SentAt:      m.SentAt,
	}
}

func toMessageDTOs(msgs []chat.Message) []v1.Message {
	out := make([]v1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out
}

func toRoomViewDTO(v chat.RoomView) roomViewDTO {
	parts := make([]participantDTO, 0, len(v.Participants))
	for _, p := range v.Participants {
		parts = append(parts, participantDTO{
			UserID:     p.UserID,
			LastReadAt: p.LastReadAt,
			JoinedAt:   p.JoinedAt,
		})
	}
	return roomViewDTO{
		Room:         toRoomDTO(v.Room),
		Participants: parts,
		Messages:     toMessageDTOs(v.Messages),
	}
}

func toTeacherRoomDTO(tr chat.TeacherRoom) teacherRoomDTO {
	dto := teacherRoomDTO{
		Room: toRoomDTO(tr.Room),
		Student: profileDTO{
			ID:   tr.Student.ID,
			Name: tr.Student.Name,
			Role: string(tr.Student.Role),
		},
	}
	if tr.LastMessage != nil {
		m := toMessageDTO(*tr.LastMessage)
		dto.LastMessage = &m
	}
	return dto
}
