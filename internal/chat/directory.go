package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// roomHistoryPage bounds the message page returned with a room lookup.
const roomHistoryPage = 50

// Directory creates and finds the single direct room per (teacher, student)
// pair and manages participant-based access control.
type Directory struct {
	log          *slog.Logger
	rooms        RoomRepository
	participants ParticipantRepository
	messages     MessageRepository
	roster       Roster
	users        UserDirectory
}

// NewDirectory constructs a Directory service.
func NewDirectory(
	log *slog.Logger,
	rooms RoomRepository,
	participants ParticipantRepository,
	messages MessageRepository,
	roster Roster,
	users UserDirectory,
) *Directory {
	return &Directory{
		log:          log,
		rooms:        rooms,
		participants: participants,
		messages:     messages,
		roster:       roster,
		users:        users,
	}
}

// RoomView is a room together with its participants and the latest message
// page in chronological order.
type RoomView struct {
	Room         Room
	Participants []Participant
	Messages     []Message
}

// TeacherRoom annotates a room with the counterpart student's public profile
// and the most recent message.
type TeacherRoom struct {
	Room        Room
	Student     UserProfile
	LastMessage *Message
}

// CreateOrGetDirectRoom is an idempotent lookup-or-create for the pair's room.
// The student must be assigned to the teacher, otherwise ErrForbidden.
func (d *Directory) CreateOrGetDirectRoom(ctx context.Context, teacherID, studentID string) (RoomView, error) {
	if teacherID == "" || studentID == "" {
		return RoomView{}, fmt.Errorf("%w: missing teacher or student id", ErrInvalidInput)
	}

	assigned, err := d.roster.AssignedTeacher(ctx, studentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoomView{}, fmt.Errorf("student %s has no assigned teacher: %w", studentID, ErrForbidden)
		}
		return RoomView{}, fmt.Errorf("resolve assignment: %w", err)
	}
	if assigned != teacherID {
		return RoomView{}, fmt.Errorf("student %s is not assigned to teacher %s: %w", studentID, teacherID, ErrForbidden)
	}

	now := time.Now().UTC()
	room, created, err := d.rooms.EnsureDirectRoom(ctx, teacherID, studentID, now)
	if err != nil {
		return RoomView{}, fmt.Errorf("ensure room: %w", err)
	}

	parts, err := d.participants.ParticipantsByRoom(ctx, room.ID)
	if err != nil {
		return RoomView{}, fmt.Errorf("load participants: %w", err)
	}

	var history []Message
	if !created {
		page, err := d.messages.RecentByRoom(ctx, room.ID, roomHistoryPage, 0)
		if err != nil {
			return RoomView{}, fmt.Errorf("load history: %w", err)
		}
		history = reverseChronological(page)
	}

	d.log.Info("chat.room.ensure",
		"room_id", room.ID, "teacher_id", teacherID, "student_id", studentID, "created", created)

	return RoomView{Room: room, Participants: parts, Messages: history}, nil
}

// StudentRoom resolves the student's assigned teacher and delegates to
// CreateOrGetDirectRoom. ErrNotFound when the student has no teacher.
func (d *Directory) StudentRoom(ctx context.Context, studentID string) (RoomView, error) {
	teacherID, err := d.roster.AssignedTeacher(ctx, studentID)
	if err != nil {
		return RoomView{}, fmt.Errorf("student %s: %w", studentID, err)
	}
	return d.CreateOrGetDirectRoom(ctx, teacherID, studentID)
}

// TeacherRooms returns every direct room owned by the teacher, ordered by
// last message time descending (creation time for empty rooms).
func (d *Directory) TeacherRooms(ctx context.Context, teacherID string) ([]TeacherRoom, error) {
	rooms, err := d.rooms.RoomsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	out := make([]TeacherRoom, 0, len(rooms))
	for _, room := range rooms {
		student, err := d.users.UserByID(ctx, room.StudentID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load student %s: %w", room.StudentID, err)
		}

		last, err := d.messages.LastByRoom(ctx, room.ID)
		if err != nil {
			return nil, fmt.Errorf("load last message: %w", err)
		}

		out = append(out, TeacherRoom{Room: room, Student: student, LastMessage: last})
	}
	return out, nil
}

// CanAccessRoom is the access-control primitive: true iff a participant row
// exists for the pair.
func (d *Directory) CanAccessRoom(ctx context.Context, roomID, userID string) (bool, error) {
	_, err := d.participants.Participant(ctx, roomID, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// reverseChronological flips a newest-first page into oldest-first order.
// Callers render top-to-bottom, so this reordering is part of the contract.
func reverseChronological(msgs []Message) []Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}
