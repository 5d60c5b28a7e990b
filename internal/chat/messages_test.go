package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMessages_Save_RejectsNonParticipant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	_, err := f.messages.Save(context.Background(), SendInput{
		RoomID: room.ID,
		Sender: teacherIdent("t-other"),
		Body:   "should not land",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	history, err := f.messages.History(context.Background(), room.ID, "t1", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no messages, got %d", len(history))
	}
}

func TestMessages_Save_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	cases := []struct {
		name string
		in   SendInput
	}{
		{name: "missing room", in: SendInput{Sender: teacherIdent("t1"), Body: "x"}},
		{name: "missing sender", in: SendInput{RoomID: room.ID, Body: "x"}},
		{name: "empty body", in: SendInput{RoomID: room.ID, Sender: teacherIdent("t1"), Body: "   "}},
		{name: "too long", in: SendInput{RoomID: room.ID, Sender: teacherIdent("t1"), Body: strings.Repeat("a", MaxMessageChars+1)}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := f.messages.Save(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestMessages_Save_DefaultsAndDenormalizedSender(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	msg, err := f.messages.Save(context.Background(), SendInput{
		RoomID: room.ID,
		Sender: Identity{UserID: "t1", Name: "Ms. Finch", Role: RoleTeacher},
		Body:   "  hello  ",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if msg.Body != "hello" {
		t.Fatalf("expected trimmed body, got %q", msg.Body)
	}
	if msg.Kind != MessageKindText {
		t.Fatalf("expected default kind %q, got %q", MessageKindText, msg.Kind)
	}
	if msg.SenderName != "Ms. Finch" || msg.SenderRole != RoleTeacher {
		t.Fatalf("sender snapshot mismatch: %q/%q", msg.SenderName, msg.SenderRole)
	}
	if msg.ID == "" || msg.SentAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %q/%v", msg.ID, msg.SentAt)
	}
}

func TestMessages_Save_BumpsRoomLastMessageAt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	if !room.LastMessageAt.IsZero() {
		t.Fatalf("new room should have no last message time")
	}

	msg := f.mustSend(t, room.ID, teacherIdent("t1"), "first")

	got, err := f.store.RoomByID(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("room by id: %v", err)
	}
	if !got.LastMessageAt.Equal(msg.SentAt) {
		t.Fatalf("last message time not bumped: %v vs %v", got.LastMessageAt, msg.SentAt)
	}
}

func TestMessages_History_ChronologicalAndPaged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	bodies := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, b := range bodies {
		f.mustSend(t, room.ID, studentIdent("s1"), b)
	}

	ctx := context.Background()

	all, err := f.messages.History(ctx, room.ID, "t1", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != len(bodies) {
		t.Fatalf("expected %d messages, got %d", len(bodies), len(all))
	}
	for i := range bodies {
		if all[i].Body != bodies[i] {
			t.Fatalf("position %d: got %q want %q", i, all[i].Body, bodies[i])
		}
		if i > 0 && all[i].SentAt.Before(all[i-1].SentAt) {
			t.Fatalf("history not chronological at %d", i)
		}
	}

	// limit=2 returns the 2 most recent, still oldest-first.
	page, err := f.messages.History(ctx, room.ID, "t1", 2, 0)
	if err != nil {
		t.Fatalf("paged history: %v", err)
	}
	if len(page) != 2 || page[0].Body != "m4" || page[1].Body != "m5" {
		t.Fatalf("unexpected page: %+v", page)
	}

	// offset skips newest messages.
	older, err := f.messages.History(ctx, room.ID, "t1", 2, 2)
	if err != nil {
		t.Fatalf("offset history: %v", err)
	}
	if len(older) != 2 || older[0].Body != "m2" || older[1].Body != "m3" {
		t.Fatalf("unexpected offset page: %+v", older)
	}

	// Non-participants cannot read history.
	if _, err := f.messages.History(ctx, room.ID, "outsider", 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: expected ErrForbidden, got %v", err)
	}
}

func TestMessages_History_TieBreakOnID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	// Two messages with identical timestamps must order by id.
	at := time.Now().UTC().Add(time.Second)
	idA, _ := NewID(at)
	idB, _ := NewID(at.Add(time.Millisecond))
	if idB < idA {
		idA, idB = idB, idA
	}

	ctx := context.Background()
	for _, id := range []string{idB, idA} {
		if err := f.store.Append(ctx, Message{
			ID: id, RoomID: room.ID, SenderID: "s1", Body: "b-" + id, Kind: MessageKindText, SentAt: at,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := f.messages.History(ctx, room.ID, "t1", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 || got[0].ID != idA || got[1].ID != idB {
		t.Fatalf("tie-break order wrong: %+v", got)
	}
}
