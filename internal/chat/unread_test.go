package chat

import (
	"context"
	"testing"
	"time"
)

func TestUnread_CountsOnlyMessagesFromOthers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.mustSend(t, room.ID, teacherIdent("t1"), "from teacher")
	}

	n, err := f.unread.RoomUnread(ctx, room.ID, "s1")
	if err != nil {
		t.Fatalf("student unread: %v", err)
	}
	if n != 3 {
		t.Fatalf("student unread: got %d want 3", n)
	}

	// The sender's own messages never count as unread.
	n, err = f.unread.RoomUnread(ctx, room.ID, "t1")
	if err != nil {
		t.Fatalf("teacher unread: %v", err)
	}
	if n != 0 {
		t.Fatalf("teacher unread: got %d want 0", n)
	}
}

func TestUnread_MarkReadResetsAndNewMessagesCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	ctx := context.Background()

	f.mustSend(t, room.ID, teacherIdent("t1"), "one")
	f.mustSend(t, room.ID, teacherIdent("t1"), "two")

	if err := f.unread.MarkRead(ctx, room.ID, "s1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	n, err := f.unread.RoomUnread(ctx, room.ID, "s1")
	if err != nil {
		t.Fatalf("unread after read: %v", err)
	}
	if n != 0 {
		t.Fatalf("unread after read: got %d want 0", n)
	}

	// Repeated marking stays at zero.
	if err := f.unread.MarkRead(ctx, room.ID, "s1"); err != nil {
		t.Fatalf("mark read again: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	f.mustSend(t, room.ID, teacherIdent("t1"), "three")

	n, err = f.unread.RoomUnread(ctx, room.ID, "s1")
	if err != nil {
		t.Fatalf("unread after new message: %v", err)
	}
	if n != 1 {
		t.Fatalf("unread after new message: got %d want 1", n)
	}
}

func TestUnread_DeletedMessagesExcluded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	ctx := context.Background()

	f.mustSend(t, room.ID, teacherIdent("t1"), "kept")

	at := time.Now().UTC().Add(time.Second)
	id, _ := NewID(at)
	if err := f.store.Append(ctx, Message{
		ID: id, RoomID: room.ID, SenderID: "t1", Body: "removed", Kind: MessageKindText, SentAt: at, Deleted: true,
	}); err != nil {
		t.Fatalf("append deleted: %v", err)
	}

	n, err := f.unread.RoomUnread(ctx, room.ID, "s1")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted message counted: got %d want 1", n)
	}

	history, err := f.messages.History(ctx, room.ID, "s1", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Body != "kept" {
		t.Fatalf("deleted message visible in history: %+v", history)
	}
}

func TestUnread_TotalAcrossRooms(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	f.assign("s2", "t1")

	roomA := f.mustRoom(t, "t1", "s1")
	roomB := f.mustRoom(t, "t1", "s2")

	f.mustSend(t, roomA.ID, studentIdent("s1"), "a1")
	f.mustSend(t, roomA.ID, studentIdent("s1"), "a2")
	f.mustSend(t, roomB.ID, studentIdent("s2"), "b1")

	total, err := f.unread.TotalUnread(context.Background(), "t1")
	if err != nil {
		t.Fatalf("total unread: %v", err)
	}
	if total != 3 {
		t.Fatalf("total unread: got %d want 3", total)
	}

	// Students only see their own room's traffic.
	total, err = f.unread.TotalUnread(context.Background(), "s1")
	if err != nil {
		t.Fatalf("student total: %v", err)
	}
	if total != 0 {
		t.Fatalf("student total: got %d want 0", total)
	}
}

func TestUnread_NonParticipantLenient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign("s1", "t1")
	room := f.mustRoom(t, "t1", "s1")

	f.mustSend(t, room.ID, teacherIdent("t1"), "hello")

	ctx := context.Background()

	n, err := f.unread.RoomUnread(ctx, room.ID, "outsider")
	if err != nil || n != 0 {
		t.Fatalf("outsider unread: n=%d err=%v", n, err)
	}

	// Marking a room the user is not part of is a quiet no-op.
	if err := f.unread.MarkRead(ctx, room.ID, "outsider"); err != nil {
		t.Fatalf("outsider mark read: %v", err)
	}
}
