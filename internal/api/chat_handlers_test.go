package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/identity"
)

type apiFixture struct {
	e         *echo.Echo
	store     *chat.MemoryStore
	directory *chat.Directory
	messages  *chat.Messages
	presence  *chat.Presence
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := chat.NewMemoryStore()
	roster := chat.NewMemoryRoster()
	users := chat.NewMemoryUserDirectory()

	roster.Assign("s1", "t1")
	users.Put(chat.UserProfile{ID: "t1", Name: "Ms. Finch", Role: chat.RoleTeacher})
	users.Put(chat.UserProfile{ID: "s1", Name: "Ada", Role: chat.RoleStudent})

	directory := chat.NewDirectory(log, store, store, store, roster, users)
	messages := chat.NewMessages(log, store, store)
	presence := chat.NewPresence(log, store)
	unread := chat.NewUnread(log, store, store)

	verifier, err := identity.ParseStaticTokens("tok-t1:t1:teacher:Ms. Finch,tok-s1:s1:student:Ada,tok-x:x1:student:Mallory")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	e := echo.New()
	New(log, verifier, Services{
		Directory: directory,
		Messages:  messages,
		Presence:  presence,
		Unread:    unread,
	}).Register(e)

	return &apiFixture{e: e, store: store, directory: directory, messages: messages, presence: presence}
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAPI_RequiresCredential(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/chat/rooms", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/chat/rooms", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", rec.Code)
	}
}

func TestAPI_EnsureDirectRoom_TeacherIdempotent(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	first := f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-t1", `{"studentId":"s1"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first create: %d %s", first.Code, first.Body.String())
	}
	view1 := decodeJSON[roomViewDTO](t, first)
	if view1.Room.ID == "" || len(view1.Participants) != 2 {
		t.Fatalf("unexpected view: %+v", view1)
	}

	second := f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-t1", `{"studentId":"s1"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second create: %d", second.Code)
	}
	view2 := decodeJSON[roomViewDTO](t, second)
	if view2.Room.ID != view1.Room.ID {
		t.Fatalf("expected same room, got %q and %q", view1.Room.ID, view2.Room.ID)
	}
}

func TestAPI_EnsureDirectRoom_Errors(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	// Unassigned pair.
	rec := f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-t1", `{"studentId":"stranger"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned: got %d", rec.Code)
	}

	// Teachers must name a student.
	rec = f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-t1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing studentId: got %d", rec.Code)
	}
}

func TestAPI_EnsureDirectRoom_StudentResolvesOwnTeacher(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("student ensure: %d %s", rec.Code, rec.Body.String())
	}
	view := decodeJSON[roomViewDTO](t, rec)
	if view.Room.TeacherID != "t1" || view.Room.StudentID != "s1" {
		t.Fatalf("unexpected pair: %+v", view.Room)
	}

	// Students with no assignment have no room.
	rec = f.do(t, http.MethodPost, "/api/chat/rooms/direct", "tok-x", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unassigned student: got %d", rec.Code)
	}
}

func TestAPI_ListRooms(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	view, err := f.directory.CreateOrGetDirectRoom(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}

	if _, err := f.messages.Save(context.Background(), chat.SendInput{
		RoomID: view.Room.ID,
		Sender: chat.Identity{UserID: "s1", Name: "Ada", Role: chat.RoleStudent},
		Body:   "hello teacher",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/chat/rooms", "tok-t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("teacher rooms: %d", rec.Code)
	}
	list := decodeJSON[roomListDTO](t, rec)
	if len(list.Rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(list.Rooms))
	}
	got := list.Rooms[0]
	if got.Student.Name != "Ada" {
		t.Fatalf("student profile: %+v", got.Student)
	}
	if got.LastMessage == nil || got.LastMessage.Body != "hello teacher" {
		t.Fatalf("last message: %+v", got.LastMessage)
	}
	if got.Room.LastMessageAt == nil {
		t.Fatalf("expected lastMessageAt to be set")
	}

	rec = f.do(t, http.MethodGet, "/api/chat/rooms", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("student rooms: %d", rec.Code)
	}
	list = decodeJSON[roomListDTO](t, rec)
	if len(list.Rooms) != 1 || list.Rooms[0].Room.ID != view.Room.ID {
		t.Fatalf("student list mismatch: %+v", list)
	}
}

func TestAPI_MessagesAndUnreadFlow(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	view, err := f.directory.CreateOrGetDirectRoom(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	roomID := view.Room.ID

	for _, body := range []string{"one", "two"} {
		if _, err := f.messages.Save(context.Background(), chat.SendInput{
			RoomID: roomID,
			Sender: chat.Identity{UserID: "t1", Name: "Ms. Finch", Role: chat.RoleTeacher},
			Body:   body,
		}); err != nil {
			t.Fatalf("send %q: %v", body, err)
		}
	}

	// History is chronological.
	rec := f.do(t, http.MethodGet, "/api/chat/rooms/"+roomID+"/messages", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: %d", rec.Code)
	}
	msgs := decodeJSON[messagesDTO](t, rec)
	if len(msgs.Messages) != 2 || msgs.Messages[0].Body != "one" || msgs.Messages[1].Body != "two" {
		t.Fatalf("unexpected history: %+v", msgs.Messages)
	}

	// Outsiders are rejected.
	rec = f.do(t, http.MethodGet, "/api/chat/rooms/"+roomID+"/messages", "tok-x", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider messages: %d", rec.Code)
	}

	// Unread, per room and total.
	rec = f.do(t, http.MethodGet, "/api/chat/rooms/"+roomID+"/unread-count", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("room unread: %d", rec.Code)
	}
	if got := decodeJSON[unreadDTO](t, rec); got.UnreadCount != 2 {
		t.Fatalf("room unread: %+v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/chat/unread-count", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("total unread: %d", rec.Code)
	}
	if got := decodeJSON[unreadDTO](t, rec); got.UnreadCount != 2 {
		t.Fatalf("total unread: %+v", got)
	}

	// Mark read, then counts drop to zero.
	rec = f.do(t, http.MethodPost, "/api/chat/rooms/"+roomID+"/read", "tok-s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/chat/rooms/"+roomID+"/unread-count", "tok-s1", "")
	if got := decodeJSON[unreadDTO](t, rec); got.UnreadCount != 0 {
		t.Fatalf("unread after read: %+v", got)
	}
}

func TestAPI_Presence(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	// Never connected reads as offline.
	rec := f.do(t, http.MethodGet, "/api/chat/presence/s1", "tok-t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("presence unknown: %d", rec.Code)
	}
	got := decodeJSON[presenceDTO](t, rec)
	if got.Online || got.LastSeen != nil {
		t.Fatalf("expected offline with no lastSeen: %+v", got)
	}

	if err := f.presence.SetOnline(context.Background(), "s1", true, "conn-1"); err != nil {
		t.Fatalf("set online: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/chat/presence/s1", "tok-t1", "")
	got = decodeJSON[presenceDTO](t, rec)
	if !got.Online || got.LastSeen == nil {
		t.Fatalf("expected online record: %+v", got)
	}
}
