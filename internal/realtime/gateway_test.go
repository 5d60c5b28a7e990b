package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/identity"
	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

type gatewayFixture struct {
	srv       *httptest.Server
	store     *chat.MemoryStore
	roster    *chat.MemoryRoster
	directory *chat.Directory
	presence  *chat.Presence
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := chat.NewMemoryStore()
	roster := chat.NewMemoryRoster()
	users := chat.NewMemoryUserDirectory()

	roster.Assign("s1", "t1")

	directory := chat.NewDirectory(log, store, store, store, roster, users)
	messages := chat.NewMessages(log, store, store)
	presence := chat.NewPresence(log, store)
	unread := chat.NewUnread(log, store, store)

	verifier, err := identity.ParseStaticTokens("tok-t1:t1:teacher:Ms. Finch,tok-s1:s1:student:Ada,tok-x:x1:student:Mallory")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	originRequired := false
	gw := NewGateway(log, Config{
		OriginRequired: &originRequired,
	}, verifier, Services{
		Directory: directory,
		Messages:  messages,
		Presence:  presence,
		Unread:    unread,
	}, NewDispatcher(log, nil), nil)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		srv:       srv,
		store:     store,
		roster:    roster,
		directory: directory,
		presence:  presence,
	}
}

func (f *gatewayFixture) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"ecoblox.chat.v1"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendClientEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: b,
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil skips unrelated broadcast traffic (presence, typing) until an
// envelope of the wanted type arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) v1.Envelope {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", typ, err)
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("timed out waiting for %q", typ)
	return v1.Envelope{}
}

func TestGateway_RejectsInvalidToken(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=not-a-token"
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"ecoblox.chat.v1"},
	})
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	// Missing token behaves identically.
	url = "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	_, resp, err = websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"ecoblox.chat.v1"},
	})
	if err == nil {
		t.Fatalf("expected handshake failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %+v", resp)
	}
}

func TestGateway_PresenceTransitions(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	teacher := f.dial(t, ctx, "tok-t1")

	// The teacher observes its own online event on the global channel.
	env := readUntil(t, ctx, teacher, v1.TypeUserOnline)
	var online v1.PresenceEvent
	if err := json.Unmarshal(env.Payload, &online); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if online.UserID != "t1" {
		t.Fatalf("unexpected online user: %+v", online)
	}

	student := f.dial(t, ctx, "tok-s1")
	env = readUntil(t, ctx, teacher, v1.TypeUserOnline)
	if err := json.Unmarshal(env.Payload, &online); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if online.UserID != "s1" {
		t.Fatalf("expected student online, got %+v", online)
	}

	_ = student.Close(websocket.StatusNormalClosure, "bye")

	env = readUntil(t, ctx, teacher, v1.TypeUserOffline)
	var offline v1.PresenceEvent
	if err := json.Unmarshal(env.Payload, &offline); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if offline.UserID != "s1" {
		t.Fatalf("expected student offline, got %+v", offline)
	}

	// The store converges to offline as well.
	waitFor(t, func() bool {
		rec, err := f.presence.Status(context.Background(), "s1")
		return err == nil && rec != nil && !rec.Online
	})
}

func TestGateway_JoinSendReceiveFlow(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	view, err := f.directory.CreateOrGetDirectRoom(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	roomID := view.Room.ID

	teacher := f.dial(t, ctx, "tok-t1")
	student := f.dial(t, ctx, "tok-s1")

	// Both join the pair room.
	for name, conn := range map[string]*websocket.Conn{"teacher": teacher, "student": student} {
		sendClientEnvelope(t, ctx, conn, v1.TypeJoinRoom, v1.JoinRoomPayload{RoomID: roomID})
		env := readUntil(t, ctx, conn, v1.TypeJoinRoom)

		var res v1.JoinRoomResult
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			t.Fatalf("%s join result: %v", name, err)
		}
		if !res.Success {
			t.Fatalf("%s join failed: %q", name, res.Error)
		}
		if len(res.Messages) != 0 || res.UnreadCount != 0 {
			t.Fatalf("%s expected empty room, got %+v", name, res)
		}
	}

	// The teacher sends; both sides receive the broadcast and the sender
	// additionally gets its result envelope.
	sendClientEnvelope(t, ctx, teacher, v1.TypeSendMessage, v1.SendMessagePayload{
		RoomID:  roomID,
		Message: "good morning",
	})

	env := readUntil(t, ctx, teacher, v1.TypeSendMessage)
	var sent v1.SendMessageResult
	if err := json.Unmarshal(env.Payload, &sent); err != nil {
		t.Fatalf("send result: %v", err)
	}
	if !sent.Success || sent.Message == nil || sent.Message.Body != "good morning" {
		t.Fatalf("unexpected send result: %+v", sent)
	}
	if sent.Message.SenderID != "t1" || sent.Message.SenderName != "Ms. Finch" {
		t.Fatalf("sender snapshot missing: %+v", sent.Message)
	}

	env = readUntil(t, ctx, student, v1.TypeMessageReceived)
	var received v1.Message
	if err := json.Unmarshal(env.Payload, &received); err != nil {
		t.Fatalf("received: %v", err)
	}
	if received.ID != sent.Message.ID || received.Body != "good morning" {
		t.Fatalf("broadcast mismatch: %+v", received)
	}

	// Student's unread count reflects the teacher's message, then resets.
	sendClientEnvelope(t, ctx, student, v1.TypeGetUnreadCount, struct{}{})
	env = readUntil(t, ctx, student, v1.TypeGetUnreadCount)
	var count v1.UnreadCountResult
	if err := json.Unmarshal(env.Payload, &count); err != nil {
		t.Fatalf("unread result: %v", err)
	}
	if !count.Success || count.Count != 1 {
		t.Fatalf("unread: %+v", count)
	}

	sendClientEnvelope(t, ctx, student, v1.TypeMarkAsRead, v1.MarkAsReadPayload{RoomID: roomID})
	env = readUntil(t, ctx, student, v1.TypeMarkAsRead)
	var ack v1.AckResult
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !ack.Success {
		t.Fatalf("mark as read failed: %q", ack.Error)
	}

	sendClientEnvelope(t, ctx, student, v1.TypeGetUnreadCount, struct{}{})
	env = readUntil(t, ctx, student, v1.TypeGetUnreadCount)
	if err := json.Unmarshal(env.Payload, &count); err != nil {
		t.Fatalf("unread result: %v", err)
	}
	if !count.Success || count.Count != 0 {
		t.Fatalf("unread after read: %+v", count)
	}
}

func TestGateway_JoinDeniedForOutsider(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := f.directory.CreateOrGetDirectRoom(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}

	outsider := f.dial(t, ctx, "tok-x")

	sendClientEnvelope(t, ctx, outsider, v1.TypeJoinRoom, v1.JoinRoomPayload{RoomID: view.Room.ID})
	env := readUntil(t, ctx, outsider, v1.TypeJoinRoom)

	var res v1.JoinRoomResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		t.Fatalf("join result: %v", err)
	}
	if res.Success {
		t.Fatalf("outsider join must fail")
	}
	if res.Error != "forbidden room access" {
		t.Fatalf("unexpected error text: %q", res.Error)
	}
}

func TestGateway_TypingExcludesOriginator(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := f.directory.CreateOrGetDirectRoom(context.Background(), "t1", "s1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	roomID := view.Room.ID

	teacher := f.dial(t, ctx, "tok-t1")
	student := f.dial(t, ctx, "tok-s1")

	for _, conn := range []*websocket.Conn{teacher, student} {
		sendClientEnvelope(t, ctx, conn, v1.TypeJoinRoom, v1.JoinRoomPayload{RoomID: roomID})
		readUntil(t, ctx, conn, v1.TypeJoinRoom)
	}

	sendClientEnvelope(t, ctx, student, v1.TypeTypingStart, v1.TypingPayload{RoomID: roomID})

	env := readUntil(t, ctx, teacher, v1.TypeUserTyping)
	var typing v1.UserTypingEvent
	if err := json.Unmarshal(env.Payload, &typing); err != nil {
		t.Fatalf("typing: %v", err)
	}
	if typing.UserID != "s1" || !typing.IsTyping {
		t.Fatalf("unexpected typing event: %+v", typing)
	}

	// The originator only sees the ack, never the broadcast.
	env = readUntil(t, ctx, student, v1.TypeTypingStart)
	var ack v1.AckResult
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !ack.Success {
		t.Fatalf("typing ack failed: %q", ack.Error)
	}

	sendClientEnvelope(t, ctx, student, v1.TypeTypingStop, v1.TypingPayload{RoomID: roomID})
	env = readUntil(t, ctx, teacher, v1.TypeUserTyping)
	if err := json.Unmarshal(env.Payload, &typing); err != nil {
		t.Fatalf("typing stop: %v", err)
	}
	if typing.IsTyping {
		t.Fatalf("expected stop event: %+v", typing)
	}
}

func TestGateway_UnsupportedTypeGetsErrorEnvelope(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "tok-t1")

	// Types outside the contract fail envelope validation.
	sendClientEnvelope(t, ctx, conn, "launch_rocket", struct{}{})
	env := readUntil(t, ctx, conn, v1.TypeError)

	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if p.Code != "bad_envelope" {
		t.Fatalf("unexpected code: %+v", p)
	}

	// Server-push types are valid on the wire but not client operations.
	sendClientEnvelope(t, ctx, conn, v1.TypeMessageReceived, struct{}{})
	env = readUntil(t, ctx, conn, v1.TypeError)
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if p.Code != "unsupported" {
		t.Fatalf("unexpected code: %+v", p)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
