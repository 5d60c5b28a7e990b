// Package main provides a CI-friendly WebSocket smoke test for the chat
// realtime gateway.
//
// It validates:
//   - room provisioning through the REST surface
//   - handshake + subprotocol selection + bearer auth
//   - join_room result with history and unread count
//   - send_message result and message_received fanout
//   - typing indicator fanout (excluding the originator)
//   - mark_as_read + get_unread_count convergence
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

const (
	defaultSubprotocol = "ecoblox.chat.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL        = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		apiURL       = flag.String("api", "http://127.0.0.1:8080", "REST base URL")
		origin       = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		teacherToken = flag.String("teacher-token", "tok-t1", "Teacher bearer token")
		studentToken = flag.String("student-token", "tok-s1", "Student bearer token")
		studentID    = flag.String("student", "s1", "Student ID for room provisioning")
		text         = flag.String("text", "hello class 👋", "Message text to send")
		timeout      = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	roomID := mustEnsureRoom(root, *apiURL, *teacherToken, *studentID, *timeout)
	if *verbose {
		fmt.Printf("room provisioned: %s\n", roomID)
	}

	teacher := mustConnect(root, "teacher", *wsURL, *origin, *teacherToken, *timeout)
	defer closeWS(teacher.conn)

	student := mustConnect(root, "student", *wsURL, *origin, *studentToken, *timeout)
	defer closeWS(student.conn)

	mustJoin(root, teacher, roomID, *timeout)
	mustJoin(root, student, roomID, *timeout)

	msgID := mustSendAndAssertResult(root, teacher, roomID, *text, *timeout)
	mustAssertReceived(root, student, roomID, msgID, *text, *timeout)

	mustTypingFanout(root, student, teacher, roomID, *timeout)

	mustMarkRead(root, student, roomID, *timeout)
	mustUnreadCount(root, student, 0, *timeout)

	fmt.Printf("OK: room_id=%s message_id=%s\n", roomID, msgID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustEnsureRoom(parent context.Context, apiURL, teacherToken, studentID string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"studentId": studentID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiURL, "/")+"/api/chat/rooms/direct", bytes.NewReader(body))
	if err != nil {
		fatalf("build ensure-room request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+teacherToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("ensure room: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatalf("ensure room: status=%d body=%s", resp.StatusCode, raw)
	}

	var out struct {
		Room struct {
			ID string `json:"id"`
		} `json:"room"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		fatalf("decode ensure-room response: %v", err)
	}
	if strings.TrimSpace(out.Room.ID) == "" {
		fatalf("ensure room: missing room id in %s", raw)
	}
	return out.Room.ID
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	// The gateway announces the connection on the global channel; wait for
	// our own online event so both sides are known subscribed.
	c.mustReadUntilType(parent, v1.TypeUserOnline, stepTimeout, allBroadcastTypes())

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func allBroadcastTypes() map[string]struct{} {
	return map[string]struct{}{
		v1.TypeMessageReceived: {},
		v1.TypeUserTyping:      {},
		v1.TypeUserOnline:      {},
		v1.TypeUserOffline:     {},
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustJoin(parent context.Context, c *smokeClient, roomID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeJoinRoom,
		ID:      fmt.Sprintf("%s-join", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.JoinRoomPayload{RoomID: roomID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeJoinRoom, stepTimeout, allBroadcastTypes())

	var p v1.JoinRoomResult
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		fatalf("unmarshal join result (%s): %v", c.name, err)
	}
	if !p.Success {
		fatalf("join failed (%s): %s", c.name, p.Error)
	}
}

func mustSendAndAssertResult(parent context.Context, c *smokeClient, roomID, text string, stepTimeout time.Duration) string {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeSendMessage,
		ID:   fmt.Sprintf("%s-send-%d", c.name, time.Now().UnixNano()),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.SendMessagePayload{
			RoomID:  roomID,
			Message: text,
		}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeSendMessage, stepTimeout, allBroadcastTypes())

	var p v1.SendMessageResult
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		fatalf("unmarshal send result (%s): %v", c.name, err)
	}
	if !p.Success || p.Message == nil {
		fatalf("send failed (%s): %s", c.name, p.Error)
	}
	if p.Message.Body != text {
		fatalf("send result text mismatch (%s): got=%q want=%q", c.name, p.Message.Body, text)
	}
	return p.Message.ID
}

func mustAssertReceived(parent context.Context, c *smokeClient, roomID, msgID, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeMessageReceived, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline:  {},
		v1.TypeUserOffline: {},
		v1.TypeUserTyping:  {},
	})

	var m v1.Message
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		fatalf("unmarshal message_received (%s): %v", c.name, err)
	}
	if m.RoomID != roomID || m.ID != msgID || m.Body != text {
		fatalf("message_received mismatch (%s): %+v", c.name, m)
	}
	if m.SentAt.IsZero() {
		fatalf("message_received missing sentAt (%s)", c.name)
	}
}

func mustTypingFanout(parent context.Context, from, to *smokeClient, roomID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeTypingStart,
		ID:      fmt.Sprintf("%s-typing", from.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.TypingPayload{RoomID: roomID}),
	}
	mustWriteWithTimeout(parent, from.conn, env, stepTimeout)

	reply := from.mustReadUntilType(parent, v1.TypeTypingStart, stepTimeout, allBroadcastTypes())
	var ack v1.AckResult
	if err := json.Unmarshal(reply.Payload, &ack); err != nil {
		fatalf("unmarshal typing ack (%s): %v", from.name, err)
	}
	if !ack.Success {
		fatalf("typing rejected (%s): %s", from.name, ack.Error)
	}

	got := to.mustReadUntilType(parent, v1.TypeUserTyping, stepTimeout, map[string]struct{}{
		v1.TypeUserOnline:  {},
		v1.TypeUserOffline: {},
	})
	var t v1.UserTypingEvent
	if err := json.Unmarshal(got.Payload, &t); err != nil {
		fatalf("unmarshal user_typing (%s): %v", to.name, err)
	}
	if t.RoomID != roomID || !t.IsTyping {
		fatalf("user_typing mismatch (%s): %+v", to.name, t)
	}
}

func mustMarkRead(parent context.Context, c *smokeClient, roomID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMarkAsRead,
		ID:      fmt.Sprintf("%s-read", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.MarkAsReadPayload{RoomID: roomID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeMarkAsRead, stepTimeout, allBroadcastTypes())
	var ack v1.AckResult
	if err := json.Unmarshal(reply.Payload, &ack); err != nil {
		fatalf("unmarshal read ack (%s): %v", c.name, err)
	}
	if !ack.Success {
		fatalf("mark_as_read failed (%s): %s", c.name, ack.Error)
	}
}

func mustUnreadCount(parent context.Context, c *smokeClient, want int, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeGetUnreadCount,
		ID:      fmt.Sprintf("%s-unread", c.name),
		TS:      time.Now().UTC(),
		Payload: json.RawMessage(`{}`),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeGetUnreadCount, stepTimeout, allBroadcastTypes())
	var p v1.UnreadCountResult
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		fatalf("unmarshal unread result (%s): %v", c.name, err)
	}
	if !p.Success {
		fatalf("get_unread_count failed (%s): %s", c.name, p.Error)
	}
	if p.Count != want {
		fatalf("unread count mismatch (%s): got=%d want=%d", c.name, p.Count, want)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
