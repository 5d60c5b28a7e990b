// Package realtime contains the websocket gateway and broadcast dispatcher
// for the messaging core: connection authentication, presence transitions,
// room channel subscriptions, and event fan-out.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/identity"
	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

const (
	wsSubprotocolV1 = "ecoblox.chat.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Origin is required by default and only localhost is allowed,
	// secure-by-default for dev.
	wsDefaultOriginRequired = true
)

var wsDefaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}

// Config tunes gateway transport behavior. The zero value gets safe defaults.
type Config struct {
	OriginRequired *bool
	AllowedOrigins []string

	// DevInsecure disables TLS verification in websocket.Accept. Dev only.
	DevInsecure bool

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// Services groups the messaging core services the gateway routes into.
type Services struct {
	Directory *chat.Directory
	Messages  *chat.Messages
	Presence  *chat.Presence
	Unread    *chat.Unread
}

// Gateway is the websocket entrypoint. It authenticates each connection via
// the identity verifier, drives presence transitions, and routes validated
// envelopes to the messaging core and the dispatcher.
type Gateway struct {
	log        *slog.Logger
	verifier   identity.Verifier
	svc        Services
	dispatcher Publisher
	metrics    *Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin
	// it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, cfg Config, verifier identity.Verifier, svc Services, dispatcher Publisher, metrics *Metrics) *Gateway {
	g := &Gateway{
		log:        log,
		verifier:   verifier,
		svc:        svc,
		dispatcher: dispatcher,
		metrics:    metrics,
	}

	g.devInsecure = cfg.DevInsecure

	g.originRequired = wsDefaultOriginRequired
	if cfg.OriginRequired != nil {
		g.originRequired = *cfg.OriginRequired
	}
	g.allowedOrigins = cfg.AllowedOrigins
	if len(g.allowedOrigins) == 0 {
		g.allowedOrigins = wsDefaultAllowedOrigins
	}
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = nonZero(cfg.WriteTimeout, wsDefaultWriteTimeout)
	g.readIdleTimeout = nonZero(cfg.ReadIdleTimeout, wsDefaultReadIdle)

	g.sendQueueSize = cfg.SendQueueSize
	if g.sendQueueSize <= 0 {
		g.sendQueueSize = wsDefaultSendQueueSize
	}
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = nonZero(cfg.HeartbeatInterval, heartbeatInterval)
	g.heartbeatTimeout = nonZero(cfg.HeartbeatTimeout, heartbeatTimeout)

	g.rateEvents = cfg.RateEvents
	if g.rateEvents <= 0 {
		g.rateEvents = rateLimitEvents
	}
	g.rateWindow = nonZero(cfg.RateWindow, rateLimitWindow)

	return g
}

func nonZero(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates and upgrades an HTTP request, then runs the
// realtime loop for the connection.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Authenticate before the upgrade: an invalid credential terminates the
	// handshake, no retry at this layer.
	id, err := g.svc.verifyRequest(r.Context(), g.verifier, bearerToken(r))
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connectionID := uuid.NewString()
	client := NewClient(id, connectionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.dispatcher.Subscribe(GlobalChannel, client)
	g.metrics.connectionOpened()
	g.announceOnline(ctx, client)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Membership removal happens before client.Close so broadcasters never
	// hold a pointer to a half-torn-down client.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.dispatcher.DropConnection(connectionID)
			g.announceOffline(client)
			g.metrics.connectionClosed()

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "connection_id", connectionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "connection_id", connectionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "connection_id", connectionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.AllowOp(now, env.Type) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeJoinRoom:
			g.onJoinRoom(ctx, client, env)
		case v1.TypeLeaveRoom:
			g.onLeaveRoom(ctx, client, env)
		case v1.TypeSendMessage:
			g.onSendMessage(ctx, client, env)
		case v1.TypeTypingStart:
			g.onTyping(ctx, client, env, true)
		case v1.TypeTypingStop:
			g.onTyping(ctx, client, env, false)
		case v1.TypeMarkAsRead:
			g.onMarkAsRead(ctx, client, env)
		case v1.TypeGetUnreadCount:
			g.onGetUnreadCount(ctx, client, env)
		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// verifyRequest exists on Services so tests can stub the whole group at once.
func (s Services) verifyRequest(ctx context.Context, verifier identity.Verifier, token string) (chat.Identity, error) {
	if token == "" {
		return chat.Identity{}, fmt.Errorf("missing credential: %w", chat.ErrUnauthorized)
	}
	id, err := verifier.Verify(ctx, token)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("%v: %w", err, chat.ErrUnauthorized)
	}
	return id, nil
}

// ---- presence transitions ----

func (g *Gateway) announceOnline(ctx context.Context, client *Client) {
	if err := g.svc.Presence.SetOnline(ctx, client.Identity.UserID, true, client.ConnectionID); err != nil {
		g.log.Error("ws.presence.online.fail", "user_id", client.Identity.UserID, "err", err)
	}

	env := newEnvelope(v1.TypeUserOnline, v1.PresenceEvent{
		UserID:   client.Identity.UserID,
		UserName: client.Identity.Name,
	})
	// Global presence broadcast: all connections, not just room members.
	g.dispatcher.Publish(GlobalChannel, env)
}

func (g *Gateway) announceOffline(client *Client) {
	// The connection context is being cancelled; the offline write must
	// still land, so use a short independent deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.svc.Presence.SetOnline(ctx, client.Identity.UserID, false, ""); err != nil {
		g.log.Error("ws.presence.offline.fail", "user_id", client.Identity.UserID, "err", err)
	}

	env := newEnvelope(v1.TypeUserOffline, v1.PresenceEvent{
		UserID:   client.Identity.UserID,
		UserName: client.Identity.Name,
	})
	g.dispatcher.Publish(GlobalChannel, env)
}

// ---- operation handlers ----

func (g *Gateway) onJoinRoom(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: "invalid payload"})
		return
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: "missing roomId"})
		return
	}

	ok, err := g.svc.Directory.CanAccessRoom(ctx, roomID, client.Identity.UserID)
	if err != nil {
		g.log.Error("ws.join.fail", "room_id", roomID, "err", err)
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: failText(err)})
		return
	}
	if !ok {
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: "forbidden room access"})
		return
	}

	// Subscribe before reading history: a message persisted while the page
	// loads is still broadcast to this connection. The client may see such a
	// message twice, but a duplicate is cheaper than a gap for a
	// top-to-bottom renderer.
	g.dispatcher.Subscribe(RoomChannel(roomID), client)

	history, err := g.svc.Messages.History(ctx, roomID, client.Identity.UserID, 0, 0)
	if err != nil {
		g.dispatcher.Unsubscribe(RoomChannel(roomID), client.ConnectionID)
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: failText(err)})
		return
	}
	unread, err := g.svc.Unread.RoomUnread(ctx, roomID, client.Identity.UserID)
	if err != nil {
		g.dispatcher.Unsubscribe(RoomChannel(roomID), client.ConnectionID)
		g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{Success: false, Error: failText(err)})
		return
	}

	g.reply(ctx, client, v1.TypeJoinRoom, v1.JoinRoomResult{
		Success:     true,
		Messages:    toWireMessages(history),
		UnreadCount: unread,
	})
}

func (g *Gateway) onLeaveRoom(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.LeaveRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reply(ctx, client, v1.TypeLeaveRoom, v1.AckResult{Success: false, Error: "invalid payload"})
		return
	}

	// Transport-level unsubscribe only; the participant row is untouched.
	g.dispatcher.Unsubscribe(RoomChannel(strings.TrimSpace(p.RoomID)), client.ConnectionID)
	g.reply(ctx, client, v1.TypeLeaveRoom, v1.AckResult{Success: true})
}

func (g *Gateway) onSendMessage(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.SendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reply(ctx, client, v1.TypeSendMessage, v1.SendMessageResult{Success: false, Error: "invalid payload"})
		return
	}

	msg, err := g.svc.Messages.Save(ctx, chat.SendInput{
		RoomID: strings.TrimSpace(p.RoomID),
		Sender: client.Identity,
		Body:   p.Message,
		Kind:   p.MessageType,
	})
	if err != nil {
		g.reply(ctx, client, v1.TypeSendMessage, v1.SendMessageResult{Success: false, Error: failText(err)})
		return
	}

	g.metrics.messageSent()

	wire := toWireMessage(msg)
	g.reply(ctx, client, v1.TypeSendMessage, v1.SendMessageResult{Success: true, Message: &wire})

	// Fan out to every subscriber of the room channel, including the
	// sender's own other connections.
	g.dispatcher.Publish(RoomChannel(msg.RoomID), newEnvelope(v1.TypeMessageReceived, wire))
}

func (g *Gateway) onTyping(ctx context.Context, client *Client, env v1.Envelope, isTyping bool) {
	typ := v1.TypeTypingStop
	if isTyping {
		typ = v1.TypeTypingStart
	}

	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reply(ctx, client, typ, v1.AckResult{Success: false, Error: "invalid payload"})
		return
	}

	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		g.reply(ctx, client, typ, v1.AckResult{Success: false, Error: "missing roomId"})
		return
	}

	// Transient: not persisted, delivered to all other room subscribers.
	g.dispatcher.PublishExcept(RoomChannel(roomID), client.ConnectionID, newEnvelope(v1.TypeUserTyping, v1.UserTypingEvent{
		RoomID:   roomID,
		UserID:   client.Identity.UserID,
		UserName: client.Identity.Name,
		IsTyping: isTyping,
	}))

	g.reply(ctx, client, typ, v1.AckResult{Success: true})
}

func (g *Gateway) onMarkAsRead(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.MarkAsReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reply(ctx, client, v1.TypeMarkAsRead, v1.AckResult{Success: false, Error: "invalid payload"})
		return
	}

	if err := g.svc.Unread.MarkRead(ctx, strings.TrimSpace(p.RoomID), client.Identity.UserID); err != nil {
		g.reply(ctx, client, v1.TypeMarkAsRead, v1.AckResult{Success: false, Error: failText(err)})
		return
	}
	g.reply(ctx, client, v1.TypeMarkAsRead, v1.AckResult{Success: true})
}

func (g *Gateway) onGetUnreadCount(ctx context.Context, client *Client, env v1.Envelope) {
	count, err := g.svc.Unread.TotalUnread(ctx, client.Identity.UserID)
	if err != nil {
		g.reply(ctx, client, v1.TypeGetUnreadCount, v1.UnreadCountResult{Success: false, Error: failText(err)})
		return
	}
	g.reply(ctx, client, v1.TypeGetUnreadCount, v1.UnreadCountResult{Success: true, Count: count})
}

// ---- send helpers ----

func (g *Gateway) reply(ctx context.Context, client *Client, typ string, payload any) {
	if !g.enqueue(ctx, client, newEnvelope(typ, payload)) {
		g.log.Info("ws.reply.drop", "connection_id", client.ConnectionID, "type", typ)
	}
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	_ = g.enqueue(ctx, client, newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg}))
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// failText maps core errors to client-safe failure text. Every failure here
// is non-fatal: the call fails, the connection stays open.
func failText(err error) string {
	switch {
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden room access"
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	case errors.Is(err, chat.ErrInvalidInput):
		return err.Error()
	default:
		return "operation failed"
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload any) v1.Envelope {
	now := time.Now().UTC()
	b, _ := json.Marshal(payload)
	id, _ := chat.NewID(now)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: b,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// toWireMessage converts a persisted message into its wire shape.
func toWireMessage(m chat.Message) v1.Message {
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

func toWireMessages(msgs []chat.Message) []v1.Message {
	out := make([]v1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toWireMessage(m))
	}
	return out
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- credential extraction ----

// bearerToken pulls the credential from the handshake: the Authorization
// header when present, otherwise the "token" query parameter (browser
// websocket clients cannot set headers).
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep this strict: only hosts extracted from
	// the allowlist are accepted. An explicit "*" entry must survive the
	// derivation, otherwise Accept would undo the configured escape hatch
	// after enforceOrigin already honored it.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}
