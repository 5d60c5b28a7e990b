// Package api exposes the companion REST surface for the messaging core.
// Every route requires a verified identity; the websocket gateway remains
// the realtime path and this surface serves page loads and polling clients.
package api

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/identity"
)

// Services groups the core services the REST handlers call into.
type Services struct {
	Directory *chat.Directory
	Messages  *chat.Messages
	Presence  *chat.Presence
	Unread    *chat.Unread
}

// API owns the chat route group.
type API struct {
	log      *slog.Logger
	verifier identity.Verifier
	svc      Services
}

// New constructs the REST API.
func New(log *slog.Logger, verifier identity.Verifier, svc Services) *API {
	return &API{log: log, verifier: verifier, svc: svc}
}

// Register mounts the chat routes under /api/chat on the given echo instance.
func (a *API) Register(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = &requestValidator{v: validator.New()}
	}

	g := e.Group("/api/chat", a.requireIdentity)

	g.GET("/rooms", a.listRooms)
	g.POST("/rooms/direct", a.ensureDirectRoom)
	g.GET("/rooms/:id/messages", a.roomMessages)
	g.POST("/rooms/:id/read", a.markRoomRead)
	g.GET("/rooms/:id/unread-count", a.roomUnreadCount)
	g.GET("/unread-count", a.totalUnreadCount)
	g.GET("/presence/:userId", a.userPresence)
}

// requestValidator adapts go-playground/validator to echo's Validator hook.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}
