package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
)

// listRooms returns the caller's rooms. Teachers get every direct room they
// own; students get the single room with their assigned teacher.
func (a *API) listRooms(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	switch id.Role {
	case chat.RoleTeacher, chat.RoleAdmin:
		rooms, err := a.svc.Directory.TeacherRooms(reqCtx(c), id.UserID)
		if err != nil {
			return a.coreError(c, err)
		}
		out := roomListDTO{Rooms: make([]teacherRoomDTO, 0, len(rooms))}
		for _, tr := range rooms {
			out.Rooms = append(out.Rooms, toTeacherRoomDTO(tr))
		}
		return c.JSON(http.StatusOK, out)

	case chat.RoleStudent:
		view, err := a.svc.Directory.StudentRoom(reqCtx(c), id.UserID)
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return c.JSON(http.StatusOK, roomListDTO{Rooms: []teacherRoomDTO{}})
			}
			return a.coreError(c, err)
		}
		return c.JSON(http.StatusOK, roomListDTO{Rooms: []teacherRoomDTO{{Room: toRoomDTO(view.Room)}}})

	default:
		return echo.NewHTTPError(http.StatusForbidden, "unknown role")
	}
}

// ensureDirectRoom is the idempotent lookup-or-create endpoint. Teachers pass
// the student id; students always resolve their own assigned teacher and the
// body is ignored for them.
func (a *API) ensureDirectRoom(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var view chat.RoomView
	var err error

	switch id.Role {
	case chat.RoleTeacher, chat.RoleAdmin:
		var req ensureRoomRequest
		if bindErr := c.Bind(&req); bindErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		if valErr := c.Validate(&req); valErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		}
		if strings.TrimSpace(req.StudentID) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing studentId")
		}
		view, err = a.svc.Directory.CreateOrGetDirectRoom(reqCtx(c), id.UserID, strings.TrimSpace(req.StudentID))

	case chat.RoleStudent:
		view, err = a.svc.Directory.StudentRoom(reqCtx(c), id.UserID)

	default:
		return echo.NewHTTPError(http.StatusForbidden, "unknown role")
	}

	if err != nil {
		return a.coreError(c, err)
	}
	return c.JSON(http.StatusOK, toRoomViewDTO(view))
}

// roomMessages returns a chronological history page for the room.
func (a *API) roomMessages(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	roomID := c.Param("id")
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	msgs, err := a.svc.Messages.History(reqCtx(c), roomID, id.UserID, limit, offset)
	if err != nil {
		return a.coreError(c, err)
	}
	return c.JSON(http.StatusOK, messagesDTO{Messages: toMessageDTOs(msgs)})
}

// markRoomRead moves the caller's last-read marker to now. Idempotent.
func (a *API) markRoomRead(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	if err := a.svc.Unread.MarkRead(reqCtx(c), c.Param("id"), id.UserID); err != nil {
		return a.coreError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (a *API) roomUnreadCount(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	n, err := a.svc.Unread.RoomUnread(reqCtx(c), c.Param("id"), id.UserID)
	if err != nil {
		return a.coreError(c, err)
	}
	return c.JSON(http.StatusOK, unreadDTO{UnreadCount: n})
}

func (a *API) totalUnreadCount(c echo.Context) error {
	id, ok := callerIdentity(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	n, err := a.svc.Unread.TotalUnread(reqCtx(c), id.UserID)
	if err != nil {
		return a.coreError(c, err)
	}
	return c.JSON(http.StatusOK, unreadDTO{UnreadCount: n})
}

// userPresence reports another user's online state. Users who never
// connected read as offline with no last-seen time.
func (a *API) userPresence(c echo.Context) error {
	if _, ok := callerIdentity(c); !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	userID := c.Param("userId")
	rec, err := a.svc.Presence.Status(reqCtx(c), userID)
	if err != nil {
		return a.coreError(c, err)
	}

	dto := presenceDTO{UserID: userID}
	if rec != nil {
		dto.Online = rec.Online
		t := rec.LastSeen
		dto.LastSeen = &t
	}
	return c.JSON(http.StatusOK, dto)
}

// coreError maps core sentinel errors to HTTP status codes. Unexpected
// errors are logged and surfaced as a 500 with a generic body.
func (a *API) coreError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, chat.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden room access")
	case errors.Is(err, chat.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		a.log.Error("api.request.fail", "path", c.Path(), "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func queryInt(c echo.Context, name string, def int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
