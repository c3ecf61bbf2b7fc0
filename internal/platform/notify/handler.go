package notify

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reportwire/reportwire/internal/platform/auth"
)

const defaultUnreadLimit = 50

// Handler exposes the persisted notification inbox for the authenticated
// recipient.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff", "doctor"))
	g.GET("/notifications", h.ListUnread)
	g.POST("/notifications/:id/read", h.MarkRead)
}

// ListUnread returns the caller's unread notifications, oldest first.
func (h *Handler) ListUnread(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	limit := defaultUnreadLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	notifications, err := h.repo.ListUnread(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}
	if notifications == nil {
		notifications = []*Notification{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkRead marks one of the caller's notifications as read. Marking an
// already-read or unknown notification is a no-op.
func (h *Handler) MarkRead(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "notification id required")
	}

	if err := h.repo.MarkRead(c.Request().Context(), userID, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "read"})
}
