package distribution

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/reportwire/reportwire/internal/platform/auth"
	"github.com/reportwire/reportwire/internal/platform/kv"
	"github.com/reportwire/reportwire/pkg/pagination"
)

// Rate limit for distribution calls, per authenticated caller.
const (
	distributeLimit  = 30
	distributeWindow = time.Minute
)

type Handler struct {
	svc     *Service
	limiter *kv.Limiter
}

func NewHandler(svc *Service, limiter *kv.Limiter) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Distribution triggers – staff and admin only
	writeGroup := api.Group("", auth.RequireRole("admin", "staff"))
	writeGroup.POST("/reports/distribute", h.Distribute)
	writeGroup.POST("/reports/distribute-to-all", h.DistributeToAll)
	writeGroup.POST("/reports/:distributionId/send-reminder", h.SendReminder)

	// Read and acknowledge endpoints – any authenticated role
	readGroup := api.Group("", auth.RequireRole("admin", "staff", "doctor"))
	readGroup.GET("/reports/distributions", h.List)
	readGroup.GET("/reports/distributions/:id", h.Get)
	readGroup.GET("/reports/pending-for-recipient/:recipientId", h.PendingForRecipient)
	readGroup.POST("/reports/:distributionId/acknowledge", h.Acknowledge)
	readGroup.GET("/reports/distribution-summary", h.Summary)
	readGroup.GET("/reports/tracking/:resultId", h.TrackResult)
	readGroup.GET("/reports/recipient-activity/:recipientId", h.RecipientActivity)
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// checkRate applies the per-caller distribution rate limit.
func (h *Handler) checkRate(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	res, err := h.limiter.Check(c.Request().Context(), userID+":distribute", distributeLimit, distributeWindow)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "rate limit check failed")
	}
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.Allowed {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(time.Until(res.ResetAt).Seconds())+1))
		return echo.NewHTTPError(http.StatusTooManyRequests, "distribution rate limit exceeded")
	}
	return nil
}

type distributeRequest struct {
	ResultID     string   `json:"resultId"`
	RecipientIDs []string `json:"recipientIds"`
	Priority     string   `json:"priority"`
	Channels     []string `json:"channels"`
}

type distributeResponse struct {
	DistributionIDs    []string `json:"distributionIds"`
	RecipientsResolved int      `json:"recipientsResolved"`
	RecipientsNotified int      `json:"recipientsNotified"`
	Failed             int      `json:"failed"`
	Warning            string   `json:"warning,omitempty"`
}

func toResponse(res *DistributeResult) distributeResponse {
	resp := distributeResponse{
		DistributionIDs:    make([]string, 0, len(res.Records)),
		RecipientsResolved: res.Resolved,
		RecipientsNotified: res.Notified,
		Failed:             res.Failed,
	}
	for _, r := range res.Records {
		resp.DistributionIDs = append(resp.DistributionIDs, r.ID)
	}
	if res.NoRecipients {
		resp.Warning = "no recipients resolved"
	}
	return resp
}

func (h *Handler) Distribute(c echo.Context) error {
	if err := h.checkRate(c); err != nil {
		return err
	}

	var req distributeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	in := DistributeInput{
		ResultID: req.ResultID,
		Priority: req.Priority,
		Channels: req.Channels,
	}
	for _, raw := range req.RecipientIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid recipient id: "+raw)
		}
		in.RecipientIDs = append(in.RecipientIDs, id)
	}

	res, err := h.svc.Distribute(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

func (h *Handler) DistributeToAll(c echo.Context) error {
	if err := h.checkRate(c); err != nil {
		return err
	}

	var req distributeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.DistributeToAll(c.Request().Context(), req.ResultID, req.Priority, req.Channels)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{}

	if raw := c.QueryParam("recipientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid recipient id")
		}
		f.RecipientID = &id
	}
	f.ResultID = c.QueryParam("resultId")
	f.Status = c.QueryParam("status")
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &t
	}

	p := pagination.FromContext(c)
	f.Limit, f.Offset = p.Limit, p.Offset

	records, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	if records == nil {
		records = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	record, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) PendingForRecipient(c echo.Context) error {
	recipientID, err := uuid.Parse(c.Param("recipientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recipient id")
	}

	res, err := h.svc.PendingForRecipient(c.Request().Context(), recipientID)
	if err != nil {
		return httpError(err)
	}
	if res.Records == nil {
		res.Records = []*Record{}
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	action := c.QueryParam("action")
	if action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action query parameter required")
	}

	record, err := h.svc.Acknowledge(c.Request().Context(), c.Param("distributionId"), action)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    record.Status,
		"timestamp": record.UpdatedAt,
	})
}

func (h *Handler) SendReminder(c echo.Context) error {
	if err := h.svc.SendReminder(c.Request().Context(), c.Param("distributionId")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reminder sent"})
}

func (h *Handler) Summary(c echo.Context) error {
	f := Filter{}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &t
	}

	summary, err := h.svc.Summary(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) TrackResult(c echo.Context) error {
	tracking, err := h.svc.TrackResult(c.Request().Context(), c.Param("resultId"))
	if err != nil {
		return httpError(err)
	}
	if tracking.Records == nil {
		tracking.Records = []*Record{}
	}
	return c.JSON(http.StatusOK, tracking)
}

func (h *Handler) RecipientActivity(c echo.Context) error {
	recipientID, err := uuid.Parse(c.Param("recipientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recipient id")
	}

	days, _ := strconv.Atoi(c.QueryParam("days"))

	activity, err := h.svc.RecipientActivity(c.Request().Context(), recipientID, days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, activity)
}
