package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/reportwire/reportwire/internal/platform/auth"
)

// ClientMessage is an inbound frame from a realtime client.
type ClientMessage struct {
	Type           string `json:"type"`
	Channel        string `json:"channel,omitempty"`
	DistributionID string `json:"distributionId,omitempty"`
	IsTyping       bool   `json:"isTyping,omitempty"`
}

// MarkReadFunc records that a recipient has read a distribution.
type MarkReadFunc func(ctx context.Context, userID, distributionID string) error

// markReadTimeout bounds the database round-trip triggered by a mark_read
// frame so a slow store cannot stall the read pump indefinitely.
const markReadTimeout = 5 * time.Second

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections to WebSocket and routes inbound frames.
type Handler struct {
	registry *Registry
	markRead MarkReadFunc
	logger   zerolog.Logger
}

func NewHandler(registry *Registry, markRead MarkReadFunc, logger zerolog.Logger) *Handler {
	return &Handler{registry: registry, markRead: markRead, logger: logger}
}

// RegisterRoutes registers the realtime endpoints on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
	g.GET("/ws/stats", h.HandleStats)
}

// HandleStats returns a snapshot of connection and queue state.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Stats())
}

// HandleConnect upgrades the connection, registers the session, flushes any
// notifications queued while the recipient was offline, and starts the
// read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Roles:    auth.RolesFromContext(ctx),
		BranchID: auth.BranchIDFromContext(ctx),
	}

	// Connect enqueues the connected event and the offline flush on the send
	// channel before the pumps start, so an immediate peer disconnect cannot
	// lose them.
	h.registry.Connect(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

func (h *Handler) send(client *Client, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.registry.Disconnect(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed frames.
		}

		h.process(client, msg)
	}
}

func (h *Handler) process(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "ping":
		h.send(client, Event{Type: "pong"})

	case "subscribe":
		if msg.Channel == "" {
			return
		}
		if !CanSubscribe(client, msg.Channel) {
			h.send(client, Event{
				Type:    "error",
				Channel: msg.Channel,
				Data:    map[string]interface{}{"reason": "subscription not permitted"},
			})
			return
		}
		h.registry.Subscribe(client, msg.Channel)
		h.send(client, Event{Type: "subscribed", Channel: msg.Channel})

	case "unsubscribe":
		if msg.Channel == "" {
			return
		}
		h.registry.Unsubscribe(client, msg.Channel)
		h.send(client, Event{Type: "unsubscribed", Channel: msg.Channel})

	case "mark_read":
		if msg.DistributionID == "" || h.markRead == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		err := h.markRead(ctx, client.UserID, msg.DistributionID)
		cancel()
		if err != nil {
			h.logger.Error().Err(err).
				Str("user_id", client.UserID).
				Str("distribution_id", msg.DistributionID).
				Msg("mark distribution read")
			return
		}
		h.send(client, Event{
			Type: "read_ack",
			Data: map[string]interface{}{"distributionId": msg.DistributionID},
		})

	case "typing":
		if msg.Channel == "" || !CanSubscribe(client, msg.Channel) {
			return
		}
		h.registry.Publish(msg.Channel, Event{
			Type:    "typing",
			Channel: msg.Channel,
			Data:    map[string]interface{}{"user_id": client.UserID, "isTyping": msg.IsTyping},
		})
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
