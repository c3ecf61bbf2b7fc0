// Package registry tracks live realtime connections per recipient, manages
// channel subscriptions, and queues notifications for recipients who are
// offline. Queued notifications are flushed in FIFO order when the recipient
// reconnects.
package registry

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportwire/reportwire/internal/platform/notify"
)

// Queue overflow policies.
const (
	PolicyDropOldest = "drop-oldest"
	PolicyRejectNew  = "reject-new"
)

// sendBufferSize is the baseline capacity of a session's send channel. Connect
// grows it by the size of the offline flush so queued notifications always fit.
const sendBufferSize = 256

// Event is the envelope for every outbound frame.
type Event struct {
	Type         string                 `json:"type"`
	Channel      string                 `json:"channel,omitempty"`
	Notification *notify.Notification   `json:"notification,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Conn abstracts a realtime connection for testability.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single connected recipient session. A recipient may
// hold several concurrent sessions (multiple tabs or devices).
type Client struct {
	ID       string
	UserID   string
	Roles    []string
	BranchID string
	Send     chan []byte

	channels map[string]struct{}
}

// Stats is a snapshot of registry state.
type Stats struct {
	Connections   int            `json:"connections"`
	Recipients    int            `json:"recipients"`
	Channels      map[string]int `json:"channels"`
	QueuedOffline int            `json:"queued_offline"`
	OfflineQueues int            `json:"offline_queues"`
}

// Registry is the central connection manager. All operations are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{} // channel -> sessions
	byUser   map[string]map[*Client]struct{} // user id -> sessions
	all      map[*Client]struct{}

	offline     map[string][]*notify.Notification // user id -> queued, oldest first
	queueCap    int
	queuePolicy string

	logger zerolog.Logger
}

func New(queueCap int, queuePolicy string, logger zerolog.Logger) *Registry {
	if queueCap <= 0 {
		queueCap = 100
	}
	if queuePolicy != PolicyRejectNew {
		queuePolicy = PolicyDropOldest
	}
	return &Registry{
		channels:    make(map[string]map[*Client]struct{}),
		byUser:      make(map[string]map[*Client]struct{}),
		all:         make(map[*Client]struct{}),
		offline:     make(map[string][]*notify.Notification),
		queueCap:    queueCap,
		queuePolicy: queuePolicy,
		logger:      logger,
	}
}

// UserChannel returns the personal channel name for a recipient.
func UserChannel(userID string) string { return "user:" + userID }

// RoleChannel returns the shared channel name for a role.
func RoleChannel(role string) string { return "role:" + role }

// BranchChannel returns the shared channel name for a branch.
func BranchChannel(branchID string) string { return "branch:" + branchID }

// Connect registers a session and auto-subscribes it to the recipient's
// personal channel plus role and branch channels. The connected event and any
// notifications queued while the recipient was offline are enqueued on the
// session's send channel, oldest first, before Connect returns; because
// Disconnect closes that channel under the same lock, a racing disconnect can
// never drop or panic the flush.
func (r *Registry) Connect(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client.channels = make(map[string]struct{})
	r.all[client] = struct{}{}

	if r.byUser[client.UserID] == nil {
		r.byUser[client.UserID] = make(map[*Client]struct{})
	}
	r.byUser[client.UserID][client] = struct{}{}

	auto := []string{UserChannel(client.UserID)}
	for _, role := range client.Roles {
		auto = append(auto, RoleChannel(role))
	}
	if client.BranchID != "" {
		auto = append(auto, BranchChannel(client.BranchID))
	}
	for _, ch := range auto {
		r.addSubscription(client, ch)
	}

	queued := r.offline[client.UserID]
	delete(r.offline, client.UserID)

	client.Send = make(chan []byte, sendBufferSize+len(queued))

	r.enqueue(client, Event{
		Type:    "connected",
		Channel: UserChannel(client.UserID),
		Data:    map[string]interface{}{"session_id": client.ID, "queued": len(queued)},
	})
	for _, n := range queued {
		r.enqueue(client, Event{
			Type:         "notification",
			Channel:      UserChannel(client.UserID),
			Notification: n,
		})
	}

	r.logger.Debug().
		Str("user_id", client.UserID).
		Int("queued", len(queued)).
		Msg("client connected")
}

// enqueue marshals an event onto a session's send channel. Caller holds mu.
func (r *Registry) enqueue(client *Client, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", client.UserID).Msg("marshal event")
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Disconnect removes a session from every channel and closes its send
// channel. Disconnecting an unknown session is a no-op.
func (r *Registry) Disconnect(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.all[client]; !ok {
		return
	}

	for ch := range client.channels {
		r.removeSubscription(client, ch)
	}

	if sessions, ok := r.byUser[client.UserID]; ok {
		delete(sessions, client)
		if len(sessions) == 0 {
			delete(r.byUser, client.UserID)
		}
	}

	delete(r.all, client)
	close(client.Send)
}

func (r *Registry) addSubscription(client *Client, channel string) {
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[*Client]struct{})
	}
	r.channels[channel][client] = struct{}{}
	client.channels[channel] = struct{}{}
}

func (r *Registry) removeSubscription(client *Client, channel string) {
	if subscribers, ok := r.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(r.channels, channel)
		}
	}
	delete(client.channels, channel)
}

// CanSubscribe reports whether the session's identity permits subscribing to
// a channel. Personal channels are restricted to their owner, role channels
// to holders of the role, and branch channels to members of the branch.
// Admins may subscribe to anything.
func CanSubscribe(client *Client, channel string) bool {
	for _, role := range client.Roles {
		if role == "admin" {
			return true
		}
	}

	switch {
	case strings.HasPrefix(channel, "user:"):
		return channel == UserChannel(client.UserID)
	case strings.HasPrefix(channel, "role:"):
		for _, role := range client.Roles {
			if channel == RoleChannel(role) {
				return true
			}
		}
		return false
	case strings.HasPrefix(channel, "branch:"):
		return client.BranchID != "" && channel == BranchChannel(client.BranchID)
	default:
		return false
	}
}

// Subscribe adds the session to a channel. It does not check authorization;
// callers gate with CanSubscribe first.
func (r *Registry) Subscribe(client *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.all[client]; !ok {
		return
	}
	r.addSubscription(client, channel)
}

// Unsubscribe removes the session from a channel.
func (r *Registry) Unsubscribe(client *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeSubscription(client, channel)
}

// Publish sends an event to every session subscribed to the channel and
// returns the number of sessions reached. Sessions with a full send buffer
// are skipped rather than blocked on.
func (r *Registry) Publish(channel string, event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("channel", channel).Msg("marshal event")
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for client := range r.channels[channel] {
		select {
		case client.Send <- data:
			delivered++
		default:
			// Session buffer full; skip to avoid blocking.
		}
	}
	return delivered
}

// NotifyRecipient delivers a notification to a recipient's live sessions, or
// queues it for later delivery when no session is connected. Returns true
// when at least one live session received it.
func (r *Registry) NotifyRecipient(userID string, n *notify.Notification) bool {
	event := Event{
		Type:         "notification",
		Channel:      UserChannel(userID),
		Notification: n,
		Timestamp:    time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("marshal notification")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		r.enqueueOffline(userID, n)
		return false
	}

	delivered := false
	for client := range sessions {
		select {
		case client.Send <- data:
			delivered = true
		default:
		}
	}
	if !delivered {
		r.enqueueOffline(userID, n)
	}
	return delivered
}

// enqueueOffline appends to the recipient's offline queue, applying the
// configured overflow policy when the queue is at capacity. Caller holds mu.
func (r *Registry) enqueueOffline(userID string, n *notify.Notification) {
	queue := r.offline[userID]
	if len(queue) >= r.queueCap {
		switch r.queuePolicy {
		case PolicyRejectNew:
			r.logger.Warn().
				Str("user_id", userID).
				Str("notification_id", n.ID).
				Msg("offline queue full, dropping new notification")
			return
		default: // drop-oldest
			queue = queue[1:]
		}
	}
	r.offline[userID] = append(queue, n)
}

// QueuedCount returns the number of notifications waiting for a recipient.
func (r *Registry) QueuedCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.offline[userID])
}

// IsOnline reports whether the recipient has at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Stats returns a snapshot of registry state for the stats endpoint.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make(map[string]int, len(r.channels))
	for ch, subscribers := range r.channels {
		channels[ch] = len(subscribers)
	}

	queued := 0
	for _, q := range r.offline {
		queued += len(q)
	}

	return Stats{
		Connections:   len(r.all),
		Recipients:    len(r.byUser),
		Channels:      channels,
		QueuedOffline: queued,
		OfflineQueues: len(r.offline),
	}
}
