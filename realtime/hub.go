package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Deduper records message ids and reports whether an id is new. The
// hub drops replayed ids before fan-out.
type Deduper interface {
	Add(ctx context.Context, projectID, messageID string) (bool, error)
}

// RedisDeduper deduplicates across hub instances via SetNX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(projectID, messageID string) string {
	return fmt.Sprintf("ws:%s:%s", projectID, messageID)
}

// Add records the id if it does not already exist. It returns true when
// the id was newly added.
func (r *RedisDeduper) Add(ctx context.Context, projectID, messageID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(projectID, messageID), 1, r.ttl).Result()
}

// MemoryDeduper is a per-process fallback for single-instance
// deployments and tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	cap  int
	sets map[string]*seenSet
}

func NewMemoryDeduper(capacity int) *MemoryDeduper {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryDeduper{cap: capacity, sets: map[string]*seenSet{}}
}

func (m *MemoryDeduper) Add(ctx context.Context, projectID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[projectID]
	if !ok {
		set = newSeenSet(m.cap)
		m.sets[projectID] = set
	}
	return set.add(messageID), nil
}

// relayMessage crosses instances over redis pub/sub. Instance marks the
// origin so a hub skips its own publications.
type relayMessage struct {
	Instance string `json:"instance"`
	Project  string `json:"project"`
	Envelope []byte `json:"envelope"`
}

type hubSession struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (s *hubSession) shutdown() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub is the server side of the realtime protocol. It upgrades
// websocket requests, keeps per-project rooms, echoes task updates back
// as confirmations and relays envelopes across instances through redis
// pub/sub.
type Hub struct {
	upgrader   websocket.Upgrader
	dedup      Deduper
	rc         *redis.Client
	channel    string
	instanceID string
	logger     *log.Logger

	mu    sync.Mutex
	rooms map[string]map[*hubSession]struct{}
}

// NewHub wires a hub. rc may be nil for single-instance deployments;
// cross-instance relay is then disabled.
func NewHub(dedup Deduper, rc *redis.Client, channel string, logger *log.Logger) *Hub {
	if dedup == nil {
		dedup = NewMemoryDeduper(0)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		dedup:      dedup,
		rc:         rc,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
		rooms:      map[string]map[*hubSession]struct{}{},
	}
}

// Register mounts the websocket endpoint.
func (h *Hub) Register(e *echo.Echo) {
	e.GET("/ws/gantt/:projectId", h.serve)
}

func (h *Hub) serve(c echo.Context) error {
	projectID := c.Param("projectId")
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sess := &hubSession{conn: conn, send: make(chan []byte, 64)}
	h.join(projectID, sess)
	go h.writeLoop(sess)

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.leave(projectID, sess)
			sess.shutdown()
			return nil
		}
		h.handleInbound(ctx, projectID, data)
	}
}

func (h *Hub) join(projectID string, sess *hubSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[projectID]
	if !ok {
		room = map[*hubSession]struct{}{}
		h.rooms[projectID] = room
	}
	room[sess] = struct{}{}
}

func (h *Hub) leave(projectID string, sess *hubSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[projectID]
	if !ok {
		return
	}
	delete(room, sess)
	if len(room) == 0 {
		delete(h.rooms, projectID)
	}
}

func (h *Hub) writeLoop(sess *hubSession) {
	for data := range sess.send {
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	sess.conn.Close()
}

// handleInbound unwraps batches and routes each envelope. Replayed
// message ids are dropped; a dedup backend error fails open so an
// outage does not stall editing.
func (h *Hub) handleInbound(ctx context.Context, projectID string, data []byte) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		h.logger.WithError(err).Debug("dropping malformed inbound envelope")
		return
	}
	h.handleEnvelope(ctx, projectID, env)
}

func (h *Hub) handleEnvelope(ctx context.Context, projectID string, env Envelope) {
	if env.MessageID != "" {
		fresh, err := h.dedup.Add(ctx, projectID, env.MessageID)
		if err != nil {
			h.logger.WithError(err).Warn("dedup backend failed, accepting message")
		} else if !fresh {
			return
		}
	}

	switch env.Type {
	case TypeBatch:
		var inner []Envelope
		if err := sonic.Unmarshal(env.Data, &inner); err != nil {
			h.logger.WithError(err).Debug("dropping malformed batch")
			return
		}
		for _, e := range inner {
			h.handleEnvelope(ctx, projectID, e)
		}
	case TypeTaskUpdate:
		confirm := Envelope{Type: TypeTaskUpdateConfirmed, Data: env.Data, MessageID: uuid.NewString()}
		h.fanOut(ctx, projectID, confirm)
	case TypeDependencyUpdate, TypeUserActivity, TypeConflict:
		h.fanOut(ctx, projectID, env)
	default:
		h.logger.WithField("type", env.Type).Debug("ignoring unknown envelope type")
	}
}

// fanOut broadcasts locally and publishes for the other instances.
func (h *Hub) fanOut(ctx context.Context, projectID string, env Envelope) {
	data, err := sonic.Marshal(env)
	if err != nil {
		h.logger.WithError(err).Error("envelope marshal failed")
		return
	}
	h.broadcast(projectID, data)
	h.publish(ctx, projectID, data)
}

func (h *Hub) broadcast(projectID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sess := range h.rooms[projectID] {
		select {
		case sess.send <- data:
		default:
			// Slow consumer; drop rather than block the room.
		}
	}
}

func (h *Hub) publish(ctx context.Context, projectID string, data []byte) {
	if h.rc == nil {
		return
	}
	msg := relayMessage{Instance: h.instanceID, Project: projectID, Envelope: data}
	payload, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("relay marshal failed")
		return
	}
	if err := h.rc.Publish(ctx, h.channel, payload).Err(); err != nil {
		h.logger.WithError(err).Warn("relay publish failed")
	}
}

// Run consumes the relay channel and rebroadcasts remote envelopes to
// local rooms. It blocks until ctx is cancelled and resubscribes when
// the pubsub channel drops.
func (h *Hub) Run(ctx context.Context) {
	if h.rc == nil {
		return
	}
	for {
		sub := h.rc.Subscribe(ctx, h.channel)
		ch := sub.Channel()
		for msg := range ch {
			var relay relayMessage
			if err := sonic.Unmarshal([]byte(msg.Payload), &relay); err != nil {
				h.logger.WithError(err).Error("unable to parse relay message")
				continue
			}
			if relay.Instance == h.instanceID {
				continue
			}
			h.broadcast(relay.Project, relay.Envelope)
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("relay channel closed, resubscribing")
		time.Sleep(time.Second)
	}
}
