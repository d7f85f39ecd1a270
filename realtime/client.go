package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"unitask/domain"
)

// ConnState is the client connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("realtime client is closed")

// Conn is a single established socket.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes sockets. The production implementation wraps
// gorilla/websocket; tests substitute an in-memory pipe.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials real websocket endpoints.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{c: c}, nil
}

type wsConn struct{ c *websocket.Conn }

func (w wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w wsConn) Close() error { return w.c.Close() }

// Handlers receive dispatched inbound payloads. Nil handlers are
// skipped. Task updates must be applied idempotently: an optimistic
// send followed by its confirmation invokes OnTask twice with the same
// task.
type Handlers struct {
	OnTask       func(domain.GanttTask)
	OnDependency func(domain.Dependency)
	OnConflict   func(Conflict)
	OnActivity   func(UserActivity)
}

// Config tunes a Client.
type Config struct {
	BaseURL        string
	ProjectID      string
	ReconnectDelay time.Duration
	BatchDelay     time.Duration
	Optimistic     bool
	DedupCapacity  int
}

// Client maintains one project's realtime connection. It reconnects on
// failure with a single pending timer, batches outbound sends inside a
// configurable window and discards inbound messages whose id was
// already seen.
type Client struct {
	cfg      Config
	dialer   Dialer
	handlers Handlers
	logger   *log.Logger

	mu             sync.Mutex
	state          ConnState
	conn           Conn
	closed         bool
	lastErr        error
	seen           *seenSet
	pending        []Envelope
	batchTimer     *time.Timer
	reconnectTimer *time.Timer
	roster         map[string]UserActivity
}

// NewClient builds a disconnected client. Call Connect to go online.
func NewClient(cfg Config, dialer Dialer, handlers Handlers, logger *log.Logger) *Client {
	if dialer == nil {
		panic("dialer is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1024
	}
	return &Client{
		cfg:      cfg,
		dialer:   dialer,
		handlers: handlers,
		logger:   logger,
		state:    StateDisconnected,
		seen:     newSeenSet(cfg.DedupCapacity),
		roster:   map[string]UserActivity{},
	}
}

func (c *Client) url() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/gantt/" + c.cfg.ProjectID
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports the last connection error, cleared on successful connect.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials the project endpoint. On failure it records the error
// and schedules a reconnect, so callers may ignore the return value and
// rely on Err.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url())
	if err != nil {
		c.logger.WithError(err).WithField("project_id", c.cfg.ProjectID).Warn("realtime dial failed")
		c.mu.Lock()
		c.state = StateDisconnected
		c.lastErr = err
		c.mu.Unlock()
		c.scheduleReconnect(ctx)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	c.lastErr = nil
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	return nil
}

func (c *Client) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}
		c.Connect(ctx)
	})
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
				if !c.closed {
					c.lastErr = err
				}
			}
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.scheduleReconnect(ctx)
			}
			return
		}
		var env Envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			c.logger.WithError(err).Debug("dropping malformed envelope")
			continue
		}
		c.dispatch(env)
	}
}

// dispatch unwraps and routes one envelope. Duplicated message ids are
// dropped before any handler runs; batch contents dispatch in order.
func (c *Client) dispatch(env Envelope) {
	if env.MessageID != "" {
		c.mu.Lock()
		fresh := c.seen.add(env.MessageID)
		c.mu.Unlock()
		if !fresh {
			return
		}
	}

	switch env.Type {
	case TypeBatch:
		var inner []Envelope
		if err := sonic.Unmarshal(env.Data, &inner); err != nil {
			c.logger.WithError(err).Debug("dropping malformed batch")
			return
		}
		for _, e := range inner {
			c.dispatch(e)
		}
	case TypeTaskUpdate, TypeTaskUpdateConfirmed:
		var task domain.GanttTask
		if err := sonic.Unmarshal(env.Data, &task); err != nil {
			c.logger.WithError(err).Debug("dropping malformed task update")
			return
		}
		if c.handlers.OnTask != nil {
			c.handlers.OnTask(task)
		}
	case TypeDependencyUpdate:
		var dep domain.Dependency
		if err := sonic.Unmarshal(env.Data, &dep); err != nil {
			c.logger.WithError(err).Debug("dropping malformed dependency update")
			return
		}
		if c.handlers.OnDependency != nil {
			c.handlers.OnDependency(dep)
		}
	case TypeUserActivity:
		var activity UserActivity
		if err := sonic.Unmarshal(env.Data, &activity); err != nil {
			c.logger.WithError(err).Debug("dropping malformed activity")
			return
		}
		c.mu.Lock()
		if activity.Action == ActivityLeft {
			delete(c.roster, activity.UserID)
		} else {
			c.roster[activity.UserID] = activity
		}
		c.mu.Unlock()
		if c.handlers.OnActivity != nil {
			c.handlers.OnActivity(activity)
		}
	case TypeConflict:
		var conflict Conflict
		if err := sonic.Unmarshal(env.Data, &conflict); err != nil {
			c.logger.WithError(err).Debug("dropping malformed conflict")
			return
		}
		if c.handlers.OnConflict != nil {
			c.handlers.OnConflict(conflict)
		}
	default:
		c.logger.WithField("type", env.Type).Debug("ignoring unknown envelope type")
	}
}

// ActiveUsers returns the current collaborator roster.
func (c *Client) ActiveUsers() []UserActivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UserActivity, 0, len(c.roster))
	for _, a := range c.roster {
		out = append(out, a)
	}
	return out
}

// SendTaskUpdate transmits a task edit. With Optimistic enabled the
// task is also applied locally before transmission.
func (c *Client) SendTaskUpdate(task domain.GanttTask) error {
	if c.cfg.Optimistic && c.handlers.OnTask != nil {
		c.handlers.OnTask(task)
	}
	env, err := NewEnvelope(TypeTaskUpdate, task)
	if err != nil {
		return err
	}
	return c.send(env)
}

// SendDependencyUpdate transmits a dependency edit.
func (c *Client) SendDependencyUpdate(dep domain.Dependency) error {
	env, err := NewEnvelope(TypeDependencyUpdate, dep)
	if err != nil {
		return err
	}
	return c.send(env)
}

// SendActivity announces the local user's activity.
func (c *Client) SendActivity(activity UserActivity) error {
	env, err := NewEnvelope(TypeUserActivity, activity)
	if err != nil {
		return err
	}
	return c.send(env)
}

// send queues or writes one envelope. Sending while disconnected is a
// silent no-op; the caller re-sends after reconnect if it still cares.
func (c *Client) send(env Envelope) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.BatchDelay > 0 {
		c.pending = append(c.pending, env)
		if c.batchTimer == nil {
			c.batchTimer = time.AfterFunc(c.cfg.BatchDelay, c.flushPending)
		}
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// flushPending drains the batch window. A single queued message goes
// out bare; more than one is wrapped in a batch envelope.
func (c *Client) flushPending() {
	c.mu.Lock()
	c.batchTimer = nil
	queued := c.pending
	c.pending = nil
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if len(queued) == 0 || !connected {
		return
	}

	env := queued[0]
	if len(queued) > 1 {
		wrapped, err := NewEnvelope(TypeBatch, queued)
		if err != nil {
			c.logger.WithError(err).Error("batch envelope marshal failed")
			return
		}
		env = wrapped
	}
	data, err := sonic.Marshal(env)
	if err != nil {
		c.logger.WithError(err).Error("envelope marshal failed")
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		c.logger.WithError(err).Warn("batch flush write failed")
	}
}

// Close cancels pending reconnect and batch timers and closes the
// socket. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.batchTimer != nil {
		c.batchTimer.Stop()
		c.batchTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.pending = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// seenSet is a bounded insertion-order set. Once full, each new id
// evicts the oldest one.
type seenSet struct {
	cap   int
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{cap: capacity, ids: make(map[string]struct{}, capacity)}
}

// add records the id and reports whether it was unseen.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) < s.cap {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % s.cap
	}
	s.ids[id] = struct{}{}
	return true
}
