package hub

import (
	"sync"

	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/proto"
)

// Event is an outbound socket event queued for one connection.
type Event struct {
	Name string
	Data any
}

// Outbound wraps the event into its wire envelope.
func (e *Event) Outbound() proto.Outbound {
	return proto.Outbound{Type: "event", Event: e.Name, Data: e.Data}
}

// Client is one authenticated connection as seen by the hub. A user may
// reconnect from another device, in which case the newer connection
// becomes canonical and the older one is closed.
type Client struct {
	ConnID   string
	Identity auth.Identity

	// Events is consumed by the connection's write loop. It is closed by
	// the hub when the connection is retired.
	Events chan *Event

	mu     sync.Mutex
	closed bool

	// guarded by the hub mutex
	rooms        map[string]struct{}
	lastChatRoom string
}

// NewClient constructs a client with an initialized event queue.
func NewClient(connID string, identity auth.Identity) *Client {
	return &Client{
		ConnID:   connID,
		Identity: identity,
		Events:   make(chan *Event, 64),
		rooms:    make(map[string]struct{}),
	}
}

// send queues an event for the connection. Delivery is best-effort: if
// the write loop cannot keep up the event is dropped.
func (c *Client) send(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}

// close retires the client's event queue. Idempotent.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Events)
}
