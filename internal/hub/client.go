package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Message is a payload addressed to a channel. Origin is the publishing
// client, or uuid.Nil when the hub itself publishes.
type Message struct {
	Channel string
	Payload []byte
	Binary  bool
	Origin  uuid.UUID
}

// ClientInfo carries the connection metadata handed to Register.
// A zero ID asks the hub to assign a random one.
type ClientInfo struct {
	ID        uuid.UUID
	Addr      string
	UserAgent string
}

// Client is the hub-side representation of one connected peer. Publishers
// push into its outbox concurrently; only the transport write loop reads it.
type Client struct {
	id        uuid.UUID
	addr      string
	userAgent string

	mu     sync.Mutex
	outbox chan Message
	done   chan struct{}
	closed bool

	dropped          atomic.Uint64
	consecutiveDrops atomic.Int64
}

func newClient(info ClientInfo, outboxSize int) *Client {
	id := info.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &Client{
		id:        id,
		addr:      info.Addr,
		userAgent: info.UserAgent,
		outbox:    make(chan Message, outboxSize),
		done:      make(chan struct{}),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Addr returns the remote address recorded at registration.
func (c *Client) Addr() string {
	return c.addr
}

// UserAgent returns the user agent recorded at registration.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Outbox returns the receive side of the client's delivery queue. It is
// closed by Dispose after any queued messages.
func (c *Client) Outbox() <-chan Message {
	return c.outbox
}

// Done is closed when the client is disposed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Dropped reports how many deliveries were rejected by a full outbox.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Client) consecutiveDropCount() int64 {
	return c.consecutiveDrops.Load()
}

// Deliver enqueues msg without blocking. A full outbox rejects msg with
// ErrBackpressureExceeded and keeps the messages already queued; a disposed
// client returns ErrClientClosed.
func (c *Client) Deliver(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.outbox <- msg:
		c.consecutiveDrops.Store(0)
		return nil
	default:
		c.dropped.Add(1)
		c.consecutiveDrops.Add(1)
		return ErrBackpressureExceeded
	}
}

// Dispose closes the outbox and the done channel. Calling it again is a no-op.
func (c *Client) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
	close(c.done)
}

// Closed reports whether Dispose has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
