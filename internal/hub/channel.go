package hub

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DeliveryFailure records one recipient that did not receive a message.
type DeliveryFailure struct {
	ClientID uuid.UUID
	Err      error
}

// PublishReport summarizes a fan-out. Recipients counts the members the
// message was addressed to; every recipient ends up in exactly one of
// Delivered, Dropped (outbox full) or Skipped (client mid-teardown).
type PublishReport struct {
	Channel    string
	Recipients int
	Delivered  int
	Dropped    int
	Skipped    int
	Failures   []DeliveryFailure
}

// Channel is a named group of clients. It holds lookup entries for its
// members; the Hub owns their lifetime.
type Channel struct {
	name string

	mu       sync.RWMutex
	members  map[uuid.UUID]*Client
	disposed bool

	// publishMu serializes fan-outs so members observe publish order.
	publishMu sync.Mutex
}

func newChannel(name string) *Channel {
	return &Channel{
		name:    name,
		members: make(map[uuid.UUID]*Client),
	}
}

// Name returns the channel name.
func (ch *Channel) Name() string {
	return ch.name
}

// Len returns the current member count.
func (ch *Channel) Len() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

// Members returns a snapshot of the member ids.
func (ch *Channel) Members() []uuid.UUID {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(ch.members))
	for id := range ch.members {
		ids = append(ids, id)
	}
	return ids
}

func (ch *Channel) join(c *Client, rejectDuplicate bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.disposed {
		return errChannelDisposed
	}
	if _, ok := ch.members[c.id]; ok {
		if rejectDuplicate {
			return ErrAlreadyMember
		}
		return nil
	}
	ch.members[c.id] = c
	return nil
}

// leave removes id and returns the remaining member count.
func (ch *Channel) leave(id uuid.UUID) (int, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if _, ok := ch.members[id]; !ok {
		return len(ch.members), ErrNotMember
	}
	delete(ch.members, id)
	return len(ch.members), nil
}

func (ch *Channel) snapshot() []*Client {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	if ch.disposed {
		return nil
	}
	clients := make([]*Client, 0, len(ch.members))
	for _, c := range ch.members {
		clients = append(clients, c)
	}
	return clients
}

// publish delivers msg to every member, skipping the origin unless echo is
// set. The member lock is released before any delivery.
func (ch *Channel) publish(msg Message, echo bool) PublishReport {
	ch.publishMu.Lock()
	defer ch.publishMu.Unlock()

	report := PublishReport{Channel: ch.name}
	for _, c := range ch.snapshot() {
		if !echo && msg.Origin != uuid.Nil && c.id == msg.Origin {
			continue
		}
		report.Recipients++

		err := c.Deliver(msg)
		switch {
		case err == nil:
			report.Delivered++
			continue
		case errors.Is(err, ErrClientClosed):
			report.Skipped++
		default:
			report.Dropped++
		}
		report.Failures = append(report.Failures, DeliveryFailure{ClientID: c.id, Err: err})
	}
	return report
}

// dispose clears the membership and marks the channel unusable. It is safe
// to call on an empty or already disposed channel.
func (ch *Channel) dispose() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.disposed = true
	clear(ch.members)
}

func validateChannelName(name string) error {
	if name == "" || len(name) > MaxChannelNameLength || !utf8.ValidString(name) {
		return ErrInvalidChannel
	}
	return nil
}
