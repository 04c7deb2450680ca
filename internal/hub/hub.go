// Package hub coordinates client registration, channel membership, message
// fan-out and shutdown for GoHub via the Hub type.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the Hub lifecycle phase.
type State int32

const (
	// StateRunning accepts every operation.
	StateRunning State = iota
	// StateDraining rejects new operations while in-flight publishes finish.
	StateDraining
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats is a point-in-time view of the hub tables.
type Stats struct {
	State    string         `json:"state"`
	Clients  int            `json:"clients"`
	Channels map[string]int `json:"channels"`
}

// Hub owns every Client and Channel. Table mutations happen under the write
// lock; deliveries happen with no hub lock held, so a stalled client never
// stalls registration or other publishes.
type Hub struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics

	mu          sync.RWMutex
	state       State
	clients     map[uuid.UUID]*Client
	channels    map[string]*Channel
	memberships map[uuid.UUID]map[string]struct{}

	inflight     sync.WaitGroup
	shutdownOnce sync.Once
}

// Option customizes a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.log = logger.With().Str("component", "hub").Logger()
	}
}

// WithMetrics sets the collectors the hub reports to.
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// New creates a running Hub.
func New(cfg Config, opts ...Option) *Hub {
	h := &Hub{
		cfg:         cfg.sanitize(),
		log:         zerolog.Nop(),
		state:       StateRunning,
		clients:     make(map[uuid.UUID]*Client),
		channels:    make(map[string]*Channel),
		memberships: make(map[uuid.UUID]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	return h
}

// Register creates a Client and adds it to the client table.
func (h *Hub) Register(info ClientInfo) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return nil, ErrHubClosed
	}
	if h.cfg.MaxClients > 0 && len(h.clients) >= h.cfg.MaxClients {
		h.log.Warn().Str("addr", info.Addr).Int("max_clients", h.cfg.MaxClients).Msg("Rejecting client: capacity reached")
		return nil, ErrCapacityExceeded
	}

	client := newClient(info, h.cfg.OutboxSize)
	if _, exists := h.clients[client.id]; exists {
		return nil, ErrDuplicateClient
	}
	h.clients[client.id] = client
	h.metrics.Clients.Set(float64(len(h.clients)))

	h.log.Info().
		Stringer("client", client.id).
		Str("addr", client.addr).
		Int("clients", len(h.clients)).
		Msg("Client registered")
	return client, nil
}

// Unregister removes the client from every channel, disposes the channels
// left empty, drops the client from the table and disposes it.
func (h *Hub) Unregister(id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return ErrHubClosed
	}
	client, ok := h.clients[id]
	if !ok {
		return ErrUnknownClient
	}

	h.removeClientLocked(client)
	h.log.Info().
		Stringer("client", id).
		Str("addr", client.addr).
		Int("clients", len(h.clients)).
		Msg("Client unregistered")
	return nil
}

// JoinChannel adds the client to the named channel, creating it on first use.
func (h *Hub) JoinChannel(id uuid.UUID, name string) error {
	if err := validateChannelName(name); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return ErrHubClosed
	}
	client, ok := h.clients[id]
	if !ok {
		return ErrUnknownClient
	}

	channel, ok := h.channels[name]
	if !ok {
		channel = newChannel(name)
		h.channels[name] = channel
		h.metrics.Channels.Set(float64(len(h.channels)))
		h.log.Debug().Str("channel", name).Msg("Channel created")
	}

	if err := channel.join(client, h.cfg.RejectDuplicateJoin); err != nil {
		if channel.Len() == 0 {
			h.disposeChannelLocked(channel)
		}
		return fmt.Errorf("join %q: %w", name, err)
	}

	joined, ok := h.memberships[id]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[id] = joined
	}
	joined[name] = struct{}{}

	h.log.Debug().Stringer("client", id).Str("channel", name).Int("members", channel.Len()).Msg("Client joined channel")
	return nil
}

// LeaveChannel removes the client from the named channel and disposes the
// channel when it becomes empty.
func (h *Hub) LeaveChannel(id uuid.UUID, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return ErrHubClosed
	}
	channel, ok := h.channels[name]
	if !ok {
		return ErrUnknownChannel
	}
	if _, ok := h.clients[id]; !ok {
		return ErrUnknownClient
	}

	remaining, err := channel.leave(id)
	if err != nil {
		return fmt.Errorf("leave %q: %w", name, err)
	}
	h.forgetMembershipLocked(id, name)
	if remaining == 0 {
		h.disposeChannelLocked(channel)
	}

	h.log.Debug().Stringer("client", id).Str("channel", name).Int("members", remaining).Msg("Client left channel")
	return nil
}

// Publish fans msg out to every member of the named channel. Per-recipient
// failures are counted in the report and never returned as the error.
func (h *Hub) Publish(name string, msg Message) (PublishReport, error) {
	h.mu.RLock()
	if h.state != StateRunning {
		h.mu.RUnlock()
		return PublishReport{Channel: name}, ErrHubClosed
	}
	channel, ok := h.channels[name]
	if !ok {
		h.mu.RUnlock()
		return PublishReport{Channel: name}, ErrUnknownChannel
	}
	h.inflight.Add(1)
	h.mu.RUnlock()
	defer h.inflight.Done()

	msg.Channel = name
	report := channel.publish(msg, h.cfg.EchoToSender)
	h.metrics.observePublish(report)

	for _, failure := range report.Failures {
		h.log.Warn().
			Err(failure.Err).
			Stringer("client", failure.ClientID).
			Str("channel", name).
			Msg("Delivery failed")
	}
	h.evictSlowConsumers(report)

	return report, nil
}

// GetClient looks up a registered client.
func (h *Hub) GetClient(id uuid.UUID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateRunning {
		return nil, false
	}
	client, ok := h.clients[id]
	return client, ok
}

// ChannelMembers returns the member ids of the named channel, sorted.
func (h *Hub) ChannelMembers(name string) ([]uuid.UUID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateRunning {
		return nil, ErrHubClosed
	}
	channel, ok := h.channels[name]
	if !ok {
		return nil, ErrUnknownChannel
	}

	ids := channel.Members()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// State returns the lifecycle phase.
func (h *Hub) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Stats returns client and per-channel member counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		State:    h.state.String(),
		Clients:  len(h.clients),
		Channels: make(map[string]int, len(h.channels)),
	}
	for name, channel := range h.channels {
		stats.Channels[name] = channel.Len()
	}
	return stats
}

// Shutdown moves the hub to Draining, waits for in-flight publishes until ctx
// is done, then disposes every channel and every client and marks the hub
// Closed. Only the first call does any work; later calls return nil once
// the first has finished. A non-nil error means in-flight publishes were
// abandoned when ctx expired; the hub is Closed either way.
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	h.shutdownOnce.Do(func() {
		err = h.drainAndClose(ctx)
	})
	return err
}

func (h *Hub) drainAndClose(ctx context.Context) error {
	h.log.Info().Msg("Initiating hub shutdown...")

	h.mu.Lock()
	h.state = StateDraining
	h.mu.Unlock()

	waitErr := h.waitInflight(ctx)
	if waitErr != nil {
		h.log.Warn().Err(waitErr).Msg("Hub drain timeout reached, abandoning in-flight deliveries")
	}

	h.mu.Lock()
	channelCount := len(h.channels)
	for name, channel := range h.channels {
		channel.dispose()
		delete(h.channels, name)
	}
	clientCount := len(h.clients)
	for id, client := range h.clients {
		client.Dispose()
		delete(h.clients, id)
	}
	clear(h.memberships)
	h.state = StateClosed
	h.mu.Unlock()

	h.metrics.Channels.Set(0)
	h.metrics.Clients.Set(0)
	h.log.Info().Int("channels", channelCount).Int("clients", clientCount).Msg("Hub shutdown completed")
	return waitErr
}

func (h *Hub) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub: draining in-flight publishes: %w", ctx.Err())
	}
}

// evictSlowConsumers disconnects recipients whose outbox rejected too many
// deliveries in a row.
func (h *Hub) evictSlowConsumers(report PublishReport) {
	if h.cfg.MaxConsecutiveDrops <= 0 || report.Dropped == 0 {
		return
	}

	var slow []uuid.UUID
	for _, failure := range report.Failures {
		if !errors.Is(failure.Err, ErrBackpressureExceeded) {
			continue
		}
		if h.isSlow(failure.ClientID) {
			slow = append(slow, failure.ClientID)
		}
	}
	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return
	}
	for _, id := range slow {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		h.removeClientLocked(client)
		h.metrics.Evicted.Inc()
		h.log.Warn().
			Stringer("client", id).
			Str("addr", client.addr).
			Uint64("dropped", client.Dropped()).
			Msg("Client removed due to full outbox")
	}
}

func (h *Hub) isSlow(id uuid.UUID) bool {
	h.mu.RLock()
	client, ok := h.clients[id]
	h.mu.RUnlock()
	return ok && client.consecutiveDropCount() >= int64(h.cfg.MaxConsecutiveDrops)
}

// removeClientLocked leaves every channel of client, disposes the channels
// it empties, and disposes the client. h.mu must be held for writing.
func (h *Hub) removeClientLocked(client *Client) {
	for name := range h.memberships[client.id] {
		channel, ok := h.channels[name]
		if !ok {
			continue
		}
		remaining, err := channel.leave(client.id)
		if err != nil {
			h.log.Error().Err(err).Stringer("client", client.id).Str("channel", name).Msg("Membership index out of sync")
		}
		if remaining == 0 {
			h.disposeChannelLocked(channel)
		}
	}
	delete(h.memberships, client.id)
	delete(h.clients, client.id)
	h.metrics.Clients.Set(float64(len(h.clients)))

	client.Dispose()
}

func (h *Hub) disposeChannelLocked(channel *Channel) {
	if current, ok := h.channels[channel.name]; ok && current == channel {
		delete(h.channels, channel.name)
	}
	channel.dispose()
	h.metrics.Channels.Set(float64(len(h.channels)))
	h.log.Debug().Str("channel", channel.name).Msg("Channel disposed")
}

func (h *Hub) forgetMembershipLocked(id uuid.UUID, name string) {
	joined, ok := h.memberships[id]
	if !ok {
		return
	}
	delete(joined, name)
	if len(joined) == 0 {
		delete(h.memberships, id)
	}
}
