package hub

const (
	// DefaultOutboxSize is the per-client outbox capacity.
	DefaultOutboxSize = 256
	// DefaultEchoToSender is the self-echo policy: a publishing client does
	// not receive its own message unless Config.EchoToSender is set.
	DefaultEchoToSender = false
	// MaxChannelNameLength bounds channel names, in bytes.
	MaxChannelNameLength = 256
)

// Config holds the tunable hub policies.
type Config struct {
	// OutboxSize is the capacity of each client's outbox.
	OutboxSize int
	// MaxClients caps concurrent registrations. Zero means unlimited.
	MaxClients int
	// EchoToSender delivers a message to its origin when it is a member.
	EchoToSender bool
	// RejectDuplicateJoin makes a repeated join fail with ErrAlreadyMember
	// instead of being a no-op.
	RejectDuplicateJoin bool
	// MaxConsecutiveDrops disconnects a client after this many deliveries in
	// a row were rejected by its full outbox. Zero disables eviction.
	MaxConsecutiveDrops int
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		OutboxSize:   DefaultOutboxSize,
		EchoToSender: DefaultEchoToSender,
	}
}

func (c Config) sanitize() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.MaxClients < 0 {
		c.MaxClients = 0
	}
	if c.MaxConsecutiveDrops < 0 {
		c.MaxConsecutiveDrops = 0
	}
	return c
}
