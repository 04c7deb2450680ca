package hub

import "errors"

var (
	// ErrUnknownClient is returned when a client id is not registered.
	ErrUnknownClient = errors.New("hub: unknown client")
	// ErrUnknownChannel is returned when a channel does not exist. Empty
	// channels are disposed eagerly, so a channel whose last member left is
	// unknown too.
	ErrUnknownChannel = errors.New("hub: unknown channel")
	// ErrAlreadyMember is returned by joins of an existing member when
	// Config.RejectDuplicateJoin is set.
	ErrAlreadyMember = errors.New("hub: client is already a member of the channel")
	// ErrNotMember is returned when leaving a channel the client is not in.
	ErrNotMember = errors.New("hub: client is not a member of the channel")
	// ErrBackpressureExceeded reports a delivery rejected by a full outbox.
	// It is recorded per recipient and never fails a publish.
	ErrBackpressureExceeded = errors.New("hub: client outbox is full")
	// ErrCapacityExceeded is returned by Register when MaxClients is reached.
	ErrCapacityExceeded = errors.New("hub: client capacity exceeded")
	// ErrHubClosed is returned by every operation once shutdown has begun.
	ErrHubClosed = errors.New("hub: closed")
	// ErrClientClosed is returned by Deliver after the client was disposed.
	ErrClientClosed = errors.New("hub: client closed")
	// ErrDuplicateClient is returned when a caller-supplied id is taken.
	ErrDuplicateClient = errors.New("hub: client id already registered")
	// ErrInvalidChannel is returned for empty, oversized or non UTF-8 names.
	ErrInvalidChannel = errors.New("hub: invalid channel name")

	errChannelDisposed = errors.New("hub: channel disposed")
)
