// Package hub implements the in-memory channel hub for GoHub: the registry of
// connected clients, the named channels they join, and the fan-out that
// delivers every message published to a channel to each of its members.
//
// The Hub is the single owner of Client and Channel lifetimes. Channels keep
// lookup entries for their members but never dispose them; a Channel whose
// last member leaves is removed from the Hub and disposed in the same critical
// section. Delivery never blocks the publisher: each member has a bounded
// outbox, and a full outbox rejects the newest message for that member only.
package hub
