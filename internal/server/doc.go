// Package server implements the HTTP and WebSocket transport for GoHub.
//
// It upgrades connections, binds each one to a hub client through a Session,
// translates JSON commands into hub operations, and exposes health, stats,
// publish and metrics endpoints. Channel membership and fan-out live in the
// hub package; this package only drives them.
package server
