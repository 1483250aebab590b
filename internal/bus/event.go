package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "feed.*" for typed change-feed events and
// connection edges, "message.*" for local message lifecycle, "sync.*" for
// pass progress.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
