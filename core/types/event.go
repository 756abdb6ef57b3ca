package types

// Event represents a typed event emitted during state transitions. Sequence and
// Timestamp are assigned when the event is journaled.
type Event struct {
	Sequence   uint64            `json:"sequence,omitempty"`
	Timestamp  uint64            `json:"timestamp,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
