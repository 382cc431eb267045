package types

// Event is the canonical attribute-map payload recorded for state changes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
