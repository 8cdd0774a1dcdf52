package eventbus

// Topics published by the engine. UI layers subscribe to these instead of
// polling the managers.
const (
	// Discovery events
	EventServerResolved = "discovery:resolved"

	// Session events
	EventSessionState = "session:state"

	// Pairing events
	EventPairingState = "pairing:state"
)

// ResolvedEventData describes a successfully validated server.
type ResolvedEventData struct {
	BaseURL string `json:"base_url"`
	APIBase string `json:"api_base"`
}

// SessionEventData carries a session state transition.
type SessionEventData struct {
	State    string `json:"state"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// PairingEventData carries a pairing state transition for display.
type PairingEventData struct {
	State            string `json:"state"`
	UserCode         string `json:"user_code,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Message          string `json:"message,omitempty"`
}
