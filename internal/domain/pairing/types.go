package pairing

import (
	"context"
	"time"

	"medialink-client-go/internal/domain/session/model"
)

// State of the pairing machine. Authorized, Expired and Failed are terminal:
// no automatic transition leaves them.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StatePolling    State = "polling"
	StateAuthorized State = "authorized"
	StateExpired    State = "expired"
	StateFailed     State = "failed"
)

// Terminal reports whether no further automatic transition can occur.
func (s State) Terminal() bool {
	return s == StateAuthorized || s == StateExpired || s == StateFailed
}

// Session is the in-memory record of one pairing attempt. It is never
// persisted; it dies with the attempt.
type Session struct {
	DeviceCode   string
	UserCode     string
	PollInterval time.Duration
	ExpiresAt    time.Time
	Attempts     int
}

// Snapshot is the display tuple exposed to UI layers.
type Snapshot struct {
	State            State
	UserCode         string
	RemainingSeconds int
	Message          string
}

// CredentialSink receives the authorized tokens. The session manager
// implements it, which keeps every credential write behind one mutex.
type CredentialSink interface {
	AdoptCredentials(ctx context.Context, creds model.Credentials, profile *model.UserProfile) error
}

// Logger re-exports the domain logging contract.
type Logger = model.Logger

// Publisher is the event surface for pairing state changes.
type Publisher interface {
	Publish(topic string, args ...interface{})
}
