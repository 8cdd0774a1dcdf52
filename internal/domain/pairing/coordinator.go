package pairing

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"medialink-client-go/internal/domain/eventbus"
	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/errors"
	"medialink-client-go/internal/transport/api"
)

// Options encapsulates the dependencies required to construct a Coordinator.
type Options struct {
	Client *api.Client
	Sink   CredentialSink
	Logger Logger
	Bus    Publisher
	// MaxRequestRetries bounds automatic retries of /pair/request.
	// Defaults to 1.
	MaxRequestRetries int
}

// Coordinator drives the device-code grant for input-constrained clients.
//
// All transitions after Start happen on one internal goroutine that owns the
// poll ticker and the expiry countdown; Cancel and Snapshot only exchange
// signals with it. A new poll is never issued while one is in flight: busy
// ticks are dropped, not queued.
type Coordinator struct {
	client     *api.Client
	sink       CredentialSink
	logger     Logger
	bus        Publisher
	maxRetries int

	mu        sync.Mutex
	state     State
	session   *Session
	remaining int
	message   string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCoordinator wires a Coordinator using the supplied options.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, stderrors.New("pairing coordinator requires an api client")
	}
	if opts.Sink == nil {
		return nil, stderrors.New("pairing coordinator requires a credential sink")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("pairing coordinator requires a logger")
	}
	maxRetries := opts.MaxRequestRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Coordinator{
		client:     opts.Client,
		sink:       opts.Sink,
		logger:     opts.Logger,
		bus:        opts.Bus,
		maxRetries: maxRetries,
		state:      StateIdle,
	}, nil
}

// Snapshot returns the current display tuple.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:            c.state,
		RemainingSeconds: c.remaining,
		Message:          c.message,
	}
	if c.session != nil {
		snap.UserCode = c.session.UserCode
	}
	return snap
}

// Start begins a pairing attempt against the validated server. Only one
// attempt runs at a time; starting over a finished attempt is allowed.
func (c *Coordinator) Start(ctx context.Context, server model.ServerConfig) error {
	if !server.Validated {
		return errors.New(errors.KindConfig, "pairing.start", "server config is not validated")
	}

	c.mu.Lock()
	if c.state == StateRequesting || c.state == StatePolling {
		c.mu.Unlock()
		return errors.New(errors.KindPairing, "pairing.start", "pairing already in progress")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.session = nil
	c.message = ""
	c.remaining = 0
	c.setStateLocked(StateRequesting)
	c.mu.Unlock()

	session, err := c.requestSession(runCtx, server)
	if err != nil {
		c.mu.Lock()
		// Any cancellation during the request phase is abandonment, not a
		// terminal failure: the machine returns to Idle. Cancel() already
		// moved us there; a cancelled parent context has not.
		if runCtx.Err() != nil {
			if c.state == StateRequesting {
				c.session = nil
				c.remaining = 0
				c.setStateLocked(StateIdle)
			}
			c.mu.Unlock()
			cancel()
			close(done)
			return err
		}
		c.message = err.Error()
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		cancel()
		close(done)
		return err
	}

	c.mu.Lock()
	c.session = session
	c.remaining = int(time.Until(session.ExpiresAt).Round(time.Second) / time.Second)
	c.setStateLocked(StatePolling)
	c.mu.Unlock()

	c.logger.Info("pairing code %s, expires in %ds", session.UserCode, c.remaining)
	go c.run(runCtx, cancel, server, session, done)
	return nil
}

// Cancel aborts a non-terminal attempt and returns to Idle without side
// effects. Safe to call repeatedly and from any state.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.state.Terminal() || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.setStateLocked(StateIdle)
	c.session = nil
	c.remaining = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// requestSession calls /pair/request with a bounded retry budget.
func (c *Coordinator) requestSession(ctx context.Context, server model.ServerConfig) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindPairing, "pairing.request", "pairing cancelled", err)
		}

		resp, err := c.client.Post(ctx, server.BaseURL+"/pair/request", struct{}{})
		if err != nil {
			lastErr = err
			c.logger.Warn("pair request attempt %d failed: %v", attempt+1, err)
			continue
		}
		if !resp.OK() {
			lastErr = errors.New(errors.KindRejected, "pairing.request", resp.Message())
			c.logger.Warn("pair request attempt %d rejected: %s", attempt+1, resp.Message())
			continue
		}

		var payload api.PairRequestResponse
		if err := resp.Decode(&payload); err != nil {
			lastErr = err
			continue
		}
		if payload.DeviceCode == "" || payload.UserCode == "" {
			lastErr = errors.New(errors.KindPairing, "pairing.request", "server returned incomplete pairing session")
			continue
		}

		interval := time.Duration(payload.Interval) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		expiresIn := time.Duration(payload.ExpiresIn) * time.Second
		if expiresIn <= 0 {
			expiresIn = 5 * time.Minute
		}
		return &Session{
			DeviceCode:   payload.DeviceCode,
			UserCode:     payload.UserCode,
			PollInterval: interval,
			ExpiresAt:    time.Now().Add(expiresIn),
			Attempts:     attempt + 1,
		}, nil
	}
	return nil, errors.Wrap(errors.KindPairing, "pairing.request", "pair request failed", lastErr)
}

// run owns the poll ticker and the one-second expiry countdown until a
// terminal state or cancellation.
func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, server model.ServerConfig, session *Session, done chan struct{}) {
	defer close(done)
	defer cancel()

	pollTicker := time.NewTicker(session.PollInterval)
	defer pollTicker.Stop()
	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-countdown.C:
			c.mu.Lock()
			if c.state != StatePolling {
				c.mu.Unlock()
				return
			}
			if c.remaining > 0 {
				c.remaining--
			}
			expired := c.remaining <= 0 && time.Now().After(session.ExpiresAt)
			if expired {
				c.message = "pairing window elapsed"
				c.setStateLocked(StateExpired)
			} else {
				c.publishLocked()
			}
			c.mu.Unlock()
			if expired {
				c.logger.Info("pairing expired without authorization")
				return
			}

		case <-pollTicker.C:
			final := c.poll(ctx, server, session)
			// The poll ran synchronously; drop any tick that queued
			// behind it instead of polling again immediately.
			select {
			case <-pollTicker.C:
			default:
			}
			if final {
				return
			}
		}
	}
}

// poll issues one /pair/poll call and applies the result. Returns true when
// the machine reached a terminal state.
func (c *Coordinator) poll(ctx context.Context, server model.ServerConfig, session *Session) bool {
	resp, err := c.client.Post(ctx, server.BaseURL+"/pair/poll", api.PairPollRequest{
		DeviceCode: session.DeviceCode,
	})
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// Transient poll failure: keep polling, expiry bounds the attempt.
		c.logger.Warn("pair poll failed: %v", err)
		return false
	}
	if !resp.OK() {
		c.fail(resp.Message())
		return true
	}

	var payload api.PairPollResponse
	if err := resp.Decode(&payload); err != nil {
		c.logger.Warn("pair poll returned malformed body: %v", err)
		return false
	}

	switch payload.Status {
	case api.PairStatusPending:
		return false

	case api.PairStatusAuthorized:
		c.authorize(ctx, payload)
		return true

	default:
		// "expired", "denied" or anything unrecognized.
		c.fail("pairing " + nonEmpty(payload.Status, "rejected"))
		return true
	}
}

func (c *Coordinator) authorize(ctx context.Context, payload api.PairPollResponse) {
	c.mu.Lock()
	if c.state != StatePolling {
		// A duplicate terminal result after transition is a no-op.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	creds := model.Credentials{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if err := c.sink.AdoptCredentials(ctx, creds, nil); err != nil {
		c.fail("failed to store pairing credentials: " + err.Error())
		return
	}

	c.mu.Lock()
	c.setStateLocked(StateAuthorized)
	c.mu.Unlock()
	c.logger.Info("pairing authorized")
}

func (c *Coordinator) fail(message string) {
	c.mu.Lock()
	if c.state != StatePolling && c.state != StateRequesting {
		c.mu.Unlock()
		return
	}
	c.message = message
	c.setStateLocked(StateFailed)
	c.mu.Unlock()
	c.logger.Warn("pairing failed: %s", message)
}

func (c *Coordinator) setStateLocked(state State) {
	c.state = state
	c.publishLocked()
}

func (c *Coordinator) publishLocked() {
	if c.bus == nil {
		return
	}
	data := eventbus.PairingEventData{
		State:            string(c.state),
		RemainingSeconds: c.remaining,
		Message:          c.message,
	}
	if c.session != nil {
		data.UserCode = c.session.UserCode
	}
	c.bus.Publish(eventbus.EventPairingState, data)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
