package pairing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"medialink-client-go/internal/domain/session/model"
	platformtesting "medialink-client-go/internal/platform/testing"
	"medialink-client-go/internal/transport/api"
)

type captureSink struct {
	mu    sync.Mutex
	creds []model.Credentials
	err   error
}

func (s *captureSink) AdoptCredentials(_ context.Context, creds model.Credentials, _ *model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.creds = append(s.creds, creds)
	return nil
}

func (s *captureSink) adopted() []model.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Credentials, len(s.creds))
	copy(out, s.creds)
	return out
}

// pairServer simulates the server side of the device-code grant. pollScript
// holds the status returned for each successive poll; the last entry repeats.
type pairServer struct {
	*httptest.Server

	mu           sync.Mutex
	requestGate  chan struct{}
	requestFails int
	requests     int
	polls        int
	pollScript   []string
	expiresIn    int
	interval     int
}

func newPairServer(t *testing.T, pollScript []string, expiresIn, interval int) *pairServer {
	t.Helper()
	ps := &pairServer{
		pollScript: pollScript,
		expiresIn:  expiresIn,
		interval:   interval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/pair/request", func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		gate := ps.requestGate
		ps.mu.Unlock()
		if gate != nil {
			<-gate
		}
		ps.mu.Lock()
		ps.requests++
		fail := ps.requestFails > 0
		if fail {
			ps.requestFails--
		}
		ps.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, api.PairRequestResponse{
			DeviceCode: "d1",
			UserCode:   "AB12",
			ExpiresIn:  ps.expiresIn,
			Interval:   ps.interval,
		})
	})
	mux.HandleFunc("/pair/poll", func(w http.ResponseWriter, r *http.Request) {
		var req api.PairPollRequest
		body, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(body, &req); err != nil || req.DeviceCode != "d1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ps.mu.Lock()
		idx := ps.polls
		ps.polls++
		if idx >= len(ps.pollScript) {
			idx = len(ps.pollScript) - 1
		}
		status := ps.pollScript[idx]
		ps.mu.Unlock()
		resp := api.PairPollResponse{Status: status}
		if status == api.PairStatusAuthorized {
			resp.AccessToken = "pair-access"
			resp.RefreshToken = "pair-refresh"
		}
		writeJSON(w, resp)
	})

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, _ := sonic.Marshal(v)
	w.Write(data)
}

func (ps *pairServer) pollCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.polls
}

func (ps *pairServer) requestCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.requests
}

func newTestCoordinator(t *testing.T, sink *captureSink) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(Options{
		Client: api.NewClient(api.Options{ClientID: "pairing-test", Timeout: time.Second}),
		Sink:   sink,
		Logger: platformtesting.NopLogger{},
	})
	platformtesting.AssertNoError(t, err)
	return coord
}

func validatedServer(url string) model.ServerConfig {
	return model.ServerConfig{BaseURL: url, APIBase: url + "/api", Validated: true}
}

func waitState(t *testing.T, coord *Coordinator, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if coord.Snapshot().State == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("state %q not reached within %v, stuck at %q", want, timeout, coord.Snapshot().State)
}

func TestPairingAuthorizedAfterPending(t *testing.T) {
	server := newPairServer(t, []string{
		api.PairStatusPending, api.PairStatusPending, api.PairStatusPending, api.PairStatusAuthorized,
	}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertNoError(t, err)

	snap := coord.Snapshot()
	platformtesting.AssertEqual(t, StatePolling, snap.State)
	platformtesting.AssertEqual(t, "AB12", snap.UserCode)

	waitState(t, coord, StateAuthorized, 10*time.Second)

	adopted := sink.adopted()
	platformtesting.AssertEqual(t, 1, len(adopted))
	platformtesting.AssertEqual(t, "pair-access", adopted[0].AccessToken)
	platformtesting.AssertEqual(t, "pair-refresh", adopted[0].RefreshToken)
	platformtesting.AssertEqual(t, 4, server.pollCount())
}

func TestPairingExpiresWithoutAuthorization(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusPending}, 2, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertNoError(t, err)

	waitState(t, coord, StateExpired, 10*time.Second)
	platformtesting.AssertEqual(t, 0, len(sink.adopted()))

	// No further polls once expired.
	settled := server.pollCount()
	time.Sleep(1500 * time.Millisecond)
	platformtesting.AssertEqual(t, settled, server.pollCount())
}

func TestPairingDeniedIsTerminal(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusDenied}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertNoError(t, err)

	waitState(t, coord, StateFailed, 10*time.Second)
	platformtesting.AssertEqual(t, 0, len(sink.adopted()))
	if coord.Snapshot().Message == "" {
		t.Fatal("expected a failure message for display")
	}
}

func TestPairingRequestRetriesOnce(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusAuthorized}, 30, 1)
	server.requestFails = 1
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertNoError(t, err)
	platformtesting.AssertEqual(t, 2, server.requestCount())

	waitState(t, coord, StateAuthorized, 10*time.Second)
}

func TestPairingRequestExhaustsRetryBudget(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusPending}, 30, 1)
	server.requestFails = 10
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertError(t, err)
	platformtesting.AssertEqual(t, StateFailed, coord.Snapshot().State)
	platformtesting.AssertEqual(t, 2, server.requestCount())
	platformtesting.AssertEqual(t, 0, server.pollCount())
}

func TestPairingCancelReturnsToIdle(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusPending}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	err := coord.Start(context.Background(), validatedServer(server.URL))
	platformtesting.AssertNoError(t, err)

	coord.Cancel()
	platformtesting.AssertEqual(t, StateIdle, coord.Snapshot().State)
	platformtesting.AssertEqual(t, 0, len(sink.adopted()))

	// Repeated cancel is a no-op.
	coord.Cancel()
	platformtesting.AssertEqual(t, StateIdle, coord.Snapshot().State)
}

func TestPairingParentCancelDuringRequestReturnsToIdle(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusPending}, 30, 1)
	gate := make(chan struct{})
	server.requestGate = gate

	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := coord.Start(ctx, validatedServer(server.URL))
	platformtesting.AssertError(t, err)
	platformtesting.AssertEqual(t, StateIdle, coord.Snapshot().State)
	platformtesting.AssertEqual(t, 0, len(sink.adopted()))

	// The machine is restartable after abandonment.
	close(gate)
	platformtesting.AssertNoError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	coord.Cancel()
}

func TestPairingRestartAfterTerminal(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusDenied, api.PairStatusAuthorized}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	platformtesting.AssertNoError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	waitState(t, coord, StateFailed, 10*time.Second)

	platformtesting.AssertNoError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	waitState(t, coord, StateAuthorized, 10*time.Second)
	platformtesting.AssertEqual(t, 1, len(sink.adopted()))
}

func TestPairingRejectsConcurrentStart(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusPending}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	platformtesting.AssertNoError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	platformtesting.AssertError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	coord.Cancel()
}

func TestPairingRequiresValidatedServer(t *testing.T) {
	coord := newTestCoordinator(t, &captureSink{})
	err := coord.Start(context.Background(), model.ServerConfig{BaseURL: "http://example.com"})
	platformtesting.AssertError(t, err)
	platformtesting.AssertEqual(t, StateIdle, coord.Snapshot().State)
}

func TestPairingDuplicateAuthorizeIsNoOp(t *testing.T) {
	server := newPairServer(t, []string{api.PairStatusAuthorized}, 30, 1)
	sink := &captureSink{}
	coord := newTestCoordinator(t, sink)

	platformtesting.AssertNoError(t, coord.Start(context.Background(), validatedServer(server.URL)))
	waitState(t, coord, StateAuthorized, 10*time.Second)

	coord.authorize(context.Background(), api.PairPollResponse{
		Status:      api.PairStatusAuthorized,
		AccessToken: "stale-access",
	})
	platformtesting.AssertEqual(t, 1, len(sink.adopted()))
	platformtesting.AssertEqual(t, "pair-access", sink.adopted()[0].AccessToken)
}
