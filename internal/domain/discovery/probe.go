package discovery

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"medialink-client-go/internal/platform/errors"
	"medialink-client-go/internal/transport/api"
)

// Probe confirms a candidate base URL hosts a responsive media server.
//
// Every failure mode (timeout, refused connection, DNS, non-2xx, bad JSON)
// collapses into one probe error kind; the cause is diagnostic only and
// callers must not branch on it.
type Probe struct {
	client *api.Client
}

// NewProbe builds a health probe on the shared API client. The client's
// timeout is the probe bound, enforced through request contexts rather than
// transport defaults.
func NewProbe(client *api.Client) *Probe {
	return &Probe{client: client}
}

// Check issues GET {baseURL}/health and reports nil on success.
func (p *Probe) Check(ctx context.Context, baseURL string) error {
	resp, err := p.client.Get(ctx, baseURL+"/health")
	if err != nil {
		return errors.Classify(errors.KindProbe, "probe.check", baseURL, err)
	}
	if !resp.OK() {
		return errors.New(errors.KindProbe, "probe.check",
			fmt.Sprintf("%s: unexpected status %d", baseURL, resp.StatusCode))
	}
	var body any
	if err := sonic.Unmarshal(resp.Body, &body); err != nil {
		return errors.Wrap(errors.KindProbe, "probe.check",
			fmt.Sprintf("%s: health body is not JSON", baseURL), err)
	}
	return nil
}
