package discovery

import (
	"context"

	"medialink-client-go/internal/domain/eventbus"
	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/errors"
)

// Resolver validates a raw server address against a scheme-fallback policy.
// It never persists anything; the session manager owns storage.
type Resolver struct {
	probe  *Probe
	logger model.Logger
	bus    Publisher
}

// Publisher is the event surface the resolver notifies on success.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// NewResolver builds a resolver. bus may be nil when no UI is listening.
func NewResolver(probe *Probe, logger model.Logger, bus Publisher) *Resolver {
	return &Resolver{probe: probe, logger: logger, bus: bus}
}

// Resolve probes the candidates for raw in deterministic left-to-right order,
// strictly sequentially, and returns a validated ServerConfig for the first
// responsive one. Caller cancellation aborts between attempts and mid-probe.
func (r *Resolver) Resolve(ctx context.Context, raw string) (model.ServerConfig, error) {
	candidates, err := Normalize(raw)
	if err != nil {
		return model.ServerConfig{}, err
	}

	var lastErr error
	for _, baseURL := range candidates.URLs {
		if err := ctx.Err(); err != nil {
			return model.ServerConfig{}, errors.Wrap(errors.KindProbe, "resolver.resolve", "resolve cancelled", err)
		}

		r.logger.Debug("probing candidate %s", baseURL)
		if err := r.probe.Check(ctx, baseURL); err != nil {
			r.logger.Debug("candidate failed: %v", err)
			lastErr = err
			continue
		}

		cfg := model.ServerConfig{
			BaseURL:   baseURL,
			APIBase:   baseURL + "/api",
			Validated: true,
		}
		r.logger.Info("server validated at %s", baseURL)
		if r.bus != nil {
			r.bus.Publish(eventbus.EventServerResolved, eventbus.ResolvedEventData{
				BaseURL: cfg.BaseURL,
				APIBase: cfg.APIBase,
			})
		}
		return cfg, nil
	}

	return model.ServerConfig{}, errors.Classify(errors.KindProbe, "resolver.resolve",
		"no candidate responded", lastErr)
}
