package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the result of one orchestrated reconnect attempt.
type Outcome struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	OutcomeConnected        = "connected"
	OutcomeAlreadyConnected = "already_connected"
	OutcomeFailed           = "failed"
)

// ReconnectAll walks every known identity and starts a lifecycle attempt
// for each one not already registered. Attempts run sequentially with a
// pacing delay; the pairing endpoint throttles bursts, so fleet-wide
// parallel reconnection is never attempted.
func (e *Engine) ReconnectAll(ctx context.Context) ([]Outcome, error) {
	identities, err := e.store.ListKnownIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list known identities: %w", err)
	}
	e.log.Info().Int("count", len(identities)).Msg("bulk reconnect started")

	outcomes := make([]Outcome, 0, len(identities))
	attempted := false
	for _, identity := range identities {
		if _, ok := e.registry.Get(identity); ok {
			outcomes = append(outcomes, Outcome{Identity: identity, Status: OutcomeAlreadyConnected})
			continue
		}

		if attempted {
			select {
			case <-time.After(e.cfg.ReconnectPacing.Std()):
			case <-ctx.Done():
				return outcomes, ctx.Err()
			}
		}
		attempted = true

		if _, err := e.start(ctx, identity, true); err != nil {
			outcomes = append(outcomes, Outcome{Identity: identity, Status: OutcomeFailed, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, Outcome{Identity: identity, Status: OutcomeConnected})
	}

	e.log.Info().Int("attempted", len(outcomes)).Msg("bulk reconnect finished")
	return outcomes, nil
}
