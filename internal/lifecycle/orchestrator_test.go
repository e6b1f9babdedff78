package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botmesh/botmesh/internal/config"
)

func TestReconnectAll_AttemptsEveryUnregisteredIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	ctx := context.Background()

	for _, identity := range []string{"201", "202", "203"} {
		f.seedCredentials(t, identity)
		require.NoError(t, f.store.AddKnownIdentity(ctx, identity))
	}

	outcomes, err := f.engine.ReconnectAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		assert.Equal(t, OutcomeConnected, outcome.Status, "identity %s", outcome.Identity)
		assert.Len(t, f.transport.Conns(outcome.Identity), 1)
	}

	require.Eventually(t, func() bool {
		return f.registry.Count() == 3
	}, waitFor, time.Millisecond)
}

func TestReconnectAll_SkipsRegisteredIdentities(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	ctx := context.Background()

	f.openSession(t, "210")
	f.seedCredentials(t, "211")
	require.NoError(t, f.store.AddKnownIdentity(ctx, "211"))

	outcomes, err := f.engine.ReconnectAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byIdentity := map[string]string{}
	for _, outcome := range outcomes {
		byIdentity[outcome.Identity] = outcome.Status
	}
	assert.Equal(t, OutcomeAlreadyConnected, byIdentity["210"])
	assert.Equal(t, OutcomeConnected, byIdentity["211"])
	// The registered identity saw no new transport activity.
	assert.Len(t, f.transport.Conns("210"), 1)
}

func TestReconnectAll_ReportsFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.seedCredentials(t, "220")
	require.NoError(t, f.store.AddKnownIdentity(ctx, "220"))
	f.transport.ConnectErr = errors.New("endpoint down")

	outcomes, err := f.engine.ReconnectAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeFailed, outcomes[0].Status)
	assert.NotEmpty(t, outcomes[0].Error)
}

func TestReconnectAll_PacesSequentially(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	ctx := context.Background()

	pacing := 30 * time.Millisecond
	f.cfg.ReconnectPacing = config.Duration(pacing)

	for _, identity := range []string{"230", "231", "232"} {
		f.seedCredentials(t, identity)
		require.NoError(t, f.store.AddKnownIdentity(ctx, identity))
	}

	started := time.Now()
	outcomes, err := f.engine.ReconnectAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// Three attempts with two pacing gaps between them.
	assert.GreaterOrEqual(t, time.Since(started), 2*pacing)
}

func TestReconnectAll_HonorsCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	ctx, cancel := context.WithCancel(context.Background())

	for _, identity := range []string{"240", "241"} {
		f.seedCredentials(t, identity)
		require.NoError(t, f.store.AddKnownIdentity(ctx, identity))
	}
	cancel()

	outcomes, err := f.engine.ReconnectAll(ctx)
	// The first attempt may land before the pacing wait observes the
	// cancelled context; no further attempts follow.
	assert.Error(t, err)
	assert.LessOrEqual(t, len(outcomes), 1)
}
