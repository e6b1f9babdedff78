package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/event"
	"github.com/botmesh/botmesh/internal/registry"
	"github.com/botmesh/botmesh/internal/store"
	"github.com/botmesh/botmesh/internal/transport"
	"github.com/botmesh/botmesh/internal/transport/memory"
)

const waitFor = 2 * time.Second

type fixture struct {
	engine    *Engine
	transport *memory.Transport
	store     store.Store
	registry  *registry.Registry
	bus       *event.Bus
	cfg       *config.Config
	toggles   *config.Toggles
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.OwnerNumber = "999"
	cfg.PairingInitialDelay = config.Duration(time.Millisecond)
	cfg.PairingRetryDelay = config.Duration(time.Millisecond)
	cfg.ReconnectDelay = config.Duration(10 * time.Millisecond)
	cfg.ReconnectPacing = config.Duration(10 * time.Millisecond)

	if st == nil {
		st = store.NewDocumentStore(t.TempDir())
	}
	tr := memory.New()
	reg := registry.New()
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	toggles := config.NewToggles(cfg)
	dispatcher := dispatch.New(dispatch.NewRegistry(), cfg)

	return &fixture{
		engine:    NewEngine(tr, st, reg, bus, dispatcher, cfg, toggles),
		transport: tr,
		store:     st,
		registry:  reg,
		bus:       bus,
		cfg:       cfg,
		toggles:   toggles,
	}
}

func (f *fixture) seedCredentials(t *testing.T, identity string) {
	t.Helper()
	require.NoError(t, f.store.PutCredentials(context.Background(), identity,
		json.RawMessage(`{"noise":"key"}`), json.RawMessage(`{"pre":"keys"}`)))
}

func (f *fixture) openSession(t *testing.T, identity string) *memory.Conn {
	t.Helper()
	f.seedCredentials(t, identity)
	_, err := f.engine.StartPairing(context.Background(), identity)
	require.NoError(t, err)

	conn := f.transport.LastConn(identity)
	require.NotNil(t, conn)
	if !f.transport.AutoOpen {
		conn.Emit(transport.ConnectionOpened{SelfID: transport.UserAddress(identity)})
	}
	require.Eventually(t, func() bool {
		_, ok := f.registry.Get(identity)
		return ok
	}, waitFor, time.Millisecond)
	return conn
}

func TestStartPairing_NewIdentityGetsCode(t *testing.T) {
	f := newFixture(t, nil)

	code, err := f.engine.StartPairing(context.Background(), "+94 77 123 4567")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", code)

	conn := f.transport.LastConn("94771234567")
	require.NotNil(t, conn)
	assert.Equal(t, 1, conn.PairingCalls())
}

func TestStartPairing_InvalidIdentity(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.StartPairing(context.Background(), "no digits")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Empty(t, f.transport.Conns("no digits"))
}

func TestStartPairing_AlreadyConnected(t *testing.T) {
	f := newFixture(t, nil)
	f.openSession(t, "111")

	_, err := f.engine.StartPairing(context.Background(), "111")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	// No second transport connect happened.
	assert.Len(t, f.transport.Conns("111"), 1)
}

func TestStartPairing_RestoredCredentialsSkipPairing(t *testing.T) {
	f := newFixture(t, nil)
	f.seedCredentials(t, "222")

	code, err := f.engine.StartPairing(context.Background(), "222")
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, 0, f.transport.LastConn("222").PairingCalls())
}

func TestStartPairing_PairingExhaustion(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.PairingErr = errors.New("rate limited")

	_, err := f.engine.StartPairing(context.Background(), "333")
	assert.ErrorIs(t, err, ErrUnavailable)

	conn := f.transport.LastConn("333")
	assert.Equal(t, f.cfg.PairingAttempts, conn.PairingCalls())
	assert.True(t, conn.Closed())
}

func TestStartPairing_ConnectFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.ConnectErr = errors.New("endpoint down")

	_, err := f.engine.StartPairing(context.Background(), "444")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRun_CredentialWriteThrough(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.openSession(t, "555")

	conn.Emit(transport.CredentialsUpdated{Credentials: transport.Credentials{
		Creds: json.RawMessage(`{"gen":1}`),
	}})
	conn.Emit(transport.CredentialsUpdated{Credentials: transport.Credentials{
		Creds: json.RawMessage(`{"gen":2}`),
	}})

	require.Eventually(t, func() bool {
		rec, err := f.store.GetCredentials(context.Background(), "555")
		return err == nil && string(rec.Creds) == `{"gen":2}`
	}, waitFor, time.Millisecond)
}

func TestRun_OpenRegistersAndConfirms(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.openSession(t, "666")

	identities, err := f.store.ListKnownIdentities(context.Background())
	require.NoError(t, err)
	assert.Contains(t, identities, "666")

	sent := conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "666@s.whatsapp.net", sent[0].ConversationID)
	assert.Contains(t, sent[0].Content.Text, "connected")
}

func TestRun_DuplicateOpenAborts(t *testing.T) {
	f := newFixture(t, nil)
	first := f.openSession(t, "777")

	// A second attempt for the same identity reaches Open concurrently.
	conn2, err := f.transport.Connect(context.Background(), "777",
		&transport.Credentials{Creds: json.RawMessage(`{}`)})
	require.NoError(t, err)
	mc2 := conn2.(*memory.Conn)
	go f.engine.run("777", mc2, f.engine.log)
	mc2.Emit(transport.ConnectionOpened{SelfID: "777@s.whatsapp.net"})

	require.Eventually(t, mc2.Closed, waitFor, time.Millisecond)

	// The original session is untouched.
	session, ok := f.registry.Get("777")
	require.True(t, ok)
	assert.Same(t, first, session.Conn)
}

func TestRun_CloseWithoutOpenLeavesLiveSessionAlone(t *testing.T) {
	f := newFixture(t, nil)
	first := f.openSession(t, "950")

	// A rival connection for the same identity dies before ever opening.
	// Its closure must not evict the live session or spawn a replacement.
	conn2, err := f.transport.Connect(context.Background(), "950",
		&transport.Credentials{Creds: json.RawMessage(`{}`)})
	require.NoError(t, err)
	mc2 := conn2.(*memory.Conn)
	go f.engine.run("950", mc2, f.engine.log)
	mc2.Emit(transport.ConnectionClosed{Code: 500, HasCode: true})

	time.Sleep(5 * f.cfg.ReconnectDelay.Std())
	session, ok := f.registry.Get("950")
	require.True(t, ok)
	assert.Same(t, first, session.Conn)
	assert.False(t, first.Closed())
	// Still just the winner and the dead rival, no third connection.
	assert.Len(t, f.transport.Conns("950"), 2)
}

func TestRun_LogoutCleansEverything(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.openSession(t, "888")

	cleaned := make(chan struct{})
	f.bus.Subscribe(event.SessionCleaned, func(event.Event) { close(cleaned) })

	conn.Emit(transport.ConnectionClosed{Code: transport.StatusLoggedOut, HasCode: true})

	select {
	case <-cleaned:
	case <-time.After(waitFor):
		t.Fatal("cleanup event never arrived")
	}

	_, ok := f.registry.Get("888")
	assert.False(t, ok)
	_, err := f.store.GetCredentials(context.Background(), "888")
	assert.ErrorIs(t, err, store.ErrNotFound)
	identities, err := f.store.ListKnownIdentities(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, identities, "888")

	// No reconnect for a logged-out identity.
	time.Sleep(5 * f.cfg.ReconnectDelay.Std())
	assert.Len(t, f.transport.Conns("888"), 1)
}

func TestRun_TransientCloseReconnects(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	conn := f.openSession(t, "900")

	conn.Emit(transport.ConnectionClosed{Code: 408, HasCode: true})

	// A single new connect attempt appears and reaches Open again.
	require.Eventually(t, func() bool {
		return len(f.transport.Conns("900")) == 2
	}, waitFor, time.Millisecond)
	require.Eventually(t, func() bool {
		session, ok := f.registry.Get("900")
		return ok && session.Conn != transport.Conn(conn)
	}, waitFor, time.Millisecond)

	// The registry re-check prevents a duplicate attempt from the same drop.
	time.Sleep(5 * f.cfg.ReconnectDelay.Std())
	assert.Len(t, f.transport.Conns("900"), 2)
}

func TestRun_StreamEndWithoutCloseReconnects(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	conn := f.openSession(t, "901")

	// Transport died without reporting anything.
	conn.EndStream()

	require.Eventually(t, func() bool {
		return len(f.transport.Conns("901")) == 2
	}, waitFor, time.Millisecond)
}

// failingStore injects write failures while delegating everything else.
type failingStore struct {
	store.Store
	putErr error
}

func (f *failingStore) PutCredentials(ctx context.Context, identity string, creds, keys json.RawMessage) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.PutCredentials(ctx, identity, creds, keys)
}

func TestRun_StoreFailureKeepsSessionAlive(t *testing.T) {
	backing := store.NewDocumentStore(t.TempDir())
	failing := &failingStore{Store: backing}
	f := newFixture(t, failing)

	// Seed through the backing store, then fail every later write.
	require.NoError(t, backing.PutCredentials(context.Background(), "902",
		json.RawMessage(`{}`), nil))
	failing.putErr = errors.New("disk full")

	_, err := f.engine.StartPairing(context.Background(), "902")
	require.NoError(t, err)
	conn := f.transport.LastConn("902")
	conn.Emit(transport.ConnectionOpened{SelfID: "902@s.whatsapp.net"})
	require.Eventually(t, func() bool {
		_, ok := f.registry.Get("902")
		return ok
	}, waitFor, time.Millisecond)

	conn.Emit(transport.CredentialsUpdated{Credentials: transport.Credentials{
		Creds: json.RawMessage(`{"gen":9}`),
	}})

	// The session keeps running in a degraded state.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, conn.Closed())
	_, ok := f.registry.Get("902")
	assert.True(t, ok)
}

func TestStartPairing_ConcurrentSameIdentity(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.AutoOpen = true
	f.seedCredentials(t, "903")

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.engine.StartPairing(context.Background(), "903")
			results <- err
		}()
	}
	err1 := <-results
	err2 := <-results

	// Both may connect, but exactly one session wins the registry.
	require.Eventually(t, func() bool {
		_, ok := f.registry.Get("903")
		return ok
	}, waitFor, time.Millisecond)
	assert.Equal(t, 1, f.registry.Count())
	for _, err := range []error{err1, err2} {
		if err != nil {
			assert.ErrorIs(t, err, ErrAlreadyConnected)
		}
	}
}
