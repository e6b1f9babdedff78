// Package lifecycle drives the per-identity connection state machine:
// credential restore, pairing, registration, credential write-through,
// close classification and reconnection.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/event"
	"github.com/botmesh/botmesh/internal/logging"
	"github.com/botmesh/botmesh/internal/registry"
	"github.com/botmesh/botmesh/internal/store"
	"github.com/botmesh/botmesh/internal/transport"
)

var (
	// ErrAlreadyConnected means the identity holds a live session; the
	// caller gets an already-connected indication, not a failure.
	ErrAlreadyConnected = errors.New("lifecycle: identity already connected")
	// ErrInvalidIdentity means the input contained no digits.
	ErrInvalidIdentity = errors.New("lifecycle: invalid identity")
	// ErrUnavailable means the transport could not be reached or the
	// pairing-code attempts were exhausted.
	ErrUnavailable = errors.New("lifecycle: transport unavailable")
)

// Engine owns every session's lifecycle. One engine serves the process;
// each connection runs its own event loop goroutine.
type Engine struct {
	transport  transport.Transport
	store      store.Store
	registry   *registry.Registry
	bus        *event.Bus
	dispatcher *dispatch.Dispatcher
	cfg        *config.Config
	toggles    *config.Toggles
	log        zerolog.Logger
}

// NewEngine wires the engine's collaborators.
func NewEngine(
	tr transport.Transport,
	st store.Store,
	reg *registry.Registry,
	bus *event.Bus,
	dispatcher *dispatch.Dispatcher,
	cfg *config.Config,
	toggles *config.Toggles,
) *Engine {
	return &Engine{
		transport:  tr,
		store:      st,
		registry:   reg,
		bus:        bus,
		dispatcher: dispatcher,
		cfg:        cfg,
		toggles:    toggles,
		log:        logging.Logger.With().Str("component", "lifecycle").Logger(),
	}
}

// StartPairing begins a session for user-supplied input. It returns the
// pairing code when the identity has never paired, or "" when credentials
// were restored. An identity with a live session gets ErrAlreadyConnected.
func (e *Engine) StartPairing(ctx context.Context, raw string) (string, error) {
	identity := transport.NormalizeIdentity(raw)
	if identity == "" {
		return "", ErrInvalidIdentity
	}
	if _, ok := e.registry.Get(identity); ok {
		return "", ErrAlreadyConnected
	}
	return e.start(ctx, identity, false)
}

// start runs one lifecycle attempt up to the point where the connection's
// event loop takes over. reconnect marks automatic attempts, which have no
// caller waiting for a pairing code.
func (e *Engine) start(ctx context.Context, identity string, reconnect bool) (string, error) {
	attempt := ulid.Make().String()
	log := e.log.With().
		Str("identity", identity).
		Str("attempt", attempt).
		Bool("reconnect", reconnect).
		Logger()

	restored := e.restoreCredentials(ctx, identity, log)

	conn, err := e.transport.Connect(ctx, identity, restored)
	if err != nil {
		if reconnect {
			log.Error().Err(err).Msg("reconnect failed")
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Info().Bool("registered", conn.Registered()).Msg("transport connected")

	code := ""
	if !conn.Registered() {
		if reconnect {
			// Credentials should exist on an automatic reconnect; a
			// pairing demand here means the restore path went wrong.
			log.Warn().Msg("unregistered connection on reconnect")
		}
		code, err = e.requestPairingCode(ctx, conn, identity, log)
		if err != nil {
			_ = conn.Close()
			return "", err
		}
		if reconnect {
			// Nobody is waiting for this code.
			code = ""
		}
	}

	go e.run(identity, conn, log)
	return code, nil
}

func (e *Engine) restoreCredentials(ctx context.Context, identity string, log zerolog.Logger) *transport.Credentials {
	rec, err := e.store.GetCredentials(ctx, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		// Degraded start: connect fresh rather than fail the attempt.
		log.Warn().Err(err).Msg("credential restore failed")
		return nil
	}
	return &transport.Credentials{Creds: rec.Creds, Keys: rec.Keys}
}

// requestPairingCode asks the endpoint for a code with a bounded number of
// fixed-interval attempts. The endpoint rate-limits these calls, so the
// bound is never raised at runtime.
func (e *Engine) requestPairingCode(ctx context.Context, conn transport.Conn, identity string, log zerolog.Logger) (string, error) {
	select {
	case <-time.After(e.cfg.PairingInitialDelay.Std()):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	var code string
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(e.cfg.PairingRetryDelay.Std()),
		uint64(e.cfg.PairingAttempts-1),
	), ctx)
	err := backoff.Retry(func() error {
		c, err := conn.RequestPairingCode(ctx, identity)
		if err != nil {
			log.Warn().Err(err).Msg("pairing code request failed")
			return err
		}
		code = c
		return nil
	}, policy)
	if err != nil {
		log.Error().Err(err).Int("attempts", e.cfg.PairingAttempts).Msg("pairing exhausted")
		return "", fmt.Errorf("%w: pairing code: %v", ErrUnavailable, err)
	}
	return code, nil
}

// run is the session task: it consumes the connection's events in order
// until the stream ends, then classifies the closure.
func (e *Engine) run(identity string, conn transport.Conn, log zerolog.Logger) {
	ctx := context.Background()
	sawClose := false

	for ev := range conn.Events() {
		switch ev := ev.(type) {
		case transport.CredentialsUpdated:
			e.persistCredentials(ctx, identity, ev.Credentials, log)

		case transport.ConnectionOpened:
			if !e.openSession(ctx, identity, conn, ev.SelfID, log) {
				return
			}

		case transport.MessageReceived:
			e.handleInbound(ctx, conn, ev.Message, log)

		case transport.GroupParticipantsChanged:
			e.handleParticipants(ctx, conn, ev, log)

		case transport.ConnectionClosed:
			sawClose = true
			e.handleClose(identity, conn, ev, log)
		}
	}

	if !sawClose {
		// Stream ended without a close event: an unexpected drop with no
		// status, classified as recoverable.
		log.Warn().Msg("event stream ended without close")
		e.handleClose(identity, conn, transport.ConnectionClosed{}, log)
	}
}

// persistCredentials writes rotated credentials through to the store. A
// failed write degrades persistence but never the live connection.
func (e *Engine) persistCredentials(ctx context.Context, identity string, creds transport.Credentials, log zerolog.Logger) {
	if err := e.store.PutCredentials(ctx, identity, creds.Creds, creds.Keys); err != nil {
		log.Error().Err(err).Msg("credential write failed")
		return
	}
	e.bus.Publish(event.Event{Type: event.CredentialSaved, Data: event.CredentialPayload{
		Identity: identity,
		At:       time.Now(),
	}})
}

// openSession publishes the connection into the registry. Returns false
// when the identity already holds a session; the new connection aborts.
func (e *Engine) openSession(ctx context.Context, identity string, conn transport.Conn, selfID string, log zerolog.Logger) bool {
	session := &registry.Session{Identity: identity, Conn: conn, StartedAt: time.Now()}
	if !e.registry.TryRegister(identity, session) {
		log.Warn().Msg("duplicate session, aborting this connection")
		_ = conn.Close()
		return false
	}

	if err := e.store.AddKnownIdentity(ctx, identity); err != nil {
		log.Error().Err(err).Msg("known-identity write failed")
	}

	confirmation := fmt.Sprintf("✅ *%s connected*\n\nYour number is now live. Send %smenu to see what it can do.",
		e.cfg.BotName, e.cfg.Prefix)
	if err := conn.SendMessage(ctx, transport.UserAddress(identity),
		transport.Content{Text: confirmation}, nil); err != nil {
		log.Warn().Err(err).Msg("confirmation send failed")
	}

	e.bus.Publish(event.Event{Type: event.SessionOpened, Data: event.SessionPayload{
		Identity: identity,
		SelfID:   selfID,
		At:       time.Now(),
	}})
	log.Info().Str("self_id", selfID).Msg("session open")
	return true
}

// handleClose classifies a closure: logout is terminal and wipes persisted
// state; anything else schedules a paced reconnect off the event path. Only
// the connection that holds the registry entry may evict it and act on the
// closure; a connection that never owned the session closes silently, so a
// losing duplicate can never tear down the winner or spawn a rival.
func (e *Engine) handleClose(identity string, conn transport.Conn, closed transport.ConnectionClosed, log zerolog.Logger) {
	if !e.registry.UnregisterIf(identity, conn) {
		log.Info().Int("code", closed.Code).Msg("close on connection without a session")
		return
	}
	e.bus.Publish(event.Event{Type: event.SessionClosed, Data: event.SessionPayload{
		Identity:   identity,
		StatusCode: closed.Code,
		At:         time.Now(),
	}})

	if closed.LoggedOut() {
		log.Info().Msg("logged out, cleaning up")
		if err := e.store.MarkLogout(context.Background(), identity); err != nil {
			log.Error().Err(err).Msg("logout cleanup failed")
			return
		}
		e.bus.Publish(event.Event{Type: event.SessionCleaned, Data: event.SessionPayload{
			Identity: identity,
			At:       time.Now(),
		}})
		return
	}

	if !conn.Registered() {
		// A connection that never paired has nothing to resume.
		log.Info().Msg("unpaired connection closed")
		return
	}

	delay := e.cfg.ReconnectDelay.Std()
	log.Warn().Int("code", closed.Code).Dur("delay", delay).Msg("connection dropped, reconnecting")
	e.bus.Publish(event.Event{Type: event.ReconnectScheduled, Data: event.ReconnectPayload{
		Identity: identity,
		Delay:    delay,
	}})

	go func() {
		time.Sleep(delay)
		if _, ok := e.registry.Get(identity); ok {
			// Another attempt opened in the meantime.
			log.Info().Msg("reconnect superseded")
			return
		}
		if _, err := e.start(context.Background(), identity, true); err != nil {
			log.Error().Err(err).Msg("reconnect attempt failed")
		}
	}()
}
