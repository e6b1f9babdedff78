// Package main provides the entry point for the botmesh server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/event"
	"github.com/botmesh/botmesh/internal/handlers"
	"github.com/botmesh/botmesh/internal/lifecycle"
	"github.com/botmesh/botmesh/internal/logging"
	"github.com/botmesh/botmesh/internal/registry"
	"github.com/botmesh/botmesh/internal/server"
	"github.com/botmesh/botmesh/internal/store"
	"github.com/botmesh/botmesh/internal/transport"
	"github.com/botmesh/botmesh/internal/transport/memory"
)

var (
	port       = flag.Int("port", 0, "HTTP port (overrides config)")
	configPath = flag.String("config", "botmesh.jsonc", "Path to the config file")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("botmesh-server %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: os.Getenv("BOTMESH_PRETTY_LOGS") != ""})
	log := logging.Logger.With().Str("component", "main").Logger()
	log.Info().Str("version", Version).Int("port", cfg.Port).Msg("starting botmesh")

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	tr := openTransport(cfg)

	reg := registry.New()
	bus := event.NewBus()
	defer bus.Close()
	toggles := config.NewToggles(cfg)

	deps := &handlers.Deps{
		Cfg:       cfg,
		Toggles:   toggles,
		Store:     st,
		Registry:  reg,
		StartedAt: time.Now(),
	}
	commands := deps.Commands()
	dispatcher := dispatch.New(commands, cfg)
	engine := lifecycle.NewEngine(tr, st, reg, bus, dispatcher, cfg, toggles)

	srv := server.New(cfg, engine, reg, commands)
	go func() {
		log.Info().Msgf("listening on http://localhost:%d", cfg.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Resume every known identity in the background; pairing endpoints are
	// usable while this runs.
	go func() {
		outcomes, err := engine.ReconnectAll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("startup reconnect failed")
			return
		}
		log.Info().Int("identities", len(outcomes)).Msg("startup reconnect finished")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	reg.CloseAll()

	log.Info().Msg("stopped")
}

// openStore selects Postgres when a database URL is configured, otherwise
// the file-backed document store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return store.NewDocumentStore(cfg.DataDir), nil
}

// openTransport returns the transport named by the configuration. Real
// protocol transports register themselves via build-specific wiring; the
// in-memory transport serves development runs.
func openTransport(cfg *config.Config) transport.Transport {
	if cfg.Transport == "memory" {
		logging.Logger.Warn().Msg("using in-memory transport, sessions are not real")
		tr := memory.New()
		tr.AutoOpen = true
		return tr
	}
	logging.Logger.Warn().Str("transport", cfg.Transport).Msg("no protocol transport configured, falling back to in-memory")
	return memory.New()
}
