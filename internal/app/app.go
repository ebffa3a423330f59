// Package app wires the store, protocol engine, and transports together.
package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyd/internal/config"
	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/metrics"
	"github.com/openlobby/lobbyd/internal/natserver"
	"github.com/openlobby/lobbyd/internal/protocol"
	"github.com/openlobby/lobbyd/internal/server"
	"github.com/openlobby/lobbyd/internal/store"
	"github.com/openlobby/lobbyd/internal/store/sqlite"
)

// sweepInterval bounds memory held by stale antispam windows.
const sweepInterval = time.Minute

// App is the assembled server process.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	store   store.Store
	state   *core.State
	spam    *core.SpamGuard
	metrics *metrics.Metrics
	chat    *server.Server
	nat     *natserver.Server
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	state := core.NewState()
	spam := core.NewSpamGuard()
	m := metrics.New()

	env := &protocol.Env{
		State:   state,
		Spam:    spam,
		Store:   st,
		Metrics: m,
		Log:     logger,
		Probe:   udpProbe,
	}
	disp := protocol.NewDispatcher(env)

	chat := server.New(server.Options{
		Addr:           cfg.Addr,
		MaxConnections: cfg.MaxConnections,
		MaxLineBytes:   cfg.MaxLineBytes,
		IdleTimeout:    cfg.IdleTimeout,
	}, disp, state, m, logger)

	nat := natserver.New(cfg.NATAddr, logger)

	return &App{
		cfg:     cfg,
		log:     logger,
		store:   st,
		state:   state,
		spam:    spam,
		metrics: m,
		chat:    chat,
		nat:     nat,
	}, nil
}

// Run starts the TCP server, the NAT helper, and housekeeping, and blocks
// until context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 2)

	go func() {
		serverErr <- a.chat.Serve(ctx)
	}()
	go func() {
		serverErr <- a.nat.Run(ctx)
	}()

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				a.log.Warn().Err(err).Msg("metrics server exited")
			}
		}()
	}

	go a.sweepLoop(ctx)

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		a.cleanup()
		return nil
	}
}

// sweepLoop periodically drops stale antispam windows.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.spam.Sweep(now)
		}
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// udpProbe fires one fire-and-forget datagram at host:port.
func udpProbe(host string, port int) error {
	conn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("PING")); err != nil {
		return err
	}
	return nil
}
