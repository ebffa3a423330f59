// Package server owns the TCP listener and the per-connection supervisor loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/metrics"
	"github.com/openlobby/lobbyd/internal/protocol"
)

const denialLine = "DENIED too many connections, sorry!\n"

// Options configures a Server.
type Options struct {
	Addr           string
	MaxConnections int
	MaxLineBytes   int
	IdleTimeout    time.Duration
}

// Server accepts lobby protocol connections and runs one supervisor
// goroutine per admitted client.
type Server struct {
	opts    Options
	disp    *protocol.Dispatcher
	state   *core.State
	log     *zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	active int
	nextID uint64

	ln net.Listener
}

// New constructs a server. Call Listen then Serve.
func New(opts Options, disp *protocol.Dispatcher, state *core.State, m *metrics.Metrics, logger *zerolog.Logger) *Server {
	return &Server{
		opts:    opts,
		disp:    disp,
		state:   state,
		metrics: m,
		log:     logger,
	}
}

// Listen binds the TCP listener so Addr is known before Serve starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("awaiting TCP connections")
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		id, admitted := s.admit()
		if !admitted {
			s.log.Error().Int("active", s.activeCount()).Int("limit", s.opts.MaxConnections).Msg("too many connections")
			if s.metrics != nil {
				s.metrics.DeniedConnections.Inc()
			}
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.Write([]byte(denialLine))
			conn.Close()
			continue
		}

		if s.metrics != nil {
			s.metrics.AcceptedConnections.Inc()
			s.metrics.ActiveConnections.Inc()
		}
		go s.handle(ctx, conn, id)
	}
}

// admit reserves a connection slot and a session id. A denied connection is
// never counted against the active set.
func (s *Server) admit() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active >= s.opts.MaxConnections {
		return 0, false
	}
	s.active++
	s.nextID++
	return s.nextID, true
}

func (s *Server) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveConnections.Dec()
	}
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// writeLine writes one already-terminated chunk, terminating text that lacks
// a trailing newline.
func writeLine(conn net.Conn, text string) error {
	if len(text) == 0 {
		return nil
	}
	if text[len(text)-1] != '\n' {
		text += "\n"
	}
	_, err := conn.Write([]byte(text))
	return err
}

var errLineTooLong = errors.New("line exceeds maximum length")
