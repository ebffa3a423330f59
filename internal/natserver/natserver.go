// Package natserver answers UDP probes so clients can verify their NAT
// forwards an external port. Stateless: any datagram gets a PONG back.
package natserver

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

var response = []byte("PONG")

// Server is the UDP responder.
type Server struct {
	addr string
	log  *zerolog.Logger

	pc net.PacketConn
}

// New constructs a responder for the given UDP address.
func New(addr string, logger *zerolog.Logger) *Server {
	return &Server{addr: addr, log: logger}
}

// Addr returns the bound address, or nil before Run.
func (s *Server) Addr() net.Addr {
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

// Listen binds the UDP socket so Addr is known before Run starts.
func (s *Server) Listen() error {
	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("listen udp on %s: %w", s.addr, err)
	}
	s.pc = pc
	s.log.Info().Str("addr", pc.LocalAddr().String()).Msg("awaiting UDP messages")
	return nil
}

// Run replies PONG to every datagram until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.pc == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.pc.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, addr, err := s.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}

		msg := trimMessage(string(buf[:n]))
		s.log.Debug().Int("bytes", n).Str("from", addr.String()).Str("msg", msg).Msg("udp probe received")

		if _, err := s.pc.WriteTo(response, addr); err != nil {
			s.log.Warn().Err(err).Str("to", addr.String()).Msg("udp reply failed")
		}
	}
}

// trimMessage drops trailing newlines and spaces from a probe payload.
func trimMessage(data string) string {
	return strings.TrimRight(strings.TrimRight(data, "\n"), " ")
}
