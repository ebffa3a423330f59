package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlobby/lobbyd/internal/core"
)

type readResult struct {
	line string
	err  error
}

// handle supervises one admitted connection end-to-end: it races inbound
// lines, asynchronous pushes from other sessions, and the idle timer.
func (s *Server) handle(ctx context.Context, conn net.Conn, id uint64) {
	sess := core.NewSession(id)
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		sess.RemoteIP = host
	}

	logger := s.log.With().
		Uint64("session", id).
		Str("conn_id", uuid.New().String()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	logger.Debug().Msg("accepted connection")

	done := make(chan struct{})
	defer conn.Close()
	defer s.release()
	defer s.state.RemoveSession(id)
	defer close(done)
	// A panic in command handling kills only this connection; the deferred
	// teardown above still runs.
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("connection handler panicked")
		}
	}()

	lines := make(chan readResult)
	go readLines(conn, s.opts.MaxLineBytes, lines, done)

	idle := s.opts.IdleTimeout
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("server shutting down, closing connection")
			return

		case r := <-lines:
			if r.err != nil {
				switch {
				case errors.Is(r.err, io.EOF):
					logger.Info().Msg("connection closed by peer")
				case errors.Is(r.err, errLineTooLong):
					logger.Error().Err(r.err).Msg("framing error")
				default:
					logger.Error().Err(r.err).Msg("read error")
				}
				return
			}
			// Only authenticated sessions refresh the idle timer.
			if sess.IsLogged() {
				sess.Touch()
			}
			logger.Debug().Str("line", r.line).Msg("received")
			s.disp.Dispatch(ctx, sess, r.line)
			if out := sess.TakeOutput(); out != "" {
				if err := writeLine(conn, out); err != nil {
					logger.Error().Err(err).Msg("write error")
					return
				}
			}

		case msg := <-sess.Out:
			if err := writeLine(conn, msg); err != nil {
				logger.Error().Err(err).Msg("write error")
				return
			}

		case <-timer.C:
			idleFor := time.Since(sess.LastActivity())
			if idleFor >= idle {
				logger.Error().Dur("idle", idleFor).Msg("connection timed out")
				return
			}
			timer.Reset(idle - idleFor)
		}
	}
}

// readLines feeds newline-delimited input into out until error. A line past
// the byte cap is a framing error; done unblocks the final send when the
// supervisor has already exited.
func readLines(conn net.Conn, maxLine int, out chan<- readResult, done <-chan struct{}) {
	reader := bufio.NewReaderSize(conn, maxLine)
	for {
		slice, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			err = errLineTooLong
		}

		if len(slice) > 0 && (err == nil || errors.Is(err, io.EOF)) {
			line := strings.TrimRight(string(slice), "\n")
			select {
			case out <- readResult{line: line}:
			case <-done:
				return
			}
			if err == nil {
				continue
			}
		}

		if err == nil {
			err = io.EOF
		}
		select {
		case out <- readResult{err: err}:
		case <-done:
		}
		return
	}
}
