package core

import (
	"strconv"
	"strings"
	"time"
)

// outboundQueueSize bounds the per-session queue for messages pushed by
// other sessions (channel broadcasts). A full queue drops, never blocks.
const outboundQueueSize = 64

// Session holds one connection's runtime state. All fields except Out are
// owned by the connection goroutine; Out is the send handle other sessions
// clone out of a channel's member set to reach this connection.
type Session struct {
	ID       uint64
	Username string
	Access   Access
	// RemoteIP is the peer address, recorded for the login audit trail.
	RemoteIP string

	// Out receives lines pushed asynchronously by other sessions.
	Out chan string

	buf      strings.Builder
	msgID    string
	lastData time.Time
}

// NewSession constructs a session with an initialized outbound queue.
func NewSession(id uint64) *Session {
	return &Session{
		ID:       id,
		Out:      make(chan string, outboundQueueSize),
		lastData: time.Now(),
	}
}

// DisplayName is the username once authenticated, otherwise the session id.
func (s *Session) DisplayName() string {
	if s.Username != "" {
		return s.Username
	}
	return "#" + strconv.FormatUint(s.ID, 10)
}

// IsLogged reports whether the session has authenticated. Unauthenticated
// sessions do not refresh the idle timer on input.
func (s *Session) IsLogged() bool {
	return s.Username != ""
}

// Touch records protocol activity for idle-timeout tracking.
func (s *Session) Touch() {
	s.lastData = time.Now()
}

// LastActivity returns the time of the last recorded activity.
func (s *Session) LastActivity() time.Time {
	return s.lastData
}

// Send appends a response line to the outbound buffer. A pending correlation
// tag is prepended and consumed; if no Send happens for a given command the
// tag survives and attaches to the next response instead.
func (s *Session) Send(text string) {
	if s.msgID != "" {
		s.buf.WriteString(s.msgID)
		s.msgID = ""
	}
	s.buf.WriteString(text)
	s.buf.WriteByte('\n')
}

// TakeOutput drains the outbound buffer for flushing to the socket.
func (s *Session) TakeOutput() string {
	out := s.buf.String()
	s.buf.Reset()
	return out
}

// Push queues a line for asynchronous delivery to this session's connection.
// Delivery is best-effort: a full queue drops the line and reports false.
func (s *Session) Push(text string) bool {
	select {
	case s.Out <- text:
		return true
	default:
		return false
	}
}

// SetMessageID strips a leading "#<digits> " correlation tag from msg,
// remembering it so the next Send is prefixed with it. A leading token that
// is not a valid non-negative integer leaves msg untouched. A tag left
// unconsumed by a silent command survives until the next Send; only a new
// tagged line replaces it.
func (s *Session) SetMessageID(msg string) string {
	if !strings.HasPrefix(msg, "#") {
		return msg
	}

	head, rest, found := strings.Cut(msg, " ")
	n, err := strconv.ParseUint(head[1:], 10, 64)
	if err != nil {
		return msg
	}

	s.msgID = "#" + strconv.FormatUint(n, 10) + " "
	if !found {
		return ""
	}
	return rest
}
