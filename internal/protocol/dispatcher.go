// Package protocol turns inbound text lines into validated, executed commands.
package protocol

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/metrics"
	"github.com/openlobby/lobbyd/internal/store"
)

// Env carries the shared collaborators commands execute against.
// Store, Metrics, and Probe may be nil; commands degrade gracefully.
type Env struct {
	State   *core.State
	Spam    *core.SpamGuard
	Store   store.Store
	Metrics *metrics.Metrics
	Log     *zerolog.Logger
	// Probe fires one best-effort UDP probe packet at host:port.
	Probe func(host string, port int) error
}

// Command is one resolvable protocol operation. Parse must fully validate the
// raw argument string before Run performs any mutation.
type Command interface {
	Parse(args string) error
	Run(ctx context.Context, env *Env, sess *core.Session)
}

// Dispatcher resolves command names against a registry of factories.
// The registry is open for extension: Register new descriptors without
// touching the dispatch loop.
type Dispatcher struct {
	env      *Env
	registry map[string]func() Command
}

// NewDispatcher builds a dispatcher with the built-in command set.
func NewDispatcher(env *Env) *Dispatcher {
	d := &Dispatcher{
		env:      env,
		registry: make(map[string]func() Command),
	}
	d.Register("ping", func() Command { return &pingCommand{} })
	d.Register("say", func() Command { return &sayCommand{} })
	d.Register("porttest", func() Command { return &portTestCommand{} })
	d.Register("login", func() Command { return &loginCommand{} })
	d.Register("join", func() Command { return &joinCommand{} })
	d.Register("leave", func() Command { return &leaveCommand{} })
	d.Register("mute", func() Command { return &muteCommand{} })
	return d
}

// Register installs a factory under a lowercase command name.
func (d *Dispatcher) Register(name string, factory func() Command) {
	d.registry[strings.ToLower(name)] = factory
}

// Dispatch processes one raw inbound line against the session. Domain and
// parse failures are reported to the client or logged; nothing escapes this
// boundary, including panics from a command.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *core.Session, line string) {
	defer func() {
		if r := recover(); r != nil {
			d.env.Log.Error().Interface("panic", r).Uint64("session", sess.ID).Msg("command panicked")
		}
	}()

	msg := sess.SetMessageID(line)
	msg = strings.TrimLeft(msg, " ")
	msg = strings.TrimRight(msg, "\r")
	if msg == "" {
		return
	}

	head, args, _ := strings.Cut(msg, " ")
	name := strings.ToLower(head)

	factory, ok := d.registry[name]
	if !ok {
		d.env.Log.Error().Msgf("%s failed. Unknown command. (args='%s')", name, msg)
		fail(sess, strings.ToUpper(name), "Unknown command.")
		return
	}

	if d.env.Metrics != nil {
		d.env.Metrics.Commands.WithLabelValues(name).Inc()
	}

	cmd := factory()
	if err := cmd.Parse(args); err != nil {
		d.env.Log.Debug().Err(err).Str("command", name).Msg("argument parse failed")
		fail(sess, strings.ToUpper(name), err.Error())
		return
	}

	cmd.Run(ctx, d.env, sess)
}

// fail appends the structured failure response for domain-level errors.
func fail(sess *core.Session, cmd, msg string) {
	sess.Send("FAILED msg=" + msg + "\tcmd=" + cmd)
}
