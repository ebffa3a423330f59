package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openlobby/lobbyd/internal/auth"
	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/store"
)

// pingCommand answers PONG, echoing an optional token.
type pingCommand struct {
	token string
}

func (c *pingCommand) Parse(args string) error {
	c.token = args
	return nil
}

func (c *pingCommand) Run(_ context.Context, _ *Env, sess *core.Session) {
	if c.token == "" {
		sess.Send("PONG")
		return
	}
	sess.Send("PONG " + c.token)
}

// sayCommand broadcasts a moderated message to a channel.
type sayCommand struct {
	channel string
	message string
}

func (c *sayCommand) Parse(args string) error {
	channel, rest, _ := strings.Cut(args, " ")
	if channel == "" {
		return errors.New("missing channel name")
	}
	c.channel = channel
	c.message = rest
	return nil
}

func (c *sayCommand) Run(ctx context.Context, env *Env, sess *core.Session) {
	msg := strings.TrimSpace(c.message)
	if msg == "" {
		return
	}

	ch := env.State.Channel(c.channel)
	if ch == nil {
		fail(sess, "SAY", fmt.Sprintf("Channel %s does not exist", c.channel))
		return
	}
	if !ch.HasMember(sess.ID) {
		fail(sess, "SAY", fmt.Sprintf("Not present in channel %s", c.channel))
		return
	}

	// The mute check runs twice: already-muted senders skip the antispam
	// hook, and the hook itself may newly mute the sender.
	if !ch.IsMuted(sess.ID) && ch.Antispam && !sess.Access.IsMod() && !ch.IsOp(sess.ID) {
		now := time.Now()
		env.Spam.Record(ch.Name, sess.ID, msg, now)
		if env.Spam.IsSpamming(ch.Name, sess.ID, now) {
			ch.Mute(sess.ID, now.Add(core.MuteDuration))
			if env.Metrics != nil {
				env.Metrics.Mutes.Inc()
			}
			env.Log.Info().Uint64("session", sess.ID).Str("channel", ch.Name).Msg("antispam mute installed")
		}
	}
	if ch.IsMuted(sess.ID) {
		sess.Send(fmt.Sprintf("CHANNELMESSAGE %s You are muted.", ch.Name))
		return
	}

	if ch.StoreHistory && env.Store != nil {
		if err := env.Store.AddChannelMessage(ctx, ch.Name, sess.DisplayName(), "", msg, false); err != nil {
			env.Log.Warn().Err(err).Str("channel", ch.Name).Msg("failed to store channel message")
		}
	}

	ch.Broadcast(fmt.Sprintf("SAID %s %d %s", ch.Name, sess.ID, msg))
	if env.Metrics != nil {
		env.Metrics.BroadcastMessages.Inc()
	}
}

// portTestCommand fires a fire-and-forget UDP probe at host:port.
type portTestCommand struct {
	host string
	port int
}

func (c *portTestCommand) Parse(args string) error {
	host, portStr, found := strings.Cut(args, " ")
	if host == "" || !found {
		return errors.New("expected host and port")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", strings.TrimSpace(portStr))
	}
	c.host = host
	c.port = port
	return nil
}

func (c *portTestCommand) Run(_ context.Context, env *Env, _ *core.Session) {
	probe := env.Probe
	if probe == nil {
		return
	}
	log := env.Log
	host, port := c.host, c.port
	// Never awaited; failures are logged and swallowed.
	go func() {
		if err := probe(host, port); err != nil {
			log.Warn().Err(err).Str("host", host).Int("port", port).Msg("udp probe failed")
		}
	}()
}

// loginCommand authenticates the session against the account store.
type loginCommand struct {
	username string
	password string
}

func (c *loginCommand) Parse(args string) error {
	username, password, found := strings.Cut(args, " ")
	if username == "" || !found || password == "" {
		return errors.New("expected username and password")
	}
	c.username = username
	c.password = password
	return nil
}

func (c *loginCommand) Run(ctx context.Context, env *Env, sess *core.Session) {
	if sess.IsLogged() {
		fail(sess, "LOGIN", "Already logged in")
		return
	}
	if env.Store == nil {
		fail(sess, "LOGIN", "Login not available")
		return
	}

	user, err := env.Store.FindUserByUsername(ctx, c.username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			env.Log.Error().Err(err).Str("username", c.username).Msg("user lookup failed")
		}
		fail(sess, "LOGIN", "Invalid username or password")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, c.password) {
		fail(sess, "LOGIN", "Invalid username or password")
		return
	}

	sess.Username = user.Username
	sess.Access = core.ParseAccess(user.Access)
	sess.Touch()

	if err := env.Store.TouchLastLogin(ctx, user.ID, sess.RemoteIP); err != nil {
		env.Log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to record login")
	}

	sess.Send("ACCEPTED " + user.Username)
}

// joinCommand subscribes the session to a channel, creating it on first
// reference. The creating session becomes the founder.
type joinCommand struct {
	channel string
}

func (c *joinCommand) Parse(args string) error {
	channel, _, _ := strings.Cut(args, " ")
	if channel == "" {
		return errors.New("missing channel name")
	}
	c.channel = channel
	return nil
}

// historyReplayLimit caps the stored lines replayed to a joining session.
const historyReplayLimit = 10

func (c *joinCommand) Run(ctx context.Context, env *Env, sess *core.Session) {
	ch := env.State.GetOrCreate(c.channel, sess.ID)
	if !ch.Join(sess.Handle()) {
		fail(sess, "JOIN", fmt.Sprintf("Already present in channel %s", c.channel))
		return
	}
	sess.Send("JOIN " + ch.Name)
	if ch.StoreHistory && env.Store != nil {
		msgs, err := env.Store.ChannelHistory(ctx, ch.Name, historyReplayLimit)
		if err != nil {
			env.Log.Warn().Err(err).Str("channel", ch.Name).Msg("failed to load channel history")
		}
		for _, m := range msgs {
			sess.Send(fmt.Sprintf("SAIDHISTORY %s %s %s", ch.Name, m.Sender, m.Text))
		}
	}
	ch.Broadcast(fmt.Sprintf("JOINED %s %s", ch.Name, sess.DisplayName()))
}

// leaveCommand unsubscribes the session from a channel.
type leaveCommand struct {
	channel string
}

func (c *leaveCommand) Parse(args string) error {
	channel, _, _ := strings.Cut(args, " ")
	if channel == "" {
		return errors.New("missing channel name")
	}
	c.channel = channel
	return nil
}

func (c *leaveCommand) Run(_ context.Context, env *Env, sess *core.Session) {
	ch := env.State.Channel(c.channel)
	if ch == nil {
		fail(sess, "LEAVE", fmt.Sprintf("Channel %s does not exist", c.channel))
		return
	}
	if !ch.HasMember(sess.ID) {
		fail(sess, "LEAVE", fmt.Sprintf("Not present in channel %s", c.channel))
		return
	}
	ch.Broadcast(fmt.Sprintf("LEFT %s %s", ch.Name, sess.DisplayName()))
	ch.Leave(sess.ID)
}

// muteCommand installs a timed mute on a channel member. Restricted to
// channel operators and server moderators.
type muteCommand struct {
	channel string
	target  uint64
	seconds int
}

func (c *muteCommand) Parse(args string) error {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return errors.New("expected channel, session id, and duration in seconds")
	}
	target, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", fields[1])
	}
	seconds, err := strconv.Atoi(fields[2])
	if err != nil || seconds <= 0 {
		return fmt.Errorf("invalid duration %q", fields[2])
	}
	c.channel = fields[0]
	c.target = target
	c.seconds = seconds
	return nil
}

func (c *muteCommand) Run(_ context.Context, env *Env, sess *core.Session) {
	ch := env.State.Channel(c.channel)
	if ch == nil {
		fail(sess, "MUTE", fmt.Sprintf("Channel %s does not exist", c.channel))
		return
	}
	if !ch.IsOp(sess.ID) && !sess.Access.IsMod() {
		fail(sess, "MUTE", fmt.Sprintf("Not an operator in channel %s", c.channel))
		return
	}
	ch.Mute(c.target, time.Now().Add(time.Duration(c.seconds)*time.Second))
	sess.Send(fmt.Sprintf("MUTED %s %d %d", ch.Name, c.target, c.seconds))
}
