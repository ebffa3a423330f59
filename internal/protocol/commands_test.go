package protocol

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openlobby/lobbyd/internal/auth"
	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/store"
)

func TestSayUnknownChannel(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)

	out := te.dispatch(sess, "SAY ghost hello")
	require.Equal(t, "FAILED msg=Channel ghost does not exist\tcmd=SAY\n", out)
	require.Empty(t, drainOut(sess))
}

func TestSayNotAMember(t *testing.T) {
	te := newTestEnv()
	member := core.NewSession(1)
	outsider := core.NewSession(2)
	te.join(member, "main")

	out := te.dispatch(outsider, "SAY main hello")
	require.Equal(t, "FAILED msg=Not present in channel main\tcmd=SAY\n", out)
	require.Empty(t, drainOut(member))
}

func TestSayWhitespaceOnlyIsSilentlyDropped(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)
	te.join(sess, "main")

	require.Empty(t, te.dispatch(sess, "SAY main     "))
	require.Empty(t, drainOut(sess))
	require.Empty(t, te.st.history)
}

func TestSayBroadcastsToAllMembers(t *testing.T) {
	te := newTestEnv()
	alice := core.NewSession(1)
	bob := core.NewSession(2)
	te.join(alice, "main")
	te.join(bob, "main")
	drainOut(alice)

	require.Empty(t, te.dispatch(alice, "SAY main hello world"))

	want := "SAID main 1 hello world"
	require.Equal(t, []string{want}, drainOut(alice), "broadcast includes the sender")
	require.Equal(t, []string{want}, drainOut(bob))
}

func TestSayMutedMemberGetsChannelMessage(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)
	te.join(sess, "main")
	te.env.State.Channel("main").Mute(1, time.Now().Add(time.Minute))

	out := te.dispatch(sess, "SAY main hello")
	require.Equal(t, "CHANNELMESSAGE main You are muted.\n", out)
	require.Empty(t, drainOut(sess), "muted messages are never broadcast")
	require.Empty(t, te.st.history)
}

func TestSayFloodTriggersAntispamMute(t *testing.T) {
	te := newTestEnv()
	flooder := core.NewSession(5)
	// Make someone else the founder so the flooder is unprivileged.
	te.env.State.GetOrCreate("main", 99)
	te.join(flooder, "main")

	var lastOut string
	for i := 0; i < 10; i++ {
		lastOut = te.dispatch(flooder, "SAY main spam spam spam")
	}

	require.Equal(t, "CHANNELMESSAGE main You are muted.\n", lastOut)
	require.True(t, te.env.State.Channel("main").IsMuted(5))

	// Later messages drop straight into the muted notice, no broadcast.
	drainOut(flooder)
	out := te.dispatch(flooder, "SAY main one more")
	require.Equal(t, "CHANNELMESSAGE main You are muted.\n", out)
	require.Empty(t, drainOut(flooder))
}

func TestSayModeratorBypassesAntispam(t *testing.T) {
	te := newTestEnv()
	mod := core.NewSession(5)
	mod.Username = "mod"
	mod.Access = core.AccessUser | core.AccessModerator
	te.env.State.GetOrCreate("main", 99)
	te.join(mod, "main")

	for i := 0; i < 50; i++ {
		require.Empty(t, te.dispatch(mod, "SAY main same message"))
		drainOut(mod)
	}
	require.False(t, te.env.State.Channel("main").IsMuted(5))
}

func TestSayFounderBypassesAntispam(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	te.join(founder, "main")

	for i := 0; i < 50; i++ {
		require.Empty(t, te.dispatch(founder, "SAY main same message"))
		drainOut(founder)
	}
	require.False(t, te.env.State.Channel("main").IsMuted(1))
}

func TestSayStoresHistoryWhenEnabled(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)
	sess.Username = "alice"
	te.join(sess, "main")
	te.env.State.Channel("main").StoreHistory = true

	te.dispatch(sess, "SAY main for the record")

	require.Len(t, te.st.history, 1)
	require.Equal(t, "main", te.st.history[0].Channel)
	require.Equal(t, "alice", te.st.history[0].Sender)
	require.Equal(t, "for the record", te.st.history[0].Text)
}

func TestSayHistoryFailureDoesNotBlockBroadcast(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)
	te.join(sess, "main")
	te.env.State.Channel("main").StoreHistory = true
	te.st.histErr = fmt.Errorf("disk full")

	require.Empty(t, te.dispatch(sess, "SAY main still here"))
	require.Equal(t, []string{"SAID main 1 still here"}, drainOut(sess))
}

func TestPortTestFiresProbe(t *testing.T) {
	te := newTestEnv()
	probed := make(chan string, 1)
	te.env.Probe = func(host string, port int) error {
		probed <- fmt.Sprintf("%s:%d", host, port)
		return nil
	}
	sess := core.NewSession(1)

	require.Empty(t, te.dispatch(sess, "PORTTEST 10.0.0.1 8452"))

	select {
	case got := <-probed:
		require.Equal(t, "10.0.0.1:8452", got)
	case <-time.After(time.Second):
		t.Fatal("probe was never fired")
	}
}

func TestPortTestProbeFailureIsSwallowed(t *testing.T) {
	te := newTestEnv()
	fired := make(chan struct{}, 1)
	te.env.Probe = func(string, int) error {
		fired <- struct{}{}
		return fmt.Errorf("network unreachable")
	}
	sess := core.NewSession(1)

	require.Empty(t, te.dispatch(sess, "PORTTEST example.org 9000"))
	<-fired
}

func TestPortTestRejectsBadArguments(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)

	require.Contains(t, te.dispatch(sess, "PORTTEST onlyhost"), "FAILED")
	require.Contains(t, te.dispatch(sess, "PORTTEST host notaport"), "FAILED")
	require.Contains(t, te.dispatch(sess, "PORTTEST host 99999"), "FAILED")
}

func seedUser(t *testing.T, te *testEnv, name, password, access string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	_, err = te.st.CreateUser(context.Background(), &store.User{
		Username:     name,
		PasswordHash: hash,
		Access:       access,
	})
	require.NoError(t, err)
}

func TestLoginSuccess(t *testing.T) {
	te := newTestEnv()
	seedUser(t, te, "alice", "hunter2", "user,moderator")
	sess := core.NewSession(1)

	out := te.dispatch(sess, "LOGIN alice hunter2")
	require.Equal(t, "ACCEPTED alice\n", out)
	require.Equal(t, "alice", sess.Username)
	require.True(t, sess.Access.IsMod())
	require.True(t, sess.IsLogged())
}

func TestLoginWrongPassword(t *testing.T) {
	te := newTestEnv()
	seedUser(t, te, "alice", "hunter2", "user")
	sess := core.NewSession(1)

	out := te.dispatch(sess, "LOGIN alice wrong")
	require.Equal(t, "FAILED msg=Invalid username or password\tcmd=LOGIN\n", out)
	require.False(t, sess.IsLogged())
}

func TestLoginUnknownUser(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)

	out := te.dispatch(sess, "LOGIN nobody pass")
	require.Equal(t, "FAILED msg=Invalid username or password\tcmd=LOGIN\n", out)
}

func TestLoginTwice(t *testing.T) {
	te := newTestEnv()
	seedUser(t, te, "alice", "hunter2", "user")
	sess := core.NewSession(1)

	te.dispatch(sess, "LOGIN alice hunter2")
	out := te.dispatch(sess, "LOGIN alice hunter2")
	require.Equal(t, "FAILED msg=Already logged in\tcmd=LOGIN\n", out)
}

func TestJoinCreatesChannelAndBroadcasts(t *testing.T) {
	te := newTestEnv()
	alice := core.NewSession(1)
	bob := core.NewSession(2)

	out := te.dispatch(alice, "JOIN main")
	require.Equal(t, "JOIN main\n", out)
	require.Equal(t, []string{"JOINED main #1"}, drainOut(alice))

	ch := te.env.State.Channel("main")
	require.NotNil(t, ch)
	require.True(t, ch.IsFounder(1), "creator becomes founder")

	te.dispatch(bob, "JOIN main")
	require.Equal(t, []string{"JOINED main #2"}, drainOut(alice))
}

func TestJoinTwiceFails(t *testing.T) {
	te := newTestEnv()
	sess := core.NewSession(1)
	te.join(sess, "main")

	out := te.dispatch(sess, "JOIN main")
	require.Equal(t, "FAILED msg=Already present in channel main\tcmd=JOIN\n", out)
}

func TestJoinReplaysStoredHistory(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	te.join(founder, "main")
	te.env.State.Channel("main").StoreHistory = true

	te.dispatch(founder, "SAY main first")
	te.dispatch(founder, "SAY main second")
	drainOut(founder)

	late := core.NewSession(2)
	out := te.dispatch(late, "JOIN main")
	require.Equal(t, "JOIN main\nSAIDHISTORY main #1 first\nSAIDHISTORY main #1 second\n", out)
}

func TestJoinHistoryReplayIsCapped(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	te.join(founder, "main")
	te.env.State.Channel("main").StoreHistory = true
	for i := 0; i < historyReplayLimit+2; i++ {
		te.st.history = append(te.st.history, store.ChannelMessage{
			Channel: "main",
			Sender:  "#1",
			Text:    fmt.Sprintf("line %d", i),
		})
	}

	late := core.NewSession(2)
	out := te.dispatch(late, "JOIN main")
	require.NotContains(t, out, "line 0")
	require.NotContains(t, out, "line 1\n")
	require.Contains(t, out, fmt.Sprintf("SAIDHISTORY main #1 line %d\n", historyReplayLimit+1))
}

func TestJoinHistoryFailureStillJoins(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	te.join(founder, "main")
	te.env.State.Channel("main").StoreHistory = true
	te.st.histErr = fmt.Errorf("disk full")

	late := core.NewSession(2)
	out := te.dispatch(late, "JOIN main")
	require.Equal(t, "JOIN main\n", out)
	require.Equal(t, []string{"JOINED main #2"}, drainOut(founder))
	require.True(t, te.env.State.Channel("main").HasMember(2))
}

func TestLeave(t *testing.T) {
	te := newTestEnv()
	alice := core.NewSession(1)
	bob := core.NewSession(2)
	te.join(alice, "main")
	te.join(bob, "main")
	drainOut(alice)

	require.Empty(t, te.dispatch(bob, "LEAVE main"))
	require.Equal(t, []string{"LEFT main #2"}, drainOut(alice))
	require.False(t, te.env.State.Channel("main").HasMember(2))

	out := te.dispatch(bob, "LEAVE main")
	require.Equal(t, "FAILED msg=Not present in channel main\tcmd=LEAVE\n", out)
}

func TestMuteRequiresPrivilege(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	peon := core.NewSession(2)
	te.join(founder, "main")
	te.join(peon, "main")

	out := te.dispatch(peon, "MUTE main 1 60")
	require.Equal(t, "FAILED msg=Not an operator in channel main\tcmd=MUTE\n", out)

	out = te.dispatch(founder, "MUTE main 2 60")
	require.Equal(t, "MUTED main 2 60\n", out)
	require.True(t, te.env.State.Channel("main").IsMuted(2))
}

func TestMuteAllowsServerModerator(t *testing.T) {
	te := newTestEnv()
	founder := core.NewSession(1)
	mod := core.NewSession(2)
	mod.Access = core.AccessModerator
	te.join(founder, "main")
	te.join(mod, "main")

	out := te.dispatch(mod, "MUTE main 1 30")
	require.Equal(t, "MUTED main 1 30\n", out)
}
