package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyd/internal/core"
	"github.com/openlobby/lobbyd/internal/store"
)

// fakeStore is an in-memory store.Store for command tests.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*store.User
	history []store.ChannelMessage
	histErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*store.User)}
}

func (f *fakeStore) FindUserByUsername(_ context.Context, name string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *store.User) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *u
	copied.ID = int64(len(f.users) + 1)
	f.users[u.Username] = &copied
	return &copied, nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, id int64, ip string) error {
	return nil
}

func (f *fakeStore) AddChannelMessage(_ context.Context, channel, sender, recipient, text string, bridged bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return f.histErr
	}
	f.history = append(f.history, store.ChannelMessage{
		Channel:   channel,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Bridged:   bridged,
		SaidAt:    time.Now(),
	})
	return nil
}

func (f *fakeStore) ChannelHistory(_ context.Context, channel string, limit int) ([]store.ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return nil, f.histErr
	}
	var out []store.ChannelMessage
	for _, m := range f.history {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

type testEnv struct {
	env  *Env
	disp *Dispatcher
	st   *fakeStore
}

func newTestEnv() *testEnv {
	logger := zerolog.Nop()
	st := newFakeStore()
	env := &Env{
		State: core.NewState(),
		Spam:  core.NewSpamGuard(),
		Store: st,
		Log:   &logger,
	}
	return &testEnv{env: env, disp: NewDispatcher(env), st: st}
}

func (te *testEnv) dispatch(sess *core.Session, line string) string {
	te.disp.Dispatch(context.Background(), sess, line)
	return sess.TakeOutput()
}

// drainOut collects asynchronously pushed lines without blocking.
func drainOut(sess *core.Session) []string {
	var out []string
	for {
		select {
		case msg := <-sess.Out:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// join puts the session into the named channel, discarding responses.
func (te *testEnv) join(sess *core.Session, channel string) {
	te.dispatch(sess, "JOIN "+channel)
	drainOut(sess)
}
