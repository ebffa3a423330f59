package core

import "sync"

// State is the process-wide channel registry shared by every connection.
// Tests construct independent instances; there is no package-level state.
type State struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewState constructs an empty registry.
func NewState() *State {
	return &State{channels: make(map[string]*Channel)}
}

// Channel returns the named channel, or nil if it does not exist.
func (st *State) Channel(name string) *Channel {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.channels[name]
}

// GetOrCreate returns the named channel, creating it on first reference.
// The creating session becomes the founder.
func (st *State) GetOrCreate(name string, founder uint64) *Channel {
	st.mu.Lock()
	defer st.mu.Unlock()
	if ch, ok := st.channels[name]; ok {
		return ch
	}
	ch := NewChannel(name, founder)
	st.channels[name] = ch
	return ch
}

// Remove drops the named channel from the registry.
func (st *State) Remove(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.channels, name)
}

// Channels returns a snapshot of all registered channels.
func (st *State) Channels() []*Channel {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Channel, 0, len(st.channels))
	for _, ch := range st.channels {
		out = append(out, ch)
	}
	return out
}

// RemoveSession removes the session from every channel it is a member of.
// Called on disconnect, timeout, and error teardown.
func (st *State) RemoveSession(id uint64) {
	for _, ch := range st.Channels() {
		ch.Leave(id)
	}
}
