package core

import (
	"sync"
	"time"
)

// Handle is the narrow send-side view of a session that channels retain.
// It is safe to use from any goroutine.
type Handle struct {
	ID  uint64
	out chan<- string
}

// Handle returns the send handle other sessions use to reach this one.
func (s *Session) Handle() Handle {
	return Handle{ID: s.ID, out: s.Out}
}

// Push queues text for the handle's connection, dropping when full.
func (h Handle) Push(text string) bool {
	select {
	case h.out <- text:
		return true
	default:
		return false
	}
}

// Channel owns membership, roles, and mute state for one named channel.
type Channel struct {
	Name string

	// Antispam enables scoring of non-privileged member messages.
	Antispam bool
	// StoreHistory persists broadcast messages through the store.
	StoreHistory bool

	mu        sync.Mutex
	members   map[uint64]Handle
	operators map[uint64]struct{}
	founder   uint64
	mutelist  map[uint64]time.Time
}

// NewChannel constructs a channel with the given founder session id.
// The founder is always treated as an operator.
func NewChannel(name string, founder uint64) *Channel {
	return &Channel{
		Name:      name,
		Antispam:  true,
		founder:   founder,
		members:   make(map[uint64]Handle),
		operators: make(map[uint64]struct{}),
		mutelist:  make(map[uint64]time.Time),
	}
}

// HasMember reports whether the session is currently joined.
func (c *Channel) HasMember(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[id]
	return ok
}

// Join adds a send handle to the member set. Returns false if already joined.
func (c *Channel) Join(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[h.ID]; ok {
		return false
	}
	c.members[h.ID] = h
	return true
}

// Leave removes the session from the member set. Returns false if absent.
func (c *Channel) Leave(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; !ok {
		return false
	}
	delete(c.members, id)
	return true
}

// MemberCount returns the current number of members.
func (c *Channel) MemberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Mute unconditionally installs or overwrites a mute expiry for the session.
func (c *Channel) Mute(id uint64, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutelist[id] = until
}

// IsMuted reports whether a mute entry exists with an expiry strictly after
// now. Expired entries are removed on read; no background sweep is needed.
func (c *Channel) IsMuted(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.mutelist[id]
	if !ok {
		return false
	}
	if !time.Now().Before(until) {
		delete(c.mutelist, id)
		return false
	}
	return true
}

// IsFounder reports whether the session is the channel's single founder.
func (c *Channel) IsFounder(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id == c.founder
}

// IsOp reports whether the session is in the operator set or is the founder.
func (c *Channel) IsOp(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.operators[id]; ok {
		return true
	}
	return id == c.founder
}

// AddOperator grants operator status to the session.
func (c *Channel) AddOperator(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operators[id] = struct{}{}
}

// Broadcast delivers text to every current member, including the sender.
// Handles are captured under the lock and delivery happens after release;
// a failed delivery to one member never blocks the rest.
func (c *Channel) Broadcast(text string) {
	c.mu.Lock()
	handles := make([]Handle, 0, len(c.members))
	for _, h := range c.members {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Push(text)
	}
}
