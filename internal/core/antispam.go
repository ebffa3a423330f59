package core

import (
	"hash/fnv"
	"sync"
	"time"
)

// Scoring constants. These are load-bearing: changing any of them changes
// which clients get muted.
const (
	spamWindow       = 5 * time.Second
	spamLongLength   = 50
	spamLengthCap    = 200
	spamLengthWeight = 0.01
	spamBurstGap     = time.Second
	spamBurstWeight  = 1.5
	spamThreshold    = 7.0

	// MuteDuration is how long an automatic antispam mute lasts.
	MuteDuration = 5 * time.Minute
)

// spamEntry is one recorded message in a sliding window.
type spamEntry struct {
	at     time.Time
	hash   uint64
	length int
}

type spamKey struct {
	channel string
	session uint64
}

// SpamGuard scores recent message volume and repetition per
// (channel, session) pair over a trailing 5-second window.
type SpamGuard struct {
	mu      sync.Mutex
	windows map[spamKey][]spamEntry
}

// NewSpamGuard constructs an empty guard.
func NewSpamGuard() *SpamGuard {
	return &SpamGuard{windows: make(map[spamKey][]spamEntry)}
}

func hashMessage(msg string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(msg))
	return h.Sum64()
}

// Record appends a message to the (channel, session) window.
func (g *SpamGuard) Record(channel string, session uint64, msg string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := spamKey{channel, session}
	g.windows[k] = append(g.windows[k], spamEntry{at: now, hash: hashMessage(msg), length: len(msg)})
}

// IsSpamming prunes the (channel, session) window to the trailing 5 seconds
// and reports whether the remaining entries score past the mute threshold.
func (g *SpamGuard) IsSpamming(channel string, session uint64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := spamKey{channel, session}
	win := g.windows[k]

	kept := win[:0]
	for _, e := range win {
		if now.Sub(e.at) < spamWindow {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(g.windows, k)
		return false
	}
	g.windows[k] = kept

	return spamScore(kept) > spamThreshold
}

// Sweep drops windows whose newest entry fell out of the 5-second horizon.
// Correctness does not depend on it; it only bounds memory over long uptimes.
func (g *SpamGuard) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, win := range g.windows {
		if len(win) == 0 || now.Sub(win[len(win)-1].at) >= spamWindow {
			delete(g.windows, k)
		}
	}
}

// spamScore evaluates an already-pruned window in chronological order.
// Duplicate content costs 2x its prior repeat count, long messages cost
// min(length, 200) x 0.01 past 50 bytes, every entry costs a flat 1.0, and
// consecutive messages under a second apart cost (1 - gap) x 1.5.
func spamScore(win []spamEntry) float64 {
	repeats := make(map[uint64]int, len(win))
	score := 0.0

	for _, e := range win {
		score += float64(2 * repeats[e.hash])
		if e.length > spamLongLength {
			score += float64(min(e.length, spamLengthCap)) * spamLengthWeight
		}
		score += 1.0
		repeats[e.hash]++
	}

	last := win[0].at
	for _, e := range win[1:] {
		gap := e.at.Sub(last)
		if gap < spamBurstGap {
			score += (1.0 - gap.Seconds()) * spamBurstWeight
		}
		last = e.at
	}

	return score
}
