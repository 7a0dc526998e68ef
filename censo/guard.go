// CLAUDE:SUMMARY Site guard — suspends lookups after consecutive blocked/timeout answers, single probe after cooldown.
package censo

import (
	"sync"
	"time"

	"github.com/hazyhaar/censo/verifier"
)

type guardState int

const (
	guardClosed guardState = iota // lookups flow
	guardOpen                     // site refusing us, lookups rejected
	guardProbe                    // cooldown over, one lookup allowed
)

func (s guardState) String() string {
	switch s {
	case guardOpen:
		return "open"
	case guardProbe:
		return "probe"
	}
	return "closed"
}

// siteGuard stops sending lookups after consecutive blocked or timed-out
// answers. Once the cooldown has passed a single probe goes through; its
// answer either closes the guard or reopens it.
type siteGuard struct {
	mu        sync.Mutex
	state     guardState
	strikes   int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

func newSiteGuard(threshold int, cooldown time.Duration) *siteGuard {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Minute
	}
	return &siteGuard{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// allow reports whether a lookup may start.
func (g *siteGuard) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case guardOpen:
		if g.now().Sub(g.openedAt) < g.cooldown {
			return false
		}
		g.state = guardProbe
		fallthrough
	case guardProbe:
		if g.probing {
			return false
		}
		g.probing = true
	}
	return true
}

// record feeds the kind of a finished lookup and returns the state after it.
func (g *siteGuard) record(kind verifier.Kind) guardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probing = false

	if kind != verifier.KindBlocked && kind != verifier.KindTimeout {
		g.state, g.strikes = guardClosed, 0
		return g.state
	}
	g.strikes++
	if g.state == guardProbe || g.strikes >= g.threshold {
		g.state, g.openedAt = guardOpen, g.now()
	}
	return g.state
}

// abort ends a lookup that produced no answer.
func (g *siteGuard) abort() {
	g.mu.Lock()
	g.probing = false
	g.mu.Unlock()
}

func (g *siteGuard) current() guardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
