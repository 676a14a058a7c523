package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxSources = 1024

type Config struct {
	// MinInterval is the minimum spacing between accepted frames from one
	// source. Zero or negative accepts everything.
	MinInterval time.Duration
	// MaxSources bounds how many per-source limiters are retained.
	MaxSources int
}

type Result struct {
	Allowed bool
	RetryIn time.Duration
}

// FrameGate throttles producer cadence before frames reach the ingest
// buffer. The append pipeline itself never throttles.
type FrameGate struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*sourceEntry
}

type sourceEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func New(cfg Config) *FrameGate {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = defaultMaxSources
	}
	return &FrameGate{
		cfg:     cfg,
		entries: make(map[string]*sourceEntry, 16),
	}
}

// Take decides whether a frame from source arriving at now is accepted.
func (g *FrameGate) Take(now time.Time, source string) Result {
	if g.cfg.MinInterval <= 0 {
		return Result{Allowed: true}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[source]
	if !ok {
		if len(g.entries) >= g.cfg.MaxSources {
			g.cleanup(now)
		}
		entry = &sourceEntry{lim: rate.NewLimiter(rate.Every(g.cfg.MinInterval), 1)}
		g.entries[source] = entry
	}
	entry.lastSeen = now
	lim := entry.lim

	if lim.AllowN(now, 1) {
		return Result{Allowed: true}
	}
	missing := 1 - lim.TokensAt(now)
	if missing < 0 {
		missing = 0
	}
	return Result{
		Allowed: false,
		RetryIn: time.Duration(missing * float64(g.cfg.MinInterval)),
	}
}

// cleanup drops limiters that have refilled, i.e. sources idle for at least
// one interval. If every source is still active, the least recently seen one
// is evicted so the others keep their budget.
func (g *FrameGate) cleanup(now time.Time) {
	for k, e := range g.entries {
		if e.lim.TokensAt(now) >= 1 {
			delete(g.entries, k)
		}
	}
	if len(g.entries) < g.cfg.MaxSources {
		return
	}

	var (
		oldestKey  string
		oldestSeen time.Time
		found      bool
	)
	for k, e := range g.entries {
		if !found || e.lastSeen.Before(oldestSeen) {
			oldestKey, oldestSeen, found = k, e.lastSeen, true
		}
	}
	delete(g.entries, oldestKey)
}
