package txcache

import (
	"sync"
	"time"
)

// DefaultDedupTTL is how long a signature stays in the dedup window.
const DefaultDedupTTL = 60 * time.Second

// DedupWindow is a set of recently seen signatures whose entries expire
// after a TTL. Expired entries are dropped lazily on access and by Prune.
// Safe for concurrent use.
type DedupWindow struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[string]time.Time
}

// NewDedupWindow creates a window with the given TTL.
// A non-positive ttl uses DefaultDedupTTL.
func NewDedupWindow(ttl time.Duration) *DedupWindow {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupWindow{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// SetClock replaces the time source. Intended for tests.
func (w *DedupWindow) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Seen reports whether signature is in the window.
func (w *DedupWindow) Seen(signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen(signature, w.now())
}

func (w *DedupWindow) seen(signature string, now time.Time) bool {
	exp, ok := w.expires[signature]
	if !ok {
		return false
	}
	if !now.Before(exp) {
		delete(w.expires, signature)
		return false
	}
	return true
}

// Add puts signature in the window, restarting its TTL.
func (w *DedupWindow) Add(signature string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expires[signature] = w.now().Add(w.ttl)
}

// CheckAndAdd adds signature unless it is already in the window.
// Returns true when the signature was new.
func (w *DedupWindow) CheckAndAdd(signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.seen(signature, now) {
		return false
	}
	w.expires[signature] = now.Add(w.ttl)
	return true
}

// Len returns the number of entries, including expired ones not yet pruned.
func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.expires)
}

// Prune removes entries expired at now and returns how many were removed.
func (w *DedupWindow) Prune(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for sig, exp := range w.expires {
		if !now.Before(exp) {
			delete(w.expires, sig)
			removed++
		}
	}
	return removed
}
