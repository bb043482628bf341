package state

import (
	"sort"
	"sync"
)

// ClaimResult is the outcome of Frontier.Claim.
type ClaimResult int

const (
	// Claimed means the URL was added to the visited set.
	Claimed ClaimResult = iota
	// AlreadyVisited means another task claimed the URL first.
	AlreadyVisited
	// LimitReached means the page cap was exhausted before the claim.
	LimitReached
)

// String returns the string representation of ClaimResult.
func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyVisited:
		return "already_visited"
	case LimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

// Frontier tracks every URL a crawl run knows about. A URL lives in at most
// one of visited, queued and discovered. All keys are normalized URLs.
type Frontier struct {
	mu         sync.Mutex
	visited    *Deduplicator
	queued     map[string]struct{}
	discovered map[string]int // normalized URL -> insertion sequence
	nextSeq    int
	hitLimit   bool
}

// NewFrontier creates an empty frontier sized for about estimatedURLs.
func NewFrontier(estimatedURLs int) *Frontier {
	return &Frontier{
		visited:    NewDeduplicator(estimatedURLs),
		queued:     make(map[string]struct{}),
		discovered: make(map[string]int),
	}
}

// Reset empties all sets and clears the hit-limit flag.
func (f *Frontier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.visited.Reset()
	f.queued = make(map[string]struct{})
	f.discovered = make(map[string]int)
	f.nextSeq = 0
	f.hitLimit = false
}

// TryQueue marks url as scheduled. It returns false if url is already
// visited or queued, so concurrent callers cannot double-schedule it.
func (f *Frontier) TryQueue(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.queued[url]; ok {
		return false
	}
	if f.visited.HasSeen(url) {
		return false
	}
	f.queued[url] = struct{}{}
	delete(f.discovered, url)
	return true
}

// Dequeue removes url from the queued set. It is a no-op for URLs that
// were never queued (seeds).
func (f *Frontier) Dequeue(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queued, url)
}

// Claim adds url to the visited set unless it is already there or the
// visited set has reached maxPages. The cap check and the insertion happen
// under one lock. A LimitReached result sets the hit-limit flag.
func (f *Frontier) Claim(url string, maxPages int) ClaimResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited.HasSeen(url) {
		return AlreadyVisited
	}
	if f.visited.Count() >= maxPages {
		f.hitLimit = true
		return LimitReached
	}

	f.visited.Add(url)
	delete(f.queued, url)
	delete(f.discovered, url)
	return Claimed
}

// AddDiscovered records url as found but not scheduled because of the page
// cap. URLs already visited or queued are ignored.
func (f *Frontier) AddDiscovered(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.discovered[url]; ok {
		return
	}
	if _, ok := f.queued[url]; ok {
		return
	}
	if f.visited.HasSeen(url) {
		return
	}
	f.discovered[url] = f.nextSeq
	f.nextSeq++
}

// SetHitLimit records that the page cap was reached.
func (f *Frontier) SetHitLimit() {
	f.mu.Lock()
	f.hitLimit = true
	f.mu.Unlock()
}

// HitLimit reports whether the page cap was reached during this run.
func (f *Frontier) HitLimit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hitLimit
}

// IsVisited reports whether url has been claimed.
func (f *Frontier) IsVisited(url string) bool {
	return f.visited.HasSeen(url)
}

// Seen reports whether url is visited or queued.
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queued[url]; ok {
		return true
	}
	return f.visited.HasSeen(url)
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	return f.visited.Count()
}

// Discovered returns the overflow URLs in the order they were found.
func (f *Frontier) Discovered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	urls := make([]string, 0, len(f.discovered))
	for url := range f.discovered {
		urls = append(urls, url)
	}
	sort.Slice(urls, func(i, j int) bool {
		return f.discovered[urls[i]] < f.discovered[urls[j]]
	})
	return urls
}
