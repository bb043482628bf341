// Package progress renders a single-line progress display for crawl runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stats is the crawl state shown on the progress line.
type Stats struct {
	Visited    int
	Crawled    int
	Discovered int
	Queued     int
	Running    int
	Errors     int
	MaxPages   int
}

// Display manages progress display during crawling.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	stats     Stats
	startTime time.Time
	target    string

	lastLine string
}

// New creates a progress display writing to out. A nil out writes to stderr.
func New(out io.Writer) *Display {
	if out == nil {
		out = os.Stderr
	}
	return &Display{out: out}
}

// Start begins the progress display. Calling it again after Stop starts
// a new run.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && !d.stopped {
		return
	}

	d.started = true
	d.stopped = false
	d.startTime = time.Now()
	d.target = target
	d.stats = Stats{}
	d.lastLine = ""
}

// Update redraws the progress line.
func (d *Display) Update(s Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats = s
	if !d.started || d.stopped {
		return
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(s.Crawled) / elapsed.Seconds()
	}

	pct := Percent(s.Visited, s.MaxPages)
	barWidth := 30
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Pages: %d/%d | Queue: %d | Running: %d | Later: %d | Errors: %d | %.1f p/s | %s",
		bar, pct, s.Visited, s.MaxPages, s.Queued, s.Running, s.Discovered, s.Errors, speed, formatDuration(elapsed))

	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop ends the progress line.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true
	fmt.Fprintln(d.out)
}

// PrintSummary writes a short summary of the last run to w.
func (d *Display) PrintSummary(w io.Writer) {
	d.mu.Lock()
	s := d.stats
	target := d.target
	duration := time.Since(d.startTime)
	d.mu.Unlock()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Target:           %s\n", truncateURL(target, 60))
	fmt.Fprintf(w, "  Duration:         %s\n", formatDuration(duration))
	fmt.Fprintf(w, "  Pages visited:    %d\n", s.Visited)
	fmt.Fprintf(w, "  Pages stored:     %d\n", s.Crawled)
	fmt.Fprintf(w, "  Left for later:   %d\n", s.Discovered)
	fmt.Fprintf(w, "  Errors:           %d\n", s.Errors)
	if duration.Seconds() > 0 {
		fmt.Fprintf(w, "  Average speed:    %.1f pages/sec\n", float64(s.Crawled)/duration.Seconds())
	}
	fmt.Fprintln(w)
}

// Stats returns the last reported statistics.
func (d *Display) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Percent returns done as a whole percentage of total, capped at 100.
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return done * 100 / total
}

// truncateURL truncates a URL to maxLen characters.
func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
