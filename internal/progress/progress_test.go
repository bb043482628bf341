package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplay_UpdateBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Update(Stats{Visited: 1, MaxPages: 10})
	if buf.Len() != 0 {
		t.Errorf("Update before Start wrote %q", buf.String())
	}
	if d.Stats().Visited != 1 {
		t.Error("Stats() should hold the last update")
	}
}

func TestDisplay_Update(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Start("https://docs.example.com/")

	d.Update(Stats{Visited: 5, Crawled: 4, Queued: 3, Running: 2, Discovered: 7, Errors: 1, MaxPages: 10})

	out := buf.String()
	for _, want := range []string{"50%", "Pages: 5/10", "Queue: 3", "Running: 2", "Later: 7", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress line %q missing %q", out, want)
		}
	}
}

func TestDisplay_StopIdempotent(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Stop()
	if buf.Len() != 0 {
		t.Error("Stop before Start should write nothing")
	}

	d.Start("https://a.com")
	d.Stop()
	d.Stop()
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("Stop wrote %d newlines, want 1", got)
	}

	buf.Reset()
	d.Update(Stats{Visited: 1, MaxPages: 2})
	if buf.Len() != 0 {
		t.Error("Update after Stop should write nothing")
	}
}

func TestDisplay_Restart(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Start("https://a.com")
	d.Update(Stats{Visited: 3, MaxPages: 3})
	d.Stop()

	d.Start("https://b.com")
	if d.Stats().Visited != 0 {
		t.Error("Start should reset stats for a new run")
	}
	buf.Reset()
	d.Update(Stats{Visited: 1, MaxPages: 4})
	if !strings.Contains(buf.String(), "25%") {
		t.Errorf("restarted display not drawing: %q", buf.String())
	}
}

func TestDisplay_PrintSummary(t *testing.T) {
	d := New(&bytes.Buffer{})
	d.Start("https://docs.example.com/")
	d.Update(Stats{Visited: 9, Crawled: 8, Discovered: 2, Errors: 1, MaxPages: 10})

	var out bytes.Buffer
	d.PrintSummary(&out)

	for _, want := range []string{"docs.example.com", "Pages visited:    9", "Pages stored:     8", "Left for later:   2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 10, 0},
		{5, 10, 50},
		{10, 10, 100},
		{12, 10, 100},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.done, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h03m04s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	if got := truncateURL("https://a.com", 50); got != "https://a.com" {
		t.Errorf("short URL changed: %q", got)
	}
	long := "https://docs.example.com/" + strings.Repeat("a", 80)
	if got := truncateURL(long, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateURL() = %q", got)
	}
}
