package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar is a terminal progress bar that also tallies per-file outcomes
type Bar struct {
	total     int
	current   int
	counts    map[string]int
	out       io.Writer
	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// New creates a new progress bar writing to stdout
func New(total int) *Bar {
	return NewWriter(os.Stdout, total)
}

// NewWriter creates a progress bar writing to w
func NewWriter(w io.Writer, total int) *Bar {
	return &Bar{
		total:     total,
		counts:    make(map[string]int),
		out:       w,
		startTime: time.Now(),
		lastPrint: time.Now(),
	}
}

// Increment records one finished file with the given outcome label
func (b *Bar) Increment(outcome string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	b.counts[outcome]++

	// Update display every 500ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 500*time.Millisecond || b.current >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Finish marks the progress as complete
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.render()
		fmt.Fprintln(b.out)
		b.done = true
	}
}

// render displays the progress bar
func (b *Bar) render() {
	if b.done || b.total <= 0 {
		return
	}

	percentage := float64(b.current) / float64(b.total) * 100
	elapsed := time.Since(b.startTime)

	var eta time.Duration
	if b.current > 0 {
		avgTime := elapsed / time.Duration(b.current)
		eta = avgTime * time.Duration(b.total-b.current)
	}

	barWidth := 30
	filled := barWidth * b.current / b.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.out, "\r[%s] %d/%d (%.1f%%) ok:%d partial:%d failed:%d - Elapsed: %s - ETA: %s   ",
		bar,
		b.current,
		b.total,
		percentage,
		b.counts["success"],
		b.counts["partial"],
		b.counts["failed"],
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
