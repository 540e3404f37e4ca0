package logging

import (
	"bytes"
	"sync"
)

// DefaultRecentLines is the size of RecentLogs.
const DefaultRecentLines = 64

// RecentLogs receives INFO+ server records once Init has run.
var RecentLogs = NewRecent(DefaultRecentLines)

// Recent is an io.Writer that keeps the last few lines written to it.
type Recent struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRecent returns a buffer holding at most size lines (minimum 1).
func NewRecent(size int) *Recent {
	return &Recent{lines: make([]string, max(size, 1))}
}

// Write stores each non-empty line of p.
func (r *Recent) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		r.lines[r.next] = string(line)
		r.next = (r.next + 1) % len(r.lines)
		if r.next == 0 {
			r.full = true
		}
	}
	return len(p), nil
}

// Last returns the newest line, or "" before anything was written.
func (r *Recent) Last() string {
	lines := r.Lines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// Lines returns up to n of the newest lines, oldest first.
func (r *Recent) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.lines)
	}
	n = min(n, count)
	if n <= 0 {
		return nil
	}

	out := make([]string, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := range out {
		out[i] = r.lines[(start+i)%len(r.lines)]
	}
	return out
}
