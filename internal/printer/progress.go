package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const progressBarWidth = 40

// ProgressBar renders the progress of a task on a single, rewritten, terminal line.
type ProgressBar struct {
	w        io.Writer
	last     string
	finished bool
	mu       sync.Mutex
}

// NewProgressBar creates a new progress bar writing to w.
func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{w: w}
}

// Update redraws the bar, progress is a percentage and step the current step name.
func (p *ProgressBar) Update(progress int, step string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	progress = min(max(progress, 0), 100)
	filled := progress * progressBarWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
	line := fmt.Sprintf("  [%s] %3d%% %s", bar, progress, step)

	// Pad to clear leftovers of a longer previous line.
	pad := max(len(p.last)-len(line), 0)
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.last = line
}

// Finish ends the progress line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished || p.last == "" {
		p.finished = true
		return
	}
	p.finished = true
	fmt.Fprintln(p.w)
}
