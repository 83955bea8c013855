package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dyget/dyget/internal/core/downloader"
)

// progressPrinter redraws a single status line on w, at most every 100ms.
type progressPrinter struct {
	w     io.Writer
	label string

	mu      sync.Mutex
	last    time.Time
	printed bool
}

func newProgressPrinter(w io.Writer, label string) *progressPrinter {
	return &progressPrinter{w: w, label: label}
}

// Update is a downloader.ProgressFunc. total is -1 when unknown.
func (p *progressPrinter) Update(downloaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.printed && now.Sub(p.last) < 100*time.Millisecond && downloaded != total {
		return
	}
	p.last = now
	p.printed = true

	if total > 0 {
		pct := float64(downloaded) / float64(total) * 100
		fmt.Fprintf(p.w, "\r  ⬇ %s %s / %s (%.0f%%)   ", p.label, downloader.FormatBytes(downloaded), downloader.FormatBytes(total), pct)
		return
	}
	fmt.Fprintf(p.w, "\r  ⬇ %s %s   ", p.label, downloader.FormatBytes(downloaded))
}

// Done ends the status line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
	}
}
