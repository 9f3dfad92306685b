package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Progress draws a progress bar for a batch of known size.
type Progress struct {
	bar  *progressbar.ProgressBar
	last int
	mu   sync.Mutex
}

// NewProgress creates a bar for total items writing to writer (stderr when nil).
func NewProgress(writer io.Writer, total int, description string) *Progress {
	if writer == nil {
		writer = os.Stderr
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return &Progress{bar: bar}
}

// Update moves the bar to done. It matches the engine's progress callbacks.
func (p *Progress) Update(done, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if done <= p.last {
		return
	}
	if err := p.bar.Add(done - p.last); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
	p.last = done
}

// Done reports how far the bar has moved.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Finish completes the bar even when some items were never reported.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bar.Finish(); err != nil {
		slog.Debug("Failed to finish progress bar", "error", err)
	}
}
