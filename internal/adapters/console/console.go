// Package console renders workflow notifications for the CLI.
package console

import (
	"io"
	"log"
	"sync"

	"github.com/schollz/progressbar/v3"

	"ytmp3convert/internal/core/domain"
)

// Notifier logs every notification and draws a progress bar over poll attempts.
type Notifier struct {
	out    io.Writer
	logger *log.Logger

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	jobID string
}

// NewNotifier writes the bar to out and log lines to logger.
func NewNotifier(out io.Writer, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{out: out, logger: logger}
}

// Notify implements ports.Notifier.
func (c *Notifier) Notify(n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch n.Level {
	case domain.LevelError:
		c.logger.Printf("[JOB %s] ERROR: %s", n.JobID, n.Message)
	case domain.LevelSuccess:
		c.logger.Printf("[JOB %s] %s", n.JobID, n.Message)
	default:
		if n.State != domain.StatePolling {
			c.logger.Printf("[JOB %s] %s", n.JobID, n.Message)
		}
	}

	if n.State == domain.StatePolling && n.MaxAttempts > 0 {
		if c.bar == nil || c.jobID != n.JobID {
			c.finishLocked()
			c.bar = progressbar.NewOptions(n.MaxAttempts,
				progressbar.OptionSetWriter(c.out),
				progressbar.OptionSetDescription("Converting"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionSetRenderBlankState(true),
			)
			c.jobID = n.JobID
		}
		c.bar.Describe(n.Message)
		_ = c.bar.Set(n.Attempt)
	}

	if n.State.Terminal() {
		c.finishLocked()
	}
}

func (c *Notifier) finishLocked() {
	if c.bar == nil {
		return
	}
	_ = c.bar.Finish()
	_, _ = io.WriteString(c.out, "\n")
	c.bar = nil
	c.jobID = ""
}

// DownloadBar returns a writer that tracks bytes copied into it.
// size may be -1 when the server did not send a length.
func DownloadBar(out io.Writer, size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(out, "\n") }),
	)
}
