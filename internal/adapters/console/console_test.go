package console

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/core/domain"
)

func TestNotifier_LogsAndDrawsBar(t *testing.T) {
	var bar, logs bytes.Buffer
	c := NewNotifier(&bar, log.New(&logs, "", 0))

	c.Notify(domain.Notification{JobID: "j1", State: domain.StateSubmitting, Level: domain.LevelInfo, Message: "Converting..."})
	assert.Contains(t, logs.String(), "[JOB j1] Converting...")
	assert.Zero(t, bar.Len())

	c.Notify(domain.Notification{JobID: "j1", State: domain.StatePolling, Level: domain.LevelInfo, Message: "processing", Attempt: 1, MaxAttempts: 20})
	assert.Positive(t, bar.Len())
	assert.NotContains(t, logs.String(), "processing")
	require.NotNil(t, c.bar)

	c.Notify(domain.Notification{JobID: "j1", State: domain.StateSucceeded, Level: domain.LevelSuccess, Message: "Conversion complete!"})
	assert.Nil(t, c.bar)
	assert.Contains(t, logs.String(), "Conversion complete!")

	c.Notify(domain.Notification{JobID: "j2", State: domain.StateFailed, Level: domain.LevelError, Message: "Conversion timed out."})
	assert.Contains(t, logs.String(), "[JOB j2] ERROR: Conversion timed out.")
}

func TestDownloadBar_CountsBytes(t *testing.T) {
	var out bytes.Buffer
	b := DownloadBar(&out, 11, "Downloading")

	n, err := io.Copy(io.MultiWriter(io.Discard, b), strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.True(t, b.IsFinished())
}
