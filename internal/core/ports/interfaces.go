package ports

import (
	"context"
	"io"

	"ytmp3convert/internal/core/domain"
)

// MetadataProvider looks up title, thumbnail and duration for a video id.
type MetadataProvider interface {
	// FetchMetadata returns domain.ErrNotFound when the provider knows no such
	// video and wraps domain.ErrTransport on network or HTTP failures.
	FetchMetadata(ctx context.Context, videoID string) (*domain.VideoMetadata, error)
}

// ConversionProvider asks the remote converter about a video.
// The call is idempotent and is used both to submit and to poll.
type ConversionProvider interface {
	// Convert wraps domain.ErrTransport on network or HTTP failures.
	Convert(ctx context.Context, videoID string) (*domain.ConversionStatus, error)
}

// Notifier is the presentation sink. Calls are fire-and-forget.
type Notifier interface {
	Notify(n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n domain.Notification)

func (f NotifierFunc) Notify(n domain.Notification) { f(n) }

// JobStore persists job snapshots.
type JobStore interface {
	// SaveJob upserts the snapshot keyed by job.ID.
	SaveJob(ctx context.Context, job domain.ConversionJob) error

	// LoadJob returns domain.ErrNotFound for unknown ids.
	LoadJob(ctx context.Context, jobID string) (*domain.ConversionJob, error)
}

// Downloader fetches the converted file from a result link.
type Downloader interface {
	// Download returns a ReadCloser that the caller must close and the
	// advertised content length (-1 when unknown).
	Download(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// AudioStorage persists downloaded audio next to the job record.
type AudioStorage interface {
	SaveAudio(ctx context.Context, jobID string, reader io.Reader, filename string) (string, error)
}
