// Package downloader streams finished audio from a provider's result link.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ytmp3convert/internal/core/domain"
)

// ProgressFunc is called once per download with the advertised size (-1 when
// unknown) and returns a writer that sees every byte read from the body.
type ProgressFunc func(size int64) io.Writer

// HTTPDownloader implements ports.Downloader over HTTP.
type HTTPDownloader struct {
	client   *http.Client
	progress ProgressFunc
}

// NewHTTPDownloader wraps client. A nil client gets a timeout long enough
// for a whole audio file.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPDownloader{client: client}
}

// WithProgress reports each download through fn.
func (d *HTTPDownloader) WithProgress(fn ProgressFunc) *HTTPDownloader {
	d.progress = fn
	return d
}

// Download opens the result link. The caller reads and closes the body;
// closing it also finishes the progress writer when it has a Finish method.
func (d *HTTPDownloader) Download(ctx context.Context, link string) (io.ReadCloser, int64, error) {
	if link == "" {
		return nil, 0, errors.New("no result link to download")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid result link: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: fetching result link: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		// Result links expire a while after conversion.
		return nil, 0, fmt.Errorf("%w: result link answered %s", domain.ErrTransport, resp.Status)
	}

	if d.progress == nil {
		return resp.Body, resp.ContentLength, nil
	}
	w := d.progress(resp.ContentLength)
	if w == nil {
		return resp.Body, resp.ContentLength, nil
	}
	return &trackedBody{Reader: io.TeeReader(resp.Body, w), body: resp.Body, progress: w}, resp.ContentLength, nil
}

type finisher interface {
	Finish() error
}

type trackedBody struct {
	io.Reader
	body     io.Closer
	progress io.Writer
}

func (b *trackedBody) Close() error {
	if f, ok := b.progress.(finisher); ok {
		_ = f.Finish()
	}
	return b.body.Close()
}
