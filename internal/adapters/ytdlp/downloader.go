package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"ytmp3convert/internal/core/domain"
)

// runner executes the binary and returns stdout. Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlpConverter implements ports.ConversionProvider with the local yt-dlp
// binary. It resolves a direct audio stream link in one call, so it never
// answers "processing".
type YtDlpConverter struct {
	binaryPath string
	timeout    time.Duration
	run        runner
}

// NewYtDlpConverter creates a new converter. An empty binaryPath looks for
// a yt-dlp executable in the working directory, then on PATH.
func NewYtDlpConverter(binaryPath string) *YtDlpConverter {
	if binaryPath == "" {
		binaryPath = "yt-dlp" // Assumes yt-dlp is in PATH
		if _, err := os.Stat("yt-dlp.exe"); err == nil {
			binaryPath = ".\\yt-dlp.exe"
		}
	}
	return &YtDlpConverter{
		binaryPath: binaryPath,
		timeout:    2 * time.Minute,
		run:        execRun,
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// audioFormats prefers containers players open as audio files.
const audioFormats = "bestaudio[ext=mp3]/bestaudio[ext=m4a]/bestaudio"

// Convert resolves the direct audio link with yt-dlp. The selected stream is
// often m4a or webm rather than MP3, so the status carries its real extension.
func (d *YtDlpConverter) Convert(ctx context.Context, videoID string) (*domain.ConversionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	videoURL := "https://www.youtube.com/watch?v=" + videoID

	// Prints the container, then the stream URL(s)
	out, err := d.run(ctx, d.binaryPath, "-f", audioFormats, "--print", "ext", "--print", "urls", "--no-warnings", "--no-playlist", videoURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: yt-dlp: %v", domain.ErrTransport, ctx.Err())
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: yt-dlp not runnable: %v", domain.ErrTransport, err)
		}
		return &domain.ConversionStatus{Status: domain.StatusFail, Message: "yt-dlp failed: " + err.Error()}, nil
	}

	ext, link := parseOutput(string(out))
	if link == "" {
		return &domain.ConversionStatus{Status: domain.StatusFail, Message: "yt-dlp returned empty URL"}, nil
	}
	if ext == "" {
		ext = extFromLink(link)
	}
	return &domain.ConversionStatus{Status: domain.StatusOK, Link: link, Ext: ext}, nil
}

// parseOutput takes the first URL line as the link and a preceding bare word
// as its extension.
func parseOutput(out string) (ext, link string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.Contains(line, "://"):
			return ext, line
		case ext == "":
			ext = strings.ToLower(line)
		}
	}
	return ext, ""
}

// extFromLink reads the mime parameter googlevideo stream URLs carry.
func extFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	switch mime := u.Query().Get("mime"); mime {
	case "audio/mpeg":
		return "mp3"
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	default:
		return ""
	}
}
