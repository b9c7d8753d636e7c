package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	youtubeURLRE = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.?be)/.+`)

	// Group 7 holds the candidate id for the watch?v=, /v/, /embed/, youtu.be/ and /u/x/ forms.
	videoIDRE = regexp.MustCompile(`^.*((youtu.be/)|(v/)|(/u/\w/)|(embed/)|(watch\?))\??v?=?([^#&?]*).*`)

	isoDurationRE = regexp.MustCompile(`PT(\d+H)?(\d+M)?(\d+S)?`)

	nonWordRE    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// VideoIDLength is the length of every YouTube video id.
const VideoIDLength = 11

// ValidateURL reports whether the trimmed input looks like a YouTube video URL.
func ValidateURL(input string) bool {
	return youtubeURLRE.MatchString(strings.TrimSpace(input))
}

// ExtractVideoID returns the 11-character id embedded in a YouTube URL.
func ExtractVideoID(input string) (string, bool) {
	m := videoIDRE.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil || len(m[7]) != VideoIDLength {
		return "", false
	}
	return m[7], true
}

// NewVideoReference validates input and extracts its video id.
func NewVideoReference(input string) (VideoReference, error) {
	trimmed := strings.TrimSpace(input)
	if !ValidateURL(trimmed) {
		return VideoReference{}, NewError(KindInvalidURL, "Please enter a valid YouTube URL", nil)
	}
	id, ok := ExtractVideoID(trimmed)
	if !ok {
		return VideoReference{}, NewError(KindIDExtractionFailed, "Could not extract video ID from the URL", nil)
	}
	return VideoReference{RawInput: input, VideoID: id}, nil
}

// ToSeconds converts a PT[nH][nM][nS] duration into seconds.
// The parser is permissive: input without a recognisable PT block yields 0
// instead of an error, and day or week components are ignored.
func ToSeconds(iso string) int {
	m := isoDurationRE.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	return 3600*durationField(m[1]) + 60*durationField(m[2]) + durationField(m[3])
}

func durationField(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0
	}
	return n
}

// FormatHMS renders seconds as H:MM:SS, or M:SS below one hour.
func FormatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// SanitizeTitle drops every character outside [A-Za-z0-9_] and whitespace,
// then joins whitespace runs with a single underscore.
func SanitizeTitle(title string) string {
	cleaned := nonWordRE.ReplaceAllString(title, "")
	return whitespaceRE.ReplaceAllString(cleaned, "_")
}

// Filename builds the download name for a finished job.
func Filename(sanitizedTitle, videoID, ext string) string {
	base := sanitizedTitle
	if base == "" {
		base = videoID
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}
