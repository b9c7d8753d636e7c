package domain

import (
	"strings"
	"time"
)

// JobState is the lifecycle position of a ConversionJob.
type JobState string

const (
	StateIdle             JobState = "idle"
	StateValidatingInput  JobState = "validating_input"
	StateFetchingMetadata JobState = "fetching_metadata"
	StateDurationRejected JobState = "duration_rejected"
	StateSubmitting       JobState = "submitting"
	StatePolling          JobState = "polling"
	StateSucceeded        JobState = "succeeded"
	StateFailed           JobState = "failed"
)

// Terminal reports whether no further transition is possible for the job.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateDurationRejected
}

// VideoReference identifies a requested video.
type VideoReference struct {
	RawInput string `json:"raw_input"`
	VideoID  string `json:"video_id"`
}

// VideoMetadata is fetched once per conversion attempt.
type VideoMetadata struct {
	Title           string `json:"title"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// ConversionJob holds the mutable state of one conversion attempt.
type ConversionJob struct {
	ID             string         `json:"job_id"`
	Generation     uint64         `json:"generation"`
	Input          string         `json:"input"`
	VideoID        string         `json:"video_id,omitempty"`
	Metadata       *VideoMetadata `json:"metadata,omitempty"`
	SanitizedTitle string         `json:"sanitized_title,omitempty"`
	TargetExt      string         `json:"target_ext"`
	State          JobState       `json:"state"`
	Attempt        int            `json:"attempt"`
	MaxAttempts    int            `json:"max_attempts"`
	ResultURL      string         `json:"result_url,omitempty"`
	Filename       string         `json:"filename,omitempty"`
	LastError      *ErrorInfo     `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewConversionJob creates a job in the idle state.
func NewConversionJob(id, input, targetExt string, maxAttempts int) *ConversionJob {
	now := time.Now().UTC()
	return &ConversionJob{
		ID:          id,
		Input:       input,
		TargetExt:   targetExt,
		State:       StateIdle,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy safe to hand out of the orchestrator.
func (j *ConversionJob) Clone() ConversionJob {
	c := *j
	if j.Metadata != nil {
		m := *j.Metadata
		c.Metadata = &m
	}
	if j.LastError != nil {
		e := *j.LastError
		c.LastError = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// MarkValidating moves the job out of idle.
func (j *ConversionJob) MarkValidating() {
	j.setState(StateValidatingInput)
}

// MarkFetchingMetadata records the extracted id.
func (j *ConversionJob) MarkFetchingMetadata(ref VideoReference) {
	j.VideoID = ref.VideoID
	j.setState(StateFetchingMetadata)
}

// MarkSubmitting records the metadata and derived filename.
func (j *ConversionJob) MarkSubmitting(meta VideoMetadata) {
	j.Metadata = &meta
	j.SanitizedTitle = SanitizeTitle(meta.Title)
	j.Filename = Filename(j.SanitizedTitle, j.VideoID, j.TargetExt)
	j.setState(StateSubmitting)
}

// MarkPolling enters the polling loop.
func (j *ConversionJob) MarkPolling() {
	j.setState(StatePolling)
}

// NextAttempt increments the poll counter, never past MaxAttempts.
func (j *ConversionJob) NextAttempt() int {
	if j.MaxAttempts <= 0 || j.Attempt < j.MaxAttempts {
		j.Attempt++
	}
	j.UpdatedAt = time.Now().UTC()
	return j.Attempt
}

// MarkSucceeded stores the result link. An empty link is rejected as a failure.
func (j *ConversionJob) MarkSucceeded(link string) {
	if link == "" {
		j.MarkFailed(NewError(KindConversionRejected, "conversion finished without a download link", nil))
		return
	}
	j.ResultURL = link
	j.LastError = nil
	j.finish(StateSucceeded)
}

// UseExt renames the output after the container the provider actually
// produced, when that differs from the requested one.
func (j *ConversionJob) UseExt(ext string) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" || ext == j.TargetExt {
		return
	}
	j.TargetExt = ext
	j.Filename = Filename(j.SanitizedTitle, j.VideoID, ext)
}

// MarkDurationRejected ends the job because the video is too long.
func (j *ConversionJob) MarkDurationRejected(err *ConversionError) {
	j.LastError = err.Info()
	j.finish(StateDurationRejected)
}

// MarkFailed ends the job with an error.
func (j *ConversionJob) MarkFailed(err *ConversionError) {
	j.LastError = err.Info()
	j.finish(StateFailed)
}

func (j *ConversionJob) setState(s JobState) {
	j.State = s
	j.UpdatedAt = time.Now().UTC()
}

func (j *ConversionJob) finish(s JobState) {
	j.setState(s)
	t := j.UpdatedAt
	j.CompletedAt = &t
}

// ConversionStatus is one answer of the conversion provider.
type ConversionStatus struct {
	Status  string `json:"status"`
	Link    string `json:"link,omitempty"`
	Message string `json:"msg,omitempty"`
	// Ext is the container of the linked file, when the provider reports one.
	Ext string `json:"ext,omitempty"`
}

const (
	StatusOK         = "ok"
	StatusProcessing = "processing"
	StatusFail       = "fail"
)

// HasLink reports whether the provider handed back a download link.
func (s ConversionStatus) HasLink() bool {
	return s.Link != ""
}

// Succeeded treats any response carrying a link as success, whatever its status says.
func (s ConversionStatus) Succeeded() bool {
	return s.HasLink()
}

// Failed reports an explicit failure without a link.
func (s ConversionStatus) Failed() bool {
	return s.Status == StatusFail && !s.HasLink()
}

// Level is the severity of a Notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Notification is what the presentation sink receives on every transition.
type Notification struct {
	JobID       string         `json:"job_id"`
	Session     string         `json:"session,omitempty"`
	State       JobState       `json:"state"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	Attempt     int            `json:"attempt,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	ResultURL   string         `json:"result_url,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Metadata    *VideoMetadata `json:"metadata,omitempty"`
	Error       *ErrorInfo     `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
