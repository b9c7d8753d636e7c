package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytmp3convert/internal/core/domain"
	"ytmp3convert/internal/core/ports"
)

// ErrAbandoned is returned by Submit when a newer submission or Cancel took
// over before the job reached a terminal state.
var ErrAbandoned = errors.New("conversion abandoned")

const storeTimeout = 5 * time.Second

// Policy holds the overridable limits of the workflow.
type Policy struct {
	MaxDurationSeconds int
	PollInterval       time.Duration
	MaxPollAttempts    int
	TargetExt          string
}

// DefaultPolicy is 10 minutes of video, 20 polls, 5 seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxDurationSeconds: 600,
		PollInterval:       5 * time.Second,
		MaxPollAttempts:    20,
		TargetExt:          "mp3",
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxDurationSeconds <= 0 {
		p.MaxDurationSeconds = d.MaxDurationSeconds
	}
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.MaxPollAttempts <= 0 {
		p.MaxPollAttempts = d.MaxPollAttempts
	}
	if p.TargetExt == "" {
		p.TargetExt = d.TargetExt
	}
	return p
}

// Orchestrator coordinates the conversion workflow and owns the active job.
// Notifier implementations must not call back into the Orchestrator.
type Orchestrator struct {
	metadata  ports.MetadataProvider
	converter ports.ConversionProvider
	notifier  ports.Notifier
	store     ports.JobStore
	policy    Policy
	logger    *log.Logger

	mu         sync.Mutex
	generation uint64
	job        *domain.ConversionJob
	saves      *jobSaves
	cancel     context.CancelFunc
}

// jobSaves orders the persisted snapshots of one job.
type jobSaves struct {
	seq uint64 // guarded by Orchestrator.mu

	mu    sync.Mutex
	saved uint64
}

type snapshot struct {
	job   domain.ConversionJob
	seq   uint64
	saves *jobSaves
}

// NewOrchestrator creates a new Orchestrator. store may be nil.
func NewOrchestrator(
	metadata ports.MetadataProvider,
	converter ports.ConversionProvider,
	notifier ports.Notifier,
	store ports.JobStore,
	policy Policy,
	logger *log.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = ports.NotifierFunc(func(domain.Notification) {})
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		metadata:  metadata,
		converter: converter,
		notifier:  notifier,
		store:     store,
		policy:    policy.withDefaults(),
		logger:    logger,
	}
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Current returns a copy of the active job.
func (o *Orchestrator) Current() (domain.ConversionJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job == nil {
		return domain.ConversionJob{}, false
	}
	return o.job.Clone(), true
}

// Cancel abandons the active job if it is still running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job == nil || o.job.State.Terminal() {
		return false
	}
	job := o.job
	job.MarkFailed(domain.NewError(domain.KindTransportError, "Conversion cancelled", context.Canceled))
	o.notifyLocked(job, domain.LevelError, "Conversion cancelled.")
	o.generation++
	if o.cancel != nil {
		o.cancel()
	}
	o.logger.Printf("[JOB %s] Cancelled by user", job.ID)
	go o.persist(o.snapshotLocked(job))
	return true
}

// Submit starts a fresh job for rawInput, superseding any job in flight, and
// blocks until it reaches a terminal state. The returned snapshot is always
// the job created by this call; the error is a *domain.ConversionError for
// failed or rejected jobs, or ErrAbandoned.
func (o *Orchestrator) Submit(ctx context.Context, rawInput string) (domain.ConversionJob, error) {
	_, done := o.Start(ctx, rawInput)
	res := <-done
	return res.Job, res.Err
}

// Result is the outcome of a job started with Start.
type Result struct {
	Job domain.ConversionJob
	Err error
}

// Start is the non-blocking form of Submit. It returns the new job's initial
// snapshot right away; the terminal snapshot arrives on the channel, which
// is buffered and receives exactly one value.
func (o *Orchestrator) Start(ctx context.Context, rawInput string) (domain.ConversionJob, <-chan Result) {
	jobCtx, gen, job := o.begin(ctx, rawInput)

	o.mu.Lock()
	initial := job.Clone()
	o.mu.Unlock()

	done := make(chan Result, 1)
	go func() {
		defer o.end(gen)

		o.logger.Printf("[JOB %s] Starting conversion for input: %s", job.ID, strings.TrimSpace(rawInput))
		err := o.run(jobCtx, gen, job)

		o.mu.Lock()
		final := job.Clone()
		o.mu.Unlock()
		done <- Result{Job: final, Err: err}
	}()
	return initial, done
}

func (o *Orchestrator) begin(ctx context.Context, rawInput string) (context.Context, uint64, *domain.ConversionJob) {
	jobCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	if old := o.job; old != nil && !old.State.Terminal() {
		old.MarkFailed(domain.NewError(domain.KindTransportError, "Superseded by a new submission", ErrAbandoned))
		o.logger.Printf("[JOB %s] Superseded by a new submission", old.ID)
		go o.persist(o.snapshotLocked(old))
	}
	o.generation++
	job := domain.NewConversionJob(uuid.New().String(), rawInput, o.policy.TargetExt, o.policy.MaxPollAttempts)
	job.Generation = o.generation
	o.job = job
	o.saves = &jobSaves{}
	o.cancel = cancel
	return jobCtx, o.generation, job
}

func (o *Orchestrator) end(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation == gen && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, job *domain.ConversionJob) error {
	if !o.apply(ctx, gen, job, domain.LevelInfo, "Validating URL...", func(j *domain.ConversionJob) {
		j.MarkValidating()
	}) {
		return ErrAbandoned
	}

	ref, err := domain.NewVideoReference(job.Input)
	if err != nil {
		var ce *domain.ConversionError
		if !errors.As(err, &ce) {
			ce = domain.NewError(domain.KindInvalidURL, "Please enter a valid YouTube URL", err)
		}
		return o.fail(ctx, gen, job, ce, ce.Message)
	}

	if !o.apply(ctx, gen, job, domain.LevelInfo, "Fetching video information...", func(j *domain.ConversionJob) {
		j.MarkFetchingMetadata(ref)
	}) {
		return ErrAbandoned
	}

	meta, err := o.metadata.FetchMetadata(ctx, ref.VideoID)
	if !o.isCurrent(gen) {
		o.logger.Printf("[JOB %s] Discarding late metadata response", job.ID)
		return ErrAbandoned
	}
	if err == nil && meta == nil {
		err = domain.ErrNotFound
	}
	if err != nil {
		o.logger.Printf("[JOB %s] ERROR: metadata lookup failed: %v", job.ID, err)
		msg := "Could not retrieve video information. Please try again later."
		if errors.Is(err, domain.ErrNotFound) {
			msg = "Video not found or is unavailable."
		}
		return o.fail(ctx, gen, job, domain.NewError(domain.KindMetadataUnavailable, msg, err), msg)
	}
	if meta.DurationSeconds < 0 {
		meta.DurationSeconds = 0
	}

	if meta.DurationSeconds > o.policy.MaxDurationSeconds {
		msg := fmt.Sprintf("Video exceeds the maximum duration of %s", describeLimit(o.policy.MaxDurationSeconds))
		ce := domain.NewError(domain.KindDurationExceeded, msg, nil)
		o.logger.Printf("[JOB %s] Duration %ds over limit %ds", job.ID, meta.DurationSeconds, o.policy.MaxDurationSeconds)
		if !o.apply(ctx, gen, job, domain.LevelError, msg, func(j *domain.ConversionJob) {
			j.Metadata = meta
			j.MarkDurationRejected(ce)
		}) {
			return ErrAbandoned
		}
		return ce
	}

	startMsg := fmt.Sprintf("Converting %q (%s)...", meta.Title, domain.FormatHMS(meta.DurationSeconds))
	if !o.apply(ctx, gen, job, domain.LevelInfo, startMsg, func(j *domain.ConversionJob) {
		j.MarkSubmitting(*meta)
	}) {
		return ErrAbandoned
	}

	o.logger.Printf("[JOB %s] Submitting %s to conversion provider...", job.ID, ref.VideoID)
	status, err := o.converter.Convert(ctx, ref.VideoID)
	if !o.isCurrent(gen) {
		o.logger.Printf("[JOB %s] Discarding late submission response", job.ID)
		return ErrAbandoned
	}
	if err != nil {
		o.logger.Printf("[JOB %s] ERROR: submission failed: %v", job.ID, err)
		msg := "Conversion failed. Please try again later or with a different video."
		return o.fail(ctx, gen, job, domain.NewError(domain.KindTransportError, msg, err), msg)
	}

	switch {
	case status.Succeeded():
		return o.succeed(ctx, gen, job, status)
	case status.Failed():
		return o.reject(ctx, gen, job, status)
	}

	progress := fmt.Sprintf("Conversion in progress: %s. This may take a few minutes...", statusMessage(status))
	if !o.apply(ctx, gen, job, domain.LevelInfo, progress, func(j *domain.ConversionJob) {
		j.MarkPolling()
	}) {
		return ErrAbandoned
	}
	return o.poll(ctx, gen, job, ref.VideoID)
}

// poll re-queries the provider at a fixed interval. Each query is issued only
// after the previous one resolved.
func (o *Orchestrator) poll(ctx context.Context, gen uint64, job *domain.ConversionJob, videoID string) error {
	for {
		timer := time.NewTimer(o.policy.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if !o.isCurrent(gen) {
				return ErrAbandoned
			}
			msg := "Conversion cancelled."
			return o.fail(ctx, gen, job, domain.NewError(domain.KindTransportError, msg, ctx.Err()), msg)
		case <-timer.C:
		}

		var attempt int
		if !o.mutate(gen, func() { attempt = job.NextAttempt() }) {
			return ErrAbandoned
		}

		status, err := o.converter.Convert(ctx, videoID)
		if !o.isCurrent(gen) {
			o.logger.Printf("[JOB %s] Discarding late poll response (attempt %d)", job.ID, attempt)
			return ErrAbandoned
		}
		if err != nil {
			o.logger.Printf("[JOB %s] ERROR: poll %d failed: %v", job.ID, attempt, err)
			msg := "Error checking conversion status. Please try again later."
			return o.fail(ctx, gen, job, domain.NewError(domain.KindTransportError, msg, err), msg)
		}

		switch {
		case status.Succeeded():
			return o.succeed(ctx, gen, job, status)
		case status.Failed():
			return o.reject(ctx, gen, job, status)
		case attempt >= o.policy.MaxPollAttempts:
			msg := fmt.Sprintf("Conversion failed after %d attempts. Please try again later.", attempt)
			return o.fail(ctx, gen, job, domain.NewError(domain.KindPollLimitExceeded, msg, nil), msg)
		}

		msg := fmt.Sprintf("Conversion in progress: %s. Attempt %d/%d...", statusMessage(status), attempt, o.policy.MaxPollAttempts)
		if !o.apply(ctx, gen, job, domain.LevelInfo, msg, func(*domain.ConversionJob) {}) {
			return ErrAbandoned
		}
	}
}

func (o *Orchestrator) succeed(ctx context.Context, gen uint64, job *domain.ConversionJob, status *domain.ConversionStatus) error {
	ext := o.policy.TargetExt
	if status.Ext != "" {
		ext = status.Ext
	}
	msg := fmt.Sprintf("Conversion completed! Click the download button to get your %s file.", strings.ToUpper(ext))
	var polls int
	if !o.apply(ctx, gen, job, domain.LevelSuccess, msg, func(j *domain.ConversionJob) {
		j.UseExt(status.Ext)
		j.MarkSucceeded(status.Link)
		polls = j.Attempt
	}) {
		return ErrAbandoned
	}
	o.logger.Printf("[JOB %s] Job completed successfully after %d polls: %s", job.ID, polls, status.Link)
	return nil
}

func (o *Orchestrator) reject(ctx context.Context, gen uint64, job *domain.ConversionJob, status *domain.ConversionStatus) error {
	reason := status.Message
	if reason == "" {
		reason = "the conversion service rejected the video"
	}
	msg := fmt.Sprintf("Conversion failed: %s. Please try again later or with a different video.", reason)
	return o.fail(ctx, gen, job, domain.NewError(domain.KindConversionRejected, msg, nil), msg)
}

func (o *Orchestrator) fail(ctx context.Context, gen uint64, job *domain.ConversionJob, ce *domain.ConversionError, msg string) error {
	if !o.apply(ctx, gen, job, domain.LevelError, msg, func(j *domain.ConversionJob) {
		j.MarkFailed(ce)
	}) {
		return ErrAbandoned
	}
	o.logger.Printf("[JOB %s] ERROR: %s", job.ID, ce.Error())
	return ce
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

// mutate runs fn under the lock only while gen is the active generation.
func (o *Orchestrator) mutate(gen uint64, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return false
	}
	fn()
	return true
}

// apply mutates the job, notifies the sink and persists the snapshot, unless
// gen went stale in the meantime.
func (o *Orchestrator) apply(ctx context.Context, gen uint64, job *domain.ConversionJob, level domain.Level, msg string, fn func(*domain.ConversionJob)) bool {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return false
	}
	fn(job)
	o.notifyLocked(job, level, msg)
	snap := o.snapshotLocked(job)
	o.mu.Unlock()

	o.persistCtx(ctx, snap)
	return true
}

// snapshotLocked copies the active job and stamps the copy with its next
// save sequence. job must be o.job.
func (o *Orchestrator) snapshotLocked(job *domain.ConversionJob) snapshot {
	o.saves.seq++
	return snapshot{job: job.Clone(), seq: o.saves.seq, saves: o.saves}
}

func (o *Orchestrator) notifyLocked(job *domain.ConversionJob, level domain.Level, msg string) {
	n := domain.Notification{
		JobID:       job.ID,
		State:       job.State,
		Level:       level,
		Message:     msg,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		Timestamp:   time.Now().UTC(),
	}
	if job.Metadata != nil {
		m := *job.Metadata
		n.Metadata = &m
	}
	if job.State == domain.StateSucceeded {
		n.ResultURL = job.ResultURL
		n.Filename = job.Filename
	}
	if job.LastError != nil && level == domain.LevelError {
		e := *job.LastError
		n.Error = &e
	}
	o.notifier.Notify(n)
}

// persistCtx saves snapshots in sequence order. A snapshot that lost the race
// to a newer one is dropped, so the store never moves a job backwards.
func (o *Orchestrator) persistCtx(ctx context.Context, snap snapshot) {
	if o.store == nil {
		return
	}
	job := snap.job
	snap.saves.mu.Lock()
	defer snap.saves.mu.Unlock()
	if snap.seq <= snap.saves.saved {
		o.logger.Printf("[JOB %s] Skipping stale %s snapshot", job.ID, job.State)
		return
	}
	snap.saves.saved = snap.seq

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Printf("[JOB %s] WARN: failed to persist job: %v", job.ID, err)
	}
}

func (o *Orchestrator) persist(snap snapshot) {
	o.persistCtx(context.Background(), snap)
}

func statusMessage(s *domain.ConversionStatus) string {
	if s.Message != "" {
		return s.Message
	}
	return domain.StatusProcessing
}

func describeLimit(seconds int) string {
	if seconds%60 == 0 {
		minutes := seconds / 60
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return domain.FormatHMS(seconds)
}
