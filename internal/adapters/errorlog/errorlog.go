// Package errorlog keeps the most recent workflow errors, newest first.
package errorlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ytmp3convert/internal/core/domain"
)

const (
	// MaxEntries bounds every Log implementation.
	MaxEntries = 10

	// RedisKey is the list holding the entries.
	RedisKey = "yt2mp3_error_logs"
)

// Entry is one logged error.
type Entry struct {
	Message   string           `json:"message"`
	Kind      domain.ErrorKind `json:"kind,omitempty"`
	JobID     string           `json:"job_id,omitempty"`
	Session   string           `json:"session,omitempty"`
	Source    string           `json:"source,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Log stores at most MaxEntries entries.
type Log interface {
	Add(ctx context.Context, e Entry) error
	// List returns entries newest first.
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
}

// Memory is an in-process Log.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]Entry{e}, m.entries...)
	if len(m.entries) > MaxEntries {
		m.entries = m.entries[:MaxEntries]
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.entries...), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

// lists is the subset of *redis.Client used by Redis.
type lists interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis is a Log shared by every server instance using the same Redis.
type Redis struct {
	client lists
	key    string
}

// NewRedis stores entries under RedisKey.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, key: RedisKey}
}

func (r *Redis) Add(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode error entry: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push error entry: %w", err)
	}
	if err := r.client.LTrim(ctx, r.key, 0, MaxEntries-1).Err(); err != nil {
		return fmt.Errorf("failed to trim error log: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, MaxEntries-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear error log: %w", err)
	}
	return nil
}

// queueSize bounds the entries waiting to be written by a Notifier.
const queueSize = 64

// Notifier records every error-level notification into a Log. Notify only
// enqueues; a background goroutine performs the writes, so a slow Redis
// never holds up the caller.
type Notifier struct {
	log    Log
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// NewNotifier creates a Notifier writing to l. Call Close to flush it.
func NewNotifier(l Log, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	n := &Notifier{
		log:    l,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
	go n.drain()
	return n
}

// Notify implements ports.Notifier.
func (n *Notifier) Notify(note domain.Notification) {
	if note.Level != domain.LevelError {
		return
	}
	e := Entry{
		Message:   note.Message,
		JobID:     note.JobID,
		Session:   note.Session,
		Source:    string(note.State),
		Timestamp: note.Timestamp,
	}
	if note.Error != nil {
		e.Kind = note.Error.Kind
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- e:
	default:
		n.logger.Printf("Error log queue full, dropping: %s", note.Message)
	}
}

func (n *Notifier) drain() {
	defer close(n.done)
	for e := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := n.log.Add(ctx, e); err != nil {
			n.logger.Printf("Error logging failed: %v (original error: %s)", err, e.Message)
		}
		cancel()
	}
}

// Close stops accepting entries and waits until the queued ones are written.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}
