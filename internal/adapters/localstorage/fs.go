package localstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"ytmp3convert/internal/core/domain"
)

// LocalStorage implements ports.JobStore and ports.AudioStorage for the local filesystem.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitJob creates the job directory.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) error {
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return nil
}

// SaveJob writes job.json, creating the job directory on first use.
func (s *LocalStorage) SaveJob(ctx context.Context, job domain.ConversionJob) error {
	if err := s.InitJob(ctx, job.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	// Write through a temp file so readers never see a half-written job.
	path := filepath.Join(s.GetJobPath(job.ID), "job.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to save job.json: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to save job.json: %w", err)
	}
	return nil
}

// LoadJob reads job.json back.
func (s *LocalStorage) LoadJob(ctx context.Context, jobID string) (*domain.ConversionJob, error) {
	if !validJobID(jobID) {
		return nil, domain.ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.GetJobPath(jobID), "job.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job.json: %w", err)
	}
	var job domain.ConversionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job.json: %w", err)
	}
	return &job, nil
}

// SaveAudio saves the converted audio file and returns its path.
func (s *LocalStorage) SaveAudio(ctx context.Context, jobID string, reader io.Reader, filename string) (string, error) {
	if err := s.InitJob(ctx, jobID); err != nil {
		return "", err
	}
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "audio.mp3"
	}
	path := filepath.Join(s.GetJobPath(jobID), filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return path, nil
}

// GetJobPath returns the path for a job directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

func validJobID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

// AudioInfo is what InspectAudio could learn about a saved file.
type AudioInfo struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Format    string `json:"format,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	Album     string `json:"album,omitempty"`
	Tagged    bool   `json:"tagged"`
}

// InspectAudio reads the tags of a saved audio file. Files without tags are
// not an error: the title then falls back to the file name.
func (s *LocalStorage) InspectAudio(path string) (*AudioInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file %s: %w", path, err)
	}
	info := &AudioInfo{Path: path, SizeBytes: stat.Size()}

	meta, err := tag.ReadFrom(file)
	switch {
	case errors.Is(err, tag.ErrNoTagsFound):
	case err != nil:
		return nil, fmt.Errorf("failed to parse audio tags: %w", err)
	default:
		info.Tagged = true
		info.Format = string(meta.Format())
		info.FileType = string(meta.FileType())
		info.Title = meta.Title()
		info.Artist = meta.Artist()
		info.Album = meta.Album()
	}

	if info.Title == "" {
		base := filepath.Base(path)
		info.Title = strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), "_", " ")
	}
	return info, nil
}
