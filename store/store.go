package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"doctrans/fault"
	"doctrans/observability"
)

// Canonical artifact file names inside a job directory. One path per artifact
// kind: re-running a stage overwrites deterministically instead of
// accumulating versions.
const (
	jobFile         = "job.json"
	InputFile       = "input.pdf"
	PagesDir        = "pages"
	VisionFile      = "vision.json"
	EditedFile      = "edited.json"
	MarkdownFile    = "layout.md"
	AssetsDir       = "md_assets"
	BoxesFile       = "boxes.json"
	ReportFile      = "overlay_report.json"
	PreviewDir      = "preview"
	OutputHTML      = "output.html"
	OutputOverlay   = "output_overlay.pdf"
	OutputOCR       = "output_ocr.pdf"
	checksumSuffix  = ".sum"
	tempWriteSuffix = ".tmp"
)

// PageRasterName returns the canonical file name for a 1-indexed page raster.
func PageRasterName(page int) string { return fmt.Sprintf("page_%d.png", page) }

// Store manages per-job directories under root/jobs/<id>/.
type Store struct {
	root string
	log  observability.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store events.
func WithLogger(l observability.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		root:  dir,
		log:   observability.NopLogger{},
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.jobsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return s, nil
}

func (s *Store) jobsDir() string { return filepath.Join(s.root, "jobs") }

// JobDir returns the directory holding a job's artifacts.
func (s *Store) JobDir(jobID string) string { return filepath.Join(s.jobsDir(), jobID) }

// Create allocates a new job with a fresh id and persists its initial record.
func (s *Store) Create() (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusCreated,
		CreatedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(s.JobDir(job.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	if err := s.Save(job); err != nil {
		return nil, err
	}
	s.log.Info("job created", observability.String("job_id", job.ID))
	return job, nil
}

// Exists reports whether a job record is present.
func (s *Store) Exists(jobID string) bool {
	_, err := os.Stat(filepath.Join(s.JobDir(jobID), jobFile))
	return err == nil
}

// Load reads a job record from disk. A missing record is NOT_FOUND; an
// unparseable one is CORRUPT_ARTIFACT since job.json is required.
func (s *Store) Load(jobID string) (*Job, error) {
	path := filepath.Join(s.JobDir(jobID), jobFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.NotFound("job " + jobID)
		}
		return nil, fmt.Errorf("read job record: %w", err)
	}
	if err := s.verifyChecksum(path, data); err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fault.Corrupt(jobFile, err)
	}
	return &job, nil
}

// Save durably persists the job record: write to a temporary sibling, fsync,
// then rename over the canonical file. A crash mid-write never leaves a
// half-written record.
func (s *Store) Save(job *Job) error {
	if job.ID == "" {
		return fault.Validation("job id is empty")
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job record: %w", err)
	}
	return s.writeArtifact(filepath.Join(s.JobDir(job.ID), jobFile), data)
}

// WithLock serializes a read-modify-write cycle for one job. Different jobs
// use different mutexes and never block each other.
func (s *Store) WithLock(jobID string, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.locks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[jobID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// SaveInput streams an uploaded source document into the job directory.
func (s *Store) SaveInput(jobID string, data []byte) (string, error) {
	if err := os.MkdirAll(s.JobDir(jobID), 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	path := filepath.Join(s.JobDir(jobID), InputFile)
	if err := s.writeArtifact(path, data); err != nil {
		return "", err
	}
	s.log.Info("input saved",
		observability.String("job_id", jobID),
		observability.Int64(observability.MetricArtifactBytes, int64(len(data))))
	return path, nil
}

// writeArtifact is the single write path for all artifacts: temp file, fsync,
// atomic rename, checksum sidecar.
func (s *Store) writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + tempWriteSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish artifact: %w", err)
	}
	sum := blake2b.Sum256(data)
	// The sidecar is advisory: its own write failing must not unpublish the
	// artifact, and loads without a sidecar skip verification.
	if err := os.WriteFile(path+checksumSuffix, []byte(hex.EncodeToString(sum[:])), 0o644); err != nil {
		s.log.Warn("checksum sidecar write failed",
			observability.String("artifact", filepath.Base(path)),
			observability.Error("error", err))
	}
	return nil
}

// verifyChecksum checks data against the artifact's sidecar digest when one
// exists. A mismatch means the artifact bytes were corrupted after publish.
func (s *Store) verifyChecksum(path string, data []byte) error {
	want, err := os.ReadFile(path + checksumSuffix)
	if err != nil {
		return nil // no sidecar, nothing to verify
	}
	sum := blake2b.Sum256(data)
	if hex.EncodeToString(sum[:]) != string(want) {
		return fault.Corrupt(filepath.Base(path), fmt.Errorf("checksum mismatch"))
	}
	return nil
}
