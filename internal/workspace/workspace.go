package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OutputTemplateSuffix is appended to a WorkItem id to form the output
// template understood by the extraction tool.
const OutputTemplateSuffix = ".%(ext)s"

const (
	defaultDir             = "./downloads"
	defaultResolveAttempts = 5
	defaultResolveInterval = 200 * time.Millisecond
)

// suffixes left behind by an extraction that has not finished
var inProgressSuffixes = []string{"part", "ytdl", "temp", "tmp"}

type Config struct {
	Dir             string
	ResolveAttempts int
	ResolveInterval time.Duration
}

// Manager owns the staging directory. It is safe for concurrent use: every
// request writes only to the files named after its own WorkItem id.
type Manager struct {
	dir             string
	resolveAttempts int
	resolveInterval time.Duration
	now             func() time.Time
	newID           func() (uuid.UUID, error)
}

type SweepResult struct {
	Deleted    int   `json:"deleted"`
	FreedBytes int64 `json:"freedBytes"`
}

type Stats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// New ensures the staging directory exists and is writable.
func New(config Config) (*Manager, error) {
	dir := config.Dir
	if dir == "" {
		dir = defaultDir
	}
	if config.ResolveAttempts <= 0 {
		config.ResolveAttempts = defaultResolveAttempts
	}
	if config.ResolveInterval <= 0 {
		config.ResolveInterval = defaultResolveInterval
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, media.NewError(media.KindStorageUnavailable, fmt.Errorf("failed to create staging directory: %w", err))
	}
	if err := probeWritable(dir); err != nil {
		return nil, media.NewError(media.KindStorageUnavailable, fmt.Errorf("staging directory is not writable: %w", err))
	}

	return &Manager{
		dir:             dir,
		resolveAttempts: config.ResolveAttempts,
		resolveInterval: config.ResolveInterval,
		now:             time.Now,
		newID:           uuid.NewV7,
	}, nil
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (m *Manager) Dir() string {
	return m.dir
}

// Allocate hands out a fresh WorkItem. Ids are UUIDv7: a millisecond
// timestamp followed by random bits, so two allocations in the same instant
// still differ.
func (m *Manager) Allocate() (*WorkItem, error) {
	if fi, err := os.Stat(m.dir); err != nil || !fi.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", m.dir)
		}
		return nil, media.NewError(media.KindStorageUnavailable, err)
	}

	id, err := m.newID()
	if err != nil {
		return nil, media.NewError(media.KindStorageUnavailable, fmt.Errorf("failed to generate work item id: %w", err))
	}

	item := &WorkItem{
		ID:          id.String(),
		CreatedAt:   m.now(),
		StagingPath: filepath.Join(m.dir, id.String()+OutputTemplateSuffix),
		State:       StateAllocating,
	}
	return item, nil
}

// ResolveProducedFile finds the file the tool wrote for item. The extension
// is chosen by the tool, so any "<id>.<ext>" qualifies; extHint is preferred
// when several candidates exist. The directory is polled a few times to let
// a final rename land. The resolved file's mtime is reset to now.
func (m *Manager) ResolveProducedFile(ctx context.Context, item *WorkItem, extHint string) (*media.Artifact, error) {
	extHint = strings.TrimPrefix(strings.ToLower(extHint), ".")

	var lastErr error
	for attempt := 0; attempt < m.resolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, media.NewError(media.KindArtifactMissing, ctx.Err())
			case <-time.After(m.resolveInterval):
			}
		}

		artifact, err := m.findArtifact(item.ID, extHint)
		if err == nil {
			// retention counts from resolution, whatever mtime the tool set
			now := m.now()
			if err := os.Chtimes(artifact.Path, now, now); err != nil {
				return nil, media.NewError(media.KindArtifactMissing, err)
			}
			return artifact, nil
		}
		lastErr = err
	}

	return nil, media.NewError(media.KindArtifactMissing, lastErr)
}

func (m *Manager) findArtifact(id, extHint string) (*media.Artifact, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging directory: %w", err)
	}

	var chosen os.FileInfo
	var chosenExt string
	for _, entry := range entries {
		ext, ok := producedExtension(entry.Name(), id)
		if !ok || entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if chosen == nil || strings.EqualFold(ext, extHint) {
			chosen, chosenExt = info, ext
		}
	}

	if chosen == nil {
		return nil, fmt.Errorf("no file produced for work item %s", id)
	}
	if chosen.Size() == 0 {
		return nil, fmt.Errorf("produced file %s is empty", chosen.Name())
	}

	return &media.Artifact{
		Path:      filepath.Join(m.dir, chosen.Name()),
		Extension: chosenExt,
		SizeBytes: chosen.Size(),
	}, nil
}

// producedExtension returns ext for a finished "<id>.<ext>" name.
func producedExtension(name, id string) (string, bool) {
	rest, ok := strings.CutPrefix(name, id+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	for _, suffix := range inProgressSuffixes {
		if strings.EqualFold(rest, suffix) {
			return "", false
		}
	}
	return rest, true
}

// Release removes every file belonging to item, finished or partial.
func (m *Manager) Release(item *WorkItem) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to list staging directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), item.ID+".") {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepExpired deletes files whose modification time is more than maxAge
// ago. Files vanishing between listing and removal are not errors.
func (m *Manager) SweepExpired(maxAge time.Duration) (SweepResult, error) {
	var result SweepResult
	if maxAge <= 0 {
		return result, fmt.Errorf("retention must be positive, got %s", maxAge)
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return result, fmt.Errorf("failed to list staging directory: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		result.Deleted++
		result.FreedBytes += info.Size()
		log.Debug().Str("file", entry.Name()).Msg("Removed expired staging file")
	}

	return result, errors.Join(errs...)
}

// Stats reports how much the staging directory currently holds.
func (m *Manager) Stats() (Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return stats, fmt.Errorf("failed to list staging directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Files++
		stats.Bytes += info.Size()
	}
	return stats, nil
}
