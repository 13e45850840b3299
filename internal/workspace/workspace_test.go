package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := New(Config{
		Dir:             t.TempDir(),
		ResolveAttempts: 2,
		ResolveInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return manager
}

func writeFile(t *testing.T, path string, content string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestNew_ShouldFailWithStorageUnavailableWhenDirCannotBeCreated(t *testing.T) {
	// given a regular file where the staging directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// when
	_, err := New(Config{Dir: filepath.Join(blocker, "staging")})

	// then
	require.Error(t, err)
	assert.Equal(t, media.KindStorageUnavailable, media.KindOf(err))
}

func TestManager_Allocate_ShouldReturnDistinctIdsUnderConcurrency(t *testing.T) {
	// given
	manager := newTestManager(t)
	const requests = 50

	// when
	var wg sync.WaitGroup
	items := make([]*WorkItem, requests)
	errs := make([]error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items[i], errs[i] = manager.Allocate()
		}(i)
	}
	wg.Wait()

	// then
	ids := make(map[string]bool)
	paths := make(map[string]bool)
	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		assert.False(t, ids[items[i].ID], "duplicate id %s", items[i].ID)
		assert.False(t, paths[items[i].StagingPath], "duplicate path %s", items[i].StagingPath)
		ids[items[i].ID] = true
		paths[items[i].StagingPath] = true
		assert.True(t, strings.HasPrefix(items[i].StagingPath, manager.Dir()))
		assert.True(t, strings.HasSuffix(items[i].StagingPath, OutputTemplateSuffix))
	}
}

func TestManager_Allocate_ShouldFailWhenStagingDirDisappears(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, os.RemoveAll(manager.Dir()))

	_, err := manager.Allocate()

	assert.Equal(t, media.KindStorageUnavailable, media.KindOf(err))
}

func TestManager_ResolveProducedFile_ShouldFindFileWithToolChosenExtension(t *testing.T) {
	// given
	manager := newTestManager(t)
	item, err := manager.Allocate()
	require.NoError(t, err)
	now := time.Now()
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".webm"), "video-bytes", now)
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".mp4.part"), "partial", now)

	// when
	artifact, err := manager.ResolveProducedFile(context.Background(), item, "mp4")

	// then
	require.NoError(t, err)
	assert.Equal(t, "webm", artifact.Extension)
	assert.Equal(t, int64(len("video-bytes")), artifact.SizeBytes)
	assert.Equal(t, filepath.Join(manager.Dir(), item.ID+".webm"), artifact.Path)
}

func TestManager_ResolveProducedFile_ShouldRestartRetentionForOldToolTimestamps(t *testing.T) {
	// given a file the tool stamped with the source's upload date
	manager := newTestManager(t)
	item, err := manager.Allocate()
	require.NoError(t, err)
	path := filepath.Join(manager.Dir(), item.ID+".mp4")
	writeFile(t, path, "video-bytes", time.Now().Add(-48*time.Hour))

	// when
	_, err = manager.ResolveProducedFile(context.Background(), item, "mp4")
	require.NoError(t, err)
	result, err := manager.SweepExpired(time.Hour)

	// then
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.FileExists(t, path)
}

func TestManager_ResolveProducedFile_ShouldPreferHintedExtension(t *testing.T) {
	manager := newTestManager(t)
	item, err := manager.Allocate()
	require.NoError(t, err)
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".m4a"), "audio", time.Now())
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".mp4"), "video", time.Now())

	artifact, err := manager.ResolveProducedFile(context.Background(), item, ".MP4")

	require.NoError(t, err)
	assert.Equal(t, "mp4", artifact.Extension)
}

func TestManager_ResolveProducedFile_ShouldReportArtifactMissing(t *testing.T) {
	// given
	manager := newTestManager(t)
	item, err := manager.Allocate()
	require.NoError(t, err)
	other, err := manager.Allocate()
	require.NoError(t, err)
	writeFile(t, filepath.Join(manager.Dir(), other.ID+".mp4"), "someone else", time.Now())

	// when
	_, err = manager.ResolveProducedFile(context.Background(), item, "mp4")

	// then
	assert.Equal(t, media.KindArtifactMissing, media.KindOf(err))
}

func TestManager_ResolveProducedFile_ShouldTreatEmptyFileAsMissing(t *testing.T) {
	manager := newTestManager(t)
	item, err := manager.Allocate()
	require.NoError(t, err)
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".mp4"), "", time.Now())

	_, err = manager.ResolveProducedFile(context.Background(), item, "mp4")

	assert.Equal(t, media.KindArtifactMissing, media.KindOf(err))
}

func TestManager_Release_ShouldRemoveOnlyFilesOfTheItem(t *testing.T) {
	// given
	manager := newTestManager(t)
	item, _ := manager.Allocate()
	other, _ := manager.Allocate()
	now := time.Now()
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".mp4.part"), "partial", now)
	writeFile(t, filepath.Join(manager.Dir(), item.ID+".mp4"), "done", now)
	writeFile(t, filepath.Join(manager.Dir(), other.ID+".mp4"), "keep", now)

	// when
	err := manager.Release(item)

	// then
	require.NoError(t, err)
	entries, err := os.ReadDir(manager.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.ID+".mp4", entries[0].Name())
}

func TestManager_SweepExpired_ShouldDeleteOnlyFilesOlderThanRetention(t *testing.T) {
	// given
	manager := newTestManager(t)
	now := time.Now()
	writeFile(t, filepath.Join(manager.Dir(), "old.mp4"), "12345", now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(manager.Dir(), "fresh.mp4"), "abc", now.Add(-30*time.Minute))

	// when
	result, err := manager.SweepExpired(time.Hour)

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, int64(5), result.FreedBytes)
	_, err = os.Stat(filepath.Join(manager.Dir(), "old.mp4"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(manager.Dir(), "fresh.mp4"))
	assert.NoError(t, err)
}

func TestManager_SweepExpired_ShouldRejectNonPositiveRetention(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.SweepExpired(0)
	assert.Error(t, err)
}

func TestManager_SweepExpired_ShouldTolerateConcurrentRemoval(t *testing.T) {
	manager := newTestManager(t)
	old := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(manager.Dir(), "f"+strings.Repeat("x", i)+".mp4"), "data", old)
	}

	var wg sync.WaitGroup
	results := make([]SweepResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			results[i], err = manager.SweepExpired(time.Hour)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Deleted
	}
	assert.Equal(t, 20, total)
}

func TestManager_Stats(t *testing.T) {
	manager := newTestManager(t)
	writeFile(t, filepath.Join(manager.Dir(), "a.mp4"), "1234", time.Now())
	writeFile(t, filepath.Join(manager.Dir(), "b.webm"), "12", time.Now())

	stats, err := manager.Stats()

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, int64(6), stats.Bytes)
}

func TestCleanupScheduler_RunNow_ShouldSweepExpiredFiles(t *testing.T) {
	manager := newTestManager(t)
	writeFile(t, filepath.Join(manager.Dir(), "old.mp4"), "x", time.Now().Add(-2*time.Hour))
	scheduler := NewCleanupScheduler(manager, time.Hour, time.Minute)

	result := scheduler.RunNow()

	assert.Equal(t, 1, result.Deleted)
}

func TestCleanupScheduler_Start_ShouldSweepOnEveryTick(t *testing.T) {
	// given
	manager := newTestManager(t)
	scheduler := NewCleanupScheduler(manager, time.Hour, 10*time.Millisecond)
	scheduler.Start()
	defer scheduler.Stop()

	// when a file becomes expired after the scheduler started
	path := filepath.Join(manager.Dir(), "late.mp4")
	writeFile(t, path, "x", time.Now().Add(-2*time.Hour))

	// then
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCleanupScheduler_Stop_ShouldBeIdempotent(t *testing.T) {
	scheduler := NewCleanupScheduler(newTestManager(t), 0, 0)
	scheduler.Start()
	scheduler.Stop()
	scheduler.Stop()
	assert.Equal(t, defaultRetention, scheduler.Retention())
}
