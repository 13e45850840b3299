package download

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/extractor"
	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/rs/zerolog/log"
)

// Extractor produces one media file at outputTemplate for req.
type Extractor interface {
	Extract(ctx context.Context, req *media.DownloadRequest, outputTemplate string) (*extractor.Result, error)
}

// Observer is told about every lifecycle transition of a WorkItem. Kind is
// empty unless state is failed.
type Observer interface {
	OnTransition(workItemID string, state workspace.State, kind media.Kind)
}

// Delivery is a resolved artifact ready to be streamed. Body must be closed
// exactly once; closing it ends the request's lifecycle.
type Delivery struct {
	Item     *workspace.WorkItem
	Artifact *media.Artifact
	Body     io.ReadCloser
}

type Service struct {
	workspace *workspace.Manager
	extractor Extractor
	observer  Observer
	retention time.Duration
	sweeping  sync.Mutex
}

func NewService(manager *workspace.Manager, ex Extractor, observer Observer, retention time.Duration) *Service {
	return &Service{
		workspace: manager,
		extractor: ex,
		observer:  observer,
		retention: retention,
	}
}

// Download runs one request through validating, allocating, extracting and
// resolving. On success the returned Delivery is in the delivering state.
// The work is detached from ctx cancellation: a caller that disconnects
// does not stop the extraction, which stays bounded by the tool timeout.
func (s *Service) Download(ctx context.Context, req *media.DownloadRequest) (*Delivery, error) {
	if err := req.Validate(); err != nil {
		log.Info().Err(err).Str("mode", string(req.Mode())).Msg("Rejected download request")
		return nil, invalidInput(err)
	}
	ctx = context.WithoutCancel(ctx)

	item, err := s.workspace.Allocate()
	if err != nil {
		log.Error().Err(err).Msg("Failed to allocate work item")
		return nil, err
	}
	s.transition(item, workspace.StateAllocating, "")

	logger := log.With().Str("workItemId", item.ID).Str("mode", string(req.Mode())).Logger()
	logger.Info().
		Str("source", req.ResolveSourceURL("")).
		Str("quality", string(req.Quality)).
		Msg("Starting extraction")

	s.transition(item, workspace.StateExtracting, "")
	result, err := s.extractor.Extract(ctx, req, item.StagingPath)
	if err != nil {
		s.release(item)
		return nil, s.fail(item, err)
	}

	s.transition(item, workspace.StateResolving, "")
	artifact, err := s.workspace.ResolveProducedFile(ctx, item, result.Extension)
	if err != nil {
		s.release(item)
		return nil, s.fail(item, err)
	}
	artifact.DisplayName = SanitizeTitle(result.Title)

	file, err := os.Open(artifact.Path)
	if err != nil {
		s.release(item)
		return nil, s.fail(item, media.NewError(media.KindArtifactMissing, err))
	}

	logger.Info().
		Str("file", artifact.Filename()).
		Int64("sizeBytes", artifact.SizeBytes).
		Msg("Artifact ready for delivery")

	s.transition(item, workspace.StateDelivering, "")
	return &Delivery{
		Item:     item,
		Artifact: artifact,
		Body: &trackedBody{
			file: file,
			size: artifact.SizeBytes,
			done: func(sent int64) { s.finish(item, artifact, sent) },
		},
	}, nil
}

// release removes whatever the tool left behind for a failed item.
func (s *Service) release(item *workspace.WorkItem) {
	if err := s.workspace.Release(item); err != nil {
		log.Warn().Err(err).Str("workItemId", item.ID).Msg("Failed to remove partial output")
	}
}

func (s *Service) finish(item *workspace.WorkItem, artifact *media.Artifact, sent int64) {
	if sent < artifact.SizeBytes {
		// the artifact stays on disk for retention so a retry can be served
		log.Warn().
			Str("workItemId", item.ID).
			Int64("sent", sent).
			Int64("sizeBytes", artifact.SizeBytes).
			Msg("Delivery aborted before completion")
		s.transition(item, workspace.StateFailed, media.KindUnknown)
		return
	}

	log.Info().Str("workItemId", item.ID).Msg("Delivery completed")
	s.transition(item, workspace.StateDone, "")
	go s.SweepNow()
}

// SweepNow removes expired staging files. Concurrent calls collapse into
// the one already running.
func (s *Service) SweepNow() {
	if s.retention <= 0 || !s.sweeping.TryLock() {
		return
	}
	defer s.sweeping.Unlock()

	result, err := s.workspace.SweepExpired(s.retention)
	if err != nil {
		log.Warn().Err(err).Msg("Opportunistic staging sweep failed")
	}
	if result.Deleted > 0 {
		log.Info().
			Int("deletedCount", result.Deleted).
			Int64("freedBytes", result.FreedBytes).
			Msg("Opportunistic staging sweep completed")
	}
}

func (s *Service) fail(item *workspace.WorkItem, err error) error {
	var mediaErr *media.Error
	if !errors.As(err, &mediaErr) {
		mediaErr = media.NewError(media.KindUnknown, err)
	}
	log.Error().
		Err(err).
		Str("workItemId", item.ID).
		Str("kind", string(mediaErr.Kind)).
		Msg("Download failed")
	s.transition(item, workspace.StateFailed, mediaErr.Kind)
	return mediaErr
}

func (s *Service) transition(item *workspace.WorkItem, state workspace.State, kind media.Kind) {
	item.State = state
	log.Debug().Str("workItemId", item.ID).Str("state", string(state)).Msg("Work item transition")
	if s.observer != nil {
		s.observer.OnTransition(item.ID, state, kind)
	}
}

func invalidInput(err error) *media.Error {
	message := strings.TrimPrefix(err.Error(), media.ErrValidation.Error()+": ")
	return &media.Error{Kind: media.KindInvalidInput, Message: message, Err: err}
}

// trackedBody reports how many bytes were read once the responder closes it.
type trackedBody struct {
	file *os.File
	size int64
	read int64
	once sync.Once
	done func(sent int64)
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.file.Read(p)
	b.read += int64(n)
	return n, err
}

func (b *trackedBody) Close() error {
	err := b.file.Close()
	b.once.Do(func() { b.done(b.read) })
	return err
}
