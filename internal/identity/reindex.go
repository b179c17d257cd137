package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/models"
)

// TaskPublisher queues re-index tasks.
type TaskPublisher interface {
	PublishReindexTask(ctx context.Context, task models.ReindexTask) error
}

// EnqueueReindex queues a task for every enrolled image whose detections were
// produced by another oracle version and returns how many were queued.
func (s *Service) EnqueueReindex(ctx context.Context, tasks TaskPublisher) (int, error) {
	version := s.detector.OracleVersion()

	sctx, cancel := s.bounded(ctx)
	stale, err := s.store.ListStaleImages(sctx, version)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list stale images: %w", err)
	}

	queued := 0
	for _, img := range stale {
		task := models.ReindexTask{
			ImageID:   img.ID,
			PersonID:  img.PersonID,
			Path:      img.Path,
			Requested: s.now().UTC(),
		}
		if err := tasks.PublishReindexTask(ctx, task); err != nil {
			return queued, fmt.Errorf("queue reindex of image %s: %w", img.ID, err)
		}
		queued++
	}
	slog.Info("reindex queued", "images", queued, "oracle_version", version)
	return queued, nil
}

// Reindex re-runs detection on the stored bytes of one enrolled image and
// replaces its detections.
func (s *Service) Reindex(ctx context.Context, task models.ReindexTask) error {
	start := time.Now()

	sctx, cancel := s.bounded(ctx)
	data, contentType, err := s.blobs.GetObject(sctx, task.Path)
	cancel()
	if err != nil {
		return fmt.Errorf("load image blob: %w", err)
	}

	resolved, err := s.resolver.Resolve(ctx, imagesrc.Source{Content: data, ContentType: contentType})
	if err != nil {
		return fmt.Errorf("reindex image %s: %w", task.ImageID, err)
	}
	res, err := s.detector.Detect(ctx, resolved.Image, detection.CentralOnly())
	if err != nil {
		return fmt.Errorf("reindex image %s: %w", task.ImageID, err)
	}

	sctx, cancel = s.bounded(ctx)
	defer cancel()
	if err := s.store.ReplaceDetections(sctx, task.ImageID, res.OracleVersion, res.Detections); err != nil {
		return fmt.Errorf("replace detections: %w", err)
	}

	slog.Debug("image reindexed", "image_id", task.ImageID, "oracle_version", res.OracleVersion,
		"duration_ms", time.Since(start).Milliseconds())
	personID := task.PersonID
	s.publish(ctx, models.EventKindImage, models.EventUpdated, task.ImageID, &personID, nil)
	return nil
}
