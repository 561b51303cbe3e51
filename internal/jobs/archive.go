package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/staffdir/pkg/repository"
)

// TypeAssetArchive archives a profile photo that could not be archived inline.
const TypeAssetArchive = "asset.archive"

const archivePriority = 10

// ArchivePayload is the payload of an asset.archive job.
type ArchivePayload struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
}

// EnqueueArchive queues an asset.archive job.
func (p *WorkerPool) EnqueueArchive(ctx context.Context, ref, name string) error {
	if ref == "" {
		return errors.New("archive job needs a ref")
	}
	id, err := p.Enqueue(ctx, TypeAssetArchive, ArchivePayload{Ref: ref, Name: name}, archivePriority, 8)
	if err != nil {
		return fmt.Errorf("enqueue archive: %w", err)
	}
	p.logger.Info("archive job queued", "job_id", id, "ref", ref)
	return nil
}

// NewArchiveHandler renames the asset named in the payload. An asset that is
// already gone counts as archived.
func NewArchiveHandler(assets repository.AssetStore, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, j *Job) error {
		var pl ArchivePayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return fmt.Errorf("%w: decode payload: %v", ErrPermanent, err)
		}
		if pl.Ref == "" {
			return fmt.Errorf("%w: empty ref", ErrPermanent)
		}
		err := assets.RenameAsset(ctx, pl.Ref, pl.Name)
		if errors.Is(err, repository.ErrAssetNotFound) {
			logger.Warn("archive: asset already gone", "ref", pl.Ref)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("archive: asset archived", "ref", pl.Ref, "name", pl.Name)
		return nil
	}
}
