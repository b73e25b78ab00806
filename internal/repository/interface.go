package repository

import (
	"context"

	"github.com/veranemoloko/download-panel/internal/domain"
)

// SnapshotRepo persists the panel state between runs so a restart can render
// the last known view before the first refresh completes.
type SnapshotRepo interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snap domain.Snapshot) error
}
