package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/veranemoloko/download-panel/internal/domain"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// SnapshotStorage keeps the panel snapshot in a single JSON file.
type SnapshotStorage struct {
	mu   sync.Mutex
	file string
}

// NewSnapshotStorage creates a SnapshotStorage backed by filePath.
func NewSnapshotStorage(filePath string) *SnapshotStorage {
	return &SnapshotStorage{file: filepath.Clean(filePath)}
}

// Load returns the saved snapshot. A missing or empty file yields an empty
// snapshot; a file from an unknown version is an error.
func (r *SnapshotStorage) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.file)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("state file does not exist, starting with empty state", "file_path", r.file)
			return domain.Snapshot{}, nil
		}
		return domain.Snapshot{}, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("state file is empty", "file_path", r.file)
		return domain.Snapshot{}, nil
	}

	var stored snapshotFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	if stored.Version != snapshotVersion {
		return domain.Snapshot{}, fmt.Errorf("unsupported state file version %d", stored.Version)
	}

	slog.Info("state loaded from file",
		"file_path", r.file,
		"jobs_count", len(stored.Snapshot.Jobs),
		"history_count", len(stored.Snapshot.History),
		"saved_at", stored.SavedAt,
	)
	return stored.Snapshot, nil
}

// Save writes snap atomically: a temporary file is written and renamed over
// the previous one.
func (r *SnapshotStorage) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Anomalies are recomputed from the records on load.
	snap.Anomalies = nil

	data, err := json.MarshalIndent(snapshotFile{
		Version:  snapshotVersion,
		SavedAt:  time.Now().UTC(),
		Snapshot: snap,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("state saved to file", "file_path", r.file, "jobs_count", len(snap.Jobs))
	return nil
}
