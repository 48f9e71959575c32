package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/relaykit/relayq/pkg/queue"
)

// FileStore persists queue state as a JSON snapshot on disk. Save writes
// to a temporary file in the same directory and renames it over the
// previous snapshot, so a crash mid-write never corrupts the durable copy.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// fileState mirrors queue.State but defers item decoding, so one corrupt
// entry can be skipped without losing the rest of the snapshot.
type fileState struct {
	SchemaVersion int               `json:"schema_version"`
	SavedAt       time.Time         `json:"saved_at"`
	Stats         queue.Stats       `json:"stats"`
	Items         []json.RawMessage `json:"items"`
}

// FileStoreOption is a functional option for configuring a FileStore
type FileStoreOption func(*FileStore)

// WithFileLogger sets the logger for the file store
func WithFileLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore creates a file-backed store writing to the given path.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("save path cannot be empty")
	}

	s := &FileStore{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save implements queue.Store
func (s *FileStore) Save(ctx context.Context, state queue.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("queue state saved",
		slog.String("path", s.path),
		slog.Int("items", len(state.Items)))
	return nil
}

// Load implements queue.Store. A missing file yields an empty state.
// Entries that fail to decode are skipped and logged individually
// instead of aborting the whole load.
func (s *FileStore) Load(ctx context.Context) (queue.State, error) {
	if err := ctx.Err(); err != nil {
		return queue.State{}, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return queue.State{SchemaVersion: queue.SchemaVersion}, nil
	}
	if err != nil {
		return queue.State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var raw fileState
	if err := json.Unmarshal(data, &raw); err != nil {
		return queue.State{}, fmt.Errorf("failed to decode state file: %w", err)
	}

	state := queue.State{
		SchemaVersion: raw.SchemaVersion,
		SavedAt:       raw.SavedAt,
		Stats:         raw.Stats,
		Items:         make([]queue.Item, 0, len(raw.Items)),
	}
	for i, entry := range raw.Items {
		var item queue.Item
		if err := json.Unmarshal(entry, &item); err != nil {
			s.logger.Warn("skipping corrupt state entry",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		state.Items = append(state.Items, item)
	}
	return state, nil
}
