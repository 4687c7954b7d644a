package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Checkpointer persists partial progress. Load returns nil, nil when no
// checkpoint exists.
type Checkpointer interface {
	Load(ctx context.Context) (*model.Checkpoint, error)
	Save(ctx context.Context, cp *model.Checkpoint) error
	Delete(ctx context.Context) error
}

// Nop discards checkpoints.
type Nop struct{}

// Load implements Checkpointer.
func (Nop) Load(context.Context) (*model.Checkpoint, error) { return nil, nil }

// Save implements Checkpointer.
func (Nop) Save(context.Context, *model.Checkpoint) error { return nil }

// Delete implements Checkpointer.
func (Nop) Delete(context.Context) error { return nil }

// FileCheckpointer stores a checkpoint as a JSON file, replaced atomically.
type FileCheckpointer struct {
	Path string
}

// Load implements Checkpointer.
func (f FileCheckpointer) Load(_ context.Context) (*model.Checkpoint, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read checkpoint %s", f.Path)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "batch: decode checkpoint %s", f.Path)
	}
	return &cp, nil
}

// Save implements Checkpointer.
func (f FileCheckpointer) Save(_ context.Context, cp *model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "batch: encode checkpoint")
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "batch: create temp checkpoint in %s", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "batch: write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "batch: close checkpoint")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), f.Path), "batch: replace checkpoint %s", f.Path)
}

// Delete implements Checkpointer.
func (f FileCheckpointer) Delete(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "batch: delete checkpoint %s", f.Path)
	}
	return nil
}

// CheckpointStore is a key-addressed checkpoint table.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, key string, cp *model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, key string) error
}

// StoreCheckpointer adapts a CheckpointStore to a single key.
type StoreCheckpointer struct {
	Store CheckpointStore
	Key   string
}

// Load implements Checkpointer.
func (s StoreCheckpointer) Load(ctx context.Context) (*model.Checkpoint, error) {
	return s.Store.LoadCheckpoint(ctx, s.Key)
}

// Save implements Checkpointer.
func (s StoreCheckpointer) Save(ctx context.Context, cp *model.Checkpoint) error {
	return s.Store.SaveCheckpoint(ctx, s.Key, cp)
}

// Delete implements Checkpointer.
func (s StoreCheckpointer) Delete(ctx context.Context) error {
	return s.Store.DeleteCheckpoint(ctx, s.Key)
}
