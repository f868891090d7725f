package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileLocks serializes read-modify-write cycles per checkpoint path within
// the process.
var fileLocks sync.Map // absolute path -> *sync.Mutex

// FileBackend stores the checkpoint as an indented JSON object on disk.
// Every write re-reads the file and merges, so stores in one process may
// share a path. Separate processes must not write the same file.
type FileBackend struct {
	path string
	mu   *sync.Mutex
}

// NewFileBackend creates a backend for the JSON file at path.
func NewFileBackend(path string) *FileBackend {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	mu, _ := fileLocks.LoadOrStore(key, &sync.Mutex{})
	return &FileBackend{path: path, mu: mu.(*sync.Mutex)}
}

// Path returns the checkpoint file location.
func (f *FileBackend) Path() string {
	return f.path
}

// Load reads the checkpoint file. A missing or empty file yields an empty
// checkpoint.
func (f *FileBackend) Load(ctx context.Context) (Checkpoint, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", f.path, err)
	}

	if len(data) == 0 {
		return Checkpoint{}, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", f.path, wrapCorrupt(err))
	}
	if cp == nil {
		cp = Checkpoint{}
	}

	return cp, nil
}

// Put merges progress for one partition into the file.
func (f *FileBackend) Put(ctx context.Context, partition string, p Progress) error {
	return f.update(ctx, func(cp Checkpoint) { cp[partition] = p })
}

// Delete removes partitions from the file, or empties it when none are given.
func (f *FileBackend) Delete(ctx context.Context, partitions ...string) error {
	return f.update(ctx, func(cp Checkpoint) {
		if len(partitions) == 0 {
			clear(cp)
		}
		for _, partition := range partitions {
			delete(cp, partition)
		}
	})
}

// update re-reads the file under the path lock, applies change and writes
// the result back. A corrupt file is replaced, matching Store.Open which
// already started from an empty checkpoint.
func (f *FileBackend) update(ctx context.Context, change func(Checkpoint)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp, err := f.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		cp = Checkpoint{}
	}
	change(cp)
	return f.Save(ctx, cp)
}

// Save writes the checkpoint to a temporary file next to the target, syncs
// it, and renames it into place so readers only ever see a complete file.
func (f *FileBackend) Save(ctx context.Context, cp Checkpoint) error {
	if cp == nil {
		cp = Checkpoint{}
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	committed = true

	// Persist the rename itself. Not every platform supports syncing a
	// directory, so failures here are ignored.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}

	return nil
}
