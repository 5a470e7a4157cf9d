package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/caisson-io/caisson/internal/ir"
)

// Local stores the snapshot in a single file, guarded by an OS file lock so
// concurrent runs on the same machine refuse each other.
type Local struct {
	path string
}

func NewLocal(path string) *Local {
	return &Local{path: path}
}

func (l *Local) Load(ctx context.Context) (*ir.Snapshot, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return ir.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", l.path, err)
	}
	return Decode(data, l.path)
}

// Save writes the snapshot through a temp file in the same directory and
// renames it into place, so a crash mid-write leaves the old snapshot
// intact.
func (l *Local) Save(ctx context.Context, snap *ir.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	snap.Serial++
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", l.path, err)
	}
	return nil
}

// Lock takes the file lock next to the state file. The attempt does not
// block: a held lock is reported immediately with the holder read from the
// info file.
func (l *Local) Lock(ctx context.Context, info *LockInfo) (UnlockFunc, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	fl := flock.New(l.lockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to take state lock: %w", err)
	}
	if !locked {
		return nil, &LockError{Holder: l.readLockInfo()}
	}

	if data, err := json.Marshal(info); err == nil {
		os.WriteFile(l.infoPath(), data, 0o600)
	}

	return func() error {
		os.Remove(l.infoPath())
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("failed to release state lock: %w", err)
		}
		return nil
	}, nil
}

func (l *Local) readLockInfo() *LockInfo {
	data, err := os.ReadFile(l.infoPath())
	if err != nil {
		return nil
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

func (l *Local) lockPath() string { return l.path + ".lock" }
func (l *Local) infoPath() string { return l.path + ".lock.info" }
