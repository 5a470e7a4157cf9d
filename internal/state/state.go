// Package state persists snapshots and serializes access to them. A store
// is lockable: callers take the lock for the whole plan-and-apply cycle so
// concurrent runs against the same state are refused, not interleaved.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"

	"github.com/caisson-io/caisson/internal/ir"
)

// Store reads and writes snapshots.
type Store interface {
	// Load returns the current snapshot, or a fresh empty one if none has
	// been written yet.
	Load(ctx context.Context) (*ir.Snapshot, error)

	// Save persists the snapshot, bumping its serial. Writes are atomic:
	// a reader never observes a half-written snapshot.
	Save(ctx context.Context, snap *ir.Snapshot) error

	// Lock takes the exclusive lock, recording info so a refused caller can
	// see who holds it. The returned function releases the lock.
	Lock(ctx context.Context, info *LockInfo) (UnlockFunc, error)
}

// UnlockFunc releases a held lock.
type UnlockFunc func() error

// LockInfo describes a lock holder.
type LockInfo struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Who       string    `json:"who"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLockInfo returns lock metadata for the current process.
func NewLockInfo(operation string) *LockInfo {
	who := "unknown"
	if u, err := user.Current(); err == nil {
		who = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		who += "@" + host
	}
	return &LockInfo{
		ID:        uuid.NewString(),
		Operation: operation,
		Who:       who,
		CreatedAt: time.Now().UTC(),
	}
}

// LockError reports that the state lock is held elsewhere.
type LockError struct {
	Holder *LockInfo
	Err    error
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("state is locked by %s (operation %q, since %s); "+
			"if that process is gone, release the lock manually",
			e.Holder.Who, e.Holder.Operation, e.Holder.CreatedAt.Format(time.RFC3339))
	}
	if e.Err != nil {
		return fmt.Sprintf("state is locked by another process: %s", e.Err)
	}
	return "state is locked by another process"
}

func (e *LockError) Unwrap() error { return e.Err }

// CorruptionError reports a snapshot that failed to parse or verify. It is
// never repaired automatically; the operator decides what to restore.
type CorruptionError struct {
	Source string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("state snapshot %s is corrupted: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Encode serializes a snapshot with its integrity checksum filled in.
func Encode(snap *ir.Snapshot) ([]byte, error) {
	sum, err := Checksum(snap)
	if err != nil {
		return nil, err
	}
	snap.Checksum = sum
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and verifies a serialized snapshot. A snapshot that does
// not parse, carries an unsupported version, or fails its checksum comes
// back as a CorruptionError.
func Decode(data []byte, source string) (*ir.Snapshot, error) {
	var snap ir.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptionError{Source: source, Reason: "not valid JSON", Err: err}
	}
	if snap.Version > ir.SnapshotVersion {
		return nil, &CorruptionError{
			Source: source,
			Reason: fmt.Sprintf("version %d is newer than supported version %d", snap.Version, ir.SnapshotVersion),
		}
	}
	if snap.Checksum != "" {
		want := snap.Checksum
		got, err := Checksum(&snap)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, &CorruptionError{
				Source: source,
				Reason: fmt.Sprintf("checksum mismatch (recorded %s, computed %s)", short(want), short(got)),
			}
		}
	}
	return &snap, nil
}

// Checksum computes the integrity hash over the snapshot content with the
// checksum field itself blanked. JSON object keys serialize in sorted
// order, so the digest is deterministic.
func Checksum(snap *ir.Snapshot) (string, error) {
	cp := *snap
	cp.Checksum = ""
	data, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("failed to hash state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
