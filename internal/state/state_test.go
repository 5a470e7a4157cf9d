package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caisson-io/caisson/internal/ir"
)

func testSnapshot() *ir.Snapshot {
	snap := ir.NewSnapshot()
	snap.Put(&ir.ResourceState{
		Type:     "fake_db",
		Name:     "main",
		Provider: "fake",
		ID:       "fake_db-1",
		Inputs:   map[string]any{"name": "primary"},
		Outputs:  map[string]any{"id": "fake_db-1"},
	})
	return snap
}

func TestLocal_LoadMissingReturnsFresh(t *testing.T) {
	store := NewLocal(filepath.Join(t.TempDir(), "state.json"))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.SnapshotVersion, snap.Version)
	assert.Zero(t, snap.Serial)
	assert.NotEmpty(t, snap.Lineage)
	assert.Empty(t, snap.Resources)
}

func TestLocal_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewLocal(path)
	ctx := context.Background()

	// 1. Save a snapshot with one resource.
	snap := testSnapshot()
	lineage := snap.Lineage
	require.NoError(t, store.Save(ctx, snap))
	assert.Equal(t, uint64(1), snap.Serial, "save bumps the serial")

	// 2. The write is atomic: only the state file remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())

	// 3. Reload and compare.
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Serial)
	assert.Equal(t, lineage, loaded.Lineage)
	assert.NotEmpty(t, loaded.Checksum)
	require.Len(t, loaded.Resources, 1)
	assert.Equal(t, "fake_db-1", loaded.Resources[0].ID)
	assert.Equal(t, "primary", loaded.Resources[0].Inputs["name"])
}

func TestLocal_SerialIncrementsPerSave(t *testing.T) {
	store := NewLocal(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	snap := testSnapshot()
	require.NoError(t, store.Save(ctx, snap))
	require.NoError(t, store.Save(ctx, snap))
	assert.Equal(t, uint64(2), snap.Serial)
}

func TestLocal_ChecksumDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewLocal(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot()))

	// Flip a value behind the store's back.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "primary", "tampered", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = store.Load(ctx)
	require.Error(t, err)

	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.Equal(t, path, corrupt.Source)
}

func TestLocal_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	_, err := NewLocal(path).Load(context.Background())
	require.Error(t, err)

	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestDecode_RejectsNewerVersion(t *testing.T) {
	data, err := json.Marshal(&ir.Snapshot{Version: ir.SnapshotVersion + 1})
	require.NoError(t, err)

	_, err = Decode(data, "test")
	require.Error(t, err)

	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestLocal_LockRefusesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first := NewLocal(path)
	unlock, err := first.Lock(ctx, NewLockInfo("apply"))
	require.NoError(t, err)

	// A second runner against the same state is turned away and told who
	// holds the lock.
	second := NewLocal(path)
	_, err = second.Lock(ctx, NewLockInfo("destroy"))
	require.Error(t, err)

	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	require.NotNil(t, lockErr.Holder)
	assert.Equal(t, "apply", lockErr.Holder.Operation)
	assert.Contains(t, err.Error(), "state is locked")

	// Releasing the lock lets the next runner in.
	require.NoError(t, unlock())
	unlock2, err := second.Lock(ctx, NewLockInfo("destroy"))
	require.NoError(t, err)
	require.NoError(t, unlock2())
}

func TestChecksum_Deterministic(t *testing.T) {
	snap := testSnapshot()

	a, err := Checksum(snap)
	require.NoError(t, err)
	b, err := Checksum(snap)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// The checksum field itself is excluded from the digest.
	snap.Checksum = a
	c, err := Checksum(snap)
	require.NoError(t, err)
	assert.Equal(t, a, c)

	snap.Serial++
	d, err := Checksum(snap)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestNewStore_BackendSelection(t *testing.T) {
	ctx := context.Background()
	workdir := t.TempDir()

	// No backend block means local state under the working directory.
	store, err := NewStore(ctx, nil, workdir)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	store, err = NewStore(ctx, &ir.Backend{Type: "local", Settings: map[string]string{"path": "custom.state"}}, workdir)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = NewStore(ctx, &ir.Backend{Type: "s3", Settings: map[string]string{}}, workdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a 'bucket' setting")

	_, err = NewStore(ctx, &ir.Backend{Type: "consul", Settings: map[string]string{}}, workdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
}
