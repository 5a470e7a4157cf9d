package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/ir"
	"github.com/caisson-io/caisson/internal/provider"
	"github.com/caisson-io/caisson/internal/state"
)

// fakeProvider implements provider.Provider in memory. It hands out
// sequential ids, echoes attributes back as outputs, and records the
// order operations ran in. Tests inject failures per "op type" key,
// e.g. "create fake_db".
type fakeProvider struct {
	mu        sync.Mutex
	seq       int
	calls     []string
	failures  map[string]int // remaining failures per key, -1 means forever
	failWith  map[string]error
	immutable []string
	sensitive []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failures: map[string]int{},
		failWith: map[string]error{},
	}
}

// fail makes every call matching key return err.
func (p *fakeProvider) fail(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[key] = -1
	p.failWith[key] = err
}

// failTimes makes the next n calls matching key return err, after which
// the operation succeeds again.
func (p *fakeProvider) failTimes(key string, n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[key] = n
	p.failWith[key] = err
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

// step records the call and returns the injected failure, if any.
func (p *fakeProvider) step(op, resourceType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := op + " " + resourceType
	p.calls = append(p.calls, key)
	n := p.failures[key]
	if n == 0 {
		return nil
	}
	if n > 0 {
		p.failures[key] = n - 1
	}
	return p.failWith[key]
}

func (p *fakeProvider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *fakeProvider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	return &provider.ResourceSchema{
		Immutable: p.immutable,
		Computed:  []string{"id"},
		Sensitive: p.sensitive,
	}, nil
}

func (p *fakeProvider) Create(ctx context.Context, resourceType string, attrs map[string]any) (string, map[string]any, error) {
	if err := p.step("create", resourceType); err != nil {
		return "", nil, err
	}
	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("%s-%d", resourceType, p.seq)
	p.mu.Unlock()

	outputs := map[string]any{"id": id}
	for k, v := range attrs {
		outputs[k] = v
	}
	return id, outputs, nil
}

func (p *fakeProvider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	if err := p.step("read", resourceType); err != nil {
		return nil, err
	}
	return prior, nil
}

func (p *fakeProvider) Update(ctx context.Context, resourceType, id string, attrs, prior map[string]any) (map[string]any, error) {
	if err := p.step("update", resourceType); err != nil {
		return nil, err
	}
	outputs := map[string]any{"id": id}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *fakeProvider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	return p.step("delete", resourceType)
}

// fakeStore keeps saves in memory so tests can check what the executor
// persisted and when.
type fakeStore struct {
	mu      sync.Mutex
	saves   int
	last    *ir.Snapshot
	saveErr error
}

func (s *fakeStore) Load(ctx context.Context) (*ir.Snapshot, error) {
	return ir.NewSnapshot(), nil
}

func (s *fakeStore) Save(ctx context.Context, snap *ir.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.last = snap
	return nil
}

func (s *fakeStore) Lock(ctx context.Context, info *state.LockInfo) (state.UnlockFunc, error) {
	return func() error { return nil }, nil
}

// newTestEngine wires p into a registry under the name "fake" and returns
// an engine with retry delays short enough for tests.
func newTestEngine(t *testing.T, p provider.Provider) *Engine {
	t.Helper()
	reg := provider.NewRegistry(map[string]provider.Factory{
		"fake": func() provider.Provider { return p },
	})
	require.NoError(t, reg.Load(context.Background(), "fake"))

	eng := New(reg)
	eng.Retry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return eng
}

// loadConfig runs src through the real declaration loader so tests
// exercise the same decode path the CLI does.
func loadConfig(t *testing.T, src string) *ir.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(src), 0o644))
	cfg, _, err := decl.Load(dir)
	require.NoError(t, err)
	return cfg
}

// converge plans src against snap and applies the result, failing the
// test on any error.
func converge(t *testing.T, eng *Engine, src string, snap *ir.Snapshot, store state.Store) *ir.Plan {
	t.Helper()
	ctx := context.Background()
	cfg := loadConfig(t, src)
	plan, err := eng.Plan(ctx, cfg, "hash", snap)
	require.NoError(t, err)
	_, err = eng.Apply(ctx, cfg, plan, snap, store, nil)
	require.NoError(t, err)
	return plan
}

// planOps flattens a plan into "op address" strings for readable
// ordering assertions.
func planOps(plan *ir.Plan) []string {
	out := make([]string, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		out = append(out, string(a.Op)+" "+a.Address)
	}
	return out
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
