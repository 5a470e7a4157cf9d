package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caisson-io/caisson/internal/ir"
)

func TestPlan_CreatesNewResources(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name = "primary"
}

resource "fake_app" "web" {
  name  = "frontend"
  db_id = fake_db.main.id
}
`)

	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	assert.Equal(t, []string{"create fake_db.main", "create fake_app.web"}, planOps(plan))
	assert.Equal(t, ir.Summary{Create: 2}, plan.Summary())

	// The dependent waits for the resource it references.
	app := plan.Actions[1]
	assert.Contains(t, app.DependsOn, "fake_db.main:create")

	// db_id resolves only after fake_db.main exists, so it plans as unknown.
	require.Contains(t, app.Diff, "db_id")
	assert.True(t, app.Diff["db_id"].Unknown)
	assert.Nil(t, app.Diff["db_id"].After)
	require.Contains(t, app.Diff, "name")
	assert.Equal(t, "frontend", app.Diff["name"].After)

	require.NotNil(t, plan.Meta)
	assert.Equal(t, "hash", plan.Meta.ConfigHash)
	assert.Equal(t, snap.Serial, plan.Meta.StateSerial)
	assert.Equal(t, snap.Lineage, plan.Meta.StateLineage)
}

func TestPlan_NoChangesAfterApply(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	src := `
resource "fake_db" "main" {
  name = "primary"
}

resource "fake_app" "web" {
  name  = "frontend"
  db_id = fake_db.main.id
}
`
	converge(t, eng, src, snap, store)

	plan, err := eng.Plan(context.Background(), loadConfig(t, src), "hash", snap)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlan_UpdateInPlace(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name = "primary"
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name = "renamed"
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	action := plan.Actions[0]
	assert.Equal(t, ir.OpUpdate, action.Op)
	assert.False(t, action.Replace)
	require.Contains(t, action.Diff, "name")
	assert.Equal(t, "primary", action.Diff["name"].Before)
	assert.Equal(t, "renamed", action.Diff["name"].After)
	assert.Equal(t, ir.Summary{Update: 1}, plan.Summary())
}

func TestPlan_ReplaceOnImmutableChange(t *testing.T) {
	fp := newFakeProvider()
	fp.immutable = []string{"size"}
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name = "primary"
  size = "small"
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name = "primary"
  size = "large"
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	// Replace decomposes into delete then create on the same address.
	del, create := plan.Actions[0], plan.Actions[1]
	assert.Equal(t, ir.OpDelete, del.Op)
	assert.True(t, del.Replace)
	assert.Equal(t, ir.OpCreate, create.Op)
	assert.True(t, create.Replace)
	assert.Equal(t, del.Address, create.Address)
	assert.Contains(t, create.DependsOn, del.Key())

	require.Contains(t, create.Diff, "size")
	assert.True(t, create.Diff["size"].ForcesReplacement)
	assert.Equal(t, "small", create.Diff["size"].Before)
	assert.Equal(t, "large", create.Diff["size"].After)

	assert.Equal(t, ir.Summary{Replace: 1}, plan.Summary())
}

func TestPlan_CreateBeforeDestroy(t *testing.T) {
	fp := newFakeProvider()
	fp.immutable = []string{"size"}
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  size = "small"

  lifecycle {
    create_before_destroy = true
  }
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  size = "large"

  lifecycle {
    create_before_destroy = true
  }
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	// The replacement comes up before the old instance goes away.
	assert.Equal(t, ir.OpCreate, plan.Actions[0].Op)
	assert.Equal(t, ir.OpDelete, plan.Actions[1].Op)
	assert.Contains(t, plan.Actions[1].DependsOn, plan.Actions[0].Key())
}

func TestPlan_ReplacePropagatesUnknowns(t *testing.T) {
	fp := newFakeProvider()
	fp.immutable = []string{"size"}
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	src := `
resource "fake_db" "main" {
  size = "small"
}

resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`
	converge(t, eng, src, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  size = "large"
}

resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 3)

	// The replacement invalidates the id the app recorded, so the app
	// updates with a value only known after the new instance exists.
	appUpdate := plan.Actions[2]
	require.Equal(t, "fake_app.web", appUpdate.Address)
	assert.Equal(t, ir.OpUpdate, appUpdate.Op)
	assert.True(t, appUpdate.Diff["db_id"].Unknown)
	assert.Contains(t, appUpdate.DependsOn, "fake_db.main:create")
}

func TestPlan_PreventDestroyBlocksReplacement(t *testing.T) {
	fp := newFakeProvider()
	fp.immutable = []string{"size"}
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  size = "small"

  lifecycle {
    prevent_destroy = true
  }
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  size = "large"

  lifecycle {
    prevent_destroy = true
  }
}
`)
	_, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy")
	assert.Contains(t, err.Error(), "fake_db.main")
}

func TestPlan_IgnoreChanges(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name = "primary"
  note = "managed"

  lifecycle {
    ignore_changes = ["note"]
  }
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name = "primary"
  note = "edited out of band"

  lifecycle {
    ignore_changes = ["note"]
  }
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlan_MarksSensitiveAttributes(t *testing.T) {
	fp := newFakeProvider()
	fp.sensitive = []string{"password"}
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name     = "primary"
  password = "hunter2"
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name     = "renamed"
  password = "hunter3"
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	diff := plan.Actions[0].Diff
	require.Contains(t, diff, "password")
	assert.True(t, diff["password"].Sensitive)
	assert.False(t, diff["name"].Sensitive)
}

func TestPlan_DeletesRemovedResources(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name = "primary"
}

resource "fake_app" "web" {
  name = "frontend"
}
`, snap, store)

	cfg := loadConfig(t, `
resource "fake_db" "main" {
  name = "primary"
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	action := plan.Actions[0]
	assert.Equal(t, ir.OpDelete, action.Op)
	assert.Equal(t, "fake_app.web", action.Address)
	require.NotNil(t, action.Prior)
	assert.Equal(t, "frontend", action.Diff["name"].Before)
}

func TestPlan_DeleteWaitsForFormerDependents(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	converge(t, eng, `
resource "fake_db" "main" {
  name = "primary"
}

resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`, snap, store)

	// The app stops referencing the db in the same run that removes it.
	// The old instance must outlive the app until the update lands.
	cfg := loadConfig(t, `
resource "fake_app" "web" {
  db_id = "external"
}
`)
	plan, err := eng.Plan(context.Background(), cfg, "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	ops := planOps(plan)
	assert.Less(t, indexOf(ops, "update fake_app.web"), indexOf(ops, "delete fake_db.main"))

	del := plan.Actions[1]
	require.Equal(t, ir.OpDelete, del.Op)
	assert.Contains(t, del.DependsOn, "fake_app.web:update")
}

func TestPlanDestroy_DeletesInReverseOrder(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	src := `
resource "fake_db" "main" {
  name = "primary"
}

resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`
	converge(t, eng, src, snap, store)

	plan, err := eng.PlanDestroy(context.Background(), loadConfig(t, src), "hash", snap)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	// Dependency order recorded in the snapshot drives destruction even
	// though deletes carry no declaration.
	assert.Equal(t, []string{"delete fake_app.web", "delete fake_db.main"}, planOps(plan))
	assert.Contains(t, plan.Actions[1].DependsOn, "fake_app.web:delete")
	assert.Equal(t, ir.Summary{Delete: 2}, plan.Summary())
}

func TestPlanDestroy_PreventDestroyRefuses(t *testing.T) {
	fp := newFakeProvider()
	eng := newTestEngine(t, fp)
	snap := ir.NewSnapshot()
	store := &fakeStore{}

	src := `
resource "fake_db" "main" {
  name = "primary"

  lifecycle {
    prevent_destroy = true
  }
}
`
	converge(t, eng, src, snap, store)

	_, err := eng.PlanDestroy(context.Background(), loadConfig(t, src), "hash", snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy is set; remove it before destroying")
}

func TestVerifyPlan(t *testing.T) {
	snap := ir.NewSnapshot()
	snap.Serial = 3

	meta := &ir.PlanMeta{ConfigHash: "h1", StateSerial: 3, StateLineage: snap.Lineage}

	require.NoError(t, VerifyPlan(&ir.Plan{Meta: meta}, "h1", snap))

	var stale *PlanStaleError

	err := VerifyPlan(&ir.Plan{}, "h1", snap)
	require.ErrorAs(t, err, &stale)
	assert.Contains(t, err.Error(), "no metadata")

	err = VerifyPlan(&ir.Plan{Meta: meta}, "h2", snap)
	require.ErrorAs(t, err, &stale)
	assert.Contains(t, err.Error(), "configuration changed")

	other := ir.NewSnapshot()
	other.Serial = 3
	err = VerifyPlan(&ir.Plan{Meta: meta}, "h1", other)
	require.ErrorAs(t, err, &stale)
	assert.Contains(t, err.Error(), "lineage changed")

	snap.Serial = 4
	err = VerifyPlan(&ir.Plan{Meta: meta}, "h1", snap)
	require.ErrorAs(t, err, &stale)
	assert.Contains(t, err.Error(), "state serial is 4 but the plan was computed at 3")
}
