package decl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestScope_ResolvesReferences(t *testing.T) {
	dir := writeConfig(t, map[string]string{"main.hcl": `
resource "fake_app" "web" {
  db_id = fake_db.main.id
  name  = "frontend"
}
`})
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	app := cfg.Resource("fake_app.web")
	require.NotNil(t, app)

	scope := NewScope()
	scope.SetOutputs("fake_db.main", map[string]any{"id": "db-123"})

	vals, err := scope.EvaluateResource(app)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("db-123"), vals["db_id"])
	assert.Equal(t, cty.StringVal("frontend"), vals["name"])
}

func TestScope_UnknownUntilApplied(t *testing.T) {
	dir := writeConfig(t, map[string]string{"main.hcl": `
resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`})
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	app := cfg.Resource("fake_app.web")

	scope := NewScope()
	scope.SetUnknown("fake_db.main")

	vals, err := scope.EvaluateResource(app)
	require.NoError(t, err)
	assert.False(t, vals["db_id"].IsWhollyKnown())
}

func TestScope_MissingResourceErrors(t *testing.T) {
	dir := writeConfig(t, map[string]string{"main.hcl": `
resource "fake_app" "web" {
  db_id = fake_db.main.id
}
`})
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	app := cfg.Resource("fake_app.web")

	vals, err := NewScope().EvaluateResource(app)
	require.Error(t, err)
	assert.Nil(t, vals)
	assert.Contains(t, err.Error(), "fake_app.web.db_id")
}

func TestScope_StringInterpolation(t *testing.T) {
	dir := writeConfig(t, map[string]string{"main.hcl": `
resource "fake_app" "web" {
  endpoint = "https://${fake_db.main.address}:5432"
}
`})
	cfg, _, err := Load(dir)
	require.NoError(t, err)
	app := cfg.Resource("fake_app.web")

	scope := NewScope()
	scope.SetOutputs("fake_db.main", map[string]any{"address": "db.internal"})

	vals, err := scope.EvaluateResource(app)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("https://db.internal:5432"), vals["endpoint"])
}

func TestConvert_RoundTrip(t *testing.T) {
	// Snapshot inputs travel Go -> cty -> Go between plan cycles; the trip
	// must not change what a value compares as.
	values := map[string]any{
		"string": "hello",
		"bool":   true,
		"number": float64(42),
		"list":   []any{"a", "b"},
		"object": map[string]any{"k": "v"},
	}

	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			got := FromCty(ToCty(v))
			assert.Equal(t, v, got)
		})
	}

	assert.Nil(t, FromCty(ToCty(nil)))
}

func TestConvert_UnknownHasNoGoValue(t *testing.T) {
	assert.Nil(t, FromCty(cty.DynamicVal))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"c": 1, "a": 2, "b": 3}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[string]string{}))
}
