// Package null implements a provider with no real infrastructure behind it.
// A null_resource records its triggers and nothing else, which makes it
// useful for wiring declarations together and for exercising the engine.
package null

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/caisson-io/caisson/internal/provider"
)

type Provider struct{}

func New() provider.Provider {
	return &Provider{}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

// Schema marks triggers immutable: changing any trigger value replaces the
// resource, which is the whole point of declaring one.
func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	if resourceType != "null_resource" {
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}
	return &provider.ResourceSchema{
		Immutable: []string{"triggers"},
		Computed:  []string{"id"},
	}, nil
}

func (p *Provider) Create(ctx context.Context, resourceType string, attrs map[string]any) (string, map[string]any, error) {
	if resourceType != "null_resource" {
		return "", nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}
	id := "null-" + uuid.NewString()
	outputs := map[string]any{"id": id}
	if triggers, ok := attrs["triggers"]; ok {
		outputs["triggers"] = triggers
	}
	return id, outputs, nil
}

// Read always finds the resource: there is nothing real to drift.
func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	return prior, nil
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, attrs, prior map[string]any) (map[string]any, error) {
	outputs := map[string]any{"id": id}
	if triggers, ok := attrs["triggers"]; ok {
		outputs["triggers"] = triggers
	}
	return outputs, nil
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	return nil
}
