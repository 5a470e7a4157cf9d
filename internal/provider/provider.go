// Package provider defines the contract between the engine and the
// resource providers. The engine is agnostic to what the resources are;
// it drives this CRUD interface and records whatever comes back.
package provider

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when the resource no longer exists on
// the provider side. Refresh removes the snapshot entry in response.
var ErrNotFound = errors.New("resource not found")

// Provider is implemented once per provider (aws, docker, null). Attribute
// maps hold plain JSON-compatible Go values; references have already been
// resolved to concrete values by the time a call is made.
type Provider interface {
	// Configure applies the settings from the declaration's provider block.
	// It is called once, before any resource operation.
	Configure(ctx context.Context, settings map[string]string) error

	// Schema describes the engine-relevant attribute classes of a resource
	// type: which attributes force replacement, which only exist after
	// apply, and which must be masked in rendered plans.
	Schema(resourceType string) (*ResourceSchema, error)

	// Create provisions a new resource and returns its provider-assigned
	// id plus the output attributes to record in the snapshot.
	Create(ctx context.Context, resourceType string, attrs map[string]any) (id string, outputs map[string]any, err error)

	// Read fetches the current outputs of an existing resource. It returns
	// ErrNotFound when the resource is gone.
	Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error)

	// Update changes a resource in place and returns the new outputs.
	Update(ctx context.Context, resourceType, id string, attrs, prior map[string]any) (map[string]any, error)

	// Delete removes the resource. Deleting a resource that is already
	// gone is not an error.
	Delete(ctx context.Context, resourceType, id string, prior map[string]any) error
}

// ResourceSchema classifies the attributes of one resource type.
type ResourceSchema struct {
	// Immutable attributes cannot be changed in place; a diff on one of
	// them forces replacement.
	Immutable []string
	// Computed attributes are assigned by the provider and only known
	// after apply.
	Computed []string
	// Sensitive attributes are masked in plan rendering.
	Sensitive []string
}

func (s *ResourceSchema) IsImmutable(attr string) bool {
	return containsAttr(s.Immutable, attr)
}

func (s *ResourceSchema) IsComputed(attr string) bool {
	return containsAttr(s.Computed, attr)
}

func (s *ResourceSchema) IsSensitive(attr string) bool {
	return containsAttr(s.Sensitive, attr)
}

func containsAttr(list []string, attr string) bool {
	for _, a := range list {
		if a == attr {
			return true
		}
	}
	return false
}
