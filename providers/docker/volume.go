package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/caisson-io/caisson/internal/provider"
)

func (p *Provider) createVolume(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   provider.String(attrs, "name"),
		Driver: provider.String(attrs, "driver"),
		Labels: provider.StringMap(attrs, "labels"),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create volume: %w", err)
	}

	// Volumes have no daemon-assigned ID; the name is the identifier.
	return vol.Name, map[string]any{
		"id":         vol.Name,
		"name":       vol.Name,
		"driver":     vol.Driver,
		"mountpoint": vol.Mountpoint,
	}, nil
}

func (p *Provider) readVolume(ctx context.Context, id string, prior map[string]any) (map[string]any, error) {
	vol, err := p.client.VolumeInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect volume: %w", err)
	}
	return map[string]any{
		"id":         vol.Name,
		"name":       vol.Name,
		"driver":     vol.Driver,
		"mountpoint": vol.Mountpoint,
	}, nil
}

func (p *Provider) deleteVolume(ctx context.Context, id string) error {
	if err := p.client.VolumeRemove(ctx, id, true); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove volume: %w", err)
	}
	return nil
}
