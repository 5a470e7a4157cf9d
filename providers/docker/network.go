package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/caisson-io/caisson/internal/provider"
)

func (p *Provider) createNetwork(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := provider.String(attrs, "name")
	driver := provider.String(attrs, "driver")

	resp, err := p.client.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:   driver,
		Internal: provider.Bool(attrs, "internal"),
		Labels:   provider.StringMap(attrs, "labels"),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create network: %w", err)
	}

	return resp.ID, map[string]any{
		"id":     resp.ID,
		"name":   name,
		"driver": driver,
	}, nil
}

func (p *Provider) readNetwork(ctx context.Context, id string, prior map[string]any) (map[string]any, error) {
	net, err := p.client.NetworkInspect(ctx, id, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect network: %w", err)
	}
	return map[string]any{
		"id":     net.ID,
		"name":   net.Name,
		"driver": net.Driver,
	}, nil
}

func (p *Provider) deleteNetwork(ctx context.Context, id string) error {
	if err := p.client.NetworkRemove(ctx, id); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove network: %w", err)
	}
	return nil
}
