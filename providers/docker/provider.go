// Package docker provisions networks, volumes, images, and containers
// against the local Docker daemon.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"

	"github.com/caisson-io/caisson/internal/provider"
)

type Provider struct {
	client *client.Client
}

func New() provider.Provider {
	return &Provider{}
}

// Configure connects to the daemon. The usual environment variables
// (DOCKER_HOST and friends) select the endpoint; a host setting in the
// provider block overrides them.
func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host := settings["host"]; host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	p.client = cli
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "docker_network":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "driver", "internal", "labels"},
			Computed:  []string{"id"},
		}, nil
	case "docker_volume":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "driver", "labels"},
			Computed:  []string{"id", "mountpoint"},
		}, nil
	case "docker_image":
		return &provider.ResourceSchema{
			Immutable: []string{"name", "build_context", "dockerfile"},
			Computed:  []string{"id"},
		}, nil
	case "docker_container":
		// Almost nothing about a running container can change in place;
		// the daemon only lets us adjust the restart policy.
		return &provider.ResourceSchema{
			Immutable: []string{
				"name", "image", "command", "env", "ports", "networks",
				"volumes", "labels", "working_dir", "user", "healthcheck", "logging",
			},
			Computed: []string{"id", "ip_address"},
		}, nil
	}
	return nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Create(ctx context.Context, resourceType string, attrs map[string]any) (string, map[string]any, error) {
	switch resourceType {
	case "docker_network":
		return p.createNetwork(ctx, attrs)
	case "docker_volume":
		return p.createVolume(ctx, attrs)
	case "docker_image":
		return p.createImage(ctx, attrs)
	case "docker_container":
		return p.createContainer(ctx, attrs)
	}
	return "", nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	switch resourceType {
	case "docker_network":
		return p.readNetwork(ctx, id, prior)
	case "docker_volume":
		return p.readVolume(ctx, id, prior)
	case "docker_image":
		return p.readImage(ctx, id, prior)
	case "docker_container":
		return p.readContainer(ctx, id, prior)
	}
	return nil, fmt.Errorf("unknown resource type: %s", resourceType)
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, attrs, prior map[string]any) (map[string]any, error) {
	switch resourceType {
	case "docker_container":
		return p.updateContainer(ctx, id, attrs, prior)
	}
	return nil, fmt.Errorf("%s does not support in-place updates", resourceType)
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	switch resourceType {
	case "docker_network":
		return p.deleteNetwork(ctx, id)
	case "docker_volume":
		return p.deleteVolume(ctx, id)
	case "docker_image":
		return p.deleteImage(ctx, id)
	case "docker_container":
		return p.deleteContainer(ctx, id)
	}
	return fmt.Errorf("unknown resource type: %s", resourceType)
}
