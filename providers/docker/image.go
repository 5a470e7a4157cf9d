package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"

	"github.com/caisson-io/caisson/internal/provider"
)

// createImage builds the image when a build context is declared, otherwise
// pulls it from the registry.
func (p *Provider) createImage(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := provider.String(attrs, "name")

	if buildContext := provider.String(attrs, "build_context"); buildContext != "" {
		tar, err := archive.TarWithOptions(buildContext, &archive.TarOptions{})
		if err != nil {
			return "", nil, fmt.Errorf("failed to create build context tar: %w", err)
		}

		resp, err := p.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Tags:       []string{name},
			Dockerfile: provider.String(attrs, "dockerfile"),
			Remove:     true,
		})
		if err != nil {
			return "", nil, fmt.Errorf("failed to build image: %w", err)
		}
		// The daemon streams build progress; drain it so the build runs to
		// completion.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		reader, err := p.client.ImagePull(ctx, name, image.PullOptions{})
		if err != nil {
			return "", nil, fmt.Errorf("failed to pull image %s: %w", name, err)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, name)
	if err != nil {
		return "", nil, fmt.Errorf("failed to inspect image %s: %w", name, err)
	}

	return inspect.ID, map[string]any{
		"id":   inspect.ID,
		"name": name,
	}, nil
}

func (p *Provider) readImage(ctx context.Context, id string, prior map[string]any) (map[string]any, error) {
	inspect, _, err := p.client.ImageInspectWithRaw(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}
	outputs := map[string]any{"id": inspect.ID}
	if name, ok := prior["name"]; ok {
		outputs["name"] = name
	}
	return outputs, nil
}

func (p *Provider) deleteImage(ctx context.Context, id string) error {
	if _, err := p.client.ImageRemove(ctx, id, image.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}
