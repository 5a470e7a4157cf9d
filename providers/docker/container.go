package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/caisson-io/caisson/internal/provider"
)

const stopTimeoutSeconds = 10

func (p *Provider) createContainer(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := provider.String(attrs, "name")
	imageName := provider.String(attrs, "image")

	if err := p.ensureImage(ctx, imageName); err != nil {
		return "", nil, err
	}

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range provider.StringMap(attrs, "ports") {
		cp := nat.Port(containerPort + "/tcp")
		portBindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        resolveBinds(provider.StringSlice(attrs, "volumes")),
	}
	if networks := provider.StringSlice(attrs, "networks"); len(networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(networks[0])
	}
	if restart := provider.String(attrs, "restart"); restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(restart),
		}
	}
	if logging, ok := attrs["logging"].(map[string]any); ok {
		hostConfig.LogConfig = container.LogConfig{
			Type:   provider.String(logging, "driver"),
			Config: provider.StringMap(logging, "options"),
		}
	}

	config := &container.Config{
		Image:      imageName,
		Cmd:        provider.StringSlice(attrs, "command"),
		Env:        envList(provider.StringMap(attrs, "env")),
		Labels:     provider.StringMap(attrs, "labels"),
		WorkingDir: provider.String(attrs, "working_dir"),
		User:       provider.String(attrs, "user"),
	}
	if hc, ok := attrs["healthcheck"].(map[string]any); ok {
		config.Healthcheck = healthConfig(hc)
	}

	resp, err := p.client.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, name)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create container: %w", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", nil, fmt.Errorf("failed to start container: %w", err)
	}

	outputs := map[string]any{
		"id":    resp.ID,
		"name":  name,
		"image": imageName,
	}
	if inspect, err := p.client.ContainerInspect(ctx, resp.ID); err == nil {
		if ip := containerIP(inspect); ip != "" {
			outputs["ip_address"] = ip
		}
	}
	return resp.ID, outputs, nil
}

func (p *Provider) readContainer(ctx context.Context, id string, prior map[string]any) (map[string]any, error) {
	inspect, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	outputs := map[string]any{
		"id":   inspect.ID,
		"name": strings.TrimPrefix(inspect.Name, "/"),
	}
	if img, ok := prior["image"]; ok {
		outputs["image"] = img
	}
	if ip := containerIP(inspect); ip != "" {
		outputs["ip_address"] = ip
	}
	return outputs, nil
}

// updateContainer adjusts the restart policy, the only container attribute
// the daemon changes in place.
func (p *Provider) updateContainer(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	update := container.UpdateConfig{}
	if restart := provider.String(attrs, "restart"); restart != "" {
		update.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(restart),
		}
	}
	if _, err := p.client.ContainerUpdate(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to update container: %w", err)
	}

	outputs := map[string]any{"id": id}
	for _, k := range []string{"name", "image", "ip_address"} {
		if v, ok := prior[k]; ok {
			outputs[k] = v
		}
	}
	return outputs, nil
}

func (p *Provider) deleteContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// ensureImage pulls the image unless it is already present, so containers
// can run images built locally by a docker_image resource.
func (p *Provider) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := p.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}
	reader, err := p.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()
	return nil
}

// resolveBinds turns relative host paths into absolute ones, which the
// daemon requires.
func resolveBinds(volumes []string) []string {
	var binds []string
	for _, v := range volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) == 2 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				binds = append(binds, abs+":"+parts[1])
				continue
			}
		}
		binds = append(binds, v)
	}
	return binds
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(env))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

func healthConfig(hc map[string]any) *container.HealthConfig {
	test := provider.StringSlice(hc, "test")
	if len(test) == 0 {
		test = []string{"NONE"}
	}
	interval, _ := time.ParseDuration(provider.String(hc, "interval"))
	timeout, _ := time.ParseDuration(provider.String(hc, "timeout"))
	startPeriod, _ := time.ParseDuration(provider.String(hc, "start_period"))

	return &container.HealthConfig{
		Test:        test,
		Interval:    interval,
		Timeout:     timeout,
		StartPeriod: startPeriod,
		Retries:     provider.Int(hc, "retries"),
	}
}

func containerIP(inspect types.ContainerJSON) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	if ip := inspect.NetworkSettings.IPAddress; ip != "" {
		return ip
	}
	names := make([]string, 0, len(inspect.NetworkSettings.Networks))
	for name := range inspect.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep := inspect.NetworkSettings.Networks[name]; ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}
