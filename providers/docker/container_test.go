package docker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_KnownTypes(t *testing.T) {
	p := New()

	for _, typ := range []string{"docker_network", "docker_volume", "docker_image", "docker_container"} {
		schema, err := p.Schema(typ)
		require.NoError(t, err, typ)
		assert.True(t, schema.IsComputed("id"), typ)
	}

	schema, err := p.Schema("docker_container")
	require.NoError(t, err)
	assert.True(t, schema.IsImmutable("image"))
	assert.False(t, schema.IsImmutable("restart"))
	assert.True(t, schema.IsComputed("ip_address"))

	_, err = p.Schema("docker_swarm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource type")
}

func TestEnvList(t *testing.T) {
	env := map[string]string{
		"ZOO":  "last",
		"PATH": "/usr/bin",
		"APP":  "web",
	}

	assert.Equal(t, []string{"APP=web", "PATH=/usr/bin", "ZOO=last"}, envList(env))
	assert.Empty(t, envList(nil))
}

func TestResolveBinds(t *testing.T) {
	abs, err := filepath.Abs("./data")
	require.NoError(t, err)

	binds := resolveBinds([]string{
		"./data:/var/lib/data",
		"/host/logs:/var/log",
		"named-volume:/cache",
	})

	assert.Equal(t, []string{
		abs + ":/var/lib/data",
		"/host/logs:/var/log",
		"named-volume:/cache",
	}, binds)
}

func TestHealthConfig(t *testing.T) {
	hc := healthConfig(map[string]any{
		"test":         []any{"CMD", "curl", "-f", "http://localhost/"},
		"interval":     "10s",
		"timeout":      "3s",
		"start_period": "1m",
		"retries":      float64(5),
	})

	assert.Equal(t, []string{"CMD", "curl", "-f", "http://localhost/"}, hc.Test)
	assert.Equal(t, 10*time.Second, hc.Interval)
	assert.Equal(t, 3*time.Second, hc.Timeout)
	assert.Equal(t, time.Minute, hc.StartPeriod)
	assert.Equal(t, 5, hc.Retries)

	// An empty test list disables the check rather than inheriting the
	// image's default.
	assert.Equal(t, []string{"NONE"}, healthConfig(map[string]any{}).Test)
}

func TestContainerIP(t *testing.T) {
	assert.Empty(t, containerIP(types.ContainerJSON{}))

	bridged := types.ContainerJSON{
		NetworkSettings: &types.NetworkSettings{
			DefaultNetworkSettings: types.DefaultNetworkSettings{IPAddress: "172.17.0.2"},
		},
	}
	assert.Equal(t, "172.17.0.2", containerIP(bridged))

	// Containers on user-defined networks have no top-level address; the
	// first network with an address wins, in name order.
	custom := types.ContainerJSON{
		NetworkSettings: &types.NetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				"frontend": {IPAddress: "10.0.1.7"},
				"backend":  {},
			},
		},
	}
	assert.Equal(t, "10.0.1.7", containerIP(custom))
}
