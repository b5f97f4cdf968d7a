package v1

import (
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/google/go-cmp/cmp"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name   string
		msg    events.Message
		want   domain.DaemonEvent
		wantOk bool
	}{
		{
			name:   "image pull",
			msg:    events.Message{Type: events.ImageEventType, Action: events.ActionPull, Actor: events.Actor{ID: "nginx:latest"}},
			want:   domain.ImagePulled{Reference: "nginx:latest"},
			wantOk: true,
		},
		{
			name:   "image delete",
			msg:    events.Message{Type: events.ImageEventType, Action: events.ActionDelete, Actor: events.Actor{ID: "sha256:abc"}},
			want:   domain.ImageDeleted{ImageID: "sha256:abc"},
			wantOk: true,
		},
		{
			name: "image untag",
			msg:  events.Message{Type: events.ImageEventType, Action: events.ActionUnTag, Actor: events.Actor{ID: "sha256:abc"}},
		},
		{
			name: "container start",
			msg: events.Message{Type: events.ContainerEventType, Action: events.ActionStart,
				Actor: events.Actor{ID: "c1", Attributes: map[string]string{"image": "nginx"}}},
			want:   domain.ContainerStarted{ContainerID: "c1", Origin: "nginx"},
			wantOk: true,
		},
		{
			name: "container die",
			msg: events.Message{Type: events.ContainerEventType, Action: events.ActionDie,
				Actor: events.Actor{ID: "c1", Attributes: map[string]string{"image": "nginx"}}},
			want:   domain.ContainerDied{ContainerID: "c1", Origin: "nginx"},
			wantOk: true,
		},
		{
			name: "container destroy",
			msg: events.Message{Type: events.ContainerEventType, Action: events.ActionDestroy,
				Actor: events.Actor{ID: "c1", Attributes: map[string]string{"image": "nginx"}}},
			want:   domain.ContainerDestroyed{ContainerID: "c1", Origin: "nginx"},
			wantOk: true,
		},
		{
			name: "container create",
			msg:  events.Message{Type: events.ContainerEventType, Action: events.ActionCreate, Actor: events.Actor{ID: "c1"}},
		},
		{
			name: "network event",
			msg:  events.Message{Type: events.NetworkEventType, Action: events.ActionConnect},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeEvent(tt.msg)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainerConfig(t *testing.T) {
	spec := domain.ContainerSpec{
		Reference:   "nginx:latest",
		Hostname:    "web",
		Ports:       []string{"8080:80", "443/tcp"},
		Volumes:     []string{"/srv:/usr/share/nginx/html:ro"},
		Env:         []string{"A=1"},
		NetworkMode: "host",
		ExtraHosts:  map[string]string{"db": "172.17.0.3", "cache": "10.0.0.5"},
	}
	config, hostConfig, err := containerConfig(spec)
	require.NoError(t, err)

	assert.Equal(t, "nginx:latest", config.Image)
	assert.Equal(t, "web", config.Hostname)
	assert.Equal(t, []string{"A=1"}, config.Env)
	assert.Contains(t, config.ExposedPorts, nat.Port("80/tcp"))
	assert.Contains(t, config.ExposedPorts, nat.Port("443/tcp"))

	assert.Equal(t, []string{"/srv:/usr/share/nginx/html:ro"}, hostConfig.Binds)
	assert.Equal(t, []nat.PortBinding{{HostPort: "8080"}}, hostConfig.PortBindings[nat.Port("80/tcp")])
	assert.True(t, hostConfig.PublishAllPorts)
	assert.Equal(t, container.RestartPolicyAlways, hostConfig.RestartPolicy.Name)
	assert.Equal(t, container.NetworkMode("host"), hostConfig.NetworkMode)
	assert.Equal(t, []string{"cache:10.0.0.5", "db:172.17.0.3"}, hostConfig.ExtraHosts)
}

func TestContainerConfig_InvalidPort(t *testing.T) {
	_, _, err := containerConfig(domain.ContainerSpec{Reference: "nginx", Ports: []string{"eighty"}})
	assert.Error(t, err)
}

func TestToContainer(t *testing.T) {
	resp := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    "c1",
			State: &container.State{Status: container.StateRunning, Running: true},
		},
		NetworkSettings: &container.NetworkSettings{
			NetworkSettingsBase: container.NetworkSettingsBase{
				Ports: nat.PortMap{
					"80/tcp":  {{HostIP: "0.0.0.0", HostPort: "8080"}, {HostIP: "::", HostPort: "8080"}},
					"443/tcp": {{HostIP: "127.0.0.1", HostPort: "8443"}},
					"53/udp":  nil,
				},
			},
			Networks: map[string]*network.EndpointSettings{
				"app":    {IPAddress: "172.18.0.2"},
				"bridge": {IPAddress: "172.17.0.2"},
			},
		},
	}
	want := domain.Container{
		ID:      "c1",
		State:   "running",
		Running: true,
		Ports:   []string{"127.0.0.1:8443", "0.0.0.0:8080", "[::]:8080"},
		IP:      "172.17.0.2",
	}
	if diff := cmp.Diff(want, toContainer(resp)); diff != "" {
		t.Errorf("toContainer() mismatch (-want +got):\n%s", diff)
	}
}

func TestToContainer_Stopped(t *testing.T) {
	resp := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    "c1",
			State: &container.State{Status: container.StateExited},
		},
		NetworkSettings: &container.NetworkSettings{
			Networks: map[string]*network.EndpointSettings{"bridge": {IPAddress: "172.17.0.2"}},
		},
	}
	got := toContainer(resp)
	assert.True(t, got.Exited())
	assert.Empty(t, got.IP)
	assert.Empty(t, got.Ports)
	assert.Equal(t, domain.Container{}, toContainer(container.InspectResponse{}))
}

func TestContainerIP(t *testing.T) {
	assert.Equal(t, "", containerIP(nil))
	assert.Equal(t, "10.0.0.2", containerIP(map[string]*network.EndpointSettings{
		"bridge": {},
		"zeta":   {IPAddress: "10.0.0.3"},
		"alpha":  {IPAddress: "10.0.0.2"},
	}))
}

func TestDecodePullProgress(t *testing.T) {
	stream := strings.Join([]string{
		`{"status":"Pulling from library/nginx","id":"latest"}`,
		`{"status":"Downloading","progressDetail":{"current":50,"total":100},"id":"a1b2"}`,
		`{"status":"Pull complete","progressDetail":{},"id":"a1b2"}`,
	}, "\n")
	var got []domain.PullProgress
	require.NoError(t, decodePullProgress(strings.NewReader(stream), func(p domain.PullProgress) {
		got = append(got, p)
	}))
	require.Len(t, got, 3)
	assert.Equal(t, "latest", got[0].ID)
	assert.Equal(t, "Downloading", got[1].Status)
	assert.NotEmpty(t, got[1].Progress)
	assert.Empty(t, got[2].Progress)
}

func TestDecodePullProgress_Error(t *testing.T) {
	stream := `{"status":"Pulling from library/nope"}
{"errorDetail":{"message":"manifest unknown"},"error":"manifest unknown"}
{"status":"never read"}`
	calls := 0
	err := decodePullProgress(strings.NewReader(stream), func(domain.PullProgress) { calls++ })
	require.Error(t, err)
	assert.Equal(t, "manifest unknown", err.Error())
	assert.Equal(t, 1, calls)
}

func TestCheckAPIVersion(t *testing.T) {
	assert.NoError(t, checkAPIVersion("1.47"))
	assert.NoError(t, checkAPIVersion(MinimumAPIVersion))
	assert.Error(t, checkAPIVersion("1.40"))
	assert.Error(t, checkAPIVersion("latest"))
}

func TestExtraHosts(t *testing.T) {
	assert.Nil(t, extraHosts(nil))
	assert.Equal(t, []string{"a:1.1.1.1", "b:2.2.2.2"}, extraHosts(map[string]string{"b": "2.2.2.2", "a": "1.1.1.1"}))
}
