package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/akyoto/cache"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/dockwatch/internal/tools"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

const (
	// MinimumAPIVersion is the oldest daemon API the adapter is tested against
	MinimumAPIVersion = "1.41"
	bridgeNetwork     = "bridge"
	tagsTTL           = 5 * time.Minute
)

var minimumAPIVersion = semver.MustParse(MinimumAPIVersion)

// DockerAdapter implements Daemon from ports using the Docker engine API
type DockerAdapter struct {
	client *client.Client
	// image id -> []string repo tags, to match containers whose image was re-tagged
	tags *cache.Cache
}

var _ ports.Daemon = (*DockerAdapter)(nil)

// NewDockerAdapter initializes the DockerAdapter struct. An empty host uses
// DOCKER_HOST and the other client environment variables.
func NewDockerAdapter(host string) (*DockerAdapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerAdapter{
		client: c,
		tags:   cache.New(time.Minute),
	}, nil
}

func (d *DockerAdapter) Close() error {
	d.tags.Close()
	return d.client.Close()
}

func (d *DockerAdapter) Ping(ctx context.Context) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.Ping")
	defer span.End()
	ping, err := d.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping daemon: %w", err)
	}
	return checkAPIVersion(ping.APIVersion)
}

func checkAPIVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("daemon API version %q: %w", version, err)
	}
	if v.LessThan(minimumAPIVersion) {
		return fmt.Errorf("daemon API version %s is older than %s", version, MinimumAPIVersion)
	}
	return nil
}

func (d *DockerAdapter) PullImage(ctx context.Context, reference string, progress func(domain.PullProgress)) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.PullImage")
	defer span.End()
	stream, err := d.client.ImagePull(ctx, reference, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", reference, err)
	}
	defer stream.Close()
	return decodePullProgress(stream, progress)
}

// decodePullProgress reads the daemon's JSON progress stream until it ends
// or reports an error.
func decodePullProgress(r io.Reader, progress func(domain.PullProgress)) error {
	decoder := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
		p := domain.PullProgress{ID: msg.ID, Status: msg.Status}
		if msg.Progress != nil {
			p.Progress = msg.Progress.String()
		}
		progress(p)
	}
}

func (d *DockerAdapter) InspectImage(ctx context.Context, reference string) (string, error) {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.InspectImage")
	defer span.End()
	resp, err := d.client.ImageInspect(ctx, reference)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", domain.ErrImageNotFound
		}
		return "", fmt.Errorf("inspect image %s: %w", reference, err)
	}
	d.tags.Set(resp.ID, resp.RepoTags, tagsTTL)
	return resp.ID, nil
}

func (d *DockerAdapter) RemoveImage(ctx context.Context, reference string) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.RemoveImage")
	defer span.End()
	_, err := d.client.ImageRemove(ctx, reference, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return domain.ErrImageNotFound
		}
		return fmt.Errorf("remove image %s: %w", reference, err)
	}
	return nil
}

func (d *DockerAdapter) FindContainer(ctx context.Context, reference string) (domain.Container, error) {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.FindContainer")
	defer span.End()
	summaries, err := d.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return domain.Container{}, fmt.Errorf("list containers: %w", err)
	}
	for _, summary := range summaries {
		if !d.createdFrom(ctx, summary, reference) {
			continue
		}
		resp, err := d.client.ContainerInspect(ctx, summary.ID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return domain.Container{}, fmt.Errorf("inspect container %s: %w", summary.ID, err)
		}
		return toContainer(resp), nil
	}
	return domain.Container{}, domain.ErrContainerNotFound
}

// createdFrom reports whether the container was created from reference. The
// summary names the image by id once its tag moved on, so the tags of that id
// are looked up too.
func (d *DockerAdapter) createdFrom(ctx context.Context, summary container.Summary, reference string) bool {
	if tools.SameReference(summary.Image, reference) {
		return true
	}
	if summary.ImageID == "" {
		return false
	}
	return slices.ContainsFunc(d.repoTags(ctx, summary.ImageID), func(tag string) bool {
		return tools.SameReference(tag, reference)
	})
}

func (d *DockerAdapter) repoTags(ctx context.Context, imageID string) []string {
	if tags, ok := d.tags.Get(imageID); ok {
		return tags.([]string)
	}
	resp, err := d.client.ImageInspect(ctx, imageID)
	if err != nil {
		logger.L().Ctx(ctx).Debug("cannot inspect image of container", helpers.String("imageID", imageID), helpers.Error(err))
		return nil
	}
	d.tags.Set(imageID, resp.RepoTags, tagsTTL)
	return resp.RepoTags
}

func toContainer(resp container.InspectResponse) domain.Container {
	if resp.ContainerJSONBase == nil {
		return domain.Container{}
	}
	c := domain.Container{ID: resp.ID}
	if resp.State != nil {
		c.State = string(resp.State.Status)
		c.Running = resp.State.Running
	}
	if c.Running && resp.NetworkSettings != nil {
		c.Ports = hostPorts(resp.NetworkSettings.Ports)
		c.IP = containerIP(resp.NetworkSettings.Networks)
	}
	return c
}

// hostPorts lists the host side of every port binding as host-ip:host-port.
func hostPorts(portMap nat.PortMap) []string {
	var bound []string
	for _, port := range slices.Sorted(maps.Keys(portMap)) {
		for _, binding := range portMap[port] {
			if binding.HostPort == "" {
				continue
			}
			hostIP := binding.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			bound = append(bound, net.JoinHostPort(hostIP, binding.HostPort))
		}
	}
	return bound
}

// containerIP prefers the default bridge address, other networks are used in name order.
func containerIP(networks map[string]*network.EndpointSettings) string {
	if settings, ok := networks[bridgeNetwork]; ok && settings != nil && settings.IPAddress != "" {
		return settings.IPAddress
	}
	for _, name := range slices.Sorted(maps.Keys(networks)) {
		if settings := networks[name]; settings != nil && settings.IPAddress != "" {
			return settings.IPAddress
		}
	}
	return ""
}

func (d *DockerAdapter) CreateContainer(ctx context.Context, spec domain.ContainerSpec) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.CreateContainer")
	defer span.End()
	config, hostConfig, err := containerConfig(spec)
	if err != nil {
		return err
	}
	resp, err := d.client.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return fmt.Errorf("create container from %s: %w", spec.Reference, err)
	}
	for _, warning := range resp.Warnings {
		logger.L().Ctx(ctx).Warning("container created with warning", helpers.String("path", spec.Reference), helpers.String("warning", warning))
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", resp.ID, err)
	}
	return nil
}

// containerConfig renders spec as a detached container that always restarts
// and publishes every exposed port.
func containerConfig(spec domain.ContainerSpec) (*container.Config, *container.HostConfig, error) {
	exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return nil, nil, fmt.Errorf("ports of %s: %w", spec.Reference, err)
	}
	config := &container.Config{
		Image:        spec.Reference,
		Hostname:     spec.Hostname,
		Env:          spec.Env,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		Binds:           spec.Volumes,
		PortBindings:    bindings,
		PublishAllPorts: true,
		RestartPolicy:   container.RestartPolicy{Name: container.RestartPolicyAlways},
		ExtraHosts:      extraHosts(spec.ExtraHosts),
	}
	if spec.NetworkMode != "" {
		hostConfig.NetworkMode = container.NetworkMode(spec.NetworkMode)
	}
	return config, hostConfig, nil
}

func extraHosts(hosts map[string]string) []string {
	if len(hosts) == 0 {
		return nil
	}
	entries := make([]string, 0, len(hosts))
	for _, hostname := range slices.Sorted(maps.Keys(hosts)) {
		entries = append(entries, hostname+":"+hosts[hostname])
	}
	return entries
}

func (d *DockerAdapter) StartContainer(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.StartContainer")
	defer span.End()
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}
	return nil
}

func (d *DockerAdapter) StopContainer(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.StopContainer")
	defer span.End()
	if err := d.client.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

func (d *DockerAdapter) RemoveContainer(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("").Start(ctx, "DockerAdapter.RemoveContainer")
	defer span.End()
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return domain.ErrContainerNotFound
		}
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}
