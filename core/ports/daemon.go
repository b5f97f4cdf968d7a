package ports

import (
	"context"

	"github.com/kubescape/dockwatch/core/domain"
)

// Daemon is the port implemented by adapters to be used in ReconcilerService to
// talk to the container daemon. Every call blocks on daemon I/O.
type Daemon interface {
	// CreateContainer creates a detached container from spec and starts it.
	CreateContainer(ctx context.Context, spec domain.ContainerSpec) error
	// Events subscribes to image and container events, in the order the daemon
	// emits them. The error channel receives one value when the feed ends.
	Events(ctx context.Context) (<-chan domain.DaemonEvent, <-chan error)
	// FindContainer returns the container created from reference, running or
	// not, or domain.ErrContainerNotFound.
	FindContainer(ctx context.Context, reference string) (domain.Container, error)
	// InspectImage returns the daemon id of reference, or domain.ErrImageNotFound.
	InspectImage(ctx context.Context, reference string) (string, error)
	Ping(ctx context.Context) error
	PullImage(ctx context.Context, reference string, progress func(domain.PullProgress)) error
	RemoveContainer(ctx context.Context, id string) error
	RemoveImage(ctx context.Context, reference string) error
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
}
