package adapters

import (
	"context"
	"errors"

	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
)

var ErrDaemonUnreachable = errors.New("cannot connect to the container daemon")

// BrokenDaemon fails every call as a daemon that is not running would.
type BrokenDaemon struct{}

var _ ports.Daemon = (*BrokenDaemon)(nil)

func (b BrokenDaemon) CreateContainer(context.Context, domain.ContainerSpec) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) Events(context.Context) (<-chan domain.DaemonEvent, <-chan error) {
	errs := make(chan error, 1)
	errs <- ErrDaemonUnreachable
	return make(chan domain.DaemonEvent), errs
}

func (b BrokenDaemon) FindContainer(context.Context, string) (domain.Container, error) {
	return domain.Container{}, ErrDaemonUnreachable
}

func (b BrokenDaemon) InspectImage(context.Context, string) (string, error) {
	return "", ErrDaemonUnreachable
}

func (b BrokenDaemon) Ping(context.Context) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) PullImage(context.Context, string, func(domain.PullProgress)) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) RemoveContainer(context.Context, string) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) RemoveImage(context.Context, string) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) StartContainer(context.Context, string) error {
	return ErrDaemonUnreachable
}

func (b BrokenDaemon) StopContainer(context.Context, string) error {
	return ErrDaemonUnreachable
}
