package v1

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/kubescape/dockwatch/core/domain"
)

// Events subscribes to image and container events. Events the reconciler
// does not act on are dropped here, so consumers only see domain events.
func (d *DockerAdapter) Events(ctx context.Context) (<-chan domain.DaemonEvent, <-chan error) {
	messages, errs := d.client.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ImageEventType)),
			filters.Arg("type", string(events.ContainerEventType)),
		),
	})
	out := make(chan domain.DaemonEvent)
	outErrs := make(chan error, 1)
	go func() {
		for {
			select {
			case msg := <-messages:
				event, ok := decodeEvent(msg)
				if !ok {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					outErrs <- ctx.Err()
					return
				}
			case err := <-errs:
				if err == nil {
					err = domain.ErrFeedClosed
				}
				outErrs <- err
				return
			}
		}
	}()
	return out, outErrs
}

func decodeEvent(msg events.Message) (domain.DaemonEvent, bool) {
	switch msg.Type {
	case events.ImageEventType:
		switch msg.Action {
		case events.ActionPull:
			return domain.ImagePulled{Reference: msg.Actor.ID}, true
		case events.ActionDelete:
			return domain.ImageDeleted{ImageID: msg.Actor.ID}, true
		}
	case events.ContainerEventType:
		origin := msg.Actor.Attributes["image"]
		switch msg.Action {
		case events.ActionStart:
			return domain.ContainerStarted{ContainerID: msg.Actor.ID, Origin: origin}, true
		case events.ActionDie:
			return domain.ContainerDied{ContainerID: msg.Actor.ID, Origin: origin}, true
		case events.ActionDestroy:
			return domain.ContainerDestroyed{ContainerID: msg.Actor.ID, Origin: origin}, true
		}
	}
	return nil, false
}
