package services

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/internal/metrics"
	"github.com/kubescape/dockwatch/internal/tools"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

// startMonitor follows the daemon event feed for image in the background,
// unless a monitor for it is already running.
func (s *ReconcilerService) startMonitor(image domain.ManagedImage) {
	if !s.monitors.Add(image.ID) {
		return
	}
	s.wg.Add(1)
	metrics.MonitorsActive.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.MonitorsActive.Dec()
		defer s.monitors.Remove(image.ID)
		s.monitor(s.ctx, image)
	}()
}

// healthyFeedAge is how long a feed must stay up, without delivering any
// event, before its loss no longer counts as a failed reconnect attempt.
const healthyFeedAge = time.Second

// monitor translates daemon events about image into status changes until ctx
// is done. A dropped feed is re-subscribed with backoff. Attempts only reset
// once a feed proves healthy, so a daemon that accepts subscriptions and drops
// them straight away still exhausts them, and the image is then moved to
// ERROR since its status can no longer be trusted.
func (s *ReconcilerService) monitor(ctx context.Context, image domain.ManagedImage) {
	logger.L().Debug("monitor started", helpers.String("image", image.ID))
	reconnect := false
	for {
		r := retrier.New(retrier.ExponentialBackoff(s.reconnectAttempts, s.reconnectBackoff), nil)
		err := r.RunCtx(ctx, func(ctx context.Context) error {
			healthy, err := s.session(ctx, image, reconnect)
			reconnect = true
			if healthy {
				return nil
			}
			return err
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.L().Error("giving up on event feed", helpers.String("image", image.ID), helpers.Error(err))
			s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
			return
		}
	}
}

// session subscribes to the feed and follows it until it ends. On reconnect
// the daemon must answer first, and the authoritative check is re-run once
// subscribed so nothing that happened while disconnected is missed. It
// reports whether the feed was healthy before it ended.
func (s *ReconcilerService) session(ctx context.Context, image domain.ManagedImage, reconnect bool) (bool, error) {
	if reconnect {
		if err := s.daemon.Ping(ctx); err != nil {
			metrics.MonitorReconnectsTotal.WithLabelValues("failure").Inc()
			logger.L().Debug("daemon not reachable", helpers.String("image", image.ID), helpers.Error(err))
			return false, err
		}
	}
	events, errs := s.daemon.Events(ctx)
	if reconnect {
		metrics.MonitorReconnectsTotal.WithLabelValues("success").Inc()
		s.resync(ctx, image)
	}

	started := time.Now()
	delivered, err := s.follow(ctx, image, events, errs)
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	logger.L().Warning("event feed ended", helpers.String("image", image.ID), helpers.Error(err))
	return delivered || time.Since(started) >= healthyFeedAge, err
}

// follow evaluates events in the order the daemon emitted them and returns
// why the feed ended, and whether it delivered any event before.
func (s *ReconcilerService) follow(ctx context.Context, image domain.ManagedImage, events <-chan domain.DaemonEvent, errs <-chan error) (bool, error) {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err, ok := <-errs:
			if !ok || err == nil {
				return delivered, domain.ErrFeedClosed
			}
			return delivered, err
		case event, ok := <-events:
			if !ok {
				return delivered, domain.ErrFeedClosed
			}
			delivered = true
			s.handleEvent(ctx, image, event)
		}
	}
}

func (s *ReconcilerService) resync(ctx context.Context, image domain.ManagedImage) {
	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	if err := s.observe(ctx, image); err != nil {
		logger.L().Warning("check after reconnect failed", helpers.String("image", image.ID), helpers.Error(err))
	}
}

func (s *ReconcilerService) handleEvent(ctx context.Context, image domain.ManagedImage, event domain.DaemonEvent) {
	switch e := event.(type) {
	case domain.ImagePulled:
		if !tools.SameReference(e.Reference, image.Path) {
			return
		}
		s.count(image, "pull")
		daemonID, err := s.daemon.InspectImage(ctx, image.Path)
		if err != nil {
			logger.L().Error("inspect after pull failed", helpers.String("image", image.ID), helpers.Error(err))
			s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
			return
		}
		s.store.Dispatch(domain.SetDaemonID{Image: image.ID, DaemonID: daemonID})
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerPullCompleted)
	case domain.ImageDeleted:
		// read the id now, it may have changed since the monitor started
		state, ok := s.store.ImageState(image.ID)
		if !ok || state.DaemonID == "" || state.DaemonID != e.ImageID {
			return
		}
		s.count(image, "delete")
		s.apply(ctx, domain.SetStatus{Image: image.ID, ClearDaemonID: true}, domain.TriggerImageDeleted)
	case domain.ContainerStarted:
		if !tools.SameReference(e.Origin, image.Path) {
			return
		}
		s.count(image, "start")
		container, err := s.daemon.FindContainer(ctx, image.Path)
		switch {
		case errors.Is(err, domain.ErrContainerNotFound):
			logger.L().Debug("started container is gone", helpers.String("image", image.ID), helpers.String("container", e.ContainerID))
		case err != nil:
			logger.L().Error("inspect after start failed", helpers.String("image", image.ID), helpers.Error(err))
			s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		default:
			s.observeContainer(ctx, image.ID, container, domain.TriggerContainerRunning, domain.TriggerContainerCreated)
		}
	case domain.ContainerDied:
		if !tools.SameReference(e.Origin, image.Path) {
			return
		}
		s.count(image, "die")
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerContainerDied)
	case domain.ContainerDestroyed:
		if !tools.SameReference(e.Origin, image.Path) {
			return
		}
		s.count(image, "destroy")
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerContainerDestroyed)
	}
}

func (s *ReconcilerService) count(image domain.ManagedImage, kind string) {
	metrics.DaemonEventsTotal.WithLabelValues(kind).Inc()
	logger.L().Debug("daemon event", helpers.String("image", image.ID), helpers.String("event", kind))
}
