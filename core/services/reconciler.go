package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/dockwatch/goroutinelimits"
	"github.com/kubescape/dockwatch/internal/metrics"
	"github.com/kubescape/dockwatch/internal/tools"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/moby/locker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectBackoff  = time.Second
)

// ReconcilerService implements ReconcilerService from ports, this is the business component
// business logic should be independent of implementations
//
// Operations are queued on the executor and only ever change state by
// dispatching actions. Operations on the same image are serialized.
type ReconcilerService struct {
	ctx      context.Context
	cancel   context.CancelFunc
	catalog  domain.Catalog
	daemon   ports.Daemon
	store    ports.Store
	executor ports.Executor
	pulls    *goroutinelimits.CoroutineGuardian
	locks    *locker.Locker
	monitors mapset.Set[string]
	wg       sync.WaitGroup

	fetchMu sync.Mutex
	fetches map[string]*fetchHandle

	reconnectAttempts int
	reconnectBackoff  time.Duration
}

// fetchHandle identifies one in-flight fetch so that only its owner clears it.
type fetchHandle struct {
	cancel context.CancelFunc
}

var _ ports.ReconcilerService = (*ReconcilerService)(nil)

type Option func(*ReconcilerService)

// WithPullLimit caps the number of concurrent image pulls.
func WithPullLimit(guardian *goroutinelimits.CoroutineGuardian) Option {
	return func(s *ReconcilerService) {
		s.pulls = guardian
	}
}

// WithReconnectPolicy sets how often a monitor re-subscribes to a dropped
// event feed, and the first backoff between attempts.
func WithReconnectPolicy(attempts int, backoff time.Duration) Option {
	return func(s *ReconcilerService) {
		s.reconnectAttempts = attempts
		s.reconnectBackoff = backoff
	}
}

// NewReconcilerService initializes the ReconcilerService with all injected dependencies.
// Background work lives as long as ctx or until Shutdown.
func NewReconcilerService(ctx context.Context, catalog domain.Catalog, daemon ports.Daemon, store ports.Store, executor ports.Executor, opts ...Option) *ReconcilerService {
	ctx, cancel := context.WithCancel(ctx)
	pulls, _ := goroutinelimits.CreateCoroutineGuardian(goroutinelimits.DefaultMaxConcurrentPulls)
	s := &ReconcilerService{
		ctx:               ctx,
		cancel:            cancel,
		catalog:           catalog,
		daemon:            daemon,
		store:             store,
		executor:          executor,
		pulls:             pulls,
		locks:             locker.New(),
		monitors:          mapset.NewSet[string](),
		fetches:           map[string]*fetchHandle{},
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectBackoff:  DefaultReconnectBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check seeds the state of an image from the daemon and starts its monitor
func (s *ReconcilerService) Check(ctx context.Context, id string) error {
	return s.submit(ctx, "Check", id, s.check)
}

// CheckAll checks every image of the catalog once
func (s *ReconcilerService) CheckAll(ctx context.Context) {
	for _, id := range s.catalog.IDs() {
		_ = s.Check(ctx, id)
	}
}

func (s *ReconcilerService) Fetch(ctx context.Context, id string) error {
	return s.submit(ctx, "Fetch", id, s.fetch)
}

func (s *ReconcilerService) Run(ctx context.Context, id string) error {
	return s.submit(ctx, "Run", id, s.run)
}

func (s *ReconcilerService) Stop(ctx context.Context, id string) error {
	return s.submit(ctx, "Stop", id, s.stop)
}

// RemoveImage deletes the image from the daemon, cancelling a fetch of the same image in progress
func (s *ReconcilerService) RemoveImage(ctx context.Context, id string) error {
	if s.catalog.Has(id) {
		s.cancelFetch(id)
	}
	return s.submit(ctx, "RemoveImage", id, s.removeImage)
}

func (s *ReconcilerService) RemoveContainer(ctx context.Context, id string) error {
	return s.submit(ctx, "RemoveContainer", id, s.removeContainer)
}

func (s *ReconcilerService) Image(id string) (domain.ManagedImage, error) {
	image, ok := s.catalog.Get(id)
	if !ok {
		return domain.ManagedImage{}, fmt.Errorf("%q: %w", id, domain.ErrUnknownImage)
	}
	return image, nil
}

func (s *ReconcilerService) Notifications() []domain.Notification {
	return s.store.Notifications()
}

// Ready proxies the daemon's readiness
func (s *ReconcilerService) Ready(ctx context.Context) bool {
	return s.daemon.Ping(ctx) == nil
}

func (s *ReconcilerService) State(id string) (domain.ImageState, error) {
	if !s.catalog.Has(id) {
		return domain.ImageState{}, fmt.Errorf("%q: %w", id, domain.ErrUnknownImage)
	}
	state, ok := s.store.ImageState(id)
	if !ok {
		return domain.NewImageState(id), nil
	}
	return state, nil
}

func (s *ReconcilerService) States() []domain.ImageState {
	states := make([]domain.ImageState, 0, s.catalog.Len())
	for _, id := range s.catalog.IDs() {
		state, _ := s.State(id)
		states = append(states, state)
	}
	return states
}

// Shutdown cancels in-flight operations and every monitor, and waits for the monitors to end.
// The executor belongs to the caller.
func (s *ReconcilerService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// submit queues work for image id on the executor. The work runs under the
// service's context so it outlives the request, but keeps the request's span.
func (s *ReconcilerService) submit(ctx context.Context, operation string, id string, work func(context.Context, domain.ManagedImage) error) error {
	ctx, span := otel.Tracer("").Start(ctx, "ReconcilerService."+operation)
	defer span.End()
	image, err := s.Image(id)
	if err != nil {
		return err
	}
	ctx = trace.ContextWithSpan(s.ctx, trace.SpanFromContext(ctx))
	s.executor.Submit(func() {
		ctx, span := otel.Tracer("").Start(ctx, "ReconcilerService."+operation+".work")
		defer span.End()
		if err := work(ctx, image); err != nil {
			metrics.OperationsTotal.WithLabelValues(operation, "error").Inc()
			logger.L().Ctx(ctx).Error("operation failed", helpers.String("operation", operation),
				helpers.String("image", image.ID), helpers.String("path", image.Path), helpers.Error(err))
			return
		}
		metrics.OperationsTotal.WithLabelValues(operation, "success").Inc()
	})
	return nil
}

func (s *ReconcilerService) check(ctx context.Context, image domain.ManagedImage) error {
	defer s.startMonitor(image)
	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	return s.observe(ctx, image)
}

// observe is the authoritative poll: it derives the status of image from what
// the daemon reports right now.
func (s *ReconcilerService) observe(ctx context.Context, image domain.ManagedImage) error {
	if s.fetching(image.ID) {
		logger.L().Ctx(ctx).Debug("check skipped during fetch", helpers.String("image", image.ID))
		return nil
	}
	daemonID, err := s.daemon.InspectImage(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrImageNotFound):
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerCheckNotAvailable)
		return nil
	case err != nil:
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	s.store.Dispatch(domain.SetDaemonID{Image: image.ID, DaemonID: daemonID})

	container, err := s.daemon.FindContainer(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrContainerNotFound):
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerCheckAvailable)
		return nil
	case err != nil:
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	s.observeContainer(ctx, image.ID, container, domain.TriggerCheckRunning, domain.TriggerCheckCreated)
	return nil
}

func (s *ReconcilerService) fetch(ctx context.Context, image domain.ManagedImage) error {
	state, _ := s.store.ImageState(image.ID)
	if _, ok := domain.Next(state.Status, domain.TriggerFetchRequested); !ok {
		logger.L().Ctx(ctx).Warning("fetch ignored", helpers.String("image", image.ID), helpers.String("status", string(state.Status)))
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handle := &fetchHandle{cancel: cancel}
	if !s.startFetch(image.ID, handle) {
		logger.L().Ctx(ctx).Debug("fetch already in progress", helpers.String("image", image.ID))
		return nil
	}
	defer s.endFetch(image.ID, handle)

	// checks started from here on leave the status to the pull, so the
	// image lock is not held while waiting for it
	s.locks.Lock(image.ID)
	s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerFetchRequested)
	_ = s.locks.Unlock(image.ID)

	if err := s.pulls.WaitContext(ctx); err != nil {
		return s.fetchFailed(ctx, image, err)
	}
	defer s.pulls.Release()

	err := s.daemon.PullImage(ctx, image.Path, func(progress domain.PullProgress) {
		logger.L().Debug("pull progress", helpers.String("image", image.ID),
			helpers.String("status", progress.Status), helpers.String("progress", progress.Progress))
		s.store.Dispatch(domain.SetStatus{Image: image.ID, Status: domain.StatusFetching})
	})
	if err != nil {
		return s.fetchFailed(ctx, image, err)
	}
	daemonID, err := s.daemon.InspectImage(ctx, image.Path)
	if err != nil {
		return s.fetchFailed(ctx, image, err)
	}
	s.store.Dispatch(domain.SetDaemonID{Image: image.ID, DaemonID: daemonID})
	s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerPullCompleted)
	return nil
}

func (s *ReconcilerService) fetchFailed(ctx context.Context, image domain.ManagedImage, err error) error {
	if ctx.Err() != nil {
		logger.L().Info("fetch cancelled", helpers.String("image", image.ID))
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerFetchCancelled)
		return nil
	}
	s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerPullFailed)
	return fmt.Errorf("pull %s: %w", image.Path, err)
}

func (s *ReconcilerService) startFetch(id string, handle *fetchHandle) bool {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if _, ok := s.fetches[id]; ok {
		return false
	}
	s.fetches[id] = handle
	return true
}

func (s *ReconcilerService) endFetch(id string, handle *fetchHandle) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if s.fetches[id] == handle {
		delete(s.fetches, id)
	}
}

func (s *ReconcilerService) fetching(id string) bool {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	_, ok := s.fetches[id]
	return ok
}

func (s *ReconcilerService) cancelFetch(id string) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if handle, ok := s.fetches[id]; ok {
		handle.cancel()
	}
}

// run does not dispatch a status: the monitor observes the container start.
func (s *ReconcilerService) run(ctx context.Context, image domain.ManagedImage) error {
	hosts, err := resolveHosts(s.catalog, s.store, image)
	if err != nil {
		logger.L().Ctx(ctx).Warning("unmet dependencies", helpers.String("image", image.ID), helpers.Error(err))
		s.notify(dependencyErrorTitle, err.Error(), domain.SeverityMedium)
		return nil
	}

	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	container, err := s.daemon.FindContainer(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrContainerNotFound):
		err = s.daemon.CreateContainer(ctx, containerSpec(image, hosts))
	case err != nil:
	case container.Running:
		logger.L().Ctx(ctx).Debug("container already running", helpers.String("image", image.ID))
		return nil
	default:
		err = s.daemon.StartContainer(ctx, container.ID)
	}
	if err != nil {
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	return nil
}

func containerSpec(image domain.ManagedImage, hosts map[string]string) domain.ContainerSpec {
	return domain.ContainerSpec{
		Reference:   image.Path,
		Hostname:    tools.SanitizeHostname(image.ID),
		Ports:       image.Ports,
		Volumes:     image.Volumes,
		Env:         image.Env(),
		NetworkMode: image.NetworkMode,
		ExtraHosts:  hosts,
	}
}

func (s *ReconcilerService) stop(ctx context.Context, image domain.ManagedImage) error {
	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	container, err := s.daemon.FindContainer(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrContainerNotFound):
		logger.L().Ctx(ctx).Debug("no container to stop", helpers.String("image", image.ID))
		return nil
	case err != nil:
	case container.Exited():
		return nil
	default:
		err = s.daemon.StopContainer(ctx, container.ID)
	}
	if err != nil {
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	return nil
}

func (s *ReconcilerService) removeContainer(ctx context.Context, image domain.ManagedImage) error {
	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	container, err := s.daemon.FindContainer(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrContainerNotFound):
		logger.L().Ctx(ctx).Debug("no container to remove", helpers.String("image", image.ID))
		return nil
	case err == nil:
		err = s.daemon.RemoveContainer(ctx, container.ID)
	}
	if err != nil {
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	return nil
}

func (s *ReconcilerService) removeImage(ctx context.Context, image domain.ManagedImage) error {
	s.locks.Lock(image.ID)
	defer func() { _ = s.locks.Unlock(image.ID) }()
	err := s.daemon.RemoveImage(ctx, image.Path)
	switch {
	case errors.Is(err, domain.ErrImageNotFound):
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerCheckNotAvailable)
		return nil
	case err != nil:
		s.apply(ctx, domain.SetStatus{Image: image.ID}, domain.TriggerDaemonError)
		return err
	}
	return nil
}

// observeContainer moves image to running or created depending on what the
// daemon reports for its container.
func (s *ReconcilerService) observeContainer(ctx context.Context, id string, container domain.Container, running, created domain.Trigger) {
	if container.Running {
		s.apply(ctx, domain.SetStatus{Image: id, Ports: container.Ports, IP: container.IP}, running)
		return
	}
	s.apply(ctx, domain.SetStatus{Image: id}, created)
}

// apply fires trigger t against the current status of action.Image and
// dispatches the resulting status.
func (s *ReconcilerService) apply(ctx context.Context, action domain.SetStatus, t domain.Trigger) {
	state, _ := s.store.ImageState(action.Image)
	next, ok := domain.Next(state.Status, t)
	if !ok {
		logger.L().Ctx(ctx).Debug("unexpected transition", helpers.String("image", action.Image),
			helpers.String("from", string(state.Status)), helpers.String("trigger", string(t)))
	}
	action.Status = next
	if next != domain.StatusRunning {
		action.Ports = nil
		action.IP = ""
	} else if action.IP == "" && state.Status == domain.StatusRunning {
		action.Ports = state.Ports
		action.IP = state.ContainerIP
	}
	s.store.Dispatch(action)
}

func (s *ReconcilerService) notify(title, content string, severity domain.Severity) {
	s.store.Dispatch(domain.NotifyUser{Notification: domain.Notification{
		ID:       uuid.NewString(),
		Title:    title,
		Content:  content,
		Severity: severity,
		Time:     time.Now(),
	}})
}
