package adapters

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/dockwatch/internal/tools"
	"go.opentelemetry.io/otel"
)

const mockFeedBuffer = 256

type mockContainer struct {
	id      string
	running bool
	exited  bool
	ip      string
	spec    domain.ContainerSpec
}

type mockFeed struct {
	events chan domain.DaemonEvent
	errs   chan error
}

// MockDaemon is an in-memory daemon. Mutating calls change its images and
// containers and emit the matching events on every open feed, like a real
// daemon would. Every call is recorded.
type MockDaemon struct {
	mu         sync.Mutex
	images     map[string]string
	pullIDs    map[string]string
	containers []*mockContainer
	feeds      map[*mockFeed]struct{}
	failures   map[string]error
	calls      []string
	nextID     int
	pullGate   chan struct{}
}

var _ ports.Daemon = (*MockDaemon)(nil)

func NewMockDaemon() *MockDaemon {
	return &MockDaemon{
		images:   map[string]string{},
		pullIDs:  map[string]string{},
		feeds:    map[*mockFeed]struct{}{},
		failures: map[string]error{},
	}
}

// WithImage makes reference present with daemon id.
func (m *MockDaemon) WithImage(reference, id string) *MockDaemon {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[tools.NormalizeReference(reference)] = id
	return m
}

// WithContainer adds a container created from reference and returns its id.
func (m *MockDaemon) WithContainer(reference string, running bool, ports ...string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.newContainer(domain.ContainerSpec{Reference: reference, Ports: ports})
	c.running = running
	c.exited = !running
	return c.id
}

// SetPullID sets the daemon id a pull of reference produces.
func (m *MockDaemon) SetPullID(reference, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullIDs[tools.NormalizeReference(reference)] = id
}

// Fail makes every later call to method return err, or succeed again when err is nil.
func (m *MockDaemon) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// BlockPulls holds every pull until ReleasePulls or until its context is done.
func (m *MockDaemon) BlockPulls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullGate = make(chan struct{})
}

func (m *MockDaemon) ReleasePulls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pullGate != nil {
		close(m.pullGate)
		m.pullGate = nil
	}
}

// Calls returns the names of the methods called so far, in order.
func (m *MockDaemon) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Called reports how many times method was called.
func (m *MockDaemon) Called(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.calls {
		if call == method {
			n++
		}
	}
	return n
}

// Feeds is the number of open event subscriptions.
func (m *MockDaemon) Feeds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}

// Emit sends event on every open feed.
func (m *MockDaemon) Emit(event domain.DaemonEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit(event)
}

// CloseFeeds ends every open feed with err, as a dropped connection would.
func (m *MockDaemon) CloseFeeds(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for feed := range m.feeds {
		feed.errs <- err
		delete(m.feeds, feed)
	}
}

func (m *MockDaemon) CreateContainer(ctx context.Context, spec domain.ContainerSpec) error {
	_, span := otel.Tracer("").Start(ctx, "MockDaemon.CreateContainer")
	defer span.End()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateContainer"); err != nil {
		return err
	}
	if _, ok := m.images[tools.NormalizeReference(spec.Reference)]; !ok {
		return fmt.Errorf("create %s: %w", spec.Reference, domain.ErrImageNotFound)
	}
	c := m.newContainer(spec)
	c.running = true
	m.emit(domain.ContainerStarted{ContainerID: c.id, Origin: spec.Reference})
	return nil
}

// LastSpec returns the spec of the most recently created container.
func (m *MockDaemon) LastSpec() (domain.ContainerSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.containers) == 0 {
		return domain.ContainerSpec{}, false
	}
	return m.containers[len(m.containers)-1].spec, true
}

func (m *MockDaemon) Events(ctx context.Context) (<-chan domain.DaemonEvent, <-chan error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed := &mockFeed{
		events: make(chan domain.DaemonEvent, mockFeedBuffer),
		errs:   make(chan error, 1),
	}
	if err := m.record("Events"); err != nil {
		feed.errs <- err
		return feed.events, feed.errs
	}
	m.feeds[feed] = struct{}{}
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.feeds, feed)
	}()
	return feed.events, feed.errs
}

func (m *MockDaemon) FindContainer(_ context.Context, reference string) (domain.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindContainer"); err != nil {
		return domain.Container{}, err
	}
	for _, c := range m.containers {
		if !tools.SameReference(c.spec.Reference, reference) {
			continue
		}
		container := domain.Container{ID: c.id, State: "created", Running: c.running}
		switch {
		case c.running:
			container.State = "running"
			container.IP = c.ip
			for _, port := range c.spec.Ports {
				container.Ports = append(container.Ports, "0.0.0.0:"+strings.SplitN(port, ":", 2)[0])
			}
		case c.exited:
			container.State = "exited"
		}
		return container, nil
	}
	return domain.Container{}, domain.ErrContainerNotFound
}

func (m *MockDaemon) InspectImage(_ context.Context, reference string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("InspectImage"); err != nil {
		return "", err
	}
	id, ok := m.images[tools.NormalizeReference(reference)]
	if !ok {
		return "", domain.ErrImageNotFound
	}
	return id, nil
}

func (m *MockDaemon) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("Ping")
}

func (m *MockDaemon) PullImage(ctx context.Context, reference string, progress func(domain.PullProgress)) error {
	ctx, span := otel.Tracer("").Start(ctx, "MockDaemon.PullImage")
	defer span.End()
	m.mu.Lock()
	if err := m.record("PullImage"); err != nil {
		m.mu.Unlock()
		return err
	}
	gate := m.pullGate
	m.mu.Unlock()

	progress(domain.PullProgress{ID: "layer", Status: "Downloading", Progress: "[=>    ]"})
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	progress(domain.PullProgress{ID: "layer", Status: "Pull complete"})

	m.mu.Lock()
	defer m.mu.Unlock()
	ref := tools.NormalizeReference(reference)
	id, ok := m.pullIDs[ref]
	if !ok {
		id = "sha256:" + ref
	}
	m.images[ref] = id
	m.emit(domain.ImagePulled{Reference: ref})
	return nil
}

func (m *MockDaemon) RemoveContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoveContainer"); err != nil {
		return err
	}
	i := slices.IndexFunc(m.containers, func(c *mockContainer) bool { return c.id == id })
	if i < 0 {
		return domain.ErrContainerNotFound
	}
	c := m.containers[i]
	if c.running {
		m.emit(domain.ContainerDied{ContainerID: c.id, Origin: c.spec.Reference})
	}
	m.containers = slices.Delete(m.containers, i, i+1)
	m.emit(domain.ContainerDestroyed{ContainerID: c.id, Origin: c.spec.Reference})
	return nil
}

func (m *MockDaemon) RemoveImage(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoveImage"); err != nil {
		return err
	}
	ref := tools.NormalizeReference(reference)
	id, ok := m.images[ref]
	if !ok {
		return domain.ErrImageNotFound
	}
	delete(m.images, ref)
	m.emit(domain.ImageDeleted{ImageID: id})
	return nil
}

func (m *MockDaemon) StartContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("StartContainer"); err != nil {
		return err
	}
	c := m.container(id)
	if c == nil {
		return domain.ErrContainerNotFound
	}
	c.running = true
	c.exited = false
	m.emit(domain.ContainerStarted{ContainerID: c.id, Origin: c.spec.Reference})
	return nil
}

func (m *MockDaemon) StopContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("StopContainer"); err != nil {
		return err
	}
	c := m.container(id)
	if c == nil {
		return domain.ErrContainerNotFound
	}
	if c.running {
		c.running = false
		c.exited = true
		m.emit(domain.ContainerDied{ContainerID: c.id, Origin: c.spec.Reference})
	}
	return nil
}

func (m *MockDaemon) record(method string) error {
	m.calls = append(m.calls, method)
	return m.failures[method]
}

func (m *MockDaemon) newContainer(spec domain.ContainerSpec) *mockContainer {
	m.nextID++
	c := &mockContainer{
		id:   fmt.Sprintf("container-%d", m.nextID),
		ip:   fmt.Sprintf("172.17.0.%d", m.nextID+1),
		spec: spec,
	}
	m.containers = append(m.containers, c)
	return c
}

func (m *MockDaemon) container(id string) *mockContainer {
	for _, c := range m.containers {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (m *MockDaemon) emit(event domain.DaemonEvent) {
	for feed := range m.feeds {
		select {
		case feed.events <- event:
		default:
		}
	}
}
