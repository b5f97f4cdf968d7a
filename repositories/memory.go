package repositories

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/dockwatch/internal/metrics"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

const (
	actionQueueSize  = 256
	maxNotifications = 50
)

type envelope struct {
	action domain.Action
	// applied is closed once every action queued before it has been applied
	applied chan struct{}
}

// MemoryStore implements Store with in-memory state. A single reducer
// goroutine applies dispatched actions in order; readers get copies.
type MemoryStore struct {
	queue chan envelope
	done  chan struct{}
	wg    sync.WaitGroup

	mu            sync.RWMutex
	ids           []string
	images        map[string]domain.ImageState
	notifications []domain.Notification

	subsMu      sync.Mutex
	subscribers map[int]chan domain.ImageState
	nextSub     int
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStorage initializes a store with one NOT_AVAILABLE state per
// image id and starts its reducer. Close stops it.
func NewMemoryStorage(ids ...string) *MemoryStore {
	m := &MemoryStore{
		queue:       make(chan envelope, actionQueueSize),
		done:        make(chan struct{}),
		images:      make(map[string]domain.ImageState, len(ids)),
		subscribers: map[int]chan domain.ImageState{},
	}
	for _, id := range ids {
		if _, ok := m.images[id]; ok {
			continue
		}
		m.ids = append(m.ids, id)
		m.images[id] = domain.NewImageState(id)
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Dispatch enqueues an action. Actions from one goroutine are applied in the
// order they were dispatched. Dispatch after Close is a no-op.
func (m *MemoryStore) Dispatch(action domain.Action) {
	select {
	case m.queue <- envelope{action: action}:
	case <-m.done:
	}
}

// Sync blocks until every action dispatched before the call is applied.
func (m *MemoryStore) Sync() {
	applied := make(chan struct{})
	select {
	case m.queue <- envelope{applied: applied}:
	case <-m.done:
		return
	}
	select {
	case <-applied:
	case <-m.done:
	}
}

// Close stops the reducer. Queued actions that were not applied yet are dropped.
func (m *MemoryStore) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
	m.wg.Wait()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}

// ImageState returns a copy of the current state of image id.
func (m *MemoryStore) ImageState(id string) (domain.ImageState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.images[id]
	if !ok {
		return domain.ImageState{}, false
	}
	return state.Clone(), true
}

// Snapshot returns the state of every image, in the order they were declared.
func (m *MemoryStore) Snapshot() []domain.ImageState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]domain.ImageState, 0, len(m.ids))
	for _, id := range m.ids {
		states = append(states, m.images[id].Clone())
	}
	return states
}

// Notifications returns the most recent notifications, oldest first.
func (m *MemoryStore) Notifications() []domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.notifications)
}

// Subscribe returns a channel receiving every image state after it changed,
// and a function to unsubscribe. Slow subscribers miss updates rather than
// block the reducer.
func (m *MemoryStore) Subscribe(buffer int) (<-chan domain.ImageState, func()) {
	ch := make(chan domain.ImageState, buffer)
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			close(sub)
			delete(m.subscribers, id)
		}
	}
}

func (m *MemoryStore) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case env := <-m.queue:
			if env.applied != nil {
				close(env.applied)
				continue
			}
			m.apply(env.action)
		}
	}
}

func (m *MemoryStore) apply(action domain.Action) {
	metrics.ActionsTotal.WithLabelValues(kind(action)).Inc()

	switch a := action.(type) {
	case domain.NotifyUser:
		m.mu.Lock()
		m.notifications = append(m.notifications, a.Notification)
		if len(m.notifications) > maxNotifications {
			m.notifications = slices.Clone(m.notifications[len(m.notifications)-maxNotifications:])
		}
		m.mu.Unlock()
		logger.L().Info("notification", helpers.String("title", a.Notification.Title),
			helpers.String("content", a.Notification.Content),
			helpers.String("severity", string(a.Notification.Severity)))
	case domain.SetStatus:
		m.update(a.Image, func(state domain.ImageState) (domain.ImageState, error) {
			if !a.Status.Valid() {
				return state, fmt.Errorf("invalid status %q", a.Status)
			}
			if state.Status != a.Status {
				metrics.StatusChangesTotal.WithLabelValues(string(a.Status)).Inc()
			}
			state.Status = a.Status
			state.Ports = nil
			state.ContainerIP = ""
			if a.Status == domain.StatusRunning {
				state.Ports = slices.Clone(a.Ports)
				state.ContainerIP = a.IP
			}
			if a.ClearDaemonID {
				state.DaemonID = ""
			}
			return state, nil
		})
	case domain.SetDaemonID:
		m.update(a.Image, func(state domain.ImageState) (domain.ImageState, error) {
			if a.DaemonID == "" {
				return state, fmt.Errorf("empty daemon id")
			}
			state.DaemonID = a.DaemonID
			return state, nil
		})
	}
}

func (m *MemoryStore) update(id string, fn func(domain.ImageState) (domain.ImageState, error)) {
	m.mu.Lock()
	current, ok := m.images[id]
	if !ok {
		m.mu.Unlock()
		logger.L().Warning("action for unknown image ignored", helpers.String("image", id))
		return
	}
	next, err := fn(current.Clone())
	if err != nil {
		m.mu.Unlock()
		logger.L().Warning("action ignored", helpers.String("image", id), helpers.Error(err))
		return
	}
	m.images[id] = next
	m.mu.Unlock()

	m.publish(next)
}

func (m *MemoryStore) publish(state domain.ImageState) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- state.Clone():
		default:
		}
	}
}

func kind(action domain.Action) string {
	switch action.(type) {
	case domain.SetStatus:
		return "set_status"
	case domain.SetDaemonID:
		return "set_daemon_id"
	case domain.NotifyUser:
		return "notify_user"
	}
	return "unknown"
}
