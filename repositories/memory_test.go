package repositories

import (
	"fmt"
	"testing"

	"github.com/kubescape/dockwatch/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ImageState(t *testing.T) {
	m := NewMemoryStorage("nginx", "database")
	defer m.Close()

	got, ok := m.ImageState("nginx")
	require.True(t, ok)
	assert.Equal(t, domain.StatusNotAvailable, got.Status)
	assert.Empty(t, got.DaemonID)

	_, ok = m.ImageState("missing")
	assert.False(t, ok)
}

func TestMemoryStore_SetStatus(t *testing.T) {
	m := NewMemoryStorage("nginx")
	defer m.Close()

	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusRunning, Ports: []string{"0.0.0.0:8080"}, IP: "172.17.0.2"})
	m.Sync()
	got, _ := m.ImageState("nginx")
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, []string{"0.0.0.0:8080"}, got.Ports)
	assert.Equal(t, "172.17.0.2", got.ContainerIP)

	// leaving RUNNING clears container details
	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusCreated, Ports: []string{"0.0.0.0:8080"}, IP: "172.17.0.2"})
	m.Sync()
	got, _ = m.ImageState("nginx")
	assert.Equal(t, domain.StatusCreated, got.Status)
	assert.Empty(t, got.Ports)
	assert.Empty(t, got.ContainerIP)
}

func TestMemoryStore_IgnoresInvalidActions(t *testing.T) {
	m := NewMemoryStorage("nginx")
	defer m.Close()

	m.Dispatch(domain.SetStatus{Image: "nginx", Status: "BOGUS"})
	m.Dispatch(domain.SetStatus{Image: "unknown", Status: domain.StatusAvailable})
	m.Dispatch(domain.SetDaemonID{Image: "nginx", DaemonID: ""})
	m.Sync()

	got, _ := m.ImageState("nginx")
	assert.Equal(t, domain.NewImageState("nginx"), got)
	_, ok := m.ImageState("unknown")
	assert.False(t, ok)
}

func TestMemoryStore_DaemonID(t *testing.T) {
	m := NewMemoryStorage("nginx")
	defer m.Close()

	m.Dispatch(domain.SetDaemonID{Image: "nginx", DaemonID: "sha256:aaa"})
	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusAvailable})
	m.Sync()
	got, _ := m.ImageState("nginx")
	assert.Equal(t, "sha256:aaa", got.DaemonID)

	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusNotAvailable, ClearDaemonID: true})
	m.Sync()
	got, _ = m.ImageState("nginx")
	assert.Empty(t, got.DaemonID)
	assert.Equal(t, domain.StatusNotAvailable, got.Status)
}

func TestMemoryStore_Notifications(t *testing.T) {
	m := NewMemoryStorage()
	defer m.Close()

	for i := 0; i < maxNotifications+5; i++ {
		m.Dispatch(domain.NotifyUser{Notification: domain.Notification{ID: fmt.Sprint(i), Title: "t"}})
	}
	m.Sync()
	got := m.Notifications()
	require.Len(t, got, maxNotifications)
	assert.Equal(t, "5", got[0].ID)
	assert.Equal(t, fmt.Sprint(maxNotifications+4), got[len(got)-1].ID)
}

func TestMemoryStore_Snapshot(t *testing.T) {
	m := NewMemoryStorage("b", "a", "b")
	defer m.Close()

	got := m.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestMemoryStore_OrderIsPreserved(t *testing.T) {
	m := NewMemoryStorage("nginx")
	defer m.Close()

	statuses := []domain.ImageStatus{domain.StatusFetching, domain.StatusAvailable, domain.StatusCreated, domain.StatusRunning, domain.StatusCreated}
	for _, s := range statuses {
		m.Dispatch(domain.SetStatus{Image: "nginx", Status: s})
	}
	m.Sync()
	got, _ := m.ImageState("nginx")
	assert.Equal(t, domain.StatusCreated, got.Status)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	m := NewMemoryStorage("nginx")
	defer m.Close()

	updates, cancel := m.Subscribe(4)
	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusFetching})
	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusAvailable})
	m.Sync()

	first := <-updates
	second := <-updates
	assert.Equal(t, domain.StatusFetching, first.Status)
	assert.Equal(t, domain.StatusAvailable, second.Status)

	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestMemoryStore_DispatchAfterClose(t *testing.T) {
	m := NewMemoryStorage("nginx")
	m.Close()
	m.Close()
	m.Dispatch(domain.SetStatus{Image: "nginx", Status: domain.StatusAvailable})
	m.Sync()
	got, _ := m.ImageState("nginx")
	assert.Equal(t, domain.StatusNotAvailable, got.Status)
}
