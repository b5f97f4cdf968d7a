package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kubescape/dockwatch/adapters"
	"github.com/kubescape/dockwatch/config"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, daemon ports.Daemon) (*app, *cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	catalog, err := domain.NewCatalog(
		domain.ManagedImage{ID: "web", Path: "nginx", Ports: []string{"8080:80"}},
		domain.ManagedImage{ID: "pgadmin", Path: "dpage/pgadmin4", Hosts: map[string]string{"db": "database"}},
		domain.ManagedImage{ID: "database", Path: "postgres:16"},
	)
	require.NoError(t, err)
	a, err := newAppWith(context.TODO(), config.Config{MaxConcurrentPulls: 1, ReconnectAttempts: 1, ReconnectBackoff: time.Millisecond}, catalog, daemon)
	require.NoError(t, err)
	t.Cleanup(a.close)

	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.TODO())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return a, cmd, &stdout, &stderr
}

func TestApp_Execute(t *testing.T) {
	daemon := adapters.NewMockDaemon()
	a, cmd, stdout, _ := newTestApp(t, daemon)

	require.NoError(t, a.execute(cmd, ports.ReconcilerService.Fetch, "web"))
	assert.Contains(t, stdout.String(), "web")
	assert.Contains(t, stdout.String(), string(domain.StatusAvailable))

	stdout.Reset()
	require.NoError(t, a.execute(cmd, ports.ReconcilerService.Run, "web"))
	assert.Contains(t, stdout.String(), string(domain.StatusRunning))
	assert.Contains(t, stdout.String(), "(0.0.0.0:8080)")
}

func TestApp_ExecuteUnmetDependency(t *testing.T) {
	daemon := adapters.NewMockDaemon().WithImage("dpage/pgadmin4", "sha256:pgadmin")
	a, cmd, stdout, stderr := newTestApp(t, daemon)

	require.NoError(t, a.execute(cmd, ports.ReconcilerService.Run, "pgadmin"))
	assert.Contains(t, stdout.String(), string(domain.StatusAvailable))
	assert.Equal(t, "[MEDIUM] Dependency error: Container \"database\" does not have an IP address\n", stderr.String())
	assert.Zero(t, daemon.Called("CreateContainer"))
}

func TestApp_ExecuteUnknownImage(t *testing.T) {
	a, cmd, _, _ := newTestApp(t, adapters.NewMockDaemon())
	assert.ErrorIs(t, a.execute(cmd, ports.ReconcilerService.Stop, "nope"), domain.ErrUnknownImage)
}

func TestApp_PrintStates(t *testing.T) {
	a, cmd, stdout, _ := newTestApp(t, adapters.NewMockDaemon())
	a.service.CheckAll(cmd.Context())
	a.settle()
	a.printStates(cmd)
	lines := bytes.Split(bytes.TrimSpace(stdout.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.True(t, bytes.HasPrefix(lines[0], []byte("web ")))
	assert.Contains(t, string(lines[2]), string(domain.StatusNotAvailable))
}
