package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gammazero/workerpool"
	v1 "github.com/kubescape/dockwatch/adapters/v1"
	"github.com/kubescape/dockwatch/config"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
	"github.com/kubescape/dockwatch/core/services"
	"github.com/kubescape/dockwatch/goroutinelimits"
	"github.com/kubescape/dockwatch/repositories"
	"github.com/spf13/cobra"
)

// app is the reconciler stack of a single command. It runs one worker so a
// no-op task submitted last only runs after everything queued before it.
type app struct {
	daemon  ports.Daemon
	storage *repositories.MemoryStore
	pool    *workerpool.WorkerPool
	service *services.ReconcilerService
}

func newApp(ctx context.Context) (*app, error) {
	dir := configDir
	if dir == "" {
		dir = config.Dir()
	}
	c, err := config.LoadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", dir, err)
	}
	catalog, err := c.Catalog()
	if err != nil {
		return nil, err
	}
	host := c.DaemonHost
	if daemonHost != "" {
		host = daemonHost
	}
	daemon, err := v1.NewDockerAdapter(host)
	if err != nil {
		return nil, err
	}
	if err := daemon.Ping(ctx); err != nil {
		_ = daemon.Close()
		return nil, err
	}
	a, err := newAppWith(ctx, c, catalog, daemon)
	if err != nil {
		_ = daemon.Close()
		return nil, err
	}
	return a, nil
}

func newAppWith(ctx context.Context, c config.Config, catalog domain.Catalog, daemon ports.Daemon) (*app, error) {
	pulls, err := goroutinelimits.CreateCoroutineGuardian(c.MaxConcurrentPulls)
	if err != nil {
		return nil, err
	}
	storage := repositories.NewMemoryStorage(catalog.IDs()...)
	pool := workerpool.New(1)
	service := services.NewReconcilerService(ctx, catalog, daemon, storage, pool,
		services.WithPullLimit(pulls),
		services.WithReconnectPolicy(c.ReconnectAttempts, c.ReconnectBackoff))
	return &app{
		daemon:  daemon,
		storage: storage,
		pool:    pool,
		service: service,
	}, nil
}

// execute runs op on a store seeded by checking every image, since
// dependencies are resolved from the state of the other images. The image is
// checked again afterwards so the printed status is the daemon's.
func (a *app) execute(cmd *cobra.Command, op func(ports.ReconcilerService, context.Context, string) error, id string) error {
	ctx := cmd.Context()
	a.service.CheckAll(ctx)
	a.settle()
	if err := op(a.service, ctx, id); err != nil {
		return err
	}
	if err := a.service.Check(ctx, id); err != nil {
		return err
	}
	a.settle()
	state, err := a.service.State(id)
	if err != nil {
		return err
	}
	a.printState(cmd, state)
	a.printNotifications(cmd)
	return nil
}

// settle waits for the queued operations and the actions they dispatched.
func (a *app) settle() {
	a.pool.SubmitWait(func() {})
	a.storage.Sync()
}

func (a *app) close() {
	a.service.Shutdown()
	a.pool.StopWait()
	a.storage.Close()
	if closer, ok := a.daemon.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (a *app) printStates(cmd *cobra.Command) {
	for _, state := range a.service.States() {
		a.printState(cmd, state)
	}
	a.printNotifications(cmd)
}

func (a *app) printState(cmd *cobra.Command, state domain.ImageState) {
	line := fmt.Sprintf("%-20s %-14s %s", state.ID, state.Status, state.Status.Description())
	if len(state.Ports) > 0 {
		line += " (" + strings.Join(state.Ports, ", ") + ")"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func (a *app) printNotifications(cmd *cobra.Command) {
	for _, n := range a.service.Notifications() {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s: %s\n", n.Severity, n.Title, strings.ReplaceAll(n.Content, "\n", "; "))
	}
}
