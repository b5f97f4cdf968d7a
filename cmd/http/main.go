package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gin-gonic/gin"
	v1 "github.com/kubescape/dockwatch/adapters/v1"
	"github.com/kubescape/dockwatch/config"
	"github.com/kubescape/dockwatch/controllers"
	"github.com/kubescape/dockwatch/core/services"
	"github.com/kubescape/dockwatch/goroutinelimits"
	"github.com/kubescape/dockwatch/internal/tools"
	"github.com/kubescape/dockwatch/repositories"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	ctx := context.Background()

	c, err := config.LoadConfig(config.Dir())
	if err != nil {
		logger.L().Ctx(ctx).Fatal("load config error", helpers.Error(err))
	}
	catalog, err := c.Catalog()
	if err != nil {
		logger.L().Ctx(ctx).Fatal("catalog error", helpers.Error(err))
	}

	// to enable otel, set OTEL_COLLECTOR_SVC=otel-collector:4317
	if otelHost, present := os.LookupEnv("OTEL_COLLECTOR_SVC"); present {
		ctx = logger.InitOtel("dockwatch",
			release(),
			"",
			"",
			url.URL{Host: otelHost})
		defer logger.ShutdownOtel(ctx)
	}

	// modify context to listen to interrupt signals from the OS.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := v1.NewDockerAdapter(c.DaemonHost)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("daemon client error", helpers.Error(err))
	}
	defer daemon.Close()
	if err := daemon.Ping(ctx); err != nil {
		// the monitors reconnect once the daemon is up, readiness reports it meanwhile
		logger.L().Ctx(ctx).Warning("daemon not reachable", helpers.Error(err))
	}

	pulls, err := goroutinelimits.CreateCoroutineGuardian(c.MaxConcurrentPulls)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("pull limit error", helpers.Error(err))
	}
	storage := repositories.NewMemoryStorage(catalog.IDs()...)
	defer storage.Close()
	pool := workerpool.New(c.WorkerCount)

	service := services.NewReconcilerService(ctx, catalog, daemon, storage, pool,
		services.WithPullLimit(pulls),
		services.WithReconnectPolicy(c.ReconnectAttempts, c.ReconnectBackoff))
	service.CheckAll(ctx)
	controller := controllers.NewHTTPController(service)

	srv := &http.Server{
		Addr:    c.ListenAddress,
		Handler: newRouter(controller),
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		logger.L().Info("starting server", helpers.String("address", c.ListenAddress),
			helpers.String("release", release()), helpers.Int("images", catalog.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Ctx(ctx).Fatal("router error", helpers.Error(err))
		}
	}()

	// Listen for the interrupt signal.
	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.L().Info("shutting down gracefully")

	// modify context to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Ctx(ctx).Error("server forced to shutdown", helpers.Error(err))
	}

	// monitors first, then the operations still queued
	service.Shutdown()
	pool.StopWait()

	logger.L().Info("dockwatch exiting")
}

// release is $RELEASE, or the version the binary was built at.
func release() string {
	if r := os.Getenv("RELEASE"); r != "" {
		return r
	}
	return tools.PackageVersion("github.com/kubescape/dockwatch")
}

func newRouter(controller *controllers.HTTPController) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/v1/liveness", controller.Alive)
	router.GET("/v1/readiness", controller.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	group := router.Group("/v1")
	{
		group.Use(otelgin.Middleware("dockwatch-svc"))
		controller.RegisterRoutes(group)
	}
	return router
}
