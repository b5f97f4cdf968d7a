package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts actions applied by the store, by action kind
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockwatch_actions_total",
		Help: "Total actions applied to the state store by kind",
	}, []string{"kind"})

	// StatusChangesTotal counts status changes by the status reached
	StatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockwatch_status_changes_total",
		Help: "Total image status changes by resulting status",
	}, []string{"status"})

	// DaemonEventsTotal counts decoded daemon events seen by monitors
	DaemonEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockwatch_daemon_events_total",
		Help: "Total daemon events evaluated by image monitors by kind",
	}, []string{"kind"})

	// OperationsTotal counts container operations by operation and result
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockwatch_operations_total",
		Help: "Total container operations by operation and result",
	}, []string{"operation", "result"})

	// MonitorReconnectsTotal counts event feed re-subscriptions
	MonitorReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockwatch_monitor_reconnects_total",
		Help: "Total event feed reconnections by result",
	}, []string{"result"})

	// MonitorsActive is the number of running image monitors
	MonitorsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dockwatch_monitors_active",
		Help: "Number of image monitors currently following the daemon event feed",
	})
)
