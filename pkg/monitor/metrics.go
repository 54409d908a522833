// Package monitor owns the prometheus registry exposed on /metrics.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raids-lab/staffdesk/dao/model"
)

const namespace = "staffdesk"

// 声明一个自定义的注册表
var Registry = prometheus.NewRegistry()

var (
	// TransitionsTotal counts committed lifecycle transitions.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Committed request transitions by action and resulting status",
		},
		[]string{"action", "status"},
	)

	// TransitionFailures counts refused or failed transitions by error kind.
	TransitionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transition_failures_total",
			Help:      "Refused or failed request transitions by action and reason",
		},
		[]string{"action", "reason"},
	)

	// NotificationsCreated counts in-app notification rows.
	NotificationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications created for request events",
		},
	)

	// 各状态请求数量，抓取时刷新
	RequestsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests",
			Help:      "Current number of requests in each status",
		},
		[]string{"status"},
	)
)

//nolint:gochecknoinits // metrics must exist before any component records to them
func init() {
	Registry.MustRegister(
		TransitionsTotal,
		TransitionFailures,
		NotificationsCreated,
		RequestsByStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// SetRequestCounts resets the status gauge from counts; missing statuses read 0.
func SetRequestCounts(counts map[model.RequestStatus]int64) {
	for _, status := range model.RequestStatuses {
		RequestsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
