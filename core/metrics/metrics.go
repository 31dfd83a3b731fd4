// Package metrics exposes Prometheus instruments for the bot runtime.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the bot.
type Metrics struct {
	UpdatesTotal        *prometheus.CounterVec
	HandlerDuration     *prometheus.HistogramVec
	OutboundErrorsTotal *prometheus.CounterVec
	TaskFailuresTotal   *prometheus.CounterVec
	KnownUsers          prometheus.Gauge
	ActiveUsers         prometheus.Gauge
	Conversations       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedulebot_updates_total",
				Help: "Inbound Telegram updates by kind.",
			},
			[]string{"kind"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schedulebot_handler_duration_seconds",
				Help:    "Update handling duration by handler and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "status"},
		),
		OutboundErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedulebot_outbound_errors_total",
				Help: "Failed outbound calls by action and error kind.",
			},
			[]string{"action", "kind"},
		),
		TaskFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedulebot_periodic_task_failures_total",
				Help: "Failed periodic task runs by task name.",
			},
			[]string{"task"},
		),
		KnownUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schedulebot_known_users",
			Help: "Users that have ever interacted with the bot.",
		}),
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schedulebot_active_users",
			Help: "Users seen within the activity window.",
		}),
		Conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schedulebot_conversations",
			Help: "Conversation states held in memory.",
		}),
		registry: reg,
	}

	reg.MustRegister(m.UpdatesTotal)
	reg.MustRegister(m.HandlerDuration)
	reg.MustRegister(m.OutboundErrorsTotal)
	reg.MustRegister(m.TaskFailuresTotal)
	reg.MustRegister(m.KnownUsers)
	reg.MustRegister(m.ActiveUsers)
	reg.MustRegister(m.Conversations)

	return m
}

// Handler returns an http.Handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpdate increments the update counter.
func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}

// ObserveHandler records how long a handler took.
func (m *Metrics) ObserveHandler(handler, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerDuration.WithLabelValues(handler, status).Observe(d.Seconds())
}

// RecordOutboundError increments the outbound error counter.
func (m *Metrics) RecordOutboundError(action, kind string) {
	if m == nil {
		return
	}
	m.OutboundErrorsTotal.WithLabelValues(action, kind).Inc()
}

// RecordTaskFailure increments the periodic task failure counter.
func (m *Metrics) RecordTaskFailure(task string) {
	if m == nil {
		return
	}
	m.TaskFailuresTotal.WithLabelValues(task).Inc()
}

// SetPresence publishes the latest known and active user counts.
func (m *Metrics) SetPresence(known, active int) {
	if m == nil {
		return
	}
	m.KnownUsers.Set(float64(known))
	m.ActiveUsers.Set(float64(active))
}

// SetConversations publishes the number of tracked conversations.
func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}

// Serve exposes the handler on listen+path until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, listen, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
