// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers  prometheus.Gauge
	ActiveRooms    prometheus.Gauge
	NPCDispatches  prometheus.Counter
	ChatFailures   prometheus.Counter
	ChatLatency    prometheus.Histogram
	PursuitCatches prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),
		NPCDispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "npc_dispatches_total",
			Help:      "Total NPC dialogue dispatches",
		}),
		ChatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_failures_total",
			Help:      "Completion calls that degraded to a fallback utterance",
		}),
		ChatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_seconds",
			Help:      "Chat completion round-trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		PursuitCatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pursuit_catches_total",
			Help:      "Games lost to a pursuit catch",
		}),
	}

	prometheus.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.NPCDispatches,
		m.ChatFailures,
		m.ChatLatency,
		m.PursuitCatches,
	)

	return m
}

type Monitor struct {
	metrics       *Metrics
	startTime     time.Time
	dispatchCount int64
	mutex         sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	// 附加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("npc_dispatches", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.dispatchCount
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncNPCDispatch() {
	m.metrics.NPCDispatches.Inc()
	m.mutex.Lock()
	m.dispatchCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncChatFailure() {
	m.metrics.ChatFailures.Inc()
}

func (m *Monitor) ObserveChatLatency(duration time.Duration) {
	m.metrics.ChatLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncPursuitCatch() {
	m.metrics.PursuitCatches.Inc()
}
