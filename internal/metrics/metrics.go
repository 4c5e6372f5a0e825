package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal *prometheus.CounterVec
	votesTotal        prometheus.Counter
	eventsDropped     prometheus.Counter
	wsConnections     prometheus.Gauge
	roomsActive       prometheus.Gauge
	registerOnce      sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollsync",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the pollsync API.",
		}, []string{"method", "path", "status"})
		votesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pollsync",
			Name:      "votes_total",
			Help:      "Total accepted vote submissions.",
		})
		eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pollsync",
			Name:      "events_dropped_total",
			Help:      "Broadcast events dropped because a session's buffer was full.",
		})
		wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollsync",
			Name:      "ws_connections",
			Help:      "Currently open WebSocket connections.",
		})
		roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollsync",
			Name:      "rooms_active",
			Help:      "Live rooms held by the registry.",
		})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func IncVote() {
	if votesTotal != nil {
		votesTotal.Inc()
	}
}

func IncDroppedEvent() {
	if eventsDropped != nil {
		eventsDropped.Inc()
	}
}

func ConnOpened() {
	if wsConnections != nil {
		wsConnections.Inc()
	}
}

func ConnClosed() {
	if wsConnections != nil {
		wsConnections.Dec()
	}
}

func SetActiveRooms(n int) {
	if roomsActive != nil {
		roomsActive.Set(float64(n))
	}
}
