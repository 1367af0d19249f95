package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/hlog"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of open websocket connections",
	})
	WsFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_frames_total",
		Help: "Inbound websocket frames accepted, by type",
	}, []string{"type"})
	WsFramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_frames_dropped_total",
		Help: "Inbound websocket frames dropped, by reason",
	}, []string{"reason"})
	FanoutDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_deliveries_total",
		Help: "Outbound events queued on a connection, by event type",
	}, []string{"type"})
	FanoutDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_drops_total",
		Help: "Outbound events refused by a closed or slow connection, by event type",
	}, []string{"type"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsFramesTotal,
		WsFramesDropped,
		FanoutDeliveries,
		FanoutDrops,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// Middleware records request count and latency labelled by the matched route
// template, so /api/chats/{chatId} is one series rather than one per chat.
func Middleware(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, _ int, duration time.Duration) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(duration.Seconds())
	})(next)
}
