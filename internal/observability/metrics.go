package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total number of HTTP requests processed by the messenger service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Total number of messages stored and fanned out.",
		},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messenger_ws_active_connections",
			Help: "Number of active websocket subscription connections.",
		},
		[]string{"stream"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"stream", "event"},
	)
	busEventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_bus_events_published_total",
			Help: "Total number of events published on the in-process bus.",
		},
		[]string{"topic"},
	)
	busEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_bus_events_dropped_total",
			Help: "Total number of bus events dropped for slow subscribers.",
		},
		[]string{"topic"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_amqp_publish_errors_total",
			Help: "Total number of AMQP mirror publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		messagesSentTotal,
		wsActiveConnections,
		wsEventsTotal,
		busEventsPublishedTotal,
		busEventsDroppedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncMessageSent() {
	messagesSentTotal.Inc()
}

func IncWSActive(stream string) {
	wsActiveConnections.WithLabelValues(stream).Inc()
}

func DecWSActive(stream string) {
	wsActiveConnections.WithLabelValues(stream).Dec()
}

func IncWSEvent(stream, event string) {
	wsEventsTotal.WithLabelValues(stream, event).Inc()
}

func IncBusEventPublished(topic string) {
	busEventsPublishedTotal.WithLabelValues(topic).Inc()
}

func IncBusEventDropped(topic string) {
	busEventsDroppedTotal.WithLabelValues(topic).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
