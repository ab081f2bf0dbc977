package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libcat_http_request_duration_seconds",
		Help:    "Duration of HTTP requests by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	LendingOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "libcat_lending_operations_total",
		Help: "Lending operations by operation and outcome code",
	}, []string{"op", "outcome"})

	LendingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libcat_lending_operation_duration_seconds",
		Help:    "Duration of lending operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	CopiesRetired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "libcat_copies_retired_total",
		Help: "Copies removed because their condition reached zero",
	})

	WaitlistPromotions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "libcat_waitlist_promotions_total",
		Help: "Returns that handed the copy to the head of the waitlist",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestDuration,
		LendingOperations,
		LendingDuration,
		CopiesRetired,
		WaitlistPromotions,
	)
}

// ObserveLending records one lending operation. outcome is "ok" or an error code.
func ObserveLending(op, outcome string, start time.Time) {
	LendingOperations.WithLabelValues(op, outcome).Inc()
	LendingDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware records request latency keyed by the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
