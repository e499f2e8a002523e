package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/colegio/core/quota"
)

const namespace = "colegio"

type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	uploadBytes  *prometheus.CounterVec
	domainErrors *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests handled.",
		}, []string{"method", "path", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes uploaded to object storage, by quota category.",
		}, []string{"category"}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_errors_total",
			Help:      "Requests rejected by a domain rule, by kind (eg: quota_exceeded).",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.duration, m.uploadBytes, m.domainErrors)
	return m
}

func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err) // commits the response, so its status is known
		}

		path := ctx.Path()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request().Method
		m.requests.WithLabelValues(method, path, strconv.Itoa(ctx.Response().Status)).Inc()
		m.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return nil
	}
}

func (m *metrics) uploaded(cat quota.Category, size int64) {
	m.uploadBytes.WithLabelValues(string(cat)).Add(float64(size))
}
