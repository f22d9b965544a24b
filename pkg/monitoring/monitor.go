package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 报名提交结果：created / duplicate
	EnrollmentCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_commits_total",
			Help: "Enrollment commit outcomes",
		},
		[]string{"outcome"},
	)

	SignatureRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_signature_rejections_total",
			Help: "Payment callbacks rejected for an invalid signature",
		},
	)

	// 证书签发结果：created / existing / race
	CertificateIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_issues_total",
			Help: "Certificate issuance outcomes",
		},
		[]string{"outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment webhook deliveries by final status",
		},
		[]string{"status"},
	)

	ArtifactUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "certificate_artifact_upload_seconds",
			Help:    "Duration of certificate artifact uploads",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(EnrollmentCommits)
	prometheus.MustRegister(SignatureRejections)
	prometheus.MustRegister(CertificateIssues)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(ArtifactUploadDuration)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
