package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Tenant login attempts
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_tenant_login_total",
			Help: "Total number of tenant login attempts",
		},
	)

	// Admin login attempts
	AdminLoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_admin_login_total",
			Help: "Total number of admin login attempts",
		},
	)

	// Tenant registrations
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_register_total",
			Help: "Total number of tenant registrations",
		},
	)

	// Rate-limited requests
	RateLimitedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_rate_limited_total",
			Help: "Total number of requests denied by the rate limiter",
		},
	)

	// CSRF rejections
	CSRFRejectedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_csrf_rejected_total",
			Help: "Total number of requests rejected by CSRF validation",
		},
	)

	// Password reset requests
	PasswordResetCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_password_reset_total",
			Help: "Total number of password reset operations",
		},
		[]string{"stage"}, // "requested", "verified", "completed"
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_credentials", "invalid_token", "db_error" etc.
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_tenant_operations_total",
			Help: "Total number of tenant data operations",
		},
		[]string{"operation"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	// Active sessions removed by the last sweep
	SweptSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "platform_swept_sessions_last_run",
			Help: "Number of expired rows removed by the last cleanup run",
		},
	)

	// Registered companies
	CompaniesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "platform_companies",
			Help: "Number of registered companies",
		},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(AdminLoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(RateLimitedCounter)
	prometheus.MustRegister(CSRFRejectedCounter)
	prometheus.MustRegister(PasswordResetCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(TenantOperationCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(SweptSessionsGauge)
	prometheus.MustRegister(CompaniesGauge)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantOperation records a tenant data operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordPasswordReset records a password reset stage
func RecordPasswordReset(stage string) {
	PasswordResetCounter.With(prometheus.Labels{"stage": stage}).Inc()
}
