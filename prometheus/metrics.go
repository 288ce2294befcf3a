package prometheus

import (
	"time"
	"turn-service/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthFailuresCounter *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Ticket metrics
	TicketOperationsCounter *prometheus.CounterVec
	QueueWaitingGauge       *prometheus.GaugeVec

	// Notification metrics
	NotificationErrorsCounter *prometheus.CounterVec

	// Maintenance metrics
	MaintenanceRowsCounter *prometheus.CounterVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	InitMetricsWith(config.Metrics.Prefix, prometheus.DefaultRegisterer)
}

// InitMetricsWith registers the metrics on reg under the given prefix
func InitMetricsWith(prefix string, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	HttpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuthFailuresCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_failures_total",
			Help: "Total number of rejected operator requests",
		},
		[]string{"reason"},
	)

	DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	TicketOperationsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_ticket_operations_total",
			Help: "Total number of ticket operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	QueueWaitingGauge = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_queue_waiting",
			Help: "Number of waiting tickets per queue after the last change",
		},
		[]string{"organization_id", "category_id"},
	)

	NotificationErrorsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notification_errors_total",
			Help: "Total number of failed real-time notifications",
		},
		[]string{"event"},
	)

	MaintenanceRowsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_maintenance_rows_total",
			Help: "Total number of rows removed or rewritten by maintenance",
		},
		[]string{"task"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordTicketOperation increments the counter for ticket operations
func RecordTicketOperation(operation, outcome string) {
	if TicketOperationsCounter == nil {
		return
	}
	TicketOperationsCounter.WithLabelValues(operation, outcome).Inc()
}

// SetQueueWaiting updates the queue length gauge
func SetQueueWaiting(orgID, categoryID string, n int) {
	if QueueWaitingGauge == nil {
		return
	}
	QueueWaitingGauge.WithLabelValues(orgID, categoryID).Set(float64(n))
}

// ForgetQueue drops the gauge of a deleted queue
func ForgetQueue(orgID, categoryID string) {
	if QueueWaitingGauge == nil {
		return
	}
	QueueWaitingGauge.DeleteLabelValues(orgID, categoryID)
}

// RecordNotificationError counts a notification that could not be delivered
func RecordNotificationError(event string) {
	if NotificationErrorsCounter == nil {
		return
	}
	NotificationErrorsCounter.WithLabelValues(event).Inc()
}

// RecordMaintenanceRows adds n affected rows for a maintenance task
func RecordMaintenanceRows(task string, n int64) {
	if MaintenanceRowsCounter == nil || n <= 0 {
		return
	}
	MaintenanceRowsCounter.WithLabelValues(task).Add(float64(n))
}

// RecordAuthFailure counts a rejected request
func RecordAuthFailure(reason string) {
	if AuthFailuresCounter == nil {
		return
	}
	AuthFailuresCounter.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records count and latency of a served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
