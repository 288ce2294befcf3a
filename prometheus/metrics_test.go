package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHelpers_NoopBeforeInit(t *testing.T) {
	TicketOperationsCounter = nil
	QueueWaitingGauge = nil
	MaintenanceRowsCounter = nil
	HttpRequestsTotal = nil

	assert.NotPanics(t, func() {
		RecordTicketOperation("issue", "ok")
		SetQueueWaiting("org", "cat", 3)
		ForgetQueue("org", "cat")
		RecordMaintenanceRows("sweep", 2)
		RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		TrackDBOperation("issue")(time.Now())
	})
}

func TestHelpers_Record(t *testing.T) {
	InitMetricsWith("test", prometheus.NewRegistry())

	RecordTicketOperation("call_next", "empty")
	RecordTicketOperation("call_next", "empty")
	SetQueueWaiting("org-1", "general", 4)
	RecordMaintenanceRows("sweep_tickets", 5)
	RecordMaintenanceRows("sweep_tickets", 0)
	RecordHTTPRequest("POST", "/api/x", "201", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(TicketOperationsCounter.WithLabelValues("call_next", "empty")))
	assert.Equal(t, 4.0, testutil.ToFloat64(QueueWaitingGauge.WithLabelValues("org-1", "general")))
	assert.Equal(t, 5.0, testutil.ToFloat64(MaintenanceRowsCounter.WithLabelValues("sweep_tickets")))
	assert.Equal(t, 1.0, testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("POST", "/api/x", "201")))

	ForgetQueue("org-1", "general")
	assert.Equal(t, 0, testutil.CollectAndCount(QueueWaitingGauge))
}
