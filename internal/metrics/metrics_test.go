package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecorders(t *testing.T) {
	// Counter/histogram recorders must accept any label values without
	// panicking; the registry enforces label cardinality at build time.
	RecordRequest("GET", "/v1/notifications", 200, 12*time.Millisecond)
	RecordEventReceived("task.assigned")
	RecordEventDropped("validation")
	RecordRuleMatched("task.assigned")
	RecordNotificationWritten("critical")
	RecordNotificationWriteFailure()
	RecordDeliveryEnqueued("email")
	RecordEnqueueFailure("webhook")
	RecordDeliveryProcessed("sent", "email")
	RecordDeliveryProcessed("retry", "webhook")
	RecordDeliveryLatency("email", 300*time.Millisecond)
	RecordBroadcastPublished("user")
	RecordBroadcastFailure()
	RecordRateLimitRejection("user:abc")
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware altered status: %d", rec.Code)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty metrics exposition")
	}
}
