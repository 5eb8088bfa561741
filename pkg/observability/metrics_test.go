package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveDBStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveDBStats(sql.DBStats{InUse: 3, Idle: 7})

	if got := testutil.ToFloat64(m.DBConnectionsActive); got != 3 {
		t.Errorf("Expected 3 active connections, got %v", got)
	}
	if got := testutil.ToFloat64(m.DBConnectionsIdle); got != 7 {
		t.Errorf("Expected 7 idle connections, got %v", got)
	}
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.StoriesTotal.Set(5)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from metrics handler, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "bubbleup_stories_total 5") {
		t.Errorf("Expected stories gauge in exposition, got:\n%s", body)
	}
}
