package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func newTestHandlers(t *testing.T) (*Handlers, *SQLLogger) {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := NewSQLLogger(db)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewHandlers(store, logger), store
}

func TestListProjectAuditHandler(t *testing.T) {
	h, store := newTestHandlers(t)
	ctx := context.Background()

	if err := store.Record(ctx, Entry{Actor: "u1", Action: "story.create", Project: "Foo", Resource: "story/1"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, Entry{Actor: "u2", Action: "role.grant", Project: "Bar", Resource: "user/u3"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/projects/{project}/audit", h.ListProjectAudit).Methods(http.MethodGet)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/Foo/audit", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Project string  `json:"project"`
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Project != "Foo" {
		t.Errorf("Expected project Foo, got %s", resp.Project)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Action != "story.create" {
		t.Errorf("Expected story.create entry, got %s", resp.Entries[0].Action)
	}
}

func TestListProjectAuditHandlerRejectsBadLimit(t *testing.T) {
	h, _ := newTestHandlers(t)

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/projects/{project}/audit", h.ListProjectAudit).Methods(http.MethodGet)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/Foo/audit?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric limit, got %d", w.Code)
	}
}
