package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindBadRequest, http.StatusBadRequest},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInfrastructure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := &APIError{Kind: tt.kind, Message: "x"}
		assert.Equal(t, tt.status, err.Status(), "kind %s", tt.kind)
	}
}

func TestWriteAPIError_Kind(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, Forbidden("editor role required"))

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["kind"])
	assert.Equal(t, "editor role required", body["error"])
}

func TestWriteAPIError_InfrastructureHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	cause := errors.New("pq: connection refused")

	WriteAPIError(w, Infrastructure("role lookup failed", cause))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.NotContains(t, w.Body.String(), "role lookup failed")
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestWriteAPIError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, errors.New("unexpected"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "unexpected")
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Infrastructure("store unreachable", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "boom")
}
