package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthHandler_NoChecker(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil, nil)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHealthHandler_CheckerFails(t *testing.T) {
	checker := &mockHealthChecker{pingFn: func(ctx context.Context) error {
		return errors.New("connection refused")
	}}

	w := httptest.NewRecorder()
	NewHealthHandler(checker, nil)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthHandler_CheckerHasDeadline(t *testing.T) {
	checker := &mockHealthChecker{pingFn: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("ping context must carry a deadline")
		}
		return nil
	}}

	w := httptest.NewRecorder()
	NewHealthHandler(checker, nil)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
