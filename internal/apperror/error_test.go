package apperror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func TestUnavailableWrapsOnce(t *testing.T) {
	base := errors.New("connection refused")
	err := Unavailable("search", base)

	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Errorf("expected original cause to be preserved")
	}

	again := Unavailable("engine", err)
	if again != err {
		t.Errorf("expected already-wrapped error to be returned unchanged")
	}

	if Unavailable("noop", nil) != nil {
		t.Errorf("expected nil for nil error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Unavailable("x", errors.New("boom"))) {
		t.Error("backend unavailable should be retryable")
	}
	if !IsRetryable(fmt.Errorf("embed: %w", context.DeadlineExceeded)) {
		t.Error("deadline exceeded should be retryable")
	}
	if IsRetryable(fmt.Errorf("write: %w", ErrSchemaMismatch)) {
		t.Error("schema mismatch should not be retryable")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", Unavailable("search", errors.New("eof")), http.StatusServiceUnavailable, "backend_unavailable"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "backend_unavailable"},
		{"schema", fmt.Errorf("bulk: %w", ErrSchemaMismatch), http.StatusInternalServerError, "schema_mismatch"},
		{"bad request", NewBadRequest("word is required"), http.StatusBadRequest, "bad_request"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.HTTPStatus != tt.status {
				t.Errorf("status = %d, want %d", got.HTTPStatus, tt.status)
			}
			if got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestHTTPErrorHandler_BackendUnavailable(t *testing.T) {
	e := echo.New()
	handler := HTTPErrorHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/search_osm_tag_v2?word=cafe", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler(Unavailable("search", errors.New("dial tcp: refused")), c)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	errObj := resp["error"].(map[string]any)
	if errObj["code"] != "backend_unavailable" {
		t.Errorf("Code = %v, want backend_unavailable", errObj["code"])
	}
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	e := echo.New()
	handler := HTTPErrorHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler(echo.NewHTTPError(http.StatusNotFound, "route not found"), c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
