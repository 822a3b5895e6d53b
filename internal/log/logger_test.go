package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: slog.LevelDebug, Component: component, JSON: true, Output: &buf}), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	buf.Reset()
	return rec
}

func TestWithComponentReplacesComponent(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)
	logger.With(FieldOwnerID, 7).WithComponent(ComponentLedger).Info("hello")

	if n := bytes.Count(buf.Bytes(), []byte(`"component"`)); n != 1 {
		t.Errorf("component field appears %d times, want 1", n)
	}
	rec := decodeLine(t, buf)
	if rec[FieldComponent] != ComponentLedger {
		t.Errorf("component = %v, want %v", rec[FieldComponent], ComponentLedger)
	}
	if rec[FieldOwnerID] != float64(7) {
		t.Errorf("owner_id = %v, want 7", rec[FieldOwnerID])
	}
}

func TestFail(t *testing.T) {
	logger, buf := newBufferLogger(ComponentStorage)
	logger.Fail(context.Background(), "write failed", errors.New("disk full"), FieldOperation, OpCreate)

	rec := decodeLine(t, buf)
	if rec["level"] != "ERROR" || rec[FieldError] != "disk full" || rec[FieldOperation] != OpCreate {
		t.Errorf("record = %v", rec)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger, buf := newBufferLogger(ComponentHTTP)
	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		}),
	))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := decodeLine(t, buf)
	if rec[FieldRequestID] != "req-1" {
		t.Errorf("request_id = %v, want req-1", rec[FieldRequestID])
	}
}

func TestFromContextDefault(t *testing.T) {
	if got := FromContext(context.Background()).Component(); got != "unknown" {
		t.Errorf("Component() = %q, want unknown", got)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	logger, buf := newBufferLogger(ComponentHTTP)
	sl := NewStructuredLogger(logger)
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/users/1/netIncome", nil)
			sl.LogHTTPEnd(context.Background(), r, "GET /users/{id}/netIncome", tt.status, 3, "127.0.0.1")
			rec := decodeLine(t, buf)
			if rec["level"] != tt.want {
				t.Errorf("level = %v, want %v", rec["level"], tt.want)
			}
			if rec[FieldRoute] != "GET /users/{id}/netIncome" {
				t.Errorf("route = %v", rec[FieldRoute])
			}
		})
	}
}

func TestLogTransactionWritten(t *testing.T) {
	logger, buf := newBufferLogger(ComponentLedger)
	NewStructuredLogger(logger).LogTransactionWritten(context.Background(), OpCreate, core.Transaction{
		ID: 3, OwnerID: 1, Kind: core.Expense, Amount: decimal.RequireFromString("9.5"), Category: "FOOD", Date: core.NewDate(2024, 2, 29),
	})

	rec := decodeLine(t, buf)
	if rec[FieldAmount] != "9.50" || rec[FieldDate] != "2024-02-29" || rec[FieldKind] != "expense" {
		t.Errorf("record = %v", rec)
	}
}
