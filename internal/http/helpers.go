package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// errBadRequest marks malformed input that never reached the domain layer.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error onto the HTTP status reported to the client.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		core.IsValidation(err),
		errors.Is(err, services.ErrUnknownScale):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return applog.ErrorTypeValidation
	case http.StatusNotFound:
		return applog.ErrorTypeNotFound
	case http.StatusConflict:
		return applog.ErrorTypeConflict
	case http.StatusGatewayTimeout:
		return applog.ErrorTypeTimeout
	default:
		return applog.ErrorTypeInternal
	}
}

// writeError reports err as JSON. Internal errors are logged and their
// detail is withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, errorType(status), op, nil)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// pathID reads the {id} wildcard. Anything but a positive integer is
// reported as not found, like an unmatched route.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", ledger.ErrNotFound, r.PathValue("id"))
	}
	return id, nil
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}

// todayFrom takes today from the year, month and day query parameters when
// all three are present, otherwise from now.
func todayFrom(r *http.Request, now time.Time) (core.Date, error) {
	q := r.URL.Query()
	if q.Get("year") == "" || q.Get("month") == "" || q.Get("day") == "" {
		return core.DateOf(now), nil
	}
	year, err := queryInt(r, "year")
	if err != nil {
		return core.Date{}, err
	}
	month, err := queryInt(r, "month")
	if err != nil {
		return core.Date{}, err
	}
	day, err := queryInt(r, "day")
	if err != nil {
		return core.Date{}, err
	}
	return core.ParseDate(fmt.Sprintf("%04d-%02d-%02d", year, month, day))
}
