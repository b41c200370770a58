package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/orderflow/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512

	unavailableRetryAfter = 5 * time.Second
)

var now = time.Now

// envelopeKeys cannot be overwritten by details.
var envelopeKeys = map[string]struct{}{
	"error": {}, "message": {}, "status": {}, "path": {}, "timestamp": {}, "request_id": {}, "trace_id": {},
}

// Error is the JSON error envelope: error, message, status, path, timestamp, request_id and
// trace_id, plus any details flattened beside them.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, maxCodeLength),
		Message: oneLine(message, maxMessageLength),
		Status:  status,
	}
}

// WithDetails returns a copy of e carrying details. Keys that collide with the envelope are dropped.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		if _, reserved := envelopeKeys[k]; reserved {
			continue
		}
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError writes err as JSON. Server-side failures are also logged on the request logger.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+7)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	payload["timestamp"] = now().UTC().Format(time.RFC3339)
	if path := routePath(ctx); path != "" {
		payload["path"] = path
	}
	if id := oneLine(middleware.GetReqID(ctx), maxCodeLength); id != "" {
		payload["request_id"] = id
	}
	if id := requestctx.TraceID(ctx); id != "" {
		payload["trace_id"] = id
	}

	if status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Error("request failed",
			zap.String("error_code", err.Code),
			zap.Int("status", status),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(unavailableRetryAfter/time.Second)))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// routePath is the matched route pattern rather than the raw URL path.
func routePath(ctx context.Context) string {
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		return ""
	}
	return oneLine(rctx.RoutePattern(), maxMessageLength)
}

func oneLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
