package log

import (
	"context"
	"log/slog"
	"net/http"

	"fundportal/internal/core"
)

// StructuredLogger writes the portal's recurring events with a fixed field set.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	sl.logger.Logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request at a level that follows
// the status class.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogDemandDecided records a workflow transition of a fund demand.
func (sl *StructuredLogger) LogDemandDecided(ctx context.Context, d core.Demand, actor core.Principal) {
	fields := NewFields().
		WithDemand(d.ID, d.Reference, d.WorkID, d.Amount.Paise, string(d.Status)).
		WithUser(actor.Username, string(actor.Role)).
		WithOperation(OpDecide)

	sl.logger.Logger.InfoContext(ctx, "Demand status changed", fields.ToSlice()...)
}

// LogRequestError records a request that ended in err. Server faults log as
// errors, conflicts as info and refused input at debug.
func (sl *StructuredLogger) LogRequestError(ctx context.Context, r *http.Request, err error, status int) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, "", "", "").
		WithError(err)
	fields[FieldStatusCode] = status

	switch {
	case status >= http.StatusInternalServerError:
		fields[FieldErrorType] = ErrorTypeInternal
		sl.logger.Logger.ErrorContext(ctx, "Request failed", fields.ToSlice()...)
	case status == http.StatusConflict:
		fields[FieldErrorType] = ErrorTypeConflict
		sl.logger.Logger.InfoContext(ctx, "Request conflicted", fields.ToSlice()...)
	default:
		sl.logger.Logger.DebugContext(ctx, "Request refused", fields.ToSlice()...)
	}
}
