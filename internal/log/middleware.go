package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// NewContext returns ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger carried by ctx, or one built on the slog
// default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// Middleware puts logger in every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger logs the recurring events of the HTTP layer with a
// consistent field set.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogTransactionWritten logs a successful ledger write.
func (sl *StructuredLogger) LogTransactionWritten(ctx context.Context, op, userID, transactionID, groupID string, amountCents int64) {
	fields := NewFields().
		WithOperation(op).
		WithUser(userID).
		WithTransaction(transactionID, groupID, amountCents)
	sl.loggerFor(ctx).WithComponent(ComponentLedger).InfoContext(ctx, "Transaction written", fields.ToSlice()...)
}

// LogError logs err with its component and operation.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation)
	sl.loggerFor(ctx).WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}

// loggerFor prefers the request logger, which carries the request id.
func (sl *StructuredLogger) loggerFor(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return sl.logger
}
