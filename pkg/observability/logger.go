package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/contractguard/contractguard/pkg/contextkeys"
)

// NewLogger creates a logrus logger. Unknown levels fall back to info;
// format "text" selects the human readable formatter, anything else JSON.
func NewLogger(level, format string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	log := logrus.New()
	log.SetOutput(output)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, log logrus.FieldLogger) context.Context {
	return contextkeys.WithLogger(ctx, log)
}

// GetLogger retrieves the logger from context, falling back to the standard logger
func GetLogger(ctx context.Context) logrus.FieldLogger {
	if log, ok := ctx.Value(contextkeys.LoggerKey).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}

// FromContext returns the context logger enriched with request and user IDs
func FromContext(ctx context.Context) logrus.FieldLogger {
	log := GetLogger(ctx)

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		log = log.WithField("request_id", requestID)
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		log = log.WithField("user_id", userID)
	}
	return log
}

// WithTraceContext adds the active span's trace and span IDs to log
func WithTraceContext(ctx context.Context, log logrus.FieldLogger) logrus.FieldLogger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return log
	}

	spanCtx := span.SpanContext()
	return log.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
