// README: zap logger setup and request-scoped field helpers.
package log

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	OrderIDKey   contextKey = "order_id"
)

var (
	mu           sync.RWMutex
	globalLogger = zap.NewNop()
)

// Init builds the production logger and installs it as the global fallback for L.
func Init(level string) (*zap.Logger, error) {
	logger, err := NewProduction(level)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
	return logger, nil
}

// NewProduction creates a JSON logger at the given level. Unknown levels fall back to info.
func NewProduction(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		logLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(logLevel)

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Encoding = "json"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build()
}

// NewNop returns a logger that discards everything; used by tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// L returns the global logger enriched with request-scoped fields from ctx.
func L(ctx context.Context) *zap.Logger {
	mu.RLock()
	logger := globalLogger
	mu.RUnlock()
	return With(ctx, logger)
}

// With adds request-scoped fields from ctx to logger.
func With(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if ctx == nil {
		return logger
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With(zap.String("request_id", requestID))
	}
	if orderID, ok := ctx.Value(OrderIDKey).(string); ok && orderID != "" {
		logger = logger.With(zap.String("order_id", orderID))
	}
	return logger
}

// WithRequestID stores the request id on ctx for later log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithOrderID stores the order id on ctx for later log lines.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, OrderIDKey, orderID)
}

// RequestID reads the request id previously stored by WithRequestID.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
