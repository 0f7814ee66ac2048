package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cortap/cortap-rpt/pkg/requestid"
)

// StructuredLogger produces operation scoped loggers. Every event carries the
// operation name, the request id found in the context and any field added
// through the builder.
type StructuredLogger struct {
	name      string
	stepLevel zapcore.Level
}

// NewDebugLogger returns a logger whose intermediate steps are emitted at debug
// level. Errors and successes keep their own levels.
func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, stepLevel: zapcore.DebugLevel}
}

// NewInfoLogger is like NewDebugLogger but steps are emitted at info level.
func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, stepLevel: zapcore.InfoLevel}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{
		logger:    zap.L().Named(l.name),
		stepLevel: l.stepLevel,
	}
	if id := requestid.FromContext(ctx); id != "" {
		b.fields = append(b.fields, zap.String("request_id", id))
	}
	return b
}

type OperationBuilder struct {
	logger    *zap.Logger
	stepLevel zapcore.Level
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) Operation(op string) *OperationBuilder {
	b.operation = op
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithInt64(key string, value int64) *OperationBuilder {
	b.fields = append(b.fields, zap.Int64(key, value))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	fields := append([]zap.Field{zap.String("operation", b.operation)}, b.fields...)
	return &OperationTracer{
		logger:    b.logger.With(fields...),
		stepLevel: b.stepLevel,
		start:     time.Now(),
	}
}

// OperationTracer logs the lifecycle of a single operation.
type OperationTracer struct {
	logger    *zap.Logger
	stepLevel zapcore.Level
	start     time.Time
}

func (t *OperationTracer) Step(name string) *Event {
	return t.event(t.stepLevel, "step", zap.String("step", name))
}

func (t *OperationTracer) Warn(msg string) *Event {
	return t.event(zapcore.WarnLevel, msg)
}

func (t *OperationTracer) Error(err error) *Event {
	return t.event(zapcore.ErrorLevel, "operation failed", zap.Error(err), zap.Duration("elapsed", time.Since(t.start)))
}

func (t *OperationTracer) Success() *Event {
	return t.event(zapcore.InfoLevel, "operation succeeded", zap.Duration("elapsed", time.Since(t.start)))
}

func (t *OperationTracer) event(level zapcore.Level, msg string, fields ...zap.Field) *Event {
	return &Event{logger: t.logger, level: level, msg: msg, fields: fields}
}

// Event is a single log line. Nothing is written until Log is called.
type Event struct {
	logger *zap.Logger
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Event) WithString(key, value string) *Event {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Event) WithInt(key string, value int) *Event {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Event) WithInt64(key string, value int64) *Event {
	e.fields = append(e.fields, zap.Int64(key, value))
	return e
}

func (e *Event) WithDuration(key string, value time.Duration) *Event {
	e.fields = append(e.fields, zap.Duration(key, value))
	return e
}

func (e *Event) WithParam(key string, value any) *Event {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Event) Log() {
	if ce := e.logger.Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
