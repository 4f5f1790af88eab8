// Package core is the numbering service facade: it loads entities through
// the upgrade runner and applies allocation, assignment, sync and
// authorization transitions through the optimistic executor, reporting each
// operation to the configured logger, audit, metrics and tracing sinks.
package core

import (
	"context"
	"errors"
	"time"

	"idcore/internal/logger"
)

// Logger is the structured logging contract used by the service.
type Logger = logger.Logger

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock. A nil ClockFunc reports the
// current UTC time.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// Operation names reported to audit, metrics and tracing sinks.
const (
	OpLoad             = "load"
	OpNextID           = "next_id"
	OpAddAssignment    = "add_assignment"
	OpRemoveAssignment = "remove_assignment"
	OpSyncConsumptions = "sync_consumptions"
	OpAuthorize        = "authorize"
	OpDeauthorize      = "deauthorize"
	OpUpgradeAll       = "upgrade_all"
)

// AuditStatus captures the result of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string
	EntityID  string
	Key       string
	Status    AuditStatus
	Error     string
	Attempts  int
	Timestamp time.Time
	Duration  time.Duration
}

// AuditRecorder receives audit entries for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

var (
	// ErrConflict is returned when an update kept losing to concurrent
	// writers until the retry budget ran out.
	ErrConflict = errors.New("entity update conflict")
	// ErrInvalidEntityID is returned for empty or malformed entity ids.
	ErrInvalidEntityID = errors.New("invalid entity id")
	// ErrListUnsupported is returned by UpgradeAll when the store cannot
	// enumerate entities.
	ErrListUnsupported = errors.New("entity store cannot list entities")
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
