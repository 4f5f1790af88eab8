package core

import (
	"github.com/cenkalti/backoff/v4"

	"idcore/internal/optimistic"
	"idcore/internal/transition"
	"idcore/internal/upgrade"
)

type serviceOptions struct {
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	budget     int
	backoff    func() backoff.BackOff
	migrations []upgrade.Migration
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:      ClockFunc(nil),
		logger:     noopLogger{},
		audit:      noopAuditRecorder{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		budget:     transition.DefaultRetryBudget,
		migrations: upgrade.DefaultMigrations(),
	}
}

// WithClock overrides the time source used for authorization stamps and
// operation timing.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger. The logger is shared with the
// executor and the upgrade runner.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(r AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if r != nil {
			o.audit = r
		}
	}
}

// WithMetricsRecorder sets the metrics sink. A recorder that also implements
// optimistic.Observer receives executor conflict statistics.
func WithMetricsRecorder(r MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithRetryBudget sets the attempt index at which updates give up.
func WithRetryBudget(budget int) ServiceOption {
	return func(o *serviceOptions) {
		if budget > 0 {
			o.budget = budget
		}
	}
}

// WithBackOff sets the wait policy between conflicting attempts.
func WithBackOff(factory func() backoff.BackOff) ServiceOption {
	return func(o *serviceOptions) {
		o.backoff = factory
	}
}

// WithMigrations replaces the migrations applied on load. Passing none
// disables upgrades.
func WithMigrations(migrations ...upgrade.Migration) ServiceOption {
	return func(o *serviceOptions) {
		o.migrations = migrations
	}
}

func (o serviceOptions) executorOptions() []optimistic.Option {
	opts := []optimistic.Option{
		optimistic.WithRetryBudget(o.budget),
		optimistic.WithLogger(o.logger),
		optimistic.WithBackOff(o.backoff),
	}
	if obs, ok := o.metrics.(optimistic.Observer); ok {
		opts = append(opts, optimistic.WithObserver(obs))
	}
	return opts
}
