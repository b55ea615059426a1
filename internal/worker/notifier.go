package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/jobs"
)

// Outcome describes a job that reached a terminal state.
type Outcome struct {
	Job            *jobs.Job
	State          jobs.State
	TemplateStatus string
	Result         map[string]any
	Err            *apperr.Error
	Duration       time.Duration
}

// Notifier is told about finished jobs.
// Implementations: SNS lifecycle events, SES failure alerts, logs.
type Notifier interface {
	Notify(ctx context.Context, o *Outcome) error
	Wants(o *Outcome) bool
}

// MultiNotifier fans an outcome out to every notifier that wants it.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier combines notifiers. Nil entries are dropped.
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify calls every interested notifier, even after one fails.
func (m *MultiNotifier) Notify(ctx context.Context, o *Outcome) error {
	var errs []error
	for _, n := range m.notifiers {
		if !n.Wants(o) {
			continue
		}
		if err := n.Notify(ctx, o); err != nil {
			m.logger.Warn("notifier failed",
				zap.String("job_id", o.Job.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wants reports whether any notifier wants the outcome.
func (m *MultiNotifier) Wants(o *Outcome) bool {
	for _, n := range m.notifiers {
		if n.Wants(o) {
			return true
		}
	}
	return false
}

// LogNotifier logs outcomes (for development)
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, o *Outcome) error {
	n.logger.Info("job outcome",
		zap.String("job_id", o.Job.ID.String()),
		zap.String("kind", string(o.Job.Kind)),
		zap.String("state", string(o.State)),
		zap.String("template_status", o.TemplateStatus),
		zap.Any("result", o.Result),
	)
	return nil
}

func (n *LogNotifier) Wants(*Outcome) bool { return true }
