package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Propagator applies one posted voucher to account balances.
type Propagator interface {
	Propagate(ctx context.Context, voucherID int64) (balances.Result, error)
}

// PropagateJob consumes TaskBalancesPropagate.
type PropagateJob struct {
	Propagator Propagator
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewPropagateJob constructs the job handler.
func NewPropagateJob(propagator Propagator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PropagateJob {
	return &PropagateJob{Propagator: propagator, Logger: logger, Metrics: metrics}
}

// Handle executes one propagation. Failures that must not be retried are
// wrapped with asynq.SkipRetry.
func (j *PropagateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Propagator == nil {
		return errors.New("balance propagation: dependencies not configured")
	}
	payload, err := decodePropagate(task)
	if err != nil {
		j.log().Error("decode payload", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskBalancesPropagate)
	res, err := j.Propagator.Propagate(ctx, payload.VoucherID)
	if err != nil {
		if !balances.Retryable(err) {
			j.log().Error("propagation failed permanently", slog.Int64("voucher_id", payload.VoucherID), slog.Any("error", err))
			return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
		}
		j.log().Warn("propagation failed, will retry", slog.Int64("voucher_id", payload.VoucherID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().RecordPropagation(string(res.Outcome))
	return tracker.End(nil)
}

func (j *PropagateJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PropagateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalancesPropagate))
	}
	return slog.Default().With(slog.String("job", TaskBalancesPropagate))
}
