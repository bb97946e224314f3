package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Integrity violation kinds.
const (
	ViolationUnbalanced = "unbalanced_trial_balance"
	ViolationStale      = "unpropagated_voucher"
	ViolationDrift      = "balance_drift"
)

// LedgerReports is the report surface the integrity check reads.
type LedgerReports interface {
	Today() time.Time
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
	BalanceDrift(ctx context.Context) ([]reports.Drift, error)
}

// UnpropagatedLister finds posted vouchers whose balances were never applied.
type UnpropagatedLister interface {
	ListUnpropagated(ctx context.Context, cutoff time.Time) ([]vouchers.Voucher, error)
}

// IntegrityReport summarises one integrity run.
type IntegrityReport struct {
	AsOf        time.Time       `json:"as_of"`
	Balanced    bool            `json:"balanced"`
	TotalDebit  string          `json:"total_debit"`
	TotalCredit string          `json:"total_credit"`
	Stale       []int64         `json:"stale_voucher_ids"`
	Drift       []reports.Drift `json:"drift"`
}

// Healthy reports whether no violation was found.
func (r IntegrityReport) Healthy() bool {
	return r.Balanced && len(r.Stale) == 0 && len(r.Drift) == 0
}

// GLIntegrityJob checks ledger invariants without mutating data.
type GLIntegrityJob struct {
	Reports  LedgerReports
	Vouchers UnpropagatedLister
	Grace    time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(reportSvc LedgerReports, lister UnpropagatedLister, grace time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Reports:  reportSvc,
		Vouchers: lister,
		Grace:    grace,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs the check as an asynq task.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// Run performs the check and logs every violation found.
func (j *GLIntegrityJob) Run(ctx context.Context) (IntegrityReport, error) {
	if j == nil || j.Reports == nil || j.Vouchers == nil {
		return IntegrityReport{}, errors.New("gl integrity: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskGLIntegrity)
	logger := j.log()

	asOf := j.Reports.Today()
	tb, err := j.Reports.TrialBalance(ctx, asOf)
	if err != nil {
		logger.Error("build trial balance", slog.Any("error", err))
		return IntegrityReport{}, tracker.End(err)
	}
	report := IntegrityReport{
		AsOf:        asOf,
		Balanced:    tb.IsBalanced,
		TotalDebit:  tb.TotalDebit.String(),
		TotalCredit: tb.TotalCredit.String(),
	}
	if !tb.IsBalanced {
		j.metrics().AddViolations(ViolationUnbalanced, 1)
	}

	stale, err := j.Vouchers.ListUnpropagated(ctx, j.now().Add(-j.Grace))
	if err != nil {
		logger.Error("list unpropagated vouchers", slog.Any("error", err))
		return report, tracker.End(err)
	}
	for _, v := range stale {
		report.Stale = append(report.Stale, v.ID)
		logger.Warn("posted voucher balances not propagated",
			slog.Int64("voucher_id", v.ID),
			slog.String("number", v.NumberOrEmpty()))
	}
	j.metrics().AddViolations(ViolationStale, len(stale))

	report.Drift, err = j.Reports.BalanceDrift(ctx)
	if err != nil {
		logger.Error("compute balance drift", slog.Any("error", err))
		return report, tracker.End(err)
	}
	for _, d := range report.Drift {
		logger.Log(ctx, shared.LevelCritical, "account balance drift detected",
			slog.Int64("account_id", d.AccountID),
			slog.String("number", d.Number),
			slog.String("stored", d.Stored.String()),
			slog.String("recomputed", d.Recomputed.String()))
	}
	j.metrics().AddViolations(ViolationDrift, len(report.Drift))

	logger.Info("GL integrity check executed",
		slog.Bool("healthy", report.Healthy()),
		slog.Int("stale", len(report.Stale)),
		slog.Int("drift", len(report.Drift)))
	return report, tracker.End(nil)
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *GLIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
