// Package reports derives the trial balance, profit and loss statement and
// account ledgers from posted voucher lines.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PayloadCache caches rendered report payloads.
type PayloadCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service builds reports.
type Service struct {
	reader   Reader
	opening  OpeningCache
	payloads PayloadCache
	logger   *slog.Logger
	builds   singleflight.Group
	now      func() time.Time

	driftSettle time.Duration
}

const defaultDriftSettle = 2 * time.Second

// NewService constructs Service. opening and payloads may be nil.
func NewService(reader Reader, opening OpeningCache, payloads PayloadCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, opening: opening, payloads: payloads, logger: logger, now: time.Now, driftSettle: defaultDriftSettle}
}

// WithDriftSettle sets the pause before suspected drift is read again.
func (s *Service) WithDriftSettle(d time.Duration) {
	if d >= 0 {
		s.driftSettle = d
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Today is the default report date.
func (s *Service) Today() time.Time {
	return periods.Day(s.now())
}

// TrialBalance returns the trial balance as of asOf. An unbalanced result is
// logged and still returned.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	asOf = periods.Day(asOf)
	tb, err := cachedBuild(ctx, s, func(ctx context.Context) (TrialBalance, error) {
		var (
			groups   []coa.Group
			accounts []coa.Account
			raw      map[int64]Totals
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) { groups, err = s.reader.ListGroups(gctx); return })
		g.Go(func() (err error) { accounts, err = s.reader.ListAccounts(gctx, true); return })
		g.Go(func() (err error) { raw, err = s.reader.PostedTotals(gctx, nil, asOf); return })
		if err := g.Wait(); err != nil {
			return TrialBalance{}, fmt.Errorf("reports: load trial balance: %w", err)
		}
		return BuildTrialBalance(asOf, groups, accounts, raw), nil
	}, "ledger:tb", asOf.Format(dateKey))
	if err != nil {
		return TrialBalance{}, err
	}
	if !tb.IsBalanced {
		s.logger.Error("trial balance out of balance",
			slog.String("as_of", asOf.Format(dateKey)),
			slog.String("total_debit", tb.TotalDebit.String()),
			slog.String("total_credit", tb.TotalCredit.String()))
	}
	return tb, nil
}

// ProfitAndLoss returns the income statement for [start, end].
func (s *Service) ProfitAndLoss(ctx context.Context, start, end time.Time) (ProfitAndLoss, error) {
	start, end = periods.Day(start), periods.Day(end)
	if end.Before(start) {
		return ProfitAndLoss{}, shared.NewValidationError("end_date", "end date must not be before start date")
	}
	return cachedBuild(ctx, s, func(ctx context.Context) (ProfitAndLoss, error) {
		var (
			groups   []coa.Group
			accounts []coa.Account
			raw      map[int64]Totals
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) { groups, err = s.reader.ListGroups(gctx); return })
		g.Go(func() (err error) { accounts, err = s.reader.ListAccounts(gctx, true); return })
		g.Go(func() (err error) { raw, err = s.reader.PostedTotals(gctx, &start, end); return })
		if err := g.Wait(); err != nil {
			return ProfitAndLoss{}, fmt.Errorf("reports: load profit and loss: %w", err)
		}
		return BuildProfitAndLoss(start, end, groups, accounts, raw), nil
	}, "ledger:pl", start.Format(dateKey), end.Format(dateKey))
}

// LedgerQuery selects an account ledger, optionally narrowed to a party.
type LedgerQuery struct {
	AccountID int64
	PartyID   *int64
	Start     *time.Time
	End       *time.Time
}

// Ledger reconstructs an account ledger with running balances.
func (s *Service) Ledger(ctx context.Context, q LedgerQuery) (Ledger, error) {
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return Ledger{}, shared.NewValidationError("end_date", "end date must not be before start date")
	}
	acc, err := s.reader.GetAccount(ctx, q.AccountID)
	if err != nil {
		return Ledger{}, err
	}

	var (
		opening = decimal.Zero
		lines   []PostedLine
	)
	g, gctx := errgroup.WithContext(ctx)
	if q.Start != nil {
		g.Go(func() (err error) {
			opening, err = s.OpeningBalance(gctx, acc, q.PartyID, *q.Start)
			return
		})
	}
	g.Go(func() (err error) {
		lines, err = s.reader.LedgerLines(gctx, acc.ID, q.PartyID, q.Start, q.End)
		return
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, fmt.Errorf("reports: ledger %d: %w", acc.ID, err)
	}

	ledger := BuildLedger(acc, opening, lines)
	ledger.PartyID = q.PartyID
	ledger.Start = q.Start
	ledger.End = q.End
	return ledger, nil
}

// OpeningBalance returns the nature-signed balance of posted lines dated
// strictly before date, served from the opening cache when possible.
func (s *Service) OpeningBalance(ctx context.Context, acc coa.Account, partyID *int64, date time.Time) (decimal.Decimal, error) {
	key := OpeningKey(acc.ID, partyID, date)
	if s.opening != nil {
		value, ok, err := s.opening.Get(ctx, key)
		if err != nil {
			s.logger.Warn("opening balance cache read failed", slog.String("key", key), slog.Any("error", err))
		} else if ok {
			return value, nil
		}
	}
	t, err := s.reader.OpeningTotals(ctx, acc.ID, partyID, date)
	if err != nil {
		return decimal.Zero, err
	}
	value := acc.Nature().SignedBalance(t.Debit, t.Credit)
	if s.opening != nil {
		if err := s.opening.Set(ctx, key, value); err != nil {
			s.logger.Warn("opening balance cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return value, nil
}

// Drift is an account whose stored balance disagrees with its propagated
// posted lines.
type Drift struct {
	AccountID  int64           `json:"account_id"`
	Number     string          `json:"number"`
	Stored     decimal.Decimal `json:"stored"`
	Recomputed decimal.Decimal `json:"recomputed"`
}

// SnapshotReader runs fn against one consistent view of the ledger.
type SnapshotReader interface {
	Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error
}

// BalanceDrift compares every account's current balance with the balance
// recomputed from propagated vouchers. Accounts and totals are read from one
// snapshot, and only accounts that still disagree on a second read after
// the settle delay are reported, so a propagation caught between its balance
// commit and its flag write is not mistaken for drift.
func (s *Service) BalanceDrift(ctx context.Context) ([]Drift, error) {
	first, err := s.driftPass(ctx)
	if err != nil || len(first) == 0 {
		return first, err
	}
	if s.driftSettle > 0 {
		timer := time.NewTimer(s.driftSettle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	second, err := s.driftPass(ctx)
	if err != nil {
		return nil, err
	}
	suspect := make(map[int64]bool, len(first))
	for _, d := range first {
		suspect[d.AccountID] = true
	}
	var out []Drift
	for _, d := range second {
		if suspect[d.AccountID] {
			out = append(out, d)
		}
	}
	if len(out) < len(first) {
		s.logger.Debug("balance drift cleared on re-check", slog.Int("suspect", len(first)), slog.Int("confirmed", len(out)))
	}
	return out, nil
}

func (s *Service) driftPass(ctx context.Context) ([]Drift, error) {
	var out []Drift
	err := snapshot(ctx, s.reader, func(ctx context.Context, r Reader) error {
		accounts, err := r.ListAccounts(ctx, false)
		if err != nil {
			return fmt.Errorf("reports: list accounts: %w", err)
		}
		raw, err := r.PropagatedTotals(ctx)
		if err != nil {
			return fmt.Errorf("reports: propagated totals: %w", err)
		}
		for _, acc := range accounts {
			t := raw[acc.ID]
			want := acc.Nature().SignedBalance(t.Debit, t.Credit)
			if !acc.CurrentBalance.Equal(want) {
				out = append(out, Drift{AccountID: acc.ID, Number: acc.Number, Stored: acc.CurrentBalance, Recomputed: want})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func snapshot(ctx context.Context, r Reader, fn func(context.Context, Reader) error) error {
	if sr, ok := r.(SnapshotReader); ok {
		return sr.Snapshot(ctx, fn)
	}
	return fn(ctx, r)
}

const dateKey = "2006-01-02"

// cachedBuild collapses concurrent identical builds and serves payloads from
// the report cache.
func cachedBuild[T any](ctx context.Context, s *Service, build func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	ch := s.builds.DoChan(strings.Join(parts, ":"), func() (any, error) {
		return loadPayload(context.WithoutCancel(ctx), s, build, parts)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// loadPayload reads through the payload cache. Cache failures fall back to
// building directly.
func loadPayload[T any](ctx context.Context, s *Service, build func(context.Context) (T, error), parts []string) (T, error) {
	if s.payloads == nil {
		return build(ctx)
	}
	var (
		built    bool
		value    T
		buildErr error
	)
	key, err := s.payloads.BuildKey(ctx, parts...)
	if err == nil {
		var out T
		err = s.payloads.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			built = true
			value, buildErr = build(ctx)
			return value, buildErr
		})
		if err == nil {
			return out, nil
		}
	}
	if built {
		if buildErr != nil {
			return value, buildErr
		}
		s.logger.Warn("report cache write failed", slog.String("report", parts[0]), slog.Any("error", err))
		return value, nil
	}
	s.logger.Warn("report cache unavailable", slog.String("report", parts[0]), slog.Any("error", err))
	return build(ctx)
}
