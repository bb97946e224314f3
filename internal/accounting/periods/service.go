package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service governs fiscal years and the locking of accounting periods.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFiscalYear stores a new, inactive, open fiscal year.
func (s *Service) CreateFiscalYear(ctx context.Context, in FiscalYearInput) (FiscalYear, error) {
	verr := &shared.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "name is required")
	}
	if in.EndDate.Before(in.StartDate) {
		verr.Add("end_date", "end date must not precede start date")
	}
	if err := verr.OrNil(); err != nil {
		return FiscalYear{}, err
	}
	var out FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.InsertFiscalYear(ctx, FiscalYear{
			Name:      strings.TrimSpace(in.Name),
			StartDate: Day(in.StartDate),
			EndDate:   Day(in.EndDate),
			Status:    FiscalYearOpen,
		})
		return err
	})
	return out, err
}

// ActivateFiscalYear makes id the single active fiscal year.
func (s *Service) ActivateFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	var out FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fy, err := tx.GetFiscalYearForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if fy.Status == FiscalYearClosed {
			return shared.NewInvalidStateError(string(fy.Status), string(FiscalYearOpen), string(FiscalYearLocked))
		}
		if err := tx.ActivateFiscalYear(ctx, id); err != nil {
			return err
		}
		fy.IsActive = true
		out = fy
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.logger.Info("fiscal year activated", slog.Int64("fiscal_year_id", id), slog.String("name", out.Name))
	return out, nil
}

// CloseFiscalYear marks the year CLOSED once every period in it is locked.
func (s *Service) CloseFiscalYear(ctx context.Context, id, userID int64) (FiscalYear, error) {
	var out FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fy, err := tx.GetFiscalYearForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if fy.Status == FiscalYearClosed {
			return &shared.InvalidStateError{Current: string(fy.Status), Expected: []string{string(FiscalYearOpen), string(FiscalYearLocked)},
				Message: "fiscal year already closed"}
		}
		open, err := tx.CountUnlockedPeriods(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return shared.NewValidationError("periods", fmt.Sprintf("%d accounting period(s) are still unlocked", open))
		}
		at := s.now().UTC()
		if err := tx.CloseFiscalYear(ctx, id, userID, at); err != nil {
			return err
		}
		fy.Status = FiscalYearClosed
		fy.IsActive = false
		fy.ClosedBy = &userID
		fy.ClosedAt = &at
		out = fy
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.logger.Info("fiscal year closed", slog.Int64("fiscal_year_id", id), slog.Int64("closed_by", userID))
	return out, nil
}

// CreatePeriod stores an unlocked period inside its fiscal year.
func (s *Service) CreatePeriod(ctx context.Context, in PeriodInput) (Period, error) {
	if in.EndDate.Before(in.StartDate) {
		return Period{}, shared.NewValidationError("end_date", "end date must not precede start date")
	}
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fy, err := tx.GetFiscalYear(ctx, in.FiscalYearID)
		if err != nil {
			return err
		}
		if fy.Status == FiscalYearClosed {
			return shared.NewValidationError("fiscal_year_id", "fiscal year is closed")
		}
		if Day(in.StartDate).Before(fy.StartDate) || Day(in.EndDate).After(fy.EndDate) {
			return shared.NewValidationError("start_date", "period must fall within its fiscal year")
		}
		out, err = tx.InsertPeriod(ctx, Period{
			FiscalYearID: fy.ID,
			Name:         strings.TrimSpace(in.Name),
			StartDate:    Day(in.StartDate),
			EndDate:      Day(in.EndDate),
		})
		return err
	})
	return out, err
}

// LockPeriod prevents further postings into the period.
func (s *Service) LockPeriod(ctx context.Context, id, userID int64) (Period, error) {
	return s.setLocked(ctx, id, userID, true)
}

// UnlockPeriod reopens a locked period unless its fiscal year is closed.
func (s *Service) UnlockPeriod(ctx context.Context, id, userID int64) (Period, error) {
	return s.setLocked(ctx, id, userID, false)
}

func (s *Service) setLocked(ctx context.Context, id, userID int64, locked bool) (Period, error) {
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPeriodForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Locked == locked {
			state := "unlocked"
			if locked {
				state = "locked"
			}
			return &shared.WorkflowError{Message: fmt.Sprintf("period %s is already %s", p, state)}
		}
		if !locked {
			fy, err := tx.GetFiscalYear(ctx, p.FiscalYearID)
			if err != nil {
				return err
			}
			if fy.Status == FiscalYearClosed {
				return shared.NewValidationError("fiscal_year_id", "cannot unlock a period of a closed fiscal year")
			}
		}
		if err := tx.SetPeriodLocked(ctx, id, locked); err != nil {
			return err
		}
		p.Locked = locked
		out = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("accounting period lock changed", slog.Int64("period_id", id), slog.Bool("locked", locked), slog.Int64("user_id", userID))
	return out, nil
}

// FindForDate returns the period covering date, locked or not.
func (s *Service) FindForDate(ctx context.Context, date time.Time) (Period, error) {
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.FindPeriodByDate(ctx, date)
		return err
	})
	return out, err
}

// FindOpenForDate returns the unlocked period covering date.
func (s *Service) FindOpenForDate(ctx context.Context, date time.Time) (Period, error) {
	p, err := s.FindForDate(ctx, date)
	if err != nil {
		return Period{}, err
	}
	if p.Locked {
		return Period{}, &shared.PeriodLockedError{Period: p.String()}
	}
	return p, nil
}

// ListFiscalYears returns every fiscal year, newest first.
func (s *Service) ListFiscalYears(ctx context.Context) ([]FiscalYear, error) {
	var out []FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListFiscalYears(ctx)
		return err
	})
	return out, err
}

// ListPeriods returns the periods of a fiscal year in date order.
func (s *Service) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	var out []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListPeriods(ctx, fiscalYearID)
		return err
	})
	return out, err
}
