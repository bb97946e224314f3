package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// BalanceQueue schedules balance propagation for a posted voucher.
type BalanceQueue interface {
	EnqueuePropagation(ctx context.Context, voucherID int64) error
}

// WorkflowObserver is told about every workflow change after it commits.
type WorkflowObserver interface {
	VoucherTransition(status string)
}

// Service drives the voucher workflow. Every operation runs in one
// transaction; nothing is written when validation fails.
type Service struct {
	repo     RepositoryPort
	queue    BalanceQueue
	observer WorkflowObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the voucher engine.
func NewService(repo RepositoryPort, queue BalanceQueue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, queue: queue, logger: logger, now: time.Now}
}

// WithObserver registers o for committed workflow changes.
func (s *Service) WithObserver(o WorkflowObserver) {
	s.observer = o
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft stores a new DRAFT voucher.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput, userID int64) (Voucher, error) {
	if err := in.Validate(); err != nil {
		return Voucher{}, err
	}
	v := in.voucher()
	v.CreatedBy = userID
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.prepareDraft(ctx, tx, &v); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertVoucher(ctx, v)
		return err
	})
	return out, err
}

// UpdateDraft replaces the header fields and lines of a DRAFT voucher.
func (s *Service) UpdateDraft(ctx context.Context, id int64, in DraftInput) (Voucher, error) {
	if err := in.Validate(); err != nil {
		return Voucher{}, err
	}
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return &shared.InvalidStateError{Current: string(current.Status), Expected: []string{string(StatusDraft)}, Message: "only draft vouchers can be edited"}
		}
		v := in.voucher()
		v.ID = current.ID
		v.Number = current.Number
		v.CreatedBy = current.CreatedBy
		v.CreatedAt = current.CreatedAt
		v.ReversalOf = current.ReversalOf
		if err := s.prepareDraft(ctx, tx, &v); err != nil {
			return err
		}
		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		if v.Lines, err = tx.ReplaceLines(ctx, v.ID, v.Lines); err != nil {
			return err
		}
		v.UpdatedAt = s.now()
		out = v
		return nil
	})
	return out, err
}

// DeleteDraft removes a DRAFT voucher and its lines.
func (s *Service) DeleteDraft(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return &shared.InvalidStateError{Current: string(current.Status), Expected: []string{string(StatusDraft)}, Message: "only draft vouchers can be deleted"}
		}
		return tx.DeleteVoucher(ctx, id)
	})
}

// Get loads a voucher with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	var v Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		v, err = tx.GetVoucher(ctx, id)
		return err
	})
	return v, err
}

// List returns voucher headers matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var out []Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListVouchers(ctx, filter)
		return err
	})
	return out, err
}

// Approvals returns the voucher's audit trail in order.
func (s *Service) Approvals(ctx context.Context, id int64) ([]Approval, error) {
	var out []Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetVoucher(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.ListApprovals(ctx, id)
		return err
	})
	return out, err
}

// Submit validates a DRAFT voucher, assigns its number and moves it to
// PENDING_APPROVAL.
func (s *Service) Submit(ctx context.Context, id, userID int64) (Voucher, error) {
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != StatusDraft {
			return shared.NewInvalidStateError(string(v.Status), string(StatusDraft))
		}
		period, err := validateEssentials(ctx, tx, v)
		if err != nil {
			return err
		}
		if err := assignNumber(ctx, tx, &v, period); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, &v, StatusPendingApproval, ActionSubmitted, userID, ""); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.logger.Info("voucher submitted", slog.Int64("voucher_id", out.ID), slog.String("number", out.NumberOrEmpty()))
	s.observe(out)
	return out, nil
}

// ApproveAndPost posts a PENDING_APPROVAL or REJECTED voucher and schedules
// balance propagation once the posting has committed.
func (s *Service) ApproveAndPost(ctx context.Context, id, userID int64, comments string) (Voucher, error) {
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != StatusPendingApproval && v.Status != StatusRejected {
			return shared.NewInvalidStateError(string(v.Status), string(StatusPendingApproval), string(StatusRejected))
		}
		if _, err := validateEssentials(ctx, tx, v); err != nil {
			return err
		}
		if v.Number == nil || *v.Number == "" {
			return shared.NewValidationError("voucher_number", "voucher number must be assigned before posting")
		}
		if err := s.transition(ctx, tx, &v, StatusPosted, ActionApproved, userID, strings.TrimSpace(comments)); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.logger.Info("voucher posted", slog.Int64("voucher_id", out.ID), slog.String("number", out.NumberOrEmpty()))
	s.observe(out)
	s.enqueue(ctx, out)
	return out, nil
}

// Reject sends a PENDING_APPROVAL voucher back with mandatory comments.
func (s *Service) Reject(ctx context.Context, id, userID int64, comments string) (Voucher, error) {
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return Voucher{}, shared.NewValidationError("comments", "comments are required when rejecting a voucher")
	}
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != StatusPendingApproval {
			return shared.NewInvalidStateError(string(v.Status), string(StatusPendingApproval))
		}
		if err := s.transition(ctx, tx, &v, StatusRejected, ActionRejected, userID, comments); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.logger.Info("voucher rejected", slog.Int64("voucher_id", out.ID))
	s.observe(out)
	return out, nil
}

// CreateReversingVoucher builds a voucher mirroring a POSTED one with every
// line's side flipped. With PostImmediately the reversal is numbered and
// posted in the same transaction.
func (s *Service) CreateReversingVoucher(ctx context.Context, id, userID int64, in ReverseInput) (Voucher, error) {
	if in.Type != "" && !in.Type.Valid() {
		return Voucher{}, shared.NewValidationError("voucher_type", fmt.Sprintf("unknown voucher type %q", in.Type))
	}
	date := periods.Day(s.now())
	if in.ReversalDate != nil {
		date = periods.Day(*in.ReversalDate)
	}
	var out Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return &shared.InvalidStateError{Current: string(original.Status), Expected: []string{string(StatusPosted)}, Message: "only posted vouchers can be reversed"}
		}
		if len(original.Lines) == 0 {
			return &shared.WorkflowError{Message: "original voucher has no lines to reverse"}
		}
		period, err := tx.FindPeriodByDate(ctx, date)
		if err != nil {
			if errors.Is(err, shared.ErrPeriodNotFound) {
				return shared.NewValidationError("reversal_date", fmt.Sprintf("no accounting period covers %s", date.Format("2006-01-02")))
			}
			return err
		}
		if period.Locked {
			return &shared.PeriodLockedError{Period: period.String()}
		}
		accounts, err := tx.GetAccounts(ctx, original.AccountIDs())
		if err != nil {
			return err
		}
		if err := CheckAccounts(original, accounts); err != nil {
			return err
		}

		rev := reversalOf(original, period, date, in.Type, userID)
		rev, err = tx.InsertVoucher(ctx, rev)
		if err != nil {
			return err
		}
		if !in.PostImmediately {
			if _, err := tx.InsertApproval(ctx, Approval{
				VoucherID:  rev.ID,
				UserID:     userID,
				Action:     ActionCommented,
				FromStatus: StatusDraft,
				ToStatus:   StatusDraft,
				Comments:   "Reversal draft created for " + original.NumberOrEmpty(),
			}); err != nil {
				return err
			}
			out = rev
			return nil
		}
		if _, err := validateEssentials(ctx, tx, rev); err != nil {
			return err
		}
		if err := assignNumber(ctx, tx, &rev, period); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, &rev, StatusPosted, ActionApproved, userID, "Reversal of "+original.NumberOrEmpty()+" posted immediately"); err != nil {
			return err
		}
		out = rev
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.logger.Info("reversing voucher created",
		slog.Int64("voucher_id", out.ID),
		slog.Int64("original_id", id),
		slog.String("status", string(out.Status)))
	s.observe(out)
	if out.Status == StatusPosted {
		s.enqueue(ctx, out)
	}
	return out, nil
}

func reversalOf(original Voucher, period periods.Period, date time.Time, voucherType Type, userID int64) Voucher {
	if voucherType == "" {
		voucherType = original.Type
	}
	number := original.NumberOrEmpty()
	originalID := original.ID
	rev := Voucher{
		Type:          voucherType,
		Status:        StatusDraft,
		Date:          date,
		EffectiveDate: date,
		PartyID:       original.PartyID,
		PeriodID:      period.ID,
		Narration:     fmt.Sprintf("Reversal of Voucher: %s. Original: %s", number, original.Narration),
		Reference:     "Reversal of " + number,
		ReversalOf:    &originalID,
		CreatedBy:     userID,
		Lines:         make([]Line, 0, len(original.Lines)),
	}
	for _, l := range original.Lines {
		rev.Lines = append(rev.Lines, Line{
			AccountID: l.AccountID,
			DrCr:      l.DrCr.Flip(),
			Amount:    l.Amount,
			Narration: "Reversal - " + l.Narration,
		})
	}
	return rev
}

// prepareDraft resolves the period and checks references that must exist
// even on a draft.
func (s *Service) prepareDraft(ctx context.Context, tx TxRepository, v *Voucher) error {
	if v.PeriodID == 0 {
		period, err := tx.FindPeriodByDate(ctx, v.Date)
		if err != nil {
			if errors.Is(err, shared.ErrPeriodNotFound) {
				return shared.NewValidationError("date", fmt.Sprintf("no accounting period covers %s", v.Date.Format("2006-01-02")))
			}
			return err
		}
		v.PeriodID = period.ID
	} else if _, err := tx.GetPeriod(ctx, v.PeriodID); err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			return shared.NewValidationError("accounting_period_id", "accounting period does not exist")
		}
		return err
	}
	if v.PartyID != nil {
		party, err := tx.GetParty(ctx, *v.PartyID)
		if err != nil {
			if errors.Is(err, shared.ErrPartyNotFound) {
				return shared.NewValidationError("party_id", "party does not exist")
			}
			return err
		}
		if !party.IsActive {
			return shared.NewValidationError("party_id", fmt.Sprintf("party %s is inactive", party.Name))
		}
	}
	accounts, err := tx.GetAccounts(ctx, v.AccountIDs())
	if err != nil {
		return err
	}
	verr := &shared.ValidationError{}
	for i, line := range v.Lines {
		if _, ok := accounts[line.AccountID]; !ok {
			verr.Add(fmt.Sprintf("lines[%d].account_id", i), fmt.Sprintf("account %d does not exist", line.AccountID))
		}
	}
	return verr.OrNil()
}

func assignNumber(ctx context.Context, tx TxRepository, v *Voucher, period periods.Period) error {
	if v.Number != nil && *v.Number != "" {
		return nil
	}
	number, err := sequence.Next(ctx, tx, sequence.Scope{VoucherType: string(v.Type), Period: period})
	if err != nil {
		if errors.Is(err, shared.ErrSequenceMissing) {
			return &shared.WorkflowError{Message: "voucher numbering failed", Err: err}
		}
		return err
	}
	v.Number = &number
	return nil
}

func (s *Service) transition(ctx context.Context, tx TxRepository, v *Voucher, to Status, action Action, userID int64, comments string) error {
	from := v.Status
	if err := tx.UpdateWorkflow(ctx, v.ID, to, v.Number); err != nil {
		return err
	}
	if _, err := tx.InsertApproval(ctx, Approval{
		VoucherID:  v.ID,
		UserID:     userID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Comments:   comments,
	}); err != nil {
		return err
	}
	now := s.now()
	v.Status = to
	v.UpdatedAt = now
	if to == StatusPosted {
		v.PostedAt = &now
	}
	return nil
}

func (s *Service) observe(v Voucher) {
	if s.observer != nil {
		s.observer.VoucherTransition(string(v.Status))
	}
}

func (s *Service) enqueue(ctx context.Context, v Voucher) {
	if s.queue == nil {
		s.logger.Log(ctx, shared.LevelCritical, "balance queue not configured; posted voucher awaits propagation",
			slog.Int64("voucher_id", v.ID))
		return
	}
	if err := s.queue.EnqueuePropagation(ctx, v.ID); err != nil {
		s.logger.Log(ctx, shared.LevelCritical, "enqueue balance propagation failed; posted voucher awaits propagation",
			slog.Int64("voucher_id", v.ID),
			slog.String("number", v.NumberOrEmpty()),
			slog.Any("error", err))
	}
}
