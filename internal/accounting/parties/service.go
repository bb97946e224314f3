package parties

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service manages parties and derives their balances.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the party service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create validates and stores a party.
func (s *Service) Create(ctx context.Context, in Input) (Party, error) {
	p := in.Party()
	var out Party
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := validateWithControl(ctx, tx, p); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertParty(ctx, p)
		return err
	})
	return out, err
}

// Update replaces a party's editable fields.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Party, error) {
	p := in.Party()
	p.ID = id
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetParty(ctx, id)
		if err != nil {
			return err
		}
		if err := validateWithControl(ctx, tx, p); err != nil {
			return err
		}
		p.CreatedAt = current.CreatedAt
		return tx.UpdateParty(ctx, p)
	})
	if err != nil {
		return Party{}, err
	}
	return p, nil
}

// Get loads a party.
func (s *Service) Get(ctx context.Context, id int64) (Party, error) {
	var p Party
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.GetParty(ctx, id)
		return err
	})
	return p, err
}

// List returns parties filtered by type (empty for all).
func (s *Service) List(ctx context.Context, partyType coa.PartyType, activeOnly bool) ([]Party, error) {
	var out []Party
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListParties(ctx, partyType, activeOnly)
		return err
	})
	return out, err
}

// OutstandingBalance derives the party balance from posted lines on its
// control account, signed by the account's nature. A nil upTo includes all
// posted history.
func (s *Service) OutstandingBalance(ctx context.Context, id int64, upTo *time.Time) (Balance, error) {
	var bal Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bal, _, err = outstanding(ctx, tx, id, upTo)
		return err
	})
	return bal, err
}

// CheckCreditLimit rejects amount when it would take a debit-nature party
// over its credit limit. Credit-nature control accounts are not checked.
func (s *Service) CheckCreditLimit(ctx context.Context, id int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("amount", "amount must be positive")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetParty(ctx, id)
		if err != nil {
			return err
		}
		if !p.CreditLimit.IsPositive() || p.ControlAccountID == nil {
			return nil
		}
		bal, control, err := outstanding(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		if control.Nature() != coa.NatureDebit {
			s.logger.Debug("credit limit not evaluated for credit-nature control account",
				slog.Int64("party_id", id), slog.String("account", control.Number))
			return nil
		}
		potential := bal.Outstanding.Add(amount)
		if potential.GreaterThan(p.CreditLimit) {
			return shared.NewValidationError("amount", fmt.Sprintf("credit limit %s exceeded: outstanding %s + %s = %s",
				p.CreditLimit.StringFixed(2), bal.Outstanding.StringFixed(2), amount.StringFixed(2), potential.StringFixed(2)))
		}
		return nil
	})
}

// CreditStatus reports the party's position against its limit.
func (s *Service) CreditStatus(ctx context.Context, id int64) (CreditStatus, error) {
	var status CreditStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetParty(ctx, id)
		if err != nil {
			return err
		}
		if !p.CreditLimit.IsPositive() || p.ControlAccountID == nil {
			status = CreditNoLimit
			return nil
		}
		bal, control, err := outstanding(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		status = CreditWithinLimit
		// Only receivable-style control accounts are measured against the limit.
		if control.Nature() == coa.NatureDebit && bal.Outstanding.GreaterThan(p.CreditLimit) {
			status = CreditOverLimit
		}
		return nil
	})
	return status, err
}

func outstanding(ctx context.Context, tx TxRepository, id int64, upTo *time.Time) (Balance, coa.Account, error) {
	p, err := tx.GetParty(ctx, id)
	if err != nil {
		return Balance{}, coa.Account{}, err
	}
	if p.ControlAccountID == nil {
		return Balance{PartyID: id, AsOf: upTo}, coa.Account{}, nil
	}
	control, err := tx.GetAccount(ctx, *p.ControlAccountID)
	if err != nil {
		return Balance{}, coa.Account{}, err
	}
	debit, credit, err := tx.ControlTotals(ctx, id, control.ID, upTo)
	if err != nil {
		return Balance{}, coa.Account{}, err
	}
	return Balance{
		PartyID:          id,
		ControlAccountID: control.ID,
		AsOf:             upTo,
		Debit:            debit,
		Credit:           credit,
		Outstanding:      control.Nature().SignedBalance(debit, credit),
	}, control, nil
}

func validateWithControl(ctx context.Context, tx TxRepository, p Party) error {
	var control *coa.Account
	if p.ControlAccountID != nil {
		acc, err := tx.GetAccount(ctx, *p.ControlAccountID)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return shared.NewValidationError("control_account_id", "control account does not exist")
			}
			return err
		}
		control = &acc
	}
	return Validate(p, control)
}
