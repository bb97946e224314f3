package coa

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service manages account groups and accounts.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the chart of accounts service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateGroup validates and stores a new group.
func (s *Service) CreateGroup(ctx context.Context, in GroupInput) (Group, error) {
	g := Group{Name: in.Name, ParentID: in.ParentID, Description: in.Description}
	if err := ValidateGroup(g); err != nil {
		return Group{}, err
	}
	var out Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if g.ParentID != nil {
			if _, err := tx.GetGroup(ctx, *g.ParentID); err != nil {
				if errors.Is(err, shared.ErrGroupNotFound) {
					return shared.NewValidationError("parent_id", "parent group does not exist")
				}
				return err
			}
		}
		var err error
		out, err = tx.InsertGroup(ctx, g)
		return err
	})
	return out, err
}

// UpdateGroup renames or re-parents a group, refusing parent cycles.
func (s *Service) UpdateGroup(ctx context.Context, id int64, in GroupInput) (Group, error) {
	g := Group{ID: id, Name: in.Name, ParentID: in.ParentID, Description: in.Description}
	if err := ValidateGroup(g); err != nil {
		return Group{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		parents := make(map[int64]*int64, len(groups))
		found := false
		for _, existing := range groups {
			parents[existing.ID] = existing.ParentID
			if existing.ID == id {
				found = true
			}
		}
		if !found {
			return shared.ErrGroupNotFound
		}
		if g.ParentID != nil {
			if _, ok := parents[*g.ParentID]; !ok {
				return shared.NewValidationError("parent_id", "parent group does not exist")
			}
		}
		if CreatesCycle(parents, id, g.ParentID) {
			return shared.NewValidationError("parent_id", "parent assignment would create a cycle")
		}
		return tx.UpdateGroup(ctx, g)
	})
	if err != nil {
		return Group{}, err
	}
	return g, nil
}

// DeleteGroup removes a group without children or accounts.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		children, accounts, err := tx.GroupUsage(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 || accounts > 0 {
			return shared.ErrGroupInUse
		}
		return tx.DeleteGroup(ctx, id)
	})
}

// ListGroups returns all groups ordered by name.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		groups, err = tx.ListGroups(ctx)
		return err
	})
	return groups, err
}

// CreateAccount validates and stores a new account.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	acc := in.Account()
	if err := ValidateAccount(acc); err != nil {
		return Account{}, err
	}
	var out Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureGroup(ctx, tx, acc.GroupID); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertAccount(ctx, acc)
		return err
	})
	return out, err
}

// UpdateAccount replaces the editable fields of an account. The cached
// balance is owned by balance propagation and left untouched.
func (s *Service) UpdateAccount(ctx context.Context, id int64, in AccountInput) (Account, error) {
	acc := in.Account()
	acc.ID = id
	if err := ValidateAccount(acc); err != nil {
		return Account{}, err
	}
	var out Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if current.Type != acc.Type {
			lines, err := tx.AccountLineCount(ctx, id)
			if err != nil {
				return err
			}
			if lines > 0 {
				return shared.NewValidationError("type", "account type cannot change once voucher lines reference the account")
			}
		}
		if err := ensureGroup(ctx, tx, acc.GroupID); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		acc.CurrentBalance = current.CurrentBalance
		acc.BalanceLastUpdated = current.BalanceLastUpdated
		acc.CreatedAt = current.CreatedAt
		out = acc
		return nil
	})
	return out, err
}

// DeleteAccount removes an account no voucher line references.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, err := tx.AccountLineCount(ctx, id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return shared.ErrAccountInUse
		}
		return tx.DeleteAccount(ctx, id)
	})
}

// SetActive bulk (de)activates accounts and returns the number changed.
func (s *Service) SetActive(ctx context.Context, ids []int64, active bool) (int64, error) {
	if len(ids) == 0 {
		return 0, shared.NewValidationError("ids", "at least one account id is required")
	}
	var changed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		changed, err = tx.SetAccountsActive(ctx, ids, active)
		return err
	})
	return changed, err
}

// GetAccount loads a single account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acc, err = tx.GetAccount(ctx, id)
		return err
	})
	return acc, err
}

// ListAccounts retrieves chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, activeOnly)
		return err
	})
	return accounts, err
}

// BalanceAsOf derives the nature-signed balance from posted lines dated on or
// before asOf.
func (s *Service) BalanceAsOf(ctx context.Context, id int64, asOf time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		debit, credit, err := tx.PostedBalanceAsOf(ctx, id, asOf)
		if err != nil {
			return err
		}
		balance = acc.Nature().SignedBalance(debit, credit)
		return nil
	})
	return balance, err
}

func ensureGroup(ctx context.Context, tx TxRepository, id int64) error {
	if _, err := tx.GetGroup(ctx, id); err != nil {
		if errors.Is(err, shared.ErrGroupNotFound) {
			return shared.NewValidationError("group_id", "account group does not exist")
		}
		return err
	}
	return nil
}
