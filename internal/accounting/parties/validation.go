package parties

import (
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// requiresControl lists the party types that must carry a control account
// while active.
var requiresControl = map[coa.PartyType]bool{
	coa.PartyTypeCustomer: true,
	coa.PartyTypeSupplier: true,
}

// Validate checks the party against its control account; control may be nil
// when the party has none.
func Validate(p Party, control *coa.Account) error {
	verr := &shared.ValidationError{}
	if strings.TrimSpace(p.Name) == "" {
		verr.Add("name", "name is required")
	}
	if !p.Type.Valid() {
		verr.Add("type", "unknown party type "+string(p.Type))
	}
	if p.CreditLimit.IsNegative() {
		verr.Add("credit_limit", "credit limit cannot be negative")
	}
	if p.IsActive && requiresControl[p.Type] && p.ControlAccountID == nil {
		verr.Add("control_account_id", "active customers and suppliers require a control account")
	}
	if p.ControlAccountID != nil && control != nil {
		switch {
		case !control.IsControlAccount:
			verr.Add("control_account_id", "account "+control.Number+" is not a control account")
		case control.ControlPartyType == nil || *control.ControlPartyType != p.Type:
			verr.Add("control_account_id", "control account "+control.Number+" does not match party type "+string(p.Type))
		}
	}
	return verr.OrNil()
}
