package coa

import (
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ValidateAccount enforces the type, section and control-account rules.
func ValidateAccount(a Account) error {
	verr := &shared.ValidationError{}
	if strings.TrimSpace(a.Number) == "" {
		verr.Add("number", "account number is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		verr.Add("name", "account name is required")
	}
	if a.GroupID == 0 {
		verr.Add("group_id", "account group is required")
	}
	if strings.TrimSpace(a.Currency) == "" {
		verr.Add("currency", "currency is required")
	}
	if !a.Type.Valid() {
		verr.Add("type", "unknown account type "+string(a.Type))
	}
	switch {
	case !a.PLSection.Valid():
		verr.Add("pl_section", "unknown P&L section "+string(a.PLSection))
	case a.Type.Valid() && a.Type.IsProfitAndLoss() && a.PLSection == PLSectionNone:
		verr.Add("pl_section", "income, expense and COGS accounts require a P&L section")
	case a.Type.Valid() && !a.Type.IsProfitAndLoss() && a.PLSection != PLSectionNone:
		verr.Add("pl_section", "balance sheet accounts must use section NONE")
	}
	switch {
	case a.IsControlAccount && a.ControlPartyType == nil:
		verr.Add("control_party_type", "control accounts require a party type")
	case a.IsControlAccount && !a.ControlPartyType.Valid():
		verr.Add("control_party_type", "unknown party type "+string(*a.ControlPartyType))
	case !a.IsControlAccount && a.ControlPartyType != nil:
		verr.Add("control_party_type", "party type is only allowed on control accounts")
	}
	return verr.OrNil()
}

// ValidateGroup checks the group's own fields.
func ValidateGroup(g Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return shared.NewValidationError("name", "group name is required")
	}
	if g.ParentID != nil && g.ID != 0 && *g.ParentID == g.ID {
		return shared.NewValidationError("parent_id", "a group cannot be its own parent")
	}
	return nil
}

// CreatesCycle reports whether setting groupID's parent to parentID would
// create a cycle. parents maps group id to parent id.
func CreatesCycle(parents map[int64]*int64, groupID int64, parentID *int64) bool {
	if parentID == nil {
		return false
	}
	seen := map[int64]bool{}
	for cur := parentID; cur != nil; cur = parents[*cur] {
		if *cur == groupID || seen[*cur] {
			return true
		}
		seen[*cur] = true
	}
	return false
}
