package coa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk chart of accounts table.
type SeedFile struct {
	Groups          []SeedGroup          `yaml:"groups"`
	ControlAccounts map[string]PartyType `yaml:"control_accounts"`
}

// SeedGroup lists the accounts under one "<Primary> - <Sub>" group.
type SeedGroup struct {
	Name     string        `yaml:"name"`
	Accounts []SeedAccount `yaml:"accounts"`
}

// SeedAccount is a single account row keyed by number.
type SeedAccount struct {
	Number string `yaml:"number"`
	Name   string `yaml:"name"`
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	GroupsCreated   int
	GroupsExisting  int
	AccountsCreated int
	AccountsUpdated int
	Skipped         []string
}

var conceptTypes = map[string]AccountType{
	"Assets":             AccountTypeAsset,
	"Liabilities":        AccountTypeLiability,
	"Equity":             AccountTypeEquity,
	"Income":             AccountTypeIncome,
	"Cost of Goods Sold": AccountTypeCOGS,
	"Expenses":           AccountTypeExpense,
	"Receivables":        AccountTypeAsset,
	"Payables":           AccountTypeLiability,
	"Taxation":           AccountTypeLiability,
}

// LoadSeedFile reads a YAML seed table from path.
func LoadSeedFile(path string) (SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("coa: open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes a YAML seed table.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var file SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return SeedFile{}, fmt.Errorf("coa: decode seed file: %w", err)
	}
	seen := map[string]string{}
	for _, g := range file.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return SeedFile{}, fmt.Errorf("coa: seed group without name")
		}
		for _, a := range g.Accounts {
			num := strings.TrimSpace(a.Number)
			if prev, ok := seen[num]; ok {
				return SeedFile{}, fmt.Errorf("coa: account %s listed in %q and %q", num, prev, g.Name)
			}
			seen[num] = g.Name
		}
	}
	for num, pt := range file.ControlAccounts {
		if !pt.Valid() {
			return SeedFile{}, fmt.Errorf("coa: control account %s has unknown party type %q", num, pt)
		}
	}
	return file, nil
}

// PrimaryGroupName extracts the top-level concept from a group key, e.g.
// "Assets - Current Assets" -> "Assets".
func PrimaryGroupName(key string) string {
	name := key
	for _, sep := range []string{" - ", " (", " / "} {
		if idx := strings.Index(name, sep); idx >= 0 {
			name = name[:idx]
		}
	}
	return strings.TrimSpace(name)
}

// SeedSection picks the P&L section for a seeded account from its type and name.
func SeedSection(t AccountType, name string) PLSection {
	lower := strings.ToLower(name)
	switch t {
	case AccountTypeExpense:
		if strings.Contains(lower, "tax") {
			return PLSectionTaxExpense
		}
		if strings.Contains(lower, "interest expense") {
			return PLSectionOtherExpense
		}
	case AccountTypeIncome:
		if strings.Contains(lower, "interest income") {
			return PLSectionOtherIncome
		}
	}
	return DefaultPLSection(t)
}

// Seeder upserts a seed table inside one transaction.
type Seeder struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(repo RepositoryPort, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{repo: repo, logger: logger}
}

// Seed applies file idempotently: groups by name, accounts by number.
func (s *Seeder) Seed(ctx context.Context, file SeedFile) (SeedResult, error) {
	var result SeedResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = SeedResult{}
		groupIDs := map[string]int64{}
		upsert := func(name string, parent *int64) (int64, error) {
			if id, ok := groupIDs[name]; ok {
				return id, nil
			}
			id, created, err := tx.UpsertGroup(ctx, name, parent)
			if err != nil {
				return 0, fmt.Errorf("coa: upsert group %q: %w", name, err)
			}
			if created {
				result.GroupsCreated++
			} else {
				result.GroupsExisting++
			}
			groupIDs[name] = id
			return id, nil
		}

		for _, g := range file.Groups {
			primary := PrimaryGroupName(g.Name)
			parentID, err := upsert(primary, nil)
			if err != nil {
				return err
			}
			groupID := parentID
			if g.Name != primary {
				if groupID, err = upsert(g.Name, &parentID); err != nil {
					return err
				}
			}
			accType, ok := conceptTypes[primary]
			if !ok {
				s.logger.Warn("undetermined account type, skipping group accounts", slog.String("group", g.Name))
				result.Skipped = append(result.Skipped, g.Name)
				continue
			}
			for _, row := range g.Accounts {
				acc := Account{
					Number:             strings.TrimSpace(row.Number),
					Name:               strings.TrimSpace(row.Name),
					GroupID:            groupID,
					Type:               accType,
					PLSection:          SeedSection(accType, row.Name),
					Currency:           DefaultCurrency,
					IsActive:           true,
					AllowDirectPosting: true,
				}
				if pt, ok := file.ControlAccounts[acc.Number]; ok {
					pt := pt
					acc.IsControlAccount = true
					acc.ControlPartyType = &pt
				}
				if err := ValidateAccount(acc); err != nil {
					return fmt.Errorf("coa: seed account %s: %w", acc.Number, err)
				}
				created, err := tx.UpsertAccount(ctx, acc)
				if err != nil {
					return fmt.Errorf("coa: upsert account %s: %w", acc.Number, err)
				}
				if created {
					result.AccountsCreated++
				} else {
					result.AccountsUpdated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	s.logger.Info("chart of accounts seeded",
		slog.Int("groups_created", result.GroupsCreated),
		slog.Int("groups_existing", result.GroupsExisting),
		slog.Int("accounts_created", result.AccountsCreated),
		slog.Int("accounts_updated", result.AccountsUpdated))
	return result, nil
}
