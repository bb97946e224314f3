package db

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

type memoryMigrations struct {
	applied map[string]bool
	order   []string
	fail    string
}

func (m *memoryMigrations) Applied(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool, len(m.applied))
	for k, v := range m.applied {
		out[k] = v
	}
	return out, nil
}

func (m *memoryMigrations) Apply(ctx context.Context, name, sql string) error {
	if name == m.fail {
		return errors.New("syntax error")
	}
	m.applied[name] = true
	m.order = append(m.order, name)
	return nil
}

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_indexes.sql": {Data: []byte("CREATE INDEX x ON t(a);")},
		"0001_ledger.sql":  {Data: []byte("CREATE TABLE t (a int);")},
		"0003_empty.sql":   {Data: []byte("  \n")},
		"README.md":        {Data: []byte("docs")},
	}
	store := &memoryMigrations{applied: map[string]bool{}}

	applied, err := Migrate(context.Background(), fsys, store)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_ledger.sql", "0002_indexes.sql"}, applied)

	applied, err = Migrate(context.Background(), fsys, store)
	require.NoError(t, err)
	require.Empty(t, applied)
	require.Equal(t, []string{"0001_ledger.sql", "0002_indexes.sql"}, store.order)
}

func TestMigrateStopsAtFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0002_b.sql": {Data: []byte("SELEC 2;")},
		"0003_c.sql": {Data: []byte("SELECT 3;")},
	}
	store := &memoryMigrations{applied: map[string]bool{}, fail: "0002_b.sql"}

	applied, err := Migrate(context.Background(), fsys, store)
	require.ErrorContains(t, err, "0002_b.sql")
	require.Equal(t, []string{"0001_a.sql"}, applied)
	require.False(t, store.applied["0003_c.sql"])
}
