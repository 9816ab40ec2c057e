package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/store"
	"github.com/yacobolo/cssaudit/internal/store/storetest"
)

func TestSQLiteMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), "sqlite", ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cssaudit.db")

	s, err := Open(ctx, "sqlite", path)
	require.NoError(t, err)
	_, err = s.UpdateURL(ctx, "https://example.com/", func(rec *store.URLRecord, _ bool) error {
		rec.SetExcluded(true)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, "sqlite", path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.GetURL(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, rec.Excluded)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("CSSAUDIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CSSAUDIT_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), "postgres", dsn)
		require.NoError(t, err)
		for _, table := range []string{"url_records", "settings", "scan_history"} {
			_, err := s.db.Exec("DELETE FROM " + table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", postgresDialect.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "x = ?", sqliteDialect.rebind("x = ?"))
}

func TestSQLiteConnString(t *testing.T) {
	conn, mem, err := sqliteConnString(":memory:", "db1")
	require.NoError(t, err)
	assert.True(t, mem)
	assert.Contains(t, conn, "file:db1?mode=memory")

	conn, mem, err = sqliteConnString("file:x.db?mode=ro", "unused")
	require.NoError(t, err)
	assert.False(t, mem)
	assert.Contains(t, conn, "file:x.db?mode=ro&_pragma=")
}
