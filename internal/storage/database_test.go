package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
)

func TestOpenSQLiteCreatesParentDir(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "ledger.db")

	db, err := Open(config.LedgerConfig{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db, "sqlite3"))
	require.NoError(t, Migrate(db, "sqlite3"), "migrate must be idempotent")
	assert.FileExists(t, dsn)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM temp_files`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.LedgerConfig{Driver: "postgres", DSN: "x"})
	require.Error(t, err)
}

func TestOpenSQLiteRequiresDSN(t *testing.T) {
	_, err := Open(config.LedgerConfig{Driver: "sqlite"})
	require.Error(t, err)
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	db, err := Open(config.LedgerConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()
	assert.Error(t, Migrate(db, "oracle"))
}

func TestMySQLDSNAlwaysParsesTime(t *testing.T) {
	dsn, err := mysqlDSN(config.LedgerConfig{DSN: "app:pw@tcp(db:3306)/pdfsum?charset=utf8mb4"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	dsn, err = mysqlDSN(config.LedgerConfig{
		Username: "app",
		Password: "pw",
		Host:     "db",
		Port:     3306,
		DBName:   "pdfsum",
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:pw@tcp(db:3306)/pdfsum")
	assert.Contains(t, dsn, "parseTime=true")

	_, err = mysqlDSN(config.LedgerConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}
