package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	db, err := OpenSQLite("")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM detection_runs`))
	assert.Zero(t, count)
}

func TestNew_SQLiteFile(t *testing.T) {
	t.Setenv("DB_DRIVER", DriverSQLite)
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "ledger.db"))

	db, err := New()
	require.NoError(t, err)
	defer db.Close()

	var detections string
	_, err = db.Exec(`INSERT INTO detection_runs (id, owner_id, status, created_at, updated_at) VALUES ('r', 'o', 'processing', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	require.NoError(t, db.Get(&detections, `SELECT detections FROM detection_runs WHERE id = 'r'`))
	assert.Equal(t, "[]", detections)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := New()
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}
