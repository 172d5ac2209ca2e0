package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `UPDATE work_items SET assignee_id=? WHERE id=? AND status IN (?,?)`
	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t, `UPDATE work_items SET assignee_id=$1 WHERE id=$2 AND status IN ($3,$4)`, Rebind(DriverPostgres, q))
}

func TestOpenSQLiteWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".orderline", "orderline.db"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	assert.Error(t, err)
	_, err = Open(Config{Driver: DriverPostgres})
	assert.Error(t, err)
}
