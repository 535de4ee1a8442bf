package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopatrick/agentsql/internal/dialect"
)

func TestInstallIdempotent(t *testing.T) {
	t.Parallel()
	b := testBackend(t)
	ctx := context.Background()

	// Open already installed once; a second and third run must be no-ops.
	require.NoError(t, b.Install(ctx))
	require.NoError(t, b.Install(ctx))

	rows, err := b.Query(ctx, "SELECT COUNT(*) FROM fs_inode WHERE ino = ?", RootIno)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Values[0].Int, "root inode must exist exactly once")
}

func TestInstallSeedsRoot(t *testing.T) {
	t.Parallel()
	b := testBackend(t)

	root, err := b.GetInode(context.Background(), RootIno)
	require.NoError(t, err)
	assert.True(t, root.IsDir(), "root inode must be a directory")
	assert.Equal(t, uint32(0755), root.Permissions())
	assert.EqualValues(t, 2, root.Nlink)
}

func TestInstallPreservesExistingRoot(t *testing.T) {
	t.Parallel()
	b := testBackend(t)
	ctx := context.Background()

	// Give the root custom metadata, then reinstall: the seed uses a
	// conflict-ignoring insert and must not overwrite or duplicate it.
	mode := uint32(ModeDir | 0700)
	require.NoError(t, b.UpdateInode(ctx, RootIno, InodeUpdate{Mode: &mode}))
	require.NoError(t, b.Install(ctx))

	root, err := b.GetInode(ctx, RootIno)
	require.NoError(t, err)
	assert.Equal(t, uint32(0700), root.Permissions(), "reinstall must not reset the root")

	rows, err := b.Query(ctx, "SELECT COUNT(*) FROM fs_inode WHERE ino = ?", RootIno)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[0].Values[0].Int)
}

func TestInstallSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	b, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "marker", "1"))
	require.NoError(t, b.Close())

	b2, err := Open(ctx, path)
	require.NoError(t, err)
	defer b2.Close()

	v, ok, err := b2.Get(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	script := `
-- leading comment
CREATE TABLE a (
    x INTEGER
);

CREATE INDEX idx_a ON a(x);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX idx_a")
	for _, s := range stmts {
		assert.NotContains(t, s, "--", "comments must be stripped")
	}
}

func TestSchemaScriptsCoverAllDialects(t *testing.T) {
	t.Parallel()

	for _, k := range []dialect.Kind{dialect.SQLite, dialect.Postgres, dialect.MySQL} {
		script := schemaFor(k)
		require.NotEmpty(t, script, k.String())
		// Fixed table order: inode, dentry, data, symlink, kv, tool_calls.
		last := -1
		for _, table := range []string{"fs_inode", "fs_dentry", "fs_data", "fs_symlink", "kv_store", "tool_calls"} {
			idx := strings.Index(script, "CREATE TABLE IF NOT EXISTS "+table)
			assert.Greater(t, idx, last, "%s out of order in %s script", table, k)
			last = idx
		}
		// The audit table carries the status column in every dialect.
		assert.Contains(t, script, "status", k.String())
	}
}

func TestInstallProceedsWithoutLockFile(t *testing.T) {
	t.Parallel()

	// A lock path that cannot be created must degrade to an unguarded
	// install, not block Open.
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing", "x"), dbPath+".lock"))

	b, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer b.Close()

	root, err := b.GetInode(context.Background(), RootIno)
	require.NoError(t, err)
	assert.True(t, root.IsDir())
}
