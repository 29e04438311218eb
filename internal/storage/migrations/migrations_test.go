package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFiles(t *testing.T) {
	names, contents, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Contains(t, contents[names[0]], "CREATE TABLE IF NOT EXISTS wallets")

	names, contents, err = sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Contains(t, contents[names[0]], "transfer_log")
}

func TestSplitStatements(t *testing.T) {
	stmts, err := splitStatements(`
-- header; with semicolon
CREATE TABLE a (x String DEFAULT 'it''s');
CREATE TABLE b (y UInt8);
`)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.Equal(t, "CREATE TABLE b (y UInt8)", stmts[1])

	_, err = splitStatements(`INSERT INTO t VALUES ('a;b');`)
	assert.ErrorIs(t, err, errSemicolonInString)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
