package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/store"
)

// execute runs the CLI with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedDB creates a database with a couple of records and returns its path.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rolodex.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	ctx := context.Background()
	alice := &record.Record{
		Identity:         record.Identity{ID: "sg-1", UserID: "u-1", Name: "Alice", ChannelIdentifier: "sg-1"},
		Type:             record.TypeUser,
		InteractionCount: 3,
	}
	require.NoError(t, st.Put(ctx, alice))

	ops := &record.Record{
		Identity:    record.Identity{ID: "mpc-5", Name: "Flight Ops", ChannelIdentifier: "mpc-5"},
		Type:        record.TypeChannel,
		MemberCount: 4,
	}
	require.NoError(t, st.Put(ctx, ops))
	return path
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	db := seedDB(t)
	_, err := execute(t, "--format", "xml", "stats", "--db", db)
	require.Error(t, err)
}

func TestRootRequiresDatabase(t *testing.T) {
	_, err := execute(t, "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSearchCommandText(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "search", "--db", db, "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "sg-1")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "1 match(es)")
}

func TestSearchCommandJSON(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "--format", "json", "search", "--db", db, "flight")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
}

func TestShowCommand(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "show", "--db", db, "mpc-5")
	require.NoError(t, err)
	assert.Contains(t, out, "mpc-5")
	assert.Contains(t, out, "Flight Ops")

	_, err = execute(t, "show", "--db", db, "sg-missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPinAndPinnedCommands(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "pin", "--db", db, "sg-1")
	require.NoError(t, err)
	assert.Contains(t, out, "pinned sg-1")

	out, err = execute(t, "pinned", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "sg-1")
	assert.Contains(t, out, "1 record(s)")

	out, err = execute(t, "unpin", "--db", db, "sg-1")
	require.NoError(t, err)
	assert.Contains(t, out, "unpinned sg-1")

	_, err = execute(t, "pin", "--db", db, "sg-missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestStatsCommand(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "stats", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "records:        2")
}

func TestVerifyCommandRequiresAuthority(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "verify", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
