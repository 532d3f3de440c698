package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/db/dbtest"
)

func TestUserDefault_NoneSet(t *testing.T) {
	gdb := dbtest.Open(t)
	got, err := UserDefault(gdb, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetUserDefault_Upserts(t *testing.T) {
	gdb := dbtest.Open(t)

	require.NoError(t, SetUserDefault(gdb, "alice", "google:gemini-2.5-flash"))
	got, err := UserDefault(gdb, "alice")
	require.NoError(t, err)
	assert.Equal(t, "google:gemini-2.5-flash", got)

	require.NoError(t, SetUserDefault(gdb, "alice", "google:gemini-2.5-pro"))
	got, err = UserDefault(gdb, "alice")
	require.NoError(t, err)
	assert.Equal(t, "google:gemini-2.5-pro", got)

	other, err := UserDefault(gdb, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSetUserDefault_EmptyClears(t *testing.T) {
	gdb := dbtest.Open(t)
	require.NoError(t, SetUserDefault(gdb, "alice", "google:gemini-2.5-flash"))
	require.NoError(t, SetUserDefault(gdb, "alice", ""))

	got, err := UserDefault(gdb, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetUserDefault_Validation(t *testing.T) {
	gdb := dbtest.Open(t)

	err := SetUserDefault(gdb, "", "google:gemini-2.5-flash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user is required")

	err = SetUserDefault(gdb, "alice", "gemini-2.5-flash")
	require.Error(t, err)
}

func TestChainResolver_UsesStoredDefault(t *testing.T) {
	gdb := dbtest.Open(t)
	r := NewRegistry()
	r.Register("google", stubProvider{})
	require.NoError(t, SetUserDefault(gdb, "carol", "google:carol-pick"))

	res := NewChainResolver(gdb, r, "google:system-default", nil)
	resolved, err := res.Resolve(context.Background(), "carol", "")
	require.NoError(t, err)
	assert.Equal(t, "carol-pick", resolved.ModelName)
}
