package audit_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/ontaudit/internal/testutil"
	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ShouldGenerate(t *testing.T) {
	dir := t.TempDir()
	store := audit.NewStore(nil)

	missing := filepath.Join(dir, "missing.txt")
	empty := filepath.Join(dir, "empty.txt")
	full := filepath.Join(dir, "full.txt")
	subdir := filepath.Join(dir, "sub")
	testutil.CreateDummyFile(t, empty, "")
	testutil.CreateDummyFile(t, full, "Classes:1\n")
	testutil.CreateDummyDir(t, subdir)

	assert.True(t, store.ShouldGenerate(missing), "missing file")
	assert.True(t, store.ShouldGenerate(empty), "zero-size file counts as incomplete")
	assert.True(t, store.ShouldGenerate(subdir), "a directory is not a report")
	assert.False(t, store.ShouldGenerate(full))
}

func TestStore_Write(t *testing.T) {
	dir := t.TempDir()
	store := audit.NewStore(nil)
	path := filepath.Join(dir, "nested", "deeper", "a_OOPS.txt")

	require.NoError(t, store.Write(path, []byte("first")))
	assert.Equal(t, "first", testutil.ReadFile(t, path))

	require.NoError(t, store.Write(path, []byte("second")))
	assert.Equal(t, "second", testutil.ReadFile(t, path), "write replaces the previous content")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestStore_WriteRefusesEmpty(t *testing.T) {
	dir := t.TempDir()
	store := audit.NewStore(nil)
	path := filepath.Join(dir, "a.txt")

	err := store.Write(path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrEmptyReport)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_WriteExceptionNeverTouchesTarget(t *testing.T) {
	out := t.TempDir()
	store := audit.NewStore(nil)
	loc := audit.NewResolver(out, "", "").Resolve("/corpus/pizza.owl", audit.ReportStatistics.Suffix())

	require.NoError(t, store.WriteException(loc, errors.New("parse error at line 3")))

	exception := filepath.Join(out, "pizza", "pizzaException_while_Loading.txt")
	assert.Equal(t, "parse error at line 3", testutil.ReadFile(t, exception))
	assert.True(t, store.ShouldGenerate(loc.Path), "the target report stays missing so a later run retries it")
}

func TestStore_FailureArtifact(t *testing.T) {
	dir := t.TempDir()
	store := audit.NewStore(nil)
	report := filepath.Join(dir, "a_FOOPS.json")

	require.NoError(t, store.WriteFailure(report, 3, errors.New("HTTP 503")))
	body := testutil.ReadFile(t, audit.FailurePath(report))
	assert.Contains(t, body, "attempts: 3")
	assert.Contains(t, body, "error: HTTP 503")
	assert.True(t, store.ShouldGenerate(report), "a failure artifact is not a report")

	store.ClearFailure(report)
	_, err := os.Stat(audit.FailurePath(report))
	assert.True(t, os.IsNotExist(err))

	store.ClearFailure(report)
	assert.NoError(t, store.Remove(audit.FailurePath(report)), "removing a missing file is not an error")
}
