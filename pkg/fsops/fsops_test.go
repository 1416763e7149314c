package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/logging"
	"github.com/angela-cli/angela/pkg/safety"
)

type fixture struct {
	fs   *FS
	j    *journal.Journal
	work string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	j, err := journal.Open(filepath.Join(root, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	logger := logging.NewSilentLogger(root)
	t.Cleanup(func() { logger.Close() })

	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0755))

	classifier := safety.NewClassifier(safety.WithWorkDir(work))
	fs := New(j, classifier, filepath.Join(root, "backups"), logger)
	return &fixture{fs: fs, j: j, work: work}
}

func (fx *fixture) path(name string) string {
	return filepath.Join(fx.work, name)
}

func TestCreateFileAndInverse(t *testing.T) {
	fx := newFixture(t)
	path := fx.path("notes.txt")

	id, err := fx.fs.CreateFile("", path, []byte("hello"), 0644, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCommitted, op.Status)
	require.NotNil(t, op.Inverse)
	assert.Equal(t, journal.KindDeleteFile, op.Inverse.Kind)

	require.NoError(t, ApplyInverse(op.Inverse))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateFileRefusesExisting(t *testing.T) {
	fx := newFixture(t)
	path := fx.path("exists.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := fx.fs.CreateFile("", path, []byte("y"), 0644, false)
	assert.Error(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "x", string(data))
}

func TestCreateFileOverwriteBacksUpOriginal(t *testing.T) {
	fx := newFixture(t)
	path := fx.path("exists.txt")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0644))

	id, err := fx.fs.CreateFile("", path, []byte("after"), 0644, true)
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "after", string(data))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	require.NotNil(t, op.Inverse)
	assert.Equal(t, journal.KindWriteFile, op.Inverse.Kind)
	assert.NotEmpty(t, op.Inverse.BackupPath)

	require.NoError(t, ApplyInverse(op.Inverse))
	data, _ = os.ReadFile(path)
	assert.Equal(t, "before", string(data))
}

func TestWriteFileBacksUpAndRestores(t *testing.T) {
	fx := newFixture(t)
	path := fx.path("config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	id, err := fx.fs.WriteFile("", path, []byte("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	require.NotNil(t, op.Inverse)
	assert.NotEmpty(t, op.Inverse.BackupPath)

	require.NoError(t, ApplyInverse(op.Inverse))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestDeleteFileRestoresContent(t *testing.T) {
	fx := newFixture(t)
	path := fx.path("doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0644))

	id, err := fx.fs.DeleteFile("", path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	require.NoError(t, ApplyInverse(op.Inverse))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))
}

func TestDeleteDirRoundTrip(t *testing.T) {
	fx := newFixture(t)
	dir := fx.path("project")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main"), 0644))

	id, err := fx.fs.DeleteDir("", dir)
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	require.NoError(t, ApplyInverse(op.Inverse))

	data, err := os.ReadFile(filepath.Join(dir, "src", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))
}

func TestCopyFileOverExistingRestoresOriginal(t *testing.T) {
	fx := newFixture(t)
	src := fx.path("a.txt")
	dst := fx.path("b.txt")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("target"), 0644))

	id, err := fx.fs.CopyFile("", src, dst, true)
	require.NoError(t, err)

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "source", string(data))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, journal.KindWriteFile, op.Inverse.Kind)
	require.NoError(t, ApplyInverse(op.Inverse))

	data, _ = os.ReadFile(dst)
	assert.Equal(t, "target", string(data))
}

func TestCopyAndMoveRefuseExistingDestination(t *testing.T) {
	fx := newFixture(t)
	src := fx.path("src.txt")
	dst := fx.path("dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("target"), 0644))

	_, err := fx.fs.CopyFile("", src, dst, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = fx.fs.MoveFile("", src, dst, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "target", string(data))
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestMoveFileInverseMovesBack(t *testing.T) {
	fx := newFixture(t)
	src := fx.path("old-name.txt")
	dst := fx.path("new-name.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0644))

	id, err := fx.fs.MoveFile("", src, dst, false)
	require.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	op, err := fx.j.Lookup(id)
	require.NoError(t, err)
	require.NoError(t, ApplyInverse(op.Inverse))

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestCriticalRootsRefused(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fs.DeleteFile("", "/etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	_, err = fx.fs.WriteFile("", "/boot/grub.cfg", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestOperationsJoinTransaction(t *testing.T) {
	fx := newFixture(t)
	txID, err := fx.j.Begin("scaffold")
	require.NoError(t, err)

	_, err = fx.fs.CreateDir(txID, fx.path("pkg"), 0755)
	require.NoError(t, err)
	_, err = fx.fs.CreateFile(txID, fx.path("pkg/a.go"), []byte("package pkg"), 0644, false)
	require.NoError(t, err)

	ops, err := fx.j.TransactionOperations(txID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	txn, err := fx.j.LookupTransaction(txID)
	require.NoError(t, err)
	assert.True(t, txn.RollbackEligible(ops))
}

func TestFailedOperationJournaledAsFailed(t *testing.T) {
	fx := newFixture(t)
	missing := fx.path("nope/deeper")

	// DeleteDir on a missing path fails before journaling
	_, err := fx.fs.DeleteDir("", missing)
	assert.Error(t, err)
	ops, err := fx.j.RecentOperations(10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestWriteFileAtomicLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, WriteFileAtomic(path, []byte("data"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.txt", entries[0].Name())
}

func TestPruneBackups(t *testing.T) {
	fx := newFixture(t)
	txID, err := fx.j.Begin("prune me")
	require.NoError(t, err)

	path := fx.path("x.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	_, err = fx.fs.WriteFile(txID, path, []byte("v2"))
	require.NoError(t, err)

	backupDir := filepath.Join(fx.fs.backupRoot, txID)
	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	require.NoError(t, fx.fs.PruneBackups(txID))
	_, err = os.Stat(backupDir)
	assert.True(t, os.IsNotExist(err))
}
