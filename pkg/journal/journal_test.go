package journal

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndLookup(t *testing.T) {
	j := openTestJournal(t)

	id, err := j.AddOperation("", KindCreateFile, "create notes.txt",
		map[string]string{"path": "/tmp/notes.txt"},
		&Inverse{Kind: KindDeleteFile, Params: map[string]string{"path": "/tmp/notes.txt"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	op, err := j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, KindCreateFile, op.Kind)
	assert.Equal(t, StatusPending, op.Status)
	assert.True(t, op.CanRollback)
	assert.Equal(t, "/tmp/notes.txt", op.ForwardParams["path"])

	_, err = j.Lookup(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIDsAreMonotonic(t *testing.T) {
	j := openTestJournal(t)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := j.AddOperation("", KindShellCommand, fmt.Sprintf("op %d", i), nil, nil)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestStatusTransitions(t *testing.T) {
	j := openTestJournal(t)

	id, err := j.AddOperation("", KindWriteFile, "edit config", nil,
		&Inverse{Kind: KindWriteFile, BackupPath: "/backups/x"})
	require.NoError(t, err)

	// pending -> rolled_back is not a legal transition
	assert.Error(t, j.MarkRolledBack(id))

	require.NoError(t, j.CommitOperation(id))
	op, err := j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, op.Status)

	// double commit is rejected
	assert.Error(t, j.CommitOperation(id))

	require.NoError(t, j.MarkRolledBack(id))
	op, err = j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRolledBack, op.Status)
}

func TestFailOperationRecordsError(t *testing.T) {
	j := openTestJournal(t)

	id, err := j.AddOperation("", KindShellCommand, "run build", nil, nil)
	require.NoError(t, err)
	require.NoError(t, j.FailOperation(id, fmt.Errorf("exit status 2")))

	op, err := j.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, op.Status)
	assert.Equal(t, "exit status 2", op.Error)
}

func TestTransactionLifecycle(t *testing.T) {
	j := openTestJournal(t)

	txID, err := j.Begin("set up project")
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	id1, err := j.AddOperation(txID, KindCreateDir, "mkdir src", nil,
		&Inverse{Kind: KindDeleteDir, Params: map[string]string{"path": "src"}})
	require.NoError(t, err)
	id2, err := j.AddOperation(txID, KindCreateFile, "write main", nil,
		&Inverse{Kind: KindDeleteFile, Params: map[string]string{"path": "src/main.go"}})
	require.NoError(t, err)

	txn, err := j.LookupTransaction(txID)
	require.NoError(t, err)
	assert.Equal(t, TxOpen, txn.Status)
	assert.Equal(t, []uint64{id1, id2}, txn.OperationIDs)
	assert.Nil(t, txn.ClosedAt)

	require.NoError(t, j.CloseTransaction(txID, TxCommitted))
	txn, err = j.LookupTransaction(txID)
	require.NoError(t, err)
	assert.Equal(t, TxCommitted, txn.Status)
	require.NotNil(t, txn.ClosedAt)

	// closed transactions no longer accept operations
	_, err = j.AddOperation(txID, KindShellCommand, "late op", nil, nil)
	assert.Error(t, err)

	ops, err := j.TransactionOperations(txID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, id1, ops[0].ID)
	assert.Equal(t, id2, ops[1].ID)
	assert.True(t, txn.RollbackEligible(ops))
}

func TestRollbackEligibleFalseWithIrreversibleOp(t *testing.T) {
	j := openTestJournal(t)

	txID, err := j.Begin("mixed plan")
	require.NoError(t, err)
	_, err = j.AddOperation(txID, KindShellCommand, "curl something", nil, nil)
	require.NoError(t, err)

	txn, err := j.LookupTransaction(txID)
	require.NoError(t, err)
	ops, err := j.TransactionOperations(txID)
	require.NoError(t, err)
	assert.False(t, txn.RollbackEligible(ops))
}

func TestRecentOperationsMostRecentFirst(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 6; i++ {
		_, err := j.AddOperation("", KindShellCommand, fmt.Sprintf("op %d", i), nil, nil)
		require.NoError(t, err)
	}

	ops, err := j.RecentOperations(4)
	require.NoError(t, err)
	require.Len(t, ops, 4)
	assert.Equal(t, uint64(6), ops[0].ID)
	assert.Equal(t, uint64(3), ops[3].ID)
}

func TestRecentTransactionsOrdering(t *testing.T) {
	j := openTestJournal(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := j.Begin(fmt.Sprintf("plan %d", i))
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	txns, err := j.RecentTransactions(2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, ids[2], txns[0].ID)
	assert.Equal(t, ids[1], txns[1].ID)
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	id, err := j.AddOperation("", KindDeleteFile, "remove temp file",
		map[string]string{"path": "/tmp/x"},
		&Inverse{Kind: KindCreateFile, BackupPath: "/backups/tx/1-ab"})
	require.NoError(t, err)
	require.NoError(t, j.CommitOperation(id))
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	op, err := j2.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, op.Status)
	assert.Equal(t, "/backups/tx/1-ab", op.Inverse.BackupPath)

	// sequence continues past the reopened high-water mark
	next, err := j2.AddOperation("", KindShellCommand, "another", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}
