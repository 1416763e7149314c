// Package journal persists operation records and transaction headers in an
// append-only bbolt store. Records survive process restarts so rollback
// commands can be issued from a later session. The only permitted in-place
// mutation is the status transitions driven by commit and rollback.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	operationsBucket   = []byte("operations")
	transactionsBucket = []byte("transactions")
)

// ErrNotFound is returned when a record or transaction id does not exist.
var ErrNotFound = fmt.Errorf("journal: record not found")

// Journal is the durable operation store. bbolt serializes writers, so
// concurrent plan steps can append without additional locking; reads run
// concurrently on read-only transactions.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal store at path. bbolt fsyncs on every
// commit, which satisfies the flush-before-committed durability stance.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(operationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(transactionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal buckets: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin opens a new transaction and returns its id.
func (j *Journal) Begin(description string) (string, error) {
	txn := Transaction{
		ID:          uuid.NewString(),
		Description: description,
		StartedAt:   time.Now(),
		Status:      TxOpen,
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(transactionsBucket), []byte(txn.ID), txn)
	})
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	return txn.ID, nil
}

// AddOperation appends a pending operation record, optionally under a
// transaction, and returns its id.
func (j *Journal) AddOperation(transactionID string, kind Kind, description string, forward map[string]string, inverse *Inverse) (uint64, error) {
	var id uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		ops := tx.Bucket(operationsBucket)
		seq, err := ops.NextSequence()
		if err != nil {
			return err
		}
		id = seq

		op := Operation{
			ID:            id,
			TransactionID: transactionID,
			Kind:          kind,
			Timestamp:     time.Now(),
			Description:   description,
			ForwardParams: forward,
			Inverse:       inverse,
			CanRollback:   inverse != nil,
			Status:        StatusPending,
		}
		if err := putJSON(ops, itob(id), op); err != nil {
			return err
		}

		if transactionID == "" {
			return nil
		}
		txns := tx.Bucket(transactionsBucket)
		txn, err := getTransaction(txns, transactionID)
		if err != nil {
			return err
		}
		if txn.Status != TxOpen {
			return fmt.Errorf("transaction %s is not open (status %s)", transactionID, txn.Status)
		}
		txn.OperationIDs = append(txn.OperationIDs, id)
		return putJSON(txns, []byte(transactionID), txn)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append operation: %w", err)
	}
	return id, nil
}

// CommitOperation marks a pending operation as committed.
func (j *Journal) CommitOperation(id uint64) error {
	return j.transition(id, StatusPending, StatusCommitted, "")
}

// FailOperation marks a pending operation as failed with the given error.
func (j *Journal) FailOperation(id uint64, opErr error) error {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	return j.transition(id, StatusPending, StatusFailed, msg)
}

// MarkRolledBack flips a committed operation to rolled_back.
func (j *Journal) MarkRolledBack(id uint64) error {
	return j.transition(id, StatusCommitted, StatusRolledBack, "")
}

// MarkRollbackFailed flips a committed operation to failed after an inverse
// could not be applied. The record itself is never deleted.
func (j *Journal) MarkRollbackFailed(id uint64, opErr error) error {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	return j.transition(id, StatusCommitted, StatusFailed, msg)
}

func (j *Journal) transition(id uint64, from, to Status, errMsg string) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		ops := tx.Bucket(operationsBucket)
		op, err := getOperation(ops, id)
		if err != nil {
			return err
		}
		if op.Status != from {
			return fmt.Errorf("operation %d is %s, expected %s", id, op.Status, from)
		}
		op.Status = to
		if errMsg != "" {
			op.Error = errMsg
		}
		return putJSON(ops, itob(id), op)
	})
	if err != nil {
		return fmt.Errorf("failed to update operation %d: %w", id, err)
	}
	return nil
}

// CloseTransaction records the final status of a transaction.
func (j *Journal) CloseTransaction(id string, status TxStatus) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		txns := tx.Bucket(transactionsBucket)
		txn, err := getTransaction(txns, id)
		if err != nil {
			return err
		}
		now := time.Now()
		txn.Status = status
		txn.ClosedAt = &now
		return putJSON(txns, []byte(id), txn)
	})
	if err != nil {
		return fmt.Errorf("failed to close transaction %s: %w", id, err)
	}
	return nil
}

// Lookup returns the operation record with the given id.
func (j *Journal) Lookup(id uint64) (Operation, error) {
	var op Operation
	err := j.db.View(func(tx *bolt.Tx) error {
		var err error
		op, err = getOperation(tx.Bucket(operationsBucket), id)
		return err
	})
	return op, err
}

// LookupTransaction returns the transaction header with the given id.
func (j *Journal) LookupTransaction(id string) (Transaction, error) {
	var txn Transaction
	err := j.db.View(func(tx *bolt.Tx) error {
		var err error
		txn, err = getTransaction(tx.Bucket(transactionsBucket), id)
		return err
	})
	return txn, err
}

// TransactionOperations returns the records of a transaction ordered by id
// ascending, which matches forward-application order.
func (j *Journal) TransactionOperations(id string) ([]Operation, error) {
	txn, err := j.LookupTransaction(id)
	if err != nil {
		return nil, err
	}
	ops := make([]Operation, 0, len(txn.OperationIDs))
	err = j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(operationsBucket)
		for _, opID := range txn.OperationIDs {
			op, err := getOperation(bucket, opID)
			if err != nil {
				return err
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// RecentOperations returns up to limit operations, most recent first.
func (j *Journal) RecentOperations(limit int) ([]Operation, error) {
	var ops []Operation
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(operationsBucket).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(ops) < limit); k, v = c.Prev() {
			var op Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("corrupt operation record %x: %w", k, err)
			}
			ops = append(ops, op)
		}
		return nil
	})
	return ops, err
}

// RecentTransactions returns up to limit transactions, most recently
// started first.
func (j *Journal) RecentTransactions(limit int) ([]Transaction, error) {
	var txns []Transaction
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(transactionsBucket).ForEach(func(k, v []byte) error {
			var txn Transaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return fmt.Errorf("corrupt transaction record %s: %w", k, err)
			}
			txns = append(txns, txn)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// uuid keys are not time-ordered, so sort by start time here.
	for i := 0; i < len(txns); i++ {
		for k := i + 1; k < len(txns); k++ {
			if txns[k].StartedAt.After(txns[i].StartedAt) {
				txns[i], txns[k] = txns[k], txns[i]
			}
		}
	}
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func putJSON(bucket *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

func getOperation(bucket *bolt.Bucket, id uint64) (Operation, error) {
	var op Operation
	data := bucket.Get(itob(id))
	if data == nil {
		return op, fmt.Errorf("%w: operation %d", ErrNotFound, id)
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return op, fmt.Errorf("corrupt operation record %d: %w", id, err)
	}
	return op, nil
}

func getTransaction(bucket *bolt.Bucket, id string) (Transaction, error) {
	var txn Transaction
	data := bucket.Get([]byte(id))
	if data == nil {
		return txn, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if err := json.Unmarshal(data, &txn); err != nil {
		return txn, fmt.Errorf("corrupt transaction record %s: %w", id, err)
	}
	return txn, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
