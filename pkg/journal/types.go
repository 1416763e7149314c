package journal

import "time"

// Kind identifies the forward operation recorded in a journal entry.
type Kind string

const (
	KindCreateFile   Kind = "create_file"
	KindWriteFile    Kind = "write_file"
	KindDeleteFile   Kind = "delete_file"
	KindCreateDir    Kind = "create_dir"
	KindDeleteDir    Kind = "delete_dir"
	KindCopyFile     Kind = "copy_file"
	KindMoveFile     Kind = "move_file"
	KindShellCommand Kind = "shell_command"
)

// Status is the lifecycle state of an operation record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxOpen               TxStatus = "open"
	TxCommitted          TxStatus = "committed"
	TxRolledBack         TxStatus = "rolled_back"
	TxPartiallyRolledBack TxStatus = "partially_rolled_back"
	TxFailed             TxStatus = "failed"
)

// Inverse describes how to undo an operation: a backup reference plus the
// inverse kind, or an explicit inverse shell command. A nil Inverse on a
// record means the operation is not reversible.
type Inverse struct {
	Kind       Kind              `json:"kind"`
	BackupPath string            `json:"backup_path,omitempty"`
	Command    string            `json:"command,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// Operation is a single journaled side effect.
type Operation struct {
	ID            uint64            `json:"id"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Kind          Kind              `json:"kind"`
	Timestamp     time.Time         `json:"timestamp"`
	Description   string            `json:"description"`
	ForwardParams map[string]string `json:"forward_params"`
	Inverse       *Inverse          `json:"inverse,omitempty"`
	CanRollback   bool              `json:"can_rollback"`
	Status        Status            `json:"status"`
	Error         string            `json:"error,omitempty"`
}

// Transaction groups the operations produced by one plan execution under a
// shared rollback boundary.
type Transaction struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	StartedAt    time.Time  `json:"started_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Status       TxStatus   `json:"status"`
	OperationIDs []uint64   `json:"operation_ids"`
}

// RollbackEligible reports whether every operation in the transaction is
// individually reversible.
func (t Transaction) RollbackEligible(ops []Operation) bool {
	for _, op := range ops {
		if !op.CanRollback {
			return false
		}
	}
	return true
}
