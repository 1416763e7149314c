// Package rollback undoes journaled operations by applying their recorded
// inverses. Transaction rollback walks operations in reverse id order so
// later changes are unwound before the earlier ones they depend on.
package rollback

import (
	"context"
	"fmt"

	"github.com/angela-cli/angela/pkg/executor"
	"github.com/angela-cli/angela/pkg/fsops"
	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/logging"
)

// Manager applies inverses and records the outcomes in the journal.
type Manager struct {
	journal *journal.Journal
	exec    *executor.Executor
	logger  *logging.Logger
}

// New creates a rollback manager.
func New(j *journal.Journal, exec *executor.Executor, logger *logging.Logger) *Manager {
	return &Manager{journal: j, exec: exec, logger: logger}
}

// Report summarizes a transaction rollback.
type Report struct {
	TransactionID string           `json:"transaction_id"`
	Status        journal.TxStatus `json:"status"`
	RolledBack    []uint64         `json:"rolled_back"`
	Skipped       []uint64         `json:"skipped"`
	Failed        []uint64         `json:"failed"`
}

// RollbackOperation undoes a single committed operation. Operations that
// belong to a transaction are refused without force, because undoing one
// member can break the ordering assumptions of the others.
func (m *Manager) RollbackOperation(ctx context.Context, id uint64, force bool) error {
	op, err := m.journal.Lookup(id)
	if err != nil {
		return err
	}
	if op.Status != journal.StatusCommitted {
		return fmt.Errorf("operation %d is %s; only committed operations can be rolled back", id, op.Status)
	}
	if op.TransactionID != "" && !force {
		return fmt.Errorf("operation %d belongs to transaction %s; roll back the transaction, or use force", id, op.TransactionID)
	}
	if !op.CanRollback || op.Inverse == nil {
		return fmt.Errorf("operation %d is not reversible", id)
	}

	if err := m.applyInverse(ctx, op); err != nil {
		if jerr := m.journal.MarkRollbackFailed(id, err); jerr != nil {
			m.logger.Error("failed to journal rollback failure for op %d: %v", id, jerr)
		}
		return fmt.Errorf("failed to roll back operation %d: %w", id, err)
	}
	m.logger.LogProcessStep(fmt.Sprintf("🔄 Rolled back: %s", op.Description))
	return m.journal.MarkRolledBack(id)
}

// RollbackTransaction undoes every committed operation of a transaction in
// reverse order. Irreversible operations are skipped and reported; partial
// rollback is always attempted. Without force, the first inverse that fails
// stops the walk, leaving the earlier operations committed; with force the
// walk continues past failures.
func (m *Manager) RollbackTransaction(ctx context.Context, txID string, force bool) (Report, error) {
	report := Report{TransactionID: txID}

	txn, err := m.journal.LookupTransaction(txID)
	if err != nil {
		return report, err
	}
	switch txn.Status {
	case journal.TxRolledBack:
		return report, fmt.Errorf("transaction %s is already rolled back", txID)
	case journal.TxOpen:
		return report, fmt.Errorf("transaction %s is still open", txID)
	}

	ops, err := m.journal.TransactionOperations(txID)
	if err != nil {
		return report, err
	}

	var attempted, failed int
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if op.Status != journal.StatusCommitted {
			continue
		}
		if !op.CanRollback || op.Inverse == nil {
			report.Skipped = append(report.Skipped, op.ID)
			continue
		}
		attempted++
		if err := m.applyInverse(ctx, op); err != nil {
			failed++
			report.Failed = append(report.Failed, op.ID)
			m.logger.Error("rollback of op %d failed: %v", op.ID, err)
			if jerr := m.journal.MarkRollbackFailed(op.ID, err); jerr != nil {
				m.logger.Error("failed to journal rollback failure for op %d: %v", op.ID, jerr)
			}
			if !force {
				// Earlier operations stay committed; a later undo may depend
				// on the state this one failed to restore.
				for j := i - 1; j >= 0; j-- {
					if ops[j].Status == journal.StatusCommitted {
						report.Skipped = append(report.Skipped, ops[j].ID)
					}
				}
				break
			}
			continue
		}
		report.RolledBack = append(report.RolledBack, op.ID)
		if err := m.journal.MarkRolledBack(op.ID); err != nil {
			m.logger.Error("failed to journal rollback of op %d: %v", op.ID, err)
		}
	}

	switch {
	case attempted == 0 && len(report.Skipped) == 0:
		report.Status = journal.TxRolledBack
	case failed == 0 && len(report.Skipped) == 0:
		report.Status = journal.TxRolledBack
	case failed == attempted && attempted > 0:
		report.Status = journal.TxFailed
	default:
		report.Status = journal.TxPartiallyRolledBack
	}

	if err := m.journal.CloseTransaction(txID, report.Status); err != nil {
		return report, err
	}
	if report.Status == journal.TxFailed {
		return report, fmt.Errorf("rollback of transaction %s failed", txID)
	}
	return report, nil
}

// RollbackLast undoes the most recent committed reversible operation.
func (m *Manager) RollbackLast(ctx context.Context) (uint64, error) {
	ops, err := m.journal.RecentOperations(50)
	if err != nil {
		return 0, err
	}
	for _, op := range ops {
		if op.Status == journal.StatusCommitted && op.CanRollback {
			return op.ID, m.RollbackOperation(ctx, op.ID, true)
		}
	}
	return 0, fmt.Errorf("no reversible operation found")
}

func (m *Manager) applyInverse(ctx context.Context, op journal.Operation) error {
	inv := op.Inverse
	if inv.Command != "" {
		// Journaled inverses never went through the gate, so the executor
		// re-checks them against the refusal patterns.
		res, err := m.exec.Run(ctx, executor.Request{Command: inv.Command, CheckSafety: true})
		if err != nil {
			return fmt.Errorf("inverse command failed (exit %d): %w", res.ExitCode, err)
		}
		return nil
	}
	return fsops.ApplyInverse(inv)
}
