package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/angela-cli/angela/pkg/journal"
)

var (
	rollbackForce        bool
	rollbackLastTx       bool
	listTransactions     bool
	listLimit            int
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Inspect and reverse journaled operations",
}

var rollbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent operations or transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if listTransactions {
			txns, err := c.Journal.RecentTransactions(listLimit)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				fmt.Println("No transactions recorded.")
				return nil
			}
			for _, txn := range txns {
				fmt.Printf("%s  %-22s %3d ops  %s\n",
					txn.StartedAt.Format("2006-01-02 15:04:05"), txn.Status, len(txn.OperationIDs), txn.Description)
				fmt.Printf("    id: %s\n", txn.ID)
			}
			return nil
		}

		ops, err := c.Journal.RecentOperations(listLimit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			marker := " "
			if op.CanRollback && op.Status == journal.StatusCommitted {
				marker = "↩"
			}
			fmt.Printf("%6d %s %s  %-12s %-13s %s\n",
				op.ID, marker, op.Timestamp.Format("2006-01-02 15:04:05"), op.Kind, op.Status, op.Description)
		}
		return nil
	},
}

var rollbackOperationCmd = &cobra.Command{
	Use:   "operation <id>",
	Short: "Reverse one operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid operation id %q", args[0])
		}

		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Rollback.RollbackOperation(cmd.Context(), id, rollbackForce); err != nil {
			return err
		}
		fmt.Printf("✅ Operation %d rolled back.\n", id)
		return nil
	},
}

var rollbackTransactionCmd = &cobra.Command{
	Use:   "transaction <id>",
	Short: "Reverse a whole transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.Rollback.RollbackTransaction(cmd.Context(), args[0], rollbackForce)
		if err != nil {
			return err
		}
		fmt.Printf("🔄 Transaction %s: %s (%d rolled back, %d skipped, %d failed)\n",
			report.TransactionID, report.Status, len(report.RolledBack), len(report.Skipped), len(report.Failed))
		return nil
	},
}

var rollbackLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Reverse the most recent operation or transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		if rollbackLastTx {
			txns, err := c.Journal.RecentTransactions(20)
			if err != nil {
				return err
			}
			for _, txn := range txns {
				if txn.Status != journal.TxCommitted {
					continue
				}
				report, err := c.Rollback.RollbackTransaction(cmd.Context(), txn.ID, rollbackForce)
				if err != nil {
					return err
				}
				fmt.Printf("🔄 Transaction %s: %s\n", txn.ID, report.Status)
				return nil
			}
			return fmt.Errorf("no committed transaction to roll back")
		}

		id, err := c.Rollback.RollbackLast(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✅ Operation %d rolled back.\n", id)
		return nil
	},
}

func init() {
	rollbackListCmd.Flags().BoolVar(&listTransactions, "transactions", false, "List transactions instead of operations")
	rollbackListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum records to show")
	rollbackOperationCmd.Flags().BoolVar(&rollbackForce, "force", false, "Roll back even if the operation belongs to a transaction")
	rollbackTransactionCmd.Flags().BoolVar(&rollbackForce, "force", false, "Continue past operations whose rollback fails")
	rollbackLastCmd.Flags().BoolVar(&rollbackLastTx, "transaction", false, "Roll back the most recent transaction")
	rollbackLastCmd.Flags().BoolVar(&rollbackForce, "force", false, "Continue past operations whose rollback fails")

	rollbackCmd.AddCommand(rollbackListCmd, rollbackOperationCmd, rollbackTransactionCmd, rollbackLastCmd)
	rootCmd.AddCommand(rollbackCmd)
}
