package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angela-cli/angela/pkg/journal"
)

var pruneKeep int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Maintain the operation journal",
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Discard backups of transactions that can no longer be rolled back",
	Long: `Removes the backup trees of transactions whose records are already
rolled back or failed. Journal records themselves are never deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		txns, err := c.Journal.RecentTransactions(0)
		if err != nil {
			return err
		}

		pruned := 0
		for i, txn := range txns {
			if i < pruneKeep {
				continue
			}
			switch txn.Status {
			case journal.TxRolledBack, journal.TxFailed:
				if err := c.FS.PruneBackups(txn.ID); err != nil {
					fmt.Printf("⚠️  Could not prune backups for %s: %v\n", txn.ID, err)
					continue
				}
				pruned++
			}
		}
		fmt.Printf("✅ Pruned backups for %d transaction(s).\n", pruned)
		return nil
	},
}

func init() {
	journalPruneCmd.Flags().IntVar(&pruneKeep, "keep", 10, "Always keep backups of the N most recent transactions")
	journalCmd.AddCommand(journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}
