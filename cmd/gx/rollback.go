package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottidler/gx/internal/rollback"
	"github.com/scottidler/gx/internal/txn"
)

func newRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Inspect and replay recovery records left by interrupted create runs",
	}
	cmd.AddCommand(newRollbackListCmd())
	cmd.AddCommand(newRollbackRunCmd())
	cmd.AddCommand(newRollbackValidateCmd())
	cmd.AddCommand(newRollbackCleanupCmd())
	return cmd
}

func openRecoveryStore() (*txn.RecoveryStore, error) {
	dir, err := txn.DefaultRecoveryDir()
	if err != nil {
		return nil, err
	}
	return txn.NewRecoveryStore(dir)
}

func newRollbackListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending recovery records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRecoveryStore()
			if err != nil {
				return err
			}
			records, err := rollback.List(store)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no pending recovery records")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  repo=%s  change=%s  actions=%d  updated=%s\n",
					rec.ID, rec.RepoSlug, rec.ChangeID, len(rec.Actions), rec.UpdatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
}

func newRollbackRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Replay a recovery record's rollback actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRecoveryStore()
			if err != nil {
				return err
			}
			result, err := rollback.Run(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: succeeded=%d failed=%d\n", result.RecoveryID, result.Succeeded, result.Failed)
			for _, e := range result.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			return nil
		},
	}
}

func newRollbackValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <id>",
		Short: "Check whether a recovery record still looks replayable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRecoveryStore()
			if err != nil {
				return err
			}
			problems, err := rollback.Validate(store, args[0])
			if err != nil {
				return err
			}
			if problems == nil || len(problems.Errors) == 0 {
				fmt.Println("ok: record is replayable")
				return nil
			}
			for _, p := range problems.Errors {
				fmt.Printf("problem: %s\n", p)
			}
			return nil
		},
	}
}

func newRollbackCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every recovery record without replaying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRecoveryStore()
			if err != nil {
				return err
			}
			n, err := rollback.Cleanup(store)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d recovery record(s)\n", n)
			return nil
		},
	}
}
