package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottidler/gx/internal/cleanup"
	"github.com/scottidler/gx/internal/state"
)

func newCleanupCmd() *cobra.Command {
	var list, all, includeRemote, force bool
	cmd := &cobra.Command{
		Use:   "cleanup [change-id]",
		Short: "Delete local (and optionally remote) branches for merged or closed changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := state.DefaultStateDir()
			if err != nil {
				return err
			}
			store, err := state.NewStore(dir)
			if err != nil {
				return err
			}

			opts := cleanup.Options{IncludeRemote: includeRemote, Force: force}

			switch {
			case list:
				cleanable, err := cleanup.List(store)
				if err != nil {
					return err
				}
				for _, cs := range cleanable {
					fmt.Printf("%s  %s\n", cs.ChangeID, cs.Status)
				}
				return nil

			case all:
				results, err := cleanup.All(cmd.Context(), store, opts)
				if err != nil {
					return err
				}
				printCleanupResults(results)
				return nil

			case len(args) == 1:
				cs, err := store.Load(args[0])
				if err != nil {
					return err
				}
				if cs == nil {
					return fmt.Errorf("no change state found for %q", args[0])
				}
				result := cleanup.One(cmd.Context(), store, cs, opts)
				printCleanupResults([]cleanup.Result{result})
				return nil

			default:
				return fmt.Errorf("specify --list, --all, or a change-id")
			}
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list changes eligible for cleanup without cleaning them up")
	cmd.Flags().BoolVar(&all, "all", false, "clean up every eligible change")
	cmd.Flags().BoolVar(&includeRemote, "include-remote", false, "also delete the branch on the GitHub remote")
	cmd.Flags().BoolVar(&force, "force", false, "clean up even repos whose PR isn't merged or closed")
	return cmd
}

func printCleanupResults(results []cleanup.Result) {
	for _, r := range results {
		fmt.Printf("%s: cleaned=%d skipped=%d failed=%d\n", r.ChangeID, r.ReposCleaned, r.ReposSkipped, r.ReposFailed)
		for _, e := range r.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
}
