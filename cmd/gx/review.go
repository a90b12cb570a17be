package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scottidler/gx/internal/discovery"
	"github.com/scottidler/gx/internal/display"
	"github.com/scottidler/gx/internal/review"
	"github.com/scottidler/gx/internal/state"
)

type reviewOptions struct {
	Org      string
	Patterns []string
}

func newReviewCmd() *cobra.Command {
	opts := &reviewOptions{}
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List, clone, approve, delete, or purge PRs opened by create",
	}
	cmd.PersistentFlags().StringVar(&opts.Org, "org", "", "GitHub account/org to query (default: auto-detect, else config default)")
	cmd.PersistentFlags().StringSliceVarP(&opts.Patterns, "pattern", "p", nil, "repo pattern(s) restricting auto-detection")

	cmd.AddCommand(newReviewLsCmd(opts))
	cmd.AddCommand(newReviewCloneCmd(opts))
	cmd.AddCommand(newReviewApproveCmd(opts))
	cmd.AddCommand(newReviewDeleteCmd(opts))
	cmd.AddCommand(newReviewPurgeCmd(opts))
	return cmd
}

func resolveReviewAccounts(ctx context.Context, opts *reviewOptions) ([]review.Account, []discovery.Repo, error) {
	repos, err := discovery.Discover(ctx, ".", loadedCfg.RepoDiscovery.MaxDepth, loadedCfg.RepoDiscovery.IgnorePatterns)
	if err != nil {
		return nil, nil, fmt.Errorf("discover repos: %w", err)
	}
	repos = discovery.Filter(repos, opts.Patterns)

	accounts, err := review.ResolveAccounts(opts.Org, loadedCfg.DefaultUserOrg, repos)
	if err != nil {
		return nil, nil, err
	}
	return accounts, repos, nil
}

func loadChangeState(changeID string) *state.ChangeState {
	dir, err := state.DefaultStateDir()
	if err != nil {
		return nil
	}
	store, err := state.NewStore(dir)
	if err != nil {
		return nil
	}
	cs, err := store.Load(changeID)
	if err != nil {
		return nil
	}
	return cs
}

func printReviewResults(results []review.Result) {
	rows := make([]display.PRRow, 0, len(results))
	for _, r := range results {
		statusLabel := "ok"
		if r.Error != nil {
			statusLabel = r.Error.Error()
		} else if r.LocalStatus != "" {
			statusLabel = string(r.LocalStatus)
		}
		rows = append(rows, display.PRRow{Slug: r.RepoSlug, Number: r.PRNumber, State: statusLabel})
	}
	display.RenderPRTable(os.Stdout, rows)

	summary := review.Summarize(results)
	if summary.Errors > 0 {
		fmt.Printf("%d of %d failed\n", summary.Errors, summary.Total)
	}
}

func newReviewLsCmd(opts *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <change-id>...",
		Short: "List PRs for one or more change-ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, _, err := resolveReviewAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			for _, id := range args {
				cs := loadChangeState(id)
				results, err := review.List(cmd.Context(), accounts, id, cs)
				if err != nil {
					return err
				}
				printReviewResults(results)
			}
			return nil
		},
	}
}

func newReviewCloneCmd(opts *reviewOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clone <change-id>",
		Short: "Clone or update local checkouts of every repo with an open PR for this change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, _, err := resolveReviewAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			results, err := review.Clone(cmd.Context(), accounts, args[0], review.CloneOptions{BaseDir: cwd, IncludeClosed: all})
			if err != nil {
				return err
			}
			printReviewResults(results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also clone repos whose PR is already closed")
	return cmd
}

func newReviewApproveCmd(opts *reviewOptions) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "approve <change-id>",
		Short: "Approve and merge every open PR for this change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, _, err := resolveReviewAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			results, err := review.Approve(cmd.Context(), accounts, args[0], admin)
			if err != nil {
				return err
			}
			printReviewResults(results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "merge with admin privileges, bypassing required reviews")
	return cmd
}

func newReviewDeleteCmd(opts *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <change-id>",
		Short: "Close every open PR for this change and delete its remote branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, _, err := resolveReviewAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			results, err := review.Delete(cmd.Context(), accounts, args[0])
			if err != nil {
				return err
			}
			printReviewResults(results)
			return nil
		},
	}
}

func newReviewPurgeCmd(opts *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every remote GX- branch across matched repos, regardless of change-id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, repos, err := resolveReviewAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			results, err := review.Purge(cmd.Context(), repos)
			if err != nil {
				return err
			}
			printReviewResults(results)
			return nil
		},
	}
}
