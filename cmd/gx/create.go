package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/scottidler/gx/internal/change"
	"github.com/scottidler/gx/internal/discovery"
	"github.com/scottidler/gx/internal/display"
	"github.com/scottidler/gx/internal/fsutil"
	"github.com/scottidler/gx/internal/state"
	"github.com/scottidler/gx/internal/statusengine"
	"github.com/scottidler/gx/internal/txn"
)

type createOptions struct {
	Files     []string
	Patterns  []string
	ChangeID  string
	CommitMsg string
	PR        string
	Cwd       string
	MaxDepth  int
	Jobs      int
	Verify    bool
}

func newCreateCmd() *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Preview or apply a file mutation across matching repositories",
		Long: "Without a mutation subcommand (add, delete, sub, regex), create only\n" +
			"discovers and lists the repositories and files --files/-p would match.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreatePreview(cmd.Context(), opts)
		},
	}
	registerCreateFlags(cmd, opts)

	cmd.AddCommand(newCreateAddCmd(opts))
	cmd.AddCommand(newCreateDeleteCmd(opts))
	cmd.AddCommand(newCreateSubCmd(opts))
	cmd.AddCommand(newCreateRegexCmd(opts))
	return cmd
}

func registerCreateFlags(cmd *cobra.Command, opts *createOptions) {
	cmd.PersistentFlags().StringSliceVar(&opts.Files, "files", nil, "glob(s) selecting files within each matched repo")
	cmd.PersistentFlags().StringSliceVarP(&opts.Patterns, "pattern", "p", nil, "repo name/slug pattern(s) to select; default all discovered repos")
	cmd.PersistentFlags().StringVarP(&opts.ChangeID, "change-id", "x", "", "reuse an existing change-id instead of minting one")
	cmd.PersistentFlags().StringVar(&opts.CommitMsg, "commit", "", "commit message; omitting it makes this a dry run")
	cmd.PersistentFlags().StringVar(&opts.PR, "pr", "", "open a PR after push (\"draft\" for a draft PR)")
	cmd.PersistentFlags().Lookup("pr").NoOptDefVal = "normal"
	cmd.PersistentFlags().StringVar(&opts.Cwd, "cwd", ".", "root directory to discover repositories under")
	cmd.PersistentFlags().IntVar(&opts.MaxDepth, "max-depth", 0, "override repo-discovery.max-depth")
	cmd.PersistentFlags().IntVar(&opts.Jobs, "jobs", 0, "override the worker pool size")
	cmd.PersistentFlags().BoolVar(&opts.Verify, "verify", false, "reconcile remote status via ls-remote+rev-list instead of trusting local tracking refs")
}

func newCreateAddCmd(opts *createOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path> <content>",
		Short: "Create a new file with the given content in every matched repo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), opts, change.Change{Kind: change.KindAdd, Path: args[0], Content: args[1]})
		},
	}
}

func newCreateDeleteCmd(opts *createOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete every file matched by --files in each matched repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), opts, change.Change{Kind: change.KindDelete})
		},
	}
}

func newCreateSubCmd(opts *createOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sub <literal> <replacement>",
		Short: "Replace every literal occurrence in matched files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), opts, change.Change{Kind: change.KindSub, Literal: args[0], Replacement: args[1]})
		},
	}
}

func newCreateRegexCmd(opts *createOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regex <pattern> <replacement>",
		Short: "Replace every regex match in matched files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd.Context(), opts, change.Change{Kind: change.KindRegex, Pattern: args[0], Replacement: args[1]})
		},
	}
}

// discoverAndMatch resolves opts.Cwd's repo set filtered by opts.Patterns,
// and for non-Add changes, the glob-matched files within each.
func discoverAndMatch(ctx context.Context, opts *createOptions, kind change.Kind) ([]change.RepoInput, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = loadedCfg.RepoDiscovery.MaxDepth
	}

	repos, err := discovery.Discover(ctx, opts.Cwd, maxDepth, loadedCfg.RepoDiscovery.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("discover repos: %w", err)
	}
	repos = discovery.Filter(repos, opts.Patterns)

	inputs := make([]change.RepoInput, 0, len(repos))
	for _, r := range repos {
		input := change.RepoInput{Slug: slugOrName(r), Path: r.Path}
		if kind == change.KindAdd {
			inputs = append(inputs, input)
			continue
		}
		matches, err := fsutil.FindFiles(r.Path, opts.Files)
		if err != nil {
			return nil, fmt.Errorf("find files in %s: %w", r.Path, err)
		}
		input.MatchingFiles = matches
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func slugOrName(r discovery.Repo) string {
	if r.Slug != "" {
		return r.Slug
	}
	return r.Name
}

func runCreatePreview(ctx context.Context, opts *createOptions) error {
	inputs, err := discoverAndMatch(ctx, opts, change.KindSub) // any non-Add kind exercises the glob-match path
	if err != nil {
		return err
	}
	for _, in := range inputs {
		st := statusengine.Compute(ctx, in.Path, opts.Verify)
		fmt.Printf("%s  %-12s  %d matching file(s)\n", display.Pad(in.Slug, 30), statusLabel(st), len(in.MatchingFiles))
		for _, f := range in.MatchingFiles {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}

func statusLabel(st statusengine.Status) string {
	switch st.Kind {
	case statusengine.Ahead:
		return fmt.Sprintf("ahead %d", st.AheadN)
	case statusengine.Behind:
		return fmt.Sprintf("behind %d", st.BehindN)
	case statusengine.Diverged:
		return fmt.Sprintf("diverged %d/%d", st.AheadN, st.BehindN)
	case statusengine.StatusError:
		return "error: " + st.Message
	default:
		return string(st.Kind)
	}
}

func runCreate(ctx context.Context, opts *createOptions, c change.Change) error {
	inputs, err := discoverAndMatch(ctx, opts, c.Kind)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		fmt.Println("no repositories matched")
		return nil
	}

	changeID := opts.ChangeID
	if changeID == "" {
		changeID = change.NewID(time.Now())
	}

	spec := change.Spec{
		ID:            changeID,
		Change:        c,
		FileGlobs:     opts.Files,
		CommitMessage: opts.CommitMsg,
		PRMode:        prModeFromFlag(opts.PR),
	}

	var stateStore *state.Store
	var recoveryStore *txn.RecoveryStore
	if !spec.IsDryRun() {
		stateDir, err := state.DefaultStateDir()
		if err == nil {
			stateStore, _ = state.NewStore(stateDir)
		}
		recoveryDir, err := txn.DefaultRecoveryDir()
		if err == nil {
			recoveryStore, _ = txn.NewRecoveryStore(recoveryDir)
		}
	}

	branchLabel := changeID
	if spec.IsDryRun() {
		branchLabel = "(dry run)"
	}
	slugs := make([]string, len(inputs))
	for i, in := range inputs {
		slugs[i] = in.Slug
	}
	table := display.NewTable(os.Stdout, slugs, branchLabel)

	results := change.Batch(ctx, inputs, spec, change.BatchOptions{
		Jobs:          resolveJobs(opts.Jobs),
		StateStore:    stateStore,
		RecoveryStore: recoveryStore,
		OnProgress: func(r change.CreateResult) {
			detail := ""
			if r.Error != nil {
				detail = r.Error.Error()
			} else if r.PRURL != "" {
				detail = r.PRURL
			}
			table.WriteRow(display.Row{Slug: r.RepoSlug, Branch: branchLabel, Status: string(r.Action), Detail: detail})
		},
	})

	os.Exit(change.ExitCode(results))
	return nil
}

func prModeFromFlag(v string) change.PRMode {
	switch v {
	case "":
		return change.PRNone
	case "draft":
		return change.PRDraft
	default:
		return change.PRNormal
	}
}

func resolveJobs(flagJobs int) int {
	if flagJobs > 0 {
		return flagJobs
	}
	switch loadedCfg.Jobs {
	case "", "nproc":
		return runtime.NumCPU()
	default:
		if n, err := strconv.Atoi(loadedCfg.Jobs); err == nil && n > 0 {
			return n
		}
		return runtime.NumCPU()
	}
}
