// Package change implements the per-repo mutation pipeline (preflight
// through PR creation) and the bounded-concurrency batch orchestrator that
// runs it across a fleet of repositories.
package change

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/fsutil"
	"github.com/scottidler/gx/internal/ghbridge"
	"github.com/scottidler/gx/internal/gitprim"
	"github.com/scottidler/gx/internal/txn"
)

// Action is the terminal state of a per-repo run.
type Action string

const (
	DryRun    Action = "DryRun"
	Applied   Action = "Applied"
	Committed Action = "Committed"
	PrCreated Action = "PrCreated"
	Failed    Action = "Failed"
)

// SubstitutionStats aggregates Sub/Regex outcomes across every matched file.
type SubstitutionStats struct {
	FilesScanned     int
	FilesWithMatches int
	FilesChanged     int
	TotalMatches     int
	FilesNoChange    int
}

// CreateResult is the outcome of running the pipeline against one repo.
type CreateResult struct {
	RepoSlug          string
	RepoPath          string
	ChangeID          string
	Action            Action
	FilesAffected     []string
	SubstitutionStats *SubstitutionStats
	DiffSummary       string
	PRNumber          int
	PRURL             string
	Error             error
}

// RepoInput is one (repo, matching-files) tuple handed to the pipeline.
type RepoInput struct {
	Slug          string
	Path          string
	MatchingFiles []string // paths relative to Path
}

// Hooks lets the batch orchestrator persist ChangeState at the checkpoints
// spec.md names: once a repo's change branch is ready, once it's pushed,
// and once PR creation is attempted.
type Hooks struct {
	OnBranchReady func(branchName, localPath, originalBranch string, filesModified []string)
	OnPushed      func()
	OnPRCreated   func(prNumber int, prURL string, isDraft bool)
	OnPRFailed    func(err error)

	// RecoveryStore, when set, arms the per-repo transaction to persist a
	// RecoveryRecord after every crash-recoverable action, so a process
	// killed mid-pipeline leaves a record `gx rollback` can finish.
	RecoveryStore *txn.RecoveryStore
}

func filePath(repoPath, relFile string) string {
	return filepath.Join(repoPath, relFile)
}

// Run executes the full pipeline (A through K) for a single repo. hooks may
// be the zero Hooks value when state persistence isn't needed (e.g. a
// dry-run preview).
func Run(ctx context.Context, repo RepoInput, spec Spec, hooks Hooks) CreateResult {
	result := CreateResult{RepoSlug: repo.Slug, RepoPath: repo.Path, ChangeID: spec.ID}
	t := txn.New()
	if hooks.RecoveryStore != nil {
		t.EnableRecovery(hooks.RecoveryStore, spec.ID, repo.Slug, repo.Path)
	}

	action, err := runPhases(ctx, repo, spec, t, &result, hooks)
	if err != nil {
		result.Action = Failed
		result.Error = err
		log.Error().Err(err).Str("repo", repo.Slug).Msg("pipeline failed, rolling back")
		t.Rollback()
		return result
	}

	result.Action = action
	return result
}

func runPhases(ctx context.Context, repo RepoInput, spec Spec, t *txn.Transaction, result *CreateResult, hooks Hooks) (Action, error) {
	path := repo.Path

	// A. Preflight.
	originalBranch, err := gitprim.CurrentBranch(ctx, path)
	if err != nil {
		return Failed, err
	}
	headBranch, err := gitprim.GetHeadBranch(ctx, path)
	if err != nil {
		return Failed, err
	}
	t.Point("preflight")

	// B. Stash.
	dirty, err := gitprim.HasUncommittedChanges(ctx, path)
	if err != nil {
		return Failed, err
	}
	if dirty {
		stashRef, err := gitprim.StashSave(ctx, path, "GX auto-stash for "+spec.ID)
		if err != nil {
			return Failed, err
		}
		t.PushRecoverable(txn.Stash, "pop auto-stash", map[string]string{
			"repo_path": path, "stash_ref": stashRef,
		}, func() error {
			return gitprim.StashPop(ctx, path, stashRef)
		})
	}
	t.Point("stash")

	// C. Switch to head branch.
	if originalBranch != headBranch {
		if err := gitprim.SwitchBranch(ctx, path, headBranch); err != nil {
			return Failed, err
		}
		t.PushRecoverable(txn.Branch, "switch back to original branch", map[string]string{
			"repo_path": path, "branch": originalBranch,
		}, func() error {
			return gitprim.SwitchBranch(ctx, path, originalBranch)
		})
	}
	t.Point("on-head-branch")

	// D. Sync.
	if err := gitprim.PullFFOnly(ctx, path); err != nil {
		return Failed, err
	}
	t.Point("pulled")

	// E. Apply edits.
	filesAffected, subStats, diffSummary, err := applyEdits(path, repo.MatchingFiles, spec.Change, t)
	if err != nil {
		return Failed, err
	}
	result.FilesAffected = filesAffected
	result.SubstitutionStats = subStats
	result.DiffSummary = diffSummary

	t.Push(txn.File, "hard reset as safety net", func() error {
		return gitprim.ResetHard(ctx, path)
	})
	t.Point("edited")

	if len(filesAffected) == 0 {
		t.Rollback()
		return DryRun, nil
	}

	// F. Dry-run gate.
	if spec.IsDryRun() {
		t.Rollback()
		return DryRun, nil
	}

	// G. Change branch.
	branchExisted, err := gitprim.BranchExistsLocal(ctx, path, spec.ID)
	if err != nil {
		return Failed, err
	}
	if err := gitprim.CreateBranch(ctx, path, spec.ID); err != nil {
		return Failed, err
	}
	t.PushRecoverable(txn.Branch, "switch back and drop change branch", map[string]string{
		"repo_path": path, "branch": spec.ID, "original_branch": originalBranch,
		"branch_preexisted": fmt.Sprintf("%t", branchExisted),
	}, func() error {
		if err := gitprim.SwitchBranch(ctx, path, originalBranch); err != nil {
			return err
		}
		if !branchExisted {
			return gitprim.DeleteLocalBranch(ctx, path, spec.ID)
		}
		return nil
	})
	t.Point("branch-ready")
	if hooks.OnBranchReady != nil {
		hooks.OnBranchReady(spec.ID, path, originalBranch, result.FilesAffected)
	}

	// H. Commit.
	if err := gitprim.AddAll(ctx, path); err != nil {
		return Failed, err
	}
	if err := gitprim.Commit(ctx, path, spec.CommitMessage); err != nil {
		return Failed, err
	}
	t.PushRecoverable(txn.Git, "reset the commit", map[string]string{
		"repo_path": path,
	}, func() error {
		return gitprim.ResetCommit(ctx, path)
	})
	t.Point("committed")

	// I. Push.
	if err := gitprim.Push(ctx, path, spec.ID); err != nil {
		return Failed, err
	}
	t.PushRecoverable(txn.Remote, "delete pushed branch", map[string]string{
		"repo_path": path, "repo_slug": repo.Slug, "branch": spec.ID,
	}, func() error {
		return gitprim.DeleteRemoteBranch(ctx, path, spec.ID)
	})
	t.Point("pushed")
	if hooks.OnPushed != nil {
		hooks.OnPushed()
	}

	action := Committed

	// J. PR (optional).
	if spec.PRMode != PRNone {
		prNumber, prURL, err := openPR(ctx, repo.Slug, spec, headBranch)
		if err != nil {
			log.Error().Err(err).Str("repo", repo.Slug).Msg("PR creation failed, keeping commit/push")
			if hooks.OnPRFailed != nil {
				hooks.OnPRFailed(err)
			}
		} else {
			result.PRNumber = prNumber
			result.PRURL = prURL
			action = PrCreated
			if hooks.OnPRCreated != nil {
				hooks.OnPRCreated(prNumber, prURL, spec.PRMode == PRDraft)
			}
		}
	}
	t.Point("pr-opened")

	// K. Finalize.
	t.Commit()
	return action, nil
}

func openPR(ctx context.Context, slug string, spec Spec, base string) (int, string, error) {
	title, body := splitCommitMessage(spec.CommitMessage)
	res, err := ghbridge.CreatePR(ctx, slug, spec.ID, title, body, base, spec.ID, spec.PRMode == PRDraft)
	if err != nil {
		return 0, "", err
	}
	return res.Number, res.URL, nil
}

func splitCommitMessage(msg string) (title, body string) {
	for i, r := range msg {
		if r == '\n' {
			return msg[:i], msg[i+1:]
		}
	}
	return msg, ""
}

// applyEdits runs the change over every matching file, registering rollback
// and cleanup actions per file, and returns the list of files actually
// touched plus (for Sub/Regex) aggregate substitution stats.
func applyEdits(repoPath string, matchingFiles []string, c Change, t *txn.Transaction) ([]string, *SubstitutionStats, string, error) {
	if c.Kind == KindRegex {
		if err := ValidatePattern(c.Pattern); err != nil {
			return nil, nil, "", err
		}
	}

	var stats *SubstitutionStats
	if c.Kind == KindSub || c.Kind == KindRegex {
		stats = &SubstitutionStats{}
	}

	var filesAffected []string
	var diffParts []string

	targets := matchingFiles
	if c.Kind == KindAdd {
		targets = []string{c.Path}
	}

	for _, rel := range targets {
		path := filePath(repoPath, rel)

		var before string
		if fsutil.Exists(path) {
			var readErr error
			before, readErr = fsutil.ReadFile(path)
			if readErr != nil {
				before = ""
			}
		}

		if stats != nil {
			stats.FilesScanned++
		}

		res, err := ApplyToFile(c, path)
		if err != nil {
			return nil, nil, "", err
		}

		switch res.Outcome {
		case NoMatches:
			if stats != nil {
				stats.FilesNoChange++
			}
			continue
		case NoChange:
			if stats != nil {
				stats.FilesWithMatches++
				stats.FilesNoChange++
			}
			continue
		case Changed:
			if stats != nil {
				stats.FilesWithMatches++
				stats.FilesChanged++
				stats.TotalMatches += res.MatchCount
			}
		}

		filesAffected = append(filesAffected, rel)

		backupPath := res.BackupPath
		registerFileRollback(t, path, before, backupPath, c.Kind)

		after, _ := fsutil.ReadFile(path)
		if diff := fsutil.GenerateDiff(rel, rel, before, after, fsutil.DiffOptions{Context: 3}); diff != "" {
			diffParts = append(diffParts, diff)
		}
	}

	diffSummary := ""
	for i, d := range diffParts {
		if i > 0 {
			diffSummary += "\n"
		}
		diffSummary += d
	}

	return filesAffected, stats, diffSummary, nil
}

func registerFileRollback(t *txn.Transaction, path, before, backupPath string, kind Kind) {
	desc := fmt.Sprintf("restore %s", path)
	if kind == KindAdd && backupPath == "" {
		t.PushRecoverable(txn.File, desc, map[string]string{"path": path, "created": "true"}, func() error {
			return fsutil.Delete(path)
		})
		return
	}

	if backupPath != "" {
		t.PushRecoverable(txn.File, desc, map[string]string{"path": path, "backup": backupPath}, func() error {
			return fsutil.RestoreFromBackup(backupPath, path)
		})
		t.Push(txn.Cleanup, fmt.Sprintf("delete backup for %s", path), func() error {
			return fsutil.CleanupBackup(backupPath)
		})
		return
	}

	capturedBefore := before
	t.Push(txn.File, desc, func() error {
		return fsutil.WriteFile(path, capturedBefore)
	})
}
