// Package rollback drives the `gx rollback` subcommand: listing, replaying,
// validating, and cleaning up the on-disk RecoveryRecords that a pipeline
// process leaves behind when it's interrupted mid-flight, per spec.md
// §4.14's "an interrupted process's recovery file is observable via a
// dedicated rollback path".
package rollback

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/fsutil"
	"github.com/scottidler/gx/internal/ghbridge"
	"github.com/scottidler/gx/internal/gitprim"
	"github.com/scottidler/gx/internal/txn"
)

// List returns every pending recovery record, for `rollback list`.
func List(store *txn.RecoveryStore) ([]*txn.RecoveryRecord, error) {
	return store.List()
}

// Result is the outcome of replaying one recovery record.
type Result struct {
	RecoveryID string
	RepoSlug   string
	Succeeded  int
	Failed     int
	Errors     []string
}

// Run replays a single recovery record's actions in reverse (LIFO) order,
// the same order a live Transaction.Rollback would have used, then deletes
// the record once every action has been attempted.
func Run(ctx context.Context, store *txn.RecoveryStore, id string) (Result, error) {
	rec, err := store.Load(id)
	if err != nil {
		return Result{}, err
	}
	if rec == nil {
		return Result{}, fmt.Errorf("no recovery record found for id %q", id)
	}

	result := Result{RecoveryID: id, RepoSlug: rec.RepoSlug}
	for i := len(rec.Actions) - 1; i >= 0; i-- {
		action := rec.Actions[i]
		if err := replay(ctx, action); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", action.Description, err))
			log.Error().Err(err).Str("description", action.Description).
				Str("kind", string(action.Kind)).Msg("recovery action replay failed")
			continue
		}
		result.Succeeded++
	}

	if err := store.Delete(id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to delete recovery record after replay")
	}
	return result, nil
}

// replay reconstructs and executes the rollback thunk for one recorded
// action from its Kind and Meta, mirroring the closures pipeline.go builds
// live (see registerFileRollback and runPhases' PushRecoverable calls).
func replay(ctx context.Context, action txn.RecoveryAction) error {
	meta := action.Meta
	switch action.Kind {
	case txn.File:
		path := meta["path"]
		if backup := meta["backup"]; backup != "" {
			return fsutil.RestoreFromBackup(backup, path)
		}
		if meta["created"] == "true" {
			return fsutil.Delete(path)
		}
		return fmt.Errorf("no replayable metadata for file action on %s", path)

	case txn.Stash:
		return gitprim.StashPop(ctx, meta["repo_path"], meta["stash_ref"])

	case txn.Branch:
		repoPath := meta["repo_path"]
		if original, ok := meta["original_branch"]; ok {
			if err := gitprim.SwitchBranch(ctx, repoPath, original); err != nil {
				return err
			}
			if meta["branch_preexisted"] != "true" {
				return gitprim.DeleteLocalBranch(ctx, repoPath, meta["branch"])
			}
			return nil
		}
		return gitprim.SwitchBranch(ctx, repoPath, meta["branch"])

	case txn.Git:
		return gitprim.ResetCommit(ctx, meta["repo_path"])

	case txn.Remote:
		return ghbridge.DeleteRemoteBranch(ctx, meta["repo_slug"], meta["branch"])

	default:
		return fmt.Errorf("unsupported recovery action kind %q", action.Kind)
	}
}

// Validate reports whether a recovery record's actions still look
// replayable (the repo path exists, and for File actions the backup file
// is still present), without executing anything - used by
// `rollback validate <id>` to check before committing to a run. The
// returned *multierror.Error aggregates every problem found; it is nil
// when the record is fully replayable.
func Validate(store *txn.RecoveryStore, id string) (*multierror.Error, error) {
	rec, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no recovery record found for id %q", id)
	}

	var problems *multierror.Error
	if !fsutil.Exists(rec.RepoPath) {
		problems = multierror.Append(problems, fmt.Errorf("repo path %s no longer exists", rec.RepoPath))
	}
	for _, a := range rec.Actions {
		if a.Kind == txn.File {
			if backup := a.Meta["backup"]; backup != "" && !fsutil.Exists(backup) {
				problems = multierror.Append(problems, fmt.Errorf("backup file missing: %s", backup))
			}
		}
	}
	return problems, nil
}

// Cleanup deletes every recovery record, used by `rollback cleanup` once
// the operator has manually reconciled state and wants a clean slate.
func Cleanup(store *txn.RecoveryStore) (int, error) {
	records, err := store.List()
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := store.Delete(rec.ID); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("failed to delete recovery record during cleanup")
		}
	}
	return len(records), nil
}
