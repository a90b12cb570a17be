// Package cleanup deletes local (and optionally remote) branches left
// behind once a change's PRs have merged or closed, and retires the
// persisted ChangeState once every repo in a change has been cleaned up.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/ghbridge"
	"github.com/scottidler/gx/internal/gitprim"
	"github.com/scottidler/gx/internal/state"
)

// Result aggregates what happened when cleaning up one change.
type Result struct {
	ChangeID     string
	ReposCleaned int
	ReposSkipped int
	ReposFailed  int
	Errors       []string
}

// Options configures a cleanup run.
type Options struct {
	IncludeRemote bool   // also delete the branch on GitHub's remote
	Force         bool   // clean up even repos whose PR isn't merged/closed
	SearchRoot    string // base directory for the local-clone heuristic search
}

// List returns every change whose status makes it eligible for cleanup
// (FullyMerged or PartiallyMerged), for the `cleanup --list` surface.
func List(store *state.Store) ([]*state.ChangeState, error) {
	all, err := store.List()
	if err != nil {
		return nil, err
	}

	var cleanable []*state.ChangeState
	for _, cs := range all {
		if cs.Status == state.FullyMerged || cs.Status == state.PartiallyMerged {
			cleanable = append(cleanable, cs)
		}
	}
	return cleanable, nil
}

// All cleans up every change eligible under opts.Force, i.e. FullyMerged
// changes always, and PartiallyMerged changes only when Force is set.
func All(ctx context.Context, store *state.Store, opts Options) ([]Result, error) {
	all, err := store.List()
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, cs := range all {
		if cs.Status != state.FullyMerged && !(opts.Force && cs.Status == state.PartiallyMerged) {
			continue
		}
		results = append(results, One(ctx, store, cs, opts))
	}
	return results, nil
}

// One cleans up a single change, identified by its already-loaded
// ChangeState, saving the updated state afterward and deleting the state
// file entirely once every repo has been cleaned up.
func One(ctx context.Context, store *state.Store, cs *state.ChangeState, opts Options) Result {
	result := Result{ChangeID: cs.ChangeID}
	now := time.Now()

	for slug, repo := range cs.Repositories {
		if !opts.Force && repo.Status != state.PrMerged && repo.Status != state.PrClosed {
			log.Info().Str("repo", slug).Str("status", string(repo.Status)).Msg("skipping cleanup, PR not merged or closed")
			result.ReposSkipped++
			continue
		}
		if repo.Status == state.CleanedUp {
			continue
		}

		localPath := findRepoLocally(opts.SearchRoot, slug, repo.LocalPath)
		if localPath == "" {
			log.Info().Str("repo", slug).Msg("skipping cleanup, local clone not found")
			result.ReposSkipped++
			continue
		}

		if err := gitprim.DeleteLocalBranch(ctx, localPath, repo.BranchName); err != nil {
			if isAlreadyGone(err) {
				cs.MarkCleanedUp(slug, now)
				result.ReposSkipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", slug, err))
			result.ReposFailed++
			continue
		}

		cs.MarkCleanedUp(slug, now)
		result.ReposCleaned++

		if opts.IncludeRemote {
			if err := ghbridge.DeleteRemoteBranch(ctx, slug, repo.BranchName); err != nil {
				log.Warn().Err(err).Str("repo", slug).Str("branch", repo.BranchName).
					Msg("failed to delete remote branch during cleanup")
			}
		}
	}

	if err := store.Save(cs); err != nil {
		log.Error().Err(err).Str("change_id", cs.ChangeID).Msg("failed to save change state after cleanup")
	}

	if cs.AllCleanedUp() {
		if err := store.Delete(cs.ChangeID); err != nil {
			log.Error().Err(err).Str("change_id", cs.ChangeID).Msg("failed to delete change state after full cleanup")
		}
	}

	return result
}

func isAlreadyGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// findRepoLocally resolves a repo's local clone path: the recorded path
// from ChangeState if it still exists, else a heuristic search under root
// for ./name and ./owner/name.
func findRepoLocally(root, repoSlug, recordedPath string) string {
	if recordedPath != "" && isGitDir(recordedPath) {
		return recordedPath
	}

	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return ""
		}
	}

	name := repoSlug
	if i := strings.LastIndex(repoSlug, "/"); i >= 0 {
		name = repoSlug[i+1:]
	}

	direct := filepath.Join(root, name)
	if isGitDir(direct) {
		return direct
	}

	withOwner := filepath.Join(root, repoSlug)
	if isGitDir(withOwner) {
		return withOwner
	}

	return ""
}

func isGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}
