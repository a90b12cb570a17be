// Package review implements the ls/clone/approve/delete/purge flows that
// operate on PRs already opened by the change engine: resolving which
// GitHub account(s) to query, aggregating PRs by change-id across those
// accounts, and driving the GitHub bridge to approve, close, or purge them.
package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/discovery"
	"github.com/scottidler/gx/internal/ghbridge"
	"github.com/scottidler/gx/internal/gitprim"
	"github.com/scottidler/gx/internal/sshresolve"
	"github.com/scottidler/gx/internal/state"
)

// Action is what a review operation did to one aggregate entry.
type Action string

const (
	Listed   Action = "Listed"
	Cloned   Action = "Cloned"
	Approved Action = "Approved"
	Deleted  Action = "Deleted"
	Purged   Action = "Purged"
)

// Result is the outcome of a review operation against one PR or repo.
type Result struct {
	RepoSlug    string
	ChangeID    string
	PRNumber    int // 0 when the action (e.g. Purged) isn't PR-scoped
	Action      Action
	LocalStatus state.RepoChangeStatus // set when a ChangeState entry correlates, empty otherwise
	Error       error
}

// DetectionMethod records how an account was resolved, for display/logging.
type DetectionMethod string

const (
	Explicit      DetectionMethod = "explicit"
	AutoDetected  DetectionMethod = "auto-detected"
	Configuration DetectionMethod = "configuration"
)

// Account is a resolved GitHub account (user or org) to query.
type Account struct {
	Name   string
	Method DetectionMethod
}

var nonOwnerDirNames = map[string]bool{
	"src":       true,
	"projects":  true,
	"workspace": true,
	"repos":     true,
	"git":       true,
}

// ResolveAccounts implements the precedence in spec.md §4.11: explicit flag,
// then auto-detection from the owner component of discovered repos' paths,
// then the configured default. repos is expected to already be filtered to
// the working tree under consideration.
func ResolveAccounts(explicit, configDefault string, repos []discovery.Repo) ([]Account, error) {
	if explicit != "" {
		return []Account{{Name: explicit, Method: Explicit}}, nil
	}

	if detected := autoDetectAccounts(repos); len(detected) > 0 {
		accounts := make([]Account, 0, len(detected))
		for _, name := range detected {
			accounts = append(accounts, Account{Name: name, Method: AutoDetected})
		}
		return accounts, nil
	}

	if configDefault != "" {
		return []Account{{Name: configDefault, Method: Configuration}}, nil
	}

	return nil, fmt.Errorf("unable to determine account: not specified explicitly, cannot auto-detect from directory structure, and no default configured")
}

// autoDetectAccounts inspects each repo's parent directory name, treating it
// as an owner unless it's a common non-owner layout name (src, projects,
// workspace, repos, git), and returns the deduplicated, sorted set found.
func autoDetectAccounts(repos []discovery.Repo) []string {
	seen := map[string]bool{}
	for _, r := range repos {
		owner := filepath.Base(filepath.Dir(r.Path))
		if owner == "" || owner == "." || owner == string(filepath.Separator) {
			continue
		}
		if nonOwnerDirNames[owner] {
			continue
		}
		seen[owner] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// aggregatedPR is one PR found during ls/clone/approve/delete.
type aggregatedPR struct {
	pr ghbridge.PRInfo
}

// List queries every account in parallel for PRs whose head branch matches
// changeID and correlates each hit against changeState (which may be nil)
// so the caller sees per-repo persisted status alongside the live PR state.
func List(ctx context.Context, accounts []Account, changeID string, cs *state.ChangeState) ([]Result, error) {
	prs, err := gatherPRs(ctx, accounts, changeID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(prs))
	for _, a := range prs {
		r := Result{
			RepoSlug: a.pr.RepoSlug,
			ChangeID: changeID,
			PRNumber: a.pr.Number,
			Action:   Listed,
		}
		if cs != nil {
			if repoState, ok := cs.Repositories[a.pr.RepoSlug]; ok {
				r.LocalStatus = repoState.Status
			}
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results, nil
}

// gatherPRs queries every account in parallel and deduplicates by (repo, PR
// number). An account whose query fails is logged and contributes no PRs.
func gatherPRs(ctx context.Context, accounts []Account, changeID string) ([]aggregatedPR, error) {
	type outcome struct {
		prs []ghbridge.PRInfo
		err error
	}

	out := make(chan outcome, len(accounts))
	var wg sync.WaitGroup
	for _, acct := range accounts {
		wg.Add(1)
		go func(acct Account) {
			defer wg.Done()
			prs, err := ghbridge.ListPRsByOrgAndChangeID(ctx, acct.Name, changeID)
			if err != nil {
				log.Warn().Err(err).Str("account", acct.Name).Str("change_id", changeID).
					Msg("failed to list PRs for account")
				out <- outcome{}
				return
			}
			out <- outcome{prs: prs}
		}(acct)
	}
	wg.Wait()
	close(out)

	seen := map[string]bool{}
	var all []aggregatedPR
	for o := range out {
		for _, pr := range o.prs {
			key := fmt.Sprintf("%s#%d", pr.RepoSlug, pr.Number)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, aggregatedPR{pr: pr})
		}
	}
	return all, nil
}

// CloneOptions configures Clone.
type CloneOptions struct {
	BaseDir       string // directory under which owner/name clones are created
	IncludeClosed bool   // clone repos even when their PR isn't open
}

// Clone fetches or updates a local clone for every PR found for changeID
// across accounts, laid out as BaseDir/owner/name.
func Clone(ctx context.Context, accounts []Account, changeID string, opts CloneOptions) ([]Result, error) {
	prs, err := gatherPRs(ctx, accounts, changeID)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, a := range prs {
		if !opts.IncludeClosed && a.pr.State != ghbridge.Open {
			continue
		}
		results = append(results, cloneOne(ctx, a.pr, changeID, opts.BaseDir))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results, nil
}

func cloneOne(ctx context.Context, pr ghbridge.PRInfo, changeID, baseDir string) Result {
	owner, name := splitSlug(pr.RepoSlug)
	repoDir := filepath.Join(baseDir, owner, name)

	if dirExists(repoDir) {
		if err := gitprim.PullFFOnly(ctx, repoDir); err != nil {
			return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Cloned, Error: err}
		}
		return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Cloned}
	}

	url, err := sshresolve.BuildSSHURL(pr.RepoSlug)
	if err != nil {
		return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Cloned, Error: err}
	}
	if err := gitprim.Clone(ctx, url, repoDir); err != nil {
		return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Cloned, Error: err}
	}
	return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Cloned}
}

func splitSlug(slug string) (owner, name string) {
	for i := 0; i < len(slug); i++ {
		if slug[i] == '/' {
			return slug[:i], slug[i+1:]
		}
	}
	return "", slug
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Approve approves and merges every open PR found for changeID across
// accounts, in parallel.
func Approve(ctx context.Context, accounts []Account, changeID string, admin bool) ([]Result, error) {
	prs, err := gatherPRs(ctx, accounts, changeID)
	if err != nil {
		return nil, err
	}

	var openPRs []ghbridge.PRInfo
	for _, a := range prs {
		if a.pr.State == ghbridge.Open {
			openPRs = append(openPRs, a.pr)
		}
	}

	results := parallelMap(openPRs, func(pr ghbridge.PRInfo) Result {
		if err := ghbridge.ApprovePR(ctx, pr.RepoSlug, pr.Number); err != nil {
			log.Warn().Err(err).Str("repo", pr.RepoSlug).Int("pr", pr.Number).Msg("approve failed, attempting merge anyway")
		}
		if err := ghbridge.MergePR(ctx, pr.RepoSlug, pr.Number, admin); err != nil {
			return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Approved, Error: err}
		}
		return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Approved}
	})

	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results, nil
}

// Delete closes every open PR found for changeID across accounts and
// deletes its remote branch.
func Delete(ctx context.Context, accounts []Account, changeID string) ([]Result, error) {
	prs, err := gatherPRs(ctx, accounts, changeID)
	if err != nil {
		return nil, err
	}

	var openPRs []ghbridge.PRInfo
	for _, a := range prs {
		if a.pr.State == ghbridge.Open {
			openPRs = append(openPRs, a.pr)
		}
	}

	results := parallelMap(openPRs, func(pr ghbridge.PRInfo) Result {
		if err := ghbridge.ClosePR(ctx, pr.RepoSlug, pr.Number); err != nil {
			return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Deleted, Error: err}
		}
		if err := ghbridge.DeleteRemoteBranch(ctx, pr.RepoSlug, pr.Branch); err != nil {
			return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Deleted, Error: err}
		}
		return Result{RepoSlug: pr.RepoSlug, ChangeID: changeID, PRNumber: pr.Number, Action: Deleted}
	})

	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results, nil
}

// Purge lists every branch beginning with "GX-" across repos and deletes
// each of them both remotely and from the local clone when present.
func Purge(ctx context.Context, repos []discovery.Repo) ([]Result, error) {
	results := parallelMap(repos, func(repo discovery.Repo) Result {
		if repo.Slug == "" {
			return Result{RepoSlug: repo.Name, Action: Purged, Error: fmt.Errorf("no GitHub remote detected")}
		}

		branches, err := ghbridge.ListBranchesWithPrefix(ctx, repo.Slug, "GX-")
		if err != nil {
			return Result{RepoSlug: repo.Slug, Action: Purged, Error: err}
		}

		var errs []string
		deleted := 0
		for _, branch := range branches {
			if err := ghbridge.DeleteRemoteBranch(ctx, repo.Slug, branch); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", branch, err))
				continue
			}
			if err := gitprim.DeleteLocalBranch(ctx, repo.Path, branch); err != nil {
				errs = append(errs, fmt.Sprintf("%s (local): %v", branch, err))
				continue
			}
			deleted++
		}

		if len(errs) > 0 {
			return Result{RepoSlug: repo.Slug, Action: Purged, Error: fmt.Errorf("purged %d, %d errors: %v", deleted, len(errs), errs)}
		}
		return Result{RepoSlug: repo.Slug, Action: Purged}
	})

	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results, nil
}

// parallelMap runs fn over every item concurrently and collects results in
// arbitrary completion order; callers that need a stable order should sort
// afterward.
func parallelMap[T any](items []T, fn func(T) Result) []Result {
	results := make([]Result, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			results[i] = fn(item)
		}(i, item)
	}
	wg.Wait()
	return results
}

// Summary tallies a batch of review Results by action and error count.
type Summary struct {
	Total    int
	Listed   int
	Cloned   int
	Approved int
	Deleted  int
	Purged   int
	Errors   int
}

// Summarize computes a Summary over results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Error != nil {
			s.Errors++
		}
		switch r.Action {
		case Listed:
			s.Listed++
		case Cloned:
			s.Cloned++
		case Approved:
			s.Approved++
		case Deleted:
			s.Deleted++
		case Purged:
			s.Purged++
		}
	}
	return s
}
