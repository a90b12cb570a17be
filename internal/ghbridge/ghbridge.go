// Package ghbridge wraps the GitHub CLI (gh) for every PR and branch
// lifecycle operation gx needs: listing org repos, PR create/approve/merge/
// close, PR lookup by branch, and remote branch deletion/listing.
package ghbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scottidler/gx/internal/gxerr"
	"github.com/scottidler/gx/internal/procrun"
)

// PRState mirrors the GitHub CLI's upper-cased state strings.
type PRState string

const (
	Open   PRState = "OPEN"
	Closed PRState = "CLOSED"
	Merged PRState = "MERGED"
)

// PRInfo is a pull request as reported by gh pr list, restricted to the
// fields gx actually consumes.
type PRInfo struct {
	RepoSlug string
	Number   int
	Title    string
	Branch   string
	Author   string
	State    PRState
	URL      string
}

var defaultOpts = procrun.Options{MaxAttempts: 3, Timeout: 30 * time.Second}

// run invokes gh with retry and turns a non-zero exit into an error, since
// RunWithRetry itself only errors on process-start failure.
func run(ctx context.Context, args ...string) (procrun.Result, error) {
	res, err := procrun.RunWithRetry(ctx, "gh", args, defaultOpts)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("gh exited %d", res.ExitCode)
	}
	return res, nil
}

func authFailure(res procrun.Result) bool {
	lower := strings.ToLower(res.Stderr)
	return strings.Contains(lower, "not logged") || strings.Contains(lower, "no accounts") ||
		strings.Contains(lower, "authentication")
}

func wrapFailure(op string, res procrun.Result, err error) error {
	if authFailure(res) {
		return gxerr.New(gxerr.NotAuthenticated, op+": not authenticated with GitHub CLI", err)
	}
	stderr := strings.TrimSpace(res.Stderr)
	if stderr == "" {
		stderr = err.Error()
	}
	return gxerr.New(gxerr.ToolFailure, op+": "+stderr, err)
}

// ListOrgRepos lists repository slugs owned by owner, optionally including
// archived repositories.
func ListOrgRepos(ctx context.Context, owner string, includeArchived bool) ([]string, error) {
	args := []string{"repo", "list", owner, "--limit", "1000", "--json", "nameWithOwner,isArchived"}
	res, err := run(ctx, args...)
	if err != nil {
		return nil, wrapFailure("gh repo list", res, err)
	}

	var entries []struct {
		NameWithOwner string `json:"nameWithOwner"`
		IsArchived    bool   `json:"isArchived"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, gxerr.New(gxerr.ToolFailure, "failed to parse gh repo list output", err)
	}

	var slugs []string
	for _, e := range entries {
		if e.IsArchived && !includeArchived {
			continue
		}
		slugs = append(slugs, e.NameWithOwner)
	}
	return slugs, nil
}

// DefaultBranch returns the repository's default branch name.
func DefaultBranch(ctx context.Context, slug string) (string, error) {
	res, err := run(ctx, "repo", "view", slug, "--json", "defaultBranchRef")
	if err != nil {
		return "", wrapFailure("gh repo view", res, err)
	}

	var out struct {
		DefaultBranchRef struct {
			Name string `json:"name"`
		} `json:"defaultBranchRef"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return "", gxerr.New(gxerr.ToolFailure, "failed to parse gh repo view output", err)
	}
	return out.DefaultBranchRef.Name, nil
}

// CreatePRResult is what CreatePR returns on success.
type CreatePRResult struct {
	Number int
	URL    string
}

// CreatePR opens a PR for slug's head branch against base. Title is the
// first line of the commit message; body gets a trailing change-id line.
func CreatePR(ctx context.Context, slug, head, title, body, base, changeID string, draft bool) (CreatePRResult, error) {
	fullBody := body + "\n\nchange-id: " + changeID

	args := []string{"pr", "create", "-R", slug, "--title", title, "--body", fullBody, "--base", base, "--head", head}
	if draft {
		args = append(args, "--draft")
	}

	res, err := run(ctx, args...)
	if err != nil {
		return CreatePRResult{}, wrapFailure("gh pr create", res, err)
	}

	url := strings.TrimSpace(res.Stdout)
	if url == "" {
		return CreatePRResult{}, gxerr.New(gxerr.ToolFailure, "gh pr create returned no URL", nil)
	}

	var number int
	parts := strings.Split(url, "/")
	fmt.Sscanf(parts[len(parts)-1], "%d", &number)

	return CreatePRResult{Number: number, URL: url}, nil
}

// ApprovePR approves an open PR.
func ApprovePR(ctx context.Context, slug string, number int) error {
	res, err := run(ctx, "pr", "review", fmt.Sprintf("%d", number), "-R", slug, "--approve")
	if err != nil {
		return wrapFailure("gh pr review --approve", res, err)
	}
	return nil
}

// MergePR squash-merges a PR and deletes its branch, adding the
// admin-override flag when admin is true (bypassing required review/check
// restrictions).
func MergePR(ctx context.Context, slug string, number int, admin bool) error {
	args := []string{"pr", "merge", fmt.Sprintf("%d", number), "-R", slug, "--squash", "--delete-branch"}
	if admin {
		args = append(args, "--admin")
	}
	res, err := run(ctx, args...)
	if err != nil {
		return wrapFailure("gh pr merge", res, err)
	}
	return nil
}

// ClosePR closes a PR without merging.
func ClosePR(ctx context.Context, slug string, number int) error {
	res, err := run(ctx, "pr", "close", fmt.Sprintf("%d", number), "-R", slug)
	if err != nil {
		return wrapFailure("gh pr close", res, err)
	}
	return nil
}

// ListPRsByBranch returns every PR in slug whose head branch is headBranch,
// in any state. Empty input yields an empty (non-nil-error) list.
func ListPRsByBranch(ctx context.Context, slug, headBranch string) ([]PRInfo, error) {
	args := []string{"pr", "list", "-R", slug, "--head", headBranch, "--state", "all",
		"--json", "number,title,headRefName,author,state,url"}
	res, err := run(ctx, args...)
	if err != nil {
		return nil, wrapFailure("gh pr list", res, err)
	}

	return parsePRList(slug, res.Stdout)
}

func parsePRList(slug, stdout string) ([]PRInfo, error) {
	var entries []struct {
		Number      int    `json:"number"`
		Title       string `json:"title"`
		HeadRefName string `json:"headRefName"`
		Author      struct {
			Login string `json:"login"`
		} `json:"author"`
		State string `json:"state"`
		URL   string `json:"url"`
	}
	if strings.TrimSpace(stdout) == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		return nil, gxerr.New(gxerr.ToolFailure, "failed to parse gh pr list output", err)
	}

	prs := make([]PRInfo, 0, len(entries))
	for _, e := range entries {
		prs = append(prs, PRInfo{
			RepoSlug: slug,
			Number:   e.Number,
			Title:    e.Title,
			Branch:   e.HeadRefName,
			Author:   e.Author.Login,
			State:    PRState(strings.ToUpper(e.State)),
			URL:      e.URL,
		})
	}
	return prs, nil
}

// ListPRsByOrgAndChangeID searches every repo in org for PRs whose head
// branch matches changeID, via gh's cross-repo search rather than a
// per-repo listing.
func ListPRsByOrgAndChangeID(ctx context.Context, org, changeID string) ([]PRInfo, error) {
	search := fmt.Sprintf("org:%s head:%s", org, changeID)
	res, err := run(ctx, "pr", "list", "--search", search,
		"--json", "number,title,headRefName,author,state,url,repository", "--limit", "100")
	if err != nil {
		return nil, wrapFailure("gh pr list --search", res, err)
	}
	return parsePRSearchList(res.Stdout)
}

func parsePRSearchList(stdout string) ([]PRInfo, error) {
	var entries []struct {
		Number      int    `json:"number"`
		Title       string `json:"title"`
		HeadRefName string `json:"headRefName"`
		Author      struct {
			Login string `json:"login"`
		} `json:"author"`
		State      string `json:"state"`
		URL        string `json:"url"`
		Repository struct {
			NameWithOwner string `json:"nameWithOwner"`
		} `json:"repository"`
	}
	if strings.TrimSpace(stdout) == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		return nil, gxerr.New(gxerr.ToolFailure, "failed to parse gh pr list --search output", err)
	}

	prs := make([]PRInfo, 0, len(entries))
	for _, e := range entries {
		prs = append(prs, PRInfo{
			RepoSlug: e.Repository.NameWithOwner,
			Number:   e.Number,
			Title:    e.Title,
			Branch:   e.HeadRefName,
			Author:   e.Author.Login,
			State:    PRState(strings.ToUpper(e.State)),
			URL:      e.URL,
		})
	}
	return prs, nil
}

// DeleteRemoteBranch deletes branch from slug's remote via the GitHub API,
// tolerating the branch already being gone.
func DeleteRemoteBranch(ctx context.Context, slug, branch string) error {
	res, err := run(ctx, "api", fmt.Sprintf("repos/%s/git/refs/heads/%s", slug, branch), "--method", "DELETE")
	if err != nil {
		if strings.Contains(strings.ToLower(res.Stderr), "reference does not exist") {
			return nil
		}
		return wrapFailure("gh api delete ref", res, err)
	}
	return nil
}

// ListBranchesWithPrefix lists branch names on slug's remote beginning with
// prefix, for the review engine's purge flow.
func ListBranchesWithPrefix(ctx context.Context, slug, prefix string) ([]string, error) {
	res, err := run(ctx, "api", fmt.Sprintf("repos/%s/branches", slug), "--paginate", "--jq", ".[].name")
	if err != nil {
		return nil, wrapFailure("gh api branches", res, err)
	}

	var matches []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name != "" && strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	return matches, nil
}
