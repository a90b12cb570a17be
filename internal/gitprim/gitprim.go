// Package gitprim provides thin, typed wrappers over the git CLI: current
// branch, HEAD SHA, porcelain status, branch existence, create/switch/delete
// branch, stash push/pop, add/commit, push, fetch, resets, remote URL, head
// branch resolution, ls-remote SHA, and rev-list counting.
package gitprim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/scottidler/gx/internal/gxerr"
)

// runGit executes `git <args>` in dir and returns trimmed combined
// stdout/stderr plus the error, in the same shape the teacher repo uses.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

func wrapFailure(op, stderr string, err error) error {
	return gxerr.New(gxerr.ToolFailure, fmt.Sprintf("git %s failed", op), errors.New(strings.TrimSpace(stderr+" "+err.Error())))
}

// StatusEntryKind is the kind of a single porcelain status line.
type StatusEntryKind string

const (
	Modified  StatusEntryKind = "Modified"
	Added     StatusEntryKind = "Added"
	Deleted   StatusEntryKind = "Deleted"
	Renamed   StatusEntryKind = "Renamed"
	Untracked StatusEntryKind = "Untracked"
	Staged    StatusEntryKind = "Staged"
)

type StatusEntry struct {
	Kind StatusEntryKind
	Path string
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached.
func CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := runGit(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", wrapFailure("rev-parse --abbrev-ref HEAD", out, err)
	}
	return out, nil
}

// HeadSHA returns the 40-char SHA of ref (default "HEAD").
func HeadSHA(ctx context.Context, path, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	out, err := runGit(ctx, path, "rev-parse", ref)
	if err != nil {
		return "", wrapFailure("rev-parse "+ref, out, err)
	}
	return out, nil
}

// PorcelainStatus parses `git status --porcelain` into typed entries.
func PorcelainStatus(ctx context.Context, path string) ([]StatusEntry, error) {
	out, err := runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, wrapFailure("status --porcelain", out, err)
	}
	if out == "" {
		return nil, nil
	}

	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		filePath := strings.TrimSpace(line[3:])
		entries = append(entries, StatusEntry{Kind: classifyStatusCode(code), Path: filePath})
	}
	return entries, nil
}

func classifyStatusCode(code string) StatusEntryKind {
	switch {
	case code == "??":
		return Untracked
	case strings.Contains(code, "A"):
		return Added
	case strings.Contains(code, "D"):
		return Deleted
	case strings.Contains(code, "R"):
		return Renamed
	case code[0] != ' ' && code[0] != '?':
		return Staged
	default:
		return Modified
	}
}

// BranchExistsLocal reports whether a local branch exists.
func BranchExistsLocal(ctx context.Context, path, name string) (bool, error) {
	_, err := runGit(ctx, path, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// BranchExistsRemote reports whether a branch exists on origin.
func BranchExistsRemote(ctx context.Context, path, name string) (bool, error) {
	out, err := runGit(ctx, path, "ls-remote", "--heads", "origin", name)
	if err != nil {
		return false, wrapFailure("ls-remote --heads origin "+name, out, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CreateBranch switches to name: checking it out if it exists locally,
// tracking origin if it exists remotely, else branching from current HEAD.
// A failed remote lookup (e.g. a repo with no origin) counts as the branch
// not existing remotely.
func CreateBranch(ctx context.Context, path, name string) error {
	localExists, err := BranchExistsLocal(ctx, path, name)
	if err != nil {
		return err
	}
	if localExists {
		return SwitchBranch(ctx, path, name)
	}

	remoteExists, err := BranchExistsRemote(ctx, path, name)
	if err == nil && remoteExists {
		out, err := runGit(ctx, path, "checkout", "-b", name, "origin/"+name)
		if err != nil {
			return wrapFailure("checkout -b "+name+" origin/"+name, out, err)
		}
		return nil
	}

	out, err := runGit(ctx, path, "checkout", "-b", name)
	if err != nil {
		return wrapFailure("checkout -b "+name, out, err)
	}
	return nil
}

// SwitchBranch checks out an existing local branch.
func SwitchBranch(ctx context.Context, path, name string) error {
	out, err := runGit(ctx, path, "checkout", name)
	if err != nil {
		return wrapFailure("checkout "+name, out, err)
	}
	return nil
}

// DeleteLocalBranch deletes a local branch, tolerating "branch not found".
func DeleteLocalBranch(ctx context.Context, path, name string) error {
	exists, err := BranchExistsLocal(ctx, path, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	out, err := runGit(ctx, path, "branch", "-D", name)
	if err != nil {
		return wrapFailure("branch -D "+name, out, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on origin, tolerating "remote ref does
// not exist".
func DeleteRemoteBranch(ctx context.Context, path, name string) error {
	out, err := runGit(ctx, path, "push", "origin", "--delete", name)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "remote ref does not exist") {
			return nil
		}
		return wrapFailure("push origin --delete "+name, out, err)
	}
	return nil
}

// StashSave stashes uncommitted changes (including untracked files) with
// message and returns a stash reference (always "stash@{0}" immediately
// after a push, by git's own convention).
func StashSave(ctx context.Context, path, message string) (string, error) {
	out, err := runGit(ctx, path, "stash", "push", "--include-untracked", "-m", message)
	if err != nil {
		return "", wrapFailure("stash push", out, err)
	}
	return "stash@{0}", nil
}

// StashPop applies and drops the given stash reference.
func StashPop(ctx context.Context, path, ref string) error {
	out, err := runGit(ctx, path, "stash", "pop", ref)
	if err != nil {
		return wrapFailure("stash pop "+ref, out, err)
	}
	return nil
}

// HasUncommittedChanges reports whether the working tree has staged,
// unstaged, or untracked changes.
func HasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	entries, err := PorcelainStatus(ctx, path)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// AddAll stages every change in the working tree.
func AddAll(ctx context.Context, path string) error {
	out, err := runGit(ctx, path, "add", "-A")
	if err != nil {
		return wrapFailure("add -A", out, err)
	}
	return nil
}

// Commit creates a commit with message.
func Commit(ctx context.Context, path, message string) error {
	out, err := runGit(ctx, path, "commit", "-m", message)
	if err != nil {
		return wrapFailure("commit", out, err)
	}
	return nil
}

// Push pushes branch to origin, creating the upstream tracking ref.
func Push(ctx context.Context, path, branch string) error {
	out, err := runGit(ctx, path, "push", "-u", "origin", branch)
	if err != nil {
		return wrapFailure("push -u origin "+branch, out, err)
	}
	return nil
}

// PullFFOnly fast-forward-pulls the current branch.
func PullFFOnly(ctx context.Context, path string) error {
	out, err := runGit(ctx, path, "pull", "--ff-only")
	if err != nil {
		return wrapFailure("pull --ff-only", out, err)
	}
	return nil
}

// ResetHard resets the working tree and index to HEAD, discarding all local
// changes.
func ResetHard(ctx context.Context, path string) error {
	out, err := runGit(ctx, path, "reset", "--hard")
	if err != nil {
		return wrapFailure("reset --hard", out, err)
	}
	return nil
}

// ResetCommit undoes the most recent commit while keeping its changes
// staged (soft reset HEAD~1).
func ResetCommit(ctx context.Context, path string) error {
	out, err := runGit(ctx, path, "reset", "--soft", "HEAD~1")
	if err != nil {
		return wrapFailure("reset --soft HEAD~1", out, err)
	}
	return nil
}

// RemoteURL returns the URL configured for origin.
func RemoteURL(ctx context.Context, path string) (string, error) {
	out, err := runGit(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		return "", wrapFailure("remote get-url origin", out, err)
	}
	return out, nil
}

// GetHeadBranch resolves the repository's default branch: first via
// origin/HEAD's symbolic ref, falling back to the first of main/master that
// exists on the remote.
func GetHeadBranch(ctx context.Context, path string) (string, error) {
	out, err := runGit(ctx, path, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
	}

	for _, candidate := range []string{"main", "master"} {
		if exists, existsErr := BranchExistsRemote(ctx, path, candidate); existsErr == nil && exists {
			return candidate, nil
		}
	}

	return "", gxerr.New(gxerr.NotFound, "could not resolve head branch", nil)
}

// LsRemoteSHA returns the SHA origin/<branch> currently points to.
func LsRemoteSHA(ctx context.Context, path, branch string) (string, error) {
	out, err := runGit(ctx, path, "ls-remote", "origin", "refs/heads/"+branch)
	if err != nil {
		return "", wrapFailure("ls-remote origin "+branch, out, err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", gxerr.New(gxerr.NotFound, "branch not found on remote: "+branch, nil)
	}
	return fields[0], nil
}

// CountCommits returns the number of commits reachable from toSHA but not
// from fromSHA (from..to).
func CountCommits(ctx context.Context, path, fromSHA, toSHA string) (int, error) {
	out, err := runGit(ctx, path, "rev-list", "--count", fromSHA+".."+toSHA)
	if err != nil {
		return 0, wrapFailure("rev-list --count", out, err)
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, gxerr.New(gxerr.Internal, "unparseable rev-list count: "+out, convErr)
	}
	return n, nil
}

// Clone clones url into destPath, with env injected (e.g. GIT_SSH_COMMAND).
func Clone(ctx context.Context, url, destPath string, extraEnv ...string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", url, destPath)
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return wrapFailure("clone "+url, out.String(), err)
	}
	return nil
}
