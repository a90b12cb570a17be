package change

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRemoteAndClone(t *testing.T) (repoDir, remoteDir string) {
	t.Helper()
	remoteDir = t.TempDir()
	repoDir = t.TempDir()

	run := func(dir string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run(remoteDir, "init", "--bare", "-b", "main")
	run(repoDir, "init", "-b", "main")
	run(repoDir, "config", "user.email", "test@example.com")
	run(repoDir, "config", "user.name", "Test User")
	run(repoDir, "remote", "add", "origin", remoteDir)

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "VERSION.txt"), []byte("version = \"1.0.0\"\n"), 0644))
	run(repoDir, "add", "-A")
	run(repoDir, "commit", "-m", "initial")
	run(repoDir, "push", "-u", "origin", "main")

	return repoDir, remoteDir
}

func TestPipelineDryRunLeavesRepoUntouched(t *testing.T) {
	ctx := context.Background()
	repoDir, _ := initRemoteAndClone(t)

	before, err := os.ReadFile(filepath.Join(repoDir, "VERSION.txt"))
	require.NoError(t, err)

	spec := Spec{
		ID: "GX-test-dry-run",
		Change: Change{
			Kind:        KindSub,
			Literal:     `version = "1.0.0"`,
			Replacement: `version = "1.1.0"`,
		},
		// CommitMessage left empty: dry-run.
	}
	repo := RepoInput{Slug: "acme/web", Path: repoDir, MatchingFiles: []string{"VERSION.txt"}}

	result := Run(ctx, repo, spec, Hooks{})
	require.Equal(t, DryRun, result.Action)
	require.Nil(t, result.Error)
	require.Equal(t, []string{"VERSION.txt"}, result.FilesAffected)

	after, err := os.ReadFile(filepath.Join(repoDir, "VERSION.txt"))
	require.NoError(t, err)
	require.Equal(t, before, after, "dry run must leave the file bit-identical")

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	require.NoError(t, err)
	require.Empty(t, string(out), "dry run must leave no uncommitted changes")

	_, err = os.Stat(filepath.Join(repoDir, "VERSION.txt.backup"))
	require.True(t, os.IsNotExist(err), "no backup sidecar should remain after dry run")

	branch := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	branch.Dir = repoDir
	branchOut, err := branch.Output()
	require.NoError(t, err)
	require.Equal(t, "main", trimNewline(string(branchOut)))
}

func TestPipelineRegexNoMatchIsDryRun(t *testing.T) {
	ctx := context.Background()
	repoDir, _ := initRemoteAndClone(t)

	spec := Spec{
		ID:            "GX-test-no-match",
		Change:        Change{Kind: KindRegex, Pattern: `v\d+\.\d+\.\d+-nonexistent`, Replacement: "x"},
		CommitMessage: "would-be commit",
	}
	repo := RepoInput{Slug: "acme/web", Path: repoDir, MatchingFiles: []string{"VERSION.txt"}}

	result := Run(ctx, repo, spec, Hooks{})
	require.Equal(t, DryRun, result.Action)
	require.Empty(t, result.FilesAffected)
	require.NotNil(t, result.SubstitutionStats)
	require.Equal(t, 1, result.SubstitutionStats.FilesNoChange)
}

func TestPipelineCommitAndPushCreatesChangeBranch(t *testing.T) {
	ctx := context.Background()
	repoDir, remoteDir := initRemoteAndClone(t)

	spec := Spec{
		ID: "GX-test-commit",
		Change: Change{
			Kind:        KindSub,
			Literal:     `version = "1.0.0"`,
			Replacement: `version = "2.0.0"`,
		},
		CommitMessage: "bump version",
		PRMode:        PRNone,
	}
	repo := RepoInput{Slug: "acme/web", Path: repoDir, MatchingFiles: []string{"VERSION.txt"}}

	result := Run(ctx, repo, spec, Hooks{})
	require.Nil(t, result.Error)
	require.Equal(t, Committed, result.Action)

	data, err := os.ReadFile(filepath.Join(repoDir, "VERSION.txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "2.0.0")

	branch := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	branch.Dir = repoDir
	out, err := branch.Output()
	require.NoError(t, err)
	require.Equal(t, "GX-test-commit", trimNewline(string(out)))

	refs := exec.Command("git", "show-ref")
	refs.Dir = remoteDir
	refsOut, err := refs.Output()
	require.NoError(t, err)
	require.Contains(t, string(refsOut), "GX-test-commit")

	_, err = os.Stat(filepath.Join(repoDir, "VERSION.txt.backup"))
	require.True(t, os.IsNotExist(err), "backup sidecar must be cleaned up on commit")
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
