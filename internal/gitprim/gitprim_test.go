package gitprim

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
}

func TestCurrentBranchAndCommit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initRepo(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hello"), 0644))
	require.NoError(t, AddAll(ctx, dir))
	require.NoError(t, Commit(ctx, dir, "initial"))

	branch, err := CurrentBranch(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, "main", branch)

	sha, err := HeadSHA(ctx, dir, "HEAD")
	require.NoError(t, err)
	require.Len(t, sha, 40)
}

func TestCreateBranchAndSwitchBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, AddAll(ctx, dir))
	require.NoError(t, Commit(ctx, dir, "initial"))

	require.NoError(t, CreateBranch(ctx, dir, "GX-test-branch"))
	branch, err := CurrentBranch(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, "GX-test-branch", branch)

	exists, err := BranchExistsLocal(ctx, dir, "GX-test-branch")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, SwitchBranch(ctx, dir, "main"))
	require.NoError(t, DeleteLocalBranch(ctx, dir, "GX-test-branch"))

	exists, err = BranchExistsLocal(ctx, dir, "GX-test-branch")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStashSaveAndPop(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, AddAll(ctx, dir))
	require.NoError(t, Commit(ctx, dir, "initial"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("b"), 0644))
	has, err := HasUncommittedChanges(ctx, dir)
	require.NoError(t, err)
	require.True(t, has)

	ref, err := StashSave(ctx, dir, "gx auto-stash")
	require.NoError(t, err)

	has, err = HasUncommittedChanges(ctx, dir)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, StashPop(ctx, dir, ref))
	has, err = HasUncommittedChanges(ctx, dir)
	require.NoError(t, err)
	require.True(t, has)
}

func TestPushAndRemoteBranchLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	remoteDir := t.TempDir()

	cmd := exec.Command("git", "init", "--bare", "-b", "main")
	cmd.Dir = remoteDir
	require.NoError(t, cmd.Run())

	initRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, AddAll(ctx, dir))
	require.NoError(t, Commit(ctx, dir, "initial"))

	remoteAdd := exec.Command("git", "remote", "add", "origin", remoteDir)
	remoteAdd.Dir = dir
	require.NoError(t, remoteAdd.Run())

	require.NoError(t, Push(ctx, dir, "main"))

	require.NoError(t, CreateBranch(ctx, dir, "GX-feature"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
	require.NoError(t, AddAll(ctx, dir))
	require.NoError(t, Commit(ctx, dir, "feature commit"))
	require.NoError(t, Push(ctx, dir, "GX-feature"))

	exists, err := BranchExistsRemote(ctx, dir, "GX-feature")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, DeleteRemoteBranch(ctx, dir, "GX-feature"))
	exists, err = BranchExistsRemote(ctx, dir, "GX-feature")
	require.NoError(t, err)
	require.False(t, exists)
}
