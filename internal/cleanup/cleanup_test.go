package cleanup

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scottidler/gx/internal/state"
)

func initLocalRepo(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644))
	run("add", "-A")
	run("commit", "-m", "initial")
	run("branch", branch)

	return dir
}

func TestOneCleansMergedRepoAndDeletesStateWhenFullyCleaned(t *testing.T) {
	ctx := context.Background()
	repoDir := initLocalRepo(t, "GX-test-cleanup")

	storeDir := t.TempDir()
	store, err := state.NewStore(storeDir)
	require.NoError(t, err)

	now := time.Now()
	cs := state.New("GX-test-cleanup", "", now)
	cs.AddRepository("acme/web", "GX-test-cleanup", "", "", nil, now)
	cs.Repositories["acme/web"].LocalPath = repoDir
	cs.MarkMerged("acme/web", now)
	require.NoError(t, store.Save(cs))

	result := One(ctx, store, cs, Options{})
	require.Equal(t, 1, result.ReposCleaned)
	require.Equal(t, 0, result.ReposFailed)

	loaded, err := store.Load("GX-test-cleanup")
	require.NoError(t, err)
	require.Nil(t, loaded, "state file should be deleted once every repo is cleaned up")

	branchCmd := exec.Command("git", "branch", "--list", "GX-test-cleanup")
	branchCmd.Dir = repoDir
	out, err := branchCmd.Output()
	require.NoError(t, err)
	require.Empty(t, string(out), "local branch should be deleted")
}

func TestOneSkipsUnmergedReposWithoutForce(t *testing.T) {
	ctx := context.Background()
	repoDir := initLocalRepo(t, "GX-test-open")

	storeDir := t.TempDir()
	store, err := state.NewStore(storeDir)
	require.NoError(t, err)

	now := time.Now()
	cs := state.New("GX-test-open", "", now)
	cs.AddRepository("acme/web", "GX-test-open", "", "", nil, now)
	cs.Repositories["acme/web"].LocalPath = repoDir
	cs.SetPRInfo("acme/web", 1, "https://example.com/pr/1", false, now)
	require.NoError(t, store.Save(cs))

	result := One(ctx, store, cs, Options{})
	require.Equal(t, 0, result.ReposCleaned)
	require.Equal(t, 1, result.ReposSkipped)

	loaded, err := store.Load("GX-test-open")
	require.NoError(t, err)
	require.NotNil(t, loaded, "state file must survive when a repo still needs cleanup")
}

func TestOneSkipsWhenLocalCloneNotFound(t *testing.T) {
	ctx := context.Background()
	storeDir := t.TempDir()
	store, err := state.NewStore(storeDir)
	require.NoError(t, err)

	now := time.Now()
	cs := state.New("GX-test-missing", "", now)
	cs.AddRepository("acme/gone", "GX-test-missing", "", "", nil, now)
	cs.MarkMerged("acme/gone", now)
	require.NoError(t, store.Save(cs))

	result := One(ctx, store, cs, Options{SearchRoot: t.TempDir()})
	require.Equal(t, 0, result.ReposCleaned)
	require.Equal(t, 1, result.ReposSkipped)
}

func TestOneRetainsStateUntilEveryRepoIsCleanedUp(t *testing.T) {
	ctx := context.Background()
	repoA := initLocalRepo(t, "GX-test-partial")
	repoB := initLocalRepo(t, "GX-test-partial")

	storeDir := t.TempDir()
	store, err := state.NewStore(storeDir)
	require.NoError(t, err)

	now := time.Now()
	cs := state.New("GX-test-partial", "", now)
	cs.AddRepository("acme/a", "GX-test-partial", "", "", nil, now)
	cs.Repositories["acme/a"].LocalPath = repoA
	cs.MarkMerged("acme/a", now)
	cs.AddRepository("acme/b", "GX-test-partial", "", "", nil, now)
	cs.Repositories["acme/b"].LocalPath = repoB
	cs.MarkMerged("acme/b", now)
	cs.AddRepository("acme/c", "GX-test-partial", "", "", nil, now)
	cs.SetPRInfo("acme/c", 3, "https://example.com/pr/3", false, now)
	require.NoError(t, store.Save(cs))

	result := One(ctx, store, cs, Options{})
	require.Equal(t, 2, result.ReposCleaned)
	require.Equal(t, 1, result.ReposSkipped)

	loaded, err := store.Load("GX-test-partial")
	require.NoError(t, err)
	require.NotNil(t, loaded, "state file must survive while acme/c is still PrOpen")

	cleanable, err := List(store)
	require.NoError(t, err)
	require.Len(t, cleanable, 1, "cleanup --list must still show the change until every repo is cleaned")
}

func TestListFiltersByMergeStatus(t *testing.T) {
	storeDir := t.TempDir()
	store, err := state.NewStore(storeDir)
	require.NoError(t, err)

	now := time.Now()
	fullyMerged := state.New("GX-full", "", now)
	fullyMerged.AddRepository("acme/a", "GX-full", "", "", nil, now)
	fullyMerged.MarkMerged("acme/a", now)
	require.NoError(t, store.Save(fullyMerged))

	inProgress := state.New("GX-wip", "", now)
	inProgress.AddRepository("acme/b", "GX-wip", "", "", nil, now)
	require.NoError(t, store.Save(inProgress))

	cleanable, err := List(store)
	require.NoError(t, err)
	require.Len(t, cleanable, 1)
	require.Equal(t, "GX-full", cleanable[0].ChangeID)
}

func TestFindRepoLocallyHeuristics(t *testing.T) {
	root := t.TempDir()
	ownerDir := filepath.Join(root, "acme", "web")
	require.NoError(t, os.MkdirAll(filepath.Join(ownerDir, ".git"), 0755))

	got := findRepoLocally(root, "acme/web", "")
	require.Equal(t, ownerDir, got)
}
