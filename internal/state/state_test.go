package state

import (
	"testing"
	"time"
)

func TestAddRepositorySetsBranchCreated(t *testing.T) {
	s := New("GX-test", "", time.Now())
	s.AddRepository("org/repo", "GX-test", "/repos/org/repo", "main", []string{"README.md"}, time.Now())

	repo, ok := s.Repositories["org/repo"]
	if !ok {
		t.Fatal("expected repo to be registered")
	}
	if repo.Status != BranchCreated {
		t.Fatalf("got status %v, want BranchCreated", repo.Status)
	}
	if repo.LocalPath != "/repos/org/repo" {
		t.Fatalf("got LocalPath %q, want /repos/org/repo", repo.LocalPath)
	}
	if repo.OriginalBranch != "main" {
		t.Fatalf("got OriginalBranch %q, want main", repo.OriginalBranch)
	}
	if len(repo.FilesModified) != 1 || repo.FilesModified[0] != "README.md" {
		t.Fatalf("got FilesModified %v, want [README.md]", repo.FilesModified)
	}
}

func TestOverallStatusFullyMerged(t *testing.T) {
	now := time.Now()
	s := New("GX-test", "", now)
	s.AddRepository("org/a", "GX-test", "", "", nil, now)
	s.AddRepository("org/b", "GX-test", "", "", nil, now)

	s.SetPRInfo("org/a", 1, "https://example.com/1", false, now)
	s.SetPRInfo("org/b", 2, "https://example.com/2", false, now)
	if s.Status != PrsCreated {
		t.Fatalf("got %v, want PrsCreated", s.Status)
	}

	s.MarkMerged("org/a", now)
	if s.Status != PartiallyMerged {
		t.Fatalf("got %v, want PartiallyMerged", s.Status)
	}

	s.MarkMerged("org/b", now)
	if s.Status != FullyMerged {
		t.Fatalf("got %v, want FullyMerged", s.Status)
	}
}

func TestReposNeedingCleanup(t *testing.T) {
	now := time.Now()
	s := New("GX-test", "", now)
	s.AddRepository("org/a", "GX-test", "", "", nil, now)
	s.MarkMerged("org/a", now)

	needing := s.ReposNeedingCleanup()
	if len(needing) != 1 {
		t.Fatalf("got %d, want 1", len(needing))
	}

	s.MarkCleanedUp("org/a", now)
	if len(s.ReposNeedingCleanup()) != 0 {
		t.Fatal("expected no repos needing cleanup after MarkCleanedUp")
	}
}

func TestStoreSaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	cs := New("GX-2026-01-01", "test change", now)
	cs.AddRepository("org/repo", "GX-2026-01-01", "", "", nil, now)

	if err := store.Save(cs); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load("GX-2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.ChangeID != "GX-2026-01-01" {
		t.Fatalf("got %v", loaded)
	}

	missing, err := store.Load("nonexistent")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing change, got %v, %v", missing, err)
	}

	if err := store.Delete("GX-2026-01-01"); err != nil {
		t.Fatal(err)
	}
	gone, err := store.Load("GX-2026-01-01")
	if err != nil || gone != nil {
		t.Fatalf("expected deleted change to be gone, got %v, %v", gone, err)
	}
}

func TestStoreListSortsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	older := New("GX-older", "", time.Now().Add(-time.Hour))
	newer := New("GX-newer", "", time.Now())
	if err := store.Save(older); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(newer); err != nil {
		t.Fatal(err)
	}

	states, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 || states[0].ChangeID != "GX-newer" {
		t.Fatalf("got %v", states)
	}
}

func TestCleanupOldOnlyDeletesMergedOrAbandoned(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-48 * time.Hour)
	merged := New("GX-merged", "", old)
	merged.Status = FullyMerged
	merged.UpdatedAt = old

	inProgress := New("GX-inprogress", "", old)
	inProgress.UpdatedAt = old

	if err := store.Save(merged); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(inProgress); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.CleanupOld(1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("got %d deleted, want 1", deleted)
	}

	remaining, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ChangeID != "GX-inprogress" {
		t.Fatalf("got %v", remaining)
	}
}
