// Package state persists the per-change-id record of which repositories
// were touched, which branches and PRs exist for them, and how the change
// is progressing toward merge, so that review and cleanup operations can
// resume against a change started in an earlier invocation.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/gxerr"
)

// ChangeStatus is the aggregate status of a change across all its repos.
type ChangeStatus string

const (
	InProgress      ChangeStatus = "InProgress"
	PrsCreated      ChangeStatus = "PrsCreated"
	PartiallyMerged ChangeStatus = "PartiallyMerged"
	FullyMerged     ChangeStatus = "FullyMerged"
	Abandoned       ChangeStatus = "Abandoned"
	ChangeFailed    ChangeStatus = "Failed"
)

// RepoChangeStatus is the status of one repository within a change.
type RepoChangeStatus string

const (
	BranchCreated RepoChangeStatus = "BranchCreated"
	PrOpen        RepoChangeStatus = "PrOpen"
	PrDraft       RepoChangeStatus = "PrDraft"
	PrMerged      RepoChangeStatus = "PrMerged"
	PrClosed      RepoChangeStatus = "PrClosed"
	RepoFailed    RepoChangeStatus = "Failed"
	CleanedUp     RepoChangeStatus = "CleanedUp"
)

// RepoChangeState tracks one repository's participation in a change.
type RepoChangeState struct {
	RepoSlug       string           `json:"repo_slug"`
	LocalPath      string           `json:"local_path,omitempty"`
	BranchName     string           `json:"branch_name"`
	OriginalBranch string           `json:"original_branch,omitempty"`
	PRNumber       int              `json:"pr_number,omitempty"`
	PRURL          string           `json:"pr_url,omitempty"`
	Status         RepoChangeStatus `json:"status"`
	FilesModified  []string         `json:"files_modified,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// ChangeState is the full record for one change-id across every repo it touched.
type ChangeState struct {
	ChangeID      string                      `json:"change_id"`
	Description   string                      `json:"description,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	CommitMessage string                      `json:"commit_message,omitempty"`
	Repositories  map[string]*RepoChangeState `json:"repositories"`
	Status        ChangeStatus                `json:"status"`
}

// New creates a fresh in-progress change state.
func New(changeID, description string, now time.Time) *ChangeState {
	return &ChangeState{
		ChangeID:     changeID,
		Description:  description,
		CreatedAt:    now,
		UpdatedAt:    now,
		Repositories: map[string]*RepoChangeState{},
		Status:       InProgress,
	}
}

// AddRepository registers a repo as having a branch created for this change.
func (s *ChangeState) AddRepository(repoSlug, branchName, localPath, originalBranch string, filesModified []string, now time.Time) {
	s.Repositories[repoSlug] = &RepoChangeState{
		RepoSlug:       repoSlug,
		BranchName:     branchName,
		LocalPath:      localPath,
		OriginalBranch: originalBranch,
		FilesModified:  filesModified,
		Status:         BranchCreated,
	}
	s.UpdatedAt = now
}

// SetPRInfo records the PR number/URL for a repo and marks it open or draft.
func (s *ChangeState) SetPRInfo(repoSlug string, prNumber int, prURL string, isDraft bool, now time.Time) {
	repo, ok := s.Repositories[repoSlug]
	if !ok {
		return
	}
	repo.PRNumber = prNumber
	repo.PRURL = prURL
	if isDraft {
		repo.Status = PrDraft
	} else {
		repo.Status = PrOpen
	}
	s.UpdatedAt = now
	s.updateOverallStatus()
}

// MarkMerged marks a repo's PR as merged and recomputes overall status.
func (s *ChangeState) MarkMerged(repoSlug string, now time.Time) {
	if repo, ok := s.Repositories[repoSlug]; ok {
		repo.Status = PrMerged
		s.UpdatedAt = now
		s.updateOverallStatus()
	}
}

// MarkClosed marks a repo's PR as closed without merging.
func (s *ChangeState) MarkClosed(repoSlug string, now time.Time) {
	if repo, ok := s.Repositories[repoSlug]; ok {
		repo.Status = PrClosed
		s.UpdatedAt = now
	}
}

// MarkCleanedUp marks a repo's local branch as cleaned up.
func (s *ChangeState) MarkCleanedUp(repoSlug string, now time.Time) {
	if repo, ok := s.Repositories[repoSlug]; ok {
		repo.Status = CleanedUp
		s.UpdatedAt = now
	}
}

// MarkFailed marks a repo's change as failed with an error message.
func (s *ChangeState) MarkFailed(repoSlug, errMsg string, now time.Time) {
	if repo, ok := s.Repositories[repoSlug]; ok {
		repo.Status = RepoFailed
		repo.Error = errMsg
		s.UpdatedAt = now
	}
}

// updateOverallStatus derives the aggregate ChangeStatus: all merged wins
// FullyMerged, any merged wins PartiallyMerged, else all-have-PRs wins
// PrsCreated, else the status is left as-is (still InProgress, or a
// previously set terminal Abandoned/Failed).
func (s *ChangeState) updateOverallStatus() {
	total := len(s.Repositories)
	if total == 0 {
		return
	}

	merged, withPRs := 0, 0
	for _, r := range s.Repositories {
		switch r.Status {
		case PrMerged:
			merged++
			withPRs++
		case PrOpen, PrDraft, PrClosed:
			withPRs++
		}
	}

	switch {
	case merged == total:
		s.Status = FullyMerged
	case merged > 0:
		s.Status = PartiallyMerged
	case withPRs == total:
		s.Status = PrsCreated
	}
}

// ReposNeedingCleanup returns repos whose PR is merged or closed but whose
// local branch hasn't been cleaned up yet.
func (s *ChangeState) ReposNeedingCleanup() []*RepoChangeState {
	var out []*RepoChangeState
	for _, r := range s.Repositories {
		if (r.Status == PrMerged || r.Status == PrClosed) && r.Status != CleanedUp {
			out = append(out, r)
		}
	}
	return out
}

// AllCleanedUp reports whether every repo in the change has a CleanedUp
// status, the condition spec §4.12 requires before the state file itself
// may be deleted.
func (s *ChangeState) AllCleanedUp() bool {
	for _, r := range s.Repositories {
		if r.Status != CleanedUp {
			return false
		}
	}
	return true
}

// OpenPRs returns repos whose PR is currently open or in draft.
func (s *ChangeState) OpenPRs() []*RepoChangeState {
	var out []*RepoChangeState
	for _, r := range s.Repositories {
		if r.Status == PrOpen || r.Status == PrDraft {
			out = append(out, r)
		}
	}
	return out
}

// Store reads and writes change states as one JSON file per change-id,
// under a directory (by default ~/.gx/changes). Writes are atomic
// (temp file + rename) and serialized per change-id.
type Store struct {
	dir   string
	locks sync.Map // change_id -> *sync.Mutex
}

// DefaultStateDir returns ~/.gx/changes, resolving $HOME (or $USERPROFILE
// on Windows, matching the original CLI's portability fallback).
func DefaultStateDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		return "", gxerr.New(gxerr.Internal, "could not determine home directory", nil)
	}
	return filepath.Join(home, ".gx", "changes"), nil
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, gxerr.New(gxerr.Internal, "failed to create state directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) lockFor(changeID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(changeID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (s *Store) path(changeID string) string {
	return filepath.Join(s.dir, changeID+".json")
}

// Save writes a change state atomically: marshal to a temp file in the
// same directory, then rename over the target.
func (s *Store) Save(state *ChangeState) error {
	lock := s.lockFor(state.ChangeID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return gxerr.New(gxerr.Internal, "failed to serialize change state", err)
	}

	target := s.path(state.ChangeID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return gxerr.New(gxerr.Internal, "failed to write change state file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return gxerr.New(gxerr.Internal, "failed to finalize change state file", err)
	}
	log.Debug().Str("path", target).Msg("saved change state")
	return nil
}

// Load reads a change state by id, returning (nil, nil) if it doesn't exist.
func (s *Store) Load(changeID string) (*ChangeState, error) {
	data, err := os.ReadFile(s.path(changeID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, gxerr.New(gxerr.Internal, "failed to read change state file", err)
	}

	var state ChangeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, gxerr.New(gxerr.Internal, "failed to parse change state file", err)
	}
	return &state, nil
}

// List returns every change state in the store, newest CreatedAt first.
// Unparseable files are skipped with a warning, not an error.
func (s *Store) List() ([]*ChangeState, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, gxerr.New(gxerr.Internal, "failed to list state directory", err)
	}

	var states []*ChangeState
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("failed to read state file")
			continue
		}
		var state ChangeState
		if err := json.Unmarshal(data, &state); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("failed to parse state file")
			continue
		}
		states = append(states, &state)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].CreatedAt.After(states[j].CreatedAt) })
	return states, nil
}

// Delete removes a change state file. Tolerates it not existing.
func (s *Store) Delete(changeID string) error {
	lock := s.lockFor(changeID)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.path(changeID))
	if err != nil && !os.IsNotExist(err) {
		return gxerr.New(gxerr.Internal, "failed to delete change state file", err)
	}
	log.Debug().Str("change_id", changeID).Msg("deleted change state")
	return nil
}

// CleanupOld deletes change states older than days whose status is
// FullyMerged or Abandoned, returning the count deleted.
func (s *Store) CleanupOld(days int, now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	states, err := s.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, state := range states {
		if (state.Status == FullyMerged || state.Status == Abandoned) && state.UpdatedAt.Before(cutoff) {
			if err := s.Delete(state.ChangeID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
