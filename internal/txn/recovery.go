package txn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RecoveryAction is the serializable counterpart of Action: enough
// structured data to reconstruct a rollback thunk in a fresh process,
// since a live *Action's Thunk closure cannot be persisted.
type RecoveryAction struct {
	Kind        Kind              `json:"kind"`
	Description string            `json:"description"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// RecoveryRecord is the on-disk snapshot of one in-flight transaction,
// written after every PushRecoverable call and removed once the transaction
// commits or fully rolls back, so an interrupted process leaves behind
// exactly the state a fresh `gx rollback` invocation needs.
type RecoveryRecord struct {
	ID        string           `json:"id"`
	ChangeID  string           `json:"change_id"`
	RepoSlug  string           `json:"repo_slug"`
	RepoPath  string           `json:"repo_path"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Actions   []RecoveryAction `json:"actions"` // oldest first; replay in reverse
}

// RecoveryStore persists RecoveryRecords under a directory, one JSON file
// per record, keyed by RecoveryRecord.ID.
type RecoveryStore struct {
	dir string
}

// DefaultRecoveryDir returns ~/.gx/recovery.
func DefaultRecoveryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gx", "recovery"), nil
}

// NewRecoveryStore creates dir if needed and returns a store rooted there.
func NewRecoveryStore(dir string) (*RecoveryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create recovery dir: %w", err)
	}
	return &RecoveryStore{dir: dir}, nil
}

func (s *RecoveryStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save atomically writes rec to disk (temp file + rename), matching
// internal/state's write pattern so readers never observe a partial file.
func (s *RecoveryStore) Save(rec *RecoveryRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(rec.ID))
}

// Load reads one recovery record by id, returning nil, nil if it doesn't
// exist (already cleaned up, or never written).
func (s *RecoveryStore) Load(id string) (*RecoveryRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec RecoveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse recovery record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every recovery record currently on disk, most recently
// created first.
func (s *RecoveryStore) List() ([]*RecoveryRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []*RecoveryRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		rec, err := s.Load(id)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("skipping unreadable recovery record")
			continue
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

// Delete removes a recovery record, tolerating "already gone".
func (s *RecoveryStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// EnableRecovery arms t so every subsequent PushRecoverable call persists
// an updated RecoveryRecord under store, identified by a fresh uuid. Plain
// Push calls (no metadata) are still tracked in-process for live rollback
// but are not durable across a process crash, matching the original's
// distinction between routine and crash-recoverable actions.
func (t *Transaction) EnableRecovery(store *RecoveryStore, changeID, repoSlug, repoPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recoveryStore = store
	t.recoveryID = uuid.NewString()
	t.recoveryChangeID = changeID
	t.recoveryRepoSlug = repoSlug
	t.recoveryRepoPath = repoPath
}

// RecoveryID returns the id assigned by EnableRecovery, or "" if recovery
// was never enabled for this transaction.
func (t *Transaction) RecoveryID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recoveryID
}

// PushRecoverable behaves like Push but additionally attaches meta and, if
// recovery is enabled, persists the updated action list immediately so a
// crash between here and the next checkpoint still leaves a complete
// record on disk.
func (t *Transaction) PushRecoverable(kind Kind, description string, meta map[string]string, thunk func() error) {
	t.mu.Lock()
	t.actions = append(t.actions, Action{Thunk: thunk, Description: description, Kind: kind, Meta: meta})
	t.operationCount++
	t.mu.Unlock()

	t.writeRecoveryIfEnabled()
}

func (t *Transaction) writeRecoveryIfEnabled() {
	t.mu.Lock()
	store := t.recoveryStore
	if store == nil {
		t.mu.Unlock()
		return
	}
	rec := &RecoveryRecord{
		ID:       t.recoveryID,
		ChangeID: t.recoveryChangeID,
		RepoSlug: t.recoveryRepoSlug,
		RepoPath: t.recoveryRepoPath,
		Actions:  make([]RecoveryAction, 0, len(t.actions)),
	}
	for _, a := range t.actions {
		rec.Actions = append(rec.Actions, RecoveryAction{Kind: a.Kind, Description: a.Description, Meta: a.Meta})
	}
	t.mu.Unlock()

	now := time.Now()
	rec.UpdatedAt = now
	rec.CreatedAt = now
	if prev, err := store.Load(rec.ID); err == nil && prev != nil && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if err := store.Save(rec); err != nil {
		log.Error().Err(err).Str("recovery_id", rec.ID).Msg("failed to persist recovery record")
	}
}

// clearRecoveryLocked deletes this transaction's recovery record. Callers
// must already hold t.mu; it is called from Commit and Rollback, both of
// which hold the lock for their full body.
func (t *Transaction) clearRecoveryLocked() {
	store := t.recoveryStore
	id := t.recoveryID
	if store == nil || id == "" {
		return
	}
	if err := store.Delete(id); err != nil {
		log.Warn().Err(err).Str("recovery_id", id).Msg("failed to delete recovery record")
	}
}
