package txn

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushRecoverablePersistsAfterEachCall(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)

	tr := New()
	tr.EnableRecovery(store, "GX-test", "acme/web", "/repo/acme/web")

	tr.PushRecoverable(Branch, "switch back", map[string]string{"branch": "main"}, func() error { return nil })

	rec, err := store.Load(tr.RecoveryID())
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "GX-test", rec.ChangeID)
	require.Equal(t, "acme/web", rec.RepoSlug)
	require.Len(t, rec.Actions, 1)
	require.Equal(t, Branch, rec.Actions[0].Kind)
	require.Equal(t, "main", rec.Actions[0].Meta["branch"])
}

func TestCommitClearsRecoveryRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)

	tr := New()
	tr.EnableRecovery(store, "GX-test", "acme/web", "/repo/acme/web")
	tr.PushRecoverable(Git, "reset commit", nil, func() error { return nil })
	id := tr.RecoveryID()

	tr.Commit()

	rec, err := store.Load(id)
	require.NoError(t, err)
	require.Nil(t, rec, "committing should delete the recovery record")
}

func TestRollbackClearsRecoveryRecordAfterFullRun(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)

	tr := New()
	tr.EnableRecovery(store, "GX-test", "acme/web", "/repo/acme/web")
	tr.PushRecoverable(Git, "reset commit", nil, func() error { return nil })
	id := tr.RecoveryID()

	tr.Rollback()

	rec, err := store.Load(id)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestRollbackStopsEarlyKeepsRecoveryRecordWhenContinueDisabled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)

	tr := New()
	tr.SetContinueOnFailure(false)
	tr.EnableRecovery(store, "GX-test", "acme/web", "/repo/acme/web")
	tr.PushRecoverable(Git, "first", nil, func() error { return errors.New("boom") })
	tr.PushRecoverable(Branch, "second", nil, func() error { return nil })
	id := tr.RecoveryID()

	tr.Rollback()

	rec, err := store.Load(id)
	require.NoError(t, err)
	require.NotNil(t, rec, "a stopped-early rollback should leave its record for a later retry")
}

func TestRecoveryStorePathIsJSONUnderDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&RecoveryRecord{ID: "abc"}))
	require.FileExists(t, filepath.Join(dir, "abc.json"))
}
