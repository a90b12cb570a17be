// Package txn implements gx's transaction engine: a LIFO stack of typed
// rollback actions, commit semantics, named rollback points for diagnostics,
// and optional on-disk recovery records so a separate process can finish an
// interrupted rollback.
package txn

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind categorizes a rollback action for selective rollback and reporting.
type Kind string

const (
	File    Kind = "File"
	Git     Kind = "Git"
	Branch  Kind = "Branch"
	Stash   Kind = "Stash"
	Remote  Kind = "Remote"
	Cleanup Kind = "Cleanup"
)

// Action is a single registered rollback step. Thunk captures only the
// data it needs (paths, branch names, stash refs) — never a reference to a
// later phase's state.
type Action struct {
	Thunk       func() error
	Description string
	Kind        Kind
	Meta        map[string]string // present only for PushRecoverable actions
}

// Transaction tracks rollback actions for one per-repo pipeline run.
type Transaction struct {
	mu                        sync.Mutex
	actions                   []Action
	committed                 bool
	operationCount            int
	points                    []string
	continueOnRollbackFailure bool

	recoveryStore    *RecoveryStore
	recoveryID       string
	recoveryChangeID string
	recoveryRepoSlug string
	recoveryRepoPath string
}

// New returns a fresh, uncommitted transaction. Rollback continues past
// individual action failures by default, matching the original's
// continue_on_rollback_failure=true default.
func New() *Transaction {
	return &Transaction{continueOnRollbackFailure: true}
}

// Push registers a rollback action.
func (t *Transaction) Push(kind Kind, description string, thunk func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions = append(t.actions, Action{Thunk: thunk, Description: description, Kind: kind})
	t.operationCount++
}

// Point records a named diagnostic marker — which phase of the pipeline just
// completed, and how many rollback actions are registered so far. It performs
// no rollback action of its own.
func (t *Transaction) Point(description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = append(t.points, fmt.Sprintf("%s (%d rollback actions)", description, len(t.actions)))
}

// SetContinueOnFailure controls whether Rollback keeps going after an
// individual action fails (default true).
func (t *Transaction) SetContinueOnFailure(continueOnFailure bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.continueOnRollbackFailure = continueOnFailure
}

// Commit runs every registered Cleanup-kind action (e.g. deleting backup
// sidecars now that the change is final), then marks the transaction
// committed and discards the rest of the stack without executing it.
// Subsequent Rollback calls are a no-op.
func (t *Transaction) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var remaining []Action
	ranCleanup := 0
	for _, a := range t.actions {
		if a.Kind != Cleanup {
			remaining = append(remaining, a)
			continue
		}
		if err := a.Thunk(); err != nil {
			log.Error().Err(err).Str("description", a.Description).Msg("cleanup action failed on commit")
		}
		ranCleanup++
	}

	t.committed = true
	cleared := len(remaining)
	t.actions = nil
	log.Debug().Int("cleanup_ran", ranCleanup).Int("cleared", cleared).Msg("transaction committed")
	t.clearRecoveryLocked()
}

// Rollback pops and invokes every registered action in reverse order.
// Failures are logged and, unless SetContinueOnFailure(false) was called,
// do not stop remaining rollbacks. Idempotent once committed or once the
// stack is empty.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.committed {
		log.Debug().Msg("transaction already committed, skipping rollback")
		return
	}

	log.Error().Int("actions", len(t.actions)).Int("points", len(t.points)).
		Msg("initiating rollback")
	for _, p := range t.points {
		log.Debug().Str("point", p).Msg("rollback point")
	}

	var succeeded, failed int
	for i := len(t.actions) - 1; i >= 0; i-- {
		action := t.actions[i]
		if err := action.Thunk(); err != nil {
			failed++
			log.Error().Err(err).Str("description", action.Description).
				Str("kind", string(action.Kind)).Msg("rollback action failed")
			if !t.continueOnRollbackFailure {
				t.actions = t.actions[:i]
				return
			}
			continue
		}
		succeeded++
		log.Debug().Str("description", action.Description).Msg("rollback action succeeded")
	}
	t.actions = nil

	if failed > 0 {
		log.Warn().Int("succeeded", succeeded).Int("failed", failed).Msg("rollback completed with failures")
	} else {
		log.Debug().Int("succeeded", succeeded).Msg("rollback completed")
	}
	t.clearRecoveryLocked()
}

// RollbackKind selectively rolls back only actions of the given kind,
// leaving the rest of the stack intact, in LIFO order among the matches.
func (t *Transaction) RollbackKind(kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.committed {
		return
	}

	var remaining []Action
	var matched []Action
	for _, a := range t.actions {
		if a.Kind == kind {
			matched = append(matched, a)
		} else {
			remaining = append(remaining, a)
		}
	}

	for i := len(matched) - 1; i >= 0; i-- {
		if err := matched[i].Thunk(); err != nil {
			log.Error().Err(err).Str("description", matched[i].Description).
				Msg("selective rollback action failed")
		}
	}
	t.actions = remaining
}

// DryRunPlan returns the planned LIFO rollback order without executing it.
func (t *Transaction) DryRunPlan() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	plan := make([]string, len(t.actions))
	for i, a := range t.actions {
		plan[len(t.actions)-1-i] = a.Description
	}
	return plan
}

// Stats reports the current state of the transaction for diagnostics.
type Stats struct {
	TotalOperations  int
	PendingRollbacks int
	RollbackPoints   int
	Committed        bool
}

func (t *Transaction) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		TotalOperations:  t.operationCount,
		PendingRollbacks: len(t.actions),
		RollbackPoints:   len(t.points),
		Committed:        t.committed,
	}
}
