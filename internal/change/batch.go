package change

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottidler/gx/internal/gxerr"
	"github.com/scottidler/gx/internal/state"
	"github.com/scottidler/gx/internal/txn"
)

// BatchOptions configures a Batch run.
type BatchOptions struct {
	Jobs          int                // worker pool size; <= 0 means runtime.NumCPU()
	StateStore    *state.Store       // optional; when set, ChangeState is persisted at checkpoints
	RecoveryStore *txn.RecoveryStore // optional; when set, each repo's transaction persists crash-recovery records
	OnProgress    func(CreateResult) // invoked on the coordinator goroutine as each repo completes
}

const maxResultBuffer = 256

// Batch runs the pipeline across every repo concurrently, bounded by
// opts.Jobs, and returns results sorted by repo slug for deterministic
// output regardless of completion order.
func Batch(ctx context.Context, repos []RepoInput, spec Spec, opts BatchOptions) []CreateResult {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var cs *state.ChangeState
	var csMu sync.Mutex
	if opts.StateStore != nil {
		cs = state.New(spec.ID, "", time.Now())
	}

	sem := make(chan struct{}, jobs)
	bufSize := len(repos)
	if bufSize > maxResultBuffer {
		bufSize = maxResultBuffer
	}
	if bufSize <= 0 {
		bufSize = 1
	}
	out := make(chan CreateResult, bufSize)

	// Dispatch runs in its own goroutine so the consume loop below can drain
	// out concurrently with launching — otherwise a batch larger than
	// maxResultBuffer deadlocks once out fills while unlaunched repos are
	// still waiting on sem.
	go func() {
		for _, repo := range repos {
			sem <- struct{}{}
			go func(repo RepoInput) {
				defer func() { <-sem }()
				hooks := stateHooks(cs, &csMu, opts.StateStore, repo, spec)
				hooks.RecoveryStore = opts.RecoveryStore
				out <- Run(ctx, repo, spec, hooks)
			}(repo)
		}
	}()

	results := make([]CreateResult, 0, len(repos))
	for i := 0; i < len(repos); i++ {
		res := <-out
		if opts.OnProgress != nil {
			opts.OnProgress(res)
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RepoSlug < results[j].RepoSlug })
	return results
}

// stateHooks wires pipeline checkpoints into ChangeState updates, persisting
// after G (branch ready), I (pushed), and J (PR attempted), per spec. Every
// goroutine in the batch shares one ChangeState, so mutations are guarded by
// mu and each save happens while holding it, keeping the file write
// consistent with the in-memory state it reflects.
func stateHooks(cs *state.ChangeState, mu *sync.Mutex, store *state.Store, repo RepoInput, spec Spec) Hooks {
	if cs == nil || store == nil {
		return Hooks{}
	}

	saveLocked := func() {
		if err := store.Save(cs); err != nil {
			log.Error().Err(err).Str("change_id", spec.ID).Msg("failed to save change state")
		}
	}

	return Hooks{
		OnBranchReady: func(branchName, localPath, originalBranch string, filesModified []string) {
			mu.Lock()
			defer mu.Unlock()
			cs.AddRepository(repo.Slug, branchName, localPath, originalBranch, filesModified, time.Now())
			saveLocked()
		},
		OnPushed: func() {
			mu.Lock()
			defer mu.Unlock()
			saveLocked()
		},
		OnPRCreated: func(prNumber int, prURL string, isDraft bool) {
			mu.Lock()
			defer mu.Unlock()
			cs.SetPRInfo(repo.Slug, prNumber, prURL, isDraft, time.Now())
			saveLocked()
		},
		OnPRFailed: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			saveLocked()
		},
	}
}

// ExitCode maps batch results to spec §7's exit-code rule: the count of
// repos that ended in an error state, capped at 255.
func ExitCode(results []CreateResult) int {
	failed := 0
	for _, r := range results {
		if r.Action == Failed {
			failed++
		}
	}
	return gxerr.ExitCode(failed)
}
