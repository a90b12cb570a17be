package txn

import "testing"

func TestCommitDiscardsActions(t *testing.T) {
	tx := New()
	ran := false
	tx.Push(File, "write file", func() error { ran = true; return nil })
	tx.Commit()
	tx.Rollback()
	if ran {
		t.Fatal("committed transaction must not run rollback actions")
	}
}

func TestCommitRunsCleanupActions(t *testing.T) {
	tx := New()
	cleanedUp := false
	fileRan := false
	tx.Push(Cleanup, "delete backup", func() error { cleanedUp = true; return nil })
	tx.Push(File, "restore file", func() error { fileRan = true; return nil })
	tx.Commit()

	if !cleanedUp {
		t.Fatal("expected Cleanup action to run on commit")
	}
	if fileRan {
		t.Fatal("expected non-Cleanup action to be discarded, not run, on commit")
	}

	tx.Rollback()
	if fileRan {
		t.Fatal("rollback after commit must not run anything")
	}
}

func TestRollbackRunsLIFO(t *testing.T) {
	tx := New()
	var order []string
	tx.Push(File, "first", func() error { order = append(order, "first"); return nil })
	tx.Push(Git, "second", func() error { order = append(order, "second"); return nil })
	tx.Push(Branch, "third", func() error { order = append(order, "third"); return nil })
	tx.Rollback()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRollbackContinuesPastFailure(t *testing.T) {
	tx := New()
	var ran []string
	tx.Push(File, "a", func() error { ran = append(ran, "a"); return nil })
	tx.Push(Git, "b", func() error { return errBoom })
	tx.Push(Branch, "c", func() error { ran = append(ran, "c"); return nil })
	tx.Rollback()

	if len(ran) != 2 {
		t.Fatalf("expected both non-failing actions to run, got %v", ran)
	}
}

func TestRollbackStopsOnFailureWhenDisabled(t *testing.T) {
	tx := New()
	tx.SetContinueOnFailure(false)
	var ran []string
	tx.Push(File, "a", func() error { ran = append(ran, "a"); return nil })
	tx.Push(Git, "b", func() error { return errBoom })
	tx.Push(Branch, "c", func() error { ran = append(ran, "c"); return nil })
	tx.Rollback()

	if len(ran) != 1 || ran[0] != "c" {
		t.Fatalf("expected only the action after the failure to run, got %v", ran)
	}
}

func TestRollbackKindSelective(t *testing.T) {
	tx := New()
	var ran []string
	tx.Push(File, "file-a", func() error { ran = append(ran, "file-a"); return nil })
	tx.Push(Branch, "branch-a", func() error { ran = append(ran, "branch-a"); return nil })
	tx.Push(File, "file-b", func() error { ran = append(ran, "file-b"); return nil })

	tx.RollbackKind(File)
	if len(ran) != 2 || ran[0] != "file-b" || ran[1] != "file-a" {
		t.Fatalf("expected only File actions rolled back LIFO, got %v", ran)
	}

	stats := tx.Stats()
	if stats.PendingRollbacks != 1 {
		t.Fatalf("expected the Branch action to remain pending, got %d", stats.PendingRollbacks)
	}
}

func TestDryRunPlanOrder(t *testing.T) {
	tx := New()
	tx.Push(File, "one", func() error { return nil })
	tx.Push(Git, "two", func() error { return nil })

	plan := tx.DryRunPlan()
	if len(plan) != 2 || plan[0] != "two" || plan[1] != "one" {
		t.Fatalf("got %v, want [two one]", plan)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
