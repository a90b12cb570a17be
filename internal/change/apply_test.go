package change

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyAddCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NEW.md")

	res, err := ApplyToFile(Change{Kind: KindAdd, Path: path, Content: "hello"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Changed || res.BackupPath != "" {
		t.Fatalf("got %+v", res)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, err %v", data, err)
	}
}

func TestApplyAddOverwritesExistingWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "EXISTING.md")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindAdd, Path: path, Content: "new"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Changed || res.BackupPath == "" {
		t.Fatalf("got %+v", res)
	}

	backup, err := os.ReadFile(res.BackupPath)
	if err != nil || string(backup) != "old" {
		t.Fatalf("backup content = %q, err %v", backup, err)
	}
}

func TestApplyDeleteBacksUpThenRemoves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GONE.md")
	if err := os.WriteFile(path, []byte("bye"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindDelete}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Changed || res.BackupPath == "" {
		t.Fatalf("got %+v", res)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be deleted")
	}
}

func TestApplySubNoMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("version 1.0.0"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindSub, Literal: "2.0.0", Replacement: "3.0.0"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != NoMatches {
		t.Fatalf("got %+v", res)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "version 1.0.0" {
		t.Fatal("file must not be modified on NoMatches")
	}
}

func TestApplySubReplacesAndCounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("1.0.0 and 1.0.0 again"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindSub, Literal: "1.0.0", Replacement: "1.1.0"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Changed || res.MatchCount != 2 || res.BackupPath == "" {
		t.Fatalf("got %+v", res)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "1.1.0 and 1.1.0 again" {
		t.Fatalf("got %q", data)
	}
}

func TestApplySubNoChangeWhenReplacementIsIdentical(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("same same"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindSub, Literal: "same", Replacement: "same"}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != NoChange || res.BackupPath != "" {
		t.Fatalf("got %+v", res)
	}
}

func TestApplyRegexBackreference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("name: alice"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := ApplyToFile(Change{Kind: KindRegex, Pattern: `name: (\w+)`, Replacement: `user=\1`}, path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Changed {
		t.Fatalf("got %+v", res)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "user=alice" {
		t.Fatalf("got %q", data)
	}
}

func TestValidatePatternRejectsInvalidRegex(t *testing.T) {
	if err := ValidatePattern("("); err == nil {
		t.Fatal("expected error for unbalanced paren")
	}
}
