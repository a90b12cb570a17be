// Package discovery walks a starting directory for git repositories and
// applies the four-level name/slug pattern filter.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/scottidler/gx/internal/gitprim"
)

// Repo is an immutable discovered repository.
type Repo struct {
	Path string // absolute path to the repo root
	Name string // directory name
	Slug string // "owner/name", empty when origin has no github.com remote
}

var ignoredNames = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	"build":        true,
}

var sshSlugRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?$`)

// Discover walks root up to maxDepth, collecting every directory that
// contains a .git entry, and returns them sorted by path.
func Discover(ctx context.Context, root string, maxDepth int, extraIgnored []string) ([]Repo, error) {
	ignored := map[string]bool{}
	for k := range ignoredNames {
		ignored[k] = true
	}
	for _, name := range extraIgnored {
		ignored[name] = true
	}

	var repos []Repo
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}

		hasGit := false
		for _, e := range entries {
			if e.Name() == ".git" {
				hasGit = true
				break
			}
		}

		if hasGit {
			repo, err := describeRepo(ctx, dir)
			if err != nil {
				return err
			}
			repos = append(repos, repo)
			return nil // don't descend into nested repos
		}

		if depth >= maxDepth {
			return nil
		}

		for _, e := range entries {
			if !e.IsDir() || ignored[e.Name()] || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := walk(filepath.Join(dir, e.Name()), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := walk(absRoot, 0); err != nil {
		return nil, err
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].Path < repos[j].Path })
	return repos, nil
}

func describeRepo(ctx context.Context, path string) (Repo, error) {
	repo := Repo{Path: path, Name: filepath.Base(path)}

	remoteURL, err := gitprim.RemoteURL(ctx, path)
	if err != nil {
		return repo, nil // local-only repo without a slug, not an error
	}

	if match := sshSlugRe.FindStringSubmatch(remoteURL); match != nil {
		repo.Slug = match[1] + "/" + match[2]
	}
	return repo, nil
}

// FilterLevel is the pattern-match level a repo was selected at.
type FilterLevel int

const (
	LevelExactName FilterLevel = iota
	LevelPrefixName
	LevelExactSlug
	LevelPrefixSlug
)

// Filter applies the four-level filter to repos: exact name, prefix name,
// exact slug, prefix slug — returning the results of the first non-empty
// level. Empty patterns returns every repo unfiltered.
func Filter(repos []Repo, patterns []string) []Repo {
	if len(patterns) == 0 {
		return repos
	}

	levels := []func(Repo) bool{
		func(r Repo) bool { return matchesAny(patterns, r.Name, false) },
		func(r Repo) bool { return matchesAny(patterns, r.Name, true) },
		func(r Repo) bool { return r.Slug != "" && matchesAny(patterns, r.Slug, false) },
		func(r Repo) bool { return r.Slug != "" && matchesAny(patterns, r.Slug, true) },
	}

	for _, matches := range levels {
		var result []Repo
		for _, r := range repos {
			if matches(r) {
				result = append(result, r)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return nil
}

func matchesAny(patterns []string, value string, prefixOnly bool) bool {
	for _, p := range patterns {
		if prefixOnly {
			if strings.HasPrefix(value, p) {
				return true
			}
		} else if value == p {
			return true
		}
	}
	return false
}
