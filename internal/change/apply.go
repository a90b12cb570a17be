package change

import (
	"regexp"
	"strings"

	"github.com/scottidler/gx/internal/fsutil"
	"github.com/scottidler/gx/internal/gxerr"
)

// Outcome is the per-file result of attempting to apply a mutation.
type Outcome string

const (
	Changed   Outcome = "Changed"
	NoMatches Outcome = "NoMatches"
	NoChange  Outcome = "NoChange"
)

// FileResult is what applying one Change to one file produced.
type FileResult struct {
	Path       string
	Outcome    Outcome
	BackupPath string // non-empty if a backup sidecar was created
	MatchCount int    // Sub/Regex only
}

// ApplyToFile dispatches on c.Kind and applies the mutation to path,
// returning the per-file outcome. For Sub/Regex, matches are counted
// before any write, so a file with zero matches is never touched.
func ApplyToFile(c Change, path string) (FileResult, error) {
	switch c.Kind {
	case KindAdd:
		return applyAdd(path, c.Content)
	case KindDelete:
		return applyDelete(path)
	case KindSub:
		return applySub(path, c.Literal, c.Replacement)
	case KindRegex:
		return applyRegex(path, c.Pattern, c.Replacement)
	default:
		return FileResult{}, gxerr.New(gxerr.Internal, "unknown change kind: "+string(c.Kind), nil)
	}
}

func applyAdd(path, content string) (FileResult, error) {
	result := FileResult{Path: path}

	if fsutil.Exists(path) {
		backup, err := fsutil.BackupFile(path)
		if err != nil {
			return result, err
		}
		result.BackupPath = backup
	}

	if err := fsutil.WriteFile(path, content); err != nil {
		return result, err
	}
	result.Outcome = Changed
	return result, nil
}

func applyDelete(path string) (FileResult, error) {
	result := FileResult{Path: path}

	backup, err := fsutil.BackupFile(path)
	if err != nil {
		return result, err
	}
	result.BackupPath = backup

	if err := fsutil.Delete(path); err != nil {
		return result, err
	}
	result.Outcome = Changed
	return result, nil
}

func applySub(path, literal, replacement string) (FileResult, error) {
	result := FileResult{Path: path}

	content, err := fsutil.ReadFile(path)
	if err != nil {
		return result, err
	}

	count := strings.Count(content, literal)
	if count == 0 {
		result.Outcome = NoMatches
		return result, nil
	}
	result.MatchCount = count

	updated := strings.ReplaceAll(content, literal, replacement)
	if updated == content {
		result.Outcome = NoChange
		return result, nil
	}

	backup, err := fsutil.BackupFile(path)
	if err != nil {
		return result, err
	}
	result.BackupPath = backup

	if err := fsutil.WriteFile(path, updated); err != nil {
		return result, err
	}
	result.Outcome = Changed
	return result, nil
}

func applyRegex(path, pattern, replacement string) (FileResult, error) {
	result := FileResult{Path: path}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return result, gxerr.New(gxerr.InvalidInput, "invalid regex pattern: "+pattern, err)
	}

	content, err := fsutil.ReadFile(path)
	if err != nil {
		return result, err
	}

	matches := re.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		result.Outcome = NoMatches
		return result, nil
	}
	result.MatchCount = len(matches)

	updated := re.ReplaceAllString(content, convertBackreferences(replacement))
	if updated == content {
		result.Outcome = NoChange
		return result, nil
	}

	backup, err := fsutil.BackupFile(path)
	if err != nil {
		return result, err
	}
	result.BackupPath = backup

	if err := fsutil.WriteFile(path, updated); err != nil {
		return result, err
	}
	result.Outcome = Changed
	return result, nil
}

// convertBackreferences accepts either Go's native $1 syntax or the more
// familiar \1 backreference syntax and normalizes to $1, so users can write
// regex replacements the way they would with sed or Rust's regex crate.
var backrefRe = regexp.MustCompile(`\\(\d+)`)

func convertBackreferences(replacement string) string {
	return backrefRe.ReplaceAllString(replacement, "$$$1")
}

// ValidatePattern compiles pattern without applying it, so invalid regex
// can be rejected before any file in a batch is touched.
func ValidatePattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return gxerr.New(gxerr.InvalidInput, "invalid regex pattern: "+pattern, err)
	}
	return nil
}
