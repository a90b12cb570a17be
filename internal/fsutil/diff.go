package fsutil

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DiffOptions controls unified-diff generation.
type DiffOptions struct {
	// Context is the number of context lines around each hunk. 0 defaults to 3,
	// matching spec's generate_diff(before, after, context=3).
	Context int
	// MaxBytes guards against generating diffs over huge files; 0 means no limit.
	MaxBytes int
}

// GenerateDiff returns a unified diff between before and after, labeled with
// fromName/toName. Returns an empty string when before == after.
func GenerateDiff(fromName, toName, before, after string, opt DiffOptions) string {
	if before == after {
		return ""
	}

	if opt.MaxBytes > 0 && (len(before)+len(after)) > opt.MaxBytes {
		return omittedPatch(fromName, toName)
	}

	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(before),
		B:        splitLinesKeepNL(after),
		FromFile: fromName,
		ToFile:   toName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return omittedPatch(fromName, toName)
	}
	return s
}

func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

func omittedPatch(fromName, toName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", fromName, toName)
}
