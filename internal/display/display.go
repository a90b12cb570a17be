// Package display renders streamed, column-aligned progress output for
// batch operations and tabular PR listings for the review engine,
// handling variable-width glyphs the way spec.md §9's "polymorphic
// display width" design note describes.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// widthOverrides holds known-problematic sequences whose rendered width
// disagrees with runewidth's grapheme-unaware calculation (e.g. emoji
// variation selectors, which runewidth counts as width 1 despite most
// terminals rendering the preceding glyph at width 2).
var widthOverrides = map[string]int{
	"✅":  2, // white heavy check mark
	"❌":  2, // cross mark
	"️":  0, // variation selector-16, zero-width in practice
	"⚠️": 2, // warning sign + VS16
}

// Width returns the terminal display width of s, consulting the override
// table before falling back to summing runewidth.RuneWidth over its runes.
func Width(s string) int {
	if w, ok := widthOverrides[s]; ok {
		return w
	}
	total := 0
	for _, r := range s {
		total += runewidth.RuneWidth(r)
	}
	return total
}

// Pad right-pads s with spaces until it reaches width columns, accounting
// for wide/zero-width runes rather than assuming one byte or rune per
// column.
func Pad(s string, width int) string {
	w := Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// Row is one line of a streamed progress table: a repo's outcome as it
// completes, plus the columns describing it.
type Row struct {
	Slug   string
	Branch string
	Status string
	Detail string
}

// Table streams Rows to an io.Writer with pre-computed column widths, so
// rows stay aligned regardless of the order completions arrive in. Column
// widths come from a cheap pre-scan over the full repo/branch set (slugs
// and branch names are known before any repo starts its pipeline), per
// spec.md §5's "pre-computed column widths" requirement.
type Table struct {
	w           io.Writer
	slugWidth   int
	branchWidth int
	statusWidth int
	mu          sync.Mutex
}

// NewTable pre-scans slugs and branchName (the shared per-batch branch
// name, since every repo in one change shares the same branch) to size
// the slug/branch columns before any row is written.
func NewTable(w io.Writer, slugs []string, branchName string) *Table {
	t := &Table{w: w, branchWidth: Width(branchName), statusWidth: Width("Committed")}
	for _, s := range slugs {
		if wd := Width(s); wd > t.slugWidth {
			t.slugWidth = wd
		}
	}
	for _, status := range []string{"DryRun", "Applied", "Committed", "PrCreated", "Failed"} {
		if wd := Width(status); wd > t.statusWidth {
			t.statusWidth = wd
		}
	}
	return t
}

// WriteRow appends one aligned row, safe for concurrent callers since
// batch results stream in completion order from multiple goroutines.
func (t *Table) WriteRow(r Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "%s  %s  %s  %s\n",
		Pad(r.Slug, t.slugWidth),
		Pad(r.Branch, t.branchWidth),
		Pad(r.Status, t.statusWidth),
		r.Detail,
	)
}

// PRRow is one line of a review-engine PR listing.
type PRRow struct {
	Slug   string
	Number int
	State  string
	Author string
	URL    string
}

// RenderPRTable formats rows for review's `ls` output with columns sized
// to the widest entry in each, matching Table's alignment approach but
// for a fully-known result set rather than a stream.
func RenderPRTable(w io.Writer, rows []PRRow) {
	slugWidth, stateWidth, authorWidth := Width("REPO"), Width("STATE"), Width("AUTHOR")
	for _, r := range rows {
		if wd := Width(r.Slug); wd > slugWidth {
			slugWidth = wd
		}
		if wd := Width(r.State); wd > stateWidth {
			stateWidth = wd
		}
		if wd := Width(r.Author); wd > authorWidth {
			authorWidth = wd
		}
	}

	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		Pad("REPO", slugWidth), Pad("#", 4), Pad("STATE", stateWidth), Pad("AUTHOR", authorWidth), "URL")
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			Pad(r.Slug, slugWidth), Pad(fmt.Sprintf("%d", r.Number), 4),
			Pad(r.State, stateWidth), Pad(r.Author, authorWidth), r.URL)
	}
}
