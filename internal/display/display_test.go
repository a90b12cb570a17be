package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWidthPlainASCII(t *testing.T) {
	require.Equal(t, 5, Width("hello"))
}

func TestWidthUsesOverrideTable(t *testing.T) {
	require.Equal(t, 2, Width("✅"))
	require.Equal(t, 0, Width("️"))
}

func TestPadPadsToWidth(t *testing.T) {
	require.Equal(t, "ab   ", Pad("ab", 5))
	require.Equal(t, "abcde", Pad("abcde", 3), "already-wide strings pass through unchanged")
}

func TestNewTableSizesColumnsFromPreScan(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, []string{"acme/web", "acme/x"}, "GX-2026-08-03T12-00-00")

	tbl.WriteRow(Row{Slug: "acme/x", Branch: "GX-2026-08-03T12-00-00", Status: "PrCreated", Detail: "ok"})
	tbl.WriteRow(Row{Slug: "acme/web", Branch: "GX-2026-08-03T12-00-00", Status: "Failed", Detail: "boom"})

	lines := buf.String()
	require.Contains(t, lines, "acme/x  ")
	require.Contains(t, lines, "acme/web")
}

func TestRenderPRTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	RenderPRTable(&buf, []PRRow{
		{Slug: "acme/web", Number: 42, State: "OPEN", Author: "octocat", URL: "https://example.com/1"},
		{Slug: "acme/infrastructure", Number: 7, State: "MERGED", Author: "bot", URL: "https://example.com/2"},
	})

	out := buf.String()
	require.Contains(t, out, "REPO")
	require.Contains(t, out, "acme/web")
	require.Contains(t, out, "acme/infrastructure")
}
