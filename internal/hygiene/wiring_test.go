package hygiene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/surfaceaudit/internal/audittest"
	"github.com/phobologic/surfaceaudit/internal/report"
)

const adminQuotes = `'use client';
import { approveQuote } from '@/actions/admin/quotes';

export default function AdminQuotes() {
  return (
    <div>
      <button onClick={approveQuote}>Approve</button>
      <button onClick={() => rejectQuote(1)}>Reject</button>
      <button onToggle={toggleRow} onFocus={focusRow}>Row</button>
    </div>
  );
}
`

func runWiring(t *testing.T, files map[string]string) *WiringReport {
	t.Helper()
	root := audittest.Repo(t, files)
	res, err := WiringAnalyzer{}.Run(context.Background(), audittest.Env(t, root, "admin"))
	require.NoError(t, err)
	r, ok := res.(*WiringReport)
	require.True(t, ok)
	return r
}

func TestWiringGroupsByRoute(t *testing.T) {
	t.Parallel()

	r := runWiring(t, map[string]string{
		"apps/web/app/(admin)/quotes/page.tsx": adminQuotes,
		"apps/web/app/(admin)/layout.tsx":      "export default function Layout({ children }) { return <main>{children}</main>; }\n",
	})
	require.Len(t, r.Routes, 2)
	assert.Equal(t, "/admin", r.Routes[0].Route)
	assert.Empty(t, r.Routes[0].Issues)
	assert.NotNil(t, r.Routes[0].Issues)

	quotes := r.Routes[1]
	assert.Equal(t, "/admin/quotes", quotes.Route)
	assert.Equal(t, "apps/web/app/(admin)/quotes/page.tsx", quotes.File)
	var handlers []string
	var lines []int
	for _, is := range quotes.Issues {
		handlers = append(handlers, is.Symbol)
		lines = append(lines, is.Position.Line)
	}
	assert.Equal(t, []string{"rejectQuote", "toggleRow", "focusRow"}, handlers)
	assert.Equal(t, []int{8, 9, 9}, lines)
	assert.Contains(t, quotes.Issues[0].Suggestion, "apps/web/actions/admin/rejectQuote.ts")
	assert.Equal(t, 3, r.Summary.Total)

	for _, f := range r.Findings() {
		if f.Source == WiringSource && f.Route != "" {
			assert.Equal(t, "/admin/quotes", f.Route)
			assert.Equal(t, quotes.File, f.File)
		}
	}

	md := report.Render(r)
	assert.Contains(t, md, "# Admin Flow Wiring Audit\n")
	assert.Contains(t, md, "## /admin/quotes\n\nFile: apps/web/app/(admin)/quotes/page.tsx\n\n"+
		"- Line 8: button onClick references rejectQuote but no definition or import was found\n"+
		"  - Handler: `rejectQuote`\n")
	assert.NotContains(t, md, "## /admin\n")
}

func TestWiringWithoutRoutes(t *testing.T) {
	t.Parallel()

	r := runWiring(t, map[string]string{"apps/web/app/page.tsx": "export default function Home() {}\n"})
	assert.Empty(t, r.Routes)
	assert.Contains(t, r.Warnings, `no routes discovered for scope "admin"`)
	assert.Contains(t, report.Render(r), "_Every interactive attribute resolves to a declared handler._\n")
}
