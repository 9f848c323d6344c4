package hygiene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/surfaceaudit/internal/audittest"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/report"
)

const quotesPage = `'use client';
import { useRouter } from 'next/navigation';

export default function Quotes() {
  const router = useRouter();
  // TODO: wire pricing
  console.log('render');
  return (
    <div>
      <button onClick={handleApprove}>Approve</button>
      <a href="/quotes?page=2">Next</a>
    </div>
  );
}
`

const checkoutPage = `'use client';
import Link from 'next/link';
import { useRouter } from 'next/navigation';

const DONE = '/checkout/done';

export default function Checkout() {
  const router = useRouter();
  const [open, setOpen] = useState(false);
  return (
    <form onSubmit={(evt) => submitOrder(evt, open)}>
      <input placeholder="Card" onChange={() => setOpen(true)} />
      <Link href={'/quotes/'}>Back</Link>
      <Link href="/missing">Missing</Link>
      <button onClick={() => router.push(DONE)}>Pay</button>
      <button onClick={() => router.replace('/api/pay')}>Api</button>
      <button onClick={() => alert(window.location.href)}>Help</button>
    </form>
  );
}
`

func customerFixture() map[string]string {
	return map[string]string{
		"apps/web/app/page.tsx":          "export default function Home() { return null; }\n",
		"apps/web/app/quotes/page.tsx":   quotesPage,
		"apps/web/app/checkout/page.tsx": checkoutPage,
	}
}

func runFlow(t *testing.T, files map[string]string) *Report {
	t.Helper()
	root := audittest.Repo(t, files)
	res, err := Analyzer{}.Run(context.Background(), audittest.Env(t, root, "customer"))
	require.NoError(t, err)
	r, ok := res.(*Report)
	require.True(t, ok)
	return r
}

func stage(t *testing.T, r *Report, name string) StageReport {
	t.Helper()
	for _, st := range r.Stages {
		if st.Stage == name {
			return st
		}
	}
	require.Failf(t, "stage not found", "%s", name)
	return StageReport{}
}

type found struct {
	Type model.IssueType
	Line int
}

func summarize(issues []FlowIssue) []found {
	out := []found{}
	for _, is := range issues {
		out = append(out, found{is.IssueType, is.Position.Line})
	}
	return out
}

func TestOneIssueOfEachKind(t *testing.T) {
	t.Parallel()

	r := runFlow(t, customerFixture())
	st := stage(t, r, "pricing_review")
	assert.Equal(t, []string{"apps/web/app/quotes/page.tsx"}, st.Files)
	assert.Equal(t, []found{
		{model.Todo, 6},
		{model.DebugStatement, 7},
		{model.MissingHandler, 10},
	}, summarize(st.Issues))

	for _, is := range st.Issues {
		assert.Equal(t, "/quotes", is.Route)
		assert.Equal(t, "apps/web/app/quotes/page.tsx", is.TargetFile)
	}
	handler := st.Issues[2]
	assert.Equal(t, model.High, handler.Severity)
	assert.Equal(t, "handleApprove", handler.Symbol)
	assert.Equal(t, "button onClick references handleApprove but no definition or import was found", handler.Evidence)
	assert.Contains(t, handler.Suggestion, "apps/web/actions/customer/handleApprove.ts")
}

func TestCheckoutStage(t *testing.T) {
	t.Parallel()

	r := runFlow(t, customerFixture())
	st := stage(t, r, "checkout")
	assert.Equal(t, []found{
		{model.MissingHandler, 11},
		{model.Todo, 12},
		{model.DeadLink, 14},
		{model.DeadLink, 15},
	}, summarize(st.Issues))

	assert.Equal(t, "submitOrder", st.Issues[0].Symbol)
	assert.Equal(t, "Found placeholder marker in file", st.Issues[1].Evidence)

	link := st.Issues[2]
	assert.Equal(t, model.High, link.Severity)
	assert.Equal(t, `<Link href="/missing"> points to a missing route`, link.Evidence)
	assert.Equal(t, "Provision apps/web/app/missing/page.tsx or gate the link.", link.Suggestion)

	nav := st.Issues[3]
	assert.Equal(t, model.Critical, nav.Severity)
	assert.Equal(t, "router.push targets /checkout/done but no page route exists", nav.Evidence)
}

func TestEmptyStagesWarn(t *testing.T) {
	t.Parallel()

	r := runFlow(t, customerFixture())
	assert.Equal(t, []string{
		"no files matched patterns for stage RFQ Intake",
		"no files matched patterns for stage CAD Upload",
		"no files matched patterns for stage DFM Review",
	}, r.Warnings)
	assert.Empty(t, stage(t, r, "rfq_intake").Files)

	md := report.Render(r)
	assert.Contains(t, md, "# Customer Critical Flow Audit\n")
	assert.Contains(t, md, "## RFQ Intake\n\n_No files inspected for this stage._\n")
	assert.Contains(t, md, "Files inspected (1):\n- apps/web/app/quotes/page.tsx\n")
	assert.Contains(t, md, "- **debug_statement** (apps/web/app/quotes/page.tsx, line 7): Detected console.log call\n")
}

func TestFlowFindings(t *testing.T) {
	t.Parallel()

	r := runFlow(t, customerFixture())
	assert.Equal(t, 7, r.Summary.Total)
	assert.Equal(t, 1, r.Summary.BySeverity[model.Critical])

	var issues int
	for _, f := range r.Findings() {
		if f.IssueType == model.WarningType(Source) {
			continue
		}
		issues++
		assert.NotEmpty(t, f.Route)
		assert.NotZero(t, f.Line)
	}
	assert.Equal(t, 7, issues)
}

func TestRouteIndex(t *testing.T) {
	t.Parallel()

	root := audittest.Repo(t, map[string]string{
		"apps/web/app/page.tsx":                "export default function A() {}\n",
		"apps/web/app/(shop)/cart/page.tsx":    "export default function B() {}\n",
		"apps/web/app/@modal/photo/page.tsx":   "export default function C() {}\n",
		"apps/web/app/api/health/route.ts":     "export async function GET() {}\n",
		"apps/web/app/(shop)/cart/Summary.tsx": "export function Summary() {}\n",
		"apps/web/app/quotes/[id]/page.tsx":    "export default function D() {}\n",
	})
	index, err := BuildRouteIndex(root, "apps/web/app", []string{
		"apps/web/app/**/page.{ts,tsx,js,jsx}",
		"apps/web/app/**/route.{ts,js}",
	})
	require.NoError(t, err)

	for _, target := range []string{"/", "/cart", "/cart/", "/cart?step=2#top", "/photo", "/api/health", "/quotes/[id]"} {
		assert.True(t, index.Has(target), target)
	}
	for _, target := range []string{"/cart/Summary", "/quotes/7", "/shop/cart"} {
		assert.False(t, index.Has(target), target)
	}
}
