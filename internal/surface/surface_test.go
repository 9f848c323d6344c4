package surface

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/surfaceaudit/internal/audittest"
	"github.com/phobologic/surfaceaudit/internal/model"
	"github.com/phobologic/surfaceaudit/internal/report"
)

var adminFixture = map[string]string{
	"apps/web/app/(admin)/quotes/page.tsx": `'use client';
import { approveQuoteAction } from '../../actions/quotes';
import { handleReject } from './handlers';
import { Button } from '@/components/ui/button';
import { useRouter } from 'next/navigation';

export const dynamic = 'force-dynamic';

export default function QuotesPage() {
  const router = useRouter();
  return <Button onClick={() => router.push('/admin')}>Go</Button>;
}
`,
	"apps/web/app/(admin)/quotes/[id]/page.tsx": `export const metadata = { title: 'Quote' };

export async function approve(id: string) {
  'use server';
  return id;
}

export const reject = async () => {};
export const helper = () => 1;

export function archive() {
  'use server';
}

export default function QuotePage({ params }: { params: { id: string } }) {
  return <div>{params.id}</div>;
}
`,
	"apps/web/app/(admin)/api/export/route.ts": `export async function GET() {
  return new Response('ok');
}

export const POST = async (req: Request) => new Response('ok');

function helper() {}
`,
	"apps/web/app/(admin)/settings/page.tsx":        "export default function Settings() { return null; }\n",
	"apps/web/app/(admin)/(team)/settings/page.tsx": "export default function TeamSettings() { return null; }\n",
	"apps/web/components/Button.tsx": `'use client';
export function Button() { return null; }
export const size = 1;
export class Widget {}
export interface Props {}
`,
	"apps/web/lib/save.ts": "'use server';\nexport async function save() {}\n",
}

func runAdmin(t *testing.T, files map[string]string) *Report {
	t.Helper()
	root := audittest.Repo(t, files)
	res, err := Analyzer{}.Run(context.Background(), audittest.Env(t, root, "admin"))
	require.NoError(t, err)
	r, ok := res.(*Report)
	require.True(t, ok)
	return r
}

func findRecord(t *testing.T, r *Report, file string) model.RouteRecord {
	t.Helper()
	for _, rec := range r.Routes {
		if rec.File == file {
			return rec
		}
	}
	require.Failf(t, "record not found", "no record for %s", file)
	return model.RouteRecord{}
}

func TestSurfaceMapRoutes(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)

	var routes []string
	for _, rec := range r.Routes {
		routes = append(routes, rec.Route)
	}
	assert.Equal(t, []string{
		"/admin/api/export",
		"/admin/quotes",
		"/admin/quotes/[id]",
		"/admin/settings",
		"/admin/settings",
	}, routes)
	assert.Equal(t, "apps/web/app/(admin)/(team)/settings/page.tsx", r.Routes[3].File)
	assert.Equal(t, "2026-01-02T03:04:05.000Z", r.GeneratedAt)
}

func TestSurfaceMapClientPage(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	rec := findRecord(t, r, "apps/web/app/(admin)/quotes/page.tsx")

	assert.Equal(t, model.RolePage, rec.FileRole)
	assert.True(t, rec.IsClientExecuted)
	assert.Equal(t, "QuotesPage", rec.ComponentName)
	assert.Equal(t, []string{"dynamic"}, rec.ExportedMetadataKeys)
	assert.Equal(t, []string{"router"}, rec.HooksUsed)
	assert.Equal(t, []model.HandlerRef{
		{Name: "approveQuoteAction", Source: "../../actions/quotes"},
		{Name: "handleReject", Source: "./handlers"},
	}, rec.ImportedHandlers)
	assert.Empty(t, rec.ExportedActions)
	assert.Empty(t, rec.HTTPHandlerNames)
}

func TestSurfaceMapServerActions(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	rec := findRecord(t, r, "apps/web/app/(admin)/quotes/[id]/page.tsx")

	assert.False(t, rec.IsClientExecuted)
	assert.Equal(t, []string{"id"}, rec.Params)
	assert.Equal(t, []string{"metadata"}, rec.ExportedMetadataKeys)
	assert.Equal(t, []model.ActionRef{
		{Name: "approve", Async: true, ServerDirective: true},
		{Name: "reject", Async: true},
		{Name: "archive", ServerDirective: true},
	}, rec.ExportedActions)
}

func TestSurfaceMapRouteHandlers(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	rec := findRecord(t, r, "apps/web/app/(admin)/api/export/route.ts")

	assert.Equal(t, model.RoleRoute, rec.FileRole)
	assert.Equal(t, []string{"GET", "POST"}, rec.HTTPHandlerNames)
	assert.Empty(t, rec.ComponentName)
}

func TestSurfaceMapSharedModules(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	require.Len(t, r.SharedComponents, 1)
	assert.Equal(t, SharedModule{
		File:           "apps/web/components/Button.tsx",
		Exports:        []string{"Button", "size", "Widget"},
		IsClientModule: true,
	}, r.SharedComponents[0])

	require.Len(t, r.SharedLibs, 1)
	assert.True(t, r.SharedLibs[0].HasServerDirective)
	assert.False(t, r.SharedLibs[0].IsClientModule)
}

func TestSurfaceMapWarnings(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	assert.Contains(t, r.Warnings,
		"ambiguous route /admin/settings served by apps/web/app/(admin)/(team)/settings/page.tsx, apps/web/app/(admin)/settings/page.tsx")
	assert.Contains(t, r.Warnings, `pattern "apps/web/app/(admin)/**/layout.tsx" matched no files`)

	findings := r.Findings()
	require.Len(t, findings, len(r.Warnings))
	for _, f := range findings {
		assert.Equal(t, model.Medium, f.Severity)
		assert.Equal(t, model.IssueType("surface_warning"), f.IssueType)
	}
}

func TestSurfaceMapEmpty(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, map[string]string{"README.md": "nothing routed\n"})
	assert.Empty(t, r.Routes)
	assert.Contains(t, r.Warnings, `no routes discovered for scope "admin"`)
	assert.Contains(t, report.Render(r), "_No routes discovered._")
}

func TestSurfaceMapMarkdown(t *testing.T) {
	t.Parallel()

	r := runAdmin(t, adminFixture)
	md := report.Render(r)

	assert.Contains(t, md, "# Admin Surface Map\n\nGenerated at: 2026-01-02T03:04:05.000Z\n")
	assert.Contains(t, md, "### /admin/quotes\n\n- File: apps/web/app/(admin)/quotes/page.tsx\n- Type: page\n- Component: QuotesPage\n- Client Component: yes\n")
	assert.Contains(t, md, "- Imported Handlers: approveQuoteAction (../../actions/quotes), handleReject (./handlers)\n")
	assert.Contains(t, md, "- Server Actions: approve, reject, archive\n")
	assert.Contains(t, md, "- HTTP Handlers: GET, POST\n")
	assert.Contains(t, md, "- apps/web/components/Button.tsx [client]: Button, size, Widget\n")
}

func TestSurfaceMapIsDeterministic(t *testing.T) {
	t.Parallel()

	root := audittest.Repo(t, adminFixture)
	env := audittest.Env(t, root, "admin")
	first, err := Analyzer{}.Run(context.Background(), env)
	require.NoError(t, err)
	second, err := Analyzer{}.Run(context.Background(), env)
	require.NoError(t, err)

	a, err := report.Marshal(first)
	require.NoError(t, err)
	b, err := report.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.RolePage, Role("a/page.tsx"))
	assert.Equal(t, model.RoleNotFound, Role("a/not-found.tsx"))
	assert.Equal(t, model.RoleDefault, Role("a/@slot/default.tsx"))
	assert.Equal(t, model.RoleRoute, Role("a/route.ts"))
	assert.Equal(t, model.RoleRoute, Role("a/handler.ts"))
}
