package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/storage"
)

type env struct {
	dir      string
	cacheDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("OUTLINER_CONFIG", "")
	t.Setenv("OUTLINER_REMOTE", "")
	t.Setenv("OUTLINER_TOKEN", "")
	dir := t.TempDir()
	return &env{dir: dir, cacheDir: filepath.Join(dir, "cache")}
}

func (e *env) path(name string) string {
	return filepath.Join(e.dir, name)
}

// run executes the root command with isolated config, backup and cache dirs
func (e *env) run(args ...string) (string, string, error) {
	return e.runWithInput("", args...)
}

func (e *env) runWithInput(input string, args ...string) (string, string, error) {
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--config", e.path("none.toml"),
		"--backup-dir", e.path("backups"),
		"--cache-dir", e.cacheDir,
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func sampleDocument() *model.Document {
	return model.MustBuild(
		model.Node{ID: "a", Heading: "Groceries", Body: []string{"weekly list"}, Children: []model.Node{
			{ID: "a1", Heading: "Vegetables"},
			{ID: "a2", Heading: "Fruit", Collapsed: true, Children: []model.Node{
				{ID: "a2x", Heading: "Apples"},
			}},
		}},
		model.Node{ID: "b", Heading: "Projects"},
	)
}

func (e *env) writeDocument(t *testing.T, name string, doc *model.Document) string {
	t.Helper()
	p := e.path(name)
	require.NoError(t, storage.NewJSONStore(p).Save(doc))
	return p
}

func TestValidate(t *testing.T) {
	e := newEnv(t)
	good := e.writeDocument(t, "good.json", sampleDocument())
	bad := e.path("bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"sections":[]}`), 0o644))

	out, _, err := e.run("validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good+" (sections, 5 sections)")

	out, _, err = e.run("validate", good, bad)
	assert.Error(t, err)
	assert.Contains(t, out, "FAIL "+bad)
}

func TestShow(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())

	out, _, err := e.run("show", p)
	require.NoError(t, err)
	assert.Equal(t, "- Groceries\n  - Vegetables\n  + Fruit\n    - Apples\n- Projects\n", out)

	out, _, err = e.run("show", "--visible", "--ids", p)
	require.NoError(t, err)
	assert.Equal(t, "- Groceries  [a]\n  - Vegetables  [a1]\n  + Fruit  [a2]\n- Projects  [b]\n", out)

	_, _, err = e.run("show", e.path("missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConvertIndentedText(t *testing.T) {
	e := newEnv(t)
	in := e.path("notes.txt")
	require.NoError(t, os.WriteFile(in, []byte("Inbox\n  Call Bob\n  Pay rent\nLater\n"), 0o644))
	outPath := e.path("notes.json")

	out, _, err := e.run("convert", in, outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(4 sections)")

	doc, err := loadDocument(outPath)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.Len())
	roots := doc.Roots()
	require.Len(t, roots, 2)
	first, _ := doc.Section(roots[0])
	assert.Equal(t, "Inbox", first.Heading.PlainText())
	assert.Len(t, first.Children, 2)
}

func TestConvertLegacyBacksUpTarget(t *testing.T) {
	e := newEnv(t)
	in := e.path("legacy.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"blocks":[
		{"type":"section_heading","attrs":{"level":1},"content":[{"type":"text","text":"Intro"}]},
		{"type":"paragraph","content":[{"type":"text","text":"hello"}]}
	]}`), 0o644))
	target := e.writeDocument(t, "target.json", sampleDocument())

	_, stderr, err := e.run("convert", in, target)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Backup: ")

	doc, err := loadDocument(target)
	require.NoError(t, err)
	sec, _ := doc.Section(doc.Roots()[0])
	assert.Equal(t, "Intro", sec.Heading.PlainText())
	assert.Equal(t, "hello", sec.Body.PlainText())

	backups, err := os.ReadDir(e.path("backups"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestOpIndent(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())

	out, _, err := e.run("op", p, "indent", "b")
	require.NoError(t, err)
	assert.Equal(t, "indent b: cursor on b\n", out)

	doc, err := loadDocument(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.Roots())
	a, _ := doc.Section("a")
	assert.Equal(t, []string{"a1", "a2", "b"}, a.Children)

	_, _, err = e.run("op", p, "outdent", "a")
	assert.Error(t, err)
	_, _, err = e.run("op", p, "shuffle", "a")
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())

	out, _, err := e.run("find", p, "apples")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.1")
	assert.Contains(t, out, "[a2x]")

	_, _, err = e.run("find", p, "zzzz")
	assert.Error(t, err)
}

func TestExportBulletsToStdout(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())

	out, _, err := e.run("export", "--style", "bullets", p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "- Groceries\n  - Vegetables\n"))
}

func TestDiffTwoFiles(t *testing.T) {
	e := newEnv(t)
	old := e.writeDocument(t, "old.json", sampleDocument())

	changed := sampleDocument()
	sec, _ := changed.Section("b")
	sec.Heading = model.Text("Projects 2025")
	updated := e.writeDocument(t, "new.json", changed)

	out, _, err := e.run("diff", old, old)
	require.NoError(t, err)
	assert.Contains(t, out, "No changes detected")

	out, _, err = e.run("diff", "-s", old, updated)
	require.NoError(t, err)
	assert.Contains(t, out, "1 modified, 0 added, 0 deleted")
}

func TestDiffHistoryWithoutBackups(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())
	require.NoError(t, os.MkdirAll(e.path("backups"), 0o755))

	out, _, err := e.run("diff", p)
	require.NoError(t, err)
	assert.Contains(t, out, "No backups found")
}

func TestDraftsListAndClear(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cache, err := storage.OpenCache(ctx, storage.BackendFile, e.cacheDir)
	require.NoError(t, err)
	raw, err := json.Marshal(sampleDocument())
	require.NoError(t, err)
	require.NoError(t, cache.WriteDraft(ctx, "article-1", raw, time.Now().Add(-time.Hour)))
	require.NoError(t, cache.Close())

	out, _, err := e.run("drafts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "article-1")
	assert.Contains(t, out, "hour ago")

	out, _, err = e.run("drafts", "show", "article-1")
	require.NoError(t, err)
	assert.Contains(t, out, "- Groceries  [a]")

	_, _, err = e.run("drafts", "clear", "article-1")
	require.NoError(t, err)

	out, _, err = e.run("drafts", "list")
	require.NoError(t, err)
	assert.Equal(t, "No drafts\n", out)
}

type serviceCall struct {
	method string
	path   string
}

func newService(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []serviceCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []serviceCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		calls = append(calls, serviceCall{method: r.Method, path: r.URL.Path})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []serviceCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]serviceCall(nil), calls...)
	}
}

func TestFlushDeliversQueue(t *testing.T) {
	e := newEnv(t)
	srv, calls := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	cache, err := storage.OpenCache(ctx, storage.BackendFile, e.cacheDir)
	require.NoError(t, err)
	payload, err := json.Marshal(autosave.StructurePayload{Nodes: model.StructureSnapshot(sampleDocument())})
	require.NoError(t, err)
	require.NoError(t, cache.Enqueue(ctx, autosave.QueuedOperation{
		Kind:        autosave.KindStructureSnapshot,
		ArticleID:   "doc-1",
		Payload:     payload,
		CoalesceKey: autosave.CoalesceKey(autosave.KindStructureSnapshot, "doc-1", ""),
		QueuedAt:    time.Now(),
	}))
	require.NoError(t, cache.Close())

	out, _, err := e.run("--remote", srv.URL, "flush")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "saved")
	assert.Equal(t, []serviceCall{{method: http.MethodPut, path: "/v1/articles/doc-1/structure"}}, calls())

	out, _, err = e.run("--remote", srv.URL, "flush")
	require.NoError(t, err)
	assert.Equal(t, "Nothing queued\n", out)
}

func TestFlushNeedsRemote(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run("flush")
	assert.Error(t, err)
}

func TestPull(t *testing.T) {
	e := newEnv(t)
	raw, err := json.Marshal(sampleDocument())
	require.NoError(t, err)
	srv, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/articles/doc-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"document":  json.RawMessage(raw),
				"updatedAt": time.Now().Add(-time.Minute),
			})
		case "/v1/articles/locked":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"document":  json.RawMessage(raw),
				"updatedAt": time.Now(),
				"encrypted": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	target := e.path("pulled.json")
	out, _, err := e.run("--remote", srv.URL, "pull", "doc-1", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Pulled doc-1")

	doc, err := loadDocument(target)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Len())

	_, _, err = e.run("--remote", srv.URL, "pull", "locked", e.path("locked.json"))
	assert.Error(t, err)
	_, _, err = e.run("--remote", srv.URL, "pull", "gone", e.path("gone.json"))
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	e := newEnv(t)
	p := e.path("large.json")

	_, _, err := e.run("generate", "--sections", "50", "--depth", "3", "-o", p)
	require.NoError(t, err)

	doc, err := loadDocument(p)
	require.NoError(t, err)
	assert.Equal(t, 50, doc.Len())
	doc.Walk(func(s *model.Section, depth int) bool {
		assert.LessOrEqual(t, depth, 3)
		return true
	})

	_, _, err = e.run("generate", "--depth", "9", "-o", p)
	assert.Error(t, err)
}

func TestEditScript(t *testing.T) {
	e := newEnv(t)
	raw, err := json.Marshal(sampleDocument())
	require.NoError(t, err)
	srv, calls := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"document":  json.RawMessage(raw),
				"updatedAt": time.Now().Add(-time.Hour),
			})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	script := strings.Join([]string{
		"# view mode refuses content edits",
		"heading a1 Nope",
		"edit a1",
		"heading a1 Greens",
		"view",
		"indent b",
		"outdent a",
		"show",
		"save",
	}, "\n")
	out, _, err := e.runWithInput(script, "--remote", srv.URL, "edit", "doc-1")
	require.NoError(t, err)

	assert.Contains(t, out, "rejected: document is in view mode")
	assert.Contains(t, out, "ok, cursor on b")
	assert.Contains(t, out, "no-op: ")
	assert.Contains(t, out, "  - Greens  [a1]")
	assert.Contains(t, out, "  - Projects  [b]")
	assert.NotContains(t, out, "Nope")

	var puts int
	for _, c := range calls() {
		if c.method == http.MethodPut {
			puts++
		}
	}
	assert.Greater(t, puts, 0)

	cache, err := storage.OpenCache(context.Background(), storage.BackendFile, e.cacheDir)
	require.NoError(t, err)
	defer cache.Close()
	queued, err := cache.QueuedArticles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestConfigSettings(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run("config", "set", "export.style", "bullets")
	require.NoError(t, err)
	data, err := os.ReadFile(e.path("none.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "export.style")

	out, _, err := e.run("config", "get", "export.style")
	require.NoError(t, err)
	assert.Equal(t, "bullets\n", out)

	out, _, err = e.run("--set", "export.style=headings", "config", "list")
	require.NoError(t, err)
	assert.Equal(t, "export.style = headings\n", out)

	_, _, err = e.run("--set", "broken", "config", "list")
	assert.Error(t, err)
}

func TestExportStyleFromSettings(t *testing.T) {
	e := newEnv(t)
	p := e.writeDocument(t, "doc.json", sampleDocument())

	out, _, err := e.run("--set", "export.style=bullets", "export", p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "- Groceries\n"))

	out, _, err = e.run("--set", "export.style=bullets", "export", "--style", "headings", p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Groceries\n"))
}
