package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stelgent-web/internal/application"
	"stelgent-web/internal/auth"
	"stelgent-web/internal/domain/services"
	"stelgent-web/internal/events"
	"stelgent-web/internal/infrastructure/sqlite"
	"stelgent-web/internal/interfaces/http/router"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/types"
)

type harness struct {
	server string
	ring   *keyring.ArrayKeyring
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("STELGENT_PUBLIC_KEY", "")
	gin.SetMode(gin.TestMode)

	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	cfg, err := config.Parse("")
	require.NoError(t, err)
	hub := events.NewHub(events.DefaultBuffer)
	processor := services.NewFileProcessor(cfg)

	srv := httptest.NewServer(router.New(router.Deps{
		Config:   cfg,
		Users:    application.NewUserService(store),
		Projects: application.NewProjectService(store, hub),
		Files: application.NewFileService(store, store, processor,
			services.NewPreviewAssembler(services.PreviewOptions{}), nil, hub),
		Hub: hub,
		DB:  store,
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		store.Close()
	})
	return &harness{server: srv.URL, ring: keyring.NewArrayKeyring(nil)}
}

// run executes the CLI with args and returns stdout.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &App{
		In:          strings.NewReader(stdin),
		Out:         &out,
		Err:         &errOut,
		OpenKeyring: func() (keyring.Keyring, error) { return h.ring, nil },
	}
	cmd := NewRootCommand(app)
	cmd.SetArgs(append([]string{"--server", h.server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := h.run(t, stdin, args...)
	require.NoError(t, err, out)
	return out
}

func walletKey(t *testing.T) string {
	t.Helper()
	key, err := auth.EncodePublicKey(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)
	return key
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	key := walletKey(t)

	_, err := h.run(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	out := h.mustRun(t, key+"\n", "login", "-o", "text")
	assert.Contains(t, out, "Logged in as "+key)

	stored, err := h.ring.Get(credentialKey(h.server))
	require.NoError(t, err)
	assert.Equal(t, key, string(stored.Data))

	user := decodeJSON[types.User](t, h.mustRun(t, "", "whoami"))
	assert.Equal(t, key, user.StellarPublicKey)

	out = h.mustRun(t, "", "whoami", "-q", ".stellar_public_key")
	assert.Equal(t, `"`+key+`"`+"\n", out)

	out = h.mustRun(t, "", "whoami", "-o", "yaml")
	assert.Contains(t, out, "stellar_public_key: "+key)

	out = h.mustRun(t, "", "logout", "-o", "text")
	assert.Equal(t, "Logged out\n", out)
	out = h.mustRun(t, "", "logout", "-o", "text")
	assert.Equal(t, "Not logged in\n", out)
}

func TestLoginRejectsInvalidKey(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "login", "GNOPE")
	require.Error(t, err)
	_, err = h.run(t, "", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestProjectAndFileCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "", "login", walletKey(t))

	project := decodeJSON[types.Project](t, h.mustRun(t, "", "projects", "create", "site"))
	require.NotEmpty(t, project.ID)

	out := h.mustRun(t, "", "projects", "list", "-o", "text")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, project.ID)

	local := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(local, []byte("<h1>Hi</h1>"), 0o644))
	h.mustRun(t, "", "files", "put", project.ID, "index.html", "--from", local)
	h.mustRun(t, "body{margin:0}", "files", "put", project.ID, "css/site.css")
	h.mustRun(t, "", "files", "put", project.ID, "assets", "--folder")

	updated := decodeJSON[types.FileRecord](t, h.mustRun(t, "<h1>Bye</h1>", "files", "put", project.ID, "index.html"))
	assert.Equal(t, "<h1>Bye</h1>", updated.Content)

	files := decodeJSON[[]types.FileRecord](t, h.mustRun(t, "", "files", "list", project.ID))
	require.Len(t, files, 3)

	out = h.mustRun(t, "", "files", "tree", project.ID, "-o", "text")
	assert.Equal(t, "├── assets/\n├── css/\n│   └── site.css\n└── index.html\n", out)

	moved := decodeJSON[types.FileRecord](t, h.mustRun(t, "", "files", "mv", project.ID, "css/site.css", "css/main.css"))
	assert.Equal(t, "css/main.css", moved.Path)

	_, err := h.run(t, "", "files", "mv", project.ID, "missing.txt", "x.txt")
	require.Error(t, err)

	doc := h.mustRun(t, "", "preview", project.ID)
	assert.Contains(t, doc, "<h1>Bye</h1>")
	assert.Contains(t, doc, "/* css/main.css */")

	archivePath := filepath.Join(t.TempDir(), "site.zip")
	h.mustRun(t, "", "archive", project.ID, "--out", archivePath)
	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)
	require.NoError(t, zr.Close())

	other := decodeJSON[types.Project](t, h.mustRun(t, "", "projects", "create", "copy"))
	result := decodeJSON[types.ImportResult](t, h.mustRun(t, "", "import", other.ID, archivePath))
	assert.Len(t, result.Imported, 2)

	out = h.mustRun(t, "", "files", "rm", project.ID, "css/main.css", "-q", ".deleted")
	assert.Equal(t, "1\n", out)

	h.mustRun(t, "", "projects", "delete", project.ID)
	_, err = h.run(t, "", "files", "list", project.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestPreviewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<main>local</main>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "lib", "x.js"), []byte("skipped()"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("start()"), 0o644))

	var out bytes.Buffer
	app := &App{In: strings.NewReader(""), Out: &out, Err: &bytes.Buffer{}}
	require.NoError(t, runPreviewDir(context.Background(), app, previewDirOptions{dir: dir}))

	assert.Contains(t, out.String(), "<main>local</main>")
	assert.Contains(t, out.String(), "start()")
	assert.NotContains(t, out.String(), "skipped()")
}

func TestPreviewDirWatch(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(t.TempDir(), "preview.html")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>v1</p>"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{In: strings.NewReader(""), Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}
	done := make(chan error, 1)
	go func() {
		done <- runPreviewDir(ctx, app, previewDirOptions{dir: dir, out: outFile, watch: true})
	}()

	readOut := func() string {
		data, _ := os.ReadFile(outFile)
		return string(data)
	}
	require.Eventually(t, func() bool { return strings.Contains(readOut(), "<p>v1</p>") }, 2*time.Second, 20*time.Millisecond)

	// The watcher may still be registering; keep writing until a rebuild lands.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>v2</p>"), 0o644)
		return strings.Contains(readOut(), "<p>v2</p>")
	}, 5*time.Second, 250*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestPrinter(t *testing.T) {
	data := map[string]any{"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatJSON, ".items[].name").Print(data, nil))
	assert.Equal(t, "\"a\"\n\"b\"\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatText, ".items | length").Print(data, nil))
	assert.Equal(t, "2\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatYAML, "").Print(types.Project{ID: "p1", Name: "site"}, nil))
	assert.Contains(t, buf.String(), "id: p1\n")
	assert.Contains(t, buf.String(), "name: site\n")

	err := NewPrinter(&buf, FormatJSON, ".[").Print(data, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --query")

	_, err = ParseFormat("xml")
	require.Error(t, err)
}
