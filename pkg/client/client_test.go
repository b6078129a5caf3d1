package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

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

// newTestServer starts a real API server backed by an in-memory database.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
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
	return srv
}

func walletKey(t *testing.T, b byte) string {
	t.Helper()
	key, err := auth.EncodePublicKey(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return key
}

func TestClientWorkflow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := New(srv.URL+"/", "")

	_, err := c.ListProjects(ctx)
	require.ErrorIs(t, err, ErrNoCredential)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])

	key := walletKey(t, 9)
	require.NoError(t, c.Verify(ctx, key, "sig", "msg"))
	user, err := c.Connect(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, c.PublicKey())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	openai := "sk-test"
	me, err = c.SetOpenAIKey(ctx, &openai)
	require.NoError(t, err)
	require.NotNil(t, me.OpenAIAPIKey)
	me, err = c.SetOpenAIKey(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, me.OpenAIAPIKey)

	project, err := c.CreateProject(ctx, "demo site")
	require.NoError(t, err)
	got, err := c.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo site", got.Name)

	index, err := c.CreateFile(ctx, project.ID, FileInput{Path: "index.html", Content: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, types.FileTypeFile, index.Type)
	_, err = c.CreateFile(ctx, project.ID, FileInput{Path: "src", Type: types.FileTypeFolder})
	require.NoError(t, err)
	js, err := c.CreateFile(ctx, project.ID, FileInput{Path: "src/app.js", Content: "go()"})
	require.NoError(t, err)

	_, err = c.CreateFile(ctx, project.ID, FileInput{Path: "index.html"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	newPath := "src/main.js"
	moved, err := c.UpdateFile(ctx, project.ID, js.ID, FilePatch{Path: &newPath})
	require.NoError(t, err)
	assert.Equal(t, "src/main.js", moved.Path)
	assert.Equal(t, "go()", moved.Content)

	tree, err := c.Tree(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, tree.Child("src"))
	assert.NotNil(t, tree.Child("src").Child("main.js"))

	text, err := c.TreeText(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "├── src/\n│   └── main.js\n└── index.html\n", text)

	doc, err := c.Preview(ctx, project.ID, false)
	require.NoError(t, err)
	assert.Contains(t, doc, "<p>hi</p>")
	assert.Contains(t, doc, "go()")

	archive, name, err := c.Archive(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo_site.zip", name)

	copyProject, err := c.CreateProject(ctx, "copy")
	require.NoError(t, err)
	result, err := c.ImportZip(ctx, copyProject.ID, name, bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Len(t, result.Imported, 2, "directory entries are implied by file paths")

	n, err := c.DeleteFile(ctx, project.ID, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	files, err := c.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, copyProject.ID, projects[0].ID)

	require.NoError(t, c.DeleteProject(ctx, project.ID))
	_, err = c.GetProject(ctx, project.ID)
	assert.True(t, IsNotFound(err))
}

func TestClientErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c := New(srv.URL, walletKey(t, 1))
	_, err := c.Me(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "User not found for this wallet", apiErr.Message)

	_, err = c.Connect(ctx, "not-a-key")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.ImportGithub(ctx, "p", "https://github.com/a/b", "")
	require.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n")))
}
