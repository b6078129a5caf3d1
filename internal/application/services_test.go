package application

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stelgent-web/internal/auth"
	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/domain/services"
	"stelgent-web/internal/events"
	"stelgent-web/internal/infrastructure/sqlite"
	"stelgent-web/pkg/config"
)

type fakeFetcher struct {
	owner, repo, token string
	drafts             []models.FileDraft
}

func (f *fakeFetcher) FetchRepo(_ context.Context, owner, repo, token string) ([]models.FileDraft, []string, error) {
	f.owner, f.repo, f.token = owner, repo, token
	return f.drafts, []string{"logo.png"}, nil
}

type fixture struct {
	users    *UserService
	projects *ProjectService
	files    *FileService
	hub      *events.Hub
	fetcher  *fakeFetcher
	user     *models.User
	project  *models.Project
}

func testKey(t *testing.T, b byte) string {
	t.Helper()
	key, err := auth.EncodePublicKey(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg, err := config.Parse("")
	require.NoError(t, err)

	hub := events.NewHub(64)
	fetcher := &fakeFetcher{}
	f := &fixture{
		users:    NewUserService(store),
		projects: NewProjectService(store, hub),
		files: NewFileService(store, store,
			services.NewFileProcessor(cfg),
			services.NewPreviewAssembler(services.PreviewOptions{}),
			fetcher, hub),
		hub:     hub,
		fetcher: fetcher,
	}

	ctx := context.Background()
	f.user, err = f.users.Connect(ctx, testKey(t, 1))
	require.NoError(t, err)
	f.project, err = f.projects.Create(ctx, f.user.ID, "site")
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, path string, typ models.FileType, content string) *models.FileRecord {
	t.Helper()
	rec, err := f.files.Create(context.Background(), f.user.ID, f.project.ID, models.FileDraft{Path: path, Type: typ, Content: content})
	require.NoError(t, err)
	return rec
}

func paths(files []models.FileRecord) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestUserService_Connect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again, err := f.users.Connect(ctx, testKey(t, 1))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, again.ID)

	_, err = f.users.Connect(ctx, "not-a-key")
	assert.ErrorIs(t, err, models.ErrInvalidPublicKey)
}

func TestUserService_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Authenticate(ctx, testKey(t, 1))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, u.ID)

	_, err = f.users.Authenticate(ctx, testKey(t, 2))
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = f.users.Authenticate(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = f.users.Authenticate(ctx, "GBAD")
	assert.ErrorIs(t, err, models.ErrInvalidPublicKey)
}

func TestUserService_SetOpenAIKey(t *testing.T) {
	f := newFixture(t)
	key := "sk-123"

	u, err := f.users.SetOpenAIKey(context.Background(), f.user.ID, &key)

	require.NoError(t, err)
	require.NotNil(t, u.OpenAIAPIKey)
	assert.Equal(t, key, *u.OpenAIAPIKey)
}

func TestProjectService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.projects.Create(ctx, f.user.ID, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	list, err := f.projects.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	sub := f.hub.Subscribe(f.project.ID)
	defer sub.Close()
	require.NoError(t, f.projects.Delete(ctx, f.user.ID, f.project.ID))
	assert.Equal(t, models.EventProjectDeleted, (<-sub.C).Type)

	_, err = f.projects.Get(ctx, f.user.ID, f.project.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFileService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "a", models.FileTypeFile, "")
	f.create(t, "src/app.js", models.FileTypeFile, "")

	cases := map[string]struct {
		draft models.FileDraft
		err   error
	}{
		"duplicate":        {models.FileDraft{Path: "a"}, models.ErrConflict},
		"under a file":     {models.FileDraft{Path: "a/b.js"}, models.ErrConflict},
		"over a directory": {models.FileDraft{Path: "src"}, models.ErrConflict},
		"double slash":     {models.FileDraft{Path: "x//y"}, models.ErrInvalidPath},
		"leading slash":    {models.FileDraft{Path: "/x"}, models.ErrInvalidPath},
		"dot dot":          {models.FileDraft{Path: "../x"}, models.ErrInvalidPath},
		"unknown type":     {models.FileDraft{Path: "x", Type: "link"}, models.ErrInvalidArgument},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.files.Create(ctx, f.user.ID, f.project.ID, tc.draft)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	folder, err := f.files.Create(ctx, f.user.ID, f.project.ID, models.FileDraft{Path: "src", Type: models.FileTypeFolder, Content: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, folder.Content)
}

func TestFileService_ForeignProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.users.Connect(ctx, testKey(t, 9))
	require.NoError(t, err)

	_, err = f.files.List(ctx, other.ID, f.project.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.files.Create(ctx, other.ID, f.project.ID, models.FileDraft{Path: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFileService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.create(t, "src", models.FileTypeFolder, "")
	app := f.create(t, "src/app.js", models.FileTypeFile, "old")
	f.create(t, "index.html", models.FileTypeFile, "")

	sub := f.hub.Subscribe(f.project.ID)
	defer sub.Close()

	content := "new"
	updated, err := f.files.Update(ctx, f.user.ID, f.project.ID, app.ID, models.FileUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Content)
	assert.Equal(t, models.EventFileUpdated, (<-sub.C).Type)

	into := "src/inner"
	_, err = f.files.Update(ctx, f.user.ID, f.project.ID, dir.ID, models.FileUpdate{Path: &into})
	assert.ErrorIs(t, err, models.ErrInvalidPath)

	clash := "index.html"
	_, err = f.files.Update(ctx, f.user.ID, f.project.ID, app.ID, models.FileUpdate{Path: &clash})
	assert.ErrorIs(t, err, models.ErrConflict)

	renamed := "lib"
	_, err = f.files.Update(ctx, f.user.ID, f.project.ID, dir.ID, models.FileUpdate{Path: &renamed})
	require.NoError(t, err)
	<-sub.C

	files, err := f.files.List(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "lib/app.js", "index.html"}, paths(files))

	n, err := f.files.Delete(ctx, f.user.ID, f.project.ID, dir.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ev := <-sub.C
	assert.Equal(t, models.EventFileDeleted, ev.Type)
	assert.Equal(t, 2, ev.Count)

	_, err = f.files.Delete(ctx, f.user.ID, f.project.ID, dir.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFileService_RenameFolderChecksDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.create(t, "a", models.FileTypeFolder, "")
	x := f.create(t, "a/x", models.FileTypeFile, "x")
	f.create(t, "b/x/y.js", models.FileTypeFile, "y")

	to := "b"
	_, err := f.files.Update(ctx, f.user.ID, f.project.ID, dir.ID, models.FileUpdate{Path: &to})
	assert.ErrorIs(t, err, models.ErrConflict)

	files, err := f.files.List(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/x", "b/x/y.js"}, paths(files))

	_, err = f.files.Delete(ctx, f.user.ID, f.project.ID, x.ID)
	require.NoError(t, err)
	f.create(t, "a/z.css", models.FileTypeFile, "z")

	_, err = f.files.Update(ctx, f.user.ID, f.project.ID, dir.ID, models.FileUpdate{Path: &to})
	require.NoError(t, err)

	tree, err := f.files.Tree(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	b := tree.Child("b")
	require.NotNil(t, b)
	assert.NotNil(t, b.Child("z.css"))
	require.NotNil(t, b.Child("x"))
	assert.NotNil(t, b.Child("x").Child("y.js"))
}

func TestFileService_ConcurrentCreatesDoNotCollide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		dir := fmt.Sprintf("d%d", i)
		drafts := []string{dir, dir + "/b.js"}
		errs := make([]error, len(drafts))

		var wg sync.WaitGroup
		for j, p := range drafts {
			j, p := j, p
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = f.files.Create(ctx, f.user.ID, f.project.ID, models.FileDraft{Path: p})
			}()
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, models.ErrConflict)
				failed++
			}
		}
		assert.Equal(t, 1, failed, dir)
	}
}

func TestProjectLocks(t *testing.T) {
	locks := newProjectLocks()

	unlock := locks.lock("p1")
	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := locks.lock("p1")
		close(acquired)
		release()
	}()

	other := locks.lock("p2")
	other()

	select {
	case <-acquired:
		t.Fatal("second writer entered while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
	<-done

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}

func TestFileService_TreeAndPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.files.Preview(ctx, f.user.ID, f.project.ID, false)
	assert.ErrorIs(t, err, models.ErrNoEntryHTML)

	f.create(t, "index.html", models.FileTypeFile, "<div>Hi</div>")
	f.create(t, "css/site.css", models.FileTypeFile, "p { color: red; }")

	tree, err := f.files.Tree(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "css"}, tree.ChildNames())

	doc, err := f.files.Preview(ctx, f.user.ID, f.project.ID, false)
	require.NoError(t, err)
	assert.Contains(t, doc, "/* css/site.css */")

	small, err := f.files.Preview(ctx, f.user.ID, f.project.ID, true)
	require.NoError(t, err)
	assert.Less(t, len(small), len(doc))
}

func TestFileService_ArchiveAndImportZip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "index.html", models.FileTypeFile, "old")
	f.create(t, "a", models.FileTypeFile, "blocks a/")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{"index.html": "new", "a/b.js": "x", "app.js": "run()"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	result, err := f.files.ImportZip(ctx, f.user.ID, f.project.ID, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "app.js"}, paths(result.Imported))
	assert.Equal(t, []string{"a/b.js"}, result.Skipped)

	files, err := f.files.List(ctx, f.user.ID, f.project.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "new", files[0].Content)

	var out bytes.Buffer
	require.NoError(t, f.files.Archive(ctx, f.user.ID, f.project.ID, &out))
	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)

	_, err = f.files.ImportZip(ctx, f.user.ID, f.project.ID, bytes.NewReader([]byte("nope")), 4)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestFileService_ImportGithub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.drafts = []models.FileDraft{{Path: "index.html", Type: models.FileTypeFile, Content: "<p>x</p>"}}

	result, err := f.files.ImportGithub(ctx, f.user.ID, f.project.ID, "https://github.com/acme/site", "tok")

	require.NoError(t, err)
	assert.Equal(t, "acme", f.fetcher.owner)
	assert.Equal(t, "site", f.fetcher.repo)
	assert.Equal(t, "tok", f.fetcher.token)
	assert.Len(t, result.Imported, 1)
	assert.Equal(t, []string{"logo.png"}, result.Skipped)

	_, err = f.files.ImportGithub(ctx, f.user.ID, f.project.ID, "https://example.com/x", "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestPlanImport_DuplicateDraftPaths(t *testing.T) {
	drafts := []models.FileDraft{
		{Path: "x.js", Content: "1"},
		{Path: "x.js", Content: "2"},
	}

	records, rejected := planImport(nil, drafts, time.Unix(0, 0))

	assert.Empty(t, rejected)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].ID, records[1].ID)
	assert.Equal(t, "2", records[1].Content)
}
