package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodojo/internal/verb"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFile(t *testing.T) {
	p := write(t, t.TempDir(), "routes.yaml", `
routers:
  - namespace: books_api
    model: Book
    verbs: [GET, GETLIST, patch]
    request_schemas:
      PATCH: {exclude: [isbn]}
    response_schemas:
      GET: {depth: 1, name: "{model}Detail"}
`)
	mf, err := Load(p)
	require.NoError(t, err)
	require.Len(t, mf.Routers, 1)

	r := mf.Routers[0]
	assert.Equal(t, []verb.Verb{verb.GetOne, verb.GetList, verb.Patch}, r.Verbs)
	assert.Equal(t, []string{"isbn"}, r.RequestSchemas[verb.Patch].Exclude)
	require.NotNil(t, r.ResponseSchemas[verb.GetOne].Depth)
	assert.Equal(t, 1, *r.ResponseSchemas[verb.GetOne].Depth)
	assert.Equal(t, "{model}Detail", *r.ResponseSchemas[verb.GetOne].Name)

	opts := r.Options()
	assert.Equal(t, "books_api", opts.Namespace)
	assert.Equal(t, "Book", opts.Model)
	assert.Equal(t, r.RequestSchemas, opts.RequestConfigs)
	assert.Equal(t, r.ResponseSchemas, opts.ResponseConfigs)
	assert.Nil(t, opts.Auth)
}

func TestLoadDirSorted(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.yml", "routers:\n  - {namespace: books_api, model: Publisher}\n")
	write(t, dir, "a.yaml", "routers:\n  - {namespace: books_api, model: Book}\n")
	write(t, dir, "notes.txt", "ignored")

	mf, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, mf.Routers, 2)
	assert.Equal(t, "Book", mf.Routers[0].Model)
	assert.Equal(t, "Publisher", mf.Routers[1].Model)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write(t, dir, "empty.yaml", "routers: []\n"))
	assert.ErrorContains(t, err, "no routers declared")

	_, err = Load(write(t, dir, "badverb.yaml", "routers:\n  - {namespace: x, model: Y, verbs: [FETCH]}\n"))
	assert.ErrorContains(t, err, "unknown verb")
}
