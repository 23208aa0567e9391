package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"autodojo/internal/config"
	"autodojo/internal/dsl"
	"autodojo/internal/manifest"
	"autodojo/internal/model"
	"autodojo/internal/store/memory"
	"autodojo/internal/verb"
)

const booksDSL = `
module books_api

entity Publisher:
  name: string required max_length=255

entity Book:
  title: string required max_length=255
  isbn: string required unique max_length=13
  format: enum["Hard Cover","Paperback","Ebook"] required
  rrp: decimal required max_digits=5 decimal_places=2
  publisher: ref[Publisher] required on_delete=cascade

entity Author:
  first_name: string required max_length=255
  last_name: string required max_length=255
  year_of_birth: int required
  year_of_death: int
  books: array[ref[Book]] related_name=authors

entity Category: plural=categories
  name: string required max_length=255
  books: array[ref[Book]] related_name=categories on_delete=restrict
`

const routesYAML = `
routers:
  - {namespace: books_api, model: Book, response_schemas: {GET: {depth: 1}}}
  - {namespace: books_api, model: Author, response_schemas: {GET: {depth: 1}}}
  - {namespace: books_api, model: Category}
  - {namespace: books_api, model: Publisher}
`

func init() {
	gin.SetMode(gin.TestMode)
}

func registry(t *testing.T) *model.Registry {
	t.Helper()
	ents, err := dsl.ParseEntities(strings.NewReader(booksDSL))
	require.NoError(t, err)
	byFQN := map[string]*dsl.Entity{}
	for _, e := range ents {
		byFQN[e.FQN()] = e
	}
	reg, err := model.FromEntities(byFQN)
	require.NoError(t, err)
	return reg
}

func newServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	reg := registry(t)
	var mf manifest.Manifest
	require.NoError(t, yaml.Unmarshal([]byte(routesYAML), &mf))

	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v2"
	}
	cfg.Title = "Books"
	app, err := New(cfg, reg, memory.New(reg), &mf, nil)
	require.NoError(t, err)
	h, err := NewEngine(app)
	require.NoError(t, err)
	return h
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path, body string, hdr ...string) (int, string) {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/api/v2"+path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func (c client) object(method, path, body string) map[string]any {
	c.t.Helper()
	code, out := c.do(method, path, body)
	require.Equal(c.t, http.StatusOK, code, out)
	var m map[string]any
	require.NoError(c.t, json.Unmarshal([]byte(out), &m))
	return m
}

const dune = `{"title":"Dune","isbn":"9780441013593","format":"Paperback","rrp":"9.99","publisher_id":1}`

func TestBooksEndToEnd(t *testing.T) {
	c := client{t: t, h: newServer(t, config.Config{})}

	pub := c.object(http.MethodPost, "/publishers/", `{"name":"Ace"}`)
	assert.EqualValues(t, 1, pub["id"])

	book := c.object(http.MethodPost, "/books/", dune)
	assert.EqualValues(t, 1, book["id"])
	assert.EqualValues(t, 1, book["publisher_id"])

	// GET_ONE с depth=1 вкладывает издателя
	got := c.object(http.MethodGet, "/books/1", "")
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Ace"}, got["publisher"])

	patched := c.object(http.MethodPatch, "/books/1", `{"title":"New Title"}`)
	assert.Equal(t, "New Title", patched["title"])
	for k, v := range book {
		if k != "title" {
			assert.Equal(t, v, patched[k], k)
		}
	}

	code, body := c.do(http.MethodPatch, "/books/1", `{"publisher_id":999999}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"api_error":"Publisher referenced by 'publisher_id' does not exist"}`, body)
	unchanged := c.object(http.MethodGet, "/books/1", "")
	assert.Equal(t, "New Title", unchanged["title"])

	put := c.object(http.MethodPut, "/books/1",
		`{"title":"Dune","isbn":"9780441013593","format":"Hard Cover","rrp":"19.99","publisher":1}`)
	assert.Equal(t, "Hard Cover", put["format"])

	code, body = c.do(http.MethodPost, "/books/", `{"title":"No publisher"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "field 'isbn' is required")

	code, body = c.do(http.MethodGet, "/books/99", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"api_error":"Requested Book object does not exist"}`, body)

	code, body = c.do(http.MethodGet, "/books/abc", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"api_error":"Not Found"}`, body)

	code, body = c.do(http.MethodGet, "/books/", "")
	assert.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0]["publisher_id"])

	code, body = c.do(http.MethodDelete, "/books/1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body)
	code, _ = c.do(http.MethodGet, "/books/1", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = c.do(http.MethodDelete, "/books/1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNullableAndPlural(t *testing.T) {
	c := client{t: t, h: newServer(t, config.Config{})}

	author := c.object(http.MethodPost, "/authors/",
		`{"first_name":"Frank","last_name":"Herbert","year_of_birth":1920,"year_of_death":null}`)
	assert.Nil(t, author["year_of_death"])
	author = c.object(http.MethodPatch, "/authors/1", `{"year_of_death":1986}`)
	assert.EqualValues(t, 1986, author["year_of_death"])

	c.object(http.MethodPost, "/categories/", `{"name":"Sci-Fi"}`)
	code, _ := c.do(http.MethodGet, "/categorys/", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestManyToMany(t *testing.T) {
	c := client{t: t, h: newServer(t, config.Config{})}

	c.object(http.MethodPost, "/publishers/", `{"name":"Ace"}`)
	c.object(http.MethodPost, "/books/", dune)
	c.object(http.MethodPost, "/books/",
		`{"title":"Emma","isbn":"9780141439587","format":"Ebook","rrp":"4.99","publisher":1}`)

	author := c.object(http.MethodPost, "/authors/",
		`{"first_name":"Frank","last_name":"Herbert","year_of_birth":1920}`)
	assert.Equal(t, []any{}, author["books"])

	author = c.object(http.MethodPatch, "/authors/1", `{"books":[2,1]}`)
	assert.Equal(t, []any{float64(1), float64(2)}, author["books"])
	assert.Equal(t, "Frank", author["first_name"])

	// depth=1: книги вложены объектами
	got := c.object(http.MethodGet, "/authors/1", "")
	books, ok := got["books"].([]any)
	require.True(t, ok, got["books"])
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].(map[string]any)["title"])
	assert.Equal(t, "Emma", books[1].(map[string]any)["title"])

	code, body := c.do(http.MethodGet, "/books/2/authors", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[1]`, body)
	code, body = c.do(http.MethodGet, "/books/2/categories", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)
	code, body = c.do(http.MethodGet, "/books/99/authors", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"api_error":"Requested Book object does not exist"}`, body)

	// несуществующая книга в списке: ничего не меняется
	code, body = c.do(http.MethodPatch, "/authors/1", `{"books":[1,99]}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"api_error":"Book referenced by 'books' does not exist"}`, body)
	code, body = c.do(http.MethodPost, "/categories/", `{"name":"Sci-Fi","books":[42]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"api_error":"Book referenced by 'books' does not exist"}`, body)
	code, body = c.do(http.MethodPost, "/categories/", `{"name":"Sci-Fi","books":[1,1]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "field 'books' failed 'unique' validation")

	// null для списка — пустой список
	author = c.object(http.MethodPatch, "/authors/1", `{"books":null}`)
	assert.Equal(t, []any{}, author["books"])
	c.object(http.MethodPatch, "/authors/1", `{"books":[1,2]}`)

	// удаление книги убирает её из списка автора, restrict у категорий мешает удалению
	c.object(http.MethodPost, "/categories/", `{"name":"Classics","books":[2]}`)
	code, _ = c.do(http.MethodDelete, "/books/1", "")
	assert.Equal(t, http.StatusOK, code)
	author = c.object(http.MethodGet, "/authors/1", "")
	require.Len(t, author["books"], 1)
	code, _ = c.do(http.MethodDelete, "/books/2", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	code, body = c.do(http.MethodGet, "/books/2/categories", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[1]`, body)
}

func TestMetaAndOpenAPI(t *testing.T) {
	c := client{t: t, h: newServer(t, config.Config{})}

	code, body := c.do(http.MethodGet, "/meta", "")
	require.Equal(t, http.StatusOK, code)
	var list []metaModelListItem
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 4)
	assert.Equal(t, "/api/v2/books/", list[0].Path)

	code, body = c.do(http.MethodGet, "/meta/books_api/book", "")
	require.Equal(t, http.StatusOK, code)
	var meta metaModel
	require.NoError(t, json.Unmarshal([]byte(body), &meta))
	assert.Equal(t, "books", meta.Plural)
	// плюс обратные связи authors и categories
	assert.Len(t, meta.Routes, len(verb.Defaults())+2)
	var fk metaField
	for _, f := range meta.Fields {
		if f.Name == "publisher" {
			fk = f
		}
	}
	assert.Equal(t, "publisher_id", fk.Key)
	assert.Equal(t, "books_api.Publisher", fk.Ref)

	code, body = c.do(http.MethodGet, "/meta/books_api/author", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &meta))
	var many metaField
	for _, f := range meta.Fields {
		if f.Name == "books" {
			many = f
		}
	}
	assert.Equal(t, "books", many.Key)
	assert.Equal(t, "books_api.Book", many.Ref)
	assert.True(t, many.Many)
	assert.Equal(t, "authors", many.RelatedName)
	assert.Equal(t, "set_null", many.OnDelete)

	code, _ = c.do(http.MethodGet, "/meta/books_api/magazine", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = c.do(http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"/api/v2/books/{id}"`)
	assert.Contains(t, body, `"Books"`)
}

func TestAuthToken(t *testing.T) {
	c := client{t: t, h: newServer(t, config.Config{APIToken: "s3cret"})}

	code, body := c.do(http.MethodGet, "/publishers/", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `{"api_error":"Unauthorized"}`, body)

	code, _ = c.do(http.MethodGet, "/publishers/", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
}

func TestRequestID(t *testing.T) {
	h := newServer(t, config.Config{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/meta", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 26)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/meta", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dsl"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dsl", "books.dsl"), []byte(booksDSL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.yaml"), []byte(routesYAML), 0o644))

	app, err := Bootstrap(t.Context(), config.Config{
		DSLDir:   filepath.Join(dir, "dsl"),
		Manifest: filepath.Join(dir, "routes.yaml"),
		BasePath: "/api/v2",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	assert.Len(t, app.Routers, 4)
	routes := app.Routes()
	assert.Len(t, routes, 4*len(verb.Defaults())+2)
	assert.Equal(t, RouteRow{
		Method: "GET", Path: "/api/v2/books/{id}", Verb: "GET_ONE", Tag: "Book",
		Statuses: []int{200, 404}, Response: "GeneratedBookGetOut",
	}, routes[0])
	assert.Contains(t, routes, RouteRow{
		Method: "GET", Path: "/api/v2/books/{id}/authors", Verb: "RELATED", Tag: "Book",
		Statuses: []int{200, 404}, Response: "list[int]",
	})

	_, err = Bootstrap(t.Context(), config.Config{DSLDir: filepath.Join(dir, "missing"), Manifest: "x"}, nil)
	assert.Error(t, err)
}

func TestNewRejectsUnknownModel(t *testing.T) {
	reg := registry(t)
	mf := &manifest.Manifest{Routers: []manifest.Router{{Namespace: "books_api", Model: "Magazine"}}}
	_, err := New(config.Config{}, reg, memory.New(reg), mf, nil)
	assert.ErrorIs(t, err, model.ErrModelNotFound)
	assert.Contains(t, err.Error(), "router #1")
}

func TestBootstrapRepoAssets(t *testing.T) {
	app, err := Bootstrap(t.Context(), config.Config{
		DSLDir:   filepath.Join("..", "..", "dsl"),
		Manifest: filepath.Join("..", "..", "routes.yaml"),
		BasePath: "/api/v2",
		Title:    "Books",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	h, err := NewEngine(app)
	require.NoError(t, err)
	c := client{t: t, h: h}

	c.object(http.MethodPost, "/publishers/", `{"name":"Ace"}`)
	c.object(http.MethodPost, "/books/", dune)
	got := c.object(http.MethodGet, "/books/1", "")
	assert.Equal(t, "Ace", got["publisher"].(map[string]any)["name"])
}
