package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodojo/internal/dsl"
)

func booksRegistry(t *testing.T) *Registry {
	t.Helper()
	ents, err := dsl.ParseEntities(strings.NewReader(`
module books_api

entity Publisher:
  name: string required max_length=255

entity Book:
  title: string required max_length=255
  rrp: decimal required max_digits=5 decimal_places=2
  publisher: ref[Publisher] required on_delete=cascade

entity BookFormat:
  label: string
`))
	require.NoError(t, err)
	byFQN := map[string]*dsl.Entity{}
	for _, e := range ents {
		byFQN[e.FQN()] = e
	}
	reg, err := FromEntities(byFQN)
	require.NoError(t, err)
	return reg
}

func TestFromEntities(t *testing.T) {
	reg := booksRegistry(t)

	book, err := reg.Lookup("books_api", "Book")
	require.NoError(t, err)
	assert.Equal(t, "books", book.PluralName)
	assert.Equal(t, "id", book.PrimaryKey().Name)
	require.Len(t, book.Fields, 4)

	pub, ok := book.Field("publisher_id")
	require.True(t, ok)
	assert.True(t, pub.IsForeignKey())
	assert.Equal(t, "Publisher", pub.Related.Name)
	assert.Equal(t, "publisher_id", pub.Key())
	assert.Equal(t, OnDeleteCascade, pub.OnDelete)

	rrp, _ := book.Field("rrp")
	assert.Equal(t, 5, rrp.MaxDigits)
	assert.Equal(t, 2, rrp.DecimalPlaces)
	assert.False(t, rrp.Nullable)

	bf, err := reg.Lookup("BOOKS_API", "bookformat")
	require.NoError(t, err)
	assert.Equal(t, "book_formats", bf.PluralName)
	label, _ := bf.Field("label")
	assert.True(t, label.Nullable)
}

func TestFromEntitiesErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown type":                    "module m\nentity A:\n  x: blob\n",
		"unknown target":                  "module m\nentity A:\n  b: ref[B]\n",
		"reserved id":                     "module m\nentity A:\n  id: int\n",
		"bad on_delete":                   "module m\nentity A:\n  a: ref[A] on_delete=explode\n",
		"set_null conflict":               "module m\nentity A:\n  a: ref[A] required on_delete=set_null\n",
		"bad max_length":                  "module m\nentity A:\n  s: string max_length=many\n",
		"array of ints":                   "module m\nentity A:\n  xs: array[int]\n",
		"list cascade":                    "module m\nentity A:\n  xs: array[ref[A]] on_delete=cascade\n",
		"related_name clashes with field": "module m\nentity A:\n  xs: array[ref[A]] related_name=xs\n",
		"related_name twice":              "module m\nentity A:\n  xs: array[ref[A]] related_name=r\n  ys: array[ref[A]] related_name=r\n",
	} {
		t.Run(name, func(t *testing.T) {
			ents, err := dsl.ParseEntities(strings.NewReader(src))
			require.NoError(t, err)
			_, err = FromEntities(map[string]*dsl.Entity{ents[0].FQN(): ents[0]})
			require.Error(t, err)
		})
	}
}

func TestFromEntitiesManyToMany(t *testing.T) {
	ents, err := dsl.ParseEntities(strings.NewReader(`
module books_api
entity Book:
  title: string required
entity Author:
  books: array[ref[Book]] related_name=authors
entity Category:
  books: array[ref[Book]] required related_name=categories on_delete=restrict
`))
	require.NoError(t, err)
	byFQN := map[string]*dsl.Entity{}
	for _, e := range ents {
		byFQN[e.FQN()] = e
	}
	reg, err := FromEntities(byFQN)
	require.NoError(t, err)

	book, _ := reg.Lookup("books_api", "Book")
	author, _ := reg.Lookup("books_api", "Author")
	books, ok := author.Field("books")
	require.True(t, ok)
	assert.Equal(t, KindRefList, books.Kind)
	assert.True(t, books.IsManyToMany())
	assert.False(t, books.IsForeignKey())
	assert.Same(t, book, books.Related)
	assert.Equal(t, "books", books.Key())
	assert.Equal(t, OnDeleteSetNull, books.OnDelete)
	assert.True(t, books.Nullable)

	category, _ := reg.Lookup("books_api", "Category")
	cb, _ := category.Field("books")
	assert.Equal(t, OnDeleteRestrict, cb.OnDelete)
	assert.False(t, cb.Nullable)

	rv := reg.Reverse(book)
	require.Len(t, rv, 2)
	assert.Equal(t, "authors", rv[0].Name)
	assert.Same(t, author, rv[0].Owner)
	assert.Same(t, books, rv[0].Field)
	assert.Equal(t, "categories", rv[1].Name)
	assert.Empty(t, reg.Reverse(author))
}

func TestResolve(t *testing.T) {
	reg := booksRegistry(t)
	book, _ := reg.Lookup("books_api", "Book")

	got, err := Resolve(reg, "books_api", book)
	require.NoError(t, err)
	assert.Same(t, book, got)

	got, err = Resolve(reg, "books_api", "book")
	require.NoError(t, err)
	assert.Same(t, book, got)

	_, err = Resolve(reg, "books_api", "Magazine")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = Resolve(reg, "books_api", 42)
	assert.ErrorIs(t, err, ErrInvalidModelReference)

	// обязательные аргументы проверяются раньше разбора ссылки
	_, err = Resolve(reg, "", 42)
	assert.ErrorIs(t, err, ErrMissingRequiredArgument)
	_, err = Resolve(reg, "books_api", nil)
	assert.ErrorIs(t, err, ErrMissingRequiredArgument)
	_, err = Resolve(reg, "books_api", "")
	assert.ErrorIs(t, err, ErrMissingRequiredArgument)
	_, err = Resolve(reg, "books_api", (*Model)(nil))
	assert.ErrorIs(t, err, ErrMissingRequiredArgument)

	// без реестра имя не разрешить, но пропуски аргументов важнее
	_, err = Resolve(nil, "books_api", "Book")
	assert.ErrorIs(t, err, ErrModelNotFound)
	_, err = Resolve(nil, "", "Book")
	assert.ErrorIs(t, err, ErrMissingRequiredArgument)
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "categories", Plural("Category"))
	assert.Equal(t, "authors", Plural("Author"))
	assert.Equal(t, "http_servers", Plural("HTTPServer"))
}
