package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodojo/internal/model"
	"autodojo/internal/store"
)

func fixture(t *testing.T, policy model.OnDelete) (*model.Registry, *model.Model, *model.Model) {
	t.Helper()
	pub := &model.Model{Namespace: "books_api", Name: "Publisher", PluralName: "publishers", Fields: []*model.Field{
		{Name: "id", Kind: model.KindInt, PrimaryKey: true},
		{Name: "name", Kind: model.KindString},
	}}
	book := &model.Model{Namespace: "books_api", Name: "Book", PluralName: "books", Fields: []*model.Field{
		{Name: "id", Kind: model.KindInt, PrimaryKey: true},
		{Name: "title", Kind: model.KindString},
		{Name: "publisher", Kind: model.KindRef, Related: pub, OnDelete: policy, Nullable: policy == model.OnDeleteSetNull},
	}}
	reg := model.NewRegistry()
	require.NoError(t, reg.Add(pub))
	require.NoError(t, reg.Add(book))
	return reg, pub, book
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	reg, pub, _ := fixture(t, model.OnDeleteCascade)
	db := New(reg)
	pubs := db.For(pub)

	a, err := pubs.Create(ctx, map[string]any{"name": "A", "bogus": 1})
	require.NoError(t, err)
	b, err := pubs.Create(ctx, map[string]any{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.NotContains(t, a.Values, "bogus")

	// правка копии не меняет хранилище до Save
	a.Set("name", "A2")
	got, err := pubs.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Get("name"))

	require.NoError(t, pubs.Save(ctx, a))
	require.NoError(t, pubs.Reload(ctx, got))
	assert.Equal(t, "A2", got.Get("name"))

	all, err := pubs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{1, 2}, []int64{all[0].ID, all[1].ID})

	require.NoError(t, pubs.Delete(ctx, b))
	_, err = pubs.Get(ctx, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, pubs.Delete(ctx, b), store.ErrNotFound)
	assert.ErrorIs(t, pubs.Save(ctx, b), store.ErrNotFound)
}

func TestDeletePolicies(t *testing.T) {
	ctx := context.Background()

	setup := func(policy model.OnDelete) (store.Store, store.Store, *store.Instance, *store.Instance) {
		reg, pub, book := fixture(t, policy)
		db := New(reg)
		p, err := db.For(pub).Create(ctx, map[string]any{"name": "P"})
		require.NoError(t, err)
		bk, err := db.For(book).Create(ctx, map[string]any{"title": "T", "publisher": p.ID})
		require.NoError(t, err)
		return db.For(pub), db.For(book), p, bk
	}

	t.Run("cascade", func(t *testing.T) {
		pubs, books, p, bk := setup(model.OnDeleteCascade)
		require.NoError(t, pubs.Delete(ctx, p))
		_, err := books.Get(ctx, bk.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
	t.Run("set_null", func(t *testing.T) {
		pubs, books, p, bk := setup(model.OnDeleteSetNull)
		require.NoError(t, pubs.Delete(ctx, p))
		got, err := books.Get(ctx, bk.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Get("publisher"))
	})
	t.Run("restrict", func(t *testing.T) {
		pubs, books, p, bk := setup(model.OnDeleteRestrict)
		assert.ErrorIs(t, pubs.Delete(ctx, p), store.ErrRestricted)
		_, err := pubs.Get(ctx, p.ID)
		require.NoError(t, err)
		_, err = books.Get(ctx, bk.ID)
		require.NoError(t, err)
	})
}

// Restrict-ссылка из строки, которая сама уходит каскадом, удалению не мешает.
func TestDeleteRestrictInsideCascade(t *testing.T) {
	ctx := context.Background()
	reg, pub, book := fixture(t, model.OnDeleteCascade)
	review := &model.Model{Namespace: "books_api", Name: "Review", PluralName: "reviews", Fields: []*model.Field{
		{Name: "id", Kind: model.KindInt, PrimaryKey: true},
		{Name: "book", Kind: model.KindRef, Related: book, OnDelete: model.OnDeleteRestrict},
		{Name: "publisher", Kind: model.KindRef, Related: pub, OnDelete: model.OnDeleteCascade},
	}}
	require.NoError(t, reg.Add(review))
	db := New(reg)

	p, err := db.For(pub).Create(ctx, map[string]any{"name": "P"})
	require.NoError(t, err)
	bk, err := db.For(book).Create(ctx, map[string]any{"title": "T", "publisher": p.ID})
	require.NoError(t, err)
	rv, err := db.For(review).Create(ctx, map[string]any{"book": bk.ID, "publisher": p.ID})
	require.NoError(t, err)

	// сама книга защищена отзывом
	assert.ErrorIs(t, db.For(book).Delete(ctx, bk), store.ErrRestricted)

	require.NoError(t, db.For(pub).Delete(ctx, p))
	_, err = db.For(book).Get(ctx, bk.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.For(review).Get(ctx, rv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManyToMany(t *testing.T) {
	ctx := context.Background()

	setup := func(policy model.OnDelete) (*DB, *model.Model, *model.Model, *store.Instance) {
		reg, _, book := fixture(t, model.OnDeleteCascade)
		author := &model.Model{Namespace: "books_api", Name: "Author", PluralName: "authors", Fields: []*model.Field{
			{Name: "id", Kind: model.KindInt, PrimaryKey: true},
			{Name: "books", Kind: model.KindRefList, Related: book, OnDelete: policy, Nullable: true, RelatedName: "authors"},
		}}
		require.NoError(t, reg.Add(author))
		db := New(reg)
		for _, title := range []string{"A", "B", "C"} {
			_, err := db.For(book).Create(ctx, map[string]any{"title": title})
			require.NoError(t, err)
		}
		a, err := db.For(author).Create(ctx, map[string]any{"books": []any{float64(3), float64(1), float64(3)}})
		require.NoError(t, err)
		return db, book, author, a
	}

	t.Run("ids normalized and copied", func(t *testing.T) {
		db, _, author, a := setup(model.OnDeleteSetNull)
		assert.Equal(t, []int64{1, 3}, a.Get("books"))

		a.Get("books").([]int64)[0] = 99
		got, err := db.For(author).Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, got.Get("books"))

		got.Set("books", nil)
		require.NoError(t, db.For(author).Save(ctx, got))
		require.NoError(t, db.For(author).Reload(ctx, got))
		assert.Equal(t, []int64{}, got.Get("books"))
	})
	t.Run("set_null removes id", func(t *testing.T) {
		db, book, author, a := setup(model.OnDeleteSetNull)
		require.NoError(t, db.For(book).Delete(ctx, &store.Instance{Model: book, ID: 1}))
		got, err := db.For(author).Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, got.Get("books"))
	})
	t.Run("restrict", func(t *testing.T) {
		db, book, author, a := setup(model.OnDeleteRestrict)
		assert.ErrorIs(t, db.For(book).Delete(ctx, &store.Instance{Model: book, ID: 3}), store.ErrRestricted)
		// книга без ссылок удаляется
		require.NoError(t, db.For(book).Delete(ctx, &store.Instance{Model: book, ID: 2}))
		// удаление владельца убирает связи вместе с ним
		require.NoError(t, db.For(author).Delete(ctx, a))
		require.NoError(t, db.For(book).Delete(ctx, &store.Instance{Model: book, ID: 3}))
	})
}
