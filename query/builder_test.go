/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/filters"
	"github.com/uptrace/bun"
)

type author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name,notnull"`
	Books []*book `bun:"rel:has-many,join:id=author_id"`
}

type book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int64      `bun:"id,pk,autoincrement"`
	Title     string     `bun:"title,notnull"`
	Pages     int        `bun:"pages"`
	AuthorID  int64      `bun:"author_id"`
	Author    *author    `bun:"rel:belongs-to,join:author_id=id"`
	Archived  bool       `bun:"archived"`
	DeletedAt *time.Time `bun:"deleted_at"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	manager := database.NewDatabaseManager(&database.ConnectionConfig{
		Type:         database.TypeSQLite,
		DBName:       filepath.Join(t.TempDir(), "query"),
		MaxOpenConns: 1,
	})
	manager.SetLogger(database.NopLogger{})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	ctx := context.Background()
	db := manager.GetDB()
	for _, model := range []any{(*author)(nil), (*book)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	authors := []*author{{Name: "Ann"}, {Name: "Bob"}}
	_, err := db.NewInsert().Model(&authors).Exec(ctx)
	require.NoError(t, err)
	books := []*book{
		{Title: "Go in Practice", Pages: 300, AuthorID: 1},
		{Title: "Concurrency", Pages: 200, AuthorID: 1},
		{Title: "Databases", Pages: 450, AuthorID: 2},
		{Title: "Networking", Pages: 120, AuthorID: 2},
	}
	_, err = db.NewInsert().Model(&books).Exec(ctx)
	require.NoError(t, err)
	return db
}

func newBuilder[T any](t *testing.T, db *bun.DB, converter filters.Converter) (*Builder[T], *database.Session) {
	t.Helper()
	session := database.NewSession(db, database.WithSessionLogger(database.NopLogger{}))
	t.Cleanup(func() { _ = session.Close() })
	b, err := New[T](session, BuilderConfig{Converter: converter})
	require.NoError(t, err)
	return b, session
}

func titles(items []*book) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Title
	}
	return out
}

func TestNewRejectsNonStruct(t *testing.T) {
	db := newTestDB(t)
	_, err := New[int](database.NewSession(db), BuilderConfig{})
	assert.Error(t, err)
	_, err = New[book](nil, BuilderConfig{})
	assert.Error(t, err)
}

func TestGetItem(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.GetItem(ctx, filters.Dict{"title": "Databases"}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(3), item.ID)

	item, err = b.GetItem(ctx, filters.Dict{"title": "Missing"}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, item)

	_, err = b.GetItem(ctx, filters.Dict{"author_id": 1}, nil, nil)
	assert.ErrorIs(t, err, ErrMultipleResults)

	_, err = b.GetItem(ctx, filters.Dict{"isbn": "x"}, nil, nil)
	assert.ErrorIs(t, err, filters.ErrUnknownField)
}

func TestGetItemLoadsRelations(t *testing.T) {
	db := newTestDB(t)
	b, session := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.GetItem(ctx, filters.Dict{"id": 4}, nil, []Load{LoadPath("Author")})
	require.NoError(t, err)
	require.NotNil(t, item.Author)
	assert.Equal(t, "Bob", item.Author.Name)

	authors, err := New[author](session, BuilderConfig{LoadStrategy: OrderedLoad("b.pages ASC")})
	require.NoError(t, err)
	a, err := authors.GetItem(ctx, filters.Dict{"name": "Ann"}, nil, []Load{LoadPath("Books")})
	require.NoError(t, err)
	require.Len(t, a.Books, 2)
	assert.Equal(t, "Concurrency", a.Books[0].Title)
}

func TestGetItemJoinedToMany(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[author](t, db, filters.AdvancedConverter{})
	ctx := context.Background()
	joins := []Join{JoinOn((*book)(nil), "b.author_id = a.id")}

	_, err := b.GetItem(ctx, filters.Dict{"b.pages >": 100}, joins, nil)
	assert.ErrorIs(t, err, ErrMultipleResults)

	item, err := b.GetItem(ctx, filters.Dict{"name": "Ann", "b.pages >": 100}, joins, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Ann", item.Name)

	item, err = b.GetItem(ctx, filters.Dict{"b.pages >": 400}, joins, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Bob", item.Name)

	item, err = b.GetItem(ctx, filters.Dict{"b.pages >": 1000}, joins, nil)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestJoinFilters(t *testing.T) {
	db := newTestDB(t)
	b, session := newBuilder[book](t, db, filters.AdvancedConverter{})
	ctx := context.Background()

	items, err := b.GetItemList(ctx, ListParams{
		Filters: filters.Dict{"author.name": "Bob", "pages >": 200},
		Joins:   []Join{JoinRelation("author")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Databases"}, titles(items))

	n, err := b.GetItemsCount(ctx, CountParams{
		Filters: filters.Dict{"author.name": "Ann"},
		Joins:   []Join{JoinModel((*author)(nil))},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err = b.GetItemList(ctx, ListParams{
		Filters: filters.Dict{"a.name": "Ann"},
		Joins:   []Join{JoinOn((*author)(nil), "a.id = b.author_id")},
		OrderBy: []string{"title"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Concurrency", "Go in Practice"}, titles(items))

	_, err = b.GetItemList(ctx, ListParams{Joins: []Join{JoinRelation("Reviews")}})
	assert.ErrorIs(t, err, ErrInvalidJoin)

	authors, err := New[author](session, BuilderConfig{})
	require.NoError(t, err)
	_, err = authors.GetItemsCount(ctx, CountParams{Joins: []Join{JoinRelation("Books")}})
	assert.ErrorIs(t, err, ErrInvalidJoin)
}

func TestDjangoLikeFilters(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.DjangoLikeConverter{})

	items, err := b.GetItemList(context.Background(), ListParams{
		Filters: filters.Dict{"title__icontains": "C", "pages__gte": 150},
		OrderBy: []string{"pages"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Concurrency", "Go in Practice"}, titles(items))
}

func TestGetItemList(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	all, err := b.GetItemList(ctx, ListParams{OrderBy: []string{"-pages"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Databases", "Go in Practice", "Concurrency", "Networking"}, titles(all))

	count, err := b.GetItemsCount(ctx, CountParams{})
	require.NoError(t, err)
	assert.Equal(t, len(all), count)

	count, err = b.GetItemsCount(ctx, CountParams{Search: "o", SearchBy: []string{"title"}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	first, err := b.GetItemList(ctx, ListParams{OrderBy: []string{"pages DESC"}, Limit: 2})
	require.NoError(t, err)
	rest, err := b.GetItemList(ctx, ListParams{OrderBy: []string{"pages DESC"}, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, titles(all), append(titles(first), titles(rest)...))

	found, err := b.GetItemList(ctx, ListParams{Search: "NET", SearchBy: []string{"title"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Networking"}, titles(found))

	empty, err := b.GetItemList(ctx, ListParams{Filters: filters.Dict{"title": "Missing"}})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = b.GetItemList(ctx, ListParams{OrderBy: []string{"rating"}})
	assert.ErrorIs(t, err, filters.ErrUnknownField)
}

func TestColumnMapping(t *testing.T) {
	db := newTestDB(t)
	session := database.NewSession(db)
	t.Cleanup(func() { _ = session.Close() })
	b, err := New[book](session, BuilderConfig{
		ColumnMapping: map[string]string{"name": "title", "length": "LENGTH(b.title)"},
	})
	require.NoError(t, err)

	items, err := b.GetItemList(context.Background(), ListParams{
		Filters: filters.Dict{"name": "Concurrency"},
		OrderBy: []string{"-length"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Concurrency"}, titles(items))
}

func TestCreateItem(t *testing.T) {
	db := newTestDB(t)
	b, session := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.CreateItem(ctx, Data{"title": "Testing", "pages": "150", "author_id": 2}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.ID)
	assert.Equal(t, 150, item.Pages)
	assert.False(t, session.InTransaction())

	n, err := db.NewSelect().Model((*book)(nil)).Where("title = ?", "Testing").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = b.CreateItem(ctx, Data{"color": "red"}, false)
	assert.ErrorIs(t, err, filters.ErrUnknownField)
	_, err = b.CreateItem(ctx, Data{"pages": "many"}, false)
	assert.Error(t, err)
}

func TestCreateItemWithFlushRollsBack(t *testing.T) {
	db := newTestDB(t)
	b, session := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.CreateItem(ctx, Data{"title": "Draft", "author_id": 1}, true)
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.True(t, session.Dirty())

	again, err := b.GetItem(ctx, filters.Dict{"title": "Draft"}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, again)

	require.NoError(t, session.Rollback(ctx))
	n, err := db.NewSelect().Model((*book)(nil)).Where("title = ?", "Draft").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDBUpdate(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	items, returned, err := b.DBUpdate(ctx, Data{"pages": 999}, filters.Dict{"id": 1}, false)
	require.NoError(t, err)
	if returned {
		require.Len(t, items, 1)
		assert.Equal(t, 999, items[0].Pages)
	}

	var pages []int
	require.NoError(t, db.NewSelect().Model((*book)(nil)).Column("pages").Order("id").Scan(ctx, &pages))
	assert.Equal(t, []int{999, 200, 450, 120}, pages)

	_, _, err = b.DBUpdate(ctx, Data{}, nil, false)
	assert.ErrorIs(t, err, ErrNoData)

	_, _, err = b.DBUpdate(ctx, Data{"archived": true}, nil, false)
	require.NoError(t, err)
	n, err := db.NewSelect().Model((*book)(nil)).Where("archived").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

type warnRecorder struct {
	database.NopLogger
	warnings []string
}

func (w *warnRecorder) Warn(msg string, _ ...interface{}) {
	w.warnings = append(w.warnings, msg)
}

func TestDBUpdateWarnsWithoutFilters(t *testing.T) {
	db := newTestDB(t)
	session := database.NewSession(db)
	t.Cleanup(func() { _ = session.Close() })
	logger := &warnRecorder{}
	b, err := New[book](session, BuilderConfig{Logger: logger})
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = b.DBUpdate(ctx, Data{"pages": 1}, filters.Dict{"id": 1}, false)
	require.NoError(t, err)
	assert.Empty(t, logger.warnings)

	for _, spec := range []any{nil, filters.Dict(nil), filters.Dict{}} {
		_, _, err = b.DBUpdate(ctx, Data{"pages": 2}, spec, false)
		require.NoError(t, err)
	}
	assert.Len(t, logger.warnings, 3)

	n, err := db.NewSelect().Model((*book)(nil)).Where("pages = ?", 2).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestChangeItem(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.GetItem(ctx, filters.Dict{"id": 2}, nil, nil)
	require.NoError(t, err)

	changed, item, err := b.ChangeItem(ctx, item, Data{"pages": 250}, NoneFieldPolicy{}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 250, item.Pages)

	changed, _, err = b.ChangeItem(ctx, item, Data{"pages": "250"}, NoneFieldPolicy{}, false)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, _, err = b.ChangeItem(ctx, item, Data{"deleted_at": nil}, NoneFieldPolicy{}, false)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = b.ChangeItem(ctx, item, Data{"title": nil}, NoneFieldPolicy{SetNone: true, Allowed: []string{"deleted_at"}}, false)
	var noneErr *NoneNotAllowedError
	require.ErrorAs(t, err, &noneErr)
	assert.Equal(t, "title", noneErr.Field)

	now := time.Now().UTC().Truncate(time.Second)
	changed, _, err = b.ChangeItem(ctx, item, Data{"deleted_at": now}, NoneFieldPolicy{}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _, err = b.ChangeItem(ctx, item, Data{"deleted_at": nil}, NoneFieldPolicy{SetNone: true, Allowed: []string{"deleted_at"}}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, item.DeletedAt)

	var stored book
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", 2).Scan(ctx))
	assert.Equal(t, 250, stored.Pages)
	assert.Nil(t, stored.DeletedAt)
}

func TestChangeItemFailedWriteKeepsInstance(t *testing.T) {
	db := newTestDB(t)
	b, session := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()

	item, err := b.GetItem(ctx, filters.Dict{"id": 1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, session.Close())

	changed, _, err := b.ChangeItem(ctx, item, Data{"title": "Renamed", "pages": 310}, NoneFieldPolicy{}, false)
	assert.ErrorIs(t, err, database.ErrSessionClosed)
	assert.False(t, changed)
	assert.Equal(t, "Go in Practice", item.Title)
	assert.Equal(t, 300, item.Pages)

	retry, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	changed, _, err = retry.ChangeItem(ctx, item, Data{"title": "Renamed", "pages": 310}, NoneFieldPolicy{}, false)
	require.NoError(t, err)
	assert.True(t, changed)

	var stored book
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", 1).Scan(ctx))
	assert.Equal(t, "Renamed", stored.Title)
	assert.Equal(t, 310, stored.Pages)
}

func TestDisableItemsFlag(t *testing.T) {
	db := newTestDB(t)
	b, _ := newBuilder[book](t, db, filters.SimpleConverter{})
	ctx := context.Background()
	params := DisableParams{
		IDField:       "id",
		DisableField:  "archived",
		Mode:          DisableFlag,
		IDs:           []any{1, 2},
		FilterByValue: true,
	}

	n, err := b.DisableItems(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.DisableItems(ctx, params)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = b.DisableItems(ctx, DisableParams{IDField: "id", DisableField: "archived", Mode: DisableFlag})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = b.DisableItems(ctx, DisableParams{IDField: "uuid", DisableField: "archived", IDs: []any{1}})
	assert.ErrorIs(t, err, filters.ErrUnknownField)
}

func TestDisableItemsTimestamp(t *testing.T) {
	db := newTestDB(t)
	session := database.NewSession(db)
	t.Cleanup(func() { _ = session.Close() })
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b, err := New[book](session, BuilderConfig{Now: func() time.Time { return stamp }})
	require.NoError(t, err)
	ctx := context.Background()

	params := DisableParams{
		IDField:      "id",
		DisableField: "deleted_at",
		IDs:          []any{3, 4},
		ExtraFilters: filters.Dict{"author_id": 2},
	}
	n, err := b.DisableItems(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.DisableItems(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	params.FilterByValue = true
	n, err = b.DisableItems(ctx, params)
	require.NoError(t, err)
	assert.Zero(t, n)

	var stored book
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", 3).Scan(ctx))
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, stamp.Equal(*stored.DeletedAt))
}

func TestParseOrder(t *testing.T) {
	cases := map[string][2]string{
		"-pages":      {"pages", "DESC"},
		"pages desc":  {"pages", "DESC"},
		"pages ASC":   {"pages", "ASC"},
		"+title":      {"title", "ASC"},
		"  ":          {"", ""},
		"author.name": {"author.name", "ASC"},
	}
	for in, want := range cases {
		name, dir := parseOrder(in)
		assert.Equal(t, want[0], name, in)
		assert.Equal(t, want[1], dir, in)
	}
}

func TestConvertValue(t *testing.T) {
	v, err := convertValue("42", reflectTypeOf[int]())
	require.NoError(t, err)
	assert.Equal(t, 42, v.Interface())

	v, err = convertValue("2024-05-01T12:00:00Z", reflectTypeOf[*time.Time]())
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Equal(*v.Interface().(*time.Time)))

	v, err = convertValue(nil, reflectTypeOf[string]())
	require.NoError(t, err)
	assert.Equal(t, "", v.Interface())

	_, err = convertValue("soon", reflectTypeOf[time.Time]())
	assert.Error(t, err)
}

func reflectTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
