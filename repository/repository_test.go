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

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/filters"
	"github.com/tomoncle/sqlrepo/query"
	"github.com/tomoncle/sqlrepo/types"
	"github.com/uptrace/bun"
)

type Widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID         int64      `bun:"id,pk,autoincrement"`
	Name       string     `bun:"name,notnull"`
	Archived   bool       `bun:"archived"`
	DisabledAt *time.Time `bun:"disabled_at"`
}

type plainWidget struct {
	ID int64
}

var widgetConfig = DefaultConfig().With(func(c *Config) {
	c.IDField = "id"
	c.DisableField = "disabled_at"
	c.SkipRegistration = true
})

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	manager := database.NewDatabaseManager(&database.ConnectionConfig{
		Type:         database.TypeSQLite,
		DBName:       filepath.Join(t.TempDir(), "repository"),
		MaxOpenConns: 1,
	})
	manager.SetLogger(database.NopLogger{})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	ctx := context.Background()
	db := manager.GetDB()
	_, err := db.NewCreateTable().Model((*Widget)(nil)).Exec(ctx)
	require.NoError(t, err)
	widgets := []*Widget{{Name: "alpha"}, {Name: "beta"}, {Name: "gamma"}}
	_, err = db.NewInsert().Model(&widgets).Exec(ctx)
	require.NoError(t, err)
	return db
}

func newSession(t *testing.T, db *bun.DB) *database.Session {
	t.Helper()
	session := database.NewSession(db, database.WithSessionLogger(database.NopLogger{}))
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func newWidgetRepo(t *testing.T, session *database.Session, cfg Config) *Repository[Widget] {
	t.Helper()
	def, err := Define[Widget](cfg)
	require.NoError(t, err)
	repo, err := def.New(session, WithLogger(database.NopLogger{}))
	require.NoError(t, err)
	return repo
}

func TestDefine(t *testing.T) {
	def, err := Define[Widget](widgetConfig)
	require.NoError(t, err)
	assert.Equal(t, "Widget", def.ModelName())
	assert.Equal(t, "repository.Widget", def.EntityType().String())
	assert.Equal(t, filters.SimpleConverter{}, def.FilterConverter())

	cfg := def.Config()
	cfg.SpecificColumnMapping = map[string]string{"x": "y"}
	assert.Nil(t, def.Config().SpecificColumnMapping)
}

func TestDefineFailsFast(t *testing.T) {
	cases := map[string]func() error{
		"interface": func() error { _, err := Define[any](DefaultConfig()); return err },
		"not a struct": func() error {
			_, err := Define[int](DefaultConfig())
			return err
		},
		"no base model": func() error {
			_, err := Define[plainWidget](DefaultConfig())
			return err
		},
		"missing id field": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.IDField = "uuid" }))
			return err
		},
		"missing disable field": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.DisableField = "deleted_at" }))
			return err
		},
		"wrong disable type": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.DisableField = "name" }))
			return err
		},
		"boolean on timestamp": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.DisableFieldType = DisableBoolean }))
			return err
		},
		"unknown strategy": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.FilterConvertStrategy = filters.Strategy(9) }))
			return err
		},
		"invalid disable type": func() error {
			_, err := Define[Widget](widgetConfig.With(func(c *Config) { c.DisableFieldType = DisableFieldType(5) }))
			return err
		},
	}
	for name, define := range cases {
		t.Run(name, func(t *testing.T) {
			err := define()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	assert.Panics(t, func() { MustDefine[plainWidget](DefaultConfig()) })
	assert.NotPanics(t, func() {
		MustDefine[Widget](widgetConfig.With(func(c *Config) {
			c.DisableField = "archived"
			c.DisableFieldType = DisableBoolean
		}))
	})
}

func TestDefineAggregatesErrors(t *testing.T) {
	_, err := Define[Widget](widgetConfig.With(func(c *Config) {
		c.IDField = "uuid"
		c.DisableField = "deleted_at"
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `id field "uuid"`)
	assert.Contains(t, err.Error(), `disable field "deleted_at"`)
}

func TestDefineRegistersModel(t *testing.T) {
	type registered struct {
		bun.BaseModel `bun:"table:registered_widgets"`
		ID            int64 `bun:"id,pk,autoincrement"`
	}
	_, err := Define[registered](DefaultConfig())
	require.NoError(t, err)

	found := false
	for _, instance := range database.RegisteredModelInstances() {
		if _, ok := instance.(*registered); ok {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFilterConverterFollowsStrategy(t *testing.T) {
	for _, s := range filters.Strategies {
		cfg := widgetConfig.With(func(c *Config) { c.FilterConvertStrategy = s })
		first := MustDefine[Widget](cfg)
		second := MustDefine[Widget](cfg)
		want, err := filters.ConverterFor(s)
		require.NoError(t, err)
		assert.Equal(t, want, first.FilterConverter())
		assert.Equal(t, first.FilterConverter(), second.FilterConverter())
	}
}

func TestConfigWithLeavesBaseUntouched(t *testing.T) {
	base := DefaultConfig().With(func(c *Config) {
		c.UpdateAllowedNoneFields = []string{"name"}
	})
	derived := base.With(func(c *Config) {
		c.UpdateAllowedNoneFields[0] = "disabled_at"
		c.UseFlush = true
	})
	assert.Equal(t, []string{"name"}, base.UpdateAllowedNoneFields)
	assert.False(t, base.UseFlush)
	assert.True(t, derived.UseFlush)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
use_flush: true
disable_field_type: boolean
filter_convert_strategy: django-like
id_field: id
disable_field: archived
`))
	require.NoError(t, err)
	assert.True(t, cfg.UseFlush)
	assert.True(t, cfg.AllowDisableFilterByValue)
	assert.Equal(t, DisableBoolean, cfg.DisableFieldType)
	assert.Equal(t, filters.DjangoLike, cfg.FilterConvertStrategy)
	assert.Equal(t, "archived", cfg.DisableField)

	_, err = ParseConfig([]byte("disable_field_type: soft"))
	assert.Error(t, err)
}

func TestDisableWidgets(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	n, err := repo.Disable(ctx, []any{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Disable(ctx, []any{1, 2}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	var widgets []*Widget
	require.NoError(t, db.NewSelect().Model(&widgets).Order("id").Scan(ctx))
	require.Len(t, widgets, 3)
	assert.NotNil(t, widgets[0].DisabledAt)
	assert.NotNil(t, widgets[1].DisabledAt)
	assert.Nil(t, widgets[2].DisabledAt)
}

func TestDisableRestampsWithoutValueFilter(t *testing.T) {
	db := newTestDB(t)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	def := MustDefine[Widget](widgetConfig.With(func(c *Config) { c.AllowDisableFilterByValue = false }))
	repo, err := def.New(newSession(t, db), WithLogger(database.NopLogger{}), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	ctx := context.Background()

	n, err := repo.Disable(ctx, []any{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock = clock.Add(time.Hour)
	n, err = repo.Disable(ctx, []any{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var w Widget
	require.NoError(t, db.NewSelect().Model(&w).Where("id = ?", 1).Scan(ctx))
	require.NotNil(t, w.DisabledAt)
	assert.True(t, clock.Equal(*w.DisabledAt))
}

func TestDisableBoolean(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig.With(func(c *Config) {
		c.DisableField = "archived"
		c.DisableFieldType = DisableBoolean
	}))
	ctx := context.Background()

	n, err := repo.Disable(ctx, []any{2, 3}, map[string]any{"name": "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Disable(ctx, []any{2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Disable(ctx, []any{2, 3}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDisableRequiresFields(t *testing.T) {
	db := newTestDB(t)
	session := newSession(t, db)
	ctx := context.Background()

	repo := newWidgetRepo(t, session, widgetConfig.With(func(c *Config) { c.IDField = "" }))
	_, err := repo.Disable(ctx, []any{1}, nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "IDField", cfgErr.Field)
	assert.False(t, session.InTransaction())

	repo = newWidgetRepo(t, session, widgetConfig.With(func(c *Config) { c.DisableField = "" }))
	_, err = repo.Disable(ctx, []any{1}, nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "DisableField", cfgErr.Field)

	n, err := newWidgetRepo(t, session, widgetConfig).Disable(ctx, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateInstanceWithFlush(t *testing.T) {
	db := newTestDB(t)
	session := newSession(t, db)
	repo := newWidgetRepo(t, session, widgetConfig.With(func(c *Config) { c.UseFlush = true }))
	ctx := context.Background()

	w, err := repo.CreateInstance(ctx, query.Data{"name": "foo"})
	require.NoError(t, err)
	assert.NotZero(t, w.ID)
	assert.Equal(t, "foo", w.Name)
	assert.True(t, session.InTransaction())

	got, err := repo.Get(ctx, GetOptions{Filters: map[string]any{"name": "foo"}})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.ID, got.ID)

	require.NoError(t, session.Rollback(ctx))
	n, err := db.NewSelect().Model((*Widget)(nil)).Where("name = ?", "foo").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateInstanceCommits(t *testing.T) {
	db := newTestDB(t)
	session := newSession(t, db)
	repo := newWidgetRepo(t, session, widgetConfig)
	ctx := context.Background()

	w, err := repo.CreateInstance(ctx, query.Data{"name": "delta"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.ID)
	assert.False(t, session.InTransaction())

	n, err := db.NewSelect().Model((*Widget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = repo.CreateInstance(ctx, query.Data{"name": "delta", "colour": "red"})
	assert.ErrorIs(t, err, filters.ErrUnknownField)
}

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	items, returned, err := repo.Update(ctx, query.Data{"name": "bar"}, map[string]any{"id": 1})
	require.NoError(t, err)
	if returned {
		require.Len(t, items, 1)
		assert.Equal(t, "bar", items[0].Name)
	} else {
		assert.Nil(t, items)
	}

	got, err := repo.Get(ctx, GetOptions{Filters: map[string]any{"id": 1}})
	require.NoError(t, err)
	assert.Equal(t, "bar", got.Name)

	names, err := repo.List(ctx, ListOptions{OrderBy: []string{"id"}})
	require.NoError(t, err)
	require.Len(t, names, 3)
	assert.Equal(t, "beta", names[1].Name)
	assert.Equal(t, "gamma", names[2].Name)

	_, _, err = repo.Update(ctx, nil, nil)
	assert.ErrorIs(t, err, query.ErrNoData)
}

func TestUpdateInstanceIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	w, err := repo.Get(ctx, GetOptions{Filters: map[string]any{"id": 3}})
	require.NoError(t, err)

	changed, w, err := repo.UpdateInstance(ctx, w, query.Data{"name": "omega"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, w, err = repo.UpdateInstance(ctx, w, query.Data{"name": "omega"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "omega", w.Name)
}

func TestUpdateInstanceNonePolicy(t *testing.T) {
	db := newTestDB(t)
	session := newSession(t, db)
	ctx := context.Background()
	stamp := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	ignoring := newWidgetRepo(t, session, widgetConfig)
	w, err := ignoring.Get(ctx, GetOptions{Filters: map[string]any{"id": 1}})
	require.NoError(t, err)
	changed, w, err := ignoring.UpdateInstance(ctx, w, query.Data{"disabled_at": stamp})
	require.NoError(t, err)
	require.True(t, changed)

	changed, w, err = ignoring.UpdateInstance(ctx, w, query.Data{"disabled_at": nil})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NotNil(t, w.DisabledAt)

	limited := newWidgetRepo(t, session, widgetConfig.With(func(c *Config) {
		c.UpdateSetNone = true
		c.UpdateAllowedNoneFields = []string{"disabled_at"}
	}))
	_, _, err = limited.UpdateInstance(ctx, w, query.Data{"name": nil})
	var noneErr *query.NoneNotAllowedError
	require.ErrorAs(t, err, &noneErr)

	changed, w, err = limited.UpdateInstance(ctx, w, query.Data{"disabled_at": nil})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, w.DisabledAt)

	wildcard := newWidgetRepo(t, session, widgetConfig.With(func(c *Config) {
		c.UpdateSetNone = true
		c.UpdateAllowedNoneFields = []string{"*"}
	}))
	changed, _, err = wildcard.UpdateInstance(ctx, w, query.Data{"disabled_at": nil})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCountMatchesList(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	for _, f := range []any{nil, map[string]any{"name": "beta"}, map[string]any{"name": []string{"alpha", "gamma"}}} {
		n, err := repo.Count(ctx, CountOptions{Filters: f})
		require.NoError(t, err)
		items, err := repo.List(ctx, ListOptions{Filters: f})
		require.NoError(t, err)
		assert.Equal(t, n, len(items))
	}
}

func TestListPartitions(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	all, err := repo.List(ctx, ListOptions{OrderBy: []string{"-id"}})
	require.NoError(t, err)
	head, err := repo.List(ctx, ListOptions{OrderBy: []string{"-id"}, Limit: 1})
	require.NoError(t, err)
	tail, err := repo.List(ctx, ListOptions{OrderBy: []string{"-id"}, Limit: 2, Offset: 1})
	require.NoError(t, err)

	require.Len(t, head, 1)
	assert.Equal(t, all, append(head, tail...))
}

func TestPaginate(t *testing.T) {
	db := newTestDB(t)
	repo := newWidgetRepo(t, newSession(t, db), widgetConfig)
	ctx := context.Background()

	page, err := repo.Paginate(ctx, types.NewPageRequestWithOrders(2, 2, []string{"name"}))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages())
	assert.False(t, page.HasNext())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "gamma", page.Items[0].Name)

	page, err = repo.Paginate(ctx, types.NewDefaultPageRequest(1, 10).WithSearch("MM", "name"))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = repo.Paginate(ctx, types.NewPageRequestWithFilters(1, 10, map[string]any{"name": "none"}))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}

func TestSyncRepository(t *testing.T) {
	db := newTestDB(t)
	session := newSession(t, db)
	def := MustDefine[Widget](widgetConfig.With(func(c *Config) {
		c.FilterConvertStrategy = filters.Advanced
	}))
	repo, err := def.NewSync(session)
	require.NoError(t, err)
	assert.Same(t, def, repo.Definition())

	items, err := repo.List(ListOptions{Filters: map[string]any{"id >": 1}, OrderBy: []string{"id"}})
	require.NoError(t, err)
	require.Len(t, items, 2)

	n, err := repo.Count(CountOptions{Filters: map[string]any{"name like": "%a"}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	w, err := repo.CreateInstance(query.Data{"name": "sync"})
	require.NoError(t, err)
	changed, _, err := repo.UpdateInstance(w, query.Data{"name": "synced"})
	require.NoError(t, err)
	assert.True(t, changed)

	n, err = repo.Disable([]any{w.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.Get(GetOptions{Filters: map[string]any{"name": "synced"}})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.DisabledAt)

	_, _, err = repo.Update(query.Data{"name": "x"}, map[string]any{"id in": []int{-1}})
	require.NoError(t, err)

	page, err := repo.Paginate(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	blocked, err := def.NewSync(newSession(t, db), WithBaseContext(cancelled))
	require.NoError(t, err)
	_, err = blocked.Count(CountOptions{})
	assert.Error(t, err)
}

func TestDisableFieldTypeEnum(t *testing.T) {
	assert.Equal(t, "timestamp", DisableTimestamp.Name())
	assert.Equal(t, 1, DisableBoolean.Number())
	assert.False(t, DisableFieldType(7).IsValid())
	assert.Equal(t, types.IllegalName, DisableFieldType(7).String())
	assert.Equal(t, query.DisableFlag, DisableBoolean.mode())
}
