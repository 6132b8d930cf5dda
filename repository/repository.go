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
	"time"

	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/query"
	"github.com/tomoncle/sqlrepo/types"
)

type options struct {
	logger database.Logger
	now    func() time.Time
	ctx    context.Context
}

type Option func(*options)

// WithLogger replaces the logger of a Repository. SyncRepository ignores it.
func WithLogger(logger database.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used to stamp disabled records.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBaseContext sets the context SyncRepository runs its operations with.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// Repository runs the operations of a Definition inside one session. The
// session is borrowed: the repository never commits it unless UseFlush is
// off, and never closes it.
type Repository[T any] struct {
	def     *Definition[T]
	session query.Session
	logger  database.Logger
	builder *query.Builder[T]
}

var (
	_ CrudRepository[struct{}]      = (*Repository[struct{}])(nil)
	_ PageQueryRepository[struct{}] = (*Repository[struct{}])(nil)
)

// New creates a repository working in session.
func (d *Definition[T]) New(session query.Session, opts ...Option) (*Repository[T], error) {
	o := options{logger: database.GetLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return d.newRepository(session, o)
}

func (d *Definition[T]) newRepository(session query.Session, o options) (*Repository[T], error) {
	builder, err := query.New[T](session, query.BuilderConfig{
		Converter:     d.converter,
		ColumnMapping: d.config.SpecificColumnMapping,
		LoadStrategy:  d.config.LoadStrategy,
		Logger:        o.logger,
		Now:           o.now,
	})
	if err != nil {
		return nil, err
	}
	return &Repository[T]{def: d, session: session, logger: o.logger, builder: builder}, nil
}

// Definition returns the definition the repository was created from.
func (r *Repository[T]) Definition() *Definition[T] { return r.def }

// Get returns the matching entity or nil when there is none.
func (r *Repository[T]) Get(ctx context.Context, opts GetOptions) (*T, error) {
	return r.builder.GetItem(ctx, opts.Filters, opts.Joins, opts.Loads)
}

// Count returns how many entities match opts.Filters.
func (r *Repository[T]) Count(ctx context.Context, opts CountOptions) (int, error) {
	return r.builder.GetItemsCount(ctx, query.CountParams{Filters: opts.Filters, Joins: opts.Joins})
}

// List returns the matching entities. Repeated primary keys are dropped when
// UniqueListItems is set.
func (r *Repository[T]) List(ctx context.Context, opts ListOptions) ([]*T, error) {
	return r.builder.GetItemList(ctx, query.ListParams{
		Filters:  opts.Filters,
		Joins:    opts.Joins,
		Loads:    opts.Loads,
		Search:   opts.Search,
		SearchBy: opts.SearchBy,
		OrderBy:  opts.OrderBy,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
		Unique:   r.def.config.UniqueListItems,
	})
}

// CreateInstance inserts an entity built from data. nil data creates one
// with default values only.
func (r *Repository[T]) CreateInstance(ctx context.Context, data query.Data) (*T, error) {
	item, err := r.builder.CreateItem(ctx, data, r.def.config.UseFlush)
	if err != nil {
		r.logger.Error("Create failed", "model", r.def.ModelName(), "error", err)
		return nil, err
	}
	return item, nil
}

// Update applies data to every matching entity, or to all of them when
// filters selects nothing, which is logged as a warning. The boolean is false when the database cannot return the
// updated rows.
func (r *Repository[T]) Update(ctx context.Context, data query.Data, filters any) ([]*T, bool, error) {
	return r.builder.DBUpdate(ctx, data, filters, r.def.config.UseFlush)
}

// UpdateInstance writes the fields of data that differ from instance and
// reports whether any did.
func (r *Repository[T]) UpdateInstance(ctx context.Context, instance *T, data query.Data) (bool, *T, error) {
	cfg := r.def.config
	return r.builder.ChangeItem(ctx, instance, data, query.NoneFieldPolicy{
		SetNone: cfg.UpdateSetNone,
		Allowed: cfg.UpdateAllowedNoneFields,
	}, cfg.UseFlush)
}

// Disable marks the entities with the given ids disabled and returns how
// many rows changed. IDField and DisableField must be configured.
func (r *Repository[T]) Disable(ctx context.Context, ids []any, extraFilters any) (int, error) {
	cfg := r.def.config
	if cfg.IDField == "" {
		return 0, configErrorf(r.def.ModelName(), "IDField", "must be set to disable items")
	}
	if cfg.DisableField == "" {
		return 0, configErrorf(r.def.ModelName(), "DisableField", "must be set to disable items")
	}
	r.logger.Debug("Disabling items", "model", r.def.ModelName(), "ids", len(ids))
	return r.builder.DisableItems(ctx, query.DisableParams{
		IDField:       cfg.IDField,
		DisableField:  cfg.DisableField,
		Mode:          cfg.DisableFieldType.mode(),
		IDs:           ids,
		FilterByValue: cfg.AllowDisableFilterByValue,
		ExtraFilters:  extraFilters,
		UseFlush:      cfg.UseFlush,
	})
}

// Paginate counts the matching entities and lists one page of them.
func (r *Repository[T]) Paginate(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	search, searchBy := page.GetSearch()
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := r.builder.GetItemsCount(ctx, query.CountParams{
		Filters:  page.GetFilters(),
		Search:   search,
		SearchBy: searchBy,
	})
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := r.List(ctx, ListOptions{
		Filters:  page.GetFilters(),
		Search:   search,
		SearchBy: searchBy,
		OrderBy:  page.GetOrders(),
		Limit:    page.GetPageSize(),
		Offset:   page.GetOffset(),
	})
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
