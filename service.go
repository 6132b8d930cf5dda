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

package sqlrepo

import (
	"context"

	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/query"
	"github.com/tomoncle/sqlrepo/repository"
	"github.com/tomoncle/sqlrepo/types"
	"github.com/uptrace/bun"
)

// Service runs every repository operation in its own unit of work on a
// database, committing on success.
type Service[T any] interface {
	// Get returns the single matching entity, or nil.
	Get(ctx context.Context, opts repository.GetOptions) (*T, error)

	// Count counts the matching entities.
	Count(ctx context.Context, opts repository.CountOptions) (int, error)

	// List returns the matching entities.
	List(ctx context.Context, opts repository.ListOptions) ([]*T, error)

	// Page returns one page of the matching entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Create inserts a new entity.
	Create(ctx context.Context, data query.Data) (*T, error)

	// Update applies data to the matching entities.
	Update(ctx context.Context, data query.Data, filters any) ([]*T, bool, error)

	// UpdateInstance applies data to one entity.
	UpdateInstance(ctx context.Context, instance *T, data query.Data) (bool, *T, error)

	// Disable soft-deletes the entities with the given ids.
	Disable(ctx context.Context, ids []any, extraFilters any) (int, error)
}

type baseServiceImpl[T any] struct {
	def *repository.Definition[T]
	db  func() *bun.DB
}

// NewService returns a Service over the global database.
func NewService[T any](def *repository.Definition[T]) Service[T] {
	return &baseServiceImpl[T]{def: def, db: database.GetDB}
}

// NewServiceWithDB returns a Service over db.
func NewServiceWithDB[T any](def *repository.Definition[T], db *bun.DB) Service[T] {
	return &baseServiceImpl[T]{def: def, db: func() *bun.DB { return db }}
}

func (s *baseServiceImpl[T]) run(ctx context.Context, fn func(ctx context.Context, repo *repository.Repository[T]) error) error {
	db := s.db()
	if db == nil {
		return ErrNotInitialized
	}
	return UnitOfWorkWithDB(ctx, db, func(ctx context.Context, session *database.Session) error {
		repo, err := s.def.New(session)
		if err != nil {
			return err
		}
		return fn(ctx, repo)
	})
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, opts repository.GetOptions) (item *T, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		item, err = repo.Get(ctx, opts)
		return err
	})
	return item, err
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, opts repository.CountOptions) (n int, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		n, err = repo.Count(ctx, opts)
		return err
	})
	return n, err
}

func (s *baseServiceImpl[T]) List(ctx context.Context, opts repository.ListOptions) (items []*T, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		items, err = repo.List(ctx, opts)
		return err
	})
	return items, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (p *types.Pagination[T], err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		p, err = repo.Paginate(ctx, page)
		return err
	})
	return p, err
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, data query.Data) (item *T, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		item, err = repo.CreateInstance(ctx, data)
		return err
	})
	return item, err
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, data query.Data, filters any) (items []*T, returned bool, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		items, returned, err = repo.Update(ctx, data, filters)
		return err
	})
	return items, returned, err
}

func (s *baseServiceImpl[T]) UpdateInstance(ctx context.Context, instance *T, data query.Data) (changed bool, item *T, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		changed, item, err = repo.UpdateInstance(ctx, instance, data)
		return err
	})
	return changed, item, err
}

func (s *baseServiceImpl[T]) Disable(ctx context.Context, ids []any, extraFilters any) (n int, err error) {
	err = s.run(ctx, func(ctx context.Context, repo *repository.Repository[T]) error {
		n, err = repo.Disable(ctx, ids, extraFilters)
		return err
	})
	return n, err
}
