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

// SyncRepository is the blocking form of Repository. Every call runs with
// the base context and returns when the database has answered. It does not
// log.
type SyncRepository[T any] struct {
	ctx  context.Context
	repo *Repository[T]
}

var _ BlockingRepository[struct{}] = (*SyncRepository[struct{}])(nil)

// NewSync creates a blocking repository working in session.
func (d *Definition[T]) NewSync(session query.Session, opts ...Option) (*SyncRepository[T], error) {
	o := options{now: time.Now, ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = database.NopLogger{}
	repo, err := d.newRepository(session, o)
	if err != nil {
		return nil, err
	}
	return &SyncRepository[T]{ctx: o.ctx, repo: repo}, nil
}

// Definition returns the definition the repository was created from.
func (s *SyncRepository[T]) Definition() *Definition[T] { return s.repo.def }

// Get is Repository.Get.
func (s *SyncRepository[T]) Get(opts GetOptions) (*T, error) {
	return s.repo.Get(s.ctx, opts)
}

// Count is Repository.Count.
func (s *SyncRepository[T]) Count(opts CountOptions) (int, error) {
	return s.repo.Count(s.ctx, opts)
}

// List is Repository.List.
func (s *SyncRepository[T]) List(opts ListOptions) ([]*T, error) {
	return s.repo.List(s.ctx, opts)
}

// CreateInstance is Repository.CreateInstance.
func (s *SyncRepository[T]) CreateInstance(data query.Data) (*T, error) {
	return s.repo.CreateInstance(s.ctx, data)
}

// Update is Repository.Update.
func (s *SyncRepository[T]) Update(data query.Data, filters any) ([]*T, bool, error) {
	return s.repo.Update(s.ctx, data, filters)
}

// UpdateInstance is Repository.UpdateInstance.
func (s *SyncRepository[T]) UpdateInstance(instance *T, data query.Data) (bool, *T, error) {
	return s.repo.UpdateInstance(s.ctx, instance, data)
}

// Disable is Repository.Disable.
func (s *SyncRepository[T]) Disable(ids []any, extraFilters any) (int, error) {
	return s.repo.Disable(s.ctx, ids, extraFilters)
}

// Paginate is Repository.Paginate.
func (s *SyncRepository[T]) Paginate(page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Paginate(s.ctx, page)
}
