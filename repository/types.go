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

	"github.com/tomoncle/sqlrepo/query"
	"github.com/tomoncle/sqlrepo/types"
)

// GetOptions select a single entity.
type GetOptions struct {
	Filters any
	Joins   []query.Join
	Loads   []query.Load
}

// CountOptions select the entities to count.
type CountOptions struct {
	Joins   []query.Join
	Filters any
}

// ListOptions select, order and page a listing. Zero Limit and Offset mean
// no limit and no offset.
type ListOptions struct {
	Joins    []query.Join
	Loads    []query.Load
	Filters  any
	Search   string
	SearchBy []string
	OrderBy  []string // "name", "-name", "name DESC"
	Limit    int
	Offset   int
}

// CrudRepository is the context-aware operation set of a repository.
type CrudRepository[T any] interface {
	Get(ctx context.Context, opts GetOptions) (*T, error)

	Count(ctx context.Context, opts CountOptions) (int, error)

	List(ctx context.Context, opts ListOptions) ([]*T, error)

	CreateInstance(ctx context.Context, data query.Data) (*T, error)

	Update(ctx context.Context, data query.Data, filters any) ([]*T, bool, error)

	UpdateInstance(ctx context.Context, instance *T, data query.Data) (bool, *T, error)

	Disable(ctx context.Context, ids []any, extraFilters any) (int, error)
}

// PageQueryRepository pages through filtered listings.
type PageQueryRepository[T any] interface {
	Paginate(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// BlockingRepository is CrudRepository without context arguments.
type BlockingRepository[T any] interface {
	Get(opts GetOptions) (*T, error)
	Count(opts CountOptions) (int, error)
	List(opts ListOptions) ([]*T, error)
	CreateInstance(data query.Data) (*T, error)
	Update(data query.Data, filters any) ([]*T, bool, error)
	UpdateInstance(instance *T, data query.Data) (bool, *T, error)
	Disable(ids []any, extraFilters any) (int, error)
	Paginate(page *types.PageRequest) (*types.Pagination[T], error)
}
