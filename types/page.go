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

package types

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// PageRequest describes a page of a filtered, searched and ordered listing.
// Filters accepts any filter specification understood by the repository's
// filter converter.
type PageRequest struct {
	page     int
	pageSize int
	filters  any
	orders   []string // "id", "-created_at", "name DESC"
	search   string
	searchBy []string
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilters() any {
	return p.filters
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

func (p *PageRequest) GetSearch() (string, []string) {
	return p.search, p.searchBy
}

// WithSearch sets a text search applied across the given fields.
func (p *PageRequest) WithSearch(search string, fields ...string) *PageRequest {
	p.search = search
	p.searchBy = fields
	return p
}

// NewPageRequest constructs a PageRequest with filters and order settings.
func NewPageRequest(page int, pageSize int, filters any, orders []string) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize, filters: filters, orders: orders}
}

// NewPageRequestWithFilters constructs a PageRequest with filters only.
func NewPageRequestWithFilters(page int, pageSize int, filters any) *PageRequest {
	return NewPageRequest(page, pageSize, filters, nil)
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filters or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, nil)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Items    []*T `json:"items"`
}

// Pages returns the number of pages needed to hold Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// HasNext reports whether a page follows the current one.
func (p *Pagination[T]) HasNext() bool {
	return p.Page < p.Pages()
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{Page: page, PageSize: pageSize, Items: make([]*T, 0)}
}
