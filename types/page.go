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
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// Filter is a WHERE expression with ? placeholders and its arguments.
type Filter struct {
	Expr string
	Args []interface{}
}

func NewFilter(expr string, args ...interface{}) *Filter {
	return &Filter{Expr: expr, Args: args}
}

// PageRequest asks for one page of rows. Page is 1-based.
type PageRequest struct {
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Filter   *Filter  `json:"-"`
	Orders   []string `json:"orders,omitempty"` // "id ASC", "name DESC"
}

func NewPageRequest(page, pageSize int) *PageRequest {
	return &PageRequest{Page: page, PageSize: pageSize}
}

func (p *PageRequest) Where(expr string, args ...interface{}) *PageRequest {
	p.Filter = NewFilter(expr, args...)
	return p
}

func (p *PageRequest) OrderBy(orders ...string) *PageRequest {
	p.Orders = append(p.Orders, orders...)
	return p
}

// Number is the page number, at least 1.
func (p *PageRequest) Number() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// Size is the page size clamped to [1, MaxPageSize], DefaultPageSize when unset.
func (p *PageRequest) Size() int {
	switch {
	case p.PageSize < 1:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

func (p *PageRequest) Offset() int {
	return (p.Number() - 1) * p.Size()
}

// Page is one page of results.
type Page[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Pages    int  `json:"pages"`
	Items    []*T `json:"items"`
}

func NewPage[T any](req *PageRequest, total int, items []*T) *Page[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	size := req.Size()
	return &Page[T]{
		Page:     req.Number(),
		PageSize: size,
		Total:    total,
		Pages:    (total + size - 1) / size,
		Items:    items,
	}
}

func (p *Page[T]) HasNext() bool { return p.Page < p.Pages }
