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
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/logbie/types"
)

// ErrNotFound is returned by Find when no row has the given id.
var ErrNotFound = errors.New("repository: entity not found")

// Reader loads entities.
type Reader[T any] interface {
	Find(ctx context.Context, id any) (*T, error)

	All(ctx context.Context) ([]*T, error)

	Where(ctx context.Context, filter *types.Filter) ([]*T, error)

	Count(ctx context.Context, filter *types.Filter) (int, error)

	Page(ctx context.Context, req *types.PageRequest) (*types.Page[T], error)
}

// Writer persists entities.
type Writer[T any] interface {
	Insert(ctx context.Context, entity ...*T) error

	// Upsert inserts entities, updating fields when a row with the same
	// conflict keys (default "id") exists.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error

	Save(ctx context.Context, entity *T) error

	Remove(ctx context.Context, id any) error
}

// Repository combines Reader and Writer with transaction scoping and
// access to bun query builders for anything more involved.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
	// Transaction runs fn inside the ORM's (possibly nested) transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
