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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/logbie/database"
	"github.com/tomoncle/logbie/types"
)

type baseRepository[T any] struct {
	orm *database.ORM
}

// New returns a repository for T on orm. Every call resolves the ORM's
// current scope, so work done while the ORM is inside a transaction is
// part of that transaction.
func New[T any](orm *database.ORM) Repository[T] {
	return &baseRepository[T]{orm: orm}
}

func (r *baseRepository[T]) db() bun.IDB { return r.orm.IDB() }

func (r *baseRepository[T]) Dialect() schema.Dialect { return r.db().Dialect() }

func (r *baseRepository[T]) NewSelect() *bun.SelectQuery { return r.db().NewSelect() }

func (r *baseRepository[T]) NewInsert() *bun.InsertQuery { return r.db().NewInsert() }

func (r *baseRepository[T]) NewUpdate() *bun.UpdateQuery { return r.db().NewUpdate() }

func (r *baseRepository[T]) NewDelete() *bun.DeleteQuery { return r.db().NewDelete() }

func (r *baseRepository[T]) Find(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.db().NewSelect().Model(entity).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %v", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepository[T]) All(ctx context.Context) ([]*T, error) {
	return r.Where(ctx, nil)
}

func (r *baseRepository[T]) Where(ctx context.Context, filter *types.Filter) ([]*T, error) {
	var entities []*T
	q := r.db().NewSelect().Model(&entities)
	if filter != nil {
		q = q.Where(filter.Expr, filter.Args...)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepository[T]) Count(ctx context.Context, filter *types.Filter) (int, error) {
	q := r.db().NewSelect().Model((*T)(nil))
	if filter != nil {
		q = q.Where(filter.Expr, filter.Args...)
	}
	return q.Count(ctx)
}

func (r *baseRepository[T]) Page(ctx context.Context, req *types.PageRequest) (*types.Page[T], error) {
	if req == nil {
		req = types.NewPageRequest(1, types.DefaultPageSize)
	}
	total, err := r.Count(ctx, req.Filter)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.NewPage[T](req, 0, nil), nil
	}

	var entities []*T
	q := r.db().NewSelect().Model(&entities)
	if req.Filter != nil {
		q = q.Where(req.Filter.Expr, req.Filter.Args...)
	}
	err = q.Order(req.Orders...).
		Offset(req.Offset()).
		Limit(req.Size()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewPage[T](req, total, entities), nil
}

func (r *baseRepository[T]) Insert(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)
	_, err := r.db().NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepository[T]) Save(ctx context.Context, entity *T) error {
	_, err := r.db().NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepository[T]) Remove(ctx context.Context, id any) error {
	_, err := r.db().NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *baseRepository[T]) Transaction(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error {
	return r.orm.BatchOperation(ctx, func(ctx context.Context, _ *database.ORM) error {
		return fn(ctx, r)
	})
}

func (r *baseRepository[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("upsert: fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)

	features := r.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, fields, conflictKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		return r.upsertFallback(ctx, entities)
	}
}

// postgres and sqlite
func (r *baseRepository[T]) upsertOnConflict(ctx context.Context, fields, conflictKeys []string, entities []*T) error {
	if len(conflictKeys) == 0 {
		conflictKeys = []string{"id"}
	}
	keys := make([]string, len(conflictKeys))
	for i, k := range conflictKeys {
		keys[i] = r.orm.Grammar().QuoteIdent(k)
	}
	q := r.db().NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE")
	for _, f := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(f), bun.Ident(f))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepository[T]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) error {
	q := r.db().NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE")
	for _, f := range fields {
		q = q.Set("? = VALUES(?)", bun.Ident(f), bun.Ident(f))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepository[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		if _, err := r.db().NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := r.db().NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}
