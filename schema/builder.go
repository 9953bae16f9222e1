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

package schema

import (
	"context"
	"fmt"
)

// Executor runs compiled DDL and answers existence questions. The ORM
// implements it over its raw, uncached statement path.
type Executor interface {
	ExecDDL(ctx context.Context, query string) error
	HasTable(ctx context.Context, table string) (bool, error)
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

// Builder is the declarative entry point used by migrations:
//
//	err := b.Create(ctx, "users", func(t *schema.Blueprint) {
//		t.ID()
//		t.String("username").Unique()
//		t.Boolean("active").Default(true)
//		t.Timestamps()
//	})
type Builder struct {
	exec    Executor
	grammar Grammar
}

func NewBuilder(exec Executor, grammar Grammar) *Builder {
	return &Builder{exec: exec, grammar: grammar}
}

func (b *Builder) Grammar() Grammar { return b.grammar }

func (b *Builder) Create(ctx context.Context, table string, fn func(t *Blueprint)) error {
	return b.create(ctx, table, fn, false)
}

func (b *Builder) CreateIfNotExists(ctx context.Context, table string, fn func(t *Blueprint)) error {
	return b.create(ctx, table, fn, true)
}

func (b *Builder) create(ctx context.Context, table string, fn func(t *Blueprint), ifNotExists bool) error {
	bp := NewBlueprint(table)
	if fn != nil {
		fn(bp)
	}
	stmts, err := b.grammar.CompileCreate(bp, ifNotExists)
	if err != nil {
		return err
	}
	return b.run(ctx, stmts)
}

// Table alters an existing table.
func (b *Builder) Table(ctx context.Context, table string, fn func(t *Blueprint)) error {
	bp := NewBlueprint(table)
	if fn != nil {
		fn(bp)
	}
	stmts, err := b.grammar.CompileAlter(bp)
	if err != nil {
		return err
	}
	return b.run(ctx, stmts)
}

func (b *Builder) Drop(ctx context.Context, table string) error {
	return b.run(ctx, []string{b.grammar.CompileDrop(table)})
}

// DropIfExists never fails because table is absent.
func (b *Builder) DropIfExists(ctx context.Context, table string) error {
	return b.run(ctx, []string{b.grammar.CompileDropIfExists(table)})
}

func (b *Builder) Rename(ctx context.Context, from, to string) error {
	return b.run(ctx, []string{b.grammar.CompileRename(from, to)})
}

func (b *Builder) HasTable(ctx context.Context, table string) (bool, error) {
	return b.exec.HasTable(ctx, table)
}

func (b *Builder) HasColumn(ctx context.Context, table, column string) (bool, error) {
	return b.exec.HasColumn(ctx, table, column)
}

// Statement runs raw DDL or data SQL as-is.
func (b *Builder) Statement(ctx context.Context, query string) error {
	return b.run(ctx, []string{query})
}

// ToSQL compiles without executing; create selects CREATE over ALTER.
func (b *Builder) ToSQL(table string, create bool, fn func(t *Blueprint)) ([]string, error) {
	bp := NewBlueprint(table)
	if fn != nil {
		fn(bp)
	}
	if create {
		return b.grammar.CompileCreate(bp, false)
	}
	return b.grammar.CompileAlter(bp)
}

func (b *Builder) run(ctx context.Context, stmts []string) error {
	for _, s := range stmts {
		if err := b.exec.ExecDDL(ctx, s); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
