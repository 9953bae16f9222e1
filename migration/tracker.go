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

package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/logbie/database"
)

// Record is one row of the migrations tracking table.
type Record struct {
	bun.BaseModel `bun:"table:migrations"`

	Migration  string    `bun:"migration,pk,type:varchar(255)"`
	Batch      int       `bun:"batch,notnull"`
	ExecutedAt time.Time `bun:"executed_at,type:timestamp,nullzero,default:current_timestamp"`
}

// tracker reads and writes the tracking table on the ORM's current
// connection or transaction, so a record commits together with its migration.
type tracker struct {
	orm *database.ORM
}

func (t *tracker) ensureTable(ctx context.Context) error {
	_, err := t.orm.IDB().NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

// applied returns every record ordered by batch, then name.
func (t *tracker) applied(ctx context.Context) ([]Record, error) {
	var records []Record
	err := t.orm.IDB().NewSelect().
		Model(&records).
		Order("batch ASC", "migration ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read migrations table: %w", err)
	}
	return records, nil
}

func (t *tracker) lastBatch(ctx context.Context) (int, error) {
	var batch int
	err := t.orm.IDB().NewSelect().
		Model((*Record)(nil)).
		ColumnExpr("COALESCE(MAX(batch), 0)").
		Scan(ctx, &batch)
	if err != nil {
		return 0, fmt.Errorf("read last batch: %w", err)
	}
	return batch, nil
}

// batch returns the records of one batch in reverse execution order.
func (t *tracker) batch(ctx context.Context, batch int) ([]Record, error) {
	var records []Record
	err := t.orm.IDB().NewSelect().
		Model(&records).
		Where("batch = ?", batch).
		Order("migration DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read batch %d: %w", batch, err)
	}
	return records, nil
}

func (t *tracker) log(ctx context.Context, name string, batch int) error {
	record := &Record{Migration: name, Batch: batch, ExecutedAt: time.Now()}
	_, err := t.orm.IDB().NewInsert().
		Model(record).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func (t *tracker) remove(ctx context.Context, name string) error {
	_, err := t.orm.IDB().NewDelete().
		Model((*Record)(nil)).
		Where("migration = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("forget migration %s: %w", name, err)
	}
	return nil
}
