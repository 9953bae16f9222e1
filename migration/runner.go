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

	"github.com/tomoncle/logbie/database"
	"github.com/tomoncle/logbie/schema"
	"github.com/tomoncle/logbie/utils"
)

// Runner applies pending migrations and reverts applied batches. The
// tracking table is the only record of what has run.
//
// Each migration runs in its own transaction together with its tracking
// row. A failure rolls back that migration only; earlier migrations of the
// batch stay committed. MySQL commits implicitly on DDL, so there a failed
// migration may leave partial schema changes behind.
type Runner struct {
	orm     *database.ORM
	source  Source
	logger  database.Logger
	tracker *tracker
}

// Status describes one known or recorded migration.
type Status struct {
	Name       string    `json:"name"`
	Ran        bool      `json:"ran"`
	Batch      int       `json:"batch,omitempty"`
	ExecutedAt time.Time `json:"executed_at,omitempty"`
	// Missing marks a recorded migration no source knows about.
	Missing bool `json:"missing,omitempty"`
}

func NewRunner(orm *database.ORM, source Source) *Runner {
	return &Runner{
		orm:     orm,
		source:  source,
		logger:  orm.Logger(),
		tracker: &tracker{orm: orm},
	}
}

func (r *Runner) schema() *schema.Builder { return r.orm.Schema() }

// Migrate runs every pending migration in ascending name order as one new
// batch and returns the names it applied.
func (r *Runner) Migrate(ctx context.Context) ([]string, error) {
	known, err := r.source.Load()
	if err != nil {
		return nil, err
	}
	if err := r.tracker.ensureTable(ctx); err != nil {
		return nil, err
	}
	records, err := r.tracker.applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(records))
	for _, rec := range records {
		done[rec.Migration] = struct{}{}
	}

	var pending []Migration
	for _, m := range known {
		if _, ok := done[m.Name()]; !ok {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		r.logger.Info("nothing to migrate")
		return nil, nil
	}

	last, err := r.tracker.lastBatch(ctx)
	if err != nil {
		return nil, err
	}
	batch := last + 1
	defer r.resetCaches()

	applied := make([]string, 0, len(pending))
	for _, m := range pending {
		start := time.Now()
		err := r.orm.BatchOperation(ctx, func(ctx context.Context, orm *database.ORM) error {
			if err := m.Up(ctx, r.schema()); err != nil {
				return &SchemaError{Migration: m.Name(), Direction: DirectionUp, Err: err}
			}
			return r.tracker.log(ctx, m.Name(), batch)
		})
		if err != nil {
			r.logger.Error("migration failed", "migration", m.Name(), "error", err)
			return applied, err
		}
		applied = append(applied, m.Name())
		r.logger.Info("migrated", "migration", m.Name(), "batch", batch, "elapsed", utils.Since(start))
	}
	return applied, nil
}

// Rollback reverts the most recent batch in reverse execution order and
// returns the names it reverted.
func (r *Runner) Rollback(ctx context.Context) ([]string, error) {
	if err := r.tracker.ensureTable(ctx); err != nil {
		return nil, err
	}
	last, err := r.tracker.lastBatch(ctx)
	if err != nil {
		return nil, err
	}
	if last == 0 {
		r.logger.Info("nothing to rollback")
		return nil, nil
	}
	return r.rollbackBatch(ctx, last)
}

// Reset reverts every batch, newest first.
func (r *Runner) Reset(ctx context.Context) ([]string, error) {
	if err := r.tracker.ensureTable(ctx); err != nil {
		return nil, err
	}
	var reverted []string
	for {
		last, err := r.tracker.lastBatch(ctx)
		if err != nil {
			return reverted, err
		}
		if last == 0 {
			return reverted, nil
		}
		names, err := r.rollbackBatch(ctx, last)
		reverted = append(reverted, names...)
		if err != nil {
			return reverted, err
		}
	}
}

func (r *Runner) rollbackBatch(ctx context.Context, batch int) ([]string, error) {
	known, err := r.source.Load()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Migration, len(known))
	for _, m := range known {
		byName[m.Name()] = m
	}
	records, err := r.tracker.batch(ctx, batch)
	if err != nil {
		return nil, err
	}
	// resolve the whole batch before touching anything
	for _, rec := range records {
		if _, ok := byName[rec.Migration]; !ok {
			return nil, fmt.Errorf("rollback batch %d: migration %s not found", batch, rec.Migration)
		}
	}
	defer r.resetCaches()

	reverted := make([]string, 0, len(records))
	for _, rec := range records {
		m := byName[rec.Migration]
		err := r.orm.BatchOperation(ctx, func(ctx context.Context, orm *database.ORM) error {
			if err := m.Down(ctx, r.schema()); err != nil {
				return &SchemaError{Migration: m.Name(), Direction: DirectionDown, Err: err}
			}
			return r.tracker.remove(ctx, m.Name())
		})
		if err != nil {
			r.logger.Error("rollback failed", "migration", m.Name(), "error", err)
			return reverted, err
		}
		reverted = append(reverted, m.Name())
		r.logger.Info("rolled back", "migration", m.Name(), "batch", batch)
	}
	return reverted, nil
}

// Status lists known migrations in order, followed by recorded migrations
// that no source provides.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	known, err := r.source.Load()
	if err != nil {
		return nil, err
	}
	if err := r.tracker.ensureTable(ctx); err != nil {
		return nil, err
	}
	records, err := r.tracker.applied(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Record, len(records))
	for _, rec := range records {
		byName[rec.Migration] = rec
	}

	out := make([]Status, 0, len(known))
	for _, m := range known {
		st := Status{Name: m.Name()}
		if rec, ok := byName[m.Name()]; ok {
			st.Ran, st.Batch, st.ExecutedAt = true, rec.Batch, rec.ExecutedAt
			delete(byName, m.Name())
		}
		out = append(out, st)
	}
	for _, rec := range records {
		if _, ok := byName[rec.Migration]; ok {
			out = append(out, Status{Name: rec.Migration, Ran: true, Batch: rec.Batch, ExecutedAt: rec.ExecutedAt, Missing: true})
		}
	}
	return out, nil
}

// Pending returns the names of migrations not yet applied.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	statuses, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range statuses {
		if !s.Ran {
			out = append(out, s.Name)
		}
	}
	return out, nil
}

// cached table descriptors and statements may describe the old schema
func (r *Runner) resetCaches() {
	r.orm.ClearSchemaCache()
	r.orm.ClearStatementCache()
}
