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

	"github.com/tomoncle/logbie/schema"
)

// Migration is one reversible schema change. Name is the identifier stored
// in the tracking table; migrations run in ascending Name order, so names
// start with a sortable timestamp, e.g. 2024_01_15_143000_create_users_table.
type Migration interface {
	Name() string
	Up(ctx context.Context, s *schema.Builder) error
	Down(ctx context.Context, s *schema.Builder) error
}

// MigrationFunc is one direction of a migration.
type MigrationFunc func(ctx context.Context, s *schema.Builder) error

// Item adapts a pair of functions to Migration. A nil DownFunc makes the
// migration irreversible.
type Item struct {
	ID       string
	UpFunc   MigrationFunc
	DownFunc MigrationFunc
}

func (m *Item) Name() string { return m.ID }

func (m *Item) Up(ctx context.Context, s *schema.Builder) error {
	if m.UpFunc == nil {
		return nil
	}
	return m.UpFunc(ctx, s)
}

func (m *Item) Down(ctx context.Context, s *schema.Builder) error {
	if m.DownFunc == nil {
		return fmt.Errorf("migration %s cannot be rolled back", m.ID)
	}
	return m.DownFunc(ctx, s)
}

// Direction is the way a migration was being run when it failed.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// SchemaError is returned when a migration's Up or Down fails. The failing
// migration's transaction has been rolled back; earlier migrations of the
// same batch stay applied.
type SchemaError struct {
	Migration string
	Direction Direction
	Err       error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Migration, e.Direction, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
