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
	"fmt"
	"strings"
)

var validActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyDefinition describes a foreign key from Table.Column to
// ReferenceTable.ReferenceColumn.
type ForeignKeyDefinition struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDeleteAction  string
	OnUpdateAction  string
	ConstraintName  string
}

// References sets the referenced column, "id" when empty.
func (fk *ForeignKeyDefinition) References(column string) *ForeignKeyDefinition {
	if column == "" {
		column = "id"
	}
	fk.ReferenceColumn = column
	return fk
}

func (fk *ForeignKeyDefinition) On(table string) *ForeignKeyDefinition {
	fk.ReferenceTable = table
	return fk
}

func (fk *ForeignKeyDefinition) OnDelete(action string) *ForeignKeyDefinition {
	fk.OnDeleteAction = strings.ToUpper(strings.TrimSpace(action))
	return fk
}

func (fk *ForeignKeyDefinition) OnUpdate(action string) *ForeignKeyDefinition {
	fk.OnUpdateAction = strings.ToUpper(strings.TrimSpace(action))
	return fk
}

func (fk *ForeignKeyDefinition) Name(name string) *ForeignKeyDefinition {
	fk.ConstraintName = name
	return fk
}

// GenerateConstraintName returns the explicit name or fk_<table>_<column>.
func (fk *ForeignKeyDefinition) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

func (fk *ForeignKeyDefinition) Validate() error {
	if fk.Column == "" {
		return fmt.Errorf("foreign key on %s: column name cannot be empty", fk.Table)
	}
	if fk.ReferenceTable == "" {
		return fmt.Errorf("foreign key %s.%s: reference table cannot be empty", fk.Table, fk.Column)
	}
	if fk.ReferenceColumn == "" {
		fk.ReferenceColumn = "id"
	}
	if !validAction(fk.OnDeleteAction) {
		return fmt.Errorf("invalid delete policy: %s, constraint: %s", fk.OnDeleteAction, fk.GenerateConstraintName())
	}
	if !validAction(fk.OnUpdateAction) {
		return fmt.Errorf("invalid update policy: %s, constraint: %s", fk.OnUpdateAction, fk.GenerateConstraintName())
	}
	return nil
}

func validAction(action string) bool {
	if action == "" {
		return true
	}
	for _, a := range validActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}
