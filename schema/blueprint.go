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
)

type ColumnType int

const (
	TypeBigIncrements ColumnType = iota
	TypeIncrements
	TypeString
	TypeText
	TypeInteger
	TypeBigInteger
	TypeBoolean
	TypeFloat
	TypeDecimal
	TypeTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case TypeBigIncrements:
		return "bigIncrements"
	case TypeIncrements:
		return "increments"
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeBigInteger:
		return "bigInteger"
	case TypeBoolean:
		return "boolean"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Expr is a default value rendered verbatim, e.g. Expr("CURRENT_TIMESTAMP").
type Expr string

// ColumnDefinition is one column declaration. Its setters chain.
type ColumnDefinition struct {
	Name      string
	Type      ColumnType
	Length    int
	Precision int
	Scale     int

	IsNullable bool
	IsUnsigned bool
	IsPrimary  bool
	IsUnique   bool
	IsIndexed  bool
	HasDefault bool
	DefaultVal interface{}
}

func (c *ColumnDefinition) Nullable() *ColumnDefinition {
	c.IsNullable = true
	return c
}

func (c *ColumnDefinition) Default(v interface{}) *ColumnDefinition {
	c.HasDefault = true
	c.DefaultVal = v
	return c
}

// UseCurrent defaults a timestamp column to CURRENT_TIMESTAMP.
func (c *ColumnDefinition) UseCurrent() *ColumnDefinition {
	return c.Default(Expr("CURRENT_TIMESTAMP"))
}

func (c *ColumnDefinition) Unsigned() *ColumnDefinition {
	c.IsUnsigned = true
	return c
}

func (c *ColumnDefinition) Primary() *ColumnDefinition {
	c.IsPrimary = true
	return c
}

func (c *ColumnDefinition) Unique() *ColumnDefinition {
	c.IsUnique = true
	return c
}

func (c *ColumnDefinition) Index() *ColumnDefinition {
	c.IsIndexed = true
	return c
}

func (c *ColumnDefinition) autoIncrement() bool {
	return c.Type == TypeBigIncrements || c.Type == TypeIncrements
}

// IndexDefinition is a plain or unique index over one or more columns.
type IndexDefinition struct {
	Name    string
	Columns []string
	Unique  bool
}

type commandKind int

const (
	cmdDropColumn commandKind = iota
	cmdRenameColumn
	cmdDropIndex
	cmdDropForeign
)

type command struct {
	kind commandKind
	name string
	to   string
}

// Blueprint collects the declarations made inside a Create or Table callback.
type Blueprint struct {
	table       string
	columns     []*ColumnDefinition
	indexes     []*IndexDefinition
	foreignKeys []*ForeignKeyDefinition
	commands    []command
	errs        []error
}

func NewBlueprint(table string) *Blueprint {
	return &Blueprint{table: table}
}

func (b *Blueprint) Table() string { return b.table }

func (b *Blueprint) Columns() []*ColumnDefinition { return b.columns }

func (b *Blueprint) addColumn(name string, typ ColumnType) *ColumnDefinition {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("%s: %s column requires a name", b.table, typ))
	}
	c := &ColumnDefinition{Name: name, Type: typ}
	b.columns = append(b.columns, c)
	return c
}

// ID adds the conventional auto-incrementing big integer primary key "id".
func (b *Blueprint) ID() *ColumnDefinition {
	return b.BigIncrements("id")
}

func (b *Blueprint) BigIncrements(name string) *ColumnDefinition {
	return b.addColumn(name, TypeBigIncrements).Unsigned().Primary()
}

func (b *Blueprint) Increments(name string) *ColumnDefinition {
	return b.addColumn(name, TypeIncrements).Unsigned().Primary()
}

// String adds a VARCHAR column, 255 characters unless length is given.
func (b *Blueprint) String(name string, length ...int) *ColumnDefinition {
	c := b.addColumn(name, TypeString)
	c.Length = 255
	if len(length) > 0 && length[0] > 0 {
		c.Length = length[0]
	}
	return c
}

func (b *Blueprint) Text(name string) *ColumnDefinition {
	return b.addColumn(name, TypeText)
}

func (b *Blueprint) Integer(name string) *ColumnDefinition {
	return b.addColumn(name, TypeInteger)
}

func (b *Blueprint) BigInteger(name string) *ColumnDefinition {
	return b.addColumn(name, TypeBigInteger)
}

func (b *Blueprint) Boolean(name string) *ColumnDefinition {
	return b.addColumn(name, TypeBoolean)
}

func (b *Blueprint) Float(name string) *ColumnDefinition {
	return b.addColumn(name, TypeFloat)
}

func (b *Blueprint) Decimal(name string, precision, scale int) *ColumnDefinition {
	c := b.addColumn(name, TypeDecimal)
	c.Precision, c.Scale = precision, scale
	if c.Precision <= 0 {
		c.Precision = 8
	}
	if c.Scale < 0 {
		c.Scale = 2
	}
	return c
}

func (b *Blueprint) Timestamp(name string) *ColumnDefinition {
	return b.addColumn(name, TypeTimestamp)
}

// Timestamps adds nullable created_at and updated_at columns.
func (b *Blueprint) Timestamps() {
	b.Timestamp("created_at").Nullable()
	b.Timestamp("updated_at").Nullable()
}

// SoftDeletes adds a nullable deleted_at column.
func (b *Blueprint) SoftDeletes() *ColumnDefinition {
	return b.Timestamp("deleted_at").Nullable()
}

// Index adds an index over columns named <table>_<cols>_index.
func (b *Blueprint) Index(columns ...string) *IndexDefinition {
	return b.addIndex(columns, false)
}

// Unique adds a unique index over columns named <table>_<cols>_unique.
func (b *Blueprint) Unique(columns ...string) *IndexDefinition {
	return b.addIndex(columns, true)
}

func (b *Blueprint) addIndex(columns []string, unique bool) *IndexDefinition {
	if len(columns) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%s: index requires at least one column", b.table))
	}
	idx := &IndexDefinition{Name: IndexName(b.table, columns, unique), Columns: columns, Unique: unique}
	b.indexes = append(b.indexes, idx)
	return idx
}

// Foreign starts a foreign key on column. Finish it with References and On.
func (b *Blueprint) Foreign(column string) *ForeignKeyDefinition {
	fk := &ForeignKeyDefinition{Table: b.table, Column: column}
	b.foreignKeys = append(b.foreignKeys, fk)
	return fk
}

func (b *Blueprint) DropColumn(names ...string) {
	for _, n := range names {
		b.commands = append(b.commands, command{kind: cmdDropColumn, name: n})
	}
}

func (b *Blueprint) RenameColumn(from, to string) {
	b.commands = append(b.commands, command{kind: cmdRenameColumn, name: from, to: to})
}

func (b *Blueprint) DropIndex(name string) {
	b.commands = append(b.commands, command{kind: cmdDropIndex, name: name})
}

func (b *Blueprint) DropForeign(name string) {
	b.commands = append(b.commands, command{kind: cmdDropForeign, name: name})
}

// indexes declared inline on columns are materialized next to explicit ones.
func (b *Blueprint) allIndexes() []*IndexDefinition {
	out := make([]*IndexDefinition, 0, len(b.indexes))
	for _, c := range b.columns {
		if c.IsUnique && !c.IsPrimary {
			out = append(out, &IndexDefinition{Name: IndexName(b.table, []string{c.Name}, true), Columns: []string{c.Name}, Unique: true})
		}
		if c.IsIndexed {
			out = append(out, &IndexDefinition{Name: IndexName(b.table, []string{c.Name}, false), Columns: []string{c.Name}})
		}
	}
	return append(out, b.indexes...)
}

func (b *Blueprint) validate() error {
	if b.table == "" {
		return fmt.Errorf("blueprint: table name is empty")
	}
	if len(b.errs) > 0 {
		return b.errs[0]
	}
	for _, fk := range b.foreignKeys {
		if err := fk.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IndexName builds the conventional index name, e.g. users_email_unique.
func IndexName(table string, columns []string, unique bool) string {
	name := table
	for _, c := range columns {
		name += "_" + c
	}
	if unique {
		return name + "_unique"
	}
	return name + "_index"
}
