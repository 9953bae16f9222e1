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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupported is returned for operations a dialect cannot express.
var ErrUnsupported = errors.New("operation not supported by dialect")

// Grammar compiles blueprints into dialect-specific DDL.
type Grammar interface {
	Dialect() string
	QuoteIdent(name string) string
	CompileCreate(bp *Blueprint, ifNotExists bool) ([]string, error)
	CompileAlter(bp *Blueprint) ([]string, error)
	CompileDrop(table string) string
	CompileDropIfExists(table string) string
	CompileRename(from, to string) string
}

// dialect carries the per-backend pieces; grammar does the rest.
type dialect struct {
	name         string
	quote        byte
	columnType   func(c *ColumnDefinition) string
	autoIncr     func(c *ColumnDefinition) string
	boolLiteral  func(v bool) string
	tableOptions string
	// explicitNull writes NULL for nullable columns.
	explicitNull bool
	// alterForeign allows ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY.
	alterForeign bool
	dropIndex    func(g *grammar, table, name string) string
	dropForeign  func(g *grammar, table, name string) string
	renameTable  func(g *grammar, from, to string) string
}

type grammar struct {
	d dialect
}

func (g *grammar) Dialect() string { return g.d.name }

func (g *grammar) QuoteIdent(name string) string {
	q := string(g.d.quote)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

func (g *grammar) quoteList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = g.QuoteIdent(n)
	}
	return strings.Join(out, ", ")
}

func (g *grammar) CompileCreate(bp *Blueprint, ifNotExists bool) ([]string, error) {
	if err := bp.validate(); err != nil {
		return nil, err
	}
	if len(bp.columns) == 0 {
		return nil, fmt.Errorf("create %s: no columns declared", bp.table)
	}
	if len(bp.commands) > 0 {
		return nil, fmt.Errorf("create %s: drop/rename commands are only valid when altering a table", bp.table)
	}

	defs := make([]string, 0, len(bp.columns)+len(bp.foreignKeys)+1)
	var primaries []string
	autoPK := false
	for _, c := range bp.columns {
		defs = append(defs, g.compileColumn(c))
		if c.autoIncrement() {
			autoPK = true
		} else if c.IsPrimary {
			primaries = append(primaries, c.Name)
		}
	}
	if autoPK && len(primaries) > 0 {
		return nil, fmt.Errorf("create %s: auto-increment key cannot be combined with other primary columns", bp.table)
	}
	if len(primaries) > 0 {
		defs = append(defs, "PRIMARY KEY ("+g.quoteList(primaries)+")")
	}
	for _, fk := range bp.foreignKeys {
		defs = append(defs, "CONSTRAINT "+g.QuoteIdent(fk.GenerateConstraintName())+" "+g.compileForeignBody(fk))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(g.QuoteIdent(bp.table))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(defs, ",\n  "))
	b.WriteString("\n)")
	b.WriteString(g.d.tableOptions)

	stmts := []string{b.String()}
	for _, idx := range bp.allIndexes() {
		stmts = append(stmts, g.compileIndex(bp.table, idx, ifNotExists))
	}
	return stmts, nil
}

func (g *grammar) CompileAlter(bp *Blueprint) ([]string, error) {
	if err := bp.validate(); err != nil {
		return nil, err
	}
	table := g.QuoteIdent(bp.table)
	var stmts []string
	for _, c := range bp.columns {
		if c.autoIncrement() {
			return nil, fmt.Errorf("alter %s: cannot add auto-increment column %s to an existing table", bp.table, c.Name)
		}
		stmts = append(stmts, "ALTER TABLE "+table+" ADD COLUMN "+g.compileColumn(c))
	}
	for _, cmd := range bp.commands {
		switch cmd.kind {
		case cmdDropColumn:
			stmts = append(stmts, "ALTER TABLE "+table+" DROP COLUMN "+g.QuoteIdent(cmd.name))
		case cmdRenameColumn:
			stmts = append(stmts, "ALTER TABLE "+table+" RENAME COLUMN "+g.QuoteIdent(cmd.name)+" TO "+g.QuoteIdent(cmd.to))
		case cmdDropIndex:
			stmts = append(stmts, g.d.dropIndex(g, bp.table, cmd.name))
		case cmdDropForeign:
			if !g.d.alterForeign {
				return nil, fmt.Errorf("alter %s: drop foreign key %s: %w", bp.table, cmd.name, ErrUnsupported)
			}
			stmts = append(stmts, g.d.dropForeign(g, bp.table, cmd.name))
		}
	}
	for _, idx := range bp.allIndexes() {
		stmts = append(stmts, g.compileIndex(bp.table, idx, false))
	}
	for _, fk := range bp.foreignKeys {
		if !g.d.alterForeign {
			return nil, fmt.Errorf("alter %s: add foreign key %s: %w", bp.table, fk.GenerateConstraintName(), ErrUnsupported)
		}
		stmts = append(stmts, "ALTER TABLE "+table+" ADD CONSTRAINT "+g.QuoteIdent(fk.GenerateConstraintName())+" "+g.compileForeignBody(fk))
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("alter %s: nothing to change", bp.table)
	}
	return stmts, nil
}

func (g *grammar) CompileDrop(table string) string {
	return "DROP TABLE " + g.QuoteIdent(table)
}

func (g *grammar) CompileDropIfExists(table string) string {
	return "DROP TABLE IF EXISTS " + g.QuoteIdent(table)
}

func (g *grammar) CompileRename(from, to string) string {
	return g.d.renameTable(g, from, to)
}

func (g *grammar) compileColumn(c *ColumnDefinition) string {
	if c.autoIncrement() {
		return g.QuoteIdent(c.Name) + " " + g.d.autoIncr(c)
	}
	var b strings.Builder
	b.WriteString(g.QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(g.d.columnType(c))
	if c.IsNullable {
		if g.d.explicitNull {
			b.WriteString(" NULL")
		}
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.HasDefault {
		b.WriteString(" DEFAULT ")
		b.WriteString(g.defaultValue(c.DefaultVal))
	}
	return b.String()
}

func (g *grammar) defaultValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case Expr:
		return string(val)
	case bool:
		return g.d.boolLiteral(val)
	case string:
		return quoteString(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return quoteString(val.UTC().Format("2006-01-02 15:04:05"))
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func (g *grammar) compileForeignBody(fk *ForeignKeyDefinition) string {
	s := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		g.QuoteIdent(fk.Column), g.QuoteIdent(fk.ReferenceTable), g.QuoteIdent(fk.ReferenceColumn))
	if fk.OnDeleteAction != "" {
		s += " ON DELETE " + fk.OnDeleteAction
	}
	if fk.OnUpdateAction != "" {
		s += " ON UPDATE " + fk.OnUpdateAction
	}
	return s
}

func (g *grammar) compileIndex(table string, idx *IndexDefinition, ifNotExists bool) string {
	kind := "INDEX "
	if idx.Unique {
		kind = "UNIQUE INDEX "
	}
	exists := ""
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if ifNotExists && g.d.name != "mysql" {
		exists = "IF NOT EXISTS "
	}
	return "CREATE " + kind + exists + g.QuoteIdent(idx.Name) + " ON " + g.QuoteIdent(table) + " (" + g.quoteList(idx.Columns) + ")"
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// NewGrammar returns the grammar registered for a dialect name.
func NewGrammar(name string) (Grammar, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return NewMySQLGrammar("", "", ""), nil
	case "sqlite", "sqlite3":
		return NewSQLiteGrammar(), nil
	case "postgres", "postgresql", "pgsql":
		return NewPostgresGrammar(), nil
	default:
		return nil, fmt.Errorf("schema: unknown dialect %q", name)
	}
}
