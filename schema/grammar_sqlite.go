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

// NewSQLiteGrammar compiles for SQLite. Foreign keys can only be declared
// while creating a table.
func NewSQLiteGrammar() Grammar {
	return &grammar{d: dialect{
		name:        "sqlite",
		quote:       '"',
		columnType:  sqliteColumnType,
		autoIncr:    func(*ColumnDefinition) string { return "INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT" },
		boolLiteral: numericBool,
		dropIndex: func(g *grammar, _, name string) string {
			return "DROP INDEX " + g.QuoteIdent(name)
		},
		renameTable: func(g *grammar, from, to string) string {
			return "ALTER TABLE " + g.QuoteIdent(from) + " RENAME TO " + g.QuoteIdent(to)
		},
	}}
}

func sqliteColumnType(c *ColumnDefinition) string {
	switch c.Type {
	case TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Length)
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "INTEGER"
	case TypeBigInteger:
		return "BIGINT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeFloat:
		return "REAL"
	case TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d, %d)", c.Precision, c.Scale)
	case TypeTimestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}
