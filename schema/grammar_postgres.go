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

func NewPostgresGrammar() Grammar {
	return &grammar{d: dialect{
		name:       "postgres",
		quote:      '"',
		columnType: postgresColumnType,
		autoIncr: func(c *ColumnDefinition) string {
			if c.Type == TypeIncrements {
				return "SERIAL PRIMARY KEY"
			}
			return "BIGSERIAL PRIMARY KEY"
		},
		boolLiteral: func(v bool) string {
			if v {
				return "TRUE"
			}
			return "FALSE"
		},
		alterForeign: true,
		dropIndex: func(g *grammar, _, name string) string {
			return "DROP INDEX " + g.QuoteIdent(name)
		},
		dropForeign: func(g *grammar, table, name string) string {
			return "ALTER TABLE " + g.QuoteIdent(table) + " DROP CONSTRAINT " + g.QuoteIdent(name)
		},
		renameTable: func(g *grammar, from, to string) string {
			return "ALTER TABLE " + g.QuoteIdent(from) + " RENAME TO " + g.QuoteIdent(to)
		},
	}}
}

// postgres has no unsigned integers; Unsigned is ignored.
func postgresColumnType(c *ColumnDefinition) string {
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
		return "DOUBLE PRECISION"
	case TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d, %d)", c.Precision, c.Scale)
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
