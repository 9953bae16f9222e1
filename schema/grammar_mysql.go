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

// NewMySQLGrammar compiles for MySQL/MariaDB. Empty arguments default to
// InnoDB with utf8mb4.
func NewMySQLGrammar(engine, charset, collation string) Grammar {
	if engine == "" {
		engine = "InnoDB"
	}
	if charset == "" {
		charset = "utf8mb4"
	}
	opts := fmt.Sprintf(" ENGINE=%s DEFAULT CHARSET=%s", engine, charset)
	if collation != "" {
		opts += " COLLATE=" + collation
	}
	return &grammar{d: dialect{
		name:         "mysql",
		quote:        '`',
		columnType:   mysqlColumnType,
		autoIncr:     mysqlAutoIncrement,
		boolLiteral:  numericBool,
		tableOptions: opts,
		explicitNull: true,
		alterForeign: true,
		dropIndex: func(g *grammar, table, name string) string {
			return "DROP INDEX " + g.QuoteIdent(name) + " ON " + g.QuoteIdent(table)
		},
		dropForeign: func(g *grammar, table, name string) string {
			return "ALTER TABLE " + g.QuoteIdent(table) + " DROP FOREIGN KEY " + g.QuoteIdent(name)
		},
		renameTable: func(g *grammar, from, to string) string {
			return "RENAME TABLE " + g.QuoteIdent(from) + " TO " + g.QuoteIdent(to)
		},
	}}
}

func mysqlColumnType(c *ColumnDefinition) string {
	unsigned := ""
	if c.IsUnsigned {
		unsigned = " UNSIGNED"
	}
	switch c.Type {
	case TypeString:
		return fmt.Sprintf("VARCHAR(%d)", c.Length)
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "INT" + unsigned
	case TypeBigInteger:
		return "BIGINT" + unsigned
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeFloat:
		return "DOUBLE"
	case TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", c.Precision, c.Scale)
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func mysqlAutoIncrement(c *ColumnDefinition) string {
	if c.Type == TypeIncrements {
		return "INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
	return "BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY"
}

func numericBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
