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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/tomoncle/logbie/schema"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type PostgresDriver struct {
	baseDriver
}

func NewPostgresDriver() Driver {
	return &PostgresDriver{baseDriver{name: "postgres"}}
}

func (d *PostgresDriver) BuildDSN(cfg *Config) (string, error) {
	if cfg.Database == "" {
		return "", newValidationError("postgres dsn", "database name is required")
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *PostgresDriver) Connect(ctx context.Context, cfg *Config, logger Logger) (*Connection, error) {
	dsn, err := d.BuildDSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: d.name, Err: err}
	}
	conn, err := openConnection(ctx, d.name, "postgres", dsn, pgdialect.New(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := d.ConfigureConnection(ctx, conn, cfg); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Driver: d.name, Target: maskDSN(dsn, cfg.Password), Err: err}
	}
	return conn, nil
}

func (d *PostgresDriver) ConfigureConnection(ctx context.Context, conn *Connection, cfg *Config) error {
	var stmts []sessionStatement
	if enc := postgresEncoding(cfg.Charset); enc != "" {
		stmts = append(stmts, sessionStatement{"SET client_encoding TO ?", []interface{}{enc}})
	}
	if cfg.Timezone != "" {
		stmts = append(stmts, sessionStatement{"SET TIME ZONE ?", []interface{}{cfg.Timezone}})
	}
	for _, s := range stmts {
		if _, err := conn.IDB().ExecContext(ctx, s.query, s.args...); err != nil {
			return newExecutionError("configure", s.query, err)
		}
	}
	return nil
}

// postgresEncoding maps MySQL-style charset names onto server encodings.
func postgresEncoding(charset string) string {
	switch strings.ToLower(charset) {
	case "":
		return ""
	case "utf8", "utf8mb4", "utf-8":
		return "UTF8"
	default:
		return charset
	}
}

// LastInsertID reads currval(sequence), or lastval() without a sequence.
func (d *PostgresDriver) LastInsertID(ctx context.Context, conn *Connection, sequence string) (string, error) {
	if sequence == "" {
		return scalar(ctx, conn, "SELECT lastval()")
	}
	return scalar(ctx, conn, "SELECT currval(?)", sequence)
}

const postgresColumnsQuery = `SELECT c.column_name, c.data_type, c.is_nullable, c.column_default, c.is_identity,
	CASE WHEN pk.column_name IS NULL THEN '' ELSE 'PRI' END
FROM information_schema.columns c
LEFT JOIN (
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = ? AND tc.table_schema = current_schema()
) pk ON pk.column_name = c.column_name
WHERE c.table_name = ? AND c.table_schema = current_schema()
ORDER BY c.ordinal_position`

func (d *PostgresDriver) TableSchema(ctx context.Context, conn *Connection, table string) ([]Column, error) {
	rows, err := conn.IDB().QueryContext(ctx, postgresColumnsQuery, table, table)
	if err != nil {
		return nil, newExecutionError("table schema", postgresColumnsQuery, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ, nullable, identity, key string
		var def sql.NullString
		if err := rows.Scan(&name, &typ, &nullable, &def, &identity, &key); err != nil {
			return nil, newExecutionError("table schema", postgresColumnsQuery, err)
		}
		cols = append(cols, normalizePostgresColumn(name, typ, nullable, def, identity, key))
	}
	if err := rows.Err(); err != nil {
		return nil, newExecutionError("table schema", postgresColumnsQuery, err)
	}
	if len(cols) == 0 {
		return nil, newExecutionError("table schema", postgresColumnsQuery, fmt.Errorf("no such table: %s", table))
	}
	return cols, nil
}

// serial and identity columns are reported as auto_increment.
func normalizePostgresColumn(name, typ, nullable string, def sql.NullString, identity, key string) Column {
	c := Column{Field: name, Type: typ, Null: strings.EqualFold(nullable, "YES"), Key: key}
	if def.Valid {
		c.Default = strPtr(def.String)
		if strings.HasPrefix(def.String, "nextval(") {
			c.Extra = ExtraAutoIncr
		}
	}
	if strings.EqualFold(identity, "YES") {
		c.Extra = ExtraAutoIncr
	}
	return c
}

func (d *PostgresDriver) ListTables(ctx context.Context, conn *Connection) ([]string, error) {
	return scanStrings(ctx, conn, "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name")
}

// Optimize runs VACUUM ANALYZE, which postgres refuses inside a transaction.
func (d *PostgresDriver) Optimize(ctx context.Context, conn *Connection) error {
	if conn.InTransaction() {
		return newValidationError("optimize", "cannot VACUUM inside a transaction")
	}
	if _, err := conn.SQLConn().ExecContext(ctx, "VACUUM ANALYZE"); err != nil {
		return newExecutionError("optimize", "VACUUM ANALYZE", err)
	}
	return nil
}

// Rebind turns ? placeholders into $1, $2 ... outside quoted text.
func (d *PostgresDriver) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func (d *PostgresDriver) Grammar(*Config) schema.Grammar {
	return schema.NewPostgresGrammar()
}
