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
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/tomoncle/logbie/schema"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

// mysqlMaxLimit is the documented way to express "no limit" with an offset.
const mysqlMaxLimit = "18446744073709551615"

type MySQLDriver struct {
	baseDriver
}

func NewMySQLDriver() Driver {
	return &MySQLDriver{baseDriver{name: "mysql"}}
}

func (d *MySQLDriver) BuildDSN(cfg *Config) (string, error) {
	if cfg.Database == "" {
		return "", newValidationError("mysql dsn", "database name is required")
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Collation = cfg.Collation
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.MultiStatements = false
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}
	return mc.FormatDSN(), nil
}

func (d *MySQLDriver) Connect(ctx context.Context, cfg *Config, logger Logger) (*Connection, error) {
	dsn, err := d.BuildDSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: d.name, Err: err}
	}
	conn, err := openConnection(ctx, d.name, "mysql", dsn, mysqldialect.New(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := d.ConfigureConnection(ctx, conn, cfg); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Driver: d.name, Target: maskDSN(dsn, cfg.Password), Err: err}
	}
	return conn, nil
}

// ConfigureConnection sets session variables. Charset, collation and
// timeouts are already carried by the DSN.
func (d *MySQLDriver) ConfigureConnection(ctx context.Context, conn *Connection, cfg *Config) error {
	for _, s := range mysqlSessionStatements(cfg) {
		if _, err := conn.IDB().ExecContext(ctx, s.query, s.args...); err != nil {
			return newExecutionError("configure", s.query, err)
		}
	}
	return nil
}

type sessionStatement struct {
	query string
	args  []interface{}
}

func mysqlSessionStatements(cfg *Config) []sessionStatement {
	var out []sessionStatement
	if cfg.SQLMode != "" {
		out = append(out, sessionStatement{"SET SESSION sql_mode = ?", []interface{}{cfg.SQLMode}})
	}
	if cfg.Timezone != "" {
		out = append(out, sessionStatement{"SET SESSION time_zone = ?", []interface{}{cfg.Timezone}})
	}
	return out
}

func (d *MySQLDriver) LastInsertID(ctx context.Context, conn *Connection, _ string) (string, error) {
	return scalar(ctx, conn, "SELECT LAST_INSERT_ID()")
}

func (d *MySQLDriver) TableSchema(ctx context.Context, conn *Connection, table string) ([]Column, error) {
	rows, err := conn.IDB().QueryContext(ctx, "DESCRIBE ?", bun.Ident(table))
	if err != nil {
		return nil, newExecutionError("describe", "DESCRIBE "+table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var field, typ, null, key, extra string
		var def sql.NullString
		if err := rows.Scan(&field, &typ, &null, &key, &def, &extra); err != nil {
			return nil, newExecutionError("describe", "DESCRIBE "+table, err)
		}
		cols = append(cols, normalizeMySQLColumn(field, typ, null, key, def, extra))
	}
	if err := rows.Err(); err != nil {
		return nil, newExecutionError("describe", "DESCRIBE "+table, err)
	}
	return cols, nil
}

func normalizeMySQLColumn(field, typ, null, key string, def sql.NullString, extra string) Column {
	c := Column{
		Field: field,
		Type:  typ,
		Null:  strings.EqualFold(null, "YES"),
	}
	if strings.EqualFold(key, KeyPrimary) {
		c.Key = KeyPrimary
	}
	if def.Valid {
		c.Default = strPtr(def.String)
	}
	if strings.Contains(strings.ToLower(extra), ExtraAutoIncr) {
		c.Extra = ExtraAutoIncr
	}
	return c
}

func (d *MySQLDriver) ListTables(ctx context.Context, conn *Connection) ([]string, error) {
	return scanStrings(ctx, conn, "SHOW TABLES")
}

// Optimize runs OPTIMIZE TABLE on every table.
func (d *MySQLDriver) Optimize(ctx context.Context, conn *Connection) error {
	tables, err := d.ListTables(ctx, conn)
	if err != nil {
		return err
	}
	for _, t := range tables {
		rows, err := conn.IDB().QueryContext(ctx, "OPTIMIZE TABLE ?", bun.Ident(t))
		if err != nil {
			return newExecutionError("optimize", "OPTIMIZE TABLE "+t, err)
		}
		_ = rows.Close()
	}
	return nil
}

func (d *MySQLDriver) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT %s OFFSET %d", mysqlMaxLimit, offset)
	}
	return ""
}

func (d *MySQLDriver) Grammar(cfg *Config) schema.Grammar {
	return schema.NewMySQLGrammar("InnoDB", cfg.Charset, cfg.Collation)
}

func scanStrings(ctx context.Context, conn *Connection, query string, args ...interface{}) ([]string, error) {
	rows, err := conn.IDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newExecutionError("query", query, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, newExecutionError("query", query, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, newExecutionError("query", query, err)
	}
	return out, nil
}
