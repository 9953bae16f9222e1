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
	"os"
	"path/filepath"
	"strings"

	"github.com/tomoncle/logbie/schema"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteMemory = ":memory:"

var (
	sqliteJournalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	sqliteSyncModes    = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
	sqliteTempStores   = []string{"DEFAULT", "FILE", "MEMORY"}
)

// SQLiteDriver talks to an embedded database file, or an in-memory database
// when the path is empty or ":memory:".
type SQLiteDriver struct {
	baseDriver
}

func NewSQLiteDriver() Driver {
	return &SQLiteDriver{baseDriver{name: "sqlite"}}
}

func (d *SQLiteDriver) BuildDSN(cfg *Config) (string, error) {
	if isMemoryPath(cfg.Database) {
		return sqliteMemory, nil
	}
	return cfg.Database, nil
}

func isMemoryPath(p string) bool {
	return p == "" || p == sqliteMemory || strings.HasPrefix(p, "file::memory:")
}

func (d *SQLiteDriver) Connect(ctx context.Context, cfg *Config, logger Logger) (*Connection, error) {
	dsn, _ := d.BuildDSN(cfg)
	if !isMemoryPath(dsn) {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, &ConnectionError{Driver: d.name, Target: dsn, Err: fmt.Errorf("create directory %s: %w", dir, err)}
			}
		}
	}
	conn, err := openConnection(ctx, d.name, sqliteshim.ShimName, dsn, sqlitedialect.New(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := d.ConfigureConnection(ctx, conn, cfg); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Driver: d.name, Target: dsn, Err: err}
	}
	return conn, nil
}

// ConfigureConnection applies one PRAGMA per tuning key.
func (d *SQLiteDriver) ConfigureConnection(ctx context.Context, conn *Connection, cfg *Config) error {
	pragmas, err := sqlitePragmas(cfg.WithDefaults())
	if err != nil {
		return err
	}
	for _, p := range pragmas {
		if _, err := conn.SQLConn().ExecContext(ctx, p); err != nil {
			return newExecutionError("configure", p, err)
		}
	}
	return nil
}

func sqlitePragmas(cfg *Config) ([]string, error) {
	journal, err := oneOf("journal_mode", cfg.JournalMode, sqliteJournalModes)
	if err != nil {
		return nil, err
	}
	sync, err := oneOf("synchronous", cfg.Synchronous, sqliteSyncModes)
	if err != nil {
		return nil, err
	}
	temp, err := oneOf("temp_store", cfg.TempStore, sqliteTempStores)
	if err != nil {
		return nil, err
	}
	fk := "ON"
	if cfg.ForeignKeys != nil && !*cfg.ForeignKeys {
		fk = "OFF"
	}
	return []string{
		"PRAGMA foreign_keys = " + fk,
		"PRAGMA journal_mode = " + journal,
		"PRAGMA synchronous = " + sync,
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
		"PRAGMA temp_store = " + temp,
		fmt.Sprintf("PRAGMA mmap_size = %d", cfg.MmapSize),
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout),
	}, nil
}

func oneOf(key, value string, allowed []string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", newValidationError("sqlite "+key, "%q is not one of %s", value, strings.Join(allowed, ", "))
}

func (d *SQLiteDriver) LastInsertID(ctx context.Context, conn *Connection, _ string) (string, error) {
	return scalar(ctx, conn, "SELECT last_insert_rowid()")
}

type sqliteColumnInfo struct {
	cid     int64
	name    string
	typ     string
	notNull int64
	dflt    sql.NullString
	pk      int64
}

func (d *SQLiteDriver) TableSchema(ctx context.Context, conn *Connection, table string) ([]Column, error) {
	query := "PRAGMA table_info(" + table + ")"
	rows, err := conn.IDB().QueryContext(ctx, "PRAGMA table_info(?)", bun.Ident(table))
	if err != nil {
		return nil, newExecutionError("table schema", query, err)
	}
	defer rows.Close()

	var infos []sqliteColumnInfo
	for rows.Next() {
		var ci sqliteColumnInfo
		var typ sql.NullString
		if err := rows.Scan(&ci.cid, &ci.name, &typ, &ci.notNull, &ci.dflt, &ci.pk); err != nil {
			return nil, newExecutionError("table schema", query, err)
		}
		ci.typ = typ.String
		infos = append(infos, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, newExecutionError("table schema", query, err)
	}
	if len(infos) == 0 {
		return nil, newExecutionError("table schema", query, fmt.Errorf("no such table: %s", table))
	}
	return normalizeSQLiteColumns(infos), nil
}

// normalizeSQLiteColumns maps table_info rows onto Column. A lone INTEGER
// primary key aliases the rowid and is reported as auto_increment.
func normalizeSQLiteColumns(infos []sqliteColumnInfo) []Column {
	pkCount := 0
	for _, ci := range infos {
		if ci.pk > 0 {
			pkCount++
		}
	}
	cols := make([]Column, 0, len(infos))
	for _, ci := range infos {
		c := Column{
			Field: ci.name,
			Type:  ci.typ,
			Null:  ci.notNull == 0 && ci.pk == 0,
		}
		if ci.pk > 0 {
			c.Key = KeyPrimary
			if pkCount == 1 && strings.EqualFold(ci.typ, "INTEGER") {
				c.Extra = ExtraAutoIncr
			}
		}
		if ci.dflt.Valid {
			c.Default = strPtr(ci.dflt.String)
		}
		cols = append(cols, c)
	}
	return cols
}

func (d *SQLiteDriver) ListTables(ctx context.Context, conn *Connection) ([]string, error) {
	return scanStrings(ctx, conn, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

// Optimize runs ANALYZE then VACUUM. VACUUM cannot run inside a transaction.
func (d *SQLiteDriver) Optimize(ctx context.Context, conn *Connection) error {
	if conn.InTransaction() {
		return newValidationError("optimize", "cannot VACUUM inside a transaction")
	}
	for _, q := range []string{"ANALYZE", "VACUUM"} {
		if _, err := conn.SQLConn().ExecContext(ctx, q); err != nil {
			return newExecutionError("optimize", q, err)
		}
	}
	return nil
}

func (d *SQLiteDriver) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func (d *SQLiteDriver) Grammar(*Config) schema.Grammar {
	return schema.NewSQLiteGrammar()
}
