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
	"strings"

	"github.com/tomoncle/logbie/schema"
)

// Driver is the contract every backend implements. Drivers are stateless;
// all per-connection state lives in the Connection they return.
type Driver interface {
	// Name is the stable identifier of the backend ("mysql", "sqlite", ...).
	Name() string
	// BuildDSN produces the connection string for cfg without any I/O.
	BuildDSN(cfg *Config) (string, error)
	// Connect opens and configures a connection. Failures are *ConnectionError.
	Connect(ctx context.Context, cfg *Config, logger Logger) (*Connection, error)
	// ConfigureConnection applies session settings or pragmas. Safe to call again.
	ConfigureConnection(ctx context.Context, conn *Connection, cfg *Config) error
	Prepare(ctx context.Context, conn *Connection, query string) (*sql.Stmt, error)
	LastInsertID(ctx context.Context, conn *Connection, sequence string) (string, error)
	BeginTransaction(ctx context.Context, conn *Connection) error
	Commit(ctx context.Context, conn *Connection) error
	Rollback(ctx context.Context, conn *Connection) error
	// TableSchema returns the normalized column descriptors of table.
	TableSchema(ctx context.Context, conn *Connection, table string) ([]Column, error)
	ListTables(ctx context.Context, conn *Connection) ([]string, error)
	// Optimize runs backend maintenance; a no-op where none exists.
	Optimize(ctx context.Context, conn *Connection) error
	// Rebind rewrites ? placeholders into the backend's native form.
	Rebind(query string) string
	// LimitOffset renders a LIMIT/OFFSET clause; zero values are omitted.
	LimitOffset(limit, offset int) string
	Grammar(cfg *Config) schema.Grammar
}

// Column is the backend-neutral description of one table column.
type Column struct {
	Field   string  `json:"field"`
	Type    string  `json:"type"`
	Null    bool    `json:"null"`
	Key     string  `json:"key"` // "PRI" or ""
	Default *string `json:"default"`
	Extra   string  `json:"extra"` // "auto_increment" or ""
}

const (
	KeyPrimary    = "PRI"
	ExtraAutoIncr = "auto_increment"
)

func (c Column) IsPrimary() bool       { return c.Key == KeyPrimary }
func (c Column) IsAutoIncrement() bool { return strings.Contains(c.Extra, ExtraAutoIncr) }

// baseDriver holds what every driver does the same way.
type baseDriver struct {
	name string
}

func (d baseDriver) Name() string { return d.name }

func (d baseDriver) Prepare(ctx context.Context, conn *Connection, query string) (*sql.Stmt, error) {
	stmt, err := conn.SQLConn().PrepareContext(ctx, query)
	if err != nil {
		return nil, newExecutionError("prepare", query, err)
	}
	return stmt, nil
}

func (d baseDriver) BeginTransaction(ctx context.Context, conn *Connection) error {
	if err := conn.beginTx(ctx); err != nil {
		return newExecutionError("begin", "", err)
	}
	return nil
}

func (d baseDriver) Commit(_ context.Context, conn *Connection) error {
	if err := conn.commitTx(); err != nil {
		if _, ok := err.(*TransactionStateError); ok {
			return err
		}
		return newExecutionError("commit", "", err)
	}
	return nil
}

func (d baseDriver) Rollback(_ context.Context, conn *Connection) error {
	if err := conn.rollbackTx(); err != nil {
		if _, ok := err.(*TransactionStateError); ok {
			return err
		}
		return newExecutionError("rollback", "", err)
	}
	return nil
}

func (d baseDriver) Rebind(query string) string { return query }

func (d baseDriver) LimitOffset(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

// scalar reads a single value from query on conn's current scope.
func scalar(ctx context.Context, conn *Connection, query string, args ...interface{}) (string, error) {
	var v sql.NullString
	if err := conn.IDB().QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return "", newExecutionError("query", query, err)
	}
	return v.String, nil
}

func strPtr(s string) *string { return &s }

// maskDSN hides password inside dsn for logs and error messages.
func maskDSN(dsn, password string) string {
	if password == "" {
		return dsn
	}
	return strings.ReplaceAll(dsn, password, "****")
}
