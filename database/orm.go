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
	"github.com/uptrace/bun"
)

// ORM is the facade application code talks to. It owns exactly one backend
// connection, a prepared-statement cache, a table schema cache and the
// nested transaction counter.
//
// An ORM is confined to one goroutine: none of its state is synchronized.
// Give each worker its own instance.
type ORM struct {
	cfg     *Config
	driver  Driver
	conn    *Connection
	grammar schema.Grammar
	logger  Logger
	tracer  *tracer

	stmts   map[string]*sql.Stmt
	schemas map[string][]Column
	level   int
	closed  bool
}

type options struct {
	logger  Logger
	factory *DriverFactory
}

type Option func(*options)

func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFactory resolves Config.Driver on f instead of the default factory.
func WithFactory(f *DriverFactory) Option {
	return func(o *options) { o.factory = f }
}

// New resolves cfg.Driver through the driver factory and connects.
func New(ctx context.Context, cfg *Config, opts ...Option) (*ORM, error) {
	if cfg == nil || strings.TrimSpace(cfg.Driver) == "" {
		return nil, newValidationError("new", "config must name a driver")
	}
	o := applyOptions(opts)
	driver, err := o.factory.Create(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return NewWithDriver(ctx, driver, cfg, opts...)
}

// NewWithDriver connects with a ready driver instance.
func NewWithDriver(ctx context.Context, driver Driver, cfg *Config, opts ...Option) (*ORM, error) {
	if driver == nil {
		return nil, newValidationError("new", "driver is nil")
	}
	if cfg == nil {
		cfg = &Config{Driver: driver.Name()}
	}
	o := applyOptions(opts)
	cfg = cfg.WithDefaults()
	if _, err := ParseQueryLogMode(cfg.QueryLog); err != nil {
		return nil, newValidationError("new", "%v", err)
	}

	conn, err := driver.Connect(ctx, cfg, o.logger)
	if err != nil {
		o.logger.Error("database connection failed", "driver", driver.Name(), "error", err)
		return nil, err
	}
	return &ORM{
		cfg:     cfg,
		driver:  driver,
		conn:    conn,
		grammar: driver.Grammar(cfg),
		logger:  o.logger,
		tracer:  &tracer{db: conn.DB(), hooks: queryHooks(cfg, o.logger)},
		stmts:   make(map[string]*sql.Stmt),
		schemas: make(map[string][]Column),
	}, nil
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = GetLogger()
	}
	if o.factory == nil {
		o.factory = defaultFactory
	}
	return o
}

func (o *ORM) Driver() Driver { return o.driver }

func (o *ORM) DriverName() string { return o.driver.Name() }

func (o *ORM) Logger() Logger { return o.logger }

// Config returns a copy of the effective configuration.
func (o *ORM) Config() Config { return *o.cfg }

func (o *ORM) Grammar() schema.Grammar { return o.grammar }

// Schema returns a schema builder executing through this ORM.
func (o *ORM) Schema() *schema.Builder {
	return schema.NewBuilder(o, o.grammar)
}

// IDB exposes the current bun handle: the open transaction if any, else the
// pinned connection. Work done through it joins the ORM's transaction.
func (o *ORM) IDB() bun.IDB { return o.conn.IDB() }

func (o *ORM) Ping(ctx context.Context) error { return o.conn.Ping(ctx) }

func (o *ORM) Stats() DBStats { return o.conn.Stats() }

func (o *ORM) check(op string) error {
	if o.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return nil
}

// TableSchema returns the column descriptors of table. The first result is
// cached and returned as-is until ClearSchemaCache.
func (o *ORM) TableSchema(ctx context.Context, table string) ([]Column, error) {
	if err := o.check("table schema"); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, newValidationError("table schema", "table name is required")
	}
	if cols, ok := o.schemas[table]; ok {
		return cols, nil
	}
	cols, err := o.driver.TableSchema(ctx, o.conn, table)
	if err != nil {
		o.logger.Error("table schema failed", "table", table, "error", err)
		return nil, err
	}
	o.schemas[table] = cols
	return cols, nil
}

// ClearSchemaCache drops the cached schema of tables, or of every table
// when none are named.
func (o *ORM) ClearSchemaCache(tables ...string) {
	if len(tables) == 0 {
		o.schemas = make(map[string][]Column)
		return
	}
	for _, t := range tables {
		delete(o.schemas, t)
	}
}

// ClearStatementCache closes and forgets every prepared statement.
func (o *ORM) ClearStatementCache() {
	for q, stmt := range o.stmts {
		if err := stmt.Close(); err != nil {
			o.logger.Warn("close prepared statement", "query", q, "error", err)
		}
	}
	o.stmts = make(map[string]*sql.Stmt)
}

// CachedStatements reports how many prepared statements are cached.
func (o *ORM) CachedStatements() int { return len(o.stmts) }

func (o *ORM) Tables(ctx context.Context) ([]string, error) {
	if err := o.check("tables"); err != nil {
		return nil, err
	}
	return o.driver.ListTables(ctx, o.conn)
}

func (o *ORM) HasTable(ctx context.Context, table string) (bool, error) {
	tables, err := o.Tables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// HasColumn asks the backend directly, bypassing the schema cache.
func (o *ORM) HasColumn(ctx context.Context, table, column string) (bool, error) {
	if err := o.check("has column"); err != nil {
		return false, err
	}
	cols, err := o.driver.TableSchema(ctx, o.conn, table)
	if err != nil {
		if IsKind(err, NoTableErr) {
			return false, nil
		}
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Field, column) {
			return true, nil
		}
	}
	return false, nil
}

// Optimize runs the driver's maintenance routine.
func (o *ORM) Optimize(ctx context.Context) error {
	if err := o.check("optimize"); err != nil {
		return err
	}
	if err := o.driver.Optimize(ctx, o.conn); err != nil {
		o.logger.Error("optimize failed", "driver", o.driver.Name(), "error", err)
		return err
	}
	return nil
}

// ExecDDL runs query on the raw, uncached path. It satisfies schema.Executor.
func (o *ORM) ExecDDL(ctx context.Context, query string) error {
	if err := o.check("exec ddl"); err != nil {
		return err
	}
	if _, err := o.rawExec(ctx, query); err != nil {
		o.logger.Error("ddl failed", "query", query, "error", err)
		return newExecutionError("ddl", query, err)
	}
	return nil
}

// ExecScript runs a one-off statement without caching it and reports the
// affected row count. Seed files go through here.
func (o *ORM) ExecScript(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if err := o.check("exec script"); err != nil {
		return 0, err
	}
	res, err := o.rawExec(ctx, query, args...)
	if err != nil {
		return 0, newExecutionError("exec script", query, err)
	}
	return affected(res)
}

// Close rolls back an unfinished transaction, closes cached statements and
// releases the connection. Further calls fail with ErrClosed.
func (o *ORM) Close() error {
	if o.closed {
		return nil
	}
	if o.level > 0 {
		o.logger.Warn("closing with an open transaction, rolling back", "level", o.level)
		o.level = 0
	}
	o.ClearStatementCache()
	o.schemas = make(map[string][]Column)
	o.closed = true
	return o.conn.Close()
}
