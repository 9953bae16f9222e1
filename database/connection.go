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
	"time"

	"github.com/uptrace/bun"
	bunschema "github.com/uptrace/bun/schema"
)

// Connection is the single backend connection owned by one ORM. The pool
// behind it is capped at one connection, which stays pinned for the
// lifetime of the Connection, so session settings and pragmas applied once
// hold for every statement.
type Connection struct {
	driver string
	db     *bun.DB
	conn   bun.Conn
	tx     *bun.Tx
	closed bool
}

// DBStats mirrors database/sql pool stats.
type DBStats struct {
	MaxOpenConns int           `json:"max_open_conns"`
	OpenConns    int           `json:"open_conns"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// openConnection opens sqlDriver with dsn, verifies it and pins the one
// allowed connection.
func openConnection(ctx context.Context, name, sqlDriver, dsn string, dialect bunschema.Dialect, cfg *Config, logger Logger) (*Connection, error) {
	sqldb, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: name, Target: maskDSN(dsn, cfg.Password), Err: err}
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	sqldb.SetConnMaxIdleTime(0)

	db := bun.NewDB(sqldb, dialect)
	for _, h := range queryHooks(cfg, logger) {
		db.AddQueryHook(h)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Driver: name, Target: maskDSN(dsn, cfg.Password), Err: err}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Driver: name, Target: maskDSN(dsn, cfg.Password), Err: err}
	}

	logger.Debug("database connected", "driver", name, "target", maskDSN(dsn, cfg.Password))
	return &Connection{driver: name, db: db, conn: conn}, nil
}

// DB returns the bun handle. Its pool is held by the pinned connection, so
// statements must go through IDB; DB is for dialect and formatter access.
func (c *Connection) DB() *bun.DB { return c.db }

// IDB returns the open transaction when there is one, else the pinned connection.
func (c *Connection) IDB() bun.IDB {
	if c.tx != nil {
		return *c.tx
	}
	return c.conn
}

// SQLConn is the pinned database/sql connection.
func (c *Connection) SQLConn() *sql.Conn { return c.conn.Conn }

// SQLTx is the open database/sql transaction, or nil.
func (c *Connection) SQLTx() *sql.Tx {
	if c.tx == nil {
		return nil
	}
	return c.tx.Tx
}

func (c *Connection) InTransaction() bool { return c.tx != nil }

func (c *Connection) Driver() string { return c.driver }

func (c *Connection) Ping(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	return c.conn.PingContext(ctx)
}

func (c *Connection) Stats() DBStats {
	s := c.db.DB.Stats()
	return DBStats{
		MaxOpenConns: s.MaxOpenConnections,
		OpenConns:    s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// Close rolls back any open transaction and releases the connection.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	connErr := c.conn.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	if connErr != nil {
		return fmt.Errorf("close connection: %w", connErr)
	}
	return nil
}

func (c *Connection) beginTx(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.tx != nil {
		return fmt.Errorf("begin: transaction already active")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = &tx
	return nil
}

func (c *Connection) commitTx() error {
	if c.tx == nil {
		return &TransactionStateError{Op: "commit"}
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

func (c *Connection) rollbackTx() error {
	if c.tx == nil {
		return &TransactionStateError{Op: "rollback"}
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback()
}
