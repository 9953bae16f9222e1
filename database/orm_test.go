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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/logbie/schema"
)

func newTestORM(t *testing.T, mutate ...func(cfg *Config)) *ORM {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}
	orm, err := New(context.Background(), cfg, WithLogger(NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Close() })
	return orm
}

func createUsers(t *testing.T, orm *ORM) {
	t.Helper()
	err := orm.Schema().Create(context.Background(), "users", func(b *schema.Blueprint) {
		b.ID()
		b.String("username").Unique()
		b.Boolean("active").Default(true)
	})
	require.NoError(t, err)
}

func countRows(t *testing.T, orm *ORM, table string) int64 {
	t.Helper()
	rows, err := orm.Select(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	require.NoError(t, err)
	n, ok := rows[0].Int64("n")
	require.True(t, ok)
	return n
}

func TestCRUDScenario(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	id, err := orm.Create(ctx, "users", Data{"username": "alice"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	rows, err := orm.Read(ctx, "users", Conditions{"username": "alice"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []Row{{"id": int64(1), "username": "alice", "active": true}}, rows)

	n, err := orm.Update(ctx, "users", Data{"active": false}, Conditions{"id": 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err = orm.Read(ctx, "users", Conditions{"id": id}, []string{"active"}, nil)
	require.NoError(t, err)
	require.Equal(t, []Row{{"active": false}}, rows)

	n, err = orm.Delete(ctx, "users", Conditions{"id": id})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, int64(0), countRows(t, orm, "users"))
}

func TestUnconditionalWritesAreRefused(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)
	_, err := orm.Create(ctx, "users", Data{"username": "bob"})
	require.NoError(t, err)

	var verr *ValidationError
	_, err = orm.Update(ctx, "users", Data{"active": false}, Conditions{})
	require.True(t, errors.As(err, &verr))
	_, err = orm.Update(ctx, "users", Data{"active": false}, nil)
	require.True(t, errors.As(err, &verr))
	_, err = orm.Delete(ctx, "users", nil)
	require.True(t, errors.As(err, &verr))
	_, err = orm.Create(ctx, "users", Data{})
	require.True(t, errors.As(err, &verr))

	rows, err := orm.Read(ctx, "users", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Bool("active"))
}

// countingDriver counts the transaction primitives that reach the backend.
type countingDriver struct {
	Driver
	begins, commits, rollbacks int
}

func (d *countingDriver) BeginTransaction(ctx context.Context, conn *Connection) error {
	d.begins++
	return d.Driver.BeginTransaction(ctx, conn)
}

func (d *countingDriver) Commit(ctx context.Context, conn *Connection) error {
	d.commits++
	return d.Driver.Commit(ctx, conn)
}

func (d *countingDriver) Rollback(ctx context.Context, conn *Connection) error {
	d.rollbacks++
	return d.Driver.Rollback(ctx, conn)
}

func newCountingORM(t *testing.T) (*ORM, *countingDriver) {
	t.Helper()
	drv := &countingDriver{Driver: NewSQLiteDriver()}
	orm, err := NewWithDriver(context.Background(), drv, DefaultConfig(), WithLogger(NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Close() })
	return orm, drv
}

func TestNestedTransactionsCoalesce(t *testing.T) {
	ctx := context.Background()
	orm, drv := newCountingORM(t)
	createUsers(t, orm)

	require.NoError(t, orm.Begin(ctx))
	require.NoError(t, orm.Begin(ctx))
	require.Equal(t, 2, orm.TransactionLevel())
	_, err := orm.Create(ctx, "users", Data{"username": "alice"})
	require.NoError(t, err)

	require.NoError(t, orm.Commit(ctx))
	require.True(t, orm.InTransaction())
	require.Equal(t, 0, drv.commits)
	require.NoError(t, orm.Commit(ctx))
	require.False(t, orm.InTransaction())

	require.Equal(t, 1, drv.begins)
	require.Equal(t, 1, drv.commits)
	require.Equal(t, int64(1), countRows(t, orm, "users"))
}

func TestRollbackUnwindsEveryLevel(t *testing.T) {
	ctx := context.Background()
	orm, drv := newCountingORM(t)
	createUsers(t, orm)

	require.NoError(t, orm.Begin(ctx))
	_, err := orm.Create(ctx, "users", Data{"username": "outer"})
	require.NoError(t, err)
	require.NoError(t, orm.Begin(ctx))
	_, err = orm.Create(ctx, "users", Data{"username": "inner"})
	require.NoError(t, err)

	require.NoError(t, orm.Rollback(ctx))
	require.Equal(t, 0, orm.TransactionLevel())
	require.Equal(t, 1, drv.rollbacks)
	require.Equal(t, int64(0), countRows(t, orm, "users"))

	err = orm.Rollback(ctx)
	require.True(t, errors.Is(err, ErrNoTransaction))
	err = orm.Commit(ctx)
	var serr *TransactionStateError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "commit", serr.Op)
}

func TestSavepointsRollBackOnlyInnerLevel(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t, func(cfg *Config) { cfg.Savepoints = true })
	createUsers(t, orm)

	require.NoError(t, orm.Begin(ctx))
	_, err := orm.Create(ctx, "users", Data{"username": "kept"})
	require.NoError(t, err)

	require.NoError(t, orm.Begin(ctx))
	_, err = orm.Create(ctx, "users", Data{"username": "discarded"})
	require.NoError(t, err)
	require.NoError(t, orm.Rollback(ctx))
	require.Equal(t, 1, orm.TransactionLevel())

	require.NoError(t, orm.Begin(ctx))
	_, err = orm.Create(ctx, "users", Data{"username": "released"})
	require.NoError(t, err)
	require.NoError(t, orm.Commit(ctx))

	require.NoError(t, orm.Commit(ctx))
	rows, err := orm.Read(ctx, "users", nil, []string{"username"}, &ReadOptions{OrderBy: "id"})
	require.NoError(t, err)
	require.Equal(t, []Row{{"username": "kept"}, {"username": "released"}}, rows)
}

func TestBatchOperation(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	err := orm.BatchOperation(ctx, func(ctx context.Context, o *ORM) error {
		if _, err := o.Create(ctx, "users", Data{"username": "a"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")
	require.Equal(t, 0, orm.TransactionLevel())
	require.Equal(t, int64(0), countRows(t, orm, "users"))

	require.Panics(t, func() {
		_ = orm.BatchOperation(ctx, func(ctx context.Context, o *ORM) error {
			_, _ = o.Create(ctx, "users", Data{"username": "b"})
			panic("boom")
		})
	})
	require.Equal(t, 0, orm.TransactionLevel())
	require.Equal(t, int64(0), countRows(t, orm, "users"))

	id, err := Batch(ctx, orm, func(ctx context.Context, o *ORM) (int64, error) {
		return o.Create(ctx, "users", Data{"username": "c"})
	})
	require.NoError(t, err)
	// the rolled back inserts also rolled back the AUTOINCREMENT sequence
	require.Equal(t, int64(1), id)
	require.Equal(t, int64(1), countRows(t, orm, "users"))
}

func TestNestedBatchFailureUnwindsOuter(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	err := orm.BatchOperation(ctx, func(ctx context.Context, o *ORM) error {
		if _, err := o.Create(ctx, "users", Data{"username": "outer"}); err != nil {
			return err
		}
		return o.BatchOperation(ctx, func(ctx context.Context, o *ORM) error {
			_, err := o.Create(ctx, "users", Data{"username": "outer"})
			return err
		})
	})
	require.Error(t, err)
	require.True(t, IsKind(err, DuplicateKeyErr))
	require.Equal(t, 0, orm.TransactionLevel())
	require.Equal(t, int64(0), countRows(t, orm, "users"))
}

func TestDropIfExistsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	builder := orm.Schema()

	require.NoError(t, builder.DropIfExists(ctx, "absent"))
	require.NoError(t, builder.DropIfExists(ctx, "absent"))

	createUsers(t, orm)
	require.NoError(t, builder.DropIfExists(ctx, "users"))
	require.NoError(t, builder.DropIfExists(ctx, "users"))
	ok, err := orm.HasTable(ctx, "users")
	require.NoError(t, err)
	require.False(t, ok)

	err = builder.Drop(ctx, "users")
	require.True(t, IsKind(err, NoTableErr))
}

func TestSchemaCacheIsStaleUntilCleared(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	cols, err := orm.TableSchema(ctx, "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	require.NoError(t, orm.ExecDDL(ctx, "ALTER TABLE users ADD COLUMN email TEXT"))
	cols, err = orm.TableSchema(ctx, "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	orm.ClearSchemaCache("users")
	cols, err = orm.TableSchema(ctx, "users")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	require.Equal(t, "email", cols[3].Field)
	require.True(t, cols[3].Null)
}

func TestTableSchemaNormalization(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	cols, err := orm.TableSchema(ctx, "users")
	require.NoError(t, err)

	require.Equal(t, "id", cols[0].Field)
	require.Equal(t, KeyPrimary, cols[0].Key)
	require.Equal(t, ExtraAutoIncr, cols[0].Extra)
	require.False(t, cols[0].Null)

	require.Equal(t, "username", cols[1].Field)
	require.Equal(t, "VARCHAR(255)", cols[1].Type)
	require.Empty(t, cols[1].Key)
	require.False(t, cols[1].Null)

	require.NotNil(t, cols[2].Default)
	require.Equal(t, "1", *cols[2].Default)

	_, err = orm.TableSchema(ctx, "missing")
	require.True(t, IsKind(err, NoTableErr))
}

func TestBatchCreateMatchesCreate(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	for _, table := range []string{"one_by_one", "batched"} {
		require.NoError(t, orm.Schema().Create(ctx, table, func(b *schema.Blueprint) {
			b.ID()
			b.String("name")
			b.Integer("score")
		}))
	}

	input := [][]interface{}{{"a", 1}, {"b", 2}, {"c", 3}}
	for _, r := range input {
		_, err := orm.Create(ctx, "one_by_one", Data{"name": r[0], "score": r[1]})
		require.NoError(t, err)
	}
	n, err := orm.BatchCreate(ctx, "batched", []string{"name", "score"}, input)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	want, err := orm.Read(ctx, "one_by_one", nil, []string{"name", "score"}, nil)
	require.NoError(t, err)
	got, err := orm.Read(ctx, "batched", nil, []string{"name", "score"}, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, want, got)

	_, err = orm.BatchCreate(ctx, "batched", []string{"name", "score"}, [][]interface{}{{"x"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestBatchCreateChunksLargeInput(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	require.NoError(t, orm.Schema().Create(ctx, "numbers", func(b *schema.Blueprint) {
		b.Integer("n")
	}))

	rows := make([][]interface{}, 1500)
	for i := range rows {
		rows[i] = []interface{}{i}
	}
	n, err := orm.BatchCreate(ctx, "numbers", []string{"n"}, rows)
	require.NoError(t, err)
	require.Equal(t, int64(1500), n)
	require.Equal(t, int64(1500), countRows(t, orm, "numbers"))
	require.Equal(t, 0, orm.TransactionLevel())
}

func TestQueryShapes(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)
	_, err := orm.Create(ctx, "users", Data{"username": "alice"})
	require.NoError(t, err)

	res, err := orm.Query(ctx, "  select username FROM users WHERE id = ?", 1)
	require.NoError(t, err)
	require.True(t, res.IsSelect)
	require.Equal(t, []Row{{"username": "alice"}}, res.Rows)

	res, err = orm.Query(ctx, "UPDATE users SET active = ? WHERE username = ?", false, "alice")
	require.NoError(t, err)
	require.False(t, res.IsSelect)
	require.Equal(t, int64(1), res.RowsAffected)

	// A CTE does not start with SELECT and is treated as a statement.
	res, err = orm.Query(ctx, "WITH x AS (SELECT 1 AS n) SELECT n FROM x")
	require.NoError(t, err)
	require.False(t, res.IsSelect)
	require.Empty(t, res.Rows)

	rows, err := orm.Select(ctx, "WITH x AS (SELECT 1 AS n) SELECT n FROM x")
	require.NoError(t, err)
	require.Equal(t, []Row{{"n": int64(1)}}, rows)

	_, err = orm.Query(ctx, "SELEC broken")
	var eerr *ExecutionError
	require.True(t, errors.As(err, &eerr))
}

func TestStatementCache(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	for i := 0; i < 3; i++ {
		_, err := orm.Read(ctx, "users", Conditions{"username": "x"}, nil, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 1, orm.CachedStatements())

	_, err := orm.Read(ctx, "users", Conditions{"id": 1}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, orm.CachedStatements())

	orm.ClearStatementCache()
	require.Equal(t, 0, orm.CachedStatements())
}

func TestReadOptions(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)
	_, err := orm.BatchCreate(ctx, "users", []string{"username"}, [][]interface{}{{"a"}, {"b"}, {"c"}, {"d"}})
	require.NoError(t, err)

	rows, err := orm.Read(ctx, "users", nil, []string{"username"}, &ReadOptions{OrderBy: "id", OrderDirection: "desc", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []Row{{"username": "d"}, {"username": "c"}}, rows)

	rows, err = orm.Read(ctx, "users", nil, []string{"username"}, &ReadOptions{OrderBy: "id", Offset: 3})
	require.NoError(t, err)
	require.Equal(t, []Row{{"username": "d"}}, rows)

	star, err := orm.Read(ctx, "users", Conditions{"username": "a"}, []string{"*"}, nil)
	require.NoError(t, err)
	all, err := orm.Read(ctx, "users", Conditions{"username": "a"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, star, 1)
	require.Equal(t, all, star)
	require.Contains(t, star[0], "active")

	_, err = orm.Read(ctx, "users", nil, nil, &ReadOptions{OrderBy: "id", OrderDirection: "sideways"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestNilConditionMatchesNull(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	require.NoError(t, orm.Schema().Create(ctx, "notes", func(b *schema.Blueprint) {
		b.ID()
		b.Text("body").Nullable()
	}))
	_, err := orm.Create(ctx, "notes", Data{"body": nil})
	require.NoError(t, err)
	_, err = orm.Create(ctx, "notes", Data{"body": "text"})
	require.NoError(t, err)

	rows, err := orm.Read(ctx, "notes", Conditions{"body": nil}, []string{"id"}, nil)
	require.NoError(t, err)
	require.Equal(t, []Row{{"id": int64(1)}}, rows)
}

func TestGetManyToMany(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)
	require.NoError(t, orm.Schema().Create(ctx, "roles", func(b *schema.Blueprint) {
		b.ID()
		b.String("name")
	}))
	require.NoError(t, orm.Schema().Create(ctx, "role_user", func(b *schema.Blueprint) {
		b.ID()
		b.BigInteger("user_id")
		b.BigInteger("role_id")
		b.Boolean("primary_role").Default(false)
	}))

	_, err := orm.BatchCreate(ctx, "users", []string{"username"}, [][]interface{}{{"alice"}, {"bob"}})
	require.NoError(t, err)
	_, err = orm.BatchCreate(ctx, "roles", []string{"name"}, [][]interface{}{{"admin"}, {"editor"}, {"viewer"}})
	require.NoError(t, err)
	_, err = orm.BatchCreate(ctx, "role_user", []string{"user_id", "role_id", "primary_role"},
		[][]interface{}{{1, 1, true}, {1, 2, false}, {2, 3, true}})
	require.NoError(t, err)

	rows, err := orm.GetManyToMany(ctx, "users", "roles", "role_user", Conditions{"id": 1})
	require.NoError(t, err)
	require.ElementsMatch(t, []Row{{"id": int64(1), "name": "admin"}, {"id": int64(2), "name": "editor"}}, rows)

	rows, err = orm.GetManyToMany(ctx, "users", "roles", "role_user", Conditions{"id": 1, "primary_role": true})
	require.NoError(t, err)
	require.Equal(t, []Row{{"id": int64(1), "name": "admin"}}, rows)

	// "id" stays the source key; the pivot's own id needs a qualified key.
	rows, err = orm.GetManyToMany(ctx, "users", "roles", "role_user", Conditions{"role_user.id": 3})
	require.NoError(t, err)
	require.Equal(t, []Row{{"id": int64(3), "name": "viewer"}}, rows)

	rows, err = orm.GetManyToMany(ctx, "users", "roles", "role_user", Conditions{"id": 1, "role_user.id": 2})
	require.NoError(t, err)
	require.Equal(t, []Row{{"id": int64(2), "name": "editor"}}, rows)

	require.Equal(t, "user_id", ForeignKeyName("users"))
	require.Equal(t, "category_id", ForeignKeyName("categories"))
}

func TestTablesAndIntrospection(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	tables, err := orm.Tables(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"users"}, tables)

	ok, err := orm.HasTable(ctx, "users")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = orm.Schema().HasColumn(ctx, "users", "username")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = orm.HasColumn(ctx, "ghosts", "id")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecutionErrorsAreClassified(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	_, err := orm.Create(ctx, "users", Data{"username": "alice"})
	require.NoError(t, err)
	_, err = orm.Create(ctx, "users", Data{"username": "alice"})

	var eerr *ExecutionError
	require.True(t, errors.As(err, &eerr))
	require.Equal(t, DuplicateKeyErr, eerr.Kind)
	require.Equal(t, "create", eerr.Op)

	_, err = orm.Read(ctx, "nope", nil, nil, nil)
	require.True(t, IsKind(err, NoTableErr))
}

func TestOptimize(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	createUsers(t, orm)

	require.NoError(t, orm.Optimize(ctx))

	require.NoError(t, orm.Begin(ctx))
	require.Error(t, orm.Optimize(ctx))
	require.NoError(t, orm.Rollback(ctx))
}

func TestClosedORM(t *testing.T) {
	ctx := context.Background()
	orm := newTestORM(t)
	require.NoError(t, orm.Ping(ctx))
	require.Equal(t, 1, orm.Stats().MaxOpenConns)
	require.NoError(t, orm.Close())
	require.NoError(t, orm.Close())

	_, err := orm.Read(ctx, "users", nil, nil, nil)
	require.True(t, errors.Is(err, ErrClosed))
	require.True(t, errors.Is(orm.Begin(ctx), ErrClosed))
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = New(ctx, &Config{Driver: "oracle"})
	require.True(t, errors.Is(err, ErrUnknownDriver))
}

func TestSQLiteFileDatabaseCreatesDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.db")
	orm := newTestORM(t, func(cfg *Config) { cfg.Database = path })
	createUsers(t, orm)

	_, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)

	rows, err := orm.Select(ctx, "PRAGMA journal_mode")
	require.NoError(t, err)
	require.Equal(t, "wal", rows[0].String("journal_mode"))

	rows, err = orm.Select(ctx, "PRAGMA foreign_keys")
	require.NoError(t, err)
	n, _ := rows[0].Int64("foreign_keys")
	require.Equal(t, int64(1), n)
}

func TestSQLiteUnwritablePathIsConnectionError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(file, "sub", "app.db")
	_, err := New(context.Background(), cfg, WithLogger(NopLogger()))
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "sqlite", cerr.Driver)
}
