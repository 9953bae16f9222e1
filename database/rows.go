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
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Row is one result row keyed by column name. Text comes back as string,
// BOOLEAN columns as bool, integers as int64.
type Row map[string]interface{}

// String returns the column rendered as text, "" for NULL or absent.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Int64 converts numeric or numeric-text columns.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// QueryResult is what Query returns: Rows for SELECT statements,
// RowsAffected for everything else.
type QueryResult struct {
	Rows         []Row
	RowsAffected int64
	IsSelect     bool
}

// prepare returns the cached statement for query, compiling it once.
func (o *ORM) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := o.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := o.driver.Prepare(ctx, o.conn, query)
	if err != nil {
		return nil, err
	}
	o.stmts[query] = stmt
	return stmt, nil
}

// cacheKey normalizes SQL text to the form used for the statement cache.
func (o *ORM) cacheKey(query string) string {
	return o.driver.Rebind(strings.TrimSpace(query))
}

func (o *ORM) execPrepared(ctx context.Context, op, query string, args []interface{}) (sql.Result, error) {
	key := o.cacheKey(query)
	ctx, event := o.tracer.before(ctx, key, args)
	stmt, err := o.prepare(ctx, key)
	if err != nil {
		o.tracer.after(ctx, event, nil, err)
		return nil, err
	}
	var res sql.Result
	if tx := o.conn.SQLTx(); tx != nil {
		ts := tx.StmtContext(ctx, stmt)
		res, err = ts.ExecContext(ctx, args...)
		_ = ts.Close()
	} else {
		res, err = stmt.ExecContext(ctx, args...)
	}
	o.tracer.after(ctx, event, res, err)
	if err != nil {
		return nil, newExecutionError(op, key, err)
	}
	return res, nil
}

func (o *ORM) queryPrepared(ctx context.Context, op, query string, args []interface{}) ([]Row, error) {
	key := o.cacheKey(query)
	ctx, event := o.tracer.before(ctx, key, args)
	stmt, err := o.prepare(ctx, key)
	if err != nil {
		o.tracer.after(ctx, event, nil, err)
		return nil, err
	}
	var out []Row
	if tx := o.conn.SQLTx(); tx != nil {
		ts := tx.StmtContext(ctx, stmt)
		out, err = queryRows(ctx, ts, args)
		_ = ts.Close()
	} else {
		out, err = queryRows(ctx, stmt, args)
	}
	o.tracer.after(ctx, event, nil, err)
	if err != nil {
		return nil, newExecutionError(op, key, err)
	}
	return out, nil
}

// rawExec bypasses the statement cache and bun's formatter.
func (o *ORM) rawExec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, event := o.tracer.before(ctx, query, args)
	var res sql.Result
	var err error
	if tx := o.conn.SQLTx(); tx != nil {
		res, err = tx.ExecContext(ctx, query, args...)
	} else {
		res, err = o.conn.SQLConn().ExecContext(ctx, query, args...)
	}
	o.tracer.after(ctx, event, res, err)
	return res, err
}

func queryRows(ctx context.Context, stmt *sql.Stmt, args []interface{}) ([]Row, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows drains rows into Row maps.
func scanRows(rows *sql.Rows) ([]Row, error) {
	boolCols := map[string]bool{}
	if types, err := rows.ColumnTypes(); err == nil {
		for _, ct := range types {
			switch strings.ToUpper(ct.DatabaseTypeName()) {
			case "BOOLEAN", "BOOL":
				boolCols[ct.Name()] = true
			}
		}
	}

	out := make([]Row, 0)
	for rows.Next() {
		m := make(map[string]interface{})
		if err := sqlx.MapScan(rows, m); err != nil {
			return nil, err
		}
		for k, v := range m {
			m[k] = normalizeValue(v, boolCols[k])
		}
		out = append(out, Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(v interface{}, isBool bool) interface{} {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if isBool {
			return s == "1" || strings.EqualFold(s, "true") || s == "t"
		}
		return s
	case int64:
		if isBool {
			return val != 0
		}
	}
	return v
}
