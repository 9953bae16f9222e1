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
	"sort"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"
)

// Data maps column names to values for inserts and updates.
type Data = map[string]interface{}

// Conditions are AND-joined equality filters. A nil value matches NULL.
type Conditions = map[string]interface{}

// ReadOptions shape a Read. Zero values leave the clause out.
type ReadOptions struct {
	OrderBy        string
	OrderDirection string // ASC or DESC
	Limit          int
	Offset         int
}

// maxBatchParams keeps multi-row inserts under SQLite's default
// host parameter limit.
const maxBatchParams = 999

// Create inserts data into table and returns the new row's identity.
func (o *ORM) Create(ctx context.Context, table string, data Data) (int64, error) {
	if err := o.check("create"); err != nil {
		return 0, err
	}
	if table == "" {
		return 0, newValidationError("create", "table name is required")
	}
	if len(data) == 0 {
		return 0, newValidationError("create", "data is required")
	}

	cols := sortedKeys(data)
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = data[c]
	}
	query := "INSERT INTO " + o.quote(table) + " (" + o.quoteList(cols) + ") VALUES (" + placeholders(len(cols)) + ")"
	if _, err := o.execPrepared(ctx, "create", query, args); err != nil {
		o.logger.Error("create failed", "table", table, "error", err)
		return 0, err
	}

	raw, err := o.driver.LastInsertID(ctx, o.conn, "")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newExecutionError("create", query, err)
	}
	return id, nil
}

// Read selects columns from table rows matching conditions. Empty columns
// or a lone "*" select every column.
func (o *ORM) Read(ctx context.Context, table string, conditions Conditions, columns []string, opts *ReadOptions) ([]Row, error) {
	if err := o.check("read"); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, newValidationError("read", "table name is required")
	}

	sel := "*"
	if len(columns) > 0 && !(len(columns) == 1 && strings.TrimSpace(columns[0]) == "*") {
		sel = o.quoteList(columns)
	}
	var b strings.Builder
	b.WriteString("SELECT " + sel + " FROM " + o.quote(table))
	where, args := o.where(conditions)
	b.WriteString(where)

	if opts != nil {
		if opts.OrderBy != "" {
			dir := strings.ToUpper(strings.TrimSpace(opts.OrderDirection))
			if dir == "" {
				dir = "ASC"
			}
			if dir != "ASC" && dir != "DESC" {
				return nil, newValidationError("read", "order direction must be ASC or DESC, got %q", opts.OrderDirection)
			}
			b.WriteString(" ORDER BY " + o.quote(opts.OrderBy) + " " + dir)
		}
		if opts.Limit < 0 || opts.Offset < 0 {
			return nil, newValidationError("read", "limit and offset must not be negative")
		}
		b.WriteString(o.driver.LimitOffset(opts.Limit, opts.Offset))
	}

	rows, err := o.queryPrepared(ctx, "read", b.String(), args)
	if err != nil {
		o.logger.Error("read failed", "table", table, "error", err)
		return nil, err
	}
	return rows, nil
}

// Update changes rows matching conditions. Empty conditions are refused so
// a whole table is never rewritten by accident.
func (o *ORM) Update(ctx context.Context, table string, data Data, conditions Conditions) (int64, error) {
	if err := o.check("update"); err != nil {
		return 0, err
	}
	if table == "" {
		return 0, newValidationError("update", "table name is required")
	}
	if len(data) == 0 {
		return 0, newValidationError("update", "data is required")
	}
	if len(conditions) == 0 {
		return 0, newValidationError("update", "conditions are required")
	}

	cols := sortedKeys(data)
	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+len(conditions))
	for i, c := range cols {
		sets[i] = o.quote(c) + " = ?"
		args = append(args, data[c])
	}
	where, whereArgs := o.where(conditions)
	query := "UPDATE " + o.quote(table) + " SET " + strings.Join(sets, ", ") + where

	res, err := o.execPrepared(ctx, "update", query, append(args, whereArgs...))
	if err != nil {
		o.logger.Error("update failed", "table", table, "error", err)
		return 0, err
	}
	return affected(res)
}

// Delete removes rows matching conditions, which must not be empty.
func (o *ORM) Delete(ctx context.Context, table string, conditions Conditions) (int64, error) {
	if err := o.check("delete"); err != nil {
		return 0, err
	}
	if table == "" {
		return 0, newValidationError("delete", "table name is required")
	}
	if len(conditions) == 0 {
		return 0, newValidationError("delete", "conditions are required")
	}

	where, args := o.where(conditions)
	query := "DELETE FROM " + o.quote(table) + where
	res, err := o.execPrepared(ctx, "delete", query, args)
	if err != nil {
		o.logger.Error("delete failed", "table", table, "error", err)
		return 0, err
	}
	return affected(res)
}

// Query runs arbitrary parameterized SQL. Statements whose trimmed text
// starts with SELECT return rows; anything else returns the affected count.
// WITH ... SELECT and other row-returning forms are treated as non-SELECT:
// use Select for those.
func (o *ORM) Query(ctx context.Context, query string, params ...interface{}) (*QueryResult, error) {
	if isSelect(query) {
		rows, err := o.Select(ctx, query, params...)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Rows: rows, IsSelect: true}, nil
	}
	n, err := o.Exec(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return &QueryResult{RowsAffected: n}, nil
}

// Select runs query and always returns rows.
func (o *ORM) Select(ctx context.Context, query string, params ...interface{}) ([]Row, error) {
	if err := o.check("select"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, newValidationError("select", "query is required")
	}
	rows, err := o.queryPrepared(ctx, "query", query, params)
	if err != nil {
		o.logger.Error("query failed", "error", err)
		return nil, err
	}
	return rows, nil
}

// Exec runs query and always returns the affected row count.
func (o *ORM) Exec(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if err := o.check("exec"); err != nil {
		return 0, err
	}
	if strings.TrimSpace(query) == "" {
		return 0, newValidationError("exec", "query is required")
	}
	res, err := o.execPrepared(ctx, "query", query, params)
	if err != nil {
		o.logger.Error("query failed", "error", err)
		return 0, err
	}
	return affected(res)
}

func isSelect(query string) bool {
	q := strings.TrimSpace(query)
	return len(q) >= 6 && strings.EqualFold(q[:6], "SELECT")
}

// GetManyToMany returns target rows linked to source through pivot. The
// pivot columns are named after the singular table names: users + roles
// through role_user join on role_user.role_id = roles.id.
//
// The condition key "id" always means the source id (role_user.user_id),
// never the pivot's own id column. Use a qualified key such as
// "role_user.id" to reach that column; other plain keys filter pivot
// columns as given.
func (o *ORM) GetManyToMany(ctx context.Context, source, target, pivot string, conditions Conditions) ([]Row, error) {
	if err := o.check("many to many"); err != nil {
		return nil, err
	}
	if source == "" || target == "" || pivot == "" {
		return nil, newValidationError("many to many", "source, target and pivot tables are required")
	}

	sourceKey := ForeignKeyName(source)
	targetKey := ForeignKeyName(target)

	var b strings.Builder
	b.WriteString("SELECT " + o.quote(target) + ".* FROM " + o.quote(target))
	b.WriteString(" INNER JOIN " + o.quote(pivot) + " ON " + o.quote(pivot) + "." + o.quote(targetKey) + " = " + o.quote(target) + "." + o.quote("id"))

	keys := sortedKeys(conditions)
	args := make([]interface{}, 0, len(keys))
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		var qualified string
		switch {
		case k == "id":
			qualified = o.quote(pivot) + "." + o.quote(sourceKey)
		case strings.Contains(k, "."):
			qualified = o.quote(k)
		default:
			qualified = o.quote(pivot) + "." + o.quote(k)
		}
		if conditions[k] == nil {
			clauses = append(clauses, qualified+" IS NULL")
			continue
		}
		clauses = append(clauses, qualified+" = ?")
		args = append(args, conditions[k])
	}
	if len(clauses) > 0 {
		b.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}

	rows, err := o.queryPrepared(ctx, "many to many", b.String(), args)
	if err != nil {
		o.logger.Error("many to many failed", "source", source, "target", target, "pivot", pivot, "error", err)
		return nil, err
	}
	return rows, nil
}

// ForeignKeyName is the conventional column referencing table: users -> user_id.
func ForeignKeyName(table string) string {
	return inflection.Singular(table) + "_id"
}

// BatchCreate inserts every row in as few multi-row INSERTs as the
// parameter limit allows, all inside one transaction. It returns the
// number of rows inserted.
func (o *ORM) BatchCreate(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if err := o.check("batch create"); err != nil {
		return 0, err
	}
	if table == "" {
		return 0, newValidationError("batch create", "table name is required")
	}
	if len(columns) == 0 {
		return 0, newValidationError("batch create", "columns are required")
	}
	if len(rows) == 0 {
		return 0, newValidationError("batch create", "rows are required")
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, newValidationError("batch create", "row %d has %d values, want %d", i, len(r), len(columns))
		}
	}

	perChunk := maxBatchParams / len(columns)
	if perChunk < 1 {
		perChunk = 1
	}
	head := "INSERT INTO " + o.quote(table) + " (" + o.quoteList(columns) + ") VALUES "
	tuple := "(" + placeholders(len(columns)) + ")"

	return Batch(ctx, o, func(ctx context.Context, orm *ORM) (int64, error) {
		var total int64
		for start := 0; start < len(rows); start += perChunk {
			end := start + perChunk
			if end > len(rows) {
				end = len(rows)
			}
			chunk := rows[start:end]
			tuples := make([]string, len(chunk))
			args := make([]interface{}, 0, len(chunk)*len(columns))
			for i, r := range chunk {
				tuples[i] = tuple
				args = append(args, r...)
			}
			res, err := orm.execPrepared(ctx, "batch create", head+strings.Join(tuples, ", "), args)
			if err != nil {
				orm.logger.Error("batch create failed", "table", table, "rows", len(chunk), "error", err)
				return 0, err
			}
			n, err := affected(res)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	})
}

func (o *ORM) where(conditions Conditions) (string, []interface{}) {
	if len(conditions) == 0 {
		return "", nil
	}
	keys := sortedKeys(conditions)
	clauses := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys))
	for i, k := range keys {
		if conditions[k] == nil {
			clauses[i] = o.quote(k) + " IS NULL"
			continue
		}
		clauses[i] = o.quote(k) + " = ?"
		args = append(args, conditions[k])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (o *ORM) quote(name string) string { return o.grammar.QuoteIdent(name) }

func (o *ORM) quoteList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = o.quote(n)
	}
	return strings.Join(out, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func affected(res interface{ RowsAffected() (int64, error) }) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newExecutionError("rows affected", "", err)
	}
	return n, nil
}
