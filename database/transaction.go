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
	"fmt"
)

// Begin opens a transaction. Only the outermost call reaches the backend;
// inner calls bump the nesting level (or set a savepoint when
// Config.Savepoints is on).
func (o *ORM) Begin(ctx context.Context) error {
	if err := o.check("begin"); err != nil {
		return err
	}
	if o.level == 0 {
		if err := o.driver.BeginTransaction(ctx, o.conn); err != nil {
			o.logger.Error("begin transaction failed", "error", err)
			return err
		}
	} else if o.cfg.Savepoints {
		if err := o.savepoint(ctx, "SAVEPOINT"); err != nil {
			return err
		}
	}
	o.level++
	return nil
}

// Commit closes one nesting level. The backend commit happens when the
// outermost level closes.
func (o *ORM) Commit(ctx context.Context) error {
	if err := o.check("commit"); err != nil {
		return err
	}
	if o.level == 0 {
		return &TransactionStateError{Op: "commit"}
	}
	if o.level == 1 {
		o.level = 0
		if err := o.driver.Commit(ctx, o.conn); err != nil {
			o.logger.Error("commit failed", "error", err)
			return err
		}
		return nil
	}
	o.level--
	if o.cfg.Savepoints {
		return o.savepoint(ctx, "RELEASE SAVEPOINT")
	}
	return nil
}

// Rollback discards the whole transaction whatever the nesting depth and
// resets the level to zero. Inner callers therefore roll back their
// callers' work too. With Config.Savepoints only the innermost level is
// undone.
func (o *ORM) Rollback(ctx context.Context) error {
	if err := o.check("rollback"); err != nil {
		return err
	}
	if o.level == 0 {
		return &TransactionStateError{Op: "rollback"}
	}
	if o.cfg.Savepoints && o.level > 1 {
		o.level--
		if err := o.savepoint(ctx, "ROLLBACK TO SAVEPOINT"); err != nil {
			return err
		}
		return o.savepoint(ctx, "RELEASE SAVEPOINT")
	}
	o.level = 0
	if err := o.driver.Rollback(ctx, o.conn); err != nil {
		o.logger.Error("rollback failed", "error", err)
		return err
	}
	return nil
}

// TransactionLevel is the current nesting depth, 0 outside a transaction.
func (o *ORM) TransactionLevel() int { return o.level }

func (o *ORM) InTransaction() bool { return o.level > 0 }

// savepoint names are derived from the level they protect: lb_1 guards
// the work done at depth 2.
func (o *ORM) savepoint(ctx context.Context, verb string) error {
	q := fmt.Sprintf("%s lb_%d", verb, o.level)
	if _, err := o.rawExec(ctx, q); err != nil {
		o.logger.Error("savepoint failed", "statement", q, "error", err)
		return newExecutionError("savepoint", q, err)
	}
	return nil
}

// BatchOperation runs fn inside Begin/Commit. An error from fn rolls back
// and is returned unchanged; a panic rolls back and is re-raised.
func (o *ORM) BatchOperation(ctx context.Context, fn func(ctx context.Context, orm *ORM) error) error {
	if err := o.Begin(ctx); err != nil {
		return err
	}
	done := false
	defer func() {
		if done {
			return
		}
		if r := recover(); r != nil {
			o.rollbackQuietly(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx, o); err != nil {
		done = true
		o.rollbackQuietly(ctx)
		return err
	}
	done = true
	return o.Commit(ctx)
}

// Batch is BatchOperation for callbacks that produce a value.
func Batch[T any](ctx context.Context, o *ORM, fn func(ctx context.Context, orm *ORM) (T, error)) (T, error) {
	var out T
	err := o.BatchOperation(ctx, func(ctx context.Context, orm *ORM) error {
		v, err := fn(ctx, orm)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// a nested failure may already have unwound the transaction.
func (o *ORM) rollbackQuietly(ctx context.Context) {
	if o.level == 0 {
		return
	}
	if err := o.Rollback(ctx); err != nil {
		o.logger.Warn("rollback after failed batch", "error", err)
	}
}
