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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

// QueryLogMode selects which statements the console hook prints.
type QueryLogMode int

const (
	QueryLogOff QueryLogMode = iota
	QueryLogFailed
	QueryLogAll
)

// ParseQueryLogMode accepts off, failed or all (also 0, 1, 2).
func ParseQueryLogMode(s string) (QueryLogMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "0", "false":
		return QueryLogOff, nil
	case "failed", "errors", "1":
		return QueryLogFailed, nil
	case "all", "2", "true":
		return QueryLogAll, nil
	}
	return QueryLogOff, fmt.Errorf("unknown query log mode %q", s)
}

// ConsoleQueryHook prints statements to a writer, colored by operation.
type ConsoleQueryHook struct {
	mode QueryLogMode
	out  io.Writer
}

var _ bun.QueryHook = (*ConsoleQueryHook)(nil)

func NewConsoleQueryHook(out io.Writer, mode QueryLogMode) *ConsoleQueryHook {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleQueryHook{mode: mode, out: out}
}

func (h *ConsoleQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *ConsoleQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if !h.wants(event.Err) {
		return
	}
	elapsed := time.Since(event.StartTime).Round(time.Microsecond)
	line := fmt.Sprintf("%s %s %10s  %s",
		event.StartTime.Format("15:04:05.000"),
		color.CyanString("[SQL]"),
		elapsed,
		operationColors.get(event.Operation()).Sprint(event.Query))
	if event.Err != nil {
		line += "  " + color.New(color.BgRed, color.FgHiWhite).Sprintf(" %v ", event.Err)
	}
	_, _ = fmt.Fprintln(h.out, line)
}

func (h *ConsoleQueryHook) wants(err error) bool {
	switch h.mode {
	case QueryLogAll:
		return true
	case QueryLogFailed:
		return err != nil && !errors.Is(err, sql.ErrNoRows)
	default:
		return false
	}
}

type colorTable map[string]*color.Color

func (t colorTable) get(op string) *color.Color {
	if c, ok := t[op]; ok {
		return c
	}
	return t[""]
}

var operationColors = colorTable{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
	"":       color.New(color.FgRed),
}

// SlowQueryHook reports statements slower than threshold through a Logger.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{threshold: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.threshold <= 0 {
		return
	}
	if d := time.Since(event.StartTime); d > h.threshold {
		h.logger.Warn("slow query", "duration", d.Round(time.Microsecond).String(), "operation", event.Operation(), "query", event.Query)
	}
}

// queryHooks builds the hook chain configured by cfg.
func queryHooks(cfg *Config, logger Logger) []bun.QueryHook {
	var hooks []bun.QueryHook
	out := cfg.QueryLogOutput
	if out == nil {
		out = os.Stderr
	}
	if cfg.EnableQueryLog {
		hooks = append(hooks, bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.WithWriter(out)))
	}
	// New rejects unknown modes before any hook is built.
	if mode, _ := ParseQueryLogMode(cfg.QueryLog); mode != QueryLogOff {
		hooks = append(hooks, NewConsoleQueryHook(out, mode))
	}
	if cfg.SlowQueryTime > 0 {
		hooks = append(hooks, NewSlowQueryHook(cfg.SlowQueryTime, logger))
	}
	return hooks
}

// tracer fires bun hooks around statements bun itself does not run, such as
// executions of cached *sql.Stmt handles.
type tracer struct {
	db    *bun.DB
	hooks []bun.QueryHook
}

func (t *tracer) before(ctx context.Context, query string, args []interface{}) (context.Context, *bun.QueryEvent) {
	if len(t.hooks) == 0 {
		return ctx, nil
	}
	event := &bun.QueryEvent{
		DB:        t.db,
		Query:     query,
		QueryArgs: args,
		StartTime: time.Now(),
	}
	for _, h := range t.hooks {
		ctx = h.BeforeQuery(ctx, event)
	}
	return ctx, event
}

func (t *tracer) after(ctx context.Context, event *bun.QueryEvent, res sql.Result, err error) {
	if event == nil {
		return
	}
	event.Result = res
	event.Err = err
	for i := len(t.hooks) - 1; i >= 0; i-- {
		t.hooks[i].AfterQuery(ctx, event)
	}
}
