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
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silentQueryLog atomic.Bool

// EnableQueryLogSilent mutes every QueryLogHook, used while migrating.
func EnableQueryLogSilent(b bool) {
	silentQueryLog.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var (
	otherColor = color.New(color.FgRed)
	tagColor   = color.New(color.FgCyan)
	errColor   = color.New(color.BgRed, color.FgHiWhite)
)

// QueryLogHook prints every statement colored by its operation. The
// SQLREPO_QUERY_LOG variable overrides the configured state: "0" disables,
// "1" logs failures only and "2" logs everything.
type QueryLogHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

type QueryLogOption func(*QueryLogHook)

func WithQueryLogWriter(w io.Writer) QueryLogOption {
	return func(h *QueryLogHook) { h.writer = w }
}

func WithQueryLogVerbose(verbose bool) QueryLogOption {
	return func(h *QueryLogHook) { h.verbose = verbose }
}

func WithQueryLogEnv(name string) QueryLogOption {
	return func(h *QueryLogHook) { h.envName = name }
}

func NewQueryLogHook(opts ...QueryLogOption) *QueryLogHook {
	h := &QueryLogHook{envName: "SQLREPO_QUERY_LOG", enabled: true, writer: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

func (h *QueryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silentQueryLog.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		tagColor.Sprintf("%8s", "[SQL]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", errColor.Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func operationColor(op string) *color.Color {
	if c, ok := operationColors[op]; ok {
		return c
	}
	return otherColor
}

// SlowQueryHook reports statements slower than the threshold.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{slowTime: threshold, logger: logger}
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil || silentQueryLog.Load() {
		return
	}
	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	h.logger.Warn("Slow query detected",
		"duration", duration,
		"slow_threshold", h.slowTime,
		"operation", event.Operation(),
		"query", event.Query,
	)
}
