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

package query

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/filters"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// BuilderConfig carries the policy a Builder is created with.
type BuilderConfig struct {
	Converter     filters.Converter
	ColumnMapping map[string]string
	LoadStrategy  LoadStrategy
	Logger        database.Logger
	Now           func() time.Time
}

// Builder runs the repository operations for entity type T.
type Builder[T any] struct {
	session      Session
	table        *schema.Table
	converter    filters.Converter
	mapping      map[string]string
	loadStrategy LoadStrategy
	logger       database.Logger
	now          func() time.Time
}

// New binds a Builder to session. T must be a bun model struct.
func New[T any](session Session, cfg BuilderConfig) (*Builder[T], error) {
	if session == nil {
		return nil, fmt.Errorf("query: nil session")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("query: %s is not a struct", typ)
	}
	b := &Builder[T]{
		session:      session,
		table:        session.Dialect().Tables().Get(typ),
		converter:    cfg.Converter,
		mapping:      cfg.ColumnMapping,
		loadStrategy: cfg.LoadStrategy,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if b.converter == nil {
		b.converter = filters.SimpleConverter{}
	}
	if b.loadStrategy == nil {
		b.loadStrategy = JoinedLoad
	}
	if b.logger == nil {
		b.logger = database.NopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Table exposes the bun table of T.
func (b *Builder[T]) Table() *schema.Table { return b.table }

func (b *Builder[T]) quoteIdent(s string) string {
	q := string(b.session.Dialect().IdentQuote())
	return q + s + q
}

// where converts spec and adds the predicates to q.
func (b *Builder[T]) where(cols filters.Columns, spec any, add func(sql string, args ...any)) (int, error) {
	preds, err := b.converter.Convert(cols, spec)
	if err != nil {
		return 0, err
	}
	pred := filters.And(preds)
	if pred == nil {
		return 0, nil
	}
	sql, args, err := pred.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", filters.ErrInvalidFilter, err)
	}
	add(sql, args...)
	return len(preds), nil
}

// selectQuery builds the shared part of GetItem, GetItemsCount and GetItemList.
func (b *Builder[T]) selectQuery(conn bun.IDB, model any, spec any, joins []Join, loads []Load) (*bun.SelectQuery, *columnResolver, error) {
	q := conn.NewSelect().Model(model)
	q, extra, err := b.applyJoins(q, joins, loads)
	if err != nil {
		return nil, nil, err
	}
	q = b.applyLoads(q, loads)
	cols := b.columns(true, extra)
	if _, err := b.where(cols, spec, func(sql string, args ...any) { q = q.Where(sql, args...) }); err != nil {
		return nil, nil, err
	}
	return q, cols, nil
}

// GetItem returns the single matching entity, nil when nothing matches and
// ErrMultipleResults when more than one entity does.
func (b *Builder[T]) GetItem(ctx context.Context, spec any, joins []Join, loads []Load) (*T, error) {
	conn, err := b.session.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var key *T
	if len(joins) > 0 && len(b.table.PKs) > 0 {
		if key, err = b.singleKey(ctx, conn, spec, joins); err != nil || key == nil {
			return nil, err
		}
	}

	var items []*T
	q, _, err := b.selectQuery(conn, &items, spec, joins, loads)
	if err != nil {
		return nil, err
	}
	if key != nil {
		strct := reflect.ValueOf(key).Elem()
		for _, pk := range b.table.PKs {
			q = q.Where(b.pkColumn(pk)+" = ?", pk.Value(strct).Interface())
		}
	}
	if err := q.Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	items = b.unique(items)
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, ErrMultipleResults
	}
}

// singleKey looks up the distinct primary keys matching spec. Joined rows can
// repeat one entity, so the limit applies to keys rather than rows. It
// returns nil when nothing matches and ErrMultipleResults for several keys.
func (b *Builder[T]) singleKey(ctx context.Context, conn bun.IDB, spec any, joins []Join) (*T, error) {
	var keys []*T
	q, _, err := b.selectQuery(conn, &keys, spec, joins, nil)
	if err != nil {
		return nil, err
	}
	for _, pk := range b.table.PKs {
		q = q.ColumnExpr(b.pkColumn(pk))
	}
	if err := q.Distinct().Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(keys) {
	case 0:
		return nil, nil
	case 1:
		return keys[0], nil
	default:
		return nil, ErrMultipleResults
	}
}

func (b *Builder[T]) pkColumn(pk *schema.Field) string {
	return string(b.table.SQLAlias) + "." + string(pk.SQLName)
}

// CountParams are the arguments of GetItemsCount.
type CountParams struct {
	Filters  any
	Joins    []Join
	Search   string
	SearchBy []string
}

// GetItemsCount counts matching entities. With joins the count is over
// distinct primary keys so fan-out rows are not counted twice.
func (b *Builder[T]) GetItemsCount(ctx context.Context, p CountParams) (int, error) {
	conn, err := b.session.Conn(ctx)
	if err != nil {
		return 0, err
	}
	q, cols, err := b.selectQuery(conn, (*T)(nil), p.Filters, p.Joins, nil)
	if err != nil {
		return 0, err
	}
	if q, err = b.applySearch(q, cols, p.Search, p.SearchBy); err != nil {
		return 0, err
	}
	if len(p.Joins) == 0 || len(b.table.PKs) != 1 {
		return q.Count(ctx)
	}
	var n int
	err = q.ColumnExpr("COUNT(DISTINCT " + b.pkColumn(b.table.PKs[0]) + ")").Scan(ctx, &n)
	return n, err
}

// ListParams are the arguments of GetItemList.
type ListParams struct {
	Filters  any
	Joins    []Join
	Loads    []Load
	Search   string
	SearchBy []string
	OrderBy  []string
	Limit    int
	Offset   int
	Unique   bool
}

// GetItemList returns the matching entities, an empty slice when none match.
// Search is a case-insensitive substring match over the SearchBy fields.
func (b *Builder[T]) GetItemList(ctx context.Context, p ListParams) ([]*T, error) {
	conn, err := b.session.Conn(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0)
	q, cols, err := b.selectQuery(conn, &items, p.Filters, p.Joins, p.Loads)
	if err != nil {
		return nil, err
	}
	if q, err = b.applySearch(q, cols, p.Search, p.SearchBy); err != nil {
		return nil, err
	}
	if q, err = b.applyOrder(q, cols, p.OrderBy); err != nil {
		return nil, err
	}
	q = b.applyPage(q, p.Limit, p.Offset)
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if p.Unique {
		items = b.unique(items)
	}
	return items, nil
}

func (b *Builder[T]) applySearch(q *bun.SelectQuery, cols filters.Columns, search string, searchBy []string) (*bun.SelectQuery, error) {
	if search == "" || len(searchBy) == 0 {
		return q, nil
	}
	pattern := "%" + strings.ToLower(search) + "%"
	or := make(squirrel.Or, 0, len(searchBy))
	for _, name := range searchBy {
		col, err := cols.Column(name)
		if err != nil {
			return nil, err
		}
		or = append(or, squirrel.Expr("LOWER("+col+") LIKE ?", pattern))
	}
	sql, args, err := or.ToSql()
	if err != nil {
		return nil, err
	}
	return q.Where(sql, args...), nil
}

// applyOrder accepts "name", "-name" and "name DESC".
func (b *Builder[T]) applyOrder(q *bun.SelectQuery, cols filters.Columns, orderBy []string) (*bun.SelectQuery, error) {
	for _, item := range orderBy {
		name, dir := parseOrder(item)
		if name == "" {
			continue
		}
		col, err := cols.Column(name)
		if err != nil {
			return nil, err
		}
		q = q.OrderExpr(col + " " + dir)
	}
	return q, nil
}

func parseOrder(item string) (string, string) {
	item = strings.TrimSpace(item)
	if strings.HasPrefix(item, "-") {
		return strings.TrimSpace(item[1:]), "DESC"
	}
	parts := strings.Fields(item)
	switch {
	case len(parts) == 0:
		return "", ""
	case len(parts) == 2 && strings.EqualFold(parts[1], "desc"):
		return parts[0], "DESC"
	case len(parts) == 2 && strings.EqualFold(parts[1], "asc"):
		return parts[0], "ASC"
	}
	return strings.TrimPrefix(item, "+"), "ASC"
}

// applyPage adds LIMIT/OFFSET. Dialects that reject a bare OFFSET get an
// unbounded LIMIT.
func (b *Builder[T]) applyPage(q *bun.SelectQuery, limit, offset int) *bun.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset <= 0 {
		return q
	}
	if limit <= 0 {
		switch b.session.Dialect().Name() {
		case dialect.SQLite:
			q = q.Limit(-1)
		case dialect.MySQL:
			q = q.Limit(math.MaxInt32)
		}
	}
	return q.Offset(offset)
}

// unique drops repeated primary keys, keeping the first occurrence.
func (b *Builder[T]) unique(items []*T) []*T {
	if len(b.table.PKs) == 0 || len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := b.pkKey(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (b *Builder[T]) pkKey(item *T) string {
	strct := reflect.ValueOf(item).Elem()
	parts := make([]string, len(b.table.PKs))
	for i, pk := range b.table.PKs {
		parts[i] = fmt.Sprint(pk.Value(strct).Interface())
	}
	return strings.Join(parts, "\x00")
}

// finish flushes or commits after a write.
func (b *Builder[T]) finish(ctx context.Context, useFlush bool) error {
	if useFlush {
		return b.session.Flush(ctx)
	}
	return b.session.Commit(ctx)
}

// CreateItem inserts a new entity built from data and returns it as stored,
// generated values included.
func (b *Builder[T]) CreateItem(ctx context.Context, data Data, useFlush bool) (*T, error) {
	instance := new(T)
	strct := reflect.ValueOf(instance).Elem()
	cols := b.columns(false, nil)
	for _, key := range sortedKeys(data) {
		f, err := cols.field(key)
		if err != nil {
			return nil, err
		}
		v, err := convertValue(data[key], f.StructField.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		f.Value(strct).Set(v)
	}

	conn, err := b.session.Conn(ctx)
	if err != nil {
		return nil, err
	}
	q := conn.NewInsert().Model(instance)
	returning := b.session.Dialect().Features().Has(feature.InsertReturning)
	if returning {
		q = q.Returning("*")
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}
	if !returning && len(b.table.PKs) > 0 {
		if err := conn.NewSelect().Model(instance).WherePK().Scan(ctx); err != nil {
			return nil, err
		}
	}
	if err := b.finish(ctx, useFlush); err != nil {
		return nil, err
	}
	b.logger.Debug("Item created", "model", b.table.TypeName)
	return instance, nil
}

// DBUpdate applies data to every entity matching spec. The boolean reports
// whether the dialect returned the updated rows.
func (b *Builder[T]) DBUpdate(ctx context.Context, data Data, spec any, useFlush bool) ([]*T, bool, error) {
	if len(data) == 0 {
		return nil, false, ErrNoData
	}
	conn, err := b.session.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	q := conn.NewUpdate().Model((*T)(nil))
	cols := b.columns(false, nil)
	for _, key := range sortedKeys(data) {
		f, err := cols.field(key)
		if err != nil {
			return nil, false, err
		}
		v, err := convertValue(data[key], f.StructField.Type)
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", key, err)
		}
		q = q.Set("? = ?", f.SQLName, v.Interface())
	}
	n, err := b.where(cols, spec, func(sql string, args ...any) { q = q.Where(sql, args...) })
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		b.logger.Warn("Updating every row", "model", b.table.TypeName)
		q = q.Where("1 = 1")
	}

	var items []*T
	returning := b.session.Dialect().Features().Has(feature.Returning)
	if returning {
		if _, err := q.Returning("*").Exec(ctx, &items); err != nil {
			return nil, false, err
		}
	} else if _, err := q.Exec(ctx); err != nil {
		return nil, false, err
	}
	if err := b.finish(ctx, useFlush); err != nil {
		return nil, false, err
	}
	if !returning {
		return nil, false, nil
	}
	if items == nil {
		items = make([]*T, 0)
	}
	return items, true, nil
}

// NoneFieldPolicy decides which fields ChangeItem may set to nil. A nil
// Allowed list or one containing "*" allows every field.
type NoneFieldPolicy struct {
	SetNone bool
	Allowed []string
}

func (p NoneFieldPolicy) allows(key string, f *schema.Field) bool {
	if p.Allowed == nil {
		return true
	}
	for _, name := range p.Allowed {
		if name == "*" || name == key || name == f.Name || name == f.GoName {
			return true
		}
	}
	return false
}

// ChangeItem applies data to instance and writes the changed columns. It
// reports whether any value differed from the instance's.
func (b *Builder[T]) ChangeItem(ctx context.Context, instance *T, data Data, policy NoneFieldPolicy, useFlush bool) (bool, *T, error) {
	if instance == nil {
		return false, nil, fmt.Errorf("query: nil instance")
	}
	strct := reflect.ValueOf(instance).Elem()
	cols := b.columns(false, nil)

	type change struct {
		field *schema.Field
		value reflect.Value
	}
	var changes []change
	for _, key := range sortedKeys(data) {
		f, err := cols.field(key)
		if err != nil {
			return false, instance, err
		}
		raw := data[key]
		if isNil(raw) {
			if !policy.SetNone {
				continue
			}
			if !policy.allows(key, f) {
				return false, instance, &NoneNotAllowedError{Model: b.table.TypeName, Field: key}
			}
		}
		v, err := convertValue(raw, f.StructField.Type)
		if err != nil {
			return false, instance, fmt.Errorf("field %q: %w", key, err)
		}
		if sameValue(f.Value(strct), v) {
			continue
		}
		changes = append(changes, change{field: f, value: v})
	}
	if len(changes) == 0 {
		return false, instance, nil
	}

	columns := make([]string, len(changes))
	previous := make([]reflect.Value, len(changes))
	for i, c := range changes {
		fv := c.field.Value(strct)
		previous[i] = reflect.New(fv.Type()).Elem()
		previous[i].Set(fv)
		fv.Set(c.value)
		columns[i] = c.field.Name
	}
	// On failure the instance keeps its stored values.
	restore := func() {
		for i, c := range changes {
			c.field.Value(strct).Set(previous[i])
		}
	}

	conn, err := b.session.Conn(ctx)
	if err != nil {
		restore()
		return false, instance, err
	}
	if _, err := conn.NewUpdate().Model(instance).Column(columns...).WherePK().Exec(ctx); err != nil {
		restore()
		return false, instance, err
	}
	if err := b.finish(ctx, useFlush); err != nil {
		restore()
		return false, instance, err
	}
	return true, instance, nil
}

// DisableMode is how the disabled state is stored.
type DisableMode int

const (
	DisableTimestamp DisableMode = iota
	DisableFlag
)

// DisableParams are the arguments of DisableItems.
type DisableParams struct {
	IDField       string
	DisableField  string
	Mode          DisableMode
	IDs           []any
	FilterByValue bool
	ExtraFilters  any
	UseFlush      bool
}

// DisableItems marks the entities with the given ids disabled and returns
// the number of rows changed. With FilterByValue rows already disabled are
// left alone and not counted.
func (b *Builder[T]) DisableItems(ctx context.Context, p DisableParams) (int, error) {
	if len(p.IDs) == 0 {
		return 0, nil
	}
	cols := b.columns(false, nil)
	idCol, err := cols.Column(p.IDField)
	if err != nil {
		return 0, err
	}
	disableCol, err := cols.Column(p.DisableField)
	if err != nil {
		return 0, err
	}

	var value any = b.now()
	preds := []squirrel.Sqlizer{squirrel.Eq{idCol: p.IDs}}
	if p.Mode == DisableFlag {
		value = true
		if p.FilterByValue {
			preds = append(preds, squirrel.Or{squirrel.Eq{disableCol: nil}, squirrel.NotEq{disableCol: true}})
		}
	} else if p.FilterByValue {
		preds = append(preds, squirrel.Eq{disableCol: nil})
	}
	extra, err := b.converter.Convert(cols, p.ExtraFilters)
	if err != nil {
		return 0, err
	}
	preds = append(preds, extra...)
	sql, args, err := squirrel.And(preds).ToSql()
	if err != nil {
		return 0, err
	}

	conn, err := b.session.Conn(ctx)
	if err != nil {
		return 0, err
	}
	res, err := conn.NewUpdate().
		Model((*T)(nil)).
		Set("? = ?", bun.Safe(disableCol), value).
		Where(sql, args...).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := b.finish(ctx, p.UseFlush); err != nil {
		return 0, err
	}
	b.logger.Debug("Items disabled", "model", b.table.TypeName, "count", n)
	return int(n), nil
}

func sortedKeys(data Data) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
