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
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// JoinOptions selects the join kind of JoinWith.
type JoinOptions struct {
	Outer bool // LEFT JOIN
	Full  bool // FULL OUTER JOIN, wins over Outer
}

// Join names a related entity to join against. Joined relations contribute
// no columns; they exist so filters and ordering can reference them.
type Join struct {
	relation string
	model    any
	on       string
	args     []any
	opts     JoinOptions
}

// JoinRelation joins a to-one relation of the entity by its Go field name,
// or a dotted path such as "Author.Profile".
func JoinRelation(name string) Join {
	return Join{relation: name}
}

// JoinModel joins the to-one relation of the entity whose table is model's.
func JoinModel(model any) Join {
	return Join{model: model}
}

// JoinOn joins model's table with an explicit condition.
func JoinOn(model any, on string, args ...any) Join {
	return Join{model: model, on: on, args: args}
}

// JoinWith is JoinOn with a join kind.
func JoinWith(model any, on string, opts JoinOptions, args ...any) Join {
	return Join{model: model, on: on, args: args, opts: opts}
}

func (j Join) keyword() string {
	switch {
	case j.opts.Full:
		return "FULL OUTER JOIN"
	case j.opts.Outer:
		return "LEFT JOIN"
	default:
		return "JOIN"
	}
}

// Load eager loads a relation path.
type Load struct {
	Path  string
	Apply func(*bun.SelectQuery) *bun.SelectQuery
}

// LoadPath loads path through the builder's LoadStrategy.
func LoadPath(path string) Load {
	return Load{Path: path}
}

// LoadWith loads path with apply customising the relation query. The
// builder's LoadStrategy is bypassed.
func LoadWith(path string, apply func(*bun.SelectQuery) *bun.SelectQuery) Load {
	return Load{Path: path, Apply: apply}
}

// LoadStrategy turns a load into query options.
type LoadStrategy func(q *bun.SelectQuery, load Load) *bun.SelectQuery

// JoinedLoad is the default strategy. To-one relations are joined into the
// main query, to-many relations are fetched with a second query.
func JoinedLoad(q *bun.SelectQuery, load Load) *bun.SelectQuery {
	if load.Apply != nil {
		return q.Relation(load.Path, load.Apply)
	}
	return q.Relation(load.Path)
}

// ColumnlessLoad joins to-one relations without selecting their columns.
// To-many relations are loaded as usual.
func ColumnlessLoad(q *bun.SelectQuery, load Load) *bun.SelectQuery {
	if load.Apply != nil {
		return q.Relation(load.Path, func(rq *bun.SelectQuery) *bun.SelectQuery {
			return withoutColumns(load.Apply(rq))
		})
	}
	return q.Relation(load.Path, withoutColumns)
}

// OrderedLoad loads relations sorted by the given order expressions, which
// keeps to-many collections in a stable order.
func OrderedLoad(order ...string) LoadStrategy {
	return func(q *bun.SelectQuery, load Load) *bun.SelectQuery {
		return q.Relation(load.Path, func(rq *bun.SelectQuery) *bun.SelectQuery {
			if load.Apply != nil {
				rq = load.Apply(rq)
			}
			for _, o := range order {
				rq = rq.Order(o)
			}
			return rq
		})
	}
}

func (b *Builder[T]) applyLoads(q *bun.SelectQuery, loads []Load) *bun.SelectQuery {
	for _, load := range loads {
		if load.Apply != nil {
			q = q.Relation(load.Path, load.Apply)
			continue
		}
		q = b.loadStrategy(q, load)
	}
	return q
}

func withoutColumns(q *bun.SelectQuery) *bun.SelectQuery {
	return q.ExcludeColumn("*")
}

// applyJoins adds joins and returns the extra tables they bring into scope.
// A relation that is also loaded is joined by the load already.
func (b *Builder[T]) applyJoins(q *bun.SelectQuery, joins []Join, loads []Load) (*bun.SelectQuery, map[string]*schema.Table, error) {
	loaded := make(map[string]struct{}, len(loads))
	for _, l := range loads {
		loaded[strings.ToLower(l.Path)] = struct{}{}
	}
	extra := make(map[string]*schema.Table)
	joined := make(map[string]struct{})

	for _, j := range joins {
		if j.relation == "" && j.on == "" {
			name, err := b.relationForModel(j.model)
			if err != nil {
				return nil, nil, err
			}
			j.relation = name
		}

		if j.relation != "" {
			path, err := b.relationPath(j.relation)
			if err != nil {
				return nil, nil, err
			}
			key := strings.ToLower(path)
			if _, ok := loaded[key]; ok {
				continue
			}
			if _, ok := joined[key]; ok {
				continue
			}
			joined[key] = struct{}{}
			q = q.Relation(path, withoutColumns)
			continue
		}

		table, err := b.tableOf(j.model)
		if err != nil {
			return nil, nil, err
		}
		q = q.Join(j.keyword()+" ? AS ?", table.SQLName, table.SQLAlias).JoinOn(j.on, j.args...)
		extra[strings.ToLower(table.Alias)] = table
		extra[strings.ToLower(table.Name)] = table
	}
	return q, extra, nil
}

func (b *Builder[T]) tableOf(model any) (*schema.Table, error) {
	if model == nil {
		return nil, invalidJoin("nil model")
	}
	typ := reflect.TypeOf(model)
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, invalidJoin("%s is not a struct model", typ)
	}
	return b.session.Dialect().Tables().Get(typ), nil
}

// relationForModel finds the to-one relation of the entity pointing at model.
func (b *Builder[T]) relationForModel(model any) (string, error) {
	target, err := b.tableOf(model)
	if err != nil {
		return "", err
	}
	for name, rel := range b.table.Relations {
		if rel.JoinTable.Type == target.Type && isToOne(rel) {
			return name, nil
		}
	}
	return "", invalidJoin("%s has no to-one relation to %s", b.table.TypeName, target.TypeName)
}

// relationPath normalises a relation path to bun's Go field names and
// rejects to-many relations, which cannot be joined.
func (b *Builder[T]) relationPath(path string) (string, error) {
	table := b.table
	var names []string
	for _, seg := range strings.Split(path, ".") {
		name, rel := findRelation(table, seg)
		if rel == nil {
			return "", invalidJoin("%s has no relation %q", table.TypeName, seg)
		}
		if !isToOne(rel) {
			return "", invalidJoin("relation %q of %s is not to-one", seg, table.TypeName)
		}
		names = append(names, name)
		table = rel.JoinTable
	}
	return strings.Join(names, "."), nil
}

func isToOne(rel *schema.Relation) bool {
	return rel.Type == schema.HasOneRelation || rel.Type == schema.BelongsToRelation
}
