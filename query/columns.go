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
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/tomoncle/sqlrepo/filters"
	"github.com/uptrace/bun/schema"
)

// columnResolver implements filters.Columns for one query. Qualified
// resolvers prefix columns with the table alias and may follow relations;
// unqualified ones serve UPDATE statements and only know the entity's own
// columns.
type columnResolver struct {
	table     *schema.Table
	mapping   map[string]string
	qualified bool
	extra     map[string]*schema.Table
	quote     func(string) string
}

var _ filters.Columns = (*columnResolver)(nil)

func (b *Builder[T]) columns(qualified bool, extra map[string]*schema.Table) *columnResolver {
	return &columnResolver{
		table:     b.table,
		mapping:   b.mapping,
		qualified: qualified,
		extra:     extra,
		quote:     b.quoteIdent,
	}
}

func (r *columnResolver) Column(name string) (string, error) {
	name = strings.TrimSpace(name)
	if target, ok := r.mapping[name]; ok {
		if isExpression(target) {
			return target, nil
		}
		name = target
	}
	return r.resolve(name)
}

func (r *columnResolver) resolve(name string) (string, error) {
	if f := lookupField(r.table, name); f != nil {
		if !r.qualified {
			return string(f.SQLName), nil
		}
		return string(r.table.SQLAlias) + "." + string(f.SQLName), nil
	}

	segments := strings.Split(name, ".")
	if len(segments) < 2 || !r.qualified {
		return "", r.unknown(name)
	}

	if t, ok := r.extra[strings.ToLower(segments[0])]; ok && len(segments) == 2 {
		if f := lookupField(t, segments[1]); f != nil {
			return string(t.SQLAlias) + "." + string(f.SQLName), nil
		}
		return "", r.unknown(name)
	}

	table := r.table
	aliases := make([]string, 0, len(segments)-1)
	for _, seg := range segments[:len(segments)-1] {
		_, rel := findRelation(table, seg)
		if rel == nil {
			return "", r.unknown(name)
		}
		aliases = append(aliases, rel.Field.Name)
		table = rel.JoinTable
	}
	f := lookupField(table, segments[len(segments)-1])
	if f == nil {
		return "", r.unknown(name)
	}
	return r.quote(strings.Join(aliases, "__")) + "." + string(f.SQLName), nil
}

func (r *columnResolver) unknown(name string) error {
	return &filters.UnknownFieldError{Model: r.table.TypeName, Field: name}
}

// field returns the entity field behind name, honouring the column mapping.
func (r *columnResolver) field(name string) (*schema.Field, error) {
	key := name
	if target, ok := r.mapping[name]; ok && !isExpression(target) {
		key = target
	}
	if f := lookupField(r.table, key); f != nil {
		return f, nil
	}
	return nil, r.unknown(name)
}

// FieldOf returns the field of t named name, or nil.
func FieldOf(t *schema.Table, name string) *schema.Field {
	return lookupField(t, name)
}

// lookupField matches SQL names, Go names and the snake case form of name.
func lookupField(t *schema.Table, name string) *schema.Field {
	if name == "" {
		return nil
	}
	snake := strcase.ToSnake(name)
	for _, f := range t.Fields {
		if f.Name == name || f.GoName == name {
			return f
		}
	}
	for _, f := range t.Fields {
		if f.Name == snake {
			return f
		}
	}
	return nil
}

func findRelation(t *schema.Table, name string) (string, *schema.Relation) {
	if rel, ok := t.Relations[name]; ok {
		return name, rel
	}
	snake := strcase.ToSnake(name)
	for key, rel := range t.Relations {
		if rel.Field.Name == name || rel.Field.Name == snake || strings.EqualFold(key, name) {
			return key, rel
		}
	}
	return "", nil
}

// isExpression reports whether a mapped column is a raw SQL expression
// rather than a field reference.
func isExpression(s string) bool {
	return strings.ContainsAny(s, "( \"`")
}
