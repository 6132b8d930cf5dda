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

package filters

import (
	"sort"

	"github.com/Masterminds/squirrel"
)

// Dict maps field names to the values they are matched against.
type Dict map[string]any

// Columns resolves a symbolic field name to a SQL column expression. Dotted
// names ("author.name") address a field of a joined relation.
type Columns interface {
	Column(name string) (string, error)
}

// ColumnsFunc adapts a function to the Columns interface.
type ColumnsFunc func(name string) (string, error)

func (f ColumnsFunc) Column(name string) (string, error) { return f(name) }

// Converter turns a filter specification into predicates that are combined
// with AND by the caller.
//
// A specification is nil, a map[string]any or Dict, a squirrel.Sqlizer, or a
// slice of those ([]any, []map[string]any, []Dict, []squirrel.Sqlizer).
type Converter interface {
	Convert(cols Columns, spec any) ([]squirrel.Sqlizer, error)
}

type dictConverter func(cols Columns, m map[string]any) ([]squirrel.Sqlizer, error)

// convertSpec walks the specification and hands every mapping to fn.
// Pre-built predicates are passed through untouched.
func convertSpec(cols Columns, spec any, fn dictConverter) ([]squirrel.Sqlizer, error) {
	items, err := flatten(spec)
	if err != nil {
		return nil, err
	}
	var out []squirrel.Sqlizer
	for _, item := range items {
		switch v := item.(type) {
		case squirrel.Sqlizer:
			out = append(out, v)
		case map[string]any:
			preds, err := fn(cols, v)
			if err != nil {
				return nil, err
			}
			out = append(out, preds...)
		}
	}
	return out, nil
}

func flatten(spec any) ([]any, error) {
	switch v := spec.(type) {
	case nil:
		return nil, nil
	case squirrel.Sqlizer:
		return []any{v}, nil
	case Dict:
		return []any{map[string]any(v)}, nil
	case map[string]any:
		return []any{v}, nil
	case []squirrel.Sqlizer:
		out := make([]any, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out, nil
	case []Dict:
		out := make([]any, 0, len(v))
		for _, d := range v {
			out = append(out, map[string]any(d))
		}
		return out, nil
	case []map[string]any:
		out := make([]any, 0, len(v))
		for _, d := range v {
			out = append(out, d)
		}
		return out, nil
	case []any:
		var out []any
		for _, elem := range v {
			if _, nested := elem.([]any); nested {
				return nil, invalidf("", "nested sequences are not supported")
			}
			items, err := flatten(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	default:
		return nil, invalidf("", "unsupported specification type %T", spec)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// And combines predicates into one, returning nil for an empty input.
func And(preds []squirrel.Sqlizer) squirrel.Sqlizer {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return squirrel.And(preds)
	}
}
