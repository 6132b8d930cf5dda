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
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/spf13/cast"
)

type operatorFunc func(col string, value any) (squirrel.Sqlizer, error)

// operators is shared by the advanced and django-like converters.
var operators = map[string]operatorFunc{
	"=":           opEq,
	"!=":          opNotEq,
	">":           opCompare(func(c string, v any) squirrel.Sqlizer { return squirrel.Gt{c: v} }),
	">=":          opCompare(func(c string, v any) squirrel.Sqlizer { return squirrel.GtOrEq{c: v} }),
	"<":           opCompare(func(c string, v any) squirrel.Sqlizer { return squirrel.Lt{c: v} }),
	"<=":          opCompare(func(c string, v any) squirrel.Sqlizer { return squirrel.LtOrEq{c: v} }),
	"in":          opIn,
	"not_in":      opNotIn,
	"like":        opPattern(false, false, "", ""),
	"not_like":    opPattern(true, false, "", ""),
	"ilike":       opPattern(false, true, "", ""),
	"not_ilike":   opPattern(true, true, "", ""),
	"contains":    opPattern(false, false, "%", "%"),
	"icontains":   opPattern(false, true, "%", "%"),
	"startswith":  opPattern(false, false, "", "%"),
	"istartswith": opPattern(false, true, "", "%"),
	"endswith":    opPattern(false, false, "%", ""),
	"iendswith":   opPattern(false, true, "%", ""),
	"iexact":      opIExact,
	"between":     opBetween,
	"is":          opIs(false),
	"is_not":      opIs(true),
	"isnull":      opIsNull,
}

var operatorAliases = map[string]string{
	"==":  "=",
	"eq":  "=",
	"<>":  "!=",
	"ne":  "!=",
	"gt":  ">",
	"gte": ">=",
	"ge":  ">=",
	"lt":  "<",
	"lte": "<=",
	"le":  "<=",
	"nin": "not_in",
}

func lookupOperator(name string) (operatorFunc, bool) {
	name = strings.ToLower(strings.Join(strings.Fields(name), "_"))
	if alias, ok := operatorAliases[name]; ok {
		name = alias
	}
	op, ok := operators[name]
	return op, ok
}

func opEq(col string, value any) (squirrel.Sqlizer, error) {
	return squirrel.Eq{col: value}, nil
}

func opNotEq(col string, value any) (squirrel.Sqlizer, error) {
	return squirrel.NotEq{col: value}, nil
}

func opCompare(build func(col string, value any) squirrel.Sqlizer) operatorFunc {
	return func(col string, value any) (squirrel.Sqlizer, error) {
		if value == nil {
			return nil, invalidf(col, "comparison against NULL")
		}
		return build(col, value), nil
	}
}

func opIn(col string, value any) (squirrel.Sqlizer, error) {
	values, ok := toSlice(value)
	if !ok {
		return nil, invalidf(col, "in expects a list, got %T", value)
	}
	return squirrel.Eq{col: values}, nil
}

func opNotIn(col string, value any) (squirrel.Sqlizer, error) {
	values, ok := toSlice(value)
	if !ok {
		return nil, invalidf(col, "not_in expects a list, got %T", value)
	}
	return squirrel.NotEq{col: values}, nil
}

// opPattern builds LIKE style predicates. Case-insensitive variants lower both
// sides so they behave the same on every dialect.
func opPattern(negate, fold bool, prefix, suffix string) operatorFunc {
	return func(col string, value any) (squirrel.Sqlizer, error) {
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, invalidf(col, "pattern must be a string: %v", err)
		}
		pattern := prefix + s + suffix
		if !fold {
			if negate {
				return squirrel.NotLike{col: pattern}, nil
			}
			return squirrel.Like{col: pattern}, nil
		}
		not := ""
		if negate {
			not = "NOT "
		}
		return squirrel.Expr(fmt.Sprintf("LOWER(%s) %sLIKE LOWER(?)", col, not), pattern), nil
	}
}

func opIExact(col string, value any) (squirrel.Sqlizer, error) {
	if value == nil {
		return squirrel.Eq{col: nil}, nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, invalidf(col, "iexact expects a string: %v", err)
	}
	return squirrel.Expr(fmt.Sprintf("LOWER(%s) = LOWER(?)", col), s), nil
}

func opBetween(col string, value any) (squirrel.Sqlizer, error) {
	bounds, ok := toSlice(value)
	if !ok || len(bounds) != 2 {
		return nil, invalidf(col, "between expects exactly two bounds")
	}
	return squirrel.Expr(fmt.Sprintf("%s BETWEEN ? AND ?", col), bounds[0], bounds[1]), nil
}

func opIs(negate bool) operatorFunc {
	return func(col string, value any) (squirrel.Sqlizer, error) {
		if value == nil {
			if negate {
				return squirrel.NotEq{col: nil}, nil
			}
			return squirrel.Eq{col: nil}, nil
		}
		if negate {
			return squirrel.Expr(fmt.Sprintf("%s IS NOT ?", col), value), nil
		}
		return squirrel.Expr(fmt.Sprintf("%s IS ?", col), value), nil
	}
}

func opIsNull(col string, value any) (squirrel.Sqlizer, error) {
	isNull, err := cast.ToBoolE(value)
	if err != nil {
		return nil, invalidf(col, "isnull expects a boolean: %v", err)
	}
	if isNull {
		return squirrel.Eq{col: nil}, nil
	}
	return squirrel.NotEq{col: nil}, nil
}

func toSlice(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
