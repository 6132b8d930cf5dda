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
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/spf13/cast"
)

// AdvancedConverter accepts two mapping shapes:
//
//	{"field": "id", "operator": ">", "value": 1}
//	{"id >": 1, "name like": "a%", "status not in": []string{"x"}}
//
// A key without an operator compares by equality.
type AdvancedConverter struct{}

func (AdvancedConverter) Convert(cols Columns, spec any) ([]squirrel.Sqlizer, error) {
	return convertSpec(cols, spec, advancedDict)
}

func isOperatorSpec(m map[string]any) bool {
	if _, ok := m["field"]; !ok {
		return false
	}
	if _, ok := m["value"]; !ok {
		return false
	}
	for k := range m {
		if k != "field" && k != "value" && k != "operator" {
			return false
		}
	}
	return true
}

func advancedDict(cols Columns, m map[string]any) ([]squirrel.Sqlizer, error) {
	if isOperatorSpec(m) {
		field, err := cast.ToStringE(m["field"])
		if err != nil || field == "" {
			return nil, invalidf("field", "field must be a non-empty string")
		}
		op := "="
		if raw, ok := m["operator"]; ok && raw != nil {
			if op, err = cast.ToStringE(raw); err != nil {
				return nil, invalidf(field, "operator must be a string")
			}
		}
		pred, err := applyOperator(cols, field, op, m["value"])
		if err != nil {
			return nil, err
		}
		return []squirrel.Sqlizer{pred}, nil
	}

	out := make([]squirrel.Sqlizer, 0, len(m))
	for _, key := range sortedKeys(m) {
		field, op := splitOperatorKey(key)
		pred, err := applyOperator(cols, field, op, m[key])
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

// splitOperatorKey splits "name not like" into ("name", "not like").
func splitOperatorKey(key string) (string, string) {
	parts := strings.Fields(key)
	if len(parts) <= 1 {
		return strings.TrimSpace(key), "="
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func applyOperator(cols Columns, field, op string, value any) (squirrel.Sqlizer, error) {
	fn, ok := lookupOperator(op)
	if !ok {
		return nil, invalidf(field, "unknown operator %q", op)
	}
	col, err := cols.Column(field)
	if err != nil {
		return nil, err
	}
	return fn(col, value)
}
