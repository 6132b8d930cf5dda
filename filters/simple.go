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
	"github.com/Masterminds/squirrel"
)

// SimpleConverter reads every key as a field compared by equality. A nil
// value matches NULL and a slice value matches any of its elements.
type SimpleConverter struct{}

func (SimpleConverter) Convert(cols Columns, spec any) ([]squirrel.Sqlizer, error) {
	return convertSpec(cols, spec, simpleDict)
}

func simpleDict(cols Columns, m map[string]any) ([]squirrel.Sqlizer, error) {
	out := make([]squirrel.Sqlizer, 0, len(m))
	for _, key := range sortedKeys(m) {
		col, err := cols.Column(key)
		if err != nil {
			return nil, err
		}
		value := m[key]
		if values, ok := toSlice(value); ok {
			value = values
		}
		out = append(out, squirrel.Eq{col: value})
	}
	return out, nil
}
