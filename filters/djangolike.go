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
)

const lookupSep = "__"

var djangoLookups = map[string]string{
	"exact":       "=",
	"iexact":      "iexact",
	"contains":    "contains",
	"icontains":   "icontains",
	"in":          "in",
	"gt":          ">",
	"gte":         ">=",
	"lt":          "<",
	"lte":         "<=",
	"startswith":  "startswith",
	"istartswith": "istartswith",
	"endswith":    "endswith",
	"iendswith":   "iendswith",
	"range":       "between",
	"isnull":      "isnull",
}

// DjangoLikeConverter reads keys of the form field__lookup. Leading segments
// address relations, so author__name__icontains matches the name column of
// the author relation.
type DjangoLikeConverter struct{}

func (DjangoLikeConverter) Convert(cols Columns, spec any) ([]squirrel.Sqlizer, error) {
	return convertSpec(cols, spec, djangoDict)
}

func djangoDict(cols Columns, m map[string]any) ([]squirrel.Sqlizer, error) {
	out := make([]squirrel.Sqlizer, 0, len(m))
	for _, key := range sortedKeys(m) {
		field, lookup, err := splitLookup(key)
		if err != nil {
			return nil, err
		}
		col, err := cols.Column(field)
		if err != nil {
			return nil, err
		}
		pred, err := operators[lookup](col, m[key])
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

// splitLookup returns the dotted field path and the operator of a key.
func splitLookup(key string) (string, string, error) {
	segments := strings.Split(key, lookupSep)
	for _, s := range segments {
		if s == "" {
			return "", "", invalidf(key, "empty path segment")
		}
	}
	op := "="
	if len(segments) > 1 {
		if mapped, ok := djangoLookups[segments[len(segments)-1]]; ok {
			op = mapped
			segments = segments[:len(segments)-1]
		}
	}
	return strings.Join(segments, "."), op, nil
}
