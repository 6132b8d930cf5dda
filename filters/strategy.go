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
	"strings"

	"github.com/tomoncle/sqlrepo/types"
	"gopkg.in/yaml.v3"
)

// Strategy selects the grammar used to read filter specifications.
type Strategy int

const (
	// Simple treats every key as a field compared by equality.
	Simple Strategy = iota
	// Advanced accepts operator suffixed keys and {field, operator, value} maps.
	Advanced
	// DjangoLike accepts field__lookup keys chained through relations.
	DjangoLike
)

var _ types.BaseEnum = Simple

// Strategies lists every known strategy in declaration order.
var Strategies = []Strategy{Simple, Advanced, DjangoLike}

var strategyInfo = map[Strategy]struct{ name, desc string }{
	Simple:     {"simple", "literal equality matching"},
	Advanced:   {"advanced", "operator suffixed field matching"},
	DjangoLike: {"django-like", "double underscore lookup chaining"},
}

var converters = map[Strategy]Converter{
	Simple:     SimpleConverter{},
	Advanced:   AdvancedConverter{},
	DjangoLike: DjangoLikeConverter{},
}

func (s Strategy) IsValid() bool {
	_, ok := strategyInfo[s]
	return ok
}

func (s Strategy) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s Strategy) Name() string {
	if info, ok := strategyInfo[s]; ok {
		return info.name
	}
	return types.IllegalName
}

func (s Strategy) Desc() string {
	if info, ok := strategyInfo[s]; ok {
		return info.desc
	}
	return types.IllegalDesc
}

func (s Strategy) String() string { return s.Name() }

// Converter returns the converter registered for the strategy.
func (s Strategy) Converter() (Converter, error) {
	return ConverterFor(s)
}

// ConverterFor resolves a strategy to its converter. The result depends on
// the strategy value only.
func ConverterFor(s Strategy) (Converter, error) {
	c, ok := converters[s]
	if !ok {
		return nil, &UnknownStrategyError{Strategy: s}
	}
	return c, nil
}

// ParseStrategy parses "simple", "advanced" or "django-like".
func ParseStrategy(name string) (Strategy, error) {
	s, ok := types.EnumByName(Strategies, name)
	if !ok {
		// tolerate the unseparated spelling
		if strings.EqualFold(strings.TrimSpace(name), "djangolike") {
			return DjangoLike, nil
		}
		return Simple, fmt.Errorf("unknown filter convert strategy %q", name)
	}
	return s, nil
}

func (s Strategy) MarshalYAML() (interface{}, error) {
	if !s.IsValid() {
		return nil, &UnknownStrategyError{Strategy: s}
	}
	return s.Name(), nil
}

func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
