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

package repository

import (
	"fmt"

	"github.com/tomoncle/sqlrepo/filters"
	"github.com/tomoncle/sqlrepo/query"
	"github.com/tomoncle/sqlrepo/types"
	"gopkg.in/yaml.v3"
)

// DisableFieldType is how a disabled record is represented.
type DisableFieldType int

const (
	// DisableTimestamp stores the time of disabling; NULL means enabled.
	DisableTimestamp DisableFieldType = iota
	// DisableBoolean stores a flag; true means disabled.
	DisableBoolean
)

var _ types.BaseEnum = DisableTimestamp

var DisableFieldTypes = []DisableFieldType{DisableTimestamp, DisableBoolean}

var disableFieldTypeInfo = map[DisableFieldType]struct{ name, desc string }{
	DisableTimestamp: {"timestamp", "disabled when the field is not null"},
	DisableBoolean:   {"boolean", "disabled when the field is true"},
}

func (d DisableFieldType) IsValid() bool {
	_, ok := disableFieldTypeInfo[d]
	return ok
}

func (d DisableFieldType) Number() int {
	if !d.IsValid() {
		return types.IllegalValue
	}
	return int(d)
}

func (d DisableFieldType) Name() string {
	if info, ok := disableFieldTypeInfo[d]; ok {
		return info.name
	}
	return types.IllegalName
}

func (d DisableFieldType) Desc() string {
	if info, ok := disableFieldTypeInfo[d]; ok {
		return info.desc
	}
	return types.IllegalDesc
}

func (d DisableFieldType) String() string { return d.Name() }

func (d DisableFieldType) mode() query.DisableMode {
	if d == DisableBoolean {
		return query.DisableFlag
	}
	return query.DisableTimestamp
}

func (d DisableFieldType) MarshalYAML() (interface{}, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("invalid disable field type %d", int(d))
	}
	return d.Name(), nil
}

func (d *DisableFieldType) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	v, ok := types.EnumByName(DisableFieldTypes, name)
	if !ok {
		return fmt.Errorf("unknown disable field type %q", name)
	}
	*d = v
	return nil
}

// Config is the policy of a repository. It is copied when the repository is
// defined and never changes afterwards.
type Config struct {
	// UseFlush leaves writes uncommitted in the session transaction.
	UseFlush bool `yaml:"use_flush"`
	// AllowDisableFilterByValue makes Disable skip records already disabled.
	AllowDisableFilterByValue bool `yaml:"allow_disable_filter_by_value"`
	// UpdateSetNone lets UpdateInstance write nil values.
	UpdateSetNone bool `yaml:"update_set_none"`
	// UpdateAllowedNoneFields limits which fields may become nil. nil or
	// a list containing "*" allows every field.
	UpdateAllowedNoneFields []string `yaml:"update_allowed_none_fields"`
	DisableFieldType        DisableFieldType `yaml:"disable_field_type"`
	// UniqueListItems drops rows repeated by joins from List results.
	UniqueListItems       bool             `yaml:"unique_list_items"`
	FilterConvertStrategy filters.Strategy `yaml:"filter_convert_strategy"`
	IDField               string           `yaml:"id_field"`
	DisableField          string           `yaml:"disable_field"`
	// SpecificColumnMapping maps symbolic names to fields or SQL expressions.
	SpecificColumnMapping map[string]string  `yaml:"specific_column_mapping"`
	LoadStrategy          query.LoadStrategy `yaml:"-"`
	MigrationPriority     int                `yaml:"migration_priority"`
	SkipRegistration      bool               `yaml:"skip_registration"`
}

// DefaultConfig returns the policy most repositories start from.
func DefaultConfig() Config {
	return Config{
		AllowDisableFilterByValue: true,
		DisableFieldType:          DisableTimestamp,
		UniqueListItems:           true,
		FilterConvertStrategy:     filters.Simple,
		LoadStrategy:              query.JoinedLoad,
		MigrationPriority:         100,
	}
}

// With returns a copy of c changed by fn. c itself is left untouched, so a
// shared base config can be extended by several repositories.
func (c Config) With(fn func(*Config)) Config {
	out := c.clone()
	if fn != nil {
		fn(&out)
	}
	return out
}

func (c Config) clone() Config {
	out := c
	if c.UpdateAllowedNoneFields != nil {
		out.UpdateAllowedNoneFields = append([]string(nil), c.UpdateAllowedNoneFields...)
	}
	if c.SpecificColumnMapping != nil {
		out.SpecificColumnMapping = make(map[string]string, len(c.SpecificColumnMapping))
		for k, v := range c.SpecificColumnMapping {
			out.SpecificColumnMapping[k] = v
		}
	}
	return out
}

// ParseConfig reads a policy from YAML on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse repository config: %w", err)
	}
	return cfg, nil
}
