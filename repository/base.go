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
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tomoncle/sqlrepo/database"
	"github.com/tomoncle/sqlrepo/filters"
	"github.com/tomoncle/sqlrepo/query"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

var (
	baseModelType = reflect.TypeOf(bun.BaseModel{})

	timestampTypes = []reflect.Type{
		reflect.TypeOf(time.Time{}),
		reflect.TypeOf((*time.Time)(nil)),
		reflect.TypeOf(bun.NullTime{}),
		reflect.TypeOf(sql.NullTime{}),
	}
	booleanTypes = []reflect.Type{
		reflect.TypeOf(false),
		reflect.TypeOf((*bool)(nil)),
		reflect.TypeOf(sql.NullBool{}),
	}
)

// metadata only reads names from the model tags, so any dialect works.
var metadata = sqlitedialect.New()

// Definition is a repository bound to the entity type T. It is created once
// by Define and shared by every repository instance of T.
type Definition[T any] struct {
	entityType reflect.Type
	table      *schema.Table
	config     Config
	converter  filters.Converter
}

// Define validates cfg against T and binds them. T must be a struct
// embedding bun.BaseModel. Every problem found is reported in one
// ConfigError.
func Define[T any](cfg Config) (*Definition[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	model := typ.String()

	switch {
	case typ.Kind() == reflect.Interface:
		return nil, configErrorf(model, "", "entity type is not resolved to a concrete type")
	case typ.Kind() != reflect.Struct:
		return nil, configErrorf(model, "", "entity type must be a struct, got %s", typ.Kind())
	case !embedsBaseModel(typ):
		return nil, configErrorf(model, "", "entity type must embed bun.BaseModel")
	}

	table, err := tableOf(typ)
	if err != nil {
		return nil, &ConfigError{Model: model, Reason: "invalid model", Err: err}
	}

	var errs *multierror.Error
	converter, err := filters.ConverterFor(cfg.FilterConvertStrategy)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if !cfg.DisableFieldType.IsValid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid disable field type %d", int(cfg.DisableFieldType)))
	}
	if cfg.IDField != "" && query.FieldOf(table, cfg.IDField) == nil {
		errs = multierror.Append(errs, fmt.Errorf("id field %q does not exist", cfg.IDField))
	}
	if cfg.DisableField != "" {
		if f := query.FieldOf(table, cfg.DisableField); f == nil {
			errs = multierror.Append(errs, fmt.Errorf("disable field %q does not exist", cfg.DisableField))
		} else if err := checkDisableType(f, cfg.DisableFieldType); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &ConfigError{Model: model, Err: err}
	}

	cfg = cfg.clone()
	if cfg.LoadStrategy == nil {
		cfg.LoadStrategy = DefaultConfig().LoadStrategy
	}
	if !cfg.SkipRegistration {
		database.RegisteredModel(database.NewModelAdapter((*T)(nil), cfg.MigrationPriority))
	}
	return &Definition[T]{
		entityType: typ,
		table:      table,
		config:     cfg,
		converter:  converter,
	}, nil
}

// MustDefine is Define that panics on error.
func MustDefine[T any](cfg Config) *Definition[T] {
	def, err := Define[T](cfg)
	if err != nil {
		panic(err)
	}
	return def
}

func (d *Definition[T]) EntityType() reflect.Type { return d.entityType }

// ModelName is the Go type name of the entity.
func (d *Definition[T]) ModelName() string { return d.table.TypeName }

// Config returns a copy of the policy.
func (d *Definition[T]) Config() Config { return d.config.clone() }

// FilterConverter returns the converter selected by FilterConvertStrategy.
func (d *Definition[T]) FilterConverter() filters.Converter { return d.converter }

func embedsBaseModel(typ reflect.Type) bool {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Anonymous && f.Type == baseModelType {
			return true
		}
	}
	return false
}

func tableOf(typ reflect.Type) (table *schema.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return metadata.Tables().Get(typ), nil
}

func checkDisableType(f *schema.Field, kind DisableFieldType) error {
	allowed := timestampTypes
	if kind == DisableBoolean {
		allowed = booleanTypes
	}
	for _, t := range allowed {
		if f.StructField.Type == t {
			return nil
		}
	}
	return fmt.Errorf("disable field %q has type %s, which cannot hold a %s", f.GoName, f.StructField.Type, kind)
}
