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
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/uptrace/bun"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	nullTimeType = reflect.TypeOf(bun.NullTime{})
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// stringToTimeHook parses strings into time.Time and bun.NullTime.
func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType && to != nullTimeType {
		return data, nil
	}
	var t time.Time
	switch v := data.(type) {
	case string:
		parsed, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		t = parsed
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return data, nil
		}
		t = *v
	default:
		return data, nil
	}
	if to == nullTimeType {
		return bun.NullTime{Time: t}, nil
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

// convertValue converts v to typ. Assignable values pass through, nil
// becomes the zero value and everything else is weakly decoded.
func convertValue(v any, typ reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(typ), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return reflect.Zero(typ), nil
	}
	if rv.Type().AssignableTo(typ) {
		return rv, nil
	}
	if typ.Kind() == reflect.Ptr && rv.Type().AssignableTo(typ.Elem()) {
		ptr := reflect.New(typ.Elem())
		ptr.Elem().Set(rv)
		return ptr, nil
	}

	out := reflect.New(typ)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out.Interface(),
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTimeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(v); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", v, typ, err)
	}
	return out.Elem(), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// sameValue compares field values, treating instants as equal regardless
// of location.
func sameValue(a, b reflect.Value) bool {
	for a.Kind() == reflect.Ptr && b.Kind() == reflect.Ptr {
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		a, b = a.Elem(), b.Elem()
	}
	if a.Type() == timeType && b.Type() == timeType {
		return a.Interface().(time.Time).Equal(b.Interface().(time.Time))
	}
	if a.Type() == nullTimeType && b.Type() == nullTimeType {
		return a.Interface().(bun.NullTime).Time.Equal(b.Interface().(bun.NullTime).Time)
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}
