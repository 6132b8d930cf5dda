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
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilter is matched by every error caused by a malformed filter.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnknownField is matched by UnknownFieldError.
	ErrUnknownField = errors.New("unknown field")
)

// UnknownStrategyError is returned when a strategy has no converter.
type UnknownStrategyError struct {
	Strategy Strategy
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown filter convert strategy: %d", int(e.Strategy))
}

// UnknownFieldError is returned when a filter names a field the entity does
// not have and the column mapping does not know.
type UnknownFieldError struct {
	Model string
	Field string
}

func (e *UnknownFieldError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("unknown field %q", e.Field)
	}
	return fmt.Sprintf("unknown field %q for model %s", e.Field, e.Model)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField || target == ErrInvalidFilter
}

// InvalidFilterError describes a filter specification that cannot be converted.
type InvalidFilterError struct {
	Key    string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid filter: %s", e.Reason)
	}
	return fmt.Sprintf("invalid filter %q: %s", e.Key, e.Reason)
}

func (e *InvalidFilterError) Is(target error) bool {
	return target == ErrInvalidFilter
}

func invalidf(key, format string, args ...interface{}) error {
	return &InvalidFilterError{Key: key, Reason: fmt.Sprintf(format, args...)}
}
