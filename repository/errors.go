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
	"errors"
	"fmt"
)

// ErrConfig is matched by every ConfigError.
var ErrConfig = errors.New("repository configuration error")

// ConfigError reports a repository that cannot be used as declared.
type ConfigError struct {
	Model  string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "repository"
	if e.Model != "" {
		msg += " " + e.Model
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(model, field, format string, args ...any) *ConfigError {
	return &ConfigError{Model: model, Field: field, Reason: fmt.Sprintf(format, args...)}
}
