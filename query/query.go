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
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var (
	// ErrMultipleResults is returned by GetItem when more than one row matches.
	ErrMultipleResults = errors.New("query: multiple rows match")
	// ErrNoData is returned by DBUpdate when the payload is empty.
	ErrNoData = errors.New("query: no data to update")
	// ErrInvalidJoin is matched by errors caused by unusable joins.
	ErrInvalidJoin = errors.New("query: invalid join")
)

// Session is the unit of work a Builder runs in.
type Session interface {
	Conn(ctx context.Context) (bun.IDB, error)
	Dialect() schema.Dialect
	Flush(ctx context.Context) error
	Commit(ctx context.Context) error
}

// Data maps field names to new values.
type Data map[string]any

// NoneNotAllowedError is returned when a field may not be set to nil.
type NoneNotAllowedError struct {
	Model string
	Field string
}

func (e *NoneNotAllowedError) Error() string {
	return fmt.Sprintf("query: field %q of %s may not be set to nil", e.Field, e.Model)
}

func invalidJoin(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJoin, fmt.Sprintf(format, args...))
}
