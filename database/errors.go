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

package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoIndexErr:                  "no_index",
	NoColumnErr:                 "no_column",
	ExistIndexErr:               "exist_index",
	ExistColumnErr:              "exist_column",
	NoTableErr:                  "no_table",
	ExistTableErr:               "exist_table",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_constraint_violation",
	DataTruncatedErr:            "data_truncated",
	InvalidTypeCastErr:          "invalid_type_cast",
}

func (e SQLError) String() string {
	if name, ok := sqlErrorNames[e]; ok {
		return name
	}
	return "unknown"
}

var mysqlCodes = map[uint16]SQLError{
	1091: NoIndexErr,
	1054: NoColumnErr,
	1061: ExistIndexErr,
	1060: ExistColumnErr,
	1146: NoTableErr,
	1050: ExistTableErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	1451: ForeignKeyViolationErr,
	1452: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1406: DataTruncatedErr,
}

// SQLSTATE codes shared by lib/pq and pgx.
var sqlStateCodes = map[string]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"42701": ExistColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
}

// ClassifyError maps driver errors from mysql, postgres (lib/pq and pgx) and
// sqlite onto SQLError. Unrecognised errors yield UnknownErr.
func ClassifyError(err error) SQLError {
	_, kind := IsSqlError(err)
	return kind
}

// IsSqlError reports whether err is a recognised database error and its kind.
func IsSqlError(err error) (bool, SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if kind, ok := mysqlCodes[mysqlErr.Number]; ok {
			return true, kind
		}
		return true, UnknownErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, sqlStateCodes[string(pqErr.Code)]
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, sqlStateCodes[pgErr.Code]
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyMessage(s string) (bool, SQLError) {
	has := func(parts ...string) bool {
		for _, p := range parts {
			if strings.Contains(s, p) {
				return true
			}
		}
		return false
	}
	switch {
	case has("sqlstate 42703", "undefined column", "no such column"):
		return true, NoColumnErr
	case has("sqlstate 42704", "no such index"):
		return true, NoIndexErr
	case has("sqlstate 42p01", "undefined table", "no such table"):
		return true, NoTableErr
	case has("already exists") && has("index"):
		return true, ExistIndexErr
	case has("already exists") && has("table", "relation"):
		return true, ExistTableErr
	case has("duplicate column name"):
		return true, ExistColumnErr
	case has("duplicate key value", "unique constraint failed", "sqlstate 23505"):
		return true, DuplicateKeyErr
	case has("not-null constraint", "not null constraint failed", "sqlstate 23502"):
		return true, NotNullViolationErr
	case has("foreign key violation", "foreign key constraint failed", "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case has("check constraint", "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case has("string data right truncation", "data truncated", "sqlstate 22001"):
		return true, DataTruncatedErr
	case has("datatype mismatch", "sqlstate 42804"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}
