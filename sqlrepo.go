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

package sqlrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomoncle/sqlrepo/database"
	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when the global database is used before
// database.InitDB.
var ErrNotInitialized = errors.New("sqlrepo: database is not initialized")

// UnitOfWork runs fn in a session on the global database.
func UnitOfWork(ctx context.Context, fn func(ctx context.Context, session *database.Session) error) error {
	db := database.GetDB()
	if db == nil {
		return ErrNotInitialized
	}
	return UnitOfWorkWithDB(ctx, db, fn)
}

// UnitOfWorkWithDB runs fn in a new session on db. The session is committed
// when fn returns nil and rolled back when it fails or panics. Repositories
// created from the same session share its transaction.
func UnitOfWorkWithDB(ctx context.Context, db *bun.DB, fn func(ctx context.Context, session *database.Session) error) (err error) {
	session := database.NewSession(db)
	defer func() {
		if r := recover(); r != nil {
			_ = session.Close()
			panic(r)
		}
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err = fn(ctx, session); err != nil {
		if rerr := session.Rollback(ctx); rerr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return err
	}
	return session.Commit(ctx)
}
