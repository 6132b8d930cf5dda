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
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = errors.New("database: session is closed")

// Session is a unit of work over a bun database. The first call to Conn
// begins a transaction that stays open until Commit, Rollback or Close, so
// repositories sharing a session see each other's pending writes.
//
// A session must not be used by several goroutines at once.
type Session struct {
	db     *bun.DB
	id     string
	logger Logger
	txOpts *sql.TxOptions

	mu     sync.Mutex
	tx     bun.Tx
	active bool
	dirty  bool
	closed bool
}

type SessionOption func(*Session)

func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTxOptions(opts *sql.TxOptions) SessionOption {
	return func(s *Session) { s.txOpts = opts }
}

func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{db: db, id: uuid.NewString(), logger: GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) DB() *bun.DB { return s.db }

func (s *Session) Dialect() schema.Dialect { return s.db.Dialect() }

// Conn returns the session transaction, beginning it if needed.
func (s *Session) Conn(ctx context.Context) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if !s.active {
		tx, err := s.db.BeginTx(ctx, s.txOpts)
		if err != nil {
			return nil, err
		}
		s.tx, s.active = tx, true
		s.logger.Debug("Session transaction started", "session", s.id)
	}
	return s.tx, nil
}

// Flush makes pending writes visible inside the transaction without ending
// it. Statements are sent eagerly, so this only records that the unit of
// work holds uncommitted changes.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.dirty = s.active
	return nil
}

// Commit ends the current transaction. Committing without one is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.active {
		return nil
	}
	err := s.tx.Commit()
	s.reset()
	if err != nil {
		return err
	}
	s.logger.Debug("Session committed", "session", s.id)
	return nil
}

// Rollback discards the current transaction. Rolling back without one is a no-op.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.rollback()
}

// Close rolls back any open transaction. Closing twice is allowed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.rollback()
	s.closed = true
	return err
}

func (s *Session) rollback() error {
	if !s.active {
		return nil
	}
	err := s.tx.Rollback()
	s.reset()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	s.logger.Debug("Session rolled back", "session", s.id)
	return nil
}

func (s *Session) reset() {
	s.tx = bun.Tx{}
	s.active = false
	s.dirty = false
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Dirty reports whether the open transaction holds flushed writes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
