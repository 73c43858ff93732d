/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cyberapi/internal/lazy"
	applog "cyberapi/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// PoolOptions bound the connection pool of a Store.
type PoolOptions struct {
	MaxOpen        int
	MinIdle        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

// DefaultPoolOptions returns 10 open, 2 idle, 5s acquire and 60s idle.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxOpen: 10, MinIdle: 2, AcquireTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
}

func (p PoolOptions) withDefaults() PoolOptions {
	d := DefaultPoolOptions()
	if p.MaxOpen <= 0 {
		p.MaxOpen = d.MaxOpen
	}
	if p.MinIdle < 0 {
		p.MinIdle = 0
	}
	if p.MinIdle > p.MaxOpen {
		p.MinIdle = p.MaxOpen
	}
	if p.AcquireTimeout <= 0 {
		p.AcquireTimeout = d.AcquireTimeout
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = d.IdleTimeout
	}
	return p
}

type handle struct {
	db  *sql.DB
	loc Location
}

// Store is the process-wide database handle. The database is resolved,
// created, opened and initialized on the first call to DB; every later
// caller shares that pool. Concurrent first callers wait for the same
// initialization. A failed initialization is retried by the next caller.
type Store struct {
	loc  *Locator
	pool PoolOptions
	cell lazy.Cell[*handle]
	now  func() time.Time
}

// NewStore returns a Store that resolves its file through loc.
func NewStore(loc *Locator, pool PoolOptions) *Store {
	return &Store{loc: loc, pool: pool.withDefaults(), now: time.Now}
}

// Locator returns the locator the store resolves files with.
func (s *Store) Locator() *Locator { return s.loc }

// DB returns the shared pool, opening it on first use.
func (s *Store) DB(ctx context.Context) (*sql.DB, error) {
	h, err := s.cell.Get(ctx, s.open)
	if err != nil {
		return nil, err
	}
	return h.db, nil
}

// Location returns where the open database lives. It opens the store if
// needed.
func (s *Store) Location(ctx context.Context) (Location, error) {
	h, err := s.cell.Get(ctx, s.open)
	if err != nil {
		return Location{}, err
	}
	return h.loc, nil
}

// InitTables opens the store, which creates all tables and applies the
// column migrations. Calling it again is a no-op.
func (s *Store) InitTables(ctx context.Context) error {
	_, err := s.DB(ctx)
	return err
}

// Close releases the pool. A later DB call opens it again.
func (s *Store) Close() error {
	h, ok := s.cell.Take()
	if !ok {
		return nil
	}
	return h.db.Close()
}

func (s *Store) open(ctx context.Context) (*handle, error) {
	loc := s.loc.DatabaseFile()
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(
		slog.String("path", loc.Path), slog.String("mode", string(loc.Mode)),
	)
	if err := ensureFile(loc.Path); err != nil {
		l.Error("prepare database file failed", slog.Any("err", err))
		return nil, newError(ErrPath, "prepare database file", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(loc.Path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, newError(ErrPath, "open sqlite", err)
	}
	db.SetMaxOpenConns(s.pool.MaxOpen)
	db.SetMaxIdleConns(s.pool.MinIdle)
	db.SetConnMaxIdleTime(s.pool.IdleTimeout)

	pctx, cancel := context.WithTimeout(ctx, s.pool.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		l.Error("sqlite ping failed", slog.Any("err", err))
		return nil, newError(ErrPath, "open sqlite", err)
	}
	if err := initTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Info("store ready")
	return &handle{db: db, loc: loc}, nil
}

// conn checks out a single connection, waiting at most AcquireTimeout.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}
	actx, cancel := context.WithTimeout(ctx, s.pool.AcquireTimeout)
	defer cancel()
	c, err := db.Conn(actx)
	if err != nil {
		return nil, newError(ErrQuery, "acquire connection", err)
	}
	return c, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return f.Close()
}
