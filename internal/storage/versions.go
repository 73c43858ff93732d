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
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddVersion records that the application ran with version v.
func (s *Store) AddVersion(ctx context.Context, v string) (Version, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Version{}, newError(ErrCodec, "add version", errors.New("version is required"))
	}
	db, err := s.DB(ctx)
	if err != nil {
		return Version{}, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	rec := Version{ID: NewText(uuid.NewString()), Version: NewText(v), CreatedAt: NewText(now), UpdatedAt: NewText(now)}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO versions (id, version, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return Version{}, newError(ErrQuery, "add version", err)
	}
	return rec, nil
}

// LatestVersion returns the most recently recorded version. ok is false when
// none was recorded yet.
func (s *Store) LatestVersion(ctx context.Context) (v Version, ok bool, err error) {
	db, err := s.DB(ctx)
	if err != nil {
		return Version{}, false, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT id, version, created_at, updated_at FROM versions ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	if err := row.Scan(&v.ID, &v.Version, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Version{}, false, nil
		}
		return Version{}, false, newError(ErrQuery, "latest version", err)
	}
	return v, true, nil
}

// RecordVersion adds v unless it is already the latest recorded version.
func (s *Store) RecordVersion(ctx context.Context, v string) (bool, error) {
	cur, ok, err := s.LatestVersion(ctx)
	if err != nil {
		return false, err
	}
	if ok && cur.Version.String == strings.TrimSpace(v) {
		return false, nil
	}
	if _, err := s.AddVersion(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}
