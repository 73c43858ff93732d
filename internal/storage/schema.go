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
	"fmt"
	"log/slog"

	applog "cyberapi/internal/log"
)

const versionsTable = "versions"

const versionsCreate = `CREATE TABLE IF NOT EXISTS versions (
	id TEXT PRIMARY KEY NOT NULL check (id != ''),
	version TEXT DEFAULT '',
	created_at TEXT DEFAULT '',
	updated_at TEXT DEFAULT ''
)`

// columnMigration adds a column to an existing table when it is missing.
// definition is the full column definition including its default.
type columnMigration struct {
	table      string
	column     string
	definition string
}

// Additive only: never drop or retype a column here.
var columnMigrations = []columnMigration{
	{table: "proxies", column: "enabled", definition: "enabled TEXT DEFAULT '1'"},
}

// initTables creates the versions table and every managed table, then applies
// the column migrations. It is safe to run on every start.
func initTables(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "init_tables")

	ddl := []string{versionsCreate}
	for _, t := range managedTables {
		ddl = append(ddl, t.Create)
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			l.Error("create table failed", slog.Any("err", err))
			return newError(ErrSchema, "create table", err)
		}
	}
	for _, m := range columnMigrations {
		added, err := ensureColumn(ctx, db, m)
		if err != nil {
			l.Error("column migration failed", slog.String("table", m.table), slog.String("column", m.column), slog.Any("err", err))
			return newError(ErrSchema, "migrate "+m.table+"."+m.column, err)
		}
		if added {
			l.Info("column added", slog.String("table", m.table), slog.String("column", m.column))
		}
	}
	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, m columnMigration) (bool, error) {
	cols, err := tableColumns(ctx, db, m.table)
	if err != nil {
		return false, err
	}
	if cols[m.column] {
		return false, nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", m.table, m.definition)); err != nil {
		return false, fmt.Errorf("alter table %s: %w", m.table, err)
	}
	return true, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}
