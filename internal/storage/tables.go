/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Text is a nullable TEXT column value that also remembers whether it was
// present in the document it was decoded from. Absent columns are left out
// of inserts so the column default applies.
type Text struct {
	String string
	Valid  bool
	set    bool
}

// NewText returns a present, non-null value.
func NewText(s string) Text { return Text{String: s, Valid: true, set: true} }

func (t *Text) Scan(src any) error {
	t.set = true
	switch v := src.(type) {
	case nil:
		t.String, t.Valid = "", false
	case string:
		t.String, t.Valid = v, true
	case []byte:
		t.String, t.Valid = string(v), true
	default:
		t.String, t.Valid = fmt.Sprint(v), true
	}
	return nil
}

func (t Text) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.String, nil
}

func (t Text) IsZero() bool { return !t.set }

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.String)
}

func (t *Text) UnmarshalJSON(b []byte) error {
	t.set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		t.String, t.Valid = "", false
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: column value must be a string or null", ErrCodec)
	}
	t.String, t.Valid = s, true
	return nil
}

type field struct {
	column string
	value  *Text
}

// Record is a row of a managed table.
type Record interface {
	fields() []field
}

// ManagedTable describes one persisted record type.
type ManagedTable struct {
	Name   string
	Create string
	New    func() Record
}

// Columns lists the table's columns in declaration order.
func (t ManagedTable) Columns() []string {
	fs := t.New().fields()
	cols := make([]string, len(fs))
	for i, f := range fs {
		cols[i] = f.column
	}
	return cols
}

type APICollection struct {
	ID          Text `json:"id,omitzero"`
	Name        Text `json:"name,omitzero"`
	Description Text `json:"description,omitzero"`
	CreatedAt   Text `json:"created_at,omitzero"`
	UpdatedAt   Text `json:"updated_at,omitzero"`
}

func (r *APICollection) fields() []field {
	return []field{{"id", &r.ID}, {"name", &r.Name}, {"description", &r.Description},
		{"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

type APIFolder struct {
	ID         Text `json:"id,omitzero"`
	Collection Text `json:"collection,omitzero"`
	Children   Text `json:"children,omitzero"`
	Parent     Text `json:"parent,omitzero"`
	Name       Text `json:"name,omitzero"`
	CreatedAt  Text `json:"created_at,omitzero"`
	UpdatedAt  Text `json:"updated_at,omitzero"`
}

func (r *APIFolder) fields() []field {
	return []field{{"id", &r.ID}, {"collection", &r.Collection}, {"children", &r.Children},
		{"parent", &r.Parent}, {"name", &r.Name}, {"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

type APISetting struct {
	ID         Text `json:"id,omitzero"`
	Collection Text `json:"collection,omitzero"`
	Name       Text `json:"name,omitzero"`
	Category   Text `json:"category,omitzero"`
	Setting    Text `json:"setting,omitzero"`
	CreatedAt  Text `json:"created_at,omitzero"`
	UpdatedAt  Text `json:"updated_at,omitzero"`
}

func (r *APISetting) fields() []field {
	return []field{{"id", &r.ID}, {"collection", &r.Collection}, {"name", &r.Name},
		{"category", &r.Category}, {"setting", &r.Setting}, {"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

type Environment struct {
	ID         Text `json:"id,omitzero"`
	Collection Text `json:"collection,omitzero"`
	Name       Text `json:"name,omitzero"`
	Enabled    Text `json:"enabled,omitzero"`
	CreatedAt  Text `json:"created_at,omitzero"`
	UpdatedAt  Text `json:"updated_at,omitzero"`
}

func (r *Environment) fields() []field {
	return []field{{"id", &r.ID}, {"collection", &r.Collection}, {"name", &r.Name},
		{"enabled", &r.Enabled}, {"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

type Proxy struct {
	ID        Text `json:"id,omitzero"`
	Proxy     Text `json:"proxy,omitzero"`
	List      Text `json:"list,omitzero"`
	Mode      Text `json:"mode,omitzero"`
	Enabled   Text `json:"enabled,omitzero"`
	CreatedAt Text `json:"created_at,omitzero"`
	UpdatedAt Text `json:"updated_at,omitzero"`
}

func (r *Proxy) fields() []field {
	return []field{{"id", &r.ID}, {"proxy", &r.Proxy}, {"list", &r.List}, {"mode", &r.Mode},
		{"enabled", &r.Enabled}, {"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

type Variable struct {
	ID          Text `json:"id,omitzero"`
	Category    Text `json:"category,omitzero"`
	Collection  Text `json:"collection,omitzero"`
	Environment Text `json:"environment,omitzero"`
	Name        Text `json:"name,omitzero"`
	Value       Text `json:"value,omitzero"`
	Enabled     Text `json:"enabled,omitzero"`
	CreatedAt   Text `json:"created_at,omitzero"`
	UpdatedAt   Text `json:"updated_at,omitzero"`
}

func (r *Variable) fields() []field {
	return []field{{"id", &r.ID}, {"category", &r.Category}, {"collection", &r.Collection},
		{"environment", &r.Environment}, {"name", &r.Name}, {"value", &r.Value}, {"enabled", &r.Enabled},
		{"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

// Version is a row of the versions table. It is not part of backups.
type Version struct {
	ID        Text `json:"id,omitzero"`
	Version   Text `json:"version,omitzero"`
	CreatedAt Text `json:"created_at,omitzero"`
	UpdatedAt Text `json:"updated_at,omitzero"`
}

func (r *Version) fields() []field {
	return []field{{"id", &r.ID}, {"version", &r.Version}, {"created_at", &r.CreatedAt}, {"updated_at", &r.UpdatedAt}}
}

var managedTables = []ManagedTable{
	{
		Name: "api_collections",
		Create: `CREATE TABLE IF NOT EXISTS api_collections (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			name TEXT DEFAULT '',
			description TEXT DEFAULT '',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &APICollection{} },
	},
	{
		Name: "api_folders",
		Create: `CREATE TABLE IF NOT EXISTS api_folders (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			collection TEXT DEFAULT '',
			children TEXT DEFAULT '',
			parent TEXT DEFAULT '',
			name TEXT DEFAULT '',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &APIFolder{} },
	},
	{
		Name: "api_settings",
		Create: `CREATE TABLE IF NOT EXISTS api_settings (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			collection TEXT DEFAULT '',
			name TEXT DEFAULT '',
			category TEXT DEFAULT '',
			setting TEXT DEFAULT '',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &APISetting{} },
	},
	{
		Name: "environments",
		Create: `CREATE TABLE IF NOT EXISTS environments (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			collection TEXT DEFAULT '',
			name TEXT DEFAULT '',
			enabled TEXT DEFAULT '',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &Environment{} },
	},
	{
		Name: "proxies",
		Create: `CREATE TABLE IF NOT EXISTS proxies (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			proxy TEXT DEFAULT '',
			list TEXT DEFAULT '',
			mode TEXT DEFAULT '',
			enabled TEXT DEFAULT '1',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &Proxy{} },
	},
	{
		Name: "variables",
		Create: `CREATE TABLE IF NOT EXISTS variables (
			id TEXT PRIMARY KEY NOT NULL check (id != ''),
			category TEXT DEFAULT '',
			collection TEXT DEFAULT '',
			environment TEXT DEFAULT '',
			name TEXT DEFAULT '',
			value TEXT DEFAULT '',
			enabled TEXT DEFAULT '',
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)`,
		New: func() Record { return &Variable{} },
	},
}

// Tables returns the managed tables in import order.
func Tables() []ManagedTable {
	return append([]ManagedTable(nil), managedTables...)
}

// Table looks up a managed table by name.
func Table(name string) (ManagedTable, bool) {
	for _, t := range managedTables {
		if t.Name == name {
			return t, true
		}
	}
	return ManagedTable{}, false
}
