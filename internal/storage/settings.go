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
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	applog "cyberapi/internal/log"
)

// LoadSettings reads the settings document. found is false when no settings
// file exists yet.
func (l *Locator) LoadSettings() (doc json.RawMessage, found bool, err error) {
	loc := l.SettingsFile()
	b, err := os.ReadFile(loc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, newError(ErrPath, "read settings", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, false, nil
	}
	if !json.Valid(b) {
		return nil, true, newError(ErrCodec, "read settings", errors.New(loc.Path+": invalid JSON"))
	}
	return json.RawMessage(b), true, nil
}

// SaveSettings validates doc and writes it, indented, to the settings file in
// the current data directory.
func (l *Locator) SaveSettings(doc []byte) error {
	if !json.Valid(doc) {
		return newError(ErrCodec, "save settings", errors.New("invalid JSON"))
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return newError(ErrCodec, "save settings", err)
	}
	buf.WriteByte('\n')
	if err := writeFileAtomic(l.CurrentPath(SettingsFileName), buf.Bytes()); err != nil {
		return newError(ErrPath, "save settings", err)
	}
	return nil
}

// ClearSettings removes the settings file from the current directory and,
// best effort, the legacy copy so it is not migrated back.
func (l *Locator) ClearSettings() error {
	if err := os.Remove(l.CurrentPath(SettingsFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newError(ErrPath, "clear settings", err)
	}
	if legacy := l.LegacyPath(SettingsFileName); legacy != "" {
		if err := os.Remove(legacy); err != nil && !errors.Is(err, fs.ErrNotExist) {
			applog.WithComponent("storage").Warn("remove legacy settings failed",
				slog.String("path", legacy), slog.Any("err", err))
		}
	}
	return nil
}

// SettingsDBPath returns the dbPath string of a settings document, or "".
func SettingsDBPath(doc []byte) string {
	var s struct {
		DBPath *string `json:"dbPath"`
	}
	if len(doc) == 0 || json.Unmarshal(doc, &s) != nil || s.DBPath == nil {
		return ""
	}
	return strings.TrimSpace(*s.DBPath)
}

// SaveDatabaseOverride stores path as dbPath in the settings document,
// keeping every other field, and applies it to the locator. A blank path
// removes the field.
func (l *Locator) SaveDatabaseOverride(path string) error {
	doc, _, err := l.LoadSettings()
	if err != nil {
		return err
	}
	fields := map[string]json.RawMessage{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &fields); err != nil {
			return newError(ErrCodec, "save db path", errors.New("settings document is not an object"))
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	path = strings.TrimSpace(path)
	if path == "" {
		delete(fields, "dbPath")
	} else {
		v, _ := json.Marshal(path)
		fields["dbPath"] = v
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return newError(ErrCodec, "save db path", err)
	}
	if err := l.SaveSettings(out); err != nil {
		return err
	}
	l.SetOverride(path)
	return nil
}
