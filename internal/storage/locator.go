/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cyberapi/internal/envpath"
	applog "cyberapi/internal/log"
)

const (
	DBFileName       = "db.db"
	SettingsFileName = "settings.json"
)

// Mode tells which rule produced a Location.
type Mode string

const (
	ModeOverride Mode = "override"
	ModeCurrent  Mode = "current"
	ModeLegacy   Mode = "legacy"
)

// Location is a resolved file path and the mode that produced it.
type Location struct {
	Path string
	Mode Mode
}

// Dirs are the directories a Locator works with. Legacy may be empty, in
// which case legacy lookups are skipped.
type Dirs struct {
	Current string
	Legacy  string
}

// Locator resolves the database and settings files.
type Locator struct {
	dirs   Dirs
	expand func(string) string

	mu       sync.RWMutex
	override string

	// migrateMu serializes resolve so a gap is migrated once.
	migrateMu sync.Mutex
}

// NewLocator returns a Locator for dirs. Override templates are expanded
// against the process environment.
func NewLocator(dirs Dirs) *Locator {
	return &Locator{dirs: dirs, expand: envpath.Expand}
}

// Dirs returns the directories the locator was built with.
func (l *Locator) Dirs() Dirs { return l.dirs }

// SetOverride sets the database override template. A blank value clears it.
func (l *Locator) SetOverride(template string) {
	l.mu.Lock()
	l.override = strings.TrimSpace(template)
	l.mu.Unlock()
}

// Override returns the current override template.
func (l *Locator) Override() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.override
}

// DatabaseFile resolves the database file. A configured override wins: a
// path ending in .db or .sqlite is used as is, anything else is treated as a
// directory holding DBFileName. Without an override the current/legacy
// rules of resolve apply.
func (l *Locator) DatabaseFile() Location {
	if tpl := l.Override(); tpl != "" {
		p := l.expand(tpl)
		if hasDBExt(p) {
			return Location{Path: p, Mode: ModeOverride}
		}
		return Location{Path: filepath.Join(p, DBFileName), Mode: ModeOverride}
	}
	return l.resolve(DBFileName)
}

// SettingsFile resolves the settings file. Settings have no override.
func (l *Locator) SettingsFile() Location {
	return l.resolve(SettingsFileName)
}

// CurrentPath is where name lives in the current data directory, whether
// or not it exists yet.
func (l *Locator) CurrentPath(name string) string {
	return filepath.Join(l.dirs.Current, name)
}

// LegacyPath is where name lives in the legacy directory, or "" when no
// legacy directory is known.
func (l *Locator) LegacyPath(name string) string {
	if strings.TrimSpace(l.dirs.Legacy) == "" {
		return ""
	}
	return filepath.Join(l.dirs.Legacy, name)
}

// resolve returns the current copy of name when it exists. Otherwise it copies
// the legacy file into the current directory and returns the copy; when that
// copy fails the legacy path is returned and the copy is tried again on the
// next call. The legacy file is never removed here.
func (l *Locator) resolve(name string) Location {
	l.migrateMu.Lock()
	defer l.migrateMu.Unlock()

	primary := l.CurrentPath(name)
	if isRegular(primary) {
		return Location{Path: primary, Mode: ModeCurrent}
	}
	legacy := l.LegacyPath(name)
	if legacy == "" || filepath.Clean(legacy) == filepath.Clean(primary) || !isRegular(legacy) {
		return Location{Path: primary, Mode: ModeCurrent}
	}

	lg := applog.WithOperation(applog.WithComponent("storage"), "migrate").With(
		slog.String("from", legacy), slog.String("to", primary),
	)
	if err := copyFileAtomic(legacy, primary); err != nil {
		lg.Warn("legacy copy failed, using legacy location", slog.Any("err", err))
		return Location{Path: legacy, Mode: ModeLegacy}
	}
	lg.Info("migrated legacy file")
	return Location{Path: primary, Mode: ModeCurrent}
}

func hasDBExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".db", ".sqlite":
		return true
	}
	return false
}

func isRegular(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// copyFileAtomic copies src to dst through a temp file in dst's directory so
// dst only ever appears complete. An existing dst is never replaced: when one
// shows up first the copy is dropped and nil is returned.
func copyFileAtomic(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := io.Copy(tmp, sf); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return publishNoClobber(tmpName, dst)
}

// publishNoClobber moves tmp to dst unless dst exists. Hard links give the
// check and the move in one step; filesystems without links (FAT on a
// removable drive) fall back to a stat and rename.
func publishNoClobber(tmp, dst string) error {
	err := os.Link(tmp, dst)
	if err == nil || errors.Is(err, fs.ErrExist) {
		_ = os.Remove(tmp)
		return nil
	}
	if _, serr := os.Lstat(dst); serr == nil {
		_ = os.Remove(tmp)
		return nil
	}
	return os.Rename(tmp, dst)
}

// writeFileAtomic writes data to path through a temp file and rename.
func writeFileAtomic(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
