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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestDatabaseFileOverride(t *testing.T) {
	t.Setenv("HOME", "/users/alice")
	cases := []struct {
		name     string
		override string
		want     string
	}{
		{"directory template", "%HOME%/data", filepath.Join("/users/alice/data", DBFileName)},
		{"dollar template", "$HOME/data", filepath.Join("/users/alice/data", DBFileName)},
		{"sqlite extension", "/custom/store.sqlite", "/custom/store.sqlite"},
		{"db extension any case", "/custom/Store.DB", "/custom/Store.DB"},
		{"surrounding blanks", "  /custom/x.db  ", "/custom/x.db"},
		{"unset variable stays literal", "%CYBERAPI_NOT_SET%/data", filepath.Join("%CYBERAPI_NOT_SET%/data", DBFileName)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLocator(Dirs{Current: t.TempDir()})
			l.SetOverride(tc.override)
			loc := l.DatabaseFile()
			assert.Equal(t, tc.want, loc.Path)
			assert.Equal(t, ModeOverride, loc.Mode)
		})
	}
}

func TestDatabaseFileOverrideSkipsMigration(t *testing.T) {
	cur, legacy, other := t.TempDir(), t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(legacy, DBFileName), "legacy")
	l := NewLocator(Dirs{Current: cur, Legacy: legacy})
	l.SetOverride(other)

	loc := l.DatabaseFile()
	assert.Equal(t, filepath.Join(other, DBFileName), loc.Path)
	assert.NoFileExists(t, filepath.Join(cur, DBFileName))
	assert.NoFileExists(t, loc.Path)

	l.SetOverride("   ")
	assert.Equal(t, ModeCurrent, l.DatabaseFile().Mode)
}

func TestDatabaseFileFreshInstall(t *testing.T) {
	cur := t.TempDir()
	l := NewLocator(Dirs{Current: cur, Legacy: filepath.Join(t.TempDir(), "missing")})
	loc := l.DatabaseFile()
	assert.Equal(t, Location{Path: filepath.Join(cur, DBFileName), Mode: ModeCurrent}, loc)
	assert.NoFileExists(t, loc.Path, "resolution must not create the file")
}

func TestDatabaseFileIsIdempotent(t *testing.T) {
	cur, legacy := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(legacy, DBFileName), "legacy")
	l := NewLocator(Dirs{Current: cur, Legacy: legacy})
	first := l.DatabaseFile()
	second := l.DatabaseFile()
	assert.Equal(t, first, second)

	// a fresh locator, as in the next process, converges on the same file
	assert.Equal(t, first, NewLocator(Dirs{Current: cur, Legacy: legacy}).DatabaseFile())
}

func TestMigrationCopiesLegacyFile(t *testing.T) {
	cur := filepath.Join(t.TempDir(), "portable", "data")
	legacy := t.TempDir()
	legacyDB := filepath.Join(legacy, DBFileName)
	writeFile(t, legacyDB, "SQLite format 3\x00legacy rows")

	l := NewLocator(Dirs{Current: cur, Legacy: legacy})
	loc := l.DatabaseFile()
	require.Equal(t, Location{Path: filepath.Join(cur, DBFileName), Mode: ModeCurrent}, loc)

	require.FileExists(t, legacyDB, "legacy file must survive migration")
	assert.Equal(t, readFile(t, legacyDB), readFile(t, loc.Path))

	entries, err := os.ReadDir(cur)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestMigrationHappensOnce(t *testing.T) {
	cur, legacy := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(legacy, DBFileName), "legacy")
	l := NewLocator(Dirs{Current: cur, Legacy: legacy})

	primary := l.DatabaseFile().Path
	writeFile(t, primary, "changed after migration")

	again := l.DatabaseFile()
	assert.Equal(t, primary, again.Path)
	assert.Equal(t, "changed after migration", readFile(t, primary))
}

func TestConcurrentResolveKeepsWritesToPrimary(t *testing.T) {
	for run := 0; run < 10; run++ {
		cur, legacy := t.TempDir(), t.TempDir()
		big := bytes.Repeat([]byte("legacy page "), 1<<20)
		require.NoError(t, os.WriteFile(filepath.Join(legacy, DBFileName), big, 0o644))
		l := NewLocator(Dirs{Current: cur, Legacy: legacy})

		var wg sync.WaitGroup
		paths := make([]string, 4)
		for i := range paths {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				loc := l.DatabaseFile()
				paths[i] = loc.Path
				if i == 0 {
					_ = os.WriteFile(loc.Path, []byte("USER-DATA"), 0o644)
				}
			}(i)
		}
		wg.Wait()

		primary := filepath.Join(cur, DBFileName)
		for _, p := range paths {
			require.Equal(t, primary, p)
		}
		require.Equal(t, "USER-DATA", readFile(t, primary), "run %d: a second copy replaced the primary", run)
		entries, err := os.ReadDir(cur)
		require.NoError(t, err)
		require.Len(t, entries, 1, "no temp files left behind")
	}
}

func TestCopyNeverReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src.db"), filepath.Join(dir, "dst.db")
	writeFile(t, src, "legacy")
	writeFile(t, dst, "newer")

	require.NoError(t, copyFileAtomic(src, dst))
	assert.Equal(t, "newer", readFile(t, dst))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMigrationFailureFallsBackToLegacy(t *testing.T) {
	base, legacy := t.TempDir(), t.TempDir()
	legacyDB := filepath.Join(legacy, DBFileName)
	writeFile(t, legacyDB, "legacy")
	// the current dir sits below a regular file so it can never be created
	blocker := filepath.Join(base, "blocker")
	writeFile(t, blocker, "x")
	cur := filepath.Join(blocker, "data")

	l := NewLocator(Dirs{Current: cur, Legacy: legacy})
	loc := l.DatabaseFile()
	assert.Equal(t, Location{Path: legacyDB, Mode: ModeLegacy}, loc)
	assert.NoFileExists(t, filepath.Join(cur, DBFileName))

	// retried on the next resolution, and succeeds once the blocker is gone
	require.NoError(t, os.Remove(blocker))
	loc = l.DatabaseFile()
	assert.Equal(t, Location{Path: filepath.Join(cur, DBFileName), Mode: ModeCurrent}, loc)
	assert.Equal(t, "legacy", readFile(t, loc.Path))
}

func TestLegacyDirectoryIgnoredWhenSameAsCurrent(t *testing.T) {
	dir := t.TempDir()
	l := NewLocator(Dirs{Current: dir, Legacy: dir})
	assert.Equal(t, Location{Path: filepath.Join(dir, DBFileName), Mode: ModeCurrent}, l.DatabaseFile())
}

func TestSettingsFileFollowsSameRules(t *testing.T) {
	cur, legacy := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(legacy, SettingsFileName), `{"theme":"dark"}`)
	l := NewLocator(Dirs{Current: cur, Legacy: legacy})
	l.SetOverride(t.TempDir())

	loc := l.SettingsFile()
	assert.Equal(t, Location{Path: filepath.Join(cur, SettingsFileName), Mode: ModeCurrent}, loc)
	assert.Equal(t, `{"theme":"dark"}`, readFile(t, loc.Path))
	assert.FileExists(t, filepath.Join(legacy, SettingsFileName))
}
