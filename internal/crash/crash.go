/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns an unrecovered panic into a logged error, a report
// file and a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	applog "cyberapi/internal/log"
	"cyberapi/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Reporter writes crash reports next to the database file once its location
// is known, and into the temp dir before that. The zero Reporter is ready.
type Reporter struct {
	mu       sync.Mutex
	dir      string
	database string
}

// SetDatabase records the database file; reports go to its directory.
func (r *Reporter) SetDatabase(path string) {
	r.mu.Lock()
	r.database = path
	r.dir = filepath.Dir(path)
	r.mu.Unlock()
}

// Dir returns the report directory.
func (r *Reporter) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dir == "" {
		return os.TempDir()
	}
	return r.dir
}

// Recover captures a panic, logs an error with stacktrace,
// writes a report file and exits with status 2.
//
// Usage: defer rep.Recover()
func (r *Reporter) Recover() {
	if p := recover(); p != nil {
		r.handle(p, debug.Stack())
	}
}

func (r *Reporter) handle(p any, stack []byte) {
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.Any("panic", p), slog.String("stack", string(stack)))

	reportPath, err := r.writeReport(p, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err), slog.String("path", reportPath))
	}
	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	// Exit with a non-zero code to indicate failure in CLI context.
	exitFn(2)
}

func (r *Reporter) writeReport(panicVal any, stack []byte) (string, error) {
	dir := r.Dir()
	r.mu.Lock()
	db := r.database
	r.mu.Unlock()
	_ = os.MkdirAll(dir, 0o755)
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "CyberAPI Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if db != "" {
		_, _ = fmt.Fprintf(&buf, "Database: %s\n", db)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return path, err
	}
	_ = f.Sync()
	return path, f.Close()
}
