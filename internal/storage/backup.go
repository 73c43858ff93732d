/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	applog "cyberapi/internal/log"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// EntrySchema is the JSON schema every <table>.json archive entry must match:
// an array of flat objects whose values are strings or null.
const EntrySchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "array",
	"items": {
		"type": "object",
		"additionalProperties": {"type": ["string", "null"]}
	}
}`

var entrySchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(EntrySchema))
})

// BackupFileName returns the archive name for the given date stamp.
func BackupFileName(date string) string {
	return "cyberapi-backup-" + date + ".zip"
}

// EntryName is the archive entry holding a table's rows.
func EntryName(table string) string { return table + ".json" }

// ExportAll writes every managed table into a zip archive next to the
// database file and returns the archive path. Each table becomes one
// <table>.json entry holding a JSON array, empty tables included. The archive
// is assembled in a temp file and only renamed into place once every table
// has been written, so a failed export leaves nothing behind.
func (s *Store) ExportAll(ctx context.Context) (path string, err error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "export")
	defer func() {
		if err != nil {
			l.Error("export failed", slog.Any("err", err))
		}
	}()

	loc, err := s.Location(ctx)
	if err != nil {
		return "", err
	}
	c, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	defer c.Close()

	dir := filepath.Dir(loc.Path)
	final := filepath.Join(dir, BackupFileName(s.now().Format(time.DateOnly)))
	f, err := os.CreateTemp(dir, ".cyberapi-backup-*.zip.tmp")
	if err != nil {
		return "", newError(ErrPath, "create archive", err)
	}
	tmpName := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	// one read transaction so all tables come from the same snapshot
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return "", newError(ErrQuery, "begin export", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := s.now()
	zw := zip.NewWriter(f)
	for _, t := range managedTables {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := exportTable(ctx, tx, t)
		if err != nil {
			return "", err
		}
		if err := addArchiveEntry(zw, EntryName(t.Name), data, stamp); err != nil {
			return "", newError(ErrPath, "write "+EntryName(t.Name), err)
		}
		l.Debug("table exported", slog.String("table", t.Name), slog.Int("bytes", len(data)))
	}
	if err := zw.Close(); err != nil {
		return "", newError(ErrPath, "finish archive", err)
	}
	if err := f.Sync(); err != nil {
		return "", newError(ErrPath, "sync archive", err)
	}
	if err := f.Close(); err != nil {
		return "", newError(ErrPath, "close archive", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", newError(ErrPath, "rename archive", err)
	}
	l.Info("archive written", slog.String("file", final))
	return final, nil
}

func addArchiveEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fh := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified}
	fh.SetMode(0o755)
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func exportTable(ctx context.Context, q querier, t ManagedTable) ([]byte, error) {
	cols := t.Columns()
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), t.Name))
	if err != nil {
		return nil, newError(ErrQuery, "read "+t.Name, err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	for rows.Next() {
		rec := t.New()
		fs := rec.fields()
		dest := make([]any, len(fs))
		for i := range fs {
			dest[i] = fs[i].value
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, newError(ErrQuery, "scan "+t.Name, err)
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, newError(ErrCodec, "encode "+t.Name, err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, newError(ErrQuery, "read "+t.Name, err)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// ImportAll replaces the contents of every managed table with the rows of
// the archive at path. Tables are handled one at a time in registry order:
// the entry is decoded, then the table is cleared and refilled in a single
// transaction. A table without an entry ends up empty. A decoding failure
// stops the import before the failing table is cleared, so that table keeps
// its old rows; tables handled before it keep their new contents.
func (s *Store) ImportAll(ctx context.Context, path string) (err error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "import").With(slog.String("file", path))
	defer func() {
		if err != nil {
			l.Error("import failed", slog.Any("err", err))
		}
	}()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return newError(ErrArchive, "open archive", err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	for _, t := range managedTables {
		if err := ctx.Err(); err != nil {
			return err
		}
		var recs []Record
		if f, ok := entries[EntryName(t.Name)]; ok {
			data, err := readArchiveEntry(f)
			if err != nil {
				return newError(ErrArchive, "read "+f.Name, err)
			}
			if recs, err = decodeEntry(t, data); err != nil {
				return err
			}
		} else {
			l.Warn("archive has no entry for table, leaving it empty", slog.String("table", t.Name))
		}
		if err := replaceTable(ctx, c, t, recs); err != nil {
			return err
		}
		l.Debug("table imported", slog.String("table", t.Name), slog.Int("rows", len(recs)))
	}
	l.Info("archive imported")
	return nil
}

// maxEntryBytes caps the decompressed size of one archive entry.
var maxEntryBytes int64 = 512 << 20

func readArchiveEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxEntryBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntryBytes)
	}
	return data, nil
}

// decodeEntry validates data against EntrySchema and decodes it into
// records of t.
func decodeEntry(t ManagedTable, data []byte) ([]Record, error) {
	op := "decode " + EntryName(t.Name)
	if !json.Valid(data) {
		return nil, newError(ErrCodec, op, errors.New("invalid JSON"))
	}
	schema, err := entrySchema()
	if err != nil {
		return nil, newError(ErrCodec, op, err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, newError(ErrCodec, op, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, newError(ErrCodec, op, errors.New(strings.Join(msgs, "; ")))
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, newError(ErrCodec, op, err)
	}
	recs := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec := t.New()
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, newError(ErrCodec, op, fmt.Errorf("row %d: %w", i, err))
		}
		if id := rec.fields()[0].value; !id.Valid || id.String == "" {
			return nil, newError(ErrCodec, op, fmt.Errorf("row %d: id is required", i))
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// replaceTable clears t and inserts recs in one transaction. Only the
// columns present in a record are written so the others take their default.
func replaceTable(ctx context.Context, c *sql.Conn, t ManagedTable, recs []Record) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return newError(ErrQuery, "begin import "+t.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.Name); err != nil {
		return newError(ErrQuery, "clear "+t.Name, err)
	}
	for i, rec := range recs {
		var cols, marks []string
		var args []any
		for _, f := range rec.fields() {
			if !f.value.set {
				continue
			}
			cols = append(cols, f.column)
			marks = append(marks, "?")
			args = append(args, *f.value)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return newError(ErrQuery, fmt.Sprintf("insert %s row %d", t.Name, i), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newError(ErrQuery, "commit "+t.Name, err)
	}
	return nil
}

// TableCounts returns the number of rows in every managed table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(managedTables))
	for _, t := range managedTables {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Name).Scan(&n); err != nil {
			return nil, newError(ErrQuery, "count "+t.Name, err)
		}
		out[t.Name] = n
	}
	return out, nil
}
