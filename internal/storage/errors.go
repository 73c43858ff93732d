/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import "errors"

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrPath covers filesystem failures: directories, file creation, open.
	ErrPath = errors.New("storage: path error")
	// ErrSchema covers failed create or alter statements.
	ErrSchema = errors.New("storage: schema error")
	// ErrCodec covers malformed JSON and rows that do not fit a table.
	ErrCodec = errors.New("storage: codec error")
	// ErrArchive covers corrupt or unreadable backup archives.
	ErrArchive = errors.New("storage: archive error")
	// ErrQuery covers failed statements against an initialized store.
	ErrQuery = errors.New("storage: query error")
)

// Error carries the kind, the operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		// already classified further down
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
