/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package lazy provides a value that is built once, on first use, and then
// shared by every caller.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cell holds a lazily built value. Concurrent callers of Get share a single
// in-flight build. Only a successful build is remembered; after a failure
// the next Get tries again. The zero Cell is ready to use.
type Cell[T any] struct {
	mu    sync.Mutex
	ready bool
	val   T
	group singleflight.Group
}

// Get returns the cached value or runs build to produce it. build receives a
// context detached from the caller's cancellation so that one impatient
// caller cannot fail the build for everyone else waiting on it; ctx only
// bounds how long this caller waits.
func (c *Cell[T]) Get(ctx context.Context, build func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Peek(); ok {
		return v, nil
	}
	ch := c.group.DoChan("build", func() (any, error) {
		if v, ok := c.Peek(); ok {
			return v, nil
		}
		v, err := build(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.val, c.ready = v, true
		c.mu.Unlock()
		return v, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Peek returns the value if it has been built.
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.ready
}

// Take empties the cell and hands back what it held, so the owner can
// release it. A later Get builds a fresh value.
func (c *Cell[T]) Take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.val, c.ready
	var zero T
	c.val, c.ready = zero, false
	return v, ok
}
