/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCellBuildsOnceUnderConcurrency(t *testing.T) {
	var c Cell[*int]
	var builds atomic.Int32
	release := make(chan struct{})
	build := func(context.Context) (*int, error) {
		builds.Add(1)
		<-release
		v := 42
		return &v, nil
	}

	const callers = 32
	results := make([]*int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), build)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Fatalf("build ran %d times, want 1", n)
	}
	for i, v := range results {
		if v != results[0] {
			t.Fatalf("caller %d got a different value", i)
		}
	}
	if v, err := c.Get(context.Background(), build); err != nil || v != results[0] {
		t.Fatalf("later Get = %v, %v; want cached value", v, err)
	}
}

func TestCellRetriesAfterFailure(t *testing.T) {
	var c Cell[string]
	calls := 0
	build := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}
	if _, err := c.Get(context.Background(), build); err == nil {
		t.Fatalf("expected first build to fail")
	}
	if _, ok := c.Peek(); ok {
		t.Fatalf("failed build must not be cached")
	}
	v, err := c.Get(context.Background(), build)
	if err != nil || v != "ok" {
		t.Fatalf("second Get = %q, %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCellWaiterCancellation(t *testing.T) {
	var c Cell[int]
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), func(context.Context) (int, error) {
			<-release
			return 7, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, func(context.Context) (int, error) { return 0, errors.New("unused") }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	<-done
	if v, ok := c.Peek(); !ok || v != 7 {
		t.Fatalf("Peek = %d, %v; want 7, true", v, ok)
	}
}

func TestCellTake(t *testing.T) {
	var c Cell[int]
	if _, ok := c.Take(); ok {
		t.Fatalf("empty cell reported a value")
	}
	_, _ = c.Get(context.Background(), func(context.Context) (int, error) { return 3, nil })
	if v, ok := c.Take(); !ok || v != 3 {
		t.Fatalf("Take = %d, %v", v, ok)
	}
	if _, ok := c.Peek(); ok {
		t.Fatalf("cell still full after Take")
	}
}
