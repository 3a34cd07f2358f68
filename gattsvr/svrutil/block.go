/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package svrutil

import (
	"sync"
	"time"
)

// Blocker parks one or more waiters until Unblock() is called.  Waiters that
// arrive after Unblock() return immediately until the next Start().
type Blocker struct {
	ch  chan struct{}
	mtx sync.Mutex
	val interface{}
}

func (b *Blocker) unblockNoLock(val interface{}) bool {
	if b.ch == nil {
		return false
	}

	b.val = val
	close(b.ch)
	b.ch = nil
	return true
}

func (b *Blocker) Start() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.ch == nil {
		b.ch = make(chan struct{})
	}
	b.val = nil
}

func (b *Blocker) Started() bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return b.ch != nil
}

// Unblock releases all current waiters.  It reports whether a Start() was
// outstanding.
func (b *Blocker) Unblock(val interface{}) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return b.unblockNoLock(val)
}

// Wait returns the value passed to Unblock(), a TimeoutError, or an
// AbortedError if stopChan closes first.
func (b *Blocker) Wait(timeout time.Duration, stopChan <-chan struct{}) (
	interface{}, error) {

	b.mtx.Lock()
	ch := b.ch
	val := b.val
	b.mtx.Unlock()

	if ch == nil {
		return val, nil
	}

	timer := time.NewTimer(timeout)
	select {
	case <-ch:
		StopAndDrainTimer(timer)

		b.mtx.Lock()
		defer b.mtx.Unlock()
		return b.val, nil

	case <-timer.C:
		b.Unblock(nil)
		return nil, FmtTimeoutError("timeout after %s", timeout.String())

	case <-stopChan:
		StopAndDrainTimer(timer)
		b.Unblock(nil)
		return nil, NewAbortedError("aborted")
	}
}

func StopAndDrainTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
