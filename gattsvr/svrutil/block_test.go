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
	"testing"
	"time"

	"github.com/pkg/errors"

	"mynewt.apache.org/battota/gattsvr/bledefs"
)

func TestBlockerUnblock(t *testing.T) {
	var b Blocker
	b.Start()
	if !b.Started() {
		t.Fatalf("Started() = false after Start()")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Unblock(42)
	}()

	val, err := b.Wait(time.Second, nil)
	if err != nil {
		t.Fatalf("Wait: unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("Wait: got %v want 42", val)
	}
	if b.Started() {
		t.Errorf("Started() = true after Unblock()")
	}
}

func TestBlockerTimeout(t *testing.T) {
	var b Blocker
	b.Start()

	_, err := b.Wait(5*time.Millisecond, nil)
	if !IsTimeout(err) {
		t.Fatalf("Wait: got %v want timeout", err)
	}

	// A late acknowledgement finds nobody waiting.
	if b.Unblock(1) {
		t.Errorf("Unblock after timeout reported an outstanding waiter")
	}
}

func TestBlockerStop(t *testing.T) {
	var b Blocker
	b.Start()

	stop := make(chan struct{})
	close(stop)

	_, err := b.Wait(time.Second, stop)
	if !IsAborted(err) {
		t.Fatalf("Wait: got %v want aborted", err)
	}
}

func TestBlockerNotStarted(t *testing.T) {
	var b Blocker

	val, err := b.Wait(time.Millisecond, nil)
	if err != nil || val != nil {
		t.Fatalf("Wait without Start: got (%v, %v) want (nil, nil)", val, err)
	}
}

func TestAttStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{NewAttError(bledefs.ERR_CODE_ATT_INVALID_OFFSET, 3, "x"),
			bledefs.ERR_CODE_ATT_INVALID_OFFSET},
		{errors.Wrap(NewAttError(bledefs.ERR_CODE_ATT_INVALID_HANDLE, 9, "x"),
			"wrapped"), bledefs.ERR_CODE_ATT_INVALID_HANDLE},
		{errors.New("plain"), bledefs.ERR_CODE_ATT_UNLIKELY},
	}

	for i, c := range cases {
		if got := AttStatus(c.err); got != c.status {
			t.Errorf("case %d: AttStatus() = 0x%02x want 0x%02x",
				i, got, c.status)
		}
	}
}

func TestErrorPredicates(t *testing.T) {
	xerr := errors.Wrap(NewXportError("port closed"), "tx")
	ncerr := NewNotConnectedError("not connected")

	if !IsXport(xerr) || IsXport(ncerr) {
		t.Errorf("IsXport mismatch")
	}
	if !IsNotConnected(ncerr) || IsNotConnected(xerr) {
		t.Errorf("IsNotConnected mismatch")
	}
	if IsXport(errors.New("plain")) || IsNotConnected(nil) {
		t.Errorf("predicate matched an unrelated error")
	}
}
