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

package batt

import (
	"testing"
	"time"

	"mynewt.apache.org/battota/gattsvr/attr"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/notify"
)

type fakeConn struct {
	id uint16
}

func (c *fakeConn) ConnId() uint16 { return c.id }

type countPusher struct {
	pushes int
}

func (p *countPusher) MaybePush(valHandle uint16) (notify.PushResult, error) {
	p.pushes++
	return notify.PUSH_NOTIFIED, nil
}

func TestNextLevel(t *testing.T) {
	tests := []struct {
		cur  uint8
		next uint8
	}{
		{100, 98},
		{2, 0},
		{1, 0},
		{0, 100},
	}

	for _, tt := range tests {
		if got := NextLevel(tt.cur); got != tt.next {
			t.Errorf("NextLevel(%d): got %d want %d", tt.cur, got, tt.next)
		}
	}
}

func TestTick(t *testing.T) {
	store, err := attr.NewStore([]attr.Def{
		{Handle: 3, Type: Uuid16(UUID_BATT_LEVEL), Value: []byte{4}},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	conn := &fakeConn{}
	p := &countPusher{}
	c := NewCounter(store, p, conn, 3, time.Second)

	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if p.pushes != 0 {
		t.Errorf("pushed with no peer connected")
	}

	conn.id = 1
	want := []uint8{2, 0, 100, 98}
	for i, w := range want {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		b, _ := store.Read(3, 0, -1)
		if b[0] != w {
			t.Errorf("level after tick %d: got %d want %d", i, b[0], w)
		}
	}
	if p.pushes != len(want) {
		t.Errorf("pushes: got %d want %d", p.pushes, len(want))
	}
}
