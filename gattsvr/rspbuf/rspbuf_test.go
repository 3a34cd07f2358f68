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

package rspbuf

import (
	"bytes"
	"testing"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

func TestAllocExhaustion(t *testing.T) {
	p := NewPool(2, 16)

	b1, err := p.Alloc(16)
	if err != nil {
		t.Fatalf("Alloc #1: %v", err)
	}
	b2, err := p.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc #2: %v", err)
	}

	_, err = p.Alloc(1)
	if svrutil.AttStatus(err) != ERR_CODE_ATT_INSUFFICIENT_RES {
		t.Fatalf("Alloc on empty pool: got %v want insufficient resources",
			err)
	}

	b1.Free()
	b2.Free()
	if p.InUse() != 0 {
		t.Errorf("InUse after Free: got %d want 0", p.InUse())
	}
}

func TestAllocTooLarge(t *testing.T) {
	p := NewPool(1, 16)

	_, err := p.Alloc(17)
	if svrutil.AttStatus(err) != ERR_CODE_ATT_INSUFFICIENT_RES {
		t.Fatalf("oversized Alloc: got %v want insufficient resources", err)
	}
}

func TestAppendRespectsLimit(t *testing.T) {
	p := NewPool(1, 16)
	b, _ := p.Alloc(4)
	defer b.Free()

	if !b.AppendUint16(0x0201) {
		t.Fatalf("AppendUint16 failed with room %d", b.Room())
	}
	if b.Append(1, 2, 3) {
		t.Fatalf("Append of 3 bytes succeeded with room 2")
	}
	if !b.Append(3, 4) {
		t.Fatalf("Append of 2 bytes failed with room 2")
	}
	if !bytes.Equal(b.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("Bytes: got %x want 01020304", b.Bytes())
	}
}

func TestFreeTwiceIsHarmless(t *testing.T) {
	p := NewPool(1, 8)
	b, _ := p.Alloc(8)

	b.Free()
	b.Free()
	if p.InUse() != 0 {
		t.Fatalf("InUse after double Free: got %d want 0", p.InUse())
	}

	// The pool still holds exactly one buffer.
	if _, err := p.Alloc(1); err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
	if _, err := p.Alloc(1); err == nil {
		t.Fatalf("pool grew after double Free")
	}
}

func TestTakeMovesOwnership(t *testing.T) {
	p := NewPool(1, 8)
	b, _ := p.Alloc(8)
	b.Append(0xde, 0xad)

	data, release := b.Take()
	if !bytes.Equal(data, []byte{0xde, 0xad}) {
		t.Fatalf("Take: got %x want dead", data)
	}

	// The dispatcher's deferred Free must not return the buffer early.
	b.Free()
	if p.InUse() != 1 {
		t.Fatalf("Free after Take released the buffer")
	}
	if b.Append(1) {
		t.Fatalf("Append after Take succeeded")
	}

	release()
	release()
	if p.InUse() != 0 {
		t.Fatalf("InUse after release: got %d want 0", p.InUse())
	}
}
