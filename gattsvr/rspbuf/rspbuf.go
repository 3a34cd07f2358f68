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

// Package rspbuf provides the bounded pool of response buffers used to
// assemble outgoing PDUs.
//
// A Buf has exactly one owner.  The dispatcher owns it after Alloc() and may
// either Free() it or hand it to the transport with Take().  Take() moves the
// bytes out and leaves the Buf empty, so a deferred Free() in the dispatcher
// is always safe; the transport returns the bytes to the pool by calling the
// release function exactly once.
package rspbuf

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

type Pool struct {
	bufSz int
	free  [][]byte
	inUse int
	mtx   sync.Mutex
}

func NewPool(count int, bufSz int) *Pool {
	p := &Pool{
		bufSz: bufSz,
		free:  make([][]byte, 0, count),
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, make([]byte, 0, bufSz))
	}

	return p
}

func (p *Pool) InUse() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.inUse
}

// Alloc reserves a buffer able to hold sz bytes.
func (p *Pool) Alloc(sz int) (*Buf, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if sz > p.bufSz {
		return nil, svrutil.FmtAttError(ERR_CODE_ATT_INSUFFICIENT_RES, 0,
			"response of %d bytes exceeds buffer size %d", sz, p.bufSz)
	}
	if len(p.free) == 0 {
		return nil, svrutil.NewAttError(ERR_CODE_ATT_INSUFFICIENT_RES, 0,
			"response buffers exhausted")
	}

	data := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse++

	return &Buf{
		pool: p,
		data: data[:0],
		lim:  sz,
	}, nil
}

func (p *Pool) put(data []byte) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.free = append(p.free, data[:0])
	p.inUse--
	svrutil.Assert(p.inUse >= 0)
}

type Buf struct {
	pool *Pool
	data []byte
	lim  int
}

// Room reports how many more bytes fit.
func (b *Buf) Room() int {
	if b.pool == nil {
		return 0
	}
	return b.lim - len(b.data)
}

func (b *Buf) Len() int {
	return len(b.data)
}

func (b *Buf) Bytes() []byte {
	return b.data
}

// Append adds bytes if they all fit; otherwise the buffer is left unchanged.
func (b *Buf) Append(p ...byte) bool {
	if b.pool == nil {
		log.Errorf("append to released response buffer")
		svrutil.Assert(false)
		return false
	}
	if len(p) > b.Room() {
		return false
	}

	b.data = append(b.data, p...)
	return true
}

func (b *Buf) AppendUint16(v uint16) bool {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return b.Append(tmp[:]...)
}

// Free returns the buffer to its pool.  It does nothing if the buffer was
// already freed or handed off with Take().
func (b *Buf) Free() {
	if b.pool == nil {
		return
	}

	b.pool.put(b.data)
	b.pool = nil
	b.data = nil
}

// Take moves the contents out of the buffer.  The returned release function
// must be called once the bytes have been transmitted; extra calls are
// ignored.
func (b *Buf) Take() ([]byte, func()) {
	svrutil.Assert(b.pool != nil)

	pool := b.pool
	data := b.data
	b.pool = nil
	b.data = nil

	var once sync.Once
	release := func() {
		once.Do(func() {
			if pool != nil {
				pool.put(data)
			}
		})
	}

	return data, release
}
