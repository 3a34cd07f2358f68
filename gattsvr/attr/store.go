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

// Package attr implements the device's attribute table: a fixed, ordered set
// of independently sized values addressed by handle.
package attr

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

// Def describes one attribute in a schema.  MaxLen defaults to the length of
// the initial value.
type Def struct {
	Handle uint16
	Type   BleUuid
	Flags  BleChrFlags
	MaxLen int
	Value  []byte
}

type Attr struct {
	Handle uint16
	Type   BleUuid
	Flags  BleChrFlags

	curLen int
	data   []byte
}

func (a *Attr) MaxLen() int {
	return len(a.data)
}

type AttrInfo struct {
	Handle uint16
	Type   BleUuid
	Flags  BleChrFlags
	MaxLen int
	CurLen int
}

// Store owns every attribute value.  Values never escape the store; reads
// return copies.
type Store struct {
	attrs []*Attr
	mtx   sync.RWMutex
}

// NewStore registers a fixed schema.  Handles must be non-zero and strictly
// increasing, and each initial value must fit its capacity.
func NewStore(defs []Def) (*Store, error) {
	s := &Store{
		attrs: make([]*Attr, 0, len(defs)),
	}

	var prev uint16
	for _, d := range defs {
		if d.Handle == 0 || d.Handle <= prev {
			return nil, fmt.Errorf(
				"attribute handle 0x%04x out of order (previous 0x%04x)",
				d.Handle, prev)
		}
		prev = d.Handle

		maxLen := d.MaxLen
		if maxLen == 0 {
			maxLen = len(d.Value)
		}
		if maxLen > BLE_ATT_ATTR_MAX_LEN || len(d.Value) > maxLen {
			return nil, fmt.Errorf(
				"attribute 0x%04x: value length %d exceeds capacity %d",
				d.Handle, len(d.Value), maxLen)
		}

		a := &Attr{
			Handle: d.Handle,
			Type:   d.Type,
			Flags:  d.Flags,
			curLen: len(d.Value),
			data:   make([]byte, maxLen),
		}
		copy(a.data, d.Value)
		s.attrs = append(s.attrs, a)
	}

	log.Debugf("Registered %d attributes", len(s.attrs))
	return s, nil
}

func errInvalidHandle(handle uint16) error {
	return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_HANDLE, handle,
		"no attribute with handle 0x%04x", handle)
}

func (s *Store) findNoLock(handle uint16) *Attr {
	for _, a := range s.attrs {
		if a.Handle == handle {
			return a
		}
		if a.Handle > handle {
			break
		}
	}

	return nil
}

func (s *Store) Find(handle uint16) (*Attr, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	a := s.findNoLock(handle)
	if a == nil {
		return nil, errInvalidHandle(handle)
	}
	return a, nil
}

// FindFirstOfType returns the lowest-handle attribute of the given type
// within [start, end].
func (s *Store) FindFirstOfType(typ BleUuid, start uint16,
	end uint16) (*Attr, error) {

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, a := range s.attrs {
		if a.Handle < start {
			continue
		}
		if a.Handle > end {
			break
		}
		if CompareUuids(a.Type, typ) == 0 {
			return a, nil
		}
	}

	return nil, svrutil.FmtAttError(ERR_CODE_ATT_INVALID_HANDLE, start,
		"no attribute of type %s in [0x%04x, 0x%04x]", typ.String(), start,
		end)
}

// Read copies at most max bytes of the value starting at offset.
func (s *Store) Read(handle uint16, offset int, max int) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	a := s.findNoLock(handle)
	if a == nil {
		return nil, errInvalidHandle(handle)
	}

	if offset < 0 || offset >= a.curLen {
		return nil, svrutil.FmtAttError(ERR_CODE_ATT_INVALID_OFFSET, handle,
			"offset %d beyond value length %d", offset, a.curLen)
	}

	n := a.curLen - offset
	if max >= 0 && max < n {
		n = max
	}

	b := make([]byte, n)
	copy(b, a.data[offset:offset+n])
	return b, nil
}

// Write replaces the whole value.  An oversized value leaves the attribute
// unchanged.
func (s *Store) Write(handle uint16, val []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	a := s.findNoLock(handle)
	if a == nil {
		return errInvalidHandle(handle)
	}

	if len(val) > len(a.data) {
		return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN,
			handle, "value length %d exceeds capacity %d",
			len(val), len(a.data))
	}

	for i := range a.data {
		a.data[i] = 0
	}
	copy(a.data, val)
	a.curLen = len(val)

	return nil
}

// Len returns the current value length of an attribute.
func (s *Store) Len(handle uint16) (int, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	a := s.findNoLock(handle)
	if a == nil {
		return 0, errInvalidHandle(handle)
	}
	return a.curLen, nil
}

func (s *Store) Infos() []AttrInfo {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	infos := make([]AttrInfo, len(s.attrs))
	for i, a := range s.attrs {
		infos[i] = AttrInfo{
			Handle: a.Handle,
			Type:   a.Type,
			Flags:  a.Flags,
			MaxLen: len(a.data),
			CurLen: a.curLen,
		}
	}
	return infos
}
