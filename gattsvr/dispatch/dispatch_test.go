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

package dispatch

import (
	"bytes"
	"testing"

	"mynewt.apache.org/battota/gattsvr/attr"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/rspbuf"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

type fakeSender struct {
	pdus [][]byte
}

func (s *fakeSender) Tx(connId uint16, pdu []byte, release func()) error {
	defer release()
	s.pdus = append(s.pdus, append([]byte(nil), pdu...))
	return nil
}

func (s *fakeSender) last() []byte {
	if len(s.pdus) == 0 {
		return nil
	}
	return s.pdus[len(s.pdus)-1]
}

type fakeConn struct {
	mtu int
}

func (c *fakeConn) Mtu() int       { return c.mtu }
func (c *fakeConn) SetMtu(mtu int) { c.mtu = mtu }

type fakeAcker struct {
	acks int
}

func (a *fakeAcker) Ack() bool {
	a.acks++
	return true
}

type fakeRoute struct {
	writes map[uint16][]byte
	err    error
}

func (r *fakeRoute) Write(handle uint16, val []byte) error {
	if r.err != nil {
		return r.err
	}
	r.writes[handle] = val
	return nil
}

type fixture struct {
	d      *Dispatcher
	store  *attr.Store
	pool   *rspbuf.Pool
	sender *fakeSender
	conn   *fakeConn
	acker  *fakeAcker
	route  *fakeRoute
}

var chrDecl16 = []byte{0x12, 0x03, 0x00, 0x19, 0x2a}
var chrDecl16b = []byte{0x02, 0x06, 0x00, 0x00, 0x2a}

func newFixture(t *testing.T) *fixture {
	ctrl := MustParseUuid(OtaCtrlChrUuid)
	decl128 := append([]byte{0x38, 0x08, 0x00}, ctrl.Bytes()...)

	store, err := attr.NewStore([]attr.Def{
		{Handle: 0x0001, Type: Uuid16(UUID_PRI_SVC),
			Value: []byte{0x0f, 0x18}},
		{Handle: 0x0002, Type: Uuid16(UUID_CHR_DECL), Value: chrDecl16},
		{Handle: 0x0003, Type: Uuid16(UUID_BATT_LEVEL), Value: []byte{42}},
		{Handle: 0x0004, Type: Uuid16(UUID_CCCD), MaxLen: 2},
		{Handle: 0x0005, Type: Uuid16(UUID_CHR_DECL), Value: chrDecl16b},
		{Handle: 0x0006, Type: Uuid16(UUID_DEV_NAME), MaxLen: 20,
			Value: []byte("battota")},
		{Handle: 0x0007, Type: Uuid16(UUID_CHR_DECL), Value: decl128},
		{Handle: 0x0008, Type: ctrl, MaxLen: 20},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	f := &fixture{
		store:  store,
		pool:   rspbuf.NewPool(2, BLE_ATT_MTU_MAX),
		sender: &fakeSender{},
		conn:   &fakeConn{mtu: BLE_ATT_MTU_DFLT},
		acker:  &fakeAcker{},
		route:  &fakeRoute{writes: map[uint16][]byte{}},
	}
	f.d = NewDispatcher(DispatcherCfg{
		Store:    store,
		Pool:     f.pool,
		Sender:   f.sender,
		Conn:     f.conn,
		Acker:    f.acker,
		LocalMtu: 185,
	})
	if err := f.d.AddRoute(0x0008, 0x0008, f.route); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	return f
}

func (f *fixture) expectRsp(t *testing.T, pdu []byte, want []byte) {
	t.Helper()

	n := len(f.sender.pdus)
	if err := f.d.Dispatch(1, pdu); err != nil {
		t.Fatalf("Dispatch(%x): %v", pdu, err)
	}
	if len(f.sender.pdus) != n+1 {
		t.Fatalf("Dispatch(%x): sent %d pdus want 1", pdu,
			len(f.sender.pdus)-n)
	}
	if got := f.sender.last(); !bytes.Equal(got, want) {
		t.Errorf("Dispatch(%x): got %x want %x", pdu, got, want)
	}
	if f.pool.InUse() != 0 {
		t.Errorf("Dispatch(%x): %d response buffers leaked", pdu,
			f.pool.InUse())
	}
}

func (f *fixture) expectNoRsp(t *testing.T, pdu []byte) {
	t.Helper()

	n := len(f.sender.pdus)
	if err := f.d.Dispatch(1, pdu); err != nil {
		t.Fatalf("Dispatch(%x): %v", pdu, err)
	}
	if len(f.sender.pdus) != n {
		t.Errorf("Dispatch(%x): unexpected response %x", pdu, f.sender.last())
	}
}

func TestRead(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		pdu  []byte
		want []byte
	}{
		{[]byte{0x0a, 0x03, 0x00}, []byte{0x0b, 42}},
		{[]byte{0x0a, 0x06, 0x00}, append([]byte{0x0b}, "battota"...)},
		{[]byte{0x0c, 0x06, 0x00, 0x04, 0x00}, append([]byte{0x0d}, "ota"...)},

		// Missing handle.
		{[]byte{0x0a, 0x09, 0x00}, []byte{0x01, 0x0a, 0x09, 0x00, 0x01}},

		// Offset at the end of the value, including an empty value.
		{[]byte{0x0c, 0x06, 0x00, 0x07, 0x00},
			[]byte{0x01, 0x0c, 0x06, 0x00, 0x07}},
		{[]byte{0x0a, 0x04, 0x00}, []byte{0x01, 0x0a, 0x04, 0x00, 0x07}},
	}

	for _, tt := range tests {
		f.expectRsp(t, tt.pdu, tt.want)
	}
}

func TestReadTruncatedToMtu(t *testing.T) {
	f := newFixture(t)
	long := bytes.Repeat([]byte{'x'}, 20)
	f.store.Write(0x0006, long)

	f.expectRsp(t, []byte{0x0a, 0x06, 0x00}, append([]byte{0x0b}, long...))

	f.conn.mtu = 10
	f.expectRsp(t, []byte{0x0a, 0x06, 0x00},
		append([]byte{0x0b}, long[:9]...))
}

func TestReadByType(t *testing.T) {
	f := newFixture(t)

	// The 128-bit declaration has a different width and ends the response.
	want := []byte{0x09, 0x07}
	want = append(want, 0x02, 0x00)
	want = append(want, chrDecl16...)
	want = append(want, 0x05, 0x00)
	want = append(want, chrDecl16b...)

	f.expectRsp(t, []byte{0x08, 0x01, 0x00, 0xff, 0xff, 0x03, 0x28}, want)

	// Continuing after the last returned handle.
	f.expectRsp(t, []byte{0x08, 0x06, 0x00, 0xff, 0xff, 0x03, 0x28},
		append([]byte{0x09, 21, 0x07, 0x00}, f.mustRead(t, 0x0007)...))
}

func (f *fixture) mustRead(t *testing.T, handle uint16) []byte {
	b, err := f.store.Read(handle, 0, -1)
	if err != nil {
		t.Fatalf("Read(0x%04x): %v", handle, err)
	}
	return b
}

func TestReadByTypeNoRoom(t *testing.T) {
	f := newFixture(t)
	f.conn.mtu = 11

	want := append([]byte{0x09, 0x07, 0x02, 0x00}, chrDecl16...)
	f.expectRsp(t, []byte{0x08, 0x01, 0x00, 0xff, 0xff, 0x03, 0x28}, want)
}

func TestReadByTypeNoMatch(t *testing.T) {
	f := newFixture(t)

	// Reported against the start handle.
	f.expectRsp(t, []byte{0x08, 0x02, 0x00, 0xff, 0xff, 0x00, 0x28},
		[]byte{0x01, 0x08, 0x02, 0x00, 0x01})
}

func TestReadMulti(t *testing.T) {
	f := newFixture(t)

	want := []byte{0x0f, 0x03, 0x00, 42, 0x06, 0x00}
	want = append(want, "battota"...)
	f.expectRsp(t, []byte{0x0e, 0x03, 0x00, 0x06, 0x00}, want)
}

func TestReadMultiMissing(t *testing.T) {
	f := newFixture(t)

	// A present, B missing, C present: only an error naming B is sent.
	f.expectRsp(t, []byte{0x0e, 0x03, 0x00, 0x09, 0x00, 0x06, 0x00},
		[]byte{0x01, 0x0e, 0x09, 0x00, 0x01})
}

func TestWrite(t *testing.T) {
	f := newFixture(t)

	f.expectRsp(t, []byte{0x12, 0x04, 0x00, 0x01, 0x00}, []byte{0x13})
	if got := f.mustRead(t, 0x0004); !bytes.Equal(got, []byte{0x01, 0x00}) {
		t.Errorf("cccd after write: got %x", got)
	}

	// Oversized: value unchanged.
	f.expectRsp(t, []byte{0x12, 0x03, 0x00, 0x01, 0x02},
		[]byte{0x01, 0x12, 0x03, 0x00, 0x0d})
	if got := f.mustRead(t, 0x0003); !bytes.Equal(got, []byte{42}) {
		t.Errorf("value after oversized write: got %x", got)
	}

	// Write command: no response either way.
	f.expectNoRsp(t, []byte{0x52, 0x06, 0x00, 'h', 'i'})
	if got := f.mustRead(t, 0x0006); string(got) != "hi" {
		t.Errorf("value after write command: got %q", got)
	}
	f.expectNoRsp(t, []byte{0x52, 0x09, 0x00, 0x01})
}

func TestWriteRouted(t *testing.T) {
	f := newFixture(t)

	f.expectRsp(t, []byte{0x12, 0x08, 0x00, 0x01}, []byte{0x13})
	if got := f.route.writes[0x0008]; !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("routed write: got %x want 01", got)
	}
	if n, _ := f.store.Len(0x0008); n != 0 {
		t.Errorf("routed write reached the store")
	}

	f.route.err = svrutil.NewAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, 0x0008,
		"no session")
	f.expectRsp(t, []byte{0x12, 0x08, 0x00, 0x02},
		[]byte{0x01, 0x12, 0x08, 0x00, 0x06})
}

func TestAddRouteOverlap(t *testing.T) {
	f := newFixture(t)

	if err := f.d.AddRoute(0x0007, 0x0009, f.route); err == nil {
		t.Errorf("overlapping route accepted")
	}
	if err := f.d.AddRoute(0x0010, 0x000f, f.route); err == nil {
		t.Errorf("inverted route accepted")
	}
	if err := f.d.AddRoute(0x0010, 0x0012, f.route); err != nil {
		t.Errorf("AddRoute: %v", err)
	}
	if f.d.lookupRoute(0x0009) != nil || f.d.lookupRoute(0x0011) == nil {
		t.Errorf("route lookup mismatch")
	}
}

func TestExchangeMtu(t *testing.T) {
	tests := []struct {
		peer uint16
		mtu  int
	}{
		{247, 185},
		{100, 100},
		{10, BLE_ATT_MTU_DFLT},
	}

	for _, tt := range tests {
		f := newFixture(t)
		f.expectRsp(t, []byte{0x02, byte(tt.peer), byte(tt.peer >> 8)},
			[]byte{0x03, byte(tt.mtu), byte(tt.mtu >> 8)})
		if f.conn.mtu != tt.mtu {
			t.Errorf("peer mtu %d: got %d want %d", tt.peer, f.conn.mtu, tt.mtu)
		}
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)

	f.expectNoRsp(t, []byte{0x1e})
	if f.acker.acks != 1 {
		t.Errorf("acks: got %d want 1", f.acker.acks)
	}
}

func TestQueuedWrites(t *testing.T) {
	f := newFixture(t)

	f.expectRsp(t, []byte{0x16, 0x06, 0x00, 0x00, 0x00, 'a'},
		[]byte{0x17, 0x06, 0x00, 0x00, 0x00, 'a'})
	f.expectRsp(t, []byte{0x18, 0x01}, []byte{0x19})
}

func TestUnsupported(t *testing.T) {
	f := newFixture(t)

	f.expectRsp(t, []byte{0x10, 0x01, 0x00, 0xff, 0xff, 0x00, 0x28},
		[]byte{0x01, 0x10, 0x01, 0x00, 0x06})
	f.expectRsp(t, []byte{0x0a, 0x01},
		[]byte{0x01, 0x0a, 0x00, 0x00, 0x04})
}

func TestMalformedCommandDropped(t *testing.T) {
	f := newFixture(t)

	// Write command and signed write command too short to carry a handle.
	f.expectNoRsp(t, []byte{0x52, 0x06})
	f.expectNoRsp(t, []byte{0xd2, 0x06, 0x00, 0x01})

	// Unknown command.
	f.expectNoRsp(t, []byte{0x5f, 0x06, 0x00})

	// The same malformed PDU as a request is answered.
	f.expectRsp(t, []byte{0x12, 0x06},
		[]byte{0x01, 0x12, 0x00, 0x00, 0x04})
}
