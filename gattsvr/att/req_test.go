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

package att

import (
	"bytes"
	"reflect"
	"testing"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

func TestParseReq(t *testing.T) {
	ota := MustParseUuid(OtaCtrlChrUuid)

	cases := []struct {
		pdu  []byte
		want Req
	}{
		{[]byte{0x02, 0xf7, 0x00}, &MtuReq{Mtu: 247}},
		{[]byte{0x0a, 0x09, 0x00}, &ReadReq{Handle: 9}},
		{[]byte{0x0c, 0x10, 0x00, 0x16, 0x00},
			&ReadBlobReq{Handle: 0x10, Offset: 22}},
		{[]byte{0x08, 0x01, 0x00, 0xff, 0xff, 0x03, 0x28},
			&ReadByTypeReq{Start: 1, End: 0xffff,
				Type: Uuid16(UUID_CHR_DECL)}},
		{append([]byte{0x08, 0x01, 0x00, 0xff, 0xff}, ota.Bytes()...),
			&ReadByTypeReq{Start: 1, End: 0xffff, Type: ota}},
		{[]byte{0x0e, 0x03, 0x00, 0x05, 0x00, 0x09, 0x00},
			&ReadMultiReq{Handles: []uint16{3, 5, 9}}},
		{[]byte{0x12, 0x0d, 0x00, 0x01},
			&WriteReq{Handle: 0x0d, Value: []byte{0x01}}},
		{[]byte{0x52, 0x10, 0x00, 0xaa, 0xbb},
			&WriteReq{NoRsp: true, Handle: 0x10, Value: []byte{0xaa, 0xbb}}},
		{[]byte{0x16, 0x03, 0x00, 0x02, 0x00, 0x7f},
			&PrepWriteReq{Handle: 3, Offset: 2, Value: []byte{0x7f}}},
		{[]byte{0x18, 0x01}, &ExecWriteReq{Flags: 1}},
		{[]byte{0x1e}, &ConfirmReq{}},
		{[]byte{0x10, 0x01, 0x00, 0xff, 0xff, 0x00, 0x28},
			&UnsupportedReq{Opcode: 0x10, Handle: 1}},
	}

	for i, c := range cases {
		got, err := ParseReq(c.pdu)
		if err != nil {
			t.Fatalf("case %d: ParseReq(%x): %v", i, c.pdu, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("case %d: ParseReq(%x): got %#v want %#v",
				i, c.pdu, got, c.want)
		}

		if _, ok := c.want.(*UnsupportedReq); ok {
			continue
		}
		enc, err := EncodeReq(c.want)
		if err != nil {
			t.Fatalf("case %d: EncodeReq: %v", i, err)
		}
		if !bytes.Equal(enc, c.pdu) {
			t.Errorf("case %d: EncodeReq: got %x want %x", i, enc, c.pdu)
		}
	}
}

func TestParseReqMalformed(t *testing.T) {
	pdus := [][]byte{
		{},
		{0x02, 0x17},
		{0x0a, 0x01},
		{0x08, 0x01, 0x00, 0xff, 0xff, 0x03},
		{0x0e, 0x01, 0x00},
		{0x0e, 0x01, 0x00, 0x02},
		{0x12, 0x01},
		{0xd2, 0x01, 0x00, 0x01},
	}

	for _, pdu := range pdus {
		_, err := ParseReq(pdu)
		if svrutil.AttStatus(err) != ERR_CODE_ATT_INVALID_PDU {
			t.Errorf("ParseReq(%x): got %v want invalid pdu", pdu, err)
		}
	}
}

func TestEncodeErrorRsp(t *testing.T) {
	got := EncodeErrorRsp(ATT_OP_READ_MULTI_REQ, 0x0105,
		ERR_CODE_ATT_INVALID_HANDLE)
	want := []byte{0x01, 0x0e, 0x05, 0x01, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeErrorRsp: got %x want %x", got, want)
	}
}

func TestEncodeValuePush(t *testing.T) {
	got := EncodeValuePush(true, 0x000d, []byte{0x00})
	want := []byte{0x1d, 0x0d, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeValuePush: got %x want %x", got, want)
	}
}

func TestParseErrorRsp(t *testing.T) {
	rsp := ParseErrorRsp(EncodeErrorRsp(ATT_OP_WRITE_REQ, 0x0010,
		ERR_CODE_ATT_UNLIKELY))
	want := &ErrorRsp{ReqOp: ATT_OP_WRITE_REQ, Handle: 0x0010,
		Status: ERR_CODE_ATT_UNLIKELY}
	if !reflect.DeepEqual(rsp, want) {
		t.Errorf("ParseErrorRsp: got %#v want %#v", rsp, want)
	}

	if rsp := ParseErrorRsp(EncodeWriteRsp()); rsp != nil {
		t.Errorf("ParseErrorRsp(write rsp): got %#v", rsp)
	}
}
