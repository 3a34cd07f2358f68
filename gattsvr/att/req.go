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
	"encoding/binary"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

// Req is one decoded inbound PDU.  The concrete type selects the handler.
type Req interface {
	Op() uint8
}

type ReadReq struct {
	Handle uint16
}

type ReadBlobReq struct {
	Handle uint16
	Offset uint16
}

type ReadByTypeReq struct {
	Start uint16
	End   uint16
	Type  BleUuid
}

type ReadMultiReq struct {
	Handles []uint16
}

type WriteReq struct {
	// Set for write commands; no response is sent.
	NoRsp  bool
	Handle uint16
	Value  []byte
}

type PrepWriteReq struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

type ExecWriteReq struct {
	Flags uint8
}

type MtuReq struct {
	Mtu uint16
}

// ConfirmReq acknowledges an indication.
type ConfirmReq struct{}

// UnsupportedReq is any well-formed request this server does not implement.
type UnsupportedReq struct {
	Opcode uint8
	Handle uint16
}

func (r *ReadReq) Op() uint8        { return ATT_OP_READ_REQ }
func (r *ReadBlobReq) Op() uint8    { return ATT_OP_READ_BLOB_REQ }
func (r *ReadByTypeReq) Op() uint8  { return ATT_OP_READ_BY_TYPE_REQ }
func (r *ReadMultiReq) Op() uint8   { return ATT_OP_READ_MULTI_REQ }
func (r *PrepWriteReq) Op() uint8   { return ATT_OP_PREP_WRITE_REQ }
func (r *ExecWriteReq) Op() uint8   { return ATT_OP_EXEC_WRITE_REQ }
func (r *MtuReq) Op() uint8         { return ATT_OP_MTU_REQ }
func (r *ConfirmReq) Op() uint8     { return ATT_OP_CONFIRM }
func (r *UnsupportedReq) Op() uint8 { return r.Opcode }

func (r *WriteReq) Op() uint8 {
	if r.NoRsp {
		return ATT_OP_WRITE_CMD
	}
	return ATT_OP_WRITE_REQ
}

func errBadPdu(op uint8, format string, args ...interface{}) error {
	return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_PDU, 0,
		"malformed %s: "+format, append([]interface{}{OpToString(op)},
			args...)...)
}

func u16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// ParseReq decodes a request PDU.  A malformed PDU yields an InvalidPdu
// AttError; a well-formed but unknown one yields an UnsupportedReq.
func ParseReq(pdu []byte) (Req, error) {
	if len(pdu) == 0 {
		return nil, errBadPdu(0, "empty pdu")
	}

	op := pdu[0]
	body := pdu[1:]

	switch op {
	case ATT_OP_MTU_REQ:
		if len(body) != 2 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		return &MtuReq{Mtu: u16(body)}, nil

	case ATT_OP_READ_REQ:
		if len(body) != 2 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		return &ReadReq{Handle: u16(body)}, nil

	case ATT_OP_READ_BLOB_REQ:
		if len(body) != 4 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		return &ReadBlobReq{Handle: u16(body), Offset: u16(body[2:])}, nil

	case ATT_OP_READ_BY_TYPE_REQ:
		if len(body) != 6 && len(body) != 20 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		typ, err := UuidFromBytes(body[4:])
		if err != nil {
			return nil, errBadPdu(op, "%s", err.Error())
		}
		return &ReadByTypeReq{
			Start: u16(body),
			End:   u16(body[2:]),
			Type:  typ,
		}, nil

	case ATT_OP_READ_MULTI_REQ:
		if len(body) < 4 || len(body)%2 != 0 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		r := &ReadMultiReq{}
		for i := 0; i < len(body); i += 2 {
			r.Handles = append(r.Handles, u16(body[i:]))
		}
		return r, nil

	case ATT_OP_WRITE_REQ, ATT_OP_WRITE_CMD, ATT_OP_SIGNED_WRITE_CMD:
		if len(body) < 2 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		val := body[2:]
		if op == ATT_OP_SIGNED_WRITE_CMD {
			// Trailing 12-byte authentication signature.
			if len(val) < 12 {
				return nil, errBadPdu(op, "len=%d", len(body))
			}
			val = val[:len(val)-12]
		}
		return &WriteReq{
			NoRsp:  op != ATT_OP_WRITE_REQ,
			Handle: u16(body),
			Value:  append([]byte(nil), val...),
		}, nil

	case ATT_OP_PREP_WRITE_REQ:
		if len(body) < 4 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		return &PrepWriteReq{
			Handle: u16(body),
			Offset: u16(body[2:]),
			Value:  append([]byte(nil), body[4:]...),
		}, nil

	case ATT_OP_EXEC_WRITE_REQ:
		if len(body) != 1 {
			return nil, errBadPdu(op, "len=%d", len(body))
		}
		return &ExecWriteReq{Flags: body[0]}, nil

	case ATT_OP_CONFIRM:
		return &ConfirmReq{}, nil

	default:
		r := &UnsupportedReq{Opcode: op}
		if len(body) >= 2 {
			r.Handle = u16(body)
		}
		return r, nil
	}
}
