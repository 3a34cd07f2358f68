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
	"fmt"
)

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

// EncodeReq builds the PDU a client sends for a request.  It is the inverse
// of ParseReq.
func EncodeReq(r Req) ([]byte, error) {
	b := []byte{r.Op()}

	switch req := r.(type) {
	case *ReadReq:
		b = appendU16(b, req.Handle)

	case *ReadBlobReq:
		b = appendU16(b, req.Handle)
		b = appendU16(b, req.Offset)

	case *ReadByTypeReq:
		b = appendU16(b, req.Start)
		b = appendU16(b, req.End)
		b = append(b, req.Type.Bytes()...)

	case *ReadMultiReq:
		if len(req.Handles) < 2 {
			return nil, fmt.Errorf("read multiple needs at least two handles")
		}
		for _, h := range req.Handles {
			b = appendU16(b, h)
		}

	case *WriteReq:
		b = appendU16(b, req.Handle)
		b = append(b, req.Value...)

	case *PrepWriteReq:
		b = appendU16(b, req.Handle)
		b = appendU16(b, req.Offset)
		b = append(b, req.Value...)

	case *ExecWriteReq:
		b = append(b, req.Flags)

	case *MtuReq:
		b = appendU16(b, req.Mtu)

	case *ConfirmReq:

	default:
		return nil, fmt.Errorf("cannot encode %s request", OpToString(r.Op()))
	}

	return b, nil
}

// ErrorRsp is a decoded error response.
type ErrorRsp struct {
	ReqOp  uint8
	Handle uint16
	Status int
}

func (e *ErrorRsp) Error() string {
	return fmt.Sprintf("%s of 0x%04x failed: status=0x%02x",
		OpToString(e.ReqOp), e.Handle, e.Status)
}

// ParseErrorRsp decodes an error response.  It returns nil for any other
// PDU.
func ParseErrorRsp(pdu []byte) *ErrorRsp {
	if len(pdu) < ERROR_RSP_LEN || pdu[0] != ATT_OP_ERROR_RSP {
		return nil
	}

	return &ErrorRsp{
		ReqOp:  pdu[1],
		Handle: binary.LittleEndian.Uint16(pdu[2:4]),
		Status: int(pdu[4]),
	}
}
