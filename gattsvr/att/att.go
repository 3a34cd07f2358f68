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

// Package att decodes attribute protocol requests into typed values and
// encodes the fixed-format responses.
package att

import (
	"encoding/binary"
	"fmt"
)

const (
	ATT_OP_ERROR_RSP          uint8 = 0x01
	ATT_OP_MTU_REQ                  = 0x02
	ATT_OP_MTU_RSP                  = 0x03
	ATT_OP_FIND_INFO_REQ            = 0x04
	ATT_OP_FIND_INFO_RSP            = 0x05
	ATT_OP_FIND_BY_TYPE_REQ         = 0x06
	ATT_OP_READ_BY_TYPE_REQ         = 0x08
	ATT_OP_READ_BY_TYPE_RSP         = 0x09
	ATT_OP_READ_REQ                 = 0x0a
	ATT_OP_READ_RSP                 = 0x0b
	ATT_OP_READ_BLOB_REQ            = 0x0c
	ATT_OP_READ_BLOB_RSP            = 0x0d
	ATT_OP_READ_MULTI_REQ           = 0x0e
	ATT_OP_READ_MULTI_RSP           = 0x0f
	ATT_OP_READ_BY_GROUP_REQ        = 0x10
	ATT_OP_WRITE_REQ                = 0x12
	ATT_OP_WRITE_RSP                = 0x13
	ATT_OP_PREP_WRITE_REQ           = 0x16
	ATT_OP_PREP_WRITE_RSP           = 0x17
	ATT_OP_EXEC_WRITE_REQ           = 0x18
	ATT_OP_EXEC_WRITE_RSP           = 0x19
	ATT_OP_NOTIFY                   = 0x1b
	ATT_OP_INDICATE                 = 0x1d
	ATT_OP_CONFIRM                  = 0x1e
	ATT_OP_WRITE_CMD                = 0x52
	ATT_OP_SIGNED_WRITE_CMD         = 0xd2
)

var opNameMap = map[uint8]string{
	ATT_OP_ERROR_RSP:         "error_rsp",
	ATT_OP_MTU_REQ:           "mtu_req",
	ATT_OP_MTU_RSP:           "mtu_rsp",
	ATT_OP_FIND_INFO_REQ:     "find_info_req",
	ATT_OP_FIND_BY_TYPE_REQ:  "find_by_type_req",
	ATT_OP_READ_BY_TYPE_REQ:  "read_by_type_req",
	ATT_OP_READ_BY_TYPE_RSP:  "read_by_type_rsp",
	ATT_OP_READ_REQ:          "read_req",
	ATT_OP_READ_RSP:          "read_rsp",
	ATT_OP_READ_BLOB_REQ:     "read_blob_req",
	ATT_OP_READ_BLOB_RSP:     "read_blob_rsp",
	ATT_OP_READ_MULTI_REQ:    "read_multi_req",
	ATT_OP_READ_MULTI_RSP:    "read_multi_rsp",
	ATT_OP_READ_BY_GROUP_REQ: "read_by_group_req",
	ATT_OP_WRITE_REQ:         "write_req",
	ATT_OP_WRITE_RSP:         "write_rsp",
	ATT_OP_PREP_WRITE_REQ:    "prep_write_req",
	ATT_OP_PREP_WRITE_RSP:    "prep_write_rsp",
	ATT_OP_EXEC_WRITE_REQ:    "exec_write_req",
	ATT_OP_EXEC_WRITE_RSP:    "exec_write_rsp",
	ATT_OP_NOTIFY:            "notify",
	ATT_OP_INDICATE:          "indicate",
	ATT_OP_CONFIRM:           "confirm",
	ATT_OP_WRITE_CMD:         "write_cmd",
	ATT_OP_SIGNED_WRITE_CMD:  "signed_write_cmd",
}

func OpToString(op uint8) string {
	s := opNameMap[op]
	if s == "" {
		return fmt.Sprintf("op_0x%02x", op)
	}

	return s
}

// Opcode bit marking a command, which the server never answers.
const ATT_OP_CMD_FLAG = 0x40

func IsCommand(op uint8) bool {
	return op&ATT_OP_CMD_FLAG != 0
}

// Error response: opcode, request opcode, handle, status.
const ERROR_RSP_LEN = 5

func EncodeErrorRsp(reqOp uint8, handle uint16, status int) []byte {
	b := make([]byte, ERROR_RSP_LEN)
	b[0] = ATT_OP_ERROR_RSP
	b[1] = reqOp
	binary.LittleEndian.PutUint16(b[2:4], handle)
	b[4] = uint8(status)
	return b
}

func EncodeMtuRsp(mtu uint16) []byte {
	b := make([]byte, 3)
	b[0] = ATT_OP_MTU_RSP
	binary.LittleEndian.PutUint16(b[1:3], mtu)
	return b
}

func EncodeWriteRsp() []byte {
	return []byte{ATT_OP_WRITE_RSP}
}

func EncodeExecWriteRsp() []byte {
	return []byte{ATT_OP_EXEC_WRITE_RSP}
}

func EncodePrepWriteRsp(handle uint16, offset uint16, val []byte) []byte {
	b := make([]byte, 5, 5+len(val))
	b[0] = ATT_OP_PREP_WRITE_RSP
	binary.LittleEndian.PutUint16(b[1:3], handle)
	binary.LittleEndian.PutUint16(b[3:5], offset)
	return append(b, val...)
}

// Header of a notification or indication: opcode plus handle.
const VALUE_PUSH_HDR_LEN = 3

func EncodeValuePush(indicate bool, handle uint16, val []byte) []byte {
	b := make([]byte, VALUE_PUSH_HDR_LEN, VALUE_PUSH_HDR_LEN+len(val))
	if indicate {
		b[0] = ATT_OP_INDICATE
	} else {
		b[0] = ATT_OP_NOTIFY
	}
	binary.LittleEndian.PutUint16(b[1:3], handle)
	return append(b, val...)
}
