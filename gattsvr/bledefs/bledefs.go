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

package bledefs

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const BLE_ATT_ATTR_MAX_LEN = 512

const BLE_ATT_MTU_DFLT = 23

// Largest MTU the device accepts; bounded by its receive PDU buffer.
const BLE_ATT_MTU_MAX = 517

const (
	UUID_PRI_SVC     BleUuid16 = 0x2800
	UUID_CHR_DECL    BleUuid16 = 0x2803
	UUID_CCCD        BleUuid16 = 0x2902
	UUID_GAP_SVC     BleUuid16 = 0x1800
	UUID_GATT_SVC    BleUuid16 = 0x1801
	UUID_DEV_NAME    BleUuid16 = 0x2a00
	UUID_APPEARANCE  BleUuid16 = 0x2a01
	UUID_BATT_SVC    BleUuid16 = 0x180f
	UUID_BATT_LEVEL  BleUuid16 = 0x2a19
	UUID_SVC_CHANGED BleUuid16 = 0x2a05
)

// Firmware upgrade service and its two characteristics.
const OtaSvcUuid = "ae5d1e47-5c13-43a0-8635-82ad38a1381f"
const OtaCtrlChrUuid = "c7261110-f425-447a-a1bd-9d7246768bd8"
const OtaDataChrUuid = "a3dd50bf-f7a7-4e99-838e-570a086c666b"

// Client characteristic configuration bits.
const (
	BLE_GATT_CCCD_NOTIFY   = 0x0001
	BLE_GATT_CCCD_INDICATE = 0x0002
)

type BleChrFlags int

const (
	BLE_GATT_F_BROADCAST       BleChrFlags = 0x0001
	BLE_GATT_F_READ                        = 0x0002
	BLE_GATT_F_WRITE_NO_RSP                = 0x0004
	BLE_GATT_F_WRITE                       = 0x0008
	BLE_GATT_F_NOTIFY                      = 0x0010
	BLE_GATT_F_INDICATE                    = 0x0020
	BLE_GATT_F_AUTH_SIGN_WRITE             = 0x0040
	BLE_GATT_F_RELIABLE_WRITE              = 0x0080
)

var bleChrFlagNames = []struct {
	flag BleChrFlags
	name string
}{
	{BLE_GATT_F_BROADCAST, "broadcast"},
	{BLE_GATT_F_READ, "read"},
	{BLE_GATT_F_WRITE_NO_RSP, "write_no_rsp"},
	{BLE_GATT_F_WRITE, "write"},
	{BLE_GATT_F_NOTIFY, "notify"},
	{BLE_GATT_F_INDICATE, "indicate"},
	{BLE_GATT_F_AUTH_SIGN_WRITE, "auth_sign_write"},
	{BLE_GATT_F_RELIABLE_WRITE, "reliable_write"},
}

func (f BleChrFlags) String() string {
	var names []string
	for _, fn := range bleChrFlagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

type BleAddr struct {
	Bytes [6]byte
}

func ParseBleAddr(s string) (BleAddr, error) {
	ba := BleAddr{}

	toks := strings.Split(strings.ToLower(s), ":")
	if len(toks) != 6 {
		return ba, fmt.Errorf("invalid BLE addr string: %s", s)
	}

	for i, t := range toks {
		u64, err := strconv.ParseUint(t, 16, 8)
		if err != nil {
			return ba, err
		}
		ba.Bytes[i] = byte(u64)
	}

	return ba, nil
}

// BleAddrFromWire decodes an address transmitted least significant byte
// first.
func BleAddrFromWire(b []byte) (BleAddr, error) {
	ba := BleAddr{}
	if len(b) != 6 {
		return ba, fmt.Errorf("invalid BLE addr length: %d", len(b))
	}

	for i := 0; i < 6; i++ {
		ba.Bytes[i] = b[5-i]
	}
	return ba, nil
}

func (ba *BleAddr) String() string {
	var buf bytes.Buffer
	buf.Grow(len(ba.Bytes) * 3)

	for i, b := range ba.Bytes {
		if i != 0 {
			buf.WriteString(":")
		}
		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

func (ba *BleAddr) IsZero() bool {
	return ba.Bytes == [6]byte{}
}

func (ba *BleAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(ba.String())
}

func (ba *BleAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	*ba, err = ParseBleAddr(s)
	return err
}

type BleUuid16 uint16

func (bu16 BleUuid16) String() string {
	return fmt.Sprintf("0x%04x", uint16(bu16))
}

func ParseUuid16(s string) (BleUuid16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return BleUuid16(0), fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid16(val), nil
}

// BleUuid128 is stored in display order (most significant byte first).
type BleUuid128 [16]byte

func (bu128 BleUuid128) String() string {
	var buf bytes.Buffer
	buf.Grow(len(bu128)*2 + 4)

	for i, b := range bu128 {
		switch i {
		case 4, 6, 8, 10:
			buf.WriteString("-")
		}

		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

func ParseUuid128(s string) (BleUuid128, error) {
	var bu128 BleUuid128

	if len(s) != 36 {
		return bu128, fmt.Errorf("Invalid UUID: %s", s)
	}

	boff := 0
	for i := 0; i < 36; {
		switch i {
		case 8, 13, 18, 23:
			if s[i] != '-' {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			i++

		default:
			u64, err := strconv.ParseUint(s[i:i+2], 16, 8)
			if err != nil {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			bu128[boff] = byte(u64)
			i += 2
			boff++
		}
	}

	return bu128, nil
}

type BleUuid struct {
	// Set to 0 if the 128-bit UUID should be used.
	U16 BleUuid16

	// Zero if the 16-bit UUID should be used.
	U128 BleUuid128
}

func Uuid16(u BleUuid16) BleUuid {
	return BleUuid{U16: u}
}

// MustParseUuid is for UUID literals compiled into a schema.
func MustParseUuid(s string) BleUuid {
	bu, err := ParseUuid(s)
	if err != nil {
		panic(err.Error())
	}
	return bu
}

func (bu BleUuid) String() string {
	if bu.U16 != 0 {
		return bu.U16.String()
	} else {
		return bu.U128.String()
	}
}

func ParseUuid(uuidStr string) (BleUuid, error) {
	bu := BleUuid{}
	var err error

	// First, try to parse as a 16-bit UUID.
	bu.U16, err = ParseUuid16(uuidStr)
	if err == nil {
		return bu, nil
	}

	// Try to parse as a 128-bit UUID.
	bu.U128, err = ParseUuid128(uuidStr)
	if err == nil {
		return bu, nil
	}

	return bu, err
}

// Bytes returns the UUID in attribute protocol byte order (little endian).
func (bu BleUuid) Bytes() []byte {
	if bu.U16 != 0 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(bu.U16))
		return b
	}

	b := make([]byte, 16)
	for i := 0; i < 16; i++ {
		b[i] = bu.U128[15-i]
	}
	return b
}

// UuidFromBytes decodes a 2 or 16 byte little-endian UUID.
func UuidFromBytes(b []byte) (BleUuid, error) {
	bu := BleUuid{}

	switch len(b) {
	case 2:
		bu.U16 = BleUuid16(binary.LittleEndian.Uint16(b))
	case 16:
		for i := 0; i < 16; i++ {
			bu.U128[i] = b[15-i]
		}
	default:
		return bu, fmt.Errorf("Invalid UUID length: %d", len(b))
	}

	return bu, nil
}

func CompareUuids(a BleUuid, b BleUuid) int {
	if a.U16 != 0 || b.U16 != 0 {
		return int(a.U16) - int(b.U16)
	} else {
		return bytes.Compare(a.U128[:], b.U128[:])
	}
}

// Connection-status indicator states.
type LedState int

const (
	LED_ADV_OFF_CONN_OFF LedState = iota
	LED_ADV_ON_CONN_OFF
	LED_ADV_OFF_CONN_ON
)

var ledStateStringMap = map[LedState]string{
	LED_ADV_OFF_CONN_OFF: "adv_off_conn_off",
	LED_ADV_ON_CONN_OFF:  "adv_on_conn_off",
	LED_ADV_OFF_CONN_ON:  "adv_off_conn_on",
}

func (s LedState) String() string {
	str := ledStateStringMap[s]
	if str == "" {
		return "???"
	}
	return str
}

func LedStateFor(advertising bool, connected bool) LedState {
	switch {
	case connected:
		return LED_ADV_OFF_CONN_ON
	case advertising:
		return LED_ADV_ON_CONN_OFF
	default:
		return LED_ADV_OFF_CONN_OFF
	}
}

// Attribute protocol error codes.
const (
	ERR_CODE_ATT_INVALID_HANDLE         int = 0x01
	ERR_CODE_ATT_READ_NOT_PERMITTED         = 0x02
	ERR_CODE_ATT_WRITE_NOT_PERMITTED        = 0x03
	ERR_CODE_ATT_INVALID_PDU                = 0x04
	ERR_CODE_ATT_REQ_NOT_SUPPORTED          = 0x06
	ERR_CODE_ATT_INVALID_OFFSET             = 0x07
	ERR_CODE_ATT_ATTR_NOT_FOUND             = 0x0a
	ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN     = 0x0d
	ERR_CODE_ATT_UNLIKELY                   = 0x0e
	ERR_CODE_ATT_INSUFFICIENT_RES           = 0x11
)

var AttErrCodeStringMap = map[int]string{
	ERR_CODE_ATT_INVALID_HANDLE:         "invalid handle",
	ERR_CODE_ATT_READ_NOT_PERMITTED:     "read not permitted",
	ERR_CODE_ATT_WRITE_NOT_PERMITTED:    "write not permitted",
	ERR_CODE_ATT_INVALID_PDU:            "invalid pdu",
	ERR_CODE_ATT_REQ_NOT_SUPPORTED:      "request not supported",
	ERR_CODE_ATT_INVALID_OFFSET:         "invalid offset",
	ERR_CODE_ATT_ATTR_NOT_FOUND:         "attribute not found",
	ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN: "invalid attribute value length",
	ERR_CODE_ATT_UNLIKELY:               "unlikely error",
	ERR_CODE_ATT_INSUFFICIENT_RES:       "insufficient resources",
}

func AttErrCodeToString(e int) string {
	s := AttErrCodeStringMap[e]
	if s == "" {
		s = "unknown"
	}

	return s
}
