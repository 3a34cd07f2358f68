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

package server

import (
	"encoding/binary"

	"mynewt.apache.org/battota/gattsvr/attr"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/ota"
)

// Fixed attribute handles.
const (
	HANDLE_GAP_SVC          uint16 = 0x0001
	HANDLE_DEV_NAME_DECL           = 0x0002
	HANDLE_DEV_NAME                = 0x0003
	HANDLE_APPEARANCE_DECL         = 0x0004
	HANDLE_APPEARANCE              = 0x0005
	HANDLE_GATT_SVC                = 0x0006
	HANDLE_SVC_CHANGED_DECL        = 0x0007
	HANDLE_SVC_CHANGED             = 0x0008
	HANDLE_SVC_CHANGED_CCCD        = 0x0009
	HANDLE_BATT_SVC                = 0x000a
	HANDLE_BATT_LEVEL_DECL         = 0x000b
	HANDLE_BATT_LEVEL              = 0x000c
	HANDLE_BATT_LEVEL_CCCD         = 0x000d
	HANDLE_OTA_SVC                 = 0x000e
	HANDLE_OTA_CTRL_DECL           = 0x000f
	HANDLE_OTA_CTRL                = 0x0010
	HANDLE_OTA_CTRL_CCCD           = 0x0011
	HANDLE_OTA_DATA_DECL           = 0x0012
	HANDLE_OTA_DATA                = 0x0013
)

const DEV_NAME_MAX_LEN = 32

// Generic tag.
const APPEARANCE = 0x0200

var OtaHandles = ota.Handles{
	CtrlVal:  HANDLE_OTA_CTRL,
	CtrlCccd: HANDLE_OTA_CTRL_CCCD,
	DataVal:  HANDLE_OTA_DATA,
}

func chrDecl(flags BleChrFlags, valHandle uint16, uuid BleUuid) []byte {
	b := make([]byte, 3, 3+16)
	b[0] = byte(flags)
	binary.LittleEndian.PutUint16(b[1:], valHandle)
	return append(b, uuid.Bytes()...)
}

func svcDecl(handle uint16, uuid BleUuid) attr.Def {
	return attr.Def{
		Handle: handle,
		Type:   Uuid16(UUID_PRI_SVC),
		Flags:  BLE_GATT_F_READ,
		Value:  uuid.Bytes(),
	}
}

// chr returns the declaration and value definitions of a characteristic.
func chr(declHandle uint16, uuid BleUuid, flags BleChrFlags, maxLen int,
	val []byte) []attr.Def {

	valHandle := declHandle + 1
	return []attr.Def{
		{
			Handle: declHandle,
			Type:   Uuid16(UUID_CHR_DECL),
			Flags:  BLE_GATT_F_READ,
			Value:  chrDecl(flags, valHandle, uuid),
		},
		{
			Handle: valHandle,
			Type:   uuid,
			Flags:  flags,
			MaxLen: maxLen,
			Value:  val,
		},
	}
}

func cccd(handle uint16) attr.Def {
	return attr.Def{
		Handle: handle,
		Type:   Uuid16(UUID_CCCD),
		Flags:  BLE_GATT_F_READ | BLE_GATT_F_WRITE,
		MaxLen: 2,
	}
}

// Schema builds the device's attribute table.
func Schema(devName string) []attr.Def {
	appearance := make([]byte, 2)
	binary.LittleEndian.PutUint16(appearance, APPEARANCE)

	var defs []attr.Def

	defs = append(defs, svcDecl(HANDLE_GAP_SVC, Uuid16(UUID_GAP_SVC)))
	defs = append(defs, chr(HANDLE_DEV_NAME_DECL, Uuid16(UUID_DEV_NAME),
		BLE_GATT_F_READ, DEV_NAME_MAX_LEN, []byte(devName))...)
	defs = append(defs, chr(HANDLE_APPEARANCE_DECL, Uuid16(UUID_APPEARANCE),
		BLE_GATT_F_READ, 2, appearance)...)

	defs = append(defs, svcDecl(HANDLE_GATT_SVC, Uuid16(UUID_GATT_SVC)))
	defs = append(defs, chr(HANDLE_SVC_CHANGED_DECL, Uuid16(UUID_SVC_CHANGED),
		BLE_GATT_F_INDICATE, 4, nil)...)
	defs = append(defs, cccd(HANDLE_SVC_CHANGED_CCCD))

	defs = append(defs, svcDecl(HANDLE_BATT_SVC, Uuid16(UUID_BATT_SVC)))
	defs = append(defs, chr(HANDLE_BATT_LEVEL_DECL, Uuid16(UUID_BATT_LEVEL),
		BLE_GATT_F_READ|BLE_GATT_F_NOTIFY, 1, []byte{100})...)
	defs = append(defs, cccd(HANDLE_BATT_LEVEL_CCCD))

	defs = append(defs, svcDecl(HANDLE_OTA_SVC, MustParseUuid(OtaSvcUuid)))
	defs = append(defs, chr(HANDLE_OTA_CTRL_DECL, MustParseUuid(OtaCtrlChrUuid),
		BLE_GATT_F_WRITE|BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE, 20, nil)...)
	defs = append(defs, cccd(HANDLE_OTA_CTRL_CCCD))
	defs = append(defs, chr(HANDLE_OTA_DATA_DECL, MustParseUuid(OtaDataChrUuid),
		BLE_GATT_F_WRITE|BLE_GATT_F_WRITE_NO_RSP, BLE_ATT_ATTR_MAX_LEN, nil)...)

	return defs
}

// CccdHandles lists every configuration descriptor with the value it
// configures.
var CccdHandles = map[uint16]uint16{
	HANDLE_SVC_CHANGED: HANDLE_SVC_CHANGED_CCCD,
	HANDLE_BATT_LEVEL:  HANDLE_BATT_LEVEL_CCCD,
	HANDLE_OTA_CTRL:    HANDLE_OTA_CTRL_CCCD,
}
