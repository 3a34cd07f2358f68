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

package nmserial

import (
	"encoding/binary"
	"fmt"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/xport"
)

// Simulator link packet kinds; the first byte of every frame payload.
const (
	PKT_CONNECT    uint8 = 0x01
	PKT_DISCONNECT       = 0x02
	PKT_ATT              = 0x03
	PKT_ADV              = 0x04
	PKT_RESET            = 0x05
)

var pktStringMap = map[uint8]string{
	PKT_CONNECT:    "connect",
	PKT_DISCONNECT: "disconnect",
	PKT_ATT:        "att",
	PKT_ADV:        "adv",
	PKT_RESET:      "reset",
}

func PktToString(kind uint8) string {
	s := pktStringMap[kind]
	if s == "" {
		return "???"
	}
	return s
}

// DecodePacket converts a host-to-device payload into a link event.
func DecodePacket(b []byte) (xport.Event, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty link packet")
	}

	kind := b[0]
	body := b[1:]

	switch kind {
	case PKT_CONNECT:
		if len(body) != 8 {
			return nil, fmt.Errorf("connect packet len=%d", len(body))
		}
		addr, err := BleAddrFromWire(body[2:8])
		if err != nil {
			return nil, err
		}
		return &xport.ConnectEvent{
			ConnId: binary.LittleEndian.Uint16(body),
			Addr:   addr,
		}, nil

	case PKT_DISCONNECT:
		if len(body) != 1 {
			return nil, fmt.Errorf("disconnect packet len=%d", len(body))
		}
		return &xport.DisconnectEvent{Reason: body[0]}, nil

	case PKT_ATT:
		if len(body) < 3 {
			return nil, fmt.Errorf("att packet len=%d", len(body))
		}
		return &xport.PduEvent{
			ConnId: binary.LittleEndian.Uint16(body),
			Data:   append([]byte(nil), body[2:]...),
		}, nil

	default:
		return nil, fmt.Errorf("unexpected link packet kind 0x%02x", kind)
	}
}

func EncodeConnect(connId uint16, addr BleAddr) []byte {
	b := make([]byte, 3, 9)
	b[0] = PKT_CONNECT
	binary.LittleEndian.PutUint16(b[1:], connId)
	for i := 5; i >= 0; i-- {
		b = append(b, addr.Bytes[i])
	}
	return b
}

func EncodeDisconnect(reason uint8) []byte {
	return []byte{PKT_DISCONNECT, reason}
}

func EncodeAtt(connId uint16, pdu []byte) []byte {
	b := make([]byte, 3, 3+len(pdu))
	b[0] = PKT_ATT
	binary.LittleEndian.PutUint16(b[1:], connId)
	return append(b, pdu...)
}

func EncodeAdv(on bool) []byte {
	if on {
		return []byte{PKT_ADV, 1}
	}
	return []byte{PKT_ADV, 0}
}

func EncodeReset() []byte {
	return []byte{PKT_RESET}
}
