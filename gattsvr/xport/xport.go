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

package xport

import (
	. "mynewt.apache.org/battota/gattsvr/bledefs"
)

// Event is something the link reported: a connection change or an inbound
// PDU.
type Event interface{}

type ConnectEvent struct {
	ConnId uint16
	Addr   BleAddr
}

type DisconnectEvent struct {
	ConnId uint16
	Reason uint8
}

type PduEvent struct {
	ConnId uint16
	Data   []byte
}

type RxFn func(ev Event)

type Xport interface {
	Start(rxCb RxFn) error
	Stop() error

	// Tx transmits a PDU.  Ownership of pdu passes to the transport, which
	// calls release exactly once when it no longer needs the bytes, whether
	// or not the transmit succeeded.
	Tx(connId uint16, pdu []byte, release func()) error

	SetAdvertising(on bool) error
}
