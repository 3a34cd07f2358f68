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
	"testing"
)

func TestBleAddr(t *testing.T) {
	ba, err := ParseBleAddr("00:A0:50:11:22:33")
	if err != nil {
		t.Fatalf("ParseBleAddr: %v", err)
	}
	if ba.IsZero() {
		t.Errorf("IsZero() = true for %s", ba.String())
	}
	if s := ba.String(); s != "00:a0:50:11:22:33" {
		t.Errorf("String(): got %s", s)
	}

	wire, err := BleAddrFromWire([]byte{0x33, 0x22, 0x11, 0x50, 0xa0, 0x00})
	if err != nil || wire != ba {
		t.Errorf("BleAddrFromWire: got (%s, %v) want %s", wire.String(), err,
			ba.String())
	}

	var zero BleAddr
	if !zero.IsZero() {
		t.Errorf("IsZero() = false for the zero address")
	}

	if _, err := ParseBleAddr("00:a0:50"); err == nil {
		t.Errorf("short address accepted")
	}
}
