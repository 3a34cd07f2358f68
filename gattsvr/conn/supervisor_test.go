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

package conn

import (
	"testing"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
)

type fakeAdv struct {
	calls []bool
}

func (f *fakeAdv) SetAdvertising(on bool) error {
	f.calls = append(f.calls, on)
	return nil
}

func (f *fakeAdv) on() bool {
	return len(f.calls) > 0 && f.calls[len(f.calls)-1]
}

func TestConnectDisconnect(t *testing.T) {
	adv := &fakeAdv{}
	s := NewSupervisor(adv)

	var leds []LedState
	s.SetLedCb(func(l LedState) { leds = append(leds, l) })

	var order []string
	s.AddDisconnectCb(func(reason uint8) {
		if adv.on() {
			order = append(order, "adv-before-abort")
		}
		if s.Connected() {
			order = append(order, "still-connected")
		}
		order = append(order, "abort")
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !adv.on() {
		t.Fatalf("not advertising after Start")
	}

	addr, _ := ParseBleAddr("00:a0:50:11:22:33")
	if err := s.OnConnect(5, addr); err != nil {
		t.Fatalf("OnConnect: %v", err)
	}
	if s.ConnId() != 5 {
		t.Errorf("ConnId: got %d want 5", s.ConnId())
	}
	if adv.on() {
		t.Errorf("still advertising while connected")
	}

	s.SetMtu(247)
	s.OnDisconnect(0x13)

	if s.ConnId() != 0 {
		t.Errorf("ConnId after disconnect: got %d want 0", s.ConnId())
	}
	if s.Mtu() != BLE_ATT_MTU_DFLT {
		t.Errorf("Mtu after disconnect: got %d want %d", s.Mtu(),
			BLE_ATT_MTU_DFLT)
	}
	if len(order) != 1 || order[0] != "abort" {
		t.Errorf("disconnect callback ordering: %v", order)
	}
	if !adv.on() {
		t.Errorf("advertising not restarted after disconnect")
	}

	want := []LedState{
		LED_ADV_ON_CONN_OFF,
		LED_ADV_OFF_CONN_ON,
		LED_ADV_OFF_CONN_OFF,
		LED_ADV_ON_CONN_OFF,
	}
	if len(leds) != len(want) {
		t.Fatalf("led states: got %v want %v", leds, want)
	}
	for i := range want {
		if leds[i] != want[i] {
			t.Errorf("led state %d: got %s want %s", i, leds[i], want[i])
		}
	}
}

func TestSecondConnectionRejected(t *testing.T) {
	s := NewSupervisor(&fakeAdv{})

	if err := s.OnConnect(1, BleAddr{}); err != nil {
		t.Fatalf("OnConnect: %v", err)
	}
	if err := s.OnConnect(2, BleAddr{}); err == nil {
		t.Fatalf("second OnConnect succeeded")
	}
	if s.ConnId() != 1 {
		t.Errorf("ConnId: got %d want 1", s.ConnId())
	}
	if err := s.OnConnect(0, BleAddr{}); err == nil {
		t.Errorf("OnConnect with id 0 succeeded")
	}
}
