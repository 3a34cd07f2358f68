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

// Package conn tracks the single peer connection of the device.
package conn

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
)

type Advertiser interface {
	SetAdvertising(on bool) error
}

type DisconnectFn func(reason uint8)
type LedFn func(state LedState)

type Conn struct {
	ConnId uint16
	Addr   BleAddr
	Mtu    int
}

// Supervisor owns the connection record.  The connection id and MTU are
// read lock-free by other flows; everything else is touched only by the
// server's event loop.
type Supervisor struct {
	adv    Advertiser
	discCb []DisconnectFn
	ledCb  LedFn

	connId uint32
	mtu    uint32

	addr        BleAddr
	advertising bool
	led         LedState
	mtx         sync.Mutex
}

func NewSupervisor(adv Advertiser) *Supervisor {
	return &Supervisor{
		adv: adv,
		mtu: BLE_ATT_MTU_DFLT,
	}
}

// AddDisconnectCb registers a callback invoked after the record is cleared
// and before advertising restarts.
func (s *Supervisor) AddDisconnectCb(cb DisconnectFn) {
	s.discCb = append(s.discCb, cb)
}

func (s *Supervisor) SetLedCb(cb LedFn) {
	s.ledCb = cb
}

func (s *Supervisor) ConnId() uint16 {
	return uint16(atomic.LoadUint32(&s.connId))
}

func (s *Supervisor) Connected() bool {
	return s.ConnId() != 0
}

func (s *Supervisor) Mtu() int {
	return int(atomic.LoadUint32(&s.mtu))
}

func (s *Supervisor) SetMtu(mtu int) {
	atomic.StoreUint32(&s.mtu, uint32(mtu))
}

func (s *Supervisor) Conn() Conn {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return Conn{
		ConnId: s.ConnId(),
		Addr:   s.addr,
		Mtu:    s.Mtu(),
	}
}

func (s *Supervisor) LedState() LedState {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.led
}

func (s *Supervisor) updateLedNoLock() {
	led := LedStateFor(s.advertising, s.ConnId() != 0)
	if led == s.led {
		return
	}

	log.Debugf("Connection indicator %s -> %s", s.led, led)
	s.led = led
	if s.ledCb != nil {
		s.ledCb(led)
	}
}

func (s *Supervisor) setAdvertisingNoLock(on bool) error {
	if err := s.adv.SetAdvertising(on); err != nil {
		return err
	}

	s.advertising = on
	s.updateLedNoLock()
	return nil
}

// Start begins advertising so a peer can connect.
func (s *Supervisor) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.setAdvertisingNoLock(true)
}

func (s *Supervisor) OnConnect(connId uint16, addr BleAddr) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if connId == 0 {
		return fmt.Errorf("invalid connection id 0")
	}

	cur := s.ConnId()
	if cur != 0 && cur != connId {
		return fmt.Errorf("already connected (conn=%d); rejecting conn=%d",
			cur, connId)
	}

	s.addr = addr
	atomic.StoreUint32(&s.mtu, BLE_ATT_MTU_DFLT)
	atomic.StoreUint32(&s.connId, uint32(connId))
	if addr.IsZero() {
		log.Infof("Connected: conn=%d peer=unknown", connId)
	} else {
		log.Infof("Connected: conn=%d peer=%s", connId, addr.String())
	}

	if s.advertising {
		if err := s.setAdvertisingNoLock(false); err != nil {
			log.Warnf("Failed to stop advertising: %s", err.Error())
		}
	}
	s.updateLedNoLock()

	return nil
}

// OnDisconnect clears the record, tells listeners (the upgrade session) and
// restarts advertising.
func (s *Supervisor) OnDisconnect(reason uint8) {
	s.mtx.Lock()
	connId := s.ConnId()
	atomic.StoreUint32(&s.connId, 0)
	atomic.StoreUint32(&s.mtu, BLE_ATT_MTU_DFLT)
	s.addr = BleAddr{}
	s.updateLedNoLock()
	s.mtx.Unlock()

	log.Infof("Disconnected: conn=%d reason=0x%02x", connId, reason)

	for _, cb := range s.discCb {
		cb(reason)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.setAdvertisingNoLock(true); err != nil {
		log.Errorf("Failed to restart advertising: %s", err.Error())
	}
}
