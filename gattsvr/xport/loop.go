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
	"sync"

	"mynewt.apache.org/battota/gattsvr/svrutil"
)

// LoopXport is an in-process link.  The peer side injects events with Rx()
// and observes transmitted PDUs through the TxCb.
type LoopXport struct {
	TxCb func(connId uint16, pdu []byte)

	rxCb    RxFn
	adv     bool
	started bool
	mtx     sync.Mutex
}

func NewLoopXport() *LoopXport {
	return &LoopXport{}
}

func (lx *LoopXport) Start(rxCb RxFn) error {
	lx.mtx.Lock()
	defer lx.mtx.Unlock()

	if lx.started {
		return svrutil.NewXportError("loop transport already started")
	}
	lx.rxCb = rxCb
	lx.started = true
	return nil
}

func (lx *LoopXport) Stop() error {
	lx.mtx.Lock()
	defer lx.mtx.Unlock()

	if !lx.started {
		return svrutil.NewXportError("loop transport not started")
	}
	lx.started = false
	lx.rxCb = nil
	return nil
}

// Rx delivers an event as if it arrived from the link.
func (lx *LoopXport) Rx(ev Event) error {
	lx.mtx.Lock()
	cb := lx.rxCb
	lx.mtx.Unlock()

	if cb == nil {
		return svrutil.NewXportError("loop transport not started")
	}
	cb(ev)
	return nil
}

func (lx *LoopXport) Tx(connId uint16, pdu []byte, release func()) error {
	defer release()

	lx.mtx.Lock()
	started := lx.started
	lx.mtx.Unlock()

	if !started {
		return svrutil.NewXportError("loop transport not started")
	}

	if lx.TxCb != nil {
		cp := append([]byte(nil), pdu...)
		lx.TxCb(connId, cp)
	}
	return nil
}

func (lx *LoopXport) SetAdvertising(on bool) error {
	lx.mtx.Lock()
	defer lx.mtx.Unlock()

	lx.adv = on
	return nil
}

func (lx *LoopXport) Advertising() bool {
	lx.mtx.Lock()
	defer lx.mtx.Unlock()

	return lx.adv
}
