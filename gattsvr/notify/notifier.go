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

// Package notify pushes characteristic values to the connected peer
// according to the peer's client characteristic configuration.
package notify

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/att"
	"mynewt.apache.org/battota/gattsvr/attr"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/rspbuf"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

type PushResult int

const (
	PUSH_NONE PushResult = iota
	PUSH_NOTIFIED
	PUSH_INDICATED
)

var pushResultStringMap = map[PushResult]string{
	PUSH_NONE:      "none",
	PUSH_NOTIFIED:  "notified",
	PUSH_INDICATED: "indicated",
}

func (r PushResult) String() string {
	return pushResultStringMap[r]
}

type Sender interface {
	Tx(connId uint16, pdu []byte, release func()) error
}

type ConnSource interface {
	ConnId() uint16
	Mtu() int
}

type Notifier struct {
	store   *attr.Store
	pool    *rspbuf.Pool
	sender  Sender
	conn    ConnSource
	timeout time.Duration

	// Value handle -> CCCD handle.
	cccds map[uint16]uint16

	// Serializes indications; at most one is outstanding.
	indMtx sync.Mutex
	ackBl  svrutil.Blocker
	stopCh chan struct{}
	stopMu sync.Mutex
}

func NewNotifier(store *attr.Store, pool *rspbuf.Pool, sender Sender,
	conn ConnSource, ackTimeout time.Duration) *Notifier {

	return &Notifier{
		store:   store,
		pool:    pool,
		sender:  sender,
		conn:    conn,
		timeout: ackTimeout,
		cccds:   map[uint16]uint16{},
		stopCh:  make(chan struct{}),
	}
}

// Register associates a characteristic value with its configuration
// descriptor.  Called only while building the server.
func (n *Notifier) Register(valHandle uint16, cccdHandle uint16) {
	n.cccds[valHandle] = cccdHandle
}

// Config returns the current configuration bits for a characteristic.
func (n *Notifier) Config(valHandle uint16) (uint16, error) {
	cccd, ok := n.cccds[valHandle]
	if !ok {
		return 0, fmt.Errorf("no configuration descriptor for handle 0x%04x",
			valHandle)
	}

	b, err := n.store.Read(cccd, 0, 2)
	if err != nil {
		if svrutil.AttStatus(err) == ERR_CODE_ATT_INVALID_OFFSET {
			// Never written.
			return 0, nil
		}
		return 0, err
	}

	if len(b) < 2 {
		return uint16(b[0]), nil
	}
	return binary.LittleEndian.Uint16(b), nil
}

// MaybePush sends the characteristic's current value if a peer is connected
// and has opted in.  For indications it blocks until the peer confirms or
// the acknowledgement timeout expires.
func (n *Notifier) MaybePush(valHandle uint16) (PushResult, error) {
	connId := n.conn.ConnId()
	if connId == 0 {
		return PUSH_NONE, nil
	}

	cfg, err := n.Config(valHandle)
	if err != nil {
		return PUSH_NONE, err
	}

	switch {
	case cfg&BLE_GATT_CCCD_NOTIFY != 0:
		if err := n.push(connId, false, valHandle); err != nil {
			return PUSH_NONE, err
		}
		return PUSH_NOTIFIED, nil

	case cfg&BLE_GATT_CCCD_INDICATE != 0:
		return n.indicate(connId, valHandle)

	default:
		return PUSH_NONE, nil
	}
}

func (n *Notifier) push(connId uint16, indicate bool, valHandle uint16) error {
	mtu := n.conn.Mtu()

	val, err := n.store.Read(valHandle, 0, mtu-att.VALUE_PUSH_HDR_LEN)
	if err != nil {
		if svrutil.AttStatus(err) != ERR_CODE_ATT_INVALID_OFFSET {
			return err
		}
		val = nil
	}

	pdu := att.EncodeValuePush(indicate, valHandle, val)

	buf, err := n.pool.Alloc(len(pdu))
	if err != nil {
		return err
	}
	defer buf.Free()

	buf.Append(pdu...)
	data, release := buf.Take()

	svrutil.LogPdu("tx", connId, data)
	if err := n.sender.Tx(connId, data, release); err != nil {
		return errors.Wrapf(err, "value push to conn=%d failed", connId)
	}

	return nil
}

func (n *Notifier) indicate(connId uint16, valHandle uint16) (
	PushResult, error) {

	n.indMtx.Lock()
	defer n.indMtx.Unlock()

	n.ackBl.Start()
	if err := n.push(connId, true, valHandle); err != nil {
		n.ackBl.Unblock(nil)
		return PUSH_NONE, err
	}

	n.stopMu.Lock()
	stopCh := n.stopCh
	n.stopMu.Unlock()

	if _, err := n.ackBl.Wait(n.timeout, stopCh); err != nil {
		log.Debugf("Indication of 0x%04x not confirmed: %s",
			valHandle, err.Error())
		return PUSH_NONE, err
	}

	return PUSH_INDICATED, nil
}

// Ack delivers a peer's handle value confirmation.  It reports whether an
// indication was waiting for it.
func (n *Notifier) Ack() bool {
	return n.ackBl.Unblock(nil)
}

// AbortWait fails any indication currently waiting for a confirmation.
func (n *Notifier) AbortWait() {
	n.stopMu.Lock()
	defer n.stopMu.Unlock()

	close(n.stopCh)
	n.stopCh = make(chan struct{})
}
