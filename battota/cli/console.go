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

package cli

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/joaojeronimo/go-crc16"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/att"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/ota"
	"mynewt.apache.org/battota/gattsvr/server"
	"mynewt.apache.org/battota/gattsvr/svrutil"
	"mynewt.apache.org/battota/gattsvr/xport"
)

const CONSOLE_CONN_ID = 1

var consolePeerAddr = BleAddr{Bytes: [6]byte{0x0b, 0xad, 0xc0, 0xde, 0x00, 0x01}}

type PushFn func(pdu []byte)

// console plays the peer against an in-process server over a loopback
// link.  A device reset reboots the server in place.
type console struct {
	cfg     server.Cfg
	lx      *xport.LoopXport
	timeout time.Duration

	pushCb      PushFn
	autoConfirm bool

	rspCh chan []byte

	mtx sync.Mutex
	srv *server.Server
	mtu int

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

func newConsole(cfg server.Cfg, timeout time.Duration) *console {
	c := &console{
		cfg:     cfg,
		lx:      xport.NewLoopXport(),
		timeout: timeout,
		rspCh:   make(chan []byte, 1),
		mtu:     BLE_ATT_MTU_DFLT,
		doneCh:  make(chan struct{}),
	}

	c.cfg.Xport = c.lx
	c.lx.TxCb = c.onTx
	return c
}

func (c *console) onTx(connId uint16, pdu []byte) {
	if len(pdu) == 0 {
		return
	}

	switch pdu[0] {
	case att.ATT_OP_NOTIFY, att.ATT_OP_INDICATE:
		if c.pushCb != nil {
			c.pushCb(pdu)
		}
		if pdu[0] == att.ATT_OP_INDICATE && c.autoConfirm {
			go func() {
				if err := c.confirm(); err != nil {
					log.Debugf("Auto-confirm failed: %s", err.Error())
				}
			}()
		}

	default:
		select {
		case c.rspCh <- pdu:
		default:
			log.Debugf("Dropping unsolicited %s", att.OpToString(pdu[0]))
		}
	}
}

func (c *console) start() error {
	srv, err := server.New(c.cfg)
	if err != nil {
		return err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run(srv)
	return nil
}

func (c *console) run(srv *server.Server) {
	defer close(c.doneCh)

	for {
		c.mtx.Lock()
		c.srv = srv
		c.mtu = BLE_ATT_MTU_DFLT
		c.mtx.Unlock()

		err := srv.Run(c.ctx)
		if !svrutil.IsReset(err) {
			if err != nil && err != context.Canceled {
				log.Errorf("Server failed: %s", err.Error())
			}
			return
		}

		log.Infof("Device reset; rebooting")
		srv, err = server.New(c.cfg)
		if err != nil {
			log.Errorf("Reboot failed: %s", err.Error())
			return
		}
	}
}

func (c *console) stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.doneCh
}

func (c *console) curServer() *server.Server {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.srv
}

func (c *console) waitFor(what string, cond func() bool) error {
	deadline := time.Now().Add(c.timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return svrutil.FmtTimeoutError("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (c *console) connected() bool {
	srv := c.curServer()
	return srv != nil && srv.Status().Conn.ConnId == CONSOLE_CONN_ID
}

func (c *console) connect() error {
	if c.connected() {
		return fmt.Errorf("already connected")
	}

	// A rebooting device accepts connections once it advertises again.
	if err := c.waitFor("advertising", c.lx.Advertising); err != nil {
		return err
	}

	err := c.lx.Rx(&xport.ConnectEvent{
		ConnId: CONSOLE_CONN_ID,
		Addr:   consolePeerAddr,
	})
	if err != nil {
		return err
	}

	return c.waitFor("connection", c.connected)
}

func (c *console) disconnect(reason uint8) error {
	if !c.connected() {
		return svrutil.NewNotConnectedError("not connected")
	}

	err := c.lx.Rx(&xport.DisconnectEvent{
		ConnId: CONSOLE_CONN_ID,
		Reason: reason,
	})
	if err != nil {
		return err
	}

	return c.waitFor("disconnect", func() bool { return !c.connected() })
}

func (c *console) send(r att.Req) error {
	pdu, err := att.EncodeReq(r)
	if err != nil {
		return err
	}

	return c.lx.Rx(&xport.PduEvent{ConnId: CONSOLE_CONN_ID, Data: pdu})
}

// request sends a request and waits for its response.  An error response
// is returned as an *att.ErrorRsp.
func (c *console) request(r att.Req) ([]byte, error) {
	// Discard a late response to an earlier, timed out request.
	select {
	case <-c.rspCh:
	default:
	}

	if err := c.send(r); err != nil {
		return nil, err
	}

	select {
	case rsp := <-c.rspCh:
		if ersp := att.ParseErrorRsp(rsp); ersp != nil {
			return rsp, ersp
		}
		return rsp, nil

	case <-time.After(c.timeout):
		return nil, svrutil.FmtTimeoutError("no response to %s",
			att.OpToString(r.Op()))
	}
}

func (c *console) exchangeMtu(mtu int) (int, error) {
	rsp, err := c.request(&att.MtuReq{Mtu: uint16(mtu)})
	if err != nil {
		return 0, err
	}
	if len(rsp) < 3 || rsp[0] != att.ATT_OP_MTU_RSP {
		return 0, fmt.Errorf("unexpected mtu response: %x", rsp)
	}

	srvMtu := int(binary.LittleEndian.Uint16(rsp[1:]))
	if srvMtu < mtu {
		mtu = srvMtu
	}
	if mtu < BLE_ATT_MTU_DFLT {
		mtu = BLE_ATT_MTU_DFLT
	}

	c.mtx.Lock()
	c.mtu = mtu
	c.mtx.Unlock()

	return mtu, nil
}

func (c *console) curMtu() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.mtu
}

func (c *console) write(handle uint16, val []byte) error {
	rsp, err := c.request(&att.WriteReq{Handle: handle, Value: val})
	if err != nil {
		return err
	}
	if len(rsp) != 1 || rsp[0] != att.ATT_OP_WRITE_RSP {
		return fmt.Errorf("unexpected write response: %x", rsp)
	}
	return nil
}

func (c *console) confirm() error {
	return c.send(&att.ConfirmReq{})
}

// upload runs a complete upgrade session: prepare, announce the size,
// stream the image with write commands and verify it with its CRC-16.
func (c *console) upload(image []byte, progress func(sent int,
	total int)) error {

	if !c.connected() {
		return svrutil.NewNotConnectedError("not connected")
	}

	cccd := make([]byte, 2)
	binary.LittleEndian.PutUint16(cccd, BLE_GATT_CCCD_NOTIFY)
	if err := c.write(server.HANDLE_OTA_CTRL_CCCD, cccd); err != nil {
		return errors.Wrap(err, "enable upgrade status")
	}

	if err := c.write(server.HANDLE_OTA_CTRL,
		[]byte{ota.CMD_PREPARE_DOWNLOAD}); err != nil {

		return errors.Wrap(err, "prepare")
	}

	size := make([]byte, 5)
	size[0] = ota.CMD_DOWNLOAD
	binary.LittleEndian.PutUint32(size[1:], uint32(len(image)))
	if err := c.write(server.HANDLE_OTA_CTRL, size); err != nil {
		return errors.Wrap(err, "download")
	}

	// Opcode and handle.
	chunkSz := c.curMtu() - 3
	for off := 0; off < len(image); off += chunkSz {
		end := off + chunkSz
		if end > len(image) {
			end = len(image)
		}

		err := c.send(&att.WriteReq{
			NoRsp:  true,
			Handle: server.HANDLE_OTA_DATA,
			Value:  image[off:end],
		})
		if err != nil {
			return errors.Wrapf(err, "image chunk at %d", off)
		}

		if progress != nil {
			progress(end, len(image))
		}
	}

	verify := make([]byte, 3)
	verify[0] = ota.CMD_VERIFY
	binary.LittleEndian.PutUint16(verify[1:], crc16.Crc16(image))
	if err := c.write(server.HANDLE_OTA_CTRL, verify); err != nil {
		return errors.Wrap(err, "verify")
	}

	return nil
}
