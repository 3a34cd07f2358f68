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

// Package dispatch turns inbound attribute protocol requests into responses.
// Every response, error responses included, is built in a buffer from the
// response pool and handed to the transport, which frees it once sent.
package dispatch

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/att"
	"mynewt.apache.org/battota/gattsvr/attr"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/notify"
	"mynewt.apache.org/battota/gattsvr/rspbuf"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

// WriteRoute takes over writes to a range of handles.
type WriteRoute interface {
	Write(handle uint16, val []byte) error
}

type MtuRecorder interface {
	Mtu() int
	SetMtu(mtu int)
}

type Acker interface {
	Ack() bool
}

type route struct {
	start uint16
	end   uint16
	wr    WriteRoute
}

type DispatcherCfg struct {
	Store  *attr.Store
	Pool   *rspbuf.Pool
	Sender notify.Sender
	Conn   MtuRecorder
	Acker  Acker

	// Largest MTU this server accepts.
	LocalMtu int
}

type Dispatcher struct {
	store    *attr.Store
	pool     *rspbuf.Pool
	sender   notify.Sender
	conn     MtuRecorder
	acker    Acker
	localMtu int

	// Sorted by start handle; ranges never overlap.
	routes []route
}

func NewDispatcher(cfg DispatcherCfg) *Dispatcher {
	mtu := cfg.LocalMtu
	if mtu < BLE_ATT_MTU_DFLT {
		mtu = BLE_ATT_MTU_DFLT
	}

	return &Dispatcher{
		store:    cfg.Store,
		pool:     cfg.Pool,
		sender:   cfg.Sender,
		conn:     cfg.Conn,
		acker:    cfg.Acker,
		localMtu: mtu,
	}
}

func (d *Dispatcher) LocalMtu() int {
	return d.localMtu
}

// AddRoute sends writes to handles in [start, end] to wr instead of the
// store.  Overlapping ranges are rejected.
func (d *Dispatcher) AddRoute(start uint16, end uint16, wr WriteRoute) error {
	if end < start {
		return errors.Errorf("invalid route range [0x%04x, 0x%04x]",
			start, end)
	}

	for _, r := range d.routes {
		if start <= r.end && r.start <= end {
			return errors.Errorf(
				"route [0x%04x, 0x%04x] overlaps [0x%04x, 0x%04x]",
				start, end, r.start, r.end)
		}
	}

	d.routes = append(d.routes, route{start, end, wr})
	sort.Slice(d.routes, func(i, j int) bool {
		return d.routes[i].start < d.routes[j].start
	})
	return nil
}

func (d *Dispatcher) lookupRoute(handle uint16) WriteRoute {
	i := sort.Search(len(d.routes), func(i int) bool {
		return d.routes[i].end >= handle
	})
	if i < len(d.routes) && d.routes[i].start <= handle {
		return d.routes[i].wr
	}
	return nil
}

// Dispatch handles one inbound PDU from the given connection.  Request
// failures are reported to the peer as error responses; the returned error
// is a transmit failure.
func (d *Dispatcher) Dispatch(connId uint16, pdu []byte) error {
	svrutil.LogPdu("rx", connId, pdu)

	req, err := att.ParseReq(pdu)
	if err != nil {
		var op uint8
		if len(pdu) > 0 {
			op = pdu[0]
		}
		if att.IsCommand(op) {
			log.Debugf("conn=%d malformed %s dropped: %s", connId,
				att.OpToString(op), err.Error())
			return nil
		}
		return d.txErr(connId, op, err)
	}

	log.Debugf("conn=%d %s", connId, att.OpToString(req.Op()))

	switch r := req.(type) {
	case *att.ReadReq:
		err = d.read(connId, att.ATT_OP_READ_RSP, r.Handle, 0)

	case *att.ReadBlobReq:
		err = d.read(connId, att.ATT_OP_READ_BLOB_RSP, r.Handle,
			int(r.Offset))

	case *att.ReadByTypeReq:
		err = d.readByType(connId, r)

	case *att.ReadMultiReq:
		err = d.readMulti(connId, r)

	case *att.WriteReq:
		err = d.write(connId, r)

	case *att.PrepWriteReq:
		// Queued writes are not supported; the request is echoed back.
		err = d.tx(connId, att.EncodePrepWriteRsp(r.Handle, r.Offset,
			r.Value))

	case *att.ExecWriteReq:
		err = d.tx(connId, att.EncodeExecWriteRsp())

	case *att.MtuReq:
		err = d.exchangeMtu(connId, r)

	case *att.ConfirmReq:
		if !d.acker.Ack() {
			log.Debugf("conn=%d unsolicited confirmation", connId)
		}
		return nil

	case *att.UnsupportedReq:
		err = svrutil.FmtAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, r.Handle,
			"unsupported request %s", att.OpToString(r.Opcode))

	default:
		err = svrutil.FmtAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, 0,
			"unhandled request %T", req)
	}

	if err != nil {
		if !svrutil.IsAttError(err) {
			// Transmit failure; nothing to report to the peer.
			return err
		}
		if att.IsCommand(req.Op()) {
			log.Debugf("conn=%d %s failed: %s", connId,
				att.OpToString(req.Op()), err.Error())
			return nil
		}
		return d.txErr(connId, req.Op(), err)
	}

	return nil
}

// tx copies a fully encoded PDU into a pool buffer and sends it.
func (d *Dispatcher) tx(connId uint16, pdu []byte) error {
	buf, err := d.pool.Alloc(len(pdu))
	if err != nil {
		return err
	}
	defer buf.Free()

	buf.Append(pdu...)
	return d.send(connId, buf)
}

func (d *Dispatcher) send(connId uint16, buf *rspbuf.Buf) error {
	data, release := buf.Take()
	svrutil.LogPdu("tx", connId, data)
	if err := d.sender.Tx(connId, data, release); err != nil {
		return errors.Wrapf(err, "response to conn=%d failed", connId)
	}
	return nil
}

func (d *Dispatcher) txErr(connId uint16, reqOp uint8, err error) error {
	ae := svrutil.ToAttError(err)
	status := svrutil.AttStatus(err)
	var handle uint16
	if ae != nil {
		handle = ae.Handle
	}

	log.Debugf("conn=%d %s failed: %s", connId, att.OpToString(reqOp),
		err.Error())

	pdu := att.EncodeErrorRsp(reqOp, handle, status)
	buf, aerr := d.pool.Alloc(len(pdu))
	if aerr != nil {
		log.Errorf("conn=%d no buffer for error response: %s", connId,
			aerr.Error())
		return aerr
	}
	defer buf.Free()

	buf.Append(pdu...)
	return d.send(connId, buf)
}

func (d *Dispatcher) allocRsp() (*rspbuf.Buf, error) {
	return d.pool.Alloc(d.conn.Mtu())
}

// value reads a whole attribute value, treating an empty value as readable.
func (d *Dispatcher) value(handle uint16, lim int) ([]byte, error) {
	n, err := d.store.Len(handle)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return d.store.Read(handle, 0, lim)
}

func (d *Dispatcher) read(connId uint16, rspOp uint8, handle uint16,
	offset int) error {

	buf, err := d.allocRsp()
	if err != nil {
		return err
	}
	defer buf.Free()

	buf.Append(rspOp)
	val, err := d.store.Read(handle, offset, buf.Room())
	if err != nil {
		return err
	}
	buf.Append(val...)

	return d.send(connId, buf)
}

func (d *Dispatcher) readByType(connId uint16, r *att.ReadByTypeReq) error {
	if r.Start == 0 || r.Start > r.End {
		return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_HANDLE, r.Start,
			"invalid range [0x%04x, 0x%04x]", r.Start, r.End)
	}

	buf, err := d.allocRsp()
	if err != nil {
		return err
	}
	defer buf.Free()

	buf.Append(att.ATT_OP_READ_BY_TYPE_RSP, 0)

	// Every pair must have the width of the first one.
	pairLen := 0
	count := 0

	cur := r.Start
	for {
		a, err := d.store.FindFirstOfType(r.Type, cur, r.End)
		if err != nil {
			break
		}

		// A pair's length field is one byte.
		lim := buf.Room() - 2
		if lim > 253 {
			lim = 253
		}
		if pairLen != 0 {
			lim = pairLen - 2
		}

		val, err := d.value(a.Handle, lim)
		if err != nil {
			return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, a.Handle,
				"attribute 0x%04x unreadable: %s", a.Handle, err.Error())
		}

		if pairLen == 0 {
			pairLen = 2 + len(val)
		} else {
			n, _ := d.store.Len(a.Handle)
			if n != pairLen-2 {
				break
			}
		}
		if buf.Room() < pairLen {
			break
		}

		buf.AppendUint16(a.Handle)
		buf.Append(val...)
		count++

		if a.Handle >= r.End {
			break
		}
		cur = a.Handle + 1
	}

	if count == 0 {
		return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_HANDLE, r.Start,
			"no attribute of type %s in [0x%04x, 0x%04x]",
			r.Type.String(), r.Start, r.End)
	}

	buf.Bytes()[1] = byte(pairLen)
	return d.send(connId, buf)
}

// readMulti packs (handle, value) pairs in request order.  It either sends
// every requested value or reports the first handle that failed; a partial
// response is never sent.
func (d *Dispatcher) readMulti(connId uint16, r *att.ReadMultiReq) error {
	buf, err := d.allocRsp()
	if err != nil {
		return err
	}
	defer buf.Free()

	buf.Append(att.ATT_OP_READ_MULTI_RSP)

	for _, h := range r.Handles {
		if _, err := d.store.Find(h); err != nil {
			return err
		}

		room := buf.Room() - 2
		if room < 0 {
			// Response is full; the peer reads the rest individually.
			continue
		}

		val, err := d.value(h, room)
		if err != nil {
			return err
		}

		buf.AppendUint16(h)
		buf.Append(val...)
	}

	return d.send(connId, buf)
}

func (d *Dispatcher) write(connId uint16, r *att.WriteReq) error {
	if wr := d.lookupRoute(r.Handle); wr != nil {
		if err := wr.Write(r.Handle, r.Value); err != nil {
			return err
		}
	} else {
		if err := d.store.Write(r.Handle, r.Value); err != nil {
			return err
		}

		readback, err := d.value(r.Handle, -1)
		if err != nil || !bytes.Equal(readback, r.Value) {
			return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, r.Handle,
				"read-back of 0x%04x does not match written value", r.Handle)
		}
	}

	if r.NoRsp {
		return nil
	}
	return d.tx(connId, att.EncodeWriteRsp())
}

func (d *Dispatcher) exchangeMtu(connId uint16, r *att.MtuReq) error {
	mtu := int(r.Mtu)
	if mtu > d.localMtu {
		mtu = d.localMtu
	}
	if mtu < BLE_ATT_MTU_DFLT {
		mtu = BLE_ATT_MTU_DFLT
	}

	d.conn.SetMtu(mtu)
	log.Infof("conn=%d mtu=%d (peer requested %d)", connId, mtu, r.Mtu)

	return d.tx(connId, att.EncodeMtuRsp(uint16(mtu)))
}
