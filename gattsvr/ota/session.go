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

package ota

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

// Session is the single upgrade session of the device.  Writes and
// disconnects arrive on the server's event loop; the completion push runs on
// its own goroutine so the peer's confirmation can be processed meanwhile.
type Session struct {
	hs       Handles
	storage  Storage
	resetter Resetter
	pusher   Pusher
	values   ValueWriter
	reboot   bool
	progress ProgressFn

	state int32

	mtx        sync.Mutex
	rcvd       int
	expected   int
	notifyMode NotifyMode
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	finishWg   sync.WaitGroup
}

func NewSession(cfg SessionCfg) *Session {
	return &Session{
		hs:       cfg.Handles,
		storage:  cfg.Storage,
		resetter: cfg.Resetter,
		pusher:   cfg.Pusher,
		values:   cfg.Values,
		reboot:   cfg.RebootOnComplete,
		progress: cfg.ProgressCb,
	}
}

func (s *Session) getState() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(toState State) {
	from := State(atomic.SwapInt32(&s.state, int32(toState)))
	if from != toState {
		log.WithFields(svrutil.Fields(s.Snapshot())).Debugf(
			"Upgrade session %s -> %s", from, toState)
	}
}

func (s *Session) transitionState(fromState State, toState State) error {
	swapped := atomic.CompareAndSwapInt32(&s.state,
		int32(fromState), int32(toState))
	if !swapped {
		return fmt.Errorf(
			"Can't set upgrade state to %s; current state != required "+
				"value: %s", toState, fromState)
	}

	log.WithFields(svrutil.Fields(s.Snapshot())).Debugf(
		"Upgrade session %s -> %s", fromState, toState)
	return nil
}

func (s *Session) State() State {
	return s.getState()
}

func (s *Session) Handles() Handles {
	return s.hs
}

// SetContext bounds the storage work of every later transfer session by
// ctx.  Storage calls see the cancellation between blocks.
func (s *Session) SetContext(ctx context.Context) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.parent = ctx
}

func (s *Session) SetProgressCb(cb ProgressFn) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.progress = cb
}

func (s *Session) Snapshot() Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return Snapshot{
		State:            s.getState().String(),
		BytesReceived:    s.rcvd,
		ExpectedTotal:    s.expected,
		NotifyMode:       s.notifyMode.String(),
		RebootOnComplete: s.reboot,
	}
}

// Owns reports whether writes to handle belong to the upgrade session.
func (s *Session) Owns(handle uint16) bool {
	return handle == s.hs.CtrlVal || handle == s.hs.CtrlCccd ||
		handle == s.hs.DataVal
}

// Write handles a peer write to one of the session's characteristics.  A
// returned error is an AttError blaming the written handle.
func (s *Session) Write(handle uint16, val []byte) error {
	switch handle {
	case s.hs.CtrlCccd:
		return s.writeCccd(val)
	case s.hs.CtrlVal:
		return s.writeCtrl(val)
	case s.hs.DataVal:
		return s.writeData(val)
	default:
		return svrutil.FmtAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, handle,
			"handle 0x%04x is not an upgrade characteristic", handle)
	}
}

func (s *Session) writeCccd(val []byte) error {
	h := s.hs.CtrlCccd
	if len(val) == 0 || len(val) > 2 {
		return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN, h,
			"configuration descriptor length %d", len(val))
	}
	if err := s.values.Write(h, val); err != nil {
		return err
	}

	mode := NOTIFY_MODE_NONE
	switch {
	case val[0]&BLE_GATT_CCCD_INDICATE != 0:
		mode = NOTIFY_MODE_INDICATE
	case val[0]&BLE_GATT_CCCD_NOTIFY != 0:
		mode = NOTIFY_MODE_NOTIFY
	}

	s.mtx.Lock()
	s.notifyMode = mode
	s.mtx.Unlock()

	log.Infof("Upgrade control point configured: %s", mode)
	return nil
}

func (s *Session) errNoSession(handle uint16, what string) error {
	return svrutil.FmtAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, handle,
		"%s without an upgrade session", what)
}

func (s *Session) errState(handle uint16, what string, st State) error {
	return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, handle,
		"%s not allowed in state %s", what, st)
}

func (s *Session) writeCtrl(val []byte) error {
	h := s.hs.CtrlVal
	if len(val) == 0 {
		return svrutil.NewAttError(ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN, h,
			"empty upgrade command")
	}

	cmd := val[0]
	log.Debugf("Upgrade command %s (0x%02x) in state %s",
		CmdToString(cmd), cmd, s.getState())

	switch cmd {
	case CMD_PREPARE_DOWNLOAD:
		return s.prepare()
	case CMD_DOWNLOAD:
		return s.download(val[1:])
	case CMD_VERIFY:
		return s.verify(val[1:])
	case CMD_ABORT:
		if s.getState() == STATE_IDLE {
			return s.errNoSession(h, "abort")
		}
		s.abort("peer request")
		return nil
	default:
		return svrutil.FmtAttError(ERR_CODE_ATT_REQ_NOT_SUPPORTED, h,
			"unknown upgrade command 0x%02x", cmd)
	}
}

func (s *Session) prepare() error {
	h := s.hs.CtrlVal

	if st := s.getState(); st != STATE_IDLE {
		return s.errState(h, "prepare", st)
	}

	s.mtx.Lock()
	s.rcvd = 0
	s.expected = 0
	parent := s.parent
	if parent == nil {
		parent = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.mtx.Unlock()

	if err := s.transitionState(STATE_IDLE, STATE_PREPARING); err != nil {
		return svrutil.NewAttError(ERR_CODE_ATT_UNLIKELY, h, err.Error())
	}

	if err := s.storage.Begin(); err != nil {
		s.release()
		s.setState(STATE_IDLE)
		log.Errorf("Upgrade transfer session failed to start: %s",
			err.Error())
		return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, h,
			"transfer session start failed: %s", err.Error())
	}

	// The data characteristic is armed as soon as storage is ready.
	if err := s.transitionState(STATE_PREPARING,
		STATE_DOWNLOADING); err != nil {

		return svrutil.NewAttError(ERR_CODE_ATT_UNLIKELY, h, err.Error())
	}

	log.Infof("Upgrade session started")
	return nil
}

// download records the announced image size, if any.
func (s *Session) download(arg []byte) error {
	h := s.hs.CtrlVal

	switch st := s.getState(); st {
	case STATE_IDLE:
		return s.errNoSession(h, "download")
	case STATE_DOWNLOADING:
	default:
		return s.errState(h, "download", st)
	}

	if len(arg) >= 4 {
		total := int(binary.LittleEndian.Uint32(arg))

		s.mtx.Lock()
		defer s.mtx.Unlock()
		if s.rcvd > total {
			return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, h,
				"image size %d smaller than bytes already received (%d)",
				total, s.rcvd)
		}
		s.expected = total
		log.Infof("Upgrade image size %d bytes", total)
	}

	return nil
}

func (s *Session) writeData(data []byte) error {
	h := s.hs.DataVal

	switch st := s.getState(); st {
	case STATE_IDLE:
		return s.errNoSession(h, "image data")
	case STATE_DOWNLOADING:
	default:
		return s.errState(h, "image data", st)
	}

	s.mtx.Lock()
	ctx := s.ctx
	off := s.rcvd
	expected := s.expected
	s.mtx.Unlock()

	if expected != 0 && off+len(data) > expected {
		return svrutil.FmtAttError(ERR_CODE_ATT_INVALID_ATTR_VALUE_LEN, h,
			"chunk at %d of %d bytes overruns image size %d",
			off, len(data), expected)
	}

	if err := s.storage.WriteChunk(ctx, off, data); err != nil {
		log.Warnf("Upgrade chunk at offset %d failed: %s", off, err.Error())
		return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, h,
			"chunk write failed: %s", err.Error())
	}

	s.mtx.Lock()
	s.rcvd += len(data)
	rcvd := s.rcvd
	cb := s.progress
	s.mtx.Unlock()

	if cb != nil {
		cb(rcvd, expected)
	}

	return nil
}

func (s *Session) writeStatus(status uint8) {
	if err := s.values.Write(s.hs.CtrlVal, []byte{status}); err != nil {
		log.Warnf("Failed to record upgrade status: %s", err.Error())
	}
}

func (s *Session) verify(arg []byte) error {
	h := s.hs.CtrlVal

	switch st := s.getState(); st {
	case STATE_IDLE:
		return s.errNoSession(h, "verify")
	case STATE_DOWNLOADING:
	default:
		return s.errState(h, "verify", st)
	}

	var crc *uint16
	if len(arg) >= 2 {
		v := binary.LittleEndian.Uint16(arg)
		crc = &v
	}

	s.mtx.Lock()
	ctx := s.ctx
	rcvd := s.rcvd
	expected := s.expected
	s.mtx.Unlock()

	if err := s.transitionState(STATE_DOWNLOADING,
		STATE_VERIFYING); err != nil {

		return svrutil.NewAttError(ERR_CODE_ATT_UNLIKELY, h, err.Error())
	}

	var err error
	if expected != 0 && rcvd != expected {
		err = fmt.Errorf("received %d of %d bytes", rcvd, expected)
	} else {
		err = s.storage.Validate(ctx, rcvd, crc)
	}
	if err == nil {
		err = s.storage.Finish()
	}

	if err != nil {
		// A corrupt image cannot be resumed.
		log.Errorf("Upgrade image validation failed: %s", err.Error())
		s.writeStatus(STATUS_BAD)
		if derr := s.storage.Discard(); derr != nil {
			log.Warnf("Failed to discard image: %s", derr.Error())
		}
		s.release()
		s.setState(STATE_IDLE)
		return svrutil.FmtAttError(ERR_CODE_ATT_UNLIKELY, h,
			"image validation failed: %s", err.Error())
	}

	log.Infof("Upgrade image verified (%d bytes)", rcvd)
	s.writeStatus(STATUS_OK)
	s.release()

	if !s.reboot {
		s.setState(STATE_IDLE)
		s.startFinisher(false)
		return nil
	}

	s.setState(STATE_COMPLETE)
	s.startFinisher(true)
	return nil
}

func (s *Session) startFinisher(reboot bool) {
	s.finishWg.Add(1)
	go func() {
		defer s.finishWg.Done()
		s.finish(reboot)
	}()
}

// finish pushes the verification result to the peer.  When a reboot is
// due, the device resets once the push completes; an unconfirmed indication
// leaves the image pending without resetting.
func (s *Session) finish(reboot bool) {
	res, err := s.pusher.MaybePush(s.hs.CtrlVal)
	if err != nil {
		log.Warnf("Upgrade completion not acknowledged: %s", err.Error())
	} else {
		log.Debugf("Upgrade completion pushed: %s", res)
	}

	if !reboot {
		return
	}

	if err != nil {
		if s.transitionState(STATE_COMPLETE, STATE_IDLE) == nil {
			log.Infof("Image left pending; reset skipped")
		}
		return
	}

	// An abort or disconnect while waiting already moved the session on.
	if err := s.transitionState(STATE_COMPLETE, STATE_IDLE); err != nil {
		log.Debugf("Reset skipped: %s", err.Error())
		return
	}

	log.Infof("Resetting into new image")
	s.resetter.Reset()
}

// WaitFinished blocks until any completion push has finished.
func (s *Session) WaitFinished() {
	s.finishWg.Wait()
}

// release cancels the session context.
func (s *Session) release() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) abort(why string) {
	st := s.getState()
	if st == STATE_IDLE {
		return
	}

	log.Infof("Upgrade session aborted in state %s: %s", st, why)
	s.release()
	s.setState(STATE_ABORTED)

	// A complete image was already handed to storage.
	if st != STATE_COMPLETE {
		if err := s.storage.Discard(); err != nil {
			log.Warnf("Failed to discard image: %s",
				errors.Wrap(err, "abort").Error())
		}
	}

	s.setState(STATE_IDLE)
}

// OnDisconnect ends any session as if the peer had aborted it.
func (s *Session) OnDisconnect(reason uint8) {
	s.abort(fmt.Sprintf("disconnect reason=0x%02x", reason))
}
