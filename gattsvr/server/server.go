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

// Package server assembles the attribute server: the attribute table, the
// request dispatcher, the notifier, the upgrade session and the connection
// supervisor, all driven by a single event loop.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/attr"
	"mynewt.apache.org/battota/gattsvr/batt"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/conn"
	"mynewt.apache.org/battota/gattsvr/dispatch"
	"mynewt.apache.org/battota/gattsvr/notify"
	"mynewt.apache.org/battota/gattsvr/ota"
	"mynewt.apache.org/battota/gattsvr/rspbuf"
	"mynewt.apache.org/battota/gattsvr/svrutil"
	"mynewt.apache.org/battota/gattsvr/xport"
)

// BootStorage is the image store as seen at boot: the upgrade session's
// storage plus confirmation of a freshly booted image.
type BootStorage interface {
	ota.Storage
	MarkValidated() error
}

// ResetNotifier is implemented by links that tell the peer about a device
// reset.
type ResetNotifier interface {
	NotifyReset() error
}

type Cfg struct {
	Xport   xport.Xport
	Storage BootStorage

	DevName          string
	LocalMtu         int
	AckTimeout       time.Duration
	BatteryInterval  time.Duration
	RebootOnComplete bool
	RspBufCount      int
	EventQueueLen    int

	ProgressCb ota.ProgressFn
	LedCb      conn.LedFn
}

func NewCfg() Cfg {
	return Cfg{
		DevName:          "battota",
		LocalMtu:         BLE_ATT_MTU_MAX,
		AckTimeout:       10 * time.Second,
		BatteryInterval:  5 * time.Second,
		RebootOnComplete: true,
		RspBufCount:      8,
		EventQueueLen:    16,
	}
}

type Status struct {
	Conn    conn.Conn
	Led     LedState
	Session ota.Snapshot
}

// Server is one boot of the device.  After a reset, a new Server is built
// over the same link and storage.
type Server struct {
	cfg Cfg

	store    *attr.Store
	pool     *rspbuf.Pool
	sup      *conn.Supervisor
	notifier *notify.Notifier
	disp     *dispatch.Dispatcher
	sess     *ota.Session
	counter  *batt.Counter

	evCh    chan xport.Event
	resetCh chan struct{}
	wg      sync.WaitGroup
}

func New(cfg Cfg) (*Server, error) {
	if cfg.Xport == nil {
		return nil, errors.New("server requires a transport")
	}
	if cfg.Storage == nil {
		return nil, errors.New("server requires image storage")
	}

	store, err := attr.NewStore(Schema(cfg.DevName))
	if err != nil {
		return nil, errors.Wrap(err, "attribute table")
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		pool:    rspbuf.NewPool(cfg.RspBufCount, BLE_ATT_MTU_MAX),
		sup:     conn.NewSupervisor(cfg.Xport),
		evCh:    make(chan xport.Event, cfg.EventQueueLen),
		resetCh: make(chan struct{}, 1),
	}

	s.notifier = notify.NewNotifier(store, s.pool, cfg.Xport, s.sup,
		cfg.AckTimeout)
	for valHandle, cccdHandle := range CccdHandles {
		s.notifier.Register(valHandle, cccdHandle)
	}

	s.sess = ota.NewSession(ota.SessionCfg{
		Handles:          OtaHandles,
		Storage:          cfg.Storage,
		Resetter:         s,
		Pusher:           s.notifier,
		Values:           store,
		RebootOnComplete: cfg.RebootOnComplete,
		ProgressCb:       cfg.ProgressCb,
	})

	s.disp = dispatch.NewDispatcher(dispatch.DispatcherCfg{
		Store:    store,
		Pool:     s.pool,
		Sender:   cfg.Xport,
		Conn:     s.sup,
		Acker:    s.notifier,
		LocalMtu: cfg.LocalMtu,
	})
	if err := s.disp.AddRoute(OtaHandles.CtrlVal, OtaHandles.CtrlCccd,
		s.sess); err != nil {

		return nil, err
	}
	if err := s.disp.AddRoute(OtaHandles.DataVal, OtaHandles.DataVal,
		s.sess); err != nil {

		return nil, err
	}

	s.counter = batt.NewCounter(store, s.notifier, s.sup, HANDLE_BATT_LEVEL,
		cfg.BatteryInterval)

	s.sup.SetLedCb(cfg.LedCb)
	s.sup.AddDisconnectCb(s.onDisconnect)

	return s, nil
}

func (s *Server) Store() *attr.Store {
	return s.store
}

func (s *Server) Session() *ota.Session {
	return s.sess
}

func (s *Server) Status() Status {
	return Status{
		Conn:    s.sup.Conn(),
		Led:     s.sup.LedState(),
		Session: s.sess.Snapshot(),
	}
}

// Reset requests a device reset.  The event loop stops and Run returns a
// ResetError.
func (s *Server) Reset() {
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

// enqueue is the transport's receive callback.
func (s *Server) enqueue(ev xport.Event) {
	s.evCh <- ev
}

func (s *Server) onDisconnect(reason uint8) {
	s.notifier.AbortWait()
	s.sess.OnDisconnect(reason)

	// The peer is not bonded; its configuration does not survive the link.
	for _, cccd := range CccdHandles {
		if err := s.store.Write(cccd, nil); err != nil {
			log.Debugf("Failed to clear cccd 0x%04x: %s", cccd, err.Error())
		}
	}
}

func (s *Server) handleEvent(ev xport.Event) {
	switch e := ev.(type) {
	case *xport.ConnectEvent:
		if err := s.sup.OnConnect(e.ConnId, e.Addr); err != nil {
			log.Warnf("Connection rejected: %s", err.Error())
		}

	case *xport.DisconnectEvent:
		if !s.sup.Connected() {
			log.Debugf("Disconnect with no connection; ignoring")
			return
		}
		s.sup.OnDisconnect(e.Reason)

	case *xport.PduEvent:
		if cur := s.sup.ConnId(); cur == 0 || cur != e.ConnId {
			log.Debugf("Dropping pdu for unknown conn=%d", e.ConnId)
			return
		}
		if err := s.disp.Dispatch(e.ConnId, e.Data); err != nil {
			if svrutil.IsXport(err) {
				log.Errorf("Link failure responding to conn=%d: %s",
					e.ConnId, err.Error())
			} else {
				log.Warnf("Failed to respond to conn=%d: %s", e.ConnId,
					err.Error())
			}
		}

	default:
		log.Debugf("Ignoring link event %T", ev)
	}
}

// Run boots the server and processes link events until ctx is done or the
// device resets.  A reset is reported as a ResetError.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.Storage.MarkValidated(); err != nil {
		log.Errorf("Failed to confirm image: %s", err.Error())
	}

	if err := s.cfg.Xport.Start(s.enqueue); err != nil {
		return errors.Wrap(err, "start transport")
	}

	if err := s.sup.Start(); err != nil {
		s.cfg.Xport.Stop()
		return errors.Wrap(err, "start advertising")
	}

	s.sess.SetContext(ctx)

	bctx, bcancel := context.WithCancel(ctx)
	if s.cfg.BatteryInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.counter.Run(bctx)
		}()
	}

	log.Infof("Server %q running", s.cfg.DevName)

	var err error
	for err == nil {
		select {
		case ev := <-s.evCh:
			s.handleEvent(ev)

		case <-s.resetCh:
			err = svrutil.NewResetError("device reset")

		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	bcancel()
	s.shutdown(svrutil.IsReset(err))
	s.wg.Wait()

	return err
}

func (s *Server) shutdown(reset bool) {
	s.notifier.AbortWait()
	if !reset {
		s.sess.OnDisconnect(0)
	}
	s.sess.WaitFinished()

	if reset {
		if rn, ok := s.cfg.Xport.(ResetNotifier); ok {
			if err := rn.NotifyReset(); err != nil {
				log.Debugf("Failed to announce reset: %s", err.Error())
			}
		}
	}

	// Unblock a receive callback waiting on a full queue.
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-s.evCh:
			case <-done:
				return
			}
		}
	}()

	if err := s.cfg.Xport.Stop(); err != nil {
		log.Debugf("Failed to stop transport: %s", err.Error())
	}
	close(done)

	log.Infof("Server stopped")
}
