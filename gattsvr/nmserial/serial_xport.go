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

// Package nmserial carries the attribute server's link over a serial console
// to a host-side simulator of the radio.
package nmserial

import (
	"bufio"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"mynewt.apache.org/battota/gattsvr/svrutil"
	"mynewt.apache.org/battota/gattsvr/xport"
)

type XportCfg struct {
	DevPath     string
	Baud        int
	ReadTimeout time.Duration

	// Pause between the lines of a multi-line frame.  Slow hosts have very
	// small receive buffers.
	LineDelay time.Duration
}

func NewXportCfg() *XportCfg {
	return &XportCfg{
		Baud:        115200,
		ReadTimeout: 10 * time.Second,
		LineDelay:   20 * time.Millisecond,
	}
}

type OpenFn func(cfg *XportCfg) (io.ReadWriteCloser, error)

func openSerialPort(cfg *XportCfg) (io.ReadWriteCloser, error) {
	c := &serial.Config{
		Name:        cfg.DevPath,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}

	if err := port.Flush(); err != nil {
		port.Close()
		return nil, err
	}

	return port, nil
}

type SerialXport struct {
	cfg    *XportCfg
	openFn OpenFn
	port   io.ReadWriteCloser
	rxCb   xport.RxFn

	wg sync.WaitGroup
	sync.Mutex
	txMtx   sync.Mutex
	closing bool
}

func NewSerialXport(cfg *XportCfg) *SerialXport {
	return &SerialXport{
		cfg:    cfg,
		openFn: openSerialPort,
	}
}

// NewSerialXportWithOpener builds a transport over an arbitrary byte stream.
func NewSerialXportWithOpener(cfg *XportCfg, openFn OpenFn) *SerialXport {
	return &SerialXport{
		cfg:    cfg,
		openFn: openFn,
	}
}

func (sx *SerialXport) Start(rxCb xport.RxFn) error {
	sx.Lock()
	defer sx.Unlock()

	if sx.port != nil {
		return svrutil.NewXportError("serial transport already started")
	}

	port, err := sx.openFn(sx.cfg)
	if err != nil {
		return svrutil.FmtXportError("failed to open %s: %s",
			sx.cfg.DevPath, err.Error())
	}

	sx.port = port
	sx.rxCb = rxCb
	sx.closing = false

	sx.wg.Add(1)
	go func() {
		defer sx.wg.Done()
		sx.rxLoop(port)
	}()

	return nil
}

func (sx *SerialXport) isClosing() bool {
	sx.Lock()
	defer sx.Unlock()

	return sx.closing
}

func (sx *SerialXport) rxLoop(port io.Reader) {
	// Most of the reading is done line by line.
	scanner := bufio.NewScanner(port)
	dec := &Decoder{}

	for {
		for scanner.Scan() {
			b, err := dec.Feed(scanner.Bytes())
			if err != nil {
				log.Debugf("Serial rx: %s", err.Error())
				continue
			}
			if b == nil {
				continue
			}

			ev, err := DecodePacket(b)
			if err != nil {
				log.Debugf("Serial rx: %s\n%s", err.Error(), hex.Dump(b))
				continue
			}
			log.Debugf("Serial rx: %s packet (%d bytes)", PktToString(b[0]),
				len(b))
			sx.rxCb(ev)
		}

		if sx.isClosing() {
			return
		}

		err := scanner.Err()
		if err != nil {
			log.Errorf("Serial read failed: %s", err.Error())
			return
		}

		// Scanner hit EOF, so we'll need to create a new one.  This only
		// happens on timeouts.
		scanner = bufio.NewScanner(port)
	}
}

func (sx *SerialXport) Stop() error {
	sx.Lock()
	if sx.port == nil {
		sx.Unlock()
		return svrutil.NewXportError("serial transport not started")
	}
	sx.closing = true
	port := sx.port
	sx.Unlock()

	err := port.Close()
	sx.wg.Wait()

	sx.Lock()
	sx.port = nil
	sx.Unlock()

	return err
}

func (sx *SerialXport) txFrame(payload []byte) error {
	sx.Lock()
	port := sx.port
	sx.Unlock()

	if port == nil {
		return svrutil.NewXportError("serial transport not started")
	}

	sx.txMtx.Lock()
	defer sx.txMtx.Unlock()

	for i, line := range EncodeFrame(payload) {
		if i != 0 && sx.cfg.LineDelay > 0 {
			time.Sleep(sx.cfg.LineDelay)
		}

		log.Debugf("Tx serial\n%s", hex.Dump(line))
		if _, err := port.Write(line); err != nil {
			return errors.Wrap(svrutil.NewXportError(err.Error()),
				"serial write")
		}
	}

	return nil
}

func (sx *SerialXport) Tx(connId uint16, pdu []byte, release func()) error {
	defer release()

	return sx.txFrame(EncodeAtt(connId, pdu))
}

func (sx *SerialXport) SetAdvertising(on bool) error {
	return sx.txFrame(EncodeAdv(on))
}

// NotifyReset tells the host the device is rebooting.
func (sx *SerialXport) NotifyReset() error {
	return sx.txFrame(EncodeReset())
}
