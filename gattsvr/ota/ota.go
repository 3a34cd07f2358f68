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

// Package ota implements the firmware upgrade session driven by writes to
// the upgrade control and data characteristics.
package ota

import (
	"context"

	"mynewt.apache.org/battota/gattsvr/notify"
)

type State int32

const (
	STATE_IDLE State = iota
	STATE_PREPARING
	STATE_DOWNLOADING
	STATE_VERIFYING
	STATE_COMPLETE
	STATE_ABORTED
)

var stateStringMap = map[State]string{
	STATE_IDLE:        "idle",
	STATE_PREPARING:   "preparing",
	STATE_DOWNLOADING: "downloading",
	STATE_VERIFYING:   "verifying",
	STATE_COMPLETE:    "complete",
	STATE_ABORTED:     "aborted",
}

func (s State) String() string {
	str := stateStringMap[s]
	if str == "" {
		return "???"
	}
	return str
}

// Control characteristic command bytes.
const (
	CMD_PREPARE_DOWNLOAD uint8 = 0x01
	CMD_DOWNLOAD               = 0x02
	CMD_VERIFY                 = 0x03
	CMD_ABORT                  = 0x07
)

var cmdStringMap = map[uint8]string{
	CMD_PREPARE_DOWNLOAD: "prepare_download",
	CMD_DOWNLOAD:         "download",
	CMD_VERIFY:           "verify",
	CMD_ABORT:            "abort",
}

func CmdToString(cmd uint8) string {
	s := cmdStringMap[cmd]
	if s == "" {
		return "???"
	}
	return s
}

// Result codes written to the control characteristic and pushed to the peer
// when verification finishes.
const (
	STATUS_OK  uint8 = 0x00
	STATUS_BAD       = 0x01
)

type NotifyMode int

const (
	NOTIFY_MODE_NONE NotifyMode = iota
	NOTIFY_MODE_NOTIFY
	NOTIFY_MODE_INDICATE
)

var notifyModeStringMap = map[NotifyMode]string{
	NOTIFY_MODE_NONE:     "none",
	NOTIFY_MODE_NOTIFY:   "notify",
	NOTIFY_MODE_INDICATE: "indicate",
}

func (m NotifyMode) String() string {
	return notifyModeStringMap[m]
}

// Storage is the flash / bootloader side of an upgrade.  Calls are bounded
// in time; long operations check ctx between blocks so an abort can
// interrupt them.
type Storage interface {
	// Begin opens a transfer session for a new image.
	Begin() error

	WriteChunk(ctx context.Context, off int, data []byte) error

	// Validate checks the accumulated image.  crc is nil when the peer did
	// not supply one.
	Validate(ctx context.Context, size int, crc *uint16) error

	// Finish closes the transfer session and leaves the image pending for
	// the next boot.
	Finish() error

	// Discard closes the transfer session and drops the partial image.
	Discard() error
}

type Resetter interface {
	Reset()
}

type Pusher interface {
	MaybePush(valHandle uint16) (notify.PushResult, error)
}

type ValueWriter interface {
	Write(handle uint16, val []byte) error
}

type ProgressFn func(received int, total int)

type Handles struct {
	CtrlVal  uint16
	CtrlCccd uint16
	DataVal  uint16
}

type SessionCfg struct {
	Handles          Handles
	Storage          Storage
	Resetter         Resetter
	Pusher           Pusher
	Values           ValueWriter
	RebootOnComplete bool
	ProgressCb       ProgressFn
}

type Snapshot struct {
	State            string
	BytesReceived    int
	ExpectedTotal    int
	NotifyMode       string
	RebootOnComplete bool
}
