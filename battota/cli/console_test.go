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
	"bytes"
	"strings"
	"testing"
	"time"

	"mynewt.apache.org/battota/gattsvr/att"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/ota"
	"mynewt.apache.org/battota/gattsvr/server"
	"mynewt.apache.org/battota/gattsvr/storage"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

func newTestConsole(t *testing.T) (*console, *storage.FileStore) {
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cfg := server.NewCfg()
	cfg.Storage = fs
	cfg.BatteryInterval = 0
	cfg.AckTimeout = 2 * time.Second

	con := newConsole(cfg, 2*time.Second)
	if err := con.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(con.stop)

	if err := con.connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	return con, fs
}

func TestConsoleRequests(t *testing.T) {
	con, _ := newTestConsole(t)

	rsp, err := con.request(&att.ReadReq{Handle: server.HANDLE_DEV_NAME})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := append([]byte{att.ATT_OP_READ_RSP}, "battota"...)
	if !bytes.Equal(rsp, want) {
		t.Errorf("read: got %x want %x", rsp, want)
	}

	mtu, err := con.exchangeMtu(100)
	if err != nil {
		t.Fatalf("exchangeMtu: %v", err)
	}
	if mtu != 100 {
		t.Errorf("mtu: got %d want 100", mtu)
	}

	// Data without a session.
	_, err = con.request(&att.WriteReq{
		Handle: server.HANDLE_OTA_DATA,
		Value:  []byte{1},
	})
	ersp, ok := err.(*att.ErrorRsp)
	if !ok {
		t.Fatalf("data write: got %v want error response", err)
	}
	if ersp.Status != ERR_CODE_ATT_REQ_NOT_SUPPORTED ||
		ersp.Handle != server.HANDLE_OTA_DATA {

		t.Errorf("data write: got %+v", ersp)
	}

	if err := con.connect(); err == nil {
		t.Errorf("second connect succeeded")
	}
	if err := con.disconnect(0x13); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	err = con.disconnect(0x13)
	if !svrutil.IsNotConnected(err) {
		t.Errorf("second disconnect: got %v want not connected", err)
	}
	if s := rspErrString(err); !strings.Contains(s, "connect") {
		t.Errorf("error text: got %q", s)
	}
}

func TestConsoleUpload(t *testing.T) {
	con, fs := newTestConsole(t)

	pushes := make(chan []byte, 4)
	con.pushCb = func(pdu []byte) {
		pushes <- pdu
	}

	if _, err := con.exchangeMtu(185); err != nil {
		t.Fatalf("exchangeMtu: %v", err)
	}

	image := make([]byte, 1000)
	for i := range image {
		image[i] = byte(i ^ 0x5a)
	}

	var sent []int
	err := con.upload(image, func(cur int, total int) {
		if total != len(image) {
			t.Errorf("progress total: got %d want %d", total, len(image))
		}
		sent = append(sent, cur)
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	// 182-byte chunks.
	if len(sent) != 6 || sent[5] != len(image) {
		t.Errorf("progress: got %v", sent)
	}

	select {
	case pdu := <-pushes:
		want := att.EncodeValuePush(false, server.HANDLE_OTA_CTRL,
			[]byte{ota.STATUS_OK})
		if !bytes.Equal(pdu, want) {
			t.Errorf("status push: got %x want %x", pdu, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no status push")
	}

	// The device reboots into the new image and confirms it.
	err = con.waitFor("image confirmation", func() bool {
		meta, err := fs.Info()
		return err == nil && meta.State == storage.IMAGE_STATE_ACTIVE
	})
	if err != nil {
		t.Fatalf("%v", err)
	}

	meta, _ := fs.Info()
	if meta.Size != len(image) {
		t.Errorf("image size: got %d want %d", meta.Size, len(image))
	}

	// The rebooted device accepts a new connection.
	if err := con.connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	handles, err := parseHandles([]string{"0x10", "19", "0x0003"})
	if err != nil {
		t.Fatalf("parseHandles: %v", err)
	}
	if handles[0] != 0x10 || handles[1] != 19 || handles[2] != 3 {
		t.Errorf("parseHandles: got %v", handles)
	}

	for _, s := range []string{"0", "-1", "0x10000", "abc"} {
		if _, err := parseHandle(s); err == nil {
			t.Errorf("parseHandle(%q) succeeded", s)
		}
	}

	vals := []struct {
		s    string
		want []byte
	}{
		{"0102", []byte{1, 2}},
		{"0x0a0b", []byte{0x0a, 0x0b}},
		{"de:ad:be:ef", []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, v := range vals {
		got, err := parseValue(v.s)
		if err != nil || !bytes.Equal(got, v.want) {
			t.Errorf("parseValue(%q): got (%x, %v) want %x", v.s, got, err,
				v.want)
		}
	}
	if _, err := parseValue("0g"); err == nil {
		t.Errorf("parseValue(\"0g\") succeeded")
	}
}
