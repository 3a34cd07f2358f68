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

package nmserial

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/joaojeronimo/go-crc16"
	log "github.com/sirupsen/logrus"
)

// Line markers: the first line of a frame and its continuations.
var (
	MARKER_START = []byte{6, 9}
	MARKER_CONT  = []byte{4, 20}
)

// Each line carries at most this many base64 characters so that a full line,
// marker and newline included, fits a 128-byte receive buffer.
const LINE_DATA_MAX = 124

// EncodeFrame splits a payload into newline-terminated console lines:
// base64(len BE16, payload, crc16 BE16).
func EncodeFrame(payload []byte) [][]byte {
	body := make([]byte, 2, 4+len(payload))
	binary.BigEndian.PutUint16(body, uint16(len(payload)+2))
	body = append(body, payload...)

	crcb := make([]byte, 2)
	binary.BigEndian.PutUint16(crcb, crc16.Crc16(payload))
	body = append(body, crcb...)

	enc := make([]byte, base64.StdEncoding.EncodedLen(len(body)))
	base64.StdEncoding.Encode(enc, body)

	var lines [][]byte
	for written := 0; written < len(enc); {
		n := len(enc) - written
		if n > LINE_DATA_MAX {
			n = LINE_DATA_MAX
		}

		var line []byte
		if written == 0 {
			line = append(line, MARKER_START...)
		} else {
			line = append(line, MARKER_CONT...)
		}
		line = append(line, enc[written:written+n]...)
		line = append(line, '\n')

		lines = append(lines, line)
		written += n
	}

	return lines
}

type packet struct {
	expected int
	buf      []byte
}

// Decoder reassembles frames from console lines.  Lines without a frame
// marker are ignored.
type Decoder struct {
	pkt *packet
}

func isMarker(line []byte, marker []byte) bool {
	return len(line) >= 2 && line[0] == marker[0] && line[1] == marker[1]
}

// Feed consumes one line (without its newline).  It returns the payload once
// a frame is complete, and nil otherwise.
func (d *Decoder) Feed(line []byte) ([]byte, error) {
	for len(line) > 1 && line[0] == '\r' {
		line = line[1:]
	}
	for len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	start := isMarker(line, MARKER_START)
	if !start && !isMarker(line, MARKER_CONT) {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(string(line[2:]))
	if err != nil {
		d.pkt = nil
		return nil, fmt.Errorf("Couldn't decode base64 string: %s\n"+
			"Packet hex dump:\n%s", line[2:], hex.Dump(line))
	}

	if start {
		if len(data) < 2 {
			return nil, nil
		}
		pktLen := int(binary.BigEndian.Uint16(data[0:2]))
		if pktLen < 2 {
			return nil, fmt.Errorf("frame length %d too short", pktLen)
		}
		d.pkt = &packet{
			expected: pktLen,
			buf:      make([]byte, 0, pktLen),
		}
		data = data[2:]
	}

	if d.pkt == nil {
		return nil, nil
	}

	d.pkt.buf = append(d.pkt.buf, data...)
	if len(d.pkt.buf) < d.pkt.expected {
		return nil, nil
	}

	b := d.pkt.buf
	expected := d.pkt.expected
	d.pkt = nil

	if len(b) > expected {
		return nil, fmt.Errorf("frame overrun: %d bytes; expected %d",
			len(b), expected)
	}
	if crc16.Crc16(b) != 0 {
		return nil, fmt.Errorf("CRC error")
	}

	// Trim away the 2 bytes of CRC.
	b = b[:len(b)-2]
	log.Debugf("Decoded serial frame:\n%s", hex.Dump(b))
	return b, nil
}
