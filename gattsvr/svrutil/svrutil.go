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

package svrutil

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/structs"
	log "github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

var Debug bool

var logFormatter = log.TextFormatter{
	FullTimestamp:   true,
	TimestampFormat: "2006-01-02 15:04:05.999",
	ForceColors:     true,
}

func SetLogLevel(level log.Level) {
	log.SetLevel(level)
	log.SetFormatter(&logFormatter)
}

func Assert(cond bool) {
	if Debug && !cond {
		panic("Failed assertion")
	}
}

// Fields converts a snapshot struct into logrus fields.  Struct field names
// become keys.
func Fields(snapshot interface{}) log.Fields {
	return log.Fields(structs.Map(snapshot))
}

func LogPdu(dir string, connId uint16, pdu []byte) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("%s att conn=%d\n%s", dir, connId, hex.Dump(pdu))
	}
}

func EncodeCbor(val interface{}) ([]byte, error) {
	var b []byte

	enc := codec.NewEncoderBytes(&b, new(codec.CborHandle))
	if err := enc.Encode(val); err != nil {
		return nil, fmt.Errorf("failure encoding cbor; %s", err.Error())
	}

	return b, nil
}

func DecodeCbor(cbor []byte, val interface{}) error {
	dec := codec.NewDecoderBytes(cbor, new(codec.CborHandle))
	if err := dec.Decode(val); err != nil {
		log.Debugf("Attempt to decode invalid cbor: %#v", cbor)
		return fmt.Errorf("failure decoding cbor; %s", err.Error())
	}

	return nil
}
