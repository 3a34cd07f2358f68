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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cast"

	"mynewt.apache.org/battota/battota/bautil"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/nmserial"
	"mynewt.apache.org/battota/gattsvr/server"
	"mynewt.apache.org/battota/gattsvr/storage"
	"mynewt.apache.org/newt/util"
)

const DFLT_IMG_DIR = "~/.battota/images"

// DevCfg is a parsed device connstring.
type DevCfg struct {
	DevPath string
	Baud    int
	Mtu     int
	Reboot  bool
	Battery time.Duration
	ImgDir  string
	Name    string
}

func NewDevCfg() *DevCfg {
	return &DevCfg{
		Baud:    115200,
		Mtu:     BLE_ATT_MTU_MAX,
		Reboot:  true,
		Battery: 5 * time.Second,
		ImgDir:  DFLT_IMG_DIR,
		Name:    "battota",
	}
}

func einvalConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid connstring; %s", suffix)
}

// ParseConnString parses comma separated key=value pairs.  A lone token
// names the serial device.
func ParseConnString(cs string) (*DevCfg, error) {
	dc := NewDevCfg()
	if cs == "" {
		return dc, nil
	}

	for _, p := range strings.Split(cs, ",") {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 1 {
			kv = []string{"dev", kv[0]}
		}

		k := kv[0]
		v := kv[1]

		var err error
		switch k {
		case "dev":
			dc.DevPath = v

		case "baud":
			dc.Baud, err = cast.ToIntE(v)
			if err != nil || dc.Baud <= 0 {
				return nil, einvalConnString("Invalid baud: %s", v)
			}

		case "mtu":
			dc.Mtu, err = cast.ToIntE(v)
			if err != nil || dc.Mtu < BLE_ATT_MTU_DFLT ||
				dc.Mtu > BLE_ATT_MTU_MAX {

				return nil, einvalConnString("Invalid mtu: %s (%d-%d)", v,
					BLE_ATT_MTU_DFLT, BLE_ATT_MTU_MAX)
			}

		case "reboot":
			dc.Reboot, err = cast.ToBoolE(v)
			if err != nil {
				return nil, einvalConnString("Invalid reboot: %s", v)
			}

		case "battery":
			// A bare number is seconds.
			if n, nerr := cast.ToIntE(v); nerr == nil {
				dc.Battery = time.Duration(n) * time.Second
			} else {
				dc.Battery, err = cast.ToDurationE(v)
			}
			if err != nil || dc.Battery < 0 {
				return nil, einvalConnString("Invalid battery interval: %s", v)
			}

		case "imgdir":
			dc.ImgDir = v

		case "name":
			if len(v) > server.DEV_NAME_MAX_LEN {
				return nil, einvalConnString("Device name longer than %d: %s",
					server.DEV_NAME_MAX_LEN, v)
			}
			dc.Name = v

		default:
			return nil, einvalConnString("Unrecognized key: %s", k)
		}
	}

	return dc, nil
}

func (dc *DevCfg) String() string {
	return fmt.Sprintf("dev=%s baud=%d mtu=%d reboot=%t battery=%s "+
		"imgdir=%s name=%s", dc.DevPath, dc.Baud, dc.Mtu, dc.Reboot,
		dc.Battery, dc.ImgDir, dc.Name)
}

func (dc *DevCfg) XportCfg() *nmserial.XportCfg {
	xc := nmserial.NewXportCfg()
	xc.DevPath = dc.DevPath
	xc.Baud = dc.Baud
	return xc
}

func BuildSerialXport(dc *DevCfg) (*nmserial.SerialXport, error) {
	if dc.DevPath == "" {
		return nil, util.NewNewtError("connstring does not name a serial " +
			"device (dev=...)")
	}

	return nmserial.NewSerialXport(dc.XportCfg()), nil
}

func BuildFileStore(dc *DevCfg) (*storage.FileStore, error) {
	dir, err := homedir.Expand(dc.ImgDir)
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	fs, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	return fs, nil
}

// ServerCfg fills in everything but the transport and storage.
func (dc *DevCfg) ServerCfg() server.Cfg {
	cfg := server.NewCfg()
	cfg.DevName = dc.Name
	cfg.LocalMtu = dc.Mtu
	cfg.RebootOnComplete = dc.Reboot
	cfg.BatteryInterval = dc.Battery
	if t := bautil.AckTimeout(); t > 0 {
		cfg.AckTimeout = t
	}
	return cfg
}
