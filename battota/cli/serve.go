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
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/battota/battota/config"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/server"
	"mynewt.apache.org/battota/gattsvr/svrutil"
	"mynewt.apache.org/newt/util"
)

var serveCancel context.CancelFunc
var serveDone chan struct{}

// StopServe ends a running serve command and waits briefly for the server
// to release its transport.
func StopServe() {
	if serveCancel == nil {
		return
	}
	serveCancel()

	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		log.Debugf("Server did not stop in time")
	}
}

// runServer boots the server repeatedly until it stops for a reason other
// than a device reset.
func runServer(ctx context.Context, cfg server.Cfg) error {
	for boot := 1; ; boot++ {
		srv, err := server.New(cfg)
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"boot": boot,
			"name": cfg.DevName,
		}).Infof("Booting")

		err = srv.Run(ctx)
		if !svrutil.IsReset(err) {
			return err
		}

		log.Infof("Device reset; rebooting into new image")
	}
}

func serveRunCmd(cmd *cobra.Command, args []string) {
	dc, err := getDevCfg()
	if err != nil {
		baUsage(cmd, err)
	}

	sx, err := config.BuildSerialXport(dc)
	if err != nil {
		baUsage(cmd, err)
	}

	fs, err := config.BuildFileStore(dc)
	if err != nil {
		baUsage(nil, err)
	}

	bar := &transferBar{}
	defer bar.finish()

	cfg := dc.ServerCfg()
	cfg.Xport = sx
	cfg.Storage = fs
	cfg.ProgressCb = bar.update
	cfg.LedCb = func(led LedState) {
		log.Infof("LED: %s", led)
	}

	log.Infof("Serving on %s (%s)", dc.DevPath, dc.String())

	var ctx context.Context
	ctx, serveCancel = context.WithCancel(context.Background())
	serveDone = make(chan struct{})

	err = runServer(ctx, cfg)
	close(serveDone)
	if err != nil && err != context.Canceled {
		baUsage(nil, util.ChildNewtError(err))
	}
}

func serveCmd() *cobra.Command {
	serveHelpText := "Run the attribute server over a serial link to a " +
		"radio simulator.\nThe device profile or --connstring selects the " +
		"serial device and server settings."

	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the attribute server",
		Long:    serveHelpText,
		Example: "  battota serve --connstring dev=/dev/ttyUSB0,mtu=247",
		Run:     serveRunCmd,
	}
}
