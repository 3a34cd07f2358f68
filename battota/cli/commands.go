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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/battota/battota/bautil"
	"mynewt.apache.org/battota/gattsvr/svrutil"
	"mynewt.apache.org/newt/util"
)

var BattotaLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	baCmd := &cobra.Command{
		Use: bautil.ToolInfo.ExeName,
		Short: bautil.ToolInfo.ShortName + " runs a battery-service " +
			"attribute server with firmware upgrade",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			BattotaLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				baUsage(nil, util.ChildNewtError(err))
			}

			err = util.Init(BattotaLogLevel, "", util.VERBOSITY_DEFAULT)
			if err != nil {
				baUsage(nil, err)
			}
			svrutil.SetLogLevel(BattotaLogLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	baCmd.PersistentFlags().StringVarP(&bautil.Profile, "profile", "c", "",
		"device profile to use")

	baCmd.PersistentFlags().Float64VarP(&bautil.Timeout, "timeout", "t", 10.0,
		"indication confirmation timeout in seconds (partial seconds allowed)")

	baCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	baCmd.PersistentFlags().StringVar(&bautil.ConnString, "connstring", "",
		"Device key-value pairs to use instead of the profile's connstring")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + bautil.ToolInfo.ShortName + " version number",
		Example: "  " + bautil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				bautil.ToolInfo.LongName,
				bautil.ToolInfo.VersionString)
		},
	}
	baCmd.AddCommand(versCmd)

	baCmd.AddCommand(serveCmd())
	baCmd.AddCommand(shellCmd())
	baCmd.AddCommand(schemaCmd())
	baCmd.AddCommand(imageCmd())
	baCmd.AddCommand(profileCmd())

	return baCmd
}
