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
	"strings"

	"github.com/spf13/cobra"

	"mynewt.apache.org/battota/battota/bautil"
	"mynewt.apache.org/battota/battota/config"
	"mynewt.apache.org/newt/util"
)

func profileAddCmd(cmd *cobra.Command, args []string) {
	pm := config.GlobalProfileMgr()

	// Profile name required
	if len(args) == 0 {
		baUsage(cmd, util.NewNewtError("Need device profile name"))
	}

	p := &config.Profile{Name: args[0]}

	for _, vdef := range args[1:] {
		s := strings.SplitN(vdef, "=", 2)
		switch s[0] {
		case "connstring":
			if len(s) < 2 {
				baUsage(cmd, util.NewNewtError("connstring requires a value"))
			}
			p.ConnString = s[1]
		default:
			baUsage(cmd, util.NewNewtError("Unknown variable "+s[0]))
		}
	}

	if err := pm.Add(p); err != nil {
		baUsage(cmd, err)
	}

	fmt.Printf("Device profile %s successfully added\n", p.Name)
}

func profileShowCmd(cmd *cobra.Command, args []string) {
	pm := config.GlobalProfileMgr()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	found := false
	for _, p := range pm.List() {
		if name != "" && p.Name != name {
			continue
		}

		if !found {
			found = true
			fmt.Printf("Device profiles: \n")
		}
		fmt.Printf("  %s: connstring='%s'\n", p.Name, p.ConnString)
	}

	if !found {
		if name == "" {
			fmt.Printf("No device profiles found!\n")
		} else {
			fmt.Printf("No device profiles found matching %s\n", name)
		}
	}
}

func profileDelCmd(cmd *cobra.Command, args []string) {
	pm := config.GlobalProfileMgr()

	if len(args) == 0 {
		baUsage(cmd, util.NewNewtError("Need device profile name"))
	}

	name := args[0]
	if err := pm.Delete(name); err != nil {
		baUsage(cmd, err)
	}

	fmt.Printf("Device profile %s successfully deleted.\n", name)
}

func profileCmd() *cobra.Command {
	pCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage " + bautil.ToolInfo.ShortName + " device profiles",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	addCmd := &cobra.Command{
		Use:     "add <profile> connstring=<k=v,...>",
		Short:   "Add a device profile",
		Example: "  battota profile add dev1 connstring=dev=/dev/ttyUSB0,mtu=247",
		Run:     profileAddCmd,
	}
	pCmd.AddCommand(addCmd)

	delCmd := &cobra.Command{
		Use:   "delete <profile>",
		Short: "Delete a device profile",
		Run:   profileDelCmd,
	}
	pCmd.AddCommand(delCmd)

	showCmd := &cobra.Command{
		Use:   "show [profile]",
		Short: "Show one or all device profiles",
		Run:   profileShowCmd,
	}
	pCmd.AddCommand(showCmd)

	return pCmd
}
