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
	"io"
	"os"

	"github.com/spf13/cobra"

	"mynewt.apache.org/battota/gattsvr/attr"
	"mynewt.apache.org/battota/gattsvr/server"
)

func printSchema(w io.Writer, store *attr.Store) {
	fmt.Fprintf(w, "%-8s %-38s %-26s %s\n", "handle", "type", "flags",
		"value")

	for _, info := range store.Infos() {
		val, _ := store.Read(info.Handle, 0, -1)
		fmt.Fprintf(w, "0x%04x   %-38s %-26s %x (%d/%d)\n",
			info.Handle, info.Type.String(), info.Flags.String(), val,
			info.CurLen, info.MaxLen)
	}
}

func schemaRunCmd(cmd *cobra.Command, args []string) {
	dc, err := getDevCfg()
	if err != nil {
		baUsage(cmd, err)
	}

	store, err := attr.NewStore(server.Schema(dc.Name))
	if err != nil {
		baUsage(nil, err)
	}

	printSchema(os.Stdout, store)
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Display the attribute table",
		Run:   schemaRunCmd,
	}
}
