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

	"github.com/spf13/cobra"

	"mynewt.apache.org/battota/battota/config"
	"mynewt.apache.org/battota/gattsvr/storage"
	"mynewt.apache.org/newt/util"
)

func imageCrcCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		baUsage(cmd, util.NewNewtError("Need to specify an image file"))
	}

	for _, path := range args {
		crc, size, err := storage.ImageCrc(path)
		if err != nil {
			baUsage(nil, util.ChildNewtError(err))
		}

		fmt.Printf("%s: size=%d crc=0x%04x\n", path, size, crc)
	}
}

func imageInfoCmd(cmd *cobra.Command, args []string) {
	dc, err := getDevCfg()
	if err != nil {
		baUsage(cmd, err)
	}

	fs, err := config.BuildFileStore(dc)
	if err != nil {
		baUsage(nil, err)
	}

	meta, err := fs.Info()
	if err != nil {
		baUsage(nil, util.ChildNewtError(err))
	}

	if meta.State == storage.IMAGE_STATE_NONE {
		fmt.Printf("No image installed in %s\n", fs.Dir())
		return
	}

	fmt.Printf("Image in %s:\n", fs.Dir())
	fmt.Printf("    state=%s size=%d crc=0x%04x\n", meta.State, meta.Size,
		meta.Crc)
}

func imageCmd() *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Inspect firmware images",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	crcCmd := &cobra.Command{
		Use:   "crc <image-file> [image-file...]",
		Short: "Compute the CRC-16 a peer sends with the verify command",
		Run:   imageCrcCmd,
	}
	imageCmd.AddCommand(crcCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the most recently installed image",
		Run:   imageInfoCmd,
	}
	imageCmd.AddCommand(infoCmd)

	return imageCmd
}
