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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/abiosoft/ishell.v2"

	"mynewt.apache.org/battota/battota/bautil"
	"mynewt.apache.org/battota/battota/config"
	"mynewt.apache.org/battota/gattsvr/att"
	. "mynewt.apache.org/battota/gattsvr/bledefs"
	"mynewt.apache.org/battota/gattsvr/svrutil"
)

func parseHandle(s string) (uint16, error) {
	h, err := cast.ToUint16E(s)
	if err != nil || h == 0 {
		return 0, fmt.Errorf("invalid handle: %s", s)
	}
	return h, nil
}

func parseHandles(args []string) ([]uint16, error) {
	handles := make([]uint16, len(args))
	for i, a := range args {
		h, err := parseHandle(a)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	return handles, nil
}

func parseValue(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ":", ""), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %s", s)
	}
	return b, nil
}

func rspString(rsp []byte) string {
	if len(rsp) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("%s %x", att.OpToString(rsp[0]), rsp[1:])
}

func pushString(pdu []byte) string {
	if len(pdu) < att.VALUE_PUSH_HDR_LEN {
		return rspString(pdu)
	}
	return fmt.Sprintf("%s handle=0x%04x value=%x", att.OpToString(pdu[0]),
		binary.LittleEndian.Uint16(pdu[1:3]), pdu[3:])
}

// rspErrString describes a failed request.  ATT error responses are shown
// with their status name.
func rspErrString(err error) string {
	if ersp, ok := err.(*att.ErrorRsp); ok {
		return fmt.Sprintf("%s (%s)", ersp.Error(),
			AttErrCodeToString(ersp.Status))
	}
	if svrutil.IsNotConnected(err) {
		return err.Error() + "; use 'connect' first"
	}
	return err.Error()
}

type shellEnv struct {
	con *console
	bar *transferBar
}

func (env *shellEnv) report(c *ishell.Context, rsp []byte, err error) {
	if err != nil {
		c.Println("Error:", rspErrString(err))
		return
	}
	c.Println(rspString(rsp))
}

func (env *shellEnv) connect(c *ishell.Context) {
	if err := env.con.connect(); err != nil {
		c.Err(err)
		return
	}
	c.Printf("Connected: conn=%d\n", CONSOLE_CONN_ID)
}

func (env *shellEnv) disconnect(c *ishell.Context) {
	reason := uint8(0x13)
	if len(c.Args) > 0 {
		r, err := cast.ToUint8E(c.Args[0])
		if err != nil {
			c.Err(fmt.Errorf("invalid reason: %s", c.Args[0]))
			return
		}
		reason = r
	}

	if err := env.con.disconnect(reason); err != nil {
		c.Err(err)
		return
	}
	c.Println("Disconnected")
}

func (env *shellEnv) mtu(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: mtu <size>"))
		return
	}
	want, err := cast.ToIntE(c.Args[0])
	if err != nil || want <= 0 || want > 0xffff {
		c.Err(fmt.Errorf("invalid mtu: %s", c.Args[0]))
		return
	}

	mtu, err := env.con.exchangeMtu(want)
	if err != nil {
		c.Err(err)
		return
	}
	c.Printf("MTU: %d\n", mtu)
}

func (env *shellEnv) read(c *ishell.Context) {
	if len(c.Args) < 1 || len(c.Args) > 2 {
		c.Err(fmt.Errorf("usage: read <handle> [offset]"))
		return
	}
	h, err := parseHandle(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}

	var req att.Req = &att.ReadReq{Handle: h}
	if len(c.Args) == 2 {
		off, err := cast.ToUint16E(c.Args[1])
		if err != nil {
			c.Err(fmt.Errorf("invalid offset: %s", c.Args[1]))
			return
		}
		req = &att.ReadBlobReq{Handle: h, Offset: off}
	}

	rsp, err := env.con.request(req)
	env.report(c, rsp, err)
}

func (env *shellEnv) readType(c *ishell.Context) {
	if len(c.Args) != 3 {
		c.Err(fmt.Errorf("usage: readtype <start> <end> <uuid>"))
		return
	}
	handles, err := parseHandles(c.Args[:2])
	if err != nil {
		c.Err(err)
		return
	}
	uuid, err := ParseUuid(c.Args[2])
	if err != nil {
		c.Err(err)
		return
	}

	rsp, err := env.con.request(&att.ReadByTypeReq{
		Start: handles[0],
		End:   handles[1],
		Type:  uuid,
	})
	env.report(c, rsp, err)
}

func (env *shellEnv) readMulti(c *ishell.Context) {
	if len(c.Args) < 2 {
		c.Err(fmt.Errorf("usage: readmulti <handle> <handle> [handle...]"))
		return
	}
	handles, err := parseHandles(c.Args)
	if err != nil {
		c.Err(err)
		return
	}

	rsp, err := env.con.request(&att.ReadMultiReq{Handles: handles})
	env.report(c, rsp, err)
}

func (env *shellEnv) writeCommon(c *ishell.Context, noRsp bool) {
	if len(c.Args) != 2 {
		c.Err(fmt.Errorf("usage: write <handle> <hex-value>"))
		return
	}
	h, err := parseHandle(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}
	val, err := parseValue(c.Args[1])
	if err != nil {
		c.Err(err)
		return
	}

	req := &att.WriteReq{NoRsp: noRsp, Handle: h, Value: val}
	if noRsp {
		if err := env.con.send(req); err != nil {
			c.Err(err)
		}
		return
	}

	rsp, err := env.con.request(req)
	env.report(c, rsp, err)
}

func (env *shellEnv) write(c *ishell.Context) {
	env.writeCommon(c, false)
}

func (env *shellEnv) writeCmd(c *ishell.Context) {
	env.writeCommon(c, true)
}

func (env *shellEnv) confirm(c *ishell.Context) {
	if err := env.con.confirm(); err != nil {
		c.Err(err)
	}
}

func (env *shellEnv) upload(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: upload <image-file>"))
		return
	}

	image, err := ioutil.ReadFile(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}

	start := time.Now()
	err = env.con.upload(image, env.bar.update)
	env.bar.finish()
	if err != nil {
		c.Println("Error:", rspErrString(err))
		return
	}

	c.Printf("Uploaded %d bytes in %s\n", len(image),
		time.Since(start).Round(time.Millisecond))
}

func (env *shellEnv) status(c *ishell.Context) {
	srv := env.con.curServer()
	if srv == nil {
		c.Println("Server not running")
		return
	}

	st := srv.Status()
	peer := "none"
	if !st.Conn.Addr.IsZero() {
		peer = st.Conn.Addr.String()
	}
	c.Printf("conn=%d peer=%s mtu=%d led=%s\n", st.Conn.ConnId, peer,
		st.Conn.Mtu, st.Led)
	for k, v := range svrutil.Fields(st.Session) {
		c.Printf("    %s=%v\n", k, v)
	}
}

func (env *shellEnv) schema(c *ishell.Context) {
	srv := env.con.curServer()
	if srv == nil {
		c.Println("Server not running")
		return
	}

	var sb strings.Builder
	printSchema(&sb, srv.Store())
	c.Print(sb.String())
}

func startShell(cmd *cobra.Command, args []string) {
	dc, err := getDevCfg()
	if err != nil {
		baUsage(cmd, err)
	}

	fs, err := config.BuildFileStore(dc)
	if err != nil {
		baUsage(nil, err)
	}

	cfg := dc.ServerCfg()
	cfg.Storage = fs

	timeout := bautil.AckTimeout()
	if timeout <= 0 {
		timeout = cfg.AckTimeout
	}

	// create new shell.
	// by default, new shell includes 'exit', 'help' and 'clear' commands.
	shell := ishell.New()
	shell.SetPrompt("> ")

	env := &shellEnv{
		con: newConsole(cfg, timeout),
		bar: &transferBar{},
	}
	env.con.autoConfirm = true
	env.con.pushCb = func(pdu []byte) {
		shell.Println(pushString(pdu))
	}

	if err := env.con.start(); err != nil {
		baUsage(nil, err)
	}
	defer env.con.stop()

	shell.Println()
	shell.Println(" " + bautil.ToolInfo.LongName + " console (loopback link)")
	shell.Println("	Device name: ", dc.Name)
	shell.Println("	Image directory: ", fs.Dir())
	shell.Println()

	cmds := []*ishell.Cmd{
		{Name: "connect", Help: "Connect as the peer", Func: env.connect},
		{Name: "disconnect", Help: "Disconnect: disconnect [reason]",
			Func: env.disconnect},
		{Name: "mtu", Help: "Exchange MTU: mtu <size>", Func: env.mtu},
		{Name: "read", Help: "Read a value: read <handle> [offset]",
			Func: env.read},
		{Name: "readtype", Help: "Read by type: readtype <start> <end> <uuid>",
			Func: env.readType},
		{Name: "readmulti", Help: "Read multiple: readmulti <handle>...",
			Func: env.readMulti},
		{Name: "write", Help: "Write request: write <handle> <hex>",
			Func: env.write},
		{Name: "writecmd", Help: "Write command: writecmd <handle> <hex>",
			Func: env.writeCmd},
		{Name: "confirm", Help: "Confirm an indication", Func: env.confirm},
		{Name: "upload", Help: "Upgrade the device: upload <image-file>",
			Func: env.upload},
		{Name: "status", Help: "Show connection and upgrade status",
			Func: env.status},
		{Name: "schema", Help: "Show the attribute table", Func: env.schema},
	}
	for _, c := range cmds {
		shell.AddCmd(c)
	}

	shell.Run()
	shell.Close()
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use: "shell",
		Short: "Run the server in-process and drive it from an " +
			"interactive console",
		Run: startShell,
	}
}
