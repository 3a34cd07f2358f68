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
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"mynewt.apache.org/battota/battota/bautil"
	"mynewt.apache.org/newt/util"
)

// Profile is a named device configuration.
type Profile struct {
	Name       string `json:"MyName"`
	ConnString string `json:"MyConnString"`
}

func (p *Profile) String() string {
	return fmt.Sprintf("name=%s connstring=%s", p.Name, p.ConnString)
}

type ProfileMgr struct {
	filename string
	profiles map[string]*Profile
}

func DefaultProfileFilename() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", util.NewNewtError(err.Error())
	}

	return filepath.Join(dir, bautil.ToolInfo.CfgFilename), nil
}

func NewProfileMgr(filename string) (*ProfileMgr, error) {
	pm := &ProfileMgr{
		filename: filename,
		profiles: map[string]*Profile{},
	}

	if err := pm.Init(); err != nil {
		return nil, err
	}

	return pm, nil
}

func (pm *ProfileMgr) Init() error {
	log.Debugf("Reading device profiles from %s", pm.filename)
	blob, err := ioutil.ReadFile(pm.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		} else {
			return util.ChildNewtError(err)
		}
	}

	var profiles []*Profile
	if err := json.Unmarshal(blob, &profiles); err != nil {
		return util.FmtNewtError("error reading device profile "+
			"config (%s): %s", pm.filename, err.Error())
	}

	for _, p := range profiles {
		pm.profiles[p.Name] = p
	}

	return nil
}

func (pm *ProfileMgr) List() []*Profile {
	list := make([]*Profile, 0, len(pm.profiles))
	for _, p := range pm.profiles {
		list = append(list, p)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func (pm *ProfileMgr) save() error {
	b, err := json.MarshalIndent(pm.List(), "", "    ")
	if err != nil {
		return util.NewNewtError(err.Error())
	}

	if err := ioutil.WriteFile(pm.filename, b, 0644); err != nil {
		return util.ChildNewtError(err)
	}

	return nil
}

// Add stores a profile, replacing any with the same name.  The connstring
// must parse.
func (pm *ProfileMgr) Add(p *Profile) error {
	if p.Name == "" {
		return util.NewNewtError("device profile requires a name")
	}
	if _, err := ParseConnString(p.ConnString); err != nil {
		return err
	}

	pm.profiles[p.Name] = p
	return pm.save()
}

func (pm *ProfileMgr) Delete(name string) error {
	if pm.profiles[name] == nil {
		return util.FmtNewtError("device profile \"%s\" doesn't exist", name)
	}

	delete(pm.profiles, name)
	return pm.save()
}

func (pm *ProfileMgr) Get(name string) (*Profile, error) {
	p := pm.profiles[name]
	if p == nil {
		return nil, util.FmtNewtError("device profile \"%s\" doesn't exist",
			name)
	}

	return p, nil
}

var globalProfileMgr *ProfileMgr

func GlobalProfileMgr() *ProfileMgr {
	if globalProfileMgr == nil {
		panic("device profile manager not initialized")
	}
	return globalProfileMgr
}

func InitGlobalProfileMgr() error {
	if globalProfileMgr != nil {
		return util.NewNewtError("device profile manager initialized twice")
	}

	filename, err := DefaultProfileFilename()
	if err != nil {
		return err
	}

	globalProfileMgr, err = NewProfileMgr(filename)
	if err != nil {
		return err
	}

	return nil
}
