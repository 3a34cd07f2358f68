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

// Package batt simulates a draining battery and reports its level to the
// connected peer.
package batt

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/battota/gattsvr/notify"
)

const (
	LEVEL_FULL = 100
	LEVEL_STEP = 2
)

type LevelStore interface {
	Read(handle uint16, offset int, max int) ([]byte, error)
	Write(handle uint16, val []byte) error
}

type Pusher interface {
	MaybePush(valHandle uint16) (notify.PushResult, error)
}

type ConnIdSource interface {
	ConnId() uint16
}

type Counter struct {
	store    LevelStore
	pusher   Pusher
	conn     ConnIdSource
	handle   uint16
	interval time.Duration
}

func NewCounter(store LevelStore, pusher Pusher, conn ConnIdSource,
	levelHandle uint16, interval time.Duration) *Counter {

	return &Counter{
		store:    store,
		pusher:   pusher,
		conn:     conn,
		handle:   levelHandle,
		interval: interval,
	}
}

// NextLevel returns the level following cur.  An empty battery recharges.
func NextLevel(cur uint8) uint8 {
	if cur == 0 {
		return LEVEL_FULL
	}
	if cur < LEVEL_STEP {
		return 0
	}
	return cur - LEVEL_STEP
}

// Tick advances the level once.  It does nothing while no peer is connected.
func (c *Counter) Tick() error {
	if c.conn.ConnId() == 0 {
		return nil
	}

	cur, err := c.store.Read(c.handle, 0, 1)
	if err != nil {
		return err
	}

	next := NextLevel(cur[0])
	if err := c.store.Write(c.handle, []byte{next}); err != nil {
		return err
	}

	res, err := c.pusher.MaybePush(c.handle)
	if err != nil {
		return err
	}
	if res != notify.PUSH_NONE {
		log.Infof("Battery level: %d%% (%s)", next, res)
	}

	return nil
}

// Run ticks every interval until ctx is done.
func (c *Counter) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				log.Debugf("Battery update failed: %s", err.Error())
			}
		}
	}
}
