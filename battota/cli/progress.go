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
	"sync"

	"gopkg.in/cheggaaa/pb.v1"
)

// transferBar renders image transfer progress.  The bar is created on the
// first update; a transfer of unknown size shows a byte counter.
type transferBar struct {
	mtx   sync.Mutex
	bar   *pb.ProgressBar
	total int
}

func (tb *transferBar) update(cur int, total int) {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()

	if tb.bar == nil {
		tb.bar = pb.New(total)
		tb.bar.SetUnits(pb.U_BYTES)
		tb.bar.ShowSpeed = true
		tb.bar.Start()
		tb.total = total
	}

	if total != tb.total {
		tb.bar.SetTotal(total)
		tb.total = total
	}
	tb.bar.Set(cur)

	if total != 0 && cur >= total {
		tb.finishNoLock()
	}
}

func (tb *transferBar) finishNoLock() {
	if tb.bar != nil {
		tb.bar.Finish()
		tb.bar = nil
	}
}

// finish closes a bar left open by an interrupted transfer.
func (tb *transferBar) finish() {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()

	tb.finishNoLock()
}
