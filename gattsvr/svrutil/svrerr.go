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

package svrutil

import (
	"fmt"

	"github.com/pkg/errors"

	"mynewt.apache.org/battota/gattsvr/bledefs"
)

// AttError is a request-scoped failure reported to the peer in an error
// response.  Handle is the attribute blamed for the failure.
type AttError struct {
	Text   string
	Status int
	Handle uint16
}

func NewAttError(status int, handle uint16, text string) *AttError {
	return &AttError{
		Text:   text,
		Status: status,
		Handle: handle,
	}
}

func FmtAttError(status int, handle uint16, format string,
	args ...interface{}) *AttError {

	return NewAttError(status, handle, fmt.Sprintf(format, args...))
}

func (e *AttError) Error() string {
	return fmt.Sprintf("%s (status=0x%02x [%s] handle=0x%04x)",
		e.Text, e.Status, bledefs.AttErrCodeToString(e.Status), e.Handle)
}

// ToAttError returns the AttError at the root of err's cause chain, if any.
func ToAttError(err error) *AttError {
	if e, ok := errors.Cause(err).(*AttError); ok {
		return e
	}
	return nil
}

func IsAttError(err error) bool {
	return ToAttError(err) != nil
}

// AttStatus returns the attribute protocol status carried by err.  Errors
// that do not carry one are reported as "unlikely".
func AttStatus(err error) int {
	if e := ToAttError(err); e != nil {
		return e.Status
	}
	return bledefs.ERR_CODE_ATT_UNLIKELY
}

// Wait for a peer acknowledgement expired.
type TimeoutError struct {
	Text string
}

func NewTimeoutError(text string) *TimeoutError {
	return &TimeoutError{
		Text: text,
	}
}

func FmtTimeoutError(format string, args ...interface{}) *TimeoutError {
	return NewTimeoutError(fmt.Sprintf(format, args...))
}

func (e *TimeoutError) Error() string {
	return e.Text
}

func IsTimeout(err error) bool {
	_, ok := errors.Cause(err).(*TimeoutError)
	return ok
}

type AbortedError struct {
	Text string
}

func NewAbortedError(text string) *AbortedError {
	return &AbortedError{
		Text: text,
	}
}

func (e *AbortedError) Error() string {
	return e.Text
}

func IsAborted(err error) bool {
	_, ok := errors.Cause(err).(*AbortedError)
	return ok
}

type XportError struct {
	Text string
}

func NewXportError(text string) *XportError {
	return &XportError{
		Text: text,
	}
}

func FmtXportError(format string, args ...interface{}) *XportError {
	return NewXportError(fmt.Sprintf(format, args...))
}

func (e *XportError) Error() string {
	return e.Text
}

func IsXport(err error) bool {
	_, ok := errors.Cause(err).(*XportError)
	return ok
}

// Returned by operations that need a connected peer when there is none.
type NotConnectedError struct {
	Text string
}

func NewNotConnectedError(text string) *NotConnectedError {
	return &NotConnectedError{
		Text: text,
	}
}

func (e *NotConnectedError) Error() string {
	return e.Text
}

func IsNotConnected(err error) bool {
	_, ok := errors.Cause(err).(*NotConnectedError)
	return ok
}

// Returned by a server that stopped because the device reset.
type ResetError struct {
	Text string
}

func NewResetError(text string) *ResetError {
	return &ResetError{
		Text: text,
	}
}

func (e *ResetError) Error() string {
	return e.Text
}

func IsReset(err error) bool {
	_, ok := errors.Cause(err).(*ResetError)
	return ok
}
