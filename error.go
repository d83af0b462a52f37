// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch

import (
	"fmt"
	"net/http"
)

// RespError is the JSON body returned by the server for failed requests.
type RespError struct {
	ErrCode string `json:"errcode"`
	Err     string `json:"error"`
}

// Error returns the errcode and error message.
func (e RespError) Error() string {
	return e.ErrCode + ": " + e.Err
}

// Is returns true if the given error is a RespError with the same errcode.
func (e RespError) Is(target error) bool {
	respErr, ok := target.(RespError)
	if !ok {
		respErrPtr, ok := target.(*RespError)
		if !ok {
			return false
		}
		respErr = *respErrPtr
	}
	return respErr.ErrCode == e.ErrCode
}

// HTTPError is returned for all failed HTTP requests: transport errors,
// non-2xx statuses and undecodable bodies alike.
type HTTPError struct {
	Request  *http.Request
	Response *http.Response

	RespError    *RespError
	Message      string
	ResponseBody string
	WrappedError error
}

func (e HTTPError) Is(target error) bool {
	if e.RespError != nil {
		return e.RespError.Is(target)
	}
	return false
}

func (e HTTPError) IsStatus(code int) bool {
	return e.Response != nil && e.Response.StatusCode == code
}

func (e HTTPError) Error() string {
	if e.WrappedError != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.WrappedError)
	} else if e.RespError != nil {
		return fmt.Sprintf("failed to %s %s: %s", e.Request.Method, e.Request.URL.Path, e.RespError.Error())
	} else if e.Response != nil {
		return fmt.Sprintf("failed to %s %s: HTTP %d", e.Request.Method, e.Request.URL.Path, e.Response.StatusCode)
	}
	return e.Message
}

func (e HTTPError) Unwrap() error {
	if e.RespError != nil {
		return *e.RespError
	}
	return e.WrappedError
}
