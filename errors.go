// Copyright 2026 The etherstream Authors
// This file is part of the etherstream library.
//
// The etherstream library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherstream library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherstream library. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"errors"
	"fmt"
)

var (
	// ErrClientQuit is returned for operations submitted after Close has
	// been called on the client.
	ErrClientQuit = errors.New("client is closed")

	// ErrBackendGone is returned for requests that were in flight when the
	// backend connection was lost, and for all operations once the service
	// has terminated. It is not retriable: the request may or may not have
	// reached the server.
	ErrBackendGone = errors.New("backend connection lost")

	// ErrSubscriptionNotFound is returned when no active subscription
	// exists for the given id.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDroppedSubscription is returned by Receiver.Recv, after the
	// buffer is drained, when the subscription has been removed.
	ErrDroppedSubscription = errors.New("subscription dropped")
)

// LaggedError is returned by Receiver.Recv when the consumer fell more than
// the buffer capacity behind the notification stream. The receiver is
// repositioned at the oldest retained notification; the next Recv succeeds.
type LaggedError struct {
	Skipped uint64 // notifications lost to the consumer
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscription receiver lagged, %d notifications skipped", e.Skipped)
}

// Error wraps RPC errors, which contain an error code in addition to the
// message.
type Error interface {
	Error() string  // returns the message
	ErrorCode() int // returns the code
}

// A DataError contains some data in addition to the error message.
type DataError interface {
	Error() string          // returns the message
	ErrorData() interface{} // returns the error data
}

var _ Error = new(jsonError)
var _ DataError = new(jsonError)

// jsonError is a server-reported error. It is passed through to the caller
// verbatim and is not treated as a transport failure.
type jsonError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (err *jsonError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("json-rpc error %d", err.Code)
	}
	return err.Message
}

func (err *jsonError) ErrorCode() int {
	return err.Code
}

func (err *jsonError) ErrorData() interface{} {
	return err.Data
}
