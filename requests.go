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
	"encoding/json"
	"fmt"
	"strings"
)

// requestResult resolves one in-flight request: a response message on
// success or a server error, a transport error otherwise. Exactly one of
// the fields is set.
type requestResult struct {
	msg *jsonrpcMessage
	err error
}

// inflightRequest is a submitted request awaiting its response. The full
// serialized request is cached; for subscribe requests it is the payload
// resent verbatim on reconnect.
type inflightRequest struct {
	id     string          // string form of the wire id
	raw    json.RawMessage // the serialized request
	method string
	params json.RawMessage // exact params bytes, nil when absent

	// resp receives exactly one result. It has capacity 1 so resolution
	// never blocks on a caller that abandoned its wait. A nil resp marks a
	// service-originated request (resubscribe, unsubscribe notice) whose
	// result is discarded.
	resp chan requestResult
}

func (op *inflightRequest) isSubscribe() bool {
	return strings.HasSuffix(op.method, subscribeMethodSuffix)
}

func (op *inflightRequest) deliver(msg *jsonrpcMessage) {
	if op.resp != nil {
		op.resp <- requestResult{msg: msg}
	}
}

func (op *inflightRequest) fail(err error) {
	if op.resp != nil {
		op.resp <- requestResult{err: err}
	}
}

// requestTable tracks outstanding requests awaiting a response, keyed by
// request id. It is owned by the service goroutine and needs no lock.
type requestTable struct {
	reqs map[string]*inflightRequest
}

func newRequestTable() *requestTable {
	return &requestTable{reqs: make(map[string]*inflightRequest)}
}

func (t *requestTable) insert(op *inflightRequest) {
	t.reqs[op.id] = op
}

func (t *requestTable) len() int {
	return len(t.reqs)
}

// handleResponse matches a response to its in-flight request and removes
// the entry. Responses with no matching entry are not actionable and get
// dropped; the zero return values report that.
//
// A successful response to a subscribe request is special-cased: the
// result is parsed as a server alias and returned together with the entry
// so the service can promote it into an active subscription, instead of
// resolving the entry's reply channel here. A subscribe acknowledgement
// whose result does not parse resolves the entry with the parse error;
// dropping it would leave the caller suspended forever. Every other match
// resolves the entry with the response directly.
func (t *requestTable) handleResponse(msg *jsonrpcMessage) (op *inflightRequest, alias ServerAlias, promote bool) {
	op = t.reqs[string(msg.ID)]
	if op == nil {
		return nil, "", false
	}
	delete(t.reqs, string(msg.ID))

	if op.isSubscribe() && msg.Error == nil {
		if err := json.Unmarshal(msg.Result, &alias); err != nil {
			op.fail(fmt.Errorf("invalid subscription id in %s response: %w", op.method, err))
			return op, "", false
		}
		return op, alias, true
	}
	op.deliver(msg)
	return op, "", false
}

// failAll resolves every in-flight request with err and clears the table.
// Called when the backend connection is lost and on service shutdown.
func (t *requestTable) failAll(err error) {
	for id, op := range t.reqs {
		delete(t.reqs, id)
		op.fail(err)
	}
}
