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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribeOp(id, params string) *inflightRequest {
	return &inflightRequest{
		id:     id,
		raw:    json.RawMessage(`{"jsonrpc":"2.0","id":` + id + `,"method":"eth_subscribe","params":` + params + `}`),
		method: "eth_subscribe",
		params: json.RawMessage(params),
	}
}

func TestSubscriptionTableInsertDeduplicates(t *testing.T) {
	tab := newSubscriptionTable()
	id1 := tab.insert(subscribeOp("1", `["newHeads"]`), 0)
	id2 := tab.insert(subscribeOp("2", `["newHeads"]`), 0)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, tab.len())
	// The cached request stays the original one.
	assert.Equal(t, "1", tab.get(id1).reqID)
}

func TestSubscriptionTableAliasBijection(t *testing.T) {
	tab := newSubscriptionTable()
	idA := tab.insert(subscribeOp("1", `["newHeads"]`), 0)
	idB := tab.insert(subscribeOp("2", `["logs"]`), 0)
	tab.recordAlias("0x1", idA)
	tab.recordAlias("0x2", idB)
	assert.Empty(t, tab.pendingIDs())

	// Re-aliasing A evicts its old pairing.
	tab.recordAlias("0x3", idA)
	assert.Nil(t, tab.forward("0x1", json.RawMessage(`null`)), "stale alias must not route")
	assert.Equal(t, idA, tab.byAlias["0x3"])

	// Stealing B's alias for A puts B back into pending.
	tab.recordAlias("0x2", idA)
	assert.Equal(t, []SubscriptionID{idB}, tab.pendingIDs())
	assert.Equal(t, ServerAlias("0x2"), tab.aliases[idA])
}

func TestSubscriptionTableDropAliases(t *testing.T) {
	tab := newSubscriptionTable()
	idA := tab.insert(subscribeOp("1", `["newHeads"]`), 0)
	idB := tab.insert(subscribeOp("2", `["logs"]`), 0)
	tab.recordAlias("0x1", idA)
	tab.recordAlias("0x2", idB)

	tab.dropAliases()
	assert.ElementsMatch(t, []SubscriptionID{idA, idB}, tab.pendingIDs())
	assert.Nil(t, tab.forward("0x1", json.RawMessage(`null`)))
	assert.Equal(t, 2, tab.len(), "subscriptions survive an alias drop")
}

func TestSubscriptionTableForward(t *testing.T) {
	tab := newSubscriptionTable()
	id := tab.insert(subscribeOp("1", `["newHeads"]`), 0)
	tab.recordAlias("0x1", id)

	recv, err := tab.getReceiver(id)
	require.NoError(t, err)
	require.Nil(t, tab.forward("0x1", json.RawMessage(`"v"`)))
	assert.Equal(t, `"v"`, mustRecv(t, recv))

	// With the only receiver closed, the next forward reports the
	// subscription removed.
	recv.Close()
	removed := tab.forward("0x1", json.RawMessage(`"w"`))
	require.NotNil(t, removed)
	assert.Equal(t, id, removed.id)
	assert.Equal(t, 0, tab.len())
}

func TestSubscriptionTableRemove(t *testing.T) {
	tab := newSubscriptionTable()
	id := tab.insert(subscribeOp("1", `["newHeads"]`), 0)
	tab.recordAlias("0x1", id)

	sub, alias, ok := tab.remove(id)
	require.True(t, ok)
	assert.Equal(t, ServerAlias("0x1"), alias)
	assert.Equal(t, id, sub.id)

	_, _, ok = tab.remove(id)
	assert.False(t, ok)
	_, err := tab.getReceiver(id)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestRequestTableHandleResponse(t *testing.T) {
	tab := newRequestTable()
	op := &inflightRequest{id: "7", method: "test_echo", resp: make(chan requestResult, 1)}
	tab.insert(op)

	got, _, promote := tab.handleResponse(&jsonrpcMessage{Version: vsn, ID: json.RawMessage(`7`), Result: json.RawMessage(`"ok"`)})
	require.Same(t, op, got)
	assert.False(t, promote)
	assert.Equal(t, 0, tab.len())
	res := <-op.resp
	require.NoError(t, res.err)
	assert.Equal(t, `"ok"`, string(res.msg.Result))

	// Unknown ids are not actionable.
	got, _, _ = tab.handleResponse(&jsonrpcMessage{Version: vsn, ID: json.RawMessage(`99`), Result: json.RawMessage(`1`)})
	assert.Nil(t, got)
}

func TestRequestTableSubscribePromotion(t *testing.T) {
	tab := newRequestTable()
	op := subscribeOp("3", `["newHeads"]`)
	op.resp = make(chan requestResult, 1)
	tab.insert(op)

	got, alias, promote := tab.handleResponse(&jsonrpcMessage{Version: vsn, ID: json.RawMessage(`3`), Result: json.RawMessage(`"0xcd0c3e8af590364c09d0fa6a1210faf5"`)})
	require.Same(t, op, got)
	require.True(t, promote)
	assert.Equal(t, ServerAlias("0xcd0c3e8af590364c09d0fa6a1210faf5"), alias)
	// Promotion defers resolution to the caller.
	assert.Empty(t, op.resp)
}

func TestRequestTableMalformedSubscribeAck(t *testing.T) {
	tab := newRequestTable()
	op := subscribeOp("3", `["newHeads"]`)
	op.resp = make(chan requestResult, 1)
	tab.insert(op)

	_, _, promote := tab.handleResponse(&jsonrpcMessage{Version: vsn, ID: json.RawMessage(`3`), Result: json.RawMessage(`42`)})
	assert.False(t, promote)
	res := <-op.resp
	require.Error(t, res.err)
}

func TestRequestTableFailAll(t *testing.T) {
	tab := newRequestTable()
	ops := make([]*inflightRequest, 3)
	for i := range ops {
		ops[i] = &inflightRequest{id: string(rune('1' + i)), resp: make(chan requestResult, 1)}
		tab.insert(ops[i])
	}
	tab.failAll(ErrBackendGone)
	assert.Equal(t, 0, tab.len())
	for _, op := range ops {
		res := <-op.resp
		assert.ErrorIs(t, res.err, ErrBackendGone)
	}
}
