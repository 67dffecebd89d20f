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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package pubsub

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveEcho answers every request on the conn with its own params.
func serveEcho(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		msg := new(jsonrpcMessage)
		if err := dec.Decode(msg); err != nil {
			return
		}
		result := msg.Params
		if result == nil {
			result = json.RawMessage(`null`)
		}
		if err := enc.Encode(&jsonrpcMessage{Version: vsn, ID: msg.ID, Result: result}); err != nil {
			return
		}
	}
}

func TestSocketClient(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "test.sock")
	l, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveEcho(conn)
		}
	}()

	ctx := testContext(t)
	client, err := Dial(ctx, endpoint)
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Send(ctx, "test_echo", json.RawMessage(`["over a socket"]`))
	require.NoError(t, err)
	assert.JSONEq(t, `["over a socket"]`, string(result))
}

func TestPipeClient(t *testing.T) {
	ctx := testContext(t)
	client, err := NewClient(ctx, NewPipeConnector(serveEcho))
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Send(ctx, "test_echo", json.RawMessage(`[42]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[42]`, string(result))
}
