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

/*
Package pubsub implements the client side of a long-lived, bidirectional
JSON-RPC connection with server-push subscriptions.

Many callers share one physical connection through a Client handle. The
client correlates every outbound request with its response by id, tracks
server-issued subscription identifiers, fans notifications out to any
number of local consumers, and transparently re-establishes both the
connection and its subscriptions after a disconnect.

# Requests

Client.Send submits one request and suspends until the matching response
arrives. Responses are matched purely by request id; no ordering exists
between concurrently outstanding calls. Client.SendBatch fans a batch
out into independent sends and joins them.

# Subscriptions

A request whose method ends in "_subscribe" is recognized as a
subscription request. On a successful acknowledgement the client records
an active subscription identified by a SubscriptionID, the Keccak-256
hash of the exact serialized request parameters. The server-assigned
identifier (the alias) is only valid for the lifetime of one physical
connection; after a reconnect the client resends the cached subscribe
request and remaps the fresh alias to the same SubscriptionID, so
consumers keep their Receiver across reconnects:

	id, recv, err := client.Subscribe(ctx, "eth_subscribe", params)
	for {
		payload, err := recv.Recv(ctx)
		...
	}

Receivers are bounded. A consumer that falls more than the buffer
capacity behind gets a *LaggedError from Recv instead of silently
missing notifications.

# Transports

The engine is transport-agnostic: anything implementing Connector can
carry it. WebSocket (NewWebsocketConnector), local socket
(NewSocketConnector) and in-process pipe (NewPipeConnector) backends are
built in, and Dial picks one from a URL. Plain requests in flight when a
connection dies fail with ErrBackendGone and are never retried; only
subscriptions are silently re-established.
*/
package pubsub
