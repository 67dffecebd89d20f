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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Request is one call in a SendBatch.
type Request struct {
	Method string
	Params json.RawMessage
}

// Response is the outcome of one request in a SendBatch. Err carries a
// server-reported error for this request; transport failures fail the
// whole batch instead.
type Response struct {
	Result json.RawMessage
	Err    error
}

// Client is the handle to a running pub/sub service. It is safe for
// concurrent use from any number of goroutines; share one *Client rather
// than dialing again. All methods suspend until the service accepts the
// instruction, so a Client submitting during a reconnect waits instead of
// failing.
type Client struct {
	svc       *service
	idCounter atomic.Uint64
}

// NewClient connects through the given connector and starts the service.
// If the first connect fails, NewClient fails immediately with no retry;
// retrying is a concern only of the running service's reconnection path.
func NewClient(ctx context.Context, connector Connector, opts ...ClientOption) (*Client, error) {
	cfg := new(clientConfig)
	for _, opt := range opts {
		opt.applyOption(cfg)
	}
	conn, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	svc := newService(connector, conn, cfg)
	go svc.run()
	return &Client{svc: svc}, nil
}

// Dial creates a client for the given URL.
//
// Supported schemes are "ws" and "wss". If rawurl is a file name with no
// URL scheme, a local socket connection is established using UNIX domain
// sockets on supported platforms and named pipes on Windows. HTTP is
// rejected: a request/response transport cannot carry subscriptions.
func Dial(ctx context.Context, rawurl string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	var connector Connector
	switch u.Scheme {
	case "ws", "wss":
		connector, err = NewWebsocketConnector(rawurl, opts...)
		if err != nil {
			return nil, err
		}
	case "":
		connector = NewSocketConnector(rawurl)
	default:
		return nil, fmt.Errorf("no known pub/sub transport for URL scheme %q", u.Scheme)
	}
	return NewClient(ctx, connector, opts...)
}

func (c *Client) nextID() json.RawMessage {
	id := c.idCounter.Add(1)
	return strconv.AppendUint(nil, id, 10)
}

// Send submits one request and suspends until the matching response
// arrives. The result bytes are returned verbatim; a server-reported
// error comes back as an error satisfying the Error interface. If the
// backend connection is lost while the request is in flight, Send returns
// ErrBackendGone; the request is not retried.
//
// Canceling ctx abandons the wait but not the request itself: the service
// still resolves it when the response arrives, which keeps the in-flight
// bookkeeping consistent and, for subscribe requests, still establishes
// the subscription.
func (c *Client) Send(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	msg := &jsonrpcMessage{Version: vsn, ID: c.nextID(), Method: method, Params: params}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	op := &inflightRequest{
		id:     string(msg.ID),
		raw:    raw,
		method: method,
		params: params,
		resp:   make(chan requestResult, 1),
	}
	if err := c.svc.submit(ctx, sendOp{op: op}); err != nil {
		return nil, err
	}
	select {
	case res := <-op.resp:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, res.msg.Error
		}
		return res.msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendBatch fans the requests out into independent sends over the shared
// connection and joins them, preserving one response per request by
// position. Server-reported errors land in the matching Response; the
// first transport failure fails the batch.
func (c *Client) SendBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	resps := make([]Response, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := c.Send(ctx, req.Method, req.Params)
			var jerr *jsonError
			switch {
			case errors.As(err, &jerr):
				resps[i] = Response{Err: jerr}
			case err != nil:
				return err
			default:
				resps[i] = Response{Result: result}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resps, nil
}

// Subscribe submits a subscribe request and claims a receiver for the
// resulting subscription in one step. The method is expected to end in
// "_subscribe", e.g. "eth_subscribe". The returned id identifies the
// subscription across reconnects and equals ComputeSubscriptionID(params).
func (c *Client) Subscribe(ctx context.Context, method string, params json.RawMessage) (SubscriptionID, *Receiver, error) {
	if _, err := c.Send(ctx, method, params); err != nil {
		return SubscriptionID{}, nil, err
	}
	id := ComputeSubscriptionID(params)
	recv, err := c.Subscription(ctx, id)
	if err != nil {
		return SubscriptionID{}, nil, err
	}
	return id, recv, nil
}

// Subscription returns a receiver for an established subscription. The
// first call after the subscription was confirmed gets the initial
// receiver, which has seen every notification since confirmation; later
// calls get fresh receivers positioned at the current stream position.
func (c *Client) Subscription(ctx context.Context, id SubscriptionID) (*Receiver, error) {
	op := receiverOp{id: id, resp: make(chan receiverResult, 1)}
	if err := c.svc.submit(ctx, op); err != nil {
		return nil, err
	}
	select {
	case res := <-op.resp:
		return res.recv, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes the subscription and its alias entry. It resolves
// once the removal has been accepted; whether and when the server is told
// is best-effort and never waited on. Unknown ids are a no-op.
func (c *Client) Unsubscribe(ctx context.Context, id SubscriptionID) error {
	op := unsubscribeOp{id: id, resp: make(chan error, 1)}
	if err := c.svc.submit(ctx, op); err != nil {
		return err
	}
	select {
	case err := <-op.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the service and shuts the backend down. In-flight
// requests resolve with ErrBackendGone and receivers end with
// ErrDroppedSubscription rather than being left pending. Close waits for
// the service to stop; calling it more than once is safe.
func (c *Client) Close() {
	c.svc.close()
}
