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
	"io"
	"sync"
)

const (
	sendQueueSize = 16
	recvQueueSize = 64
)

// Connector knows how to establish a backend connection. Implementations
// are expected to spawn whatever I/O goroutines the transport needs and
// hand the service side of the pair back.
type Connector interface {
	// IsLocal reports whether the backend is in-process or on the local
	// machine. It is a best-effort heuristic used by callers to pick
	// polling and backoff strategies, not load-bearing for correctness.
	IsLocal() bool

	// Connect establishes a new connection. The context only covers
	// establishment, not the connection's lifetime.
	Connect(ctx context.Context) (*ServiceConn, error)
}

// Reconnector is implemented by connectors that carry their own retry or
// backoff policy for re-establishing a lost connection. Connectors that do
// not implement it get the default policy: a single Connect call.
type Reconnector interface {
	Connector
	TryReconnect(ctx context.Context) (*ServiceConn, error)
}

// connPair is the shared state behind one ServiceConn/BackendConn pair.
// The service sends serialized requests on out and receives parsed
// messages on in. The backend signals a terminal transport fault through
// down; the service signals shutdown through shutdown.
type connPair struct {
	out      chan json.RawMessage
	in       chan *jsonrpcMessage
	shutdown chan struct{}
	down     chan struct{}

	failOnce  sync.Once
	failErr   error // set before down is closed
	closeOnce sync.Once
}

// ServiceConn is the service side of a connection pair.
type ServiceConn struct {
	p *connPair
}

// BackendConn is the backend side of a connection pair, reciprocal to the
// ServiceConn handed to the service.
type BackendConn struct {
	p *connPair
}

// newConnPair creates the two linked endpoints of a connection. Transport
// implementations call this in Connect, keep the BackendConn for their I/O
// goroutines and return the ServiceConn.
func newConnPair() (*ServiceConn, *BackendConn) {
	p := &connPair{
		out:      make(chan json.RawMessage, sendQueueSize),
		in:       make(chan *jsonrpcMessage, recvQueueSize),
		shutdown: make(chan struct{}),
		down:     make(chan struct{}),
	}
	return &ServiceConn{p: p}, &BackendConn{p: p}
}

// close tells the backend to terminate. Safe to call more than once.
func (sc *ServiceConn) close() {
	sc.p.closeOnce.Do(func() { close(sc.p.shutdown) })
}

// err returns the transport fault recorded by the backend, if any.
func (sc *ServiceConn) err() error {
	select {
	case <-sc.p.down:
		return sc.p.failErr
	default:
		return nil
	}
}

// Requests returns the stream of serialized requests the backend must
// write to the transport.
func (bc *BackendConn) Requests() <-chan json.RawMessage {
	return bc.p.out
}

// Deliver hands an inbound message to the service. It reports false when
// the service has abandoned this connection, in which case the backend
// should stop reading.
func (bc *BackendConn) Deliver(msg *jsonrpcMessage) bool {
	select {
	case bc.p.in <- msg:
		return true
	case <-bc.p.shutdown:
		return false
	}
}

// Fail reports a terminal transport fault to the service. Only the first
// call is recorded.
func (bc *BackendConn) Fail(err error) {
	bc.p.failOnce.Do(func() {
		bc.p.failErr = err
		close(bc.p.down)
	})
}

// ShuttingDown returns a channel that is closed when the service wants the
// backend to terminate.
func (bc *BackendConn) ShuttingDown() <-chan struct{} {
	return bc.p.shutdown
}

// ServeConn pumps JSON-RPC messages between a byte-stream transport and a
// connection pair until the stream fails or the service signals shutdown.
// It is the backend task for any net.Conn-style transport; the built-in
// socket and pipe connectors use it, and custom connectors can too.
func ServeConn(bc *BackendConn, conn io.ReadWriteCloser) {
	go func() {
		dec := json.NewDecoder(conn)
		for {
			msg := new(jsonrpcMessage)
			if err := dec.Decode(msg); err != nil {
				bc.Fail(err)
				return
			}
			if !bc.Deliver(msg) {
				return
			}
		}
	}()

	enc := json.NewEncoder(conn)
	defer conn.Close()
	for {
		select {
		case raw := <-bc.Requests():
			if err := enc.Encode(raw); err != nil {
				bc.Fail(err)
				return
			}
		case <-bc.ShuttingDown():
			return
		}
	}
}
