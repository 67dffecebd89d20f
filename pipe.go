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
	"net"
)

// pipeConnector connects to an in-process server over a net.Pipe. Every
// Connect spawns a fresh serve goroutine on the server half, so the
// connector works across reconnects too. Mainly useful for tests and for
// embedding a server in the same process.
type pipeConnector struct {
	serve func(net.Conn)
}

// NewPipeConnector creates a connector that hands the server half of an
// in-memory pipe to the given function on every connect.
func NewPipeConnector(serve func(net.Conn)) Connector {
	return &pipeConnector{serve: serve}
}

func (c *pipeConnector) IsLocal() bool { return true }

func (c *pipeConnector) Connect(ctx context.Context) (*ServiceConn, error) {
	p1, p2 := net.Pipe()
	go c.serve(p1)
	sc, bc := newConnPair()
	go ServeConn(bc, p2)
	return sc, nil
}
