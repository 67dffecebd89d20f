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

import "context"

// socketConnector dials a local endpoint: a UNIX domain socket on
// supported platforms, a named pipe on Windows.
type socketConnector struct {
	endpoint string
}

// NewSocketConnector creates a connector for the given local socket path.
func NewSocketConnector(endpoint string) Connector {
	return &socketConnector{endpoint: endpoint}
}

func (c *socketConnector) IsLocal() bool { return true }

func (c *socketConnector) Connect(ctx context.Context) (*ServiceConn, error) {
	conn, err := newSocketConnection(ctx, c.endpoint)
	if err != nil {
		return nil, err
	}
	sc, bc := newConnPair()
	go ServeConn(bc, conn)
	return sc, nil
}
