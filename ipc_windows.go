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

//go:build windows

package pubsub

import (
	"context"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// This is used if the dialing context has no deadline. Named pipes are
// local, there is no need to wait long.
const defaultPipeDialTimeout = 2 * time.Second

// newSocketConnection connects to a named pipe with the given endpoint as name.
func newSocketConnection(ctx context.Context, endpoint string) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPipeDialTimeout)
		defer cancel()
	}
	return winio.DialPipeContext(ctx, endpoint)
}
