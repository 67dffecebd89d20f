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
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// HTTPAuth is a function that authenticates an outgoing handshake. It
// may modify the headers in any way, typically by adding an
// Authorization header. The handshake is aborted when it returns an
// error.
type HTTPAuth func(h http.Header) error

// NewJWTAuth creates an HTTP authentication handler sending a JWT token
// derived from the given shared secret. The token is regenerated per
// handshake, so reconnects never present a stale issued-at claim.
func NewJWTAuth(jwtsecret [32]byte) HTTPAuth {
	return func(h http.Header) error {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iat": &jwt.NumericDate{Time: time.Now()},
		})
		s, err := token.SignedString(jwtsecret[:])
		if err != nil {
			return fmt.Errorf("failed to create JWT token: %w", err)
		}
		h.Set("Authorization", "Bearer "+s)
		return nil
	}
}
