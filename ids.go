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
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// ServerAlias is the subscription identifier assigned by the server in a
// subscribe response, typically a hex quantity such as "0x1". An alias is
// only valid for the lifetime of one physical connection and must never be
// used to identify a subscription across reconnects; use SubscriptionID
// for that.
type ServerAlias string

// SubscriptionID is the reconnect-stable identity of a logical
// subscription: the Keccak-256 hash of the exact serialized bytes of the
// subscribe request's params array. It does not depend on the server alias
// or on connection identity, so the same parameters always yield the same
// id.
//
// No canonicalization is applied before hashing. Two params encodings that
// differ only in object key order or whitespace produce different ids;
// callers wanting encoding-insensitive identity must canonicalize their
// params before submitting them.
type SubscriptionID [32]byte

// ComputeSubscriptionID derives the subscription id for the given params
// bytes. It is a pure function: Client.Subscribe uses it internally, and
// callers can recompute the id from the parameters alone.
func ComputeSubscriptionID(params json.RawMessage) SubscriptionID {
	var id SubscriptionID
	h := sha3.NewLegacyKeccak256()
	h.Write(params)
	h.Sum(id[:0])
	return id
}

func (id SubscriptionID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}
