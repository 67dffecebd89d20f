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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSubscriptionID(t *testing.T) {
	params := json.RawMessage(`["newHeads"]`)
	id1 := ComputeSubscriptionID(params)
	id2 := ComputeSubscriptionID(json.RawMessage(`["newHeads"]`))
	assert.Equal(t, id1, id2, "identical params must yield identical ids")

	other := ComputeSubscriptionID(json.RawMessage(`["logs"]`))
	assert.NotEqual(t, id1, other)

	// The exact bytes are hashed, not the decoded value.
	spaced := ComputeSubscriptionID(json.RawMessage(`[ "newHeads" ]`))
	assert.NotEqual(t, id1, spaced)
}

func TestSubscriptionIDString(t *testing.T) {
	s := ComputeSubscriptionID(json.RawMessage(`["newHeads"]`)).String()
	assert.True(t, strings.HasPrefix(s, "0x"))
	assert.Len(t, s, 2+64)
}
