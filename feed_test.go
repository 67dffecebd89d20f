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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecv(t *testing.T, r *Receiver) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := r.Recv(ctx)
	require.NoError(t, err)
	return string(v)
}

func TestFeedInitialReceiverBuffers(t *testing.T) {
	f := newFeed(4)
	require.True(t, f.send(json.RawMessage(`1`)))
	require.True(t, f.send(json.RawMessage(`2`)))

	r := f.receiver()
	assert.Equal(t, `1`, mustRecv(t, r))
	assert.Equal(t, `2`, mustRecv(t, r))
}

func TestFeedLateReceiverStartsAtCurrent(t *testing.T) {
	f := newFeed(4)
	f.receiver() // claim the initial one
	require.True(t, f.send(json.RawMessage(`1`)))

	late := f.receiver()
	require.True(t, f.send(json.RawMessage(`2`)))
	assert.Equal(t, `2`, mustRecv(t, late))
}

func TestFeedLag(t *testing.T) {
	f := newFeed(2)
	r := f.receiver()
	for i := 1; i <= 5; i++ {
		require.True(t, f.send(json.RawMessage(fmt.Sprintf(`%d`, i))))
	}

	ctx := context.Background()
	_, err := r.Recv(ctx)
	var lagged *LaggedError
	require.ErrorAs(t, err, &lagged)
	assert.Equal(t, uint64(3), lagged.Skipped)
	assert.Equal(t, `4`, mustRecv(t, r))
	assert.Equal(t, `5`, mustRecv(t, r))
}

func TestFeedRecvBlocksUntilSend(t *testing.T) {
	f := newFeed(4)
	r := f.receiver()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.send(json.RawMessage(`"late"`))
	}()
	assert.Equal(t, `"late"`, mustRecv(t, r))
}

func TestFeedRecvContextCancel(t *testing.T) {
	f := newFeed(4)
	r := f.receiver()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// A closed feed still drains what the ring retains before reporting the
// subscription dropped.
func TestFeedCloseDrains(t *testing.T) {
	f := newFeed(4)
	r := f.receiver()
	require.True(t, f.send(json.RawMessage(`1`)))
	f.close()

	assert.Equal(t, `1`, mustRecv(t, r))
	_, err := r.Recv(context.Background())
	require.ErrorIs(t, err, ErrDroppedSubscription)
}

// With every receiver closed the feed is dead and send reports it, but an
// unclaimed initial receiver keeps it alive.
func TestFeedDeadDetection(t *testing.T) {
	f := newFeed(4)
	require.True(t, f.send(json.RawMessage(`1`)), "unclaimed initial receiver keeps the feed alive")

	r := f.receiver()
	r.Close()
	r.Close() // idempotent
	assert.False(t, f.send(json.RawMessage(`2`)))
}

func TestFeedClosedReceiver(t *testing.T) {
	f := newFeed(4)
	r := f.receiver()
	f.send(json.RawMessage(`1`))
	r.Close()

	_, err := r.Recv(context.Background())
	require.ErrorIs(t, err, ErrDroppedSubscription)
}
