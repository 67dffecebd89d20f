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
	"sync"
)

// DefaultSubscriptionBuffer is the per-subscription fan-out capacity used
// when no WithSubscriptionBuffer option is given.
const DefaultSubscriptionBuffer = 16

// feed is the bounded fan-out channel of one active subscription. The
// service is the single writer; every Receiver owns an independent read
// cursor into the ring. A receiver that falls more than the capacity
// behind observes a lag instead of blocking the writer or silently
// missing notifications.
//
// The feed is created together with one unclaimed initial receiver whose
// cursor is at the very first notification. Handing that receiver to the
// first consumer guards the race where notifications arrive between
// subscribe confirmation and the consumer asking for a receiver.
type feed struct {
	mu      sync.Mutex
	size    uint64
	ring    []json.RawMessage // index seq % size
	seq     uint64            // notifications published so far
	wake    chan struct{}     // closed on publish and on close, then replaced
	closed  bool
	initial *Receiver // unclaimed first receiver
	open    int       // receivers not yet closed, the unclaimed initial included
}

func newFeed(size int) *feed {
	if size <= 0 {
		size = DefaultSubscriptionBuffer
	}
	f := &feed{
		size: uint64(size),
		ring: make([]json.RawMessage, size),
		wake: make(chan struct{}),
	}
	f.initial = f.newReceiverLocked()
	return f
}

func (f *feed) newReceiverLocked() *Receiver {
	f.open++
	return &Receiver{feed: f, cursor: f.seq}
}

// receiver returns the still-unclaimed initial receiver if present,
// otherwise a fresh receiver positioned at the current sequence.
func (f *feed) receiver() *Receiver {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r := f.initial; r != nil {
		f.initial = nil
		return r
	}
	return f.newReceiverLocked()
}

// send publishes a notification. It reports false when the feed is dead:
// closed, or every receiver ever issued has been closed so the value could
// never be observed. A feed whose initial receiver is still unclaimed is
// not dead; it keeps buffering for the first consumer.
func (f *feed) send(v json.RawMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.open == 0 {
		return false
	}
	f.ring[f.seq%f.size] = v
	f.seq++
	close(f.wake)
	f.wake = make(chan struct{})
	return true
}

// close marks the feed dead. Receivers drain what the ring retains and
// then get ErrDroppedSubscription.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.wake)
	}
}

// A Receiver consumes the notification stream of one subscription. It is
// handed out by Client.Subscribe and Client.Subscription and stays valid
// across reconnects. A Receiver must not be used from multiple goroutines
// concurrently; claim one receiver per consumer instead.
type Receiver struct {
	feed   *feed
	cursor uint64
	closed bool
}

// Recv returns the next notification payload. It suspends until one is
// available or ctx is done. When the consumer has fallen more than the
// buffer capacity behind, Recv returns a *LaggedError carrying the number
// of skipped notifications and repositions at the oldest retained one.
// After the subscription is removed and the buffer drained, Recv returns
// ErrDroppedSubscription.
func (r *Receiver) Recv(ctx context.Context) (json.RawMessage, error) {
	f := r.feed
	for {
		f.mu.Lock()
		if r.closed {
			f.mu.Unlock()
			return nil, ErrDroppedSubscription
		}
		if behind := f.seq - r.cursor; behind > 0 {
			if behind > f.size {
				skipped := behind - f.size
				r.cursor = f.seq - f.size
				f.mu.Unlock()
				return nil, &LaggedError{Skipped: skipped}
			}
			v := f.ring[r.cursor%f.size]
			r.cursor++
			f.mu.Unlock()
			return v, nil
		}
		if f.closed {
			f.mu.Unlock()
			return nil, ErrDroppedSubscription
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close releases the receiver. When every receiver of a subscription has
// been closed, the subscription is removed on the next notification for
// it. Safe to call more than once.
func (r *Receiver) Close() {
	r.feed.mu.Lock()
	defer r.feed.mu.Unlock()

	if !r.closed {
		r.closed = true
		r.feed.open--
	}
}
