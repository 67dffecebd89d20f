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

	mapset "github.com/deckarep/golang-set/v2"
)

// activeSubscription is the record of one confirmed subscription. The
// original serialized subscribe request is cached so the service can
// resend it verbatim after a reconnect.
type activeSubscription struct {
	id     SubscriptionID
	reqID  string          // wire id of the cached request
	raw    json.RawMessage // cached serialized subscribe request
	method string
	params json.RawMessage
	feed   *feed
}

// subscriptionTable holds the active subscriptions keyed by their local id
// and the bijective alias map routing server aliases to them. It is owned
// by the service goroutine and needs no lock.
//
// The alias map is valid for one physical connection only: dropAliases
// clears it on reconnect while leaving the subscriptions themselves
// untouched. Subscriptions without an alias sit in the pending set until a
// fresh subscribe acknowledgement re-aliases them.
type subscriptionTable struct {
	subs    map[SubscriptionID]*activeSubscription
	byAlias map[ServerAlias]SubscriptionID
	aliases map[SubscriptionID]ServerAlias
	pending mapset.Set[SubscriptionID] // registered but currently un-aliased
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		subs:    make(map[SubscriptionID]*activeSubscription),
		byAlias: make(map[ServerAlias]SubscriptionID),
		aliases: make(map[SubscriptionID]ServerAlias),
		pending: mapset.NewThreadUnsafeSet[SubscriptionID](),
	}
}

func (t *subscriptionTable) len() int {
	return len(t.subs)
}

func (t *subscriptionTable) get(id SubscriptionID) *activeSubscription {
	return t.subs[id]
}

// insert promotes a resolved subscribe request into an active
// subscription and returns its local id. The id is derived from the
// request params alone, so a second subscribe with identical params maps
// onto the existing record instead of creating a duplicate.
func (t *subscriptionTable) insert(op *inflightRequest, bufSize int) SubscriptionID {
	id := ComputeSubscriptionID(op.params)
	if _, ok := t.subs[id]; !ok {
		t.subs[id] = &activeSubscription{
			id:     id,
			reqID:  op.id,
			raw:    op.raw,
			method: op.method,
			params: op.params,
			feed:   newFeed(bufSize),
		}
		t.pending.Add(id)
	}
	return id
}

// recordAlias installs the alias↔local-id pairing, evicting any stale
// pairing of either key first so that no alias or local id ever appears on
// more than one side.
func (t *subscriptionTable) recordAlias(alias ServerAlias, id SubscriptionID) {
	if old, ok := t.aliases[id]; ok {
		delete(t.byAlias, old)
	}
	if oldID, ok := t.byAlias[alias]; ok && oldID != id {
		delete(t.aliases, oldID)
		t.pending.Add(oldID)
	}
	t.aliases[id] = alias
	t.byAlias[alias] = id
	t.pending.Remove(id)
}

// getReceiver hands out a receiver for the subscription: the unclaimed
// initial one if nobody has asked yet, a fresh one otherwise.
func (t *subscriptionTable) getReceiver(id SubscriptionID) (*Receiver, error) {
	sub := t.subs[id]
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub.feed.receiver(), nil
}

// forward routes a notification to the subscription aliased by the
// server. Unknown aliases are dropped, not errors: they belong to
// subscriptions removed locally or to a previous connection. A dead
// fan-out feed removes the subscription; the removed record is returned so
// the service can tell the server.
func (t *subscriptionTable) forward(alias ServerAlias, payload json.RawMessage) (removed *activeSubscription) {
	id, ok := t.byAlias[alias]
	if !ok {
		return nil
	}
	sub := t.subs[id]
	if !sub.feed.send(payload) {
		t.removeRecord(id)
		return sub
	}
	return nil
}

// dropAliases clears the alias map after a reconnect. The subscriptions
// survive; every one of them becomes pending until re-confirmed.
func (t *subscriptionTable) dropAliases() {
	clear(t.byAlias)
	clear(t.aliases)
	for id := range t.subs {
		t.pending.Add(id)
	}
}

// pendingIDs returns the subscriptions currently without an alias, i.e.
// the ones a reconnect sweep must resubscribe.
func (t *subscriptionTable) pendingIDs() []SubscriptionID {
	return t.pending.ToSlice()
}

// remove tears the subscription and its alias entry down together. The
// alias it held, if any, is returned so the service can notify the server.
func (t *subscriptionTable) remove(id SubscriptionID) (sub *activeSubscription, alias ServerAlias, ok bool) {
	sub = t.subs[id]
	if sub == nil {
		return nil, "", false
	}
	alias = t.aliases[id]
	t.removeRecord(id)
	return sub, alias, true
}

func (t *subscriptionTable) removeRecord(id SubscriptionID) {
	if alias, ok := t.aliases[id]; ok {
		delete(t.byAlias, alias)
		delete(t.aliases, id)
	}
	t.pending.Remove(id)
	if sub, ok := t.subs[id]; ok {
		sub.feed.close()
		delete(t.subs, id)
	}
}

// clear tears down every subscription. Used on service shutdown so
// lingering receivers unblock with ErrDroppedSubscription.
func (t *subscriptionTable) clear() {
	for id := range t.subs {
		t.removeRecord(id)
	}
}
