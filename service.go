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
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Instructions submitted by Client handles into the service queue.
type serviceOp interface {
	isServiceOp()
}

type sendOp struct {
	op *inflightRequest
}

type receiverOp struct {
	id   SubscriptionID
	resp chan receiverResult
}

type receiverResult struct {
	recv *Receiver
	err  error
}

type unsubscribeOp struct {
	id   SubscriptionID
	resp chan error
}

func (sendOp) isServiceOp()        {}
func (receiverOp) isServiceOp()    {}
func (unsubscribeOp) isServiceOp() {}

// service is the single-writer actor owning the request and subscription
// tables and the service side of the connection pair. Exactly one
// goroutine runs its loop, so neither table needs a lock. Client handles
// feed it through the instr queue; submitters suspend until the loop
// accepts, which is this implementation's admission policy for the
// instruction queue.
type service struct {
	connector Connector
	conn      *ServiceConn
	reqs      *requestTable
	subs      *subscriptionTable

	instr   chan serviceOp
	closing chan struct{} // closed by the client's Close
	didQuit chan struct{} // closed when the loop has torn down
	quitErr error         // termination reason, set before didQuit closes

	rootCtx context.Context // canceled on shutdown, bounds reconnect dials
	cancel  context.CancelFunc

	subBuf    int
	baseLog   *slog.Logger
	log       *slog.Logger
	closeOnce sync.Once
}

func newService(connector Connector, conn *ServiceConn, cfg *clientConfig) *service {
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	s := &service{
		connector: connector,
		conn:      conn,
		reqs:      newRequestTable(),
		subs:      newSubscriptionTable(),
		instr:     make(chan serviceOp),
		closing:   make(chan struct{}),
		didQuit:   make(chan struct{}),
		rootCtx:   rootCtx,
		cancel:    cancel,
		subBuf:    cfg.subscriptionBuffer,
		baseLog:   logger,
	}
	s.tagConn()
	return s
}

// tagConn gives the logger a fresh connection id so interleaved logs from
// successive connections stay attributable.
func (s *service) tagConn() {
	s.log = s.baseLog.With("conn", uuid.NewString()[:8])
}

// run is the service loop. Each iteration waits on the three event
// sources: an instruction from a client handle, an inbound item from the
// backend, and the backend's failure signal.
func (s *service) run() {
	defer close(s.didQuit)
	defer s.teardown()

	s.log.Debug("Pub/sub service started")
	for {
		select {
		case op := <-s.instr:
			if !s.handleOp(op) {
				return
			}
		case msg := <-s.conn.p.in:
			s.handleMessage(msg)
		case <-s.conn.p.down:
			s.log.Warn("Backend connection failed", "err", s.conn.p.failErr)
			if !s.reconnect() {
				return
			}
		case <-s.closing:
			return
		}
	}
}

// teardown shuts the backend down and unblocks everything still waiting:
// in-flight requests resolve with ErrBackendGone, subscription receivers
// drain and end with ErrDroppedSubscription.
func (s *service) teardown() {
	if s.quitErr == nil {
		s.quitErr = ErrClientQuit
	}
	s.cancel()
	s.conn.close()
	s.reqs.failAll(ErrBackendGone)
	s.subs.clear()
	s.log.Debug("Pub/sub service stopped")
}

// submit places an instruction in the service queue, suspending the
// caller until the loop accepts it.
func (s *service) submit(ctx context.Context, op serviceOp) error {
	select {
	case s.instr <- op:
		return nil
	case <-s.didQuit:
		return s.quitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) close() {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.didQuit
}

func (s *service) handleOp(op serviceOp) bool {
	switch op := op.(type) {
	case sendOp:
		return s.send(op.op)
	case receiverOp:
		recv, err := s.subs.getReceiver(op.id)
		op.resp <- receiverResult{recv: recv, err: err}
	case unsubscribeOp:
		// Unsubscription is local-table removal; the server is told on a
		// best-effort basis and nobody waits for its answer.
		if sub, alias, ok := s.subs.remove(op.id); ok && alias != "" {
			s.notifyUnsubscribe(sub, alias)
		}
		op.resp <- nil
	}
	return true
}

// send registers the request and writes it to the backend. A failed write
// means the backend is gone: everything pending resolves with
// ErrBackendGone and the service reconnects.
func (s *service) send(op *inflightRequest) bool {
	s.reqs.insert(op)
	err := s.write(op.raw)
	if err == nil || errors.Is(err, ErrClientQuit) {
		return true
	}
	s.log.Warn("Backend write failed", "err", err)
	s.reqs.failAll(ErrBackendGone)
	return s.reconnect()
}

func (s *service) write(raw json.RawMessage) error {
	select {
	case s.conn.p.out <- raw:
		return nil
	case <-s.conn.p.down:
		return s.conn.p.failErr
	case <-s.closing:
		return ErrClientQuit
	}
}

func (s *service) handleMessage(msg *jsonrpcMessage) {
	switch {
	case msg.isResponse():
		op, alias, promote := s.reqs.handleResponse(msg)
		switch {
		case op == nil:
			s.log.Debug("Unsolicited RPC response", "reqid", idForLog{msg.ID})
		case promote:
			id := s.subs.insert(op, s.subBuf)
			s.subs.recordAlias(alias, id)
			s.log.Debug("Subscription established", "subid", id, "alias", alias)
			op.deliver(msg)
		}

	case msg.isSubscriptionNotification():
		var p subscriptionPayload
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			s.log.Debug("Dropping invalid subscription notification", "err", err)
			return
		}
		if sub := s.subs.forward(p.ID, p.Result); sub != nil {
			s.log.Debug("Removed subscription without receivers", "subid", sub.id)
			s.notifyUnsubscribe(sub, p.ID)
		}

	default:
		s.log.Debug("Dropping unexpected message", "msg", msg.String())
	}
}

// notifyUnsubscribe issues a fire-and-forget *_unsubscribe call so the
// server stops pushing to a subscription that was removed locally. The
// response, if any, is discarded by the ordinary request path.
func (s *service) notifyUnsubscribe(sub *activeSubscription, alias ServerAlias) {
	method := strings.TrimSuffix(sub.method, subscribeMethodSuffix) + unsubscribeMethodSuffix
	id, _ := json.Marshal(uuid.NewString())
	params, _ := json.Marshal([]string{string(alias)})
	msg := &jsonrpcMessage{Version: vsn, ID: id, Method: method, Params: params}
	raw, _ := json.Marshal(msg)

	op := &inflightRequest{id: string(id), raw: raw, method: method, params: params}
	s.reqs.insert(op)
	if err := s.write(raw); err != nil {
		// The loop picks the dead connection up on its next turn.
		s.log.Debug("Unsubscribe notice not sent", "err", err)
	}
}

// reconnect re-establishes the backend connection and resubscribes every
// active subscription. Requests pending at the moment of disconnect fail
// with ErrBackendGone and are never retried; only subscriptions are
// silently re-established. It reports false when no new connection could
// be obtained, which terminates the service.
func (s *service) reconnect() bool {
	s.conn.close()
	s.reqs.failAll(ErrBackendGone)

	var (
		conn *ServiceConn
		err  error
	)
	if rc, ok := s.connector.(Reconnector); ok {
		conn, err = rc.TryReconnect(s.rootCtx)
	} else {
		conn, err = s.connector.Connect(s.rootCtx)
	}
	if err != nil {
		s.log.Error("Reconnect failed, terminating", "err", err)
		s.quitErr = ErrBackendGone
		return false
	}

	s.conn = conn
	s.tagConn()
	s.log.Info("Backend reconnected", "subscriptions", s.subs.len())
	s.subs.dropAliases()
	s.resubscribe()
	return true
}

// resubscribe resends the cached subscribe request of every un-aliased
// subscription. The fresh acknowledgements flow back through the ordinary
// response path and re-alias the subscriptions one by one; old aliases are
// gone for good.
func (s *service) resubscribe() {
	for _, id := range s.subs.pendingIDs() {
		sub := s.subs.get(id)
		if sub == nil {
			continue
		}
		op := &inflightRequest{id: sub.reqID, raw: sub.raw, method: sub.method, params: sub.params}
		s.reqs.insert(op)
		if err := s.write(sub.raw); err != nil {
			// The loop picks the dead connection up on its next turn; the
			// subscription stays pending until a later reconnect succeeds.
			s.log.Warn("Resubscribe write failed", "subid", id, "err", err)
			return
		}
	}
}
