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
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsReadBuffer       = 1024
	wsWriteBuffer      = 1024
	wsPingInterval     = 30 * time.Second
	wsPingWriteTimeout = 5 * time.Second
	wsPongTimeout      = 30 * time.Second
	wsDefaultReadLimit = 32 * 1024 * 1024

	defaultReconnectAttempts = 5
)

var wsBufferPool = new(sync.Pool)

type wsHandshakeError struct {
	err    error
	status string
}

func (e wsHandshakeError) Error() string {
	s := e.err.Error()
	if e.status != "" {
		s += " (HTTP status " + e.status + ")"
	}
	return s
}

func (e wsHandshakeError) Unwrap() error {
	return e.err
}

// websocketConnector dials a websocket endpoint and pumps messages between
// the connection and a BackendConn. It implements Reconnector: a lost
// connection is redialed under a rate limit for a bounded number of
// attempts.
type websocketConnector struct {
	dialURL   string
	header    http.Header
	dialer    *websocket.Dialer
	auth      HTTPAuth
	readLimit int64
	limiter   *rate.Limiter
	attempts  int
}

// NewWebsocketConnector creates a connector for the given ws:// or wss://
// endpoint. Credentials embedded in the URL become a Basic Authorization
// header on every handshake.
func NewWebsocketConnector(endpoint string, opts ...ClientOption) (Connector, error) {
	cfg := new(clientConfig)
	for _, opt := range opts {
		opt.applyOption(cfg)
	}
	dialURL, header, err := wsClientHeaders(endpoint)
	if err != nil {
		return nil, err
	}
	for key, values := range cfg.httpHeaders {
		header[key] = values
	}
	dialer := cfg.wsDialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			ReadBufferSize:  wsReadBuffer,
			WriteBufferSize: wsWriteBuffer,
			WriteBufferPool: wsBufferPool,
			Proxy:           http.ProxyFromEnvironment,
		}
	}
	readLimit := int64(wsDefaultReadLimit)
	if cfg.wsMessageSizeLimit != nil && *cfg.wsMessageSizeLimit >= 0 {
		readLimit = *cfg.wsMessageSizeLimit
	}
	limiter := cfg.dialLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	attempts := cfg.reconnectAttempts
	if attempts <= 0 {
		attempts = defaultReconnectAttempts
	}
	return &websocketConnector{
		dialURL:   dialURL,
		header:    header,
		dialer:    dialer,
		auth:      cfg.httpAuth,
		readLimit: readLimit,
		limiter:   limiter,
		attempts:  attempts,
	}, nil
}

// wsClientHeaders moves credentials out of the endpoint URL into an
// Authorization header, so they are not exposed through the dial URL.
func wsClientHeaders(endpoint string) (string, http.Header, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, nil, err
	}
	header := make(http.Header)
	if endpointURL.User != nil {
		b64auth := base64.StdEncoding.EncodeToString([]byte(endpointURL.User.String()))
		header.Add("authorization", "Basic "+b64auth)
		endpointURL.User = nil
	}
	return endpointURL.String(), header, nil
}

func (c *websocketConnector) IsLocal() bool {
	u, err := url.Parse(c.dialURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func (c *websocketConnector) Connect(ctx context.Context) (*ServiceConn, error) {
	header := c.header.Clone()
	if c.auth != nil {
		if err := c.auth(header); err != nil {
			return nil, err
		}
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.dialURL, header)
	if err != nil {
		hErr := wsHandshakeError{err: err}
		if resp != nil {
			hErr.status = resp.Status
		}
		return nil, hErr
	}
	conn.SetReadLimit(c.readLimit)

	sc, bc := newConnPair()
	pongReceived := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongReceived <- struct{}{}:
		default:
		}
		return nil
	})
	go wsReadLoop(bc, conn)
	go wsWriteLoop(bc, conn, pongReceived)
	return sc, nil
}

// TryReconnect redials under the rate limit until a handshake succeeds or
// the attempt budget runs out.
func (c *websocketConnector) TryReconnect(ctx context.Context) (*ServiceConn, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		conn, err := c.Connect(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d reconnect attempts: %w", c.attempts, lastErr)
}

func wsReadLoop(bc *BackendConn, conn *websocket.Conn) {
	for {
		msg := new(jsonrpcMessage)
		if err := conn.ReadJSON(msg); err != nil {
			bc.Fail(err)
			return
		}
		if !bc.Deliver(msg) {
			return
		}
	}
}

// wsWriteLoop is the single writer on the websocket connection. It also
// runs the keepalive: idle pings on a timer, with the pong deadline
// handled here because gorilla allows only one goroutine to manage read
// deadlines alongside the reader's handler callbacks.
func wsWriteLoop(bc *BackendConn, conn *websocket.Conn, pongReceived chan struct{}) {
	pingTimer := time.NewTimer(wsPingInterval)
	defer pingTimer.Stop()

	for {
		select {
		case raw := <-bc.Requests():
			conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				bc.Fail(err)
				conn.Close()
				return
			}
			// Delay the next idle ping.
			if !pingTimer.Stop() {
				select {
				case <-pingTimer.C:
				default:
				}
			}
			pingTimer.Reset(wsPingInterval)

		case <-pingTimer.C:
			conn.SetWriteDeadline(time.Now().Add(wsPingWriteTimeout))
			conn.WriteMessage(websocket.PingMessage, nil)
			conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			pingTimer.Reset(wsPingInterval)

		case <-pongReceived:
			conn.SetReadDeadline(time.Time{})

		case <-bc.ShuttingDown():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.SetWriteDeadline(time.Now().Add(wsPingWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
			return
		}
	}
}
