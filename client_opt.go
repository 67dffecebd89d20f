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
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ClientOption is a configuration option for the client.
type ClientOption interface {
	applyOption(*clientConfig)
}

type clientConfig struct {
	// service
	logger             *slog.Logger
	subscriptionBuffer int

	// websocket transport
	httpHeaders        http.Header
	httpAuth           HTTPAuth
	wsDialer           *websocket.Dialer
	wsMessageSizeLimit *int64

	// reconnection
	dialLimiter       *rate.Limiter
	reconnectAttempts int
}

type optionFunc func(*clientConfig)

func (fn optionFunc) applyOption(opt *clientConfig) {
	fn(opt)
}

// WithLogger configures the logger used by the service goroutine. The
// default is slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.logger = logger
	})
}

// WithSubscriptionBuffer configures how many notifications each
// subscription retains for its receivers. A receiver that falls further
// behind than this observes a LaggedError. The default is
// DefaultSubscriptionBuffer.
func WithSubscriptionBuffer(size int) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		if size > 0 {
			cfg.subscriptionBuffer = size
		}
	})
}

// WithWebsocketDialer configures the websocket.Dialer used by the client.
func WithWebsocketDialer(dialer websocket.Dialer) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.wsDialer = &dialer
	})
}

// WithWebsocketMessageSizeLimit configures the websocket message size
// limit used by the client. Passing a limit of 0 means no limit.
func WithWebsocketMessageSizeLimit(messageSizeLimit int64) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.wsMessageSizeLimit = &messageSizeLimit
	})
}

// WithHeader configures HTTP headers set for every handshake made by the
// client. Headers set using this option will be used for all reconnects
// as well.
func WithHeader(key, value string) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		if cfg.httpHeaders == nil {
			cfg.httpHeaders = make(http.Header)
		}
		cfg.httpHeaders.Set(key, value)
	})
}

// WithHeaders configures HTTP headers set for every handshake made by the
// client.
func WithHeaders(headers http.Header) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		if cfg.httpHeaders == nil {
			cfg.httpHeaders = make(http.Header)
		}
		for k, vs := range headers {
			cfg.httpHeaders[k] = vs
		}
	})
}

// WithHTTPAuth configures HTTP authentication for the handshake. The
// given provider will be invoked for every handshake, including
// reconnects, so short-lived credentials such as JWT stay fresh.
func WithHTTPAuth(a HTTPAuth) ClientOption {
	if a == nil {
		panic("nil auth")
	}
	return optionFunc(func(cfg *clientConfig) {
		cfg.httpAuth = a
	})
}

// WithDialLimiter configures the rate limit applied to reconnection
// attempts. The default limiter allows one attempt every two seconds.
func WithDialLimiter(limiter *rate.Limiter) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.dialLimiter = limiter
	})
}

// WithReconnectAttempts configures how many handshakes a websocket
// reconnection tries before the service gives up. The default is 5.
func WithReconnectAttempts(n int) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		if n > 0 {
			cfg.reconnectAttempts = n
		}
	})
}
