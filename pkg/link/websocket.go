// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketChannel bridges the serial link over a WebSocket connection.
// Binary messages carry raw serial bytes in both directions. A reader
// goroutine drains the connection so read timeouts never poison it.
type WebSocketChannel struct {
	conn    *websocket.Conn
	msgs    chan []byte
	done    chan struct{}
	pending []byte

	mu      sync.Mutex
	readErr error
	closed  bool
}

// OpenWebSocketChannel dials a WebSocket bridge with optional HTTP Basic auth
func OpenWebSocketChannel(wsURL, username, password string, skipSSLVerify bool) (*WebSocketChannel, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketChannel(conn), nil
}

// NewWebSocketChannel wraps an established connection and starts its reader
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	w := &WebSocketChannel{
		conn: conn,
		msgs: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketChannel) readLoop() {
	defer close(w.msgs)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}
		// Only binary messages carry serial bytes
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketChannel) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadExactly collects n bytes from incoming messages or until timeout
func (w *WebSocketChannel) ReadExactly(n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, 0, n)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(buf) < n {
		if len(w.pending) > 0 {
			k := copy(buf[len(buf):n], w.pending)
			buf = buf[:len(buf)+k]
			w.pending = w.pending[k:]
			continue
		}

		select {
		case data, ok := <-w.msgs:
			if !ok {
				return buf, w.closeError()
			}
			w.pending = data
		case <-timer.C:
			return buf, nil
		}
	}

	return buf, nil
}

// DiscardBuffered drops pending bytes and any queued messages
func (w *WebSocketChannel) DiscardBuffered() error {
	w.pending = nil
	for {
		select {
		case _, ok := <-w.msgs:
			if !ok {
				return w.closeError()
			}
		default:
			return nil
		}
	}
}

func (w *WebSocketChannel) closeError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, w.readErr)
	}
	return ErrChannelClosed
}

func (w *WebSocketChannel) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return w.conn.Close()
}
