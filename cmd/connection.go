// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/knxcoupler/internal/config"
)

// passwordEnv holds the WebSocket password
const passwordEnv = "KNXCOUPLER_PASSWORD"

// WebSocket bridge timing
const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
	wsPingInterval     = 20 * time.Second
	wsPongWait         = 10 * time.Second
)

// Connection is the raw chip byte stream, local or remote
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// serialConnection is a TP-UART on a local serial port
type serialConnection struct {
	serial.Port
}

// openSerial opens a TP-UART: 8 data bits, even parity, 1 stop bit.
// Bytes buffered by the driver before the open are discarded.
func openSerial(cfg config.SerialConfig) (Connection, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush serial port %s: %w", cfg.Port, err)
	}
	return serialConnection{Port: port}, nil
}

// wsConnection carries the chip byte stream in binary WebSocket messages.
// A ping keeps idle bridges from timing out; a missing pong fails the next read.
type wsConnection struct {
	conn *websocket.Conn

	current io.Reader // unread part of the current message

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newWSConnection(conn *websocket.Conn) *wsConnection {
	w := &wsConnection{conn: conn, done: make(chan struct{})}
	//nolint:errcheck // a failed deadline surfaces on the next read
	conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))
	})
	go w.keepAlive()
	return w
}

func (w *wsConnection) Read(p []byte) (int, error) {
	select {
	case <-w.done:
		return 0, ErrConnectionClosed
	default:
	}

	for {
		if w.current != nil {
			n, err := w.current.Read(p)
			if errors.Is(err, io.EOF) {
				w.current = nil
				if n == 0 {
					continue
				}
				err = nil
			}
			return n, err
		}

		messageType, r, err := w.conn.NextReader()
		if err != nil {
			w.shutdown()
			return 0, err
		}
		//nolint:errcheck // a failed deadline surfaces on the next read
		w.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait))

		// Text messages are bridge status lines, not chip bytes
		if messageType == websocket.BinaryMessage {
			w.current = r
		}
	}
}

func (w *wsConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	//nolint:errcheck // a failed deadline surfaces on the write
	w.conn.SetWriteDeadline(time.Now().Add(wsPongWait))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConnection) Close() error {
	w.writeMu.Lock()
	//nolint:errcheck // best-effort close frame
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	w.shutdown()
	return w.conn.Close()
}

func (w *wsConnection) shutdown() {
	w.once.Do(func() { close(w.done) })
}

func (w *wsConnection) keepAlive() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsPongWait))
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// dialWebSocket connects to a remote serial bridge with optional HTTP Basic auth
func dialWebSocket(cfg config.RemoteConfig, password string) (Connection, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	switch u.Scheme {
	case "ws":
	case "wss":
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.NoSSLVerify}
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	headers := http.Header{}
	if cfg.Username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return newWSConnection(conn), nil
}

// GetPassword reads the bridge password from KNXCOUPLER_PASSWORD or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(passwordBytes), nil
	}

	// Not a terminal, read a plain line
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && password != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(password), nil
}

// OpenConnection opens the WebSocket bridge when a URL is configured, otherwise the serial port
func OpenConnection(cfg *config.Config) (Connection, string, error) {
	switch {
	case cfg.Remote.URL != "":
		var password string
		if cfg.Remote.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		conn, err := dialWebSocket(cfg.Remote, password)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.Remote.URL), nil

	case cfg.Serial.Port != "":
		conn, err := openSerial(cfg.Serial)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud 8E1", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", errors.New("either --port or --url must be specified (or serial.port / remote.url in --config)")
}
