// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
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

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Transport is the byte stream to a bus front end
type Transport interface {
	io.ReadWriteCloser
}

// ErrConnectionClosed marks a read failure the transport cannot recover from
var ErrConnectionClosed = errors.New("connection closed")

type serialTransport struct {
	serial.Port
}

func (s serialTransport) Read(p []byte) (int, error) {
	n, err := s.Port.Read(p)
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return n, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return n, err
}

// wsTransport streams the binary messages of a WebSocket. Each message
// holds whole frames from the front end; other message types are skipped.
type wsTransport struct {
	conn *websocket.Conn
	r    io.Reader // current message
	err  error
}

func (w *wsTransport) Read(p []byte) (int, error) {
	for w.err == nil {
		if w.r == nil {
			mt, r, err := w.conn.NextReader()
			if err != nil {
				w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
				break
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, w.err
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	return w.conn.Close()
}

// linkTarget names where the bus front end is reached
type linkTarget struct {
	port string
	baud int

	url        string
	username   string
	skipVerify bool
}

// targetFromFlags builds the target from the connection flags
func targetFromFlags() linkTarget {
	return linkTarget{
		port:       portName,
		baud:       baudRate,
		url:        wsURL,
		username:   wsUsername,
		skipVerify: wsNoSSLVerify,
	}
}

func (t linkTarget) String() string {
	if t.url != "" {
		return "WebSocket: " + t.url
	}
	return fmt.Sprintf("Serial: %s @ %d baud", t.port, t.baud)
}

// dial opens the transport, prompting for a password when a WebSocket
// username is set
func (t linkTarget) dial() (Transport, error) {
	switch {
	case t.url != "":
		password := ""
		if t.username != "" {
			var err error
			if password, err = readPassword(); err != nil {
				return nil, err
			}
		}
		return dialWebSocket(t.url, t.username, password, t.skipVerify)
	case t.port != "":
		return openSerial(t.port, t.baud)
	}
	return nil, fmt.Errorf("either --port or --url must be specified")
}

func openSerial(name string, baud int) (Transport, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return serialTransport{port}, nil
}

// dialWebSocket connects to a ws:// or wss:// front end with optional
// HTTP Basic auth
func dialWebSocket(rawURL, username, password string, skipVerify bool) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify}
	}
	header := http.Header{}
	if username != "" && password != "" {
		req := http.Request{Header: header}
		req.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// readPassword takes the WebSocket password from TURNOUT_PASSWORD or the terminal
func readPassword() (string, error) {
	if pw := os.Getenv("TURNOUT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(pw), nil
	}
	// Not a terminal
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// FrameError is a malformed frame. The link stays usable after it.
type FrameError struct {
	Err error
	Raw []byte // bytes of the rejected frame from its START byte
}

func (e *FrameError) Error() string {
	return e.Err.Error()
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// FrameConn reads and writes whole bus frames over a Transport. Reads must
// come from a single goroutine; writes may come from any.
type FrameConn struct {
	t    Transport
	info string

	dec     *dccbus.Decoder
	buf     []byte
	pending []byte
	raw     []byte // bytes of the frame being decoded
	last    []byte // bytes of the last decoded frame

	writeMu sync.Mutex
}

// NewFrameConn wraps t; info describes the link for display
func NewFrameConn(t Transport, info string) *FrameConn {
	return &FrameConn{
		t:    t,
		info: info,
		dec:  dccbus.NewDecoder(),
		buf:  make([]byte, 256),
	}
}

// openFrameConn dials the target given by the connection flags
func openFrameConn() (*FrameConn, error) {
	target := targetFromFlags()
	t, err := target.dial()
	if err != nil {
		return nil, err
	}
	return NewFrameConn(t, target.String()), nil
}

// ReadFrame returns the next decoded frame. A malformed frame is returned
// as a *FrameError; any other error comes from the transport.
func (c *FrameConn) ReadFrame() (*dccbus.Packet, error) {
	for {
		if len(c.pending) == 0 {
			n, err := c.t.Read(c.buf)
			if err != nil {
				return nil, err
			}
			c.pending = c.buf[:n]
			continue
		}

		b := c.pending[0]
		c.pending = c.pending[1:]
		if b == dccbus.StartByte {
			c.raw = c.raw[:0]
		}
		c.raw = append(c.raw, b)

		p, err := c.dec.DecodeByte(b)
		if err != nil {
			raw := append([]byte(nil), c.raw...)
			c.raw = c.raw[:0]
			return nil, &FrameError{Err: err, Raw: raw}
		}
		if p != nil {
			c.last = append(c.last[:0], c.raw...)
			c.raw = c.raw[:0]
			return p, nil
		}
	}
}

// WriteFrame encodes and sends one frame
func (c *FrameConn) WriteFrame(p *dccbus.Packet) error {
	wire, err := dccbus.EncodePacket(p)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.t.Write(wire); err != nil {
		return fmt.Errorf("write %s: %w", dccbus.FormatMessageType(p.Type()), err)
	}
	return nil
}

// Raw returns the wire bytes of the last frame returned by ReadFrame
func (c *FrameConn) Raw() []byte {
	return c.last
}

// String describes the link
func (c *FrameConn) String() string {
	return c.info
}

// Close closes the transport
func (c *FrameConn) Close() error {
	return c.t.Close()
}

// frameResult is one ReadFrame outcome
type frameResult struct {
	packet *dccbus.Packet
	raw    []byte
	err    error
}

// readFrames runs ReadFrame on its own goroutine until the transport fails.
// Frame errors are delivered and reading goes on; the final result carries
// the transport error.
func (c *FrameConn) readFrames() <-chan frameResult {
	out := make(chan frameResult, 16)
	go func() {
		defer close(out)
		for {
			p, err := c.ReadFrame()
			if err != nil && !isFrameError(err) {
				if transient(c.t, err) {
					logger.Debug("read error", "error", err)
					time.Sleep(10 * time.Millisecond)
					continue
				}
				out <- frameResult{err: err}
				return
			}
			if p != nil {
				out <- frameResult{packet: p, raw: append([]byte(nil), c.last...)}
				continue
			}
			out <- frameResult{err: err}
		}
	}()
	return out
}

// waitFrame returns the first frame accepted by match, or an error when the
// transport fails or the timeout expires. Unmatched and malformed frames are
// skipped.
func waitFrame(frames <-chan frameResult, timeout time.Duration, match func(*dccbus.Packet) bool) (*dccbus.Packet, error) {
	deadline := time.After(timeout)
	for {
		select {
		case r, ok := <-frames:
			if !ok {
				return nil, ErrConnectionClosed
			}
			if r.err != nil {
				if isFrameError(r.err) {
					continue
				}
				return nil, fmt.Errorf("read error: %w", r.err)
			}
			if match(r.packet) {
				return r.packet, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("no reply within %s", timeout)
		}
	}
}

func isFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}

// transient reports whether reading may continue after err. Serial read
// errors are retried; a WebSocket read error means the peer is gone.
func transient(t Transport, err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return false
	}
	_, ok := t.(serialTransport)
	return ok
}
