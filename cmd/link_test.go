// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/gorilla/websocket"
)

// echoServer answers every binary message with the same bytes. A text
// message is sent first and must be skipped by the client.
func echoServer(t *testing.T, user, pass string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
			return
		}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURLOf(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialWebSocket_Scheme(t *testing.T) {
	if _, err := dialWebSocket("http://localhost/", "", "", false); err == nil {
		t.Fatal("expected error for http:// scheme")
	}
}

func TestDialWebSocket_Auth(t *testing.T) {
	srv := echoServer(t, "op", "secret")
	defer srv.Close()

	if _, err := dialWebSocket(wsURLOf(srv), "op", "wrong", false); err == nil {
		t.Fatal("expected handshake failure with a wrong password")
	}

	conn, err := dialWebSocket(wsURLOf(srv), "op", "secret", false)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestLinkManager_RoundTrip(t *testing.T) {
	srv := echoServer(t, "", "")
	defer srv.Close()

	tr, err := dialWebSocket(wsURLOf(srv), "", "", false)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	lm := newLinkManager(NewFrameConn(tr, "test"))
	packets := make(chan *dccbus.Packet, 4)
	lm.onPacket = func(p *dccbus.Packet) { packets <- p }
	stopped := make(chan struct{})
	go func() {
		lm.readerLoop()
		close(stopped)
	}()

	if err := lm.send(dccbus.NewAccessoryCommand(101, 1, true)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case p := <-packets:
		if p.Type() != dccbus.MsgAccessory {
			t.Fatalf("type = 0x%02X, want 0x%02X", p.Type(), dccbus.MsgAccessory)
		}
		addr, _ := dccbus.GetMapUint(p.PayloadMap(), 0)
		if addr != 101 {
			t.Errorf("address = %d, want 101", addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no packet echoed")
	}

	if !strings.Contains(lm.statistics(), "Valid Packets:") {
		t.Errorf("statistics summary missing counters:\n%s", lm.statistics())
	}

	lm.close()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("reader loop did not stop")
	}
}

func TestLinkTarget_NoTarget(t *testing.T) {
	if _, err := (linkTarget{}).dial(); err == nil {
		t.Fatal("expected error without --port or --url")
	}
}

// pipeTransport reads from a fixed byte stream and records writes
type pipeTransport struct {
	io.Reader
	written bytes.Buffer
}

func (p *pipeTransport) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *pipeTransport) Close() error                { return nil }

func encode(t *testing.T, p *dccbus.Packet) []byte {
	t.Helper()
	wire, err := dccbus.EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket() error: %v", err)
	}
	return wire
}

// corruptCRC changes the last CRC byte of a frame without creating a
// framing byte
func corruptCRC(wire []byte) []byte {
	out := append([]byte(nil), wire...)
	i := len(out) - 2
	for _, bit := range []byte{0x01, 0x02, 0x04} {
		switch v := out[i] ^ bit; v {
		case dccbus.StartByte, dccbus.EndByte, dccbus.EscByte:
		default:
			out[i] = v
			return out
		}
	}
	return out
}

func TestFrameConn_ReadFrame(t *testing.T) {
	reply := encode(t, dccbus.NewPomReply(8, 13, true))
	bad := corruptCRC(encode(t, dccbus.NewAccessoryCommand(21, 0, true)))

	var stream []byte
	stream = append(stream, 0x00, 0x55) // line noise
	stream = append(stream, bad...)
	stream = append(stream, reply...)
	conn := NewFrameConn(&pipeTransport{Reader: bytes.NewReader(stream)}, "pipe")

	_, err := conn.ReadFrame()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("first ReadFrame() error = %v, want *FrameError", err)
	}
	if !errors.Is(err, dccbus.ErrCRCMismatch) {
		t.Errorf("frame error = %v, want CRC mismatch", err)
	}
	if !bytes.Equal(fe.Raw, bad) {
		t.Errorf("rejected bytes = % X, want % X", fe.Raw, bad)
	}

	p, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame() error: %v", err)
	}
	if p.Type() != dccbus.MsgPomReply {
		t.Errorf("type = 0x%02X, want POM_REPLY", p.Type())
	}
	if !bytes.Equal(conn.Raw(), reply) {
		t.Errorf("Raw() = % X, want % X", conn.Raw(), reply)
	}

	if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end of stream error = %v, want EOF", err)
	}
}

func TestFrameConn_WriteFrame(t *testing.T) {
	tr := &pipeTransport{Reader: bytes.NewReader(nil)}
	conn := NewFrameConn(tr, "pipe")

	req := dccbus.NewPomRead(50, 8)
	if err := conn.WriteFrame(req); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	if !bytes.Equal(tr.written.Bytes(), encode(t, req)) {
		t.Errorf("written = % X", tr.written.Bytes())
	}
}

func TestAwaitAnswer(t *testing.T) {
	frames := make(chan frameResult, 4)
	frames <- frameResult{err: &FrameError{Err: dccbus.ErrCRCMismatch}}
	frames <- frameResult{packet: dccbus.NewOutputState(3, 90, true)}
	frames <- frameResult{packet: dccbus.NewPomReply(8, 13, true)}

	answer, rejected, err := awaitAnswer(frames, time.Second)
	if err != nil {
		t.Fatalf("awaitAnswer() error: %v", err)
	}
	if answer.Type() != dccbus.MsgPomReply {
		t.Errorf("answer type = 0x%02X, want POM_REPLY", answer.Type())
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}

	_, _, err = awaitAnswer(make(chan frameResult), 10*time.Millisecond)
	if !isTimeout(err) {
		t.Errorf("awaitAnswer() on a silent link error = %v, want timeout", err)
	}

	closed := make(chan frameResult)
	close(closed)
	if _, _, err := awaitAnswer(closed, time.Second); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("awaitAnswer() on a closed link error = %v, want ErrConnectionClosed", err)
	}
}

func TestWaitFrame_SkipsUnmatched(t *testing.T) {
	frames := make(chan frameResult, 3)
	frames <- frameResult{packet: dccbus.NewAccessoryCommand(20, 1, true)}
	frames <- frameResult{err: &FrameError{Err: dccbus.ErrCRCMismatch}}
	frames <- frameResult{packet: dccbus.NewPomReply(8, 13, false)}

	p, err := waitFrame(frames, time.Second, isType(dccbus.MsgPomReply))
	if err != nil {
		t.Fatalf("waitFrame() error: %v", err)
	}
	if ok, _ := dccbus.GetMapBool(p.PayloadMap(), 2); ok {
		t.Error("reply ok flag = true, want false")
	}

	if _, err := waitFrame(make(chan frameResult), 10*time.Millisecond, isType(dccbus.MsgPomReply)); err == nil {
		t.Error("waitFrame() on a silent link returned no error")
	}
}
