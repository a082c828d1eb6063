// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
)

// linkManager owns the frame link to the bus front end: it dispatches
// incoming frames, serializes outgoing ones and reconnects when the link drops.
type linkManager struct {
	conn *FrameConn
	mu   sync.RWMutex
	done chan struct{}

	statsMu sync.Mutex
	stats   *dccbus.Statistics

	// Callbacks run on the reader goroutine
	onPacket func(*dccbus.Packet)
	onState  func(connected bool, info string)

	dial func() (*FrameConn, error)
}

func newLinkManager(conn *FrameConn) *linkManager {
	return &linkManager{
		conn:  conn,
		done:  make(chan struct{}),
		stats: dccbus.NewStatistics(),
		dial:  openFrameConn,
	}
}

func (lm *linkManager) getConn() *FrameConn {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.conn
}

func (lm *linkManager) setConn(conn *FrameConn) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.conn = conn
}

// send writes one frame on the current connection
func (lm *linkManager) send(p *dccbus.Packet) error {
	conn := lm.getConn()
	if conn == nil {
		return fmt.Errorf("connection lost")
	}
	return conn.WriteFrame(p)
}

// statistics returns a summary of the link statistics
func (lm *linkManager) statistics() string {
	lm.statsMu.Lock()
	defer lm.statsMu.Unlock()
	return lm.stats.String()
}

func (lm *linkManager) record(decodeErr error, validationErrors []dccbus.ValidationError) {
	lm.statsMu.Lock()
	lm.stats.Update(decodeErr, validationErrors)
	lm.statsMu.Unlock()
}

// close stops the reader loop and closes the connection
func (lm *linkManager) close() {
	select {
	case <-lm.done:
	default:
		close(lm.done)
	}
	if conn := lm.getConn(); conn != nil {
		conn.Close()
	}
}

func (lm *linkManager) stopping() bool {
	select {
	case <-lm.done:
		return true
	default:
		return false
	}
}

// readerLoop handles reading from connection with automatic reconnection
func (lm *linkManager) readerLoop() {
	for !lm.stopping() {
		if lm.readFromConnection() {
			if lm.onState != nil {
				lm.onState(false, lm.getConn().String())
			}
			if !lm.reconnect() {
				return
			}
		}
	}
}

// readFromConnection dispatches frames until the connection fails.
// Returns true if the connection was lost, false if shutdown was requested.
func (lm *linkManager) readFromConnection() bool {
	conn := lm.getConn()
	synchronized := false
	for {
		p, err := conn.ReadFrame()
		if lm.stopping() {
			return false
		}
		if err != nil {
			var fe *FrameError
			switch {
			case errors.As(err, &fe):
				// Errors before the first frame are just line noise
				if synchronized {
					lm.record(fe.Err, nil)
					logger.Debug("frame rejected", "error", fe.Err)
				}
				continue
			case transient(conn.t, err):
				logger.Debug("read error", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return true
		}

		if !synchronized {
			synchronized = true
			logger.Info("link synchronized")
		}
		lm.record(nil, dccbus.ValidatePacket(p))
		if lm.onPacket != nil {
			lm.onPacket(p)
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (lm *linkManager) reconnect() bool {
	lm.getConn().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-lm.done:
			return false
		case <-time.After(backoff):
		}

		conn, err := lm.dial()
		if err == nil {
			lm.setConn(conn)
			logger.Info("reconnected", "connection", conn.String())
			if lm.onState != nil {
				lm.onState(true, conn.String())
			}
			return true
		}
		logger.Warn("reconnect failed", "error", err, "retry", backoff*2)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
