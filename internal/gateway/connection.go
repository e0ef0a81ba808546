package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// sendTimeout bounds how long a write loop will wait for queue space before
// treating a connection as backpressured, mirroring the chunk-layer
// connection's enqueue timeout.
const sendTimeout = 200 * time.Millisecond

var connCounter uint64

// nextConnID generates a short, monotonically increasing connection id.
func nextConnID(prefix string) string {
	return fmt.Sprintf("%s%06d", prefix, atomic.AddUint64(&connCounter, 1))
}

// recorderConn wraps a recorder's websocket connection: read/write loops,
// a bounded outbound queue, and a cancellable lifecycle. It generalizes the
// chunk-transport connection's queue-with-timeout backpressure to a
// websocket text/binary frame transport.
type recorderConn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outbound chan []byte
}

func newRecorderConn(ws *websocket.Conn, log *slog.Logger) *recorderConn {
	ctx, cancel := context.WithCancel(context.Background())
	id := nextConnID("r")
	return &recorderConn{
		id:       id,
		ws:       ws,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []byte, 32),
	}
}

// startWriteLoop consumes the outbound queue and writes each payload as a
// websocket text frame.
func (c *recorderConn) startWriteLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case payload, ok := <-c.outbound:
				if !ok {
					return
				}
				if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					c.log.Error("recorder write failed", "error", err)
					return
				}
			}
		}
	}()
}

// send enqueues payload for transmission, applying a short timeout so a
// stalled recorder cannot block the handler indefinitely.
func (c *recorderConn) send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return context.Canceled
	case c.outbound <- payload:
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("recorder %s: send queue full", c.id)
	}
}

// sendJSON marshals v and enqueues it as a text frame.
func (c *recorderConn) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(payload)
}

// readFrame blocks for the next websocket message.
func (c *recorderConn) readFrame() (messageType int, data []byte, err error) {
	return c.ws.ReadMessage()
}

// Close cancels the connection's loops, closes the underlying socket, and
// waits for the write loop to exit.
func (c *recorderConn) Close() error {
	c.cancel()
	err := c.ws.Close()
	c.wg.Wait()
	return err
}

// viewerConn is a one-way fan-out target: the Gateway only ever writes
// ProgressEvent frames to it.
type viewerConn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outbound chan []byte
}

func newViewerConn(ws *websocket.Conn, log *slog.Logger) *viewerConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &viewerConn{
		id:       nextConnID("v"),
		ws:       ws,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []byte, 64),
	}
}

func (v *viewerConn) startWriteLoop() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for {
			select {
			case <-v.ctx.Done():
				return
			case payload, ok := <-v.outbound:
				if !ok {
					return
				}
				if err := v.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					v.log.Debug("viewer write failed", "error", err)
					return
				}
			}
		}
	}()
}

// trySend is a non-blocking broadcast send: a viewer whose queue is full is
// skipped rather than stalling fan-out to everyone else.
func (v *viewerConn) trySend(payload []byte) {
	select {
	case v.outbound <- payload:
	default:
	}
}

// waitClosed blocks reading discardable frames until the viewer's socket
// closes, so the handler goroutine can detect disconnect and deregister.
func (v *viewerConn) waitClosed() error {
	for {
		if _, _, err := v.ws.ReadMessage(); err != nil {
			return err
		}
	}
}

func (v *viewerConn) Close() error {
	v.cancel()
	err := v.ws.Close()
	v.wg.Wait()
	return err
}

var errProtocolViolation = errors.New("protocol violation")
