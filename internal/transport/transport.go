// Package transport implements the duplex, newline-delimited JSON-RPC 2.0
// channel over stdio: a line reader/writer plus a pending-request table for
// requests the adapter itself initiates against the client (fs/*,
// session/request_permission).
//
// Grounded on m4xw311-compell/agent/acp/acp.go's readFramedMessage /
// writeFramedJSON pair (bufio.Reader.ReadLine + json.Marshal + manual
// newline + mutex-guarded Flush), generalized to also track outgoing
// requests -- the teacher only ever writes responses and notifications.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// RequestHandler processes an incoming request and must eventually call
// one of Transport.SendResult / Transport.SendError for req.ID.
type RequestHandler func(req *acptypes.JSONRPCMessage)

// NotificationHandler processes an incoming notification.
type NotificationHandler func(n *acptypes.JSONRPCMessage)

// Transport owns the stdio line protocol for one connection.
type Transport struct {
	reader *bufio.Reader
	writer *bufio.Writer

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan *acptypes.JSONRPCMessage

	nextID int64

	log zerolog.Logger
}

// New builds a Transport reading from in and writing to out.
func New(in io.Reader, out io.Writer, log zerolog.Logger) *Transport {
	return &Transport{
		reader:  bufio.NewReader(in),
		writer:  bufio.NewWriter(out),
		pending: make(map[int64]chan *acptypes.JSONRPCMessage),
		log:     log,
	}
}

// Serve runs the read loop until EOF or a fatal read error. Incoming
// requests and notifications are dispatched to the supplied handlers;
// responses to outgoing requests are resolved against the pending table
// internally and never reach the handlers.
func (t *Transport) Serve(ctx context.Context, onRequest RequestHandler, onNotification NotificationHandler) error {
	for {
		select {
		case <-ctx.Done():
			t.CloseWithError(ctx.Err())
			return ctx.Err()
		default:
		}

		line, err := t.readLine()
		if err != nil {
			if err == io.EOF {
				t.CloseWithError(io.EOF)
				return nil
			}
			t.log.Error().Err(err).Msg("transport read error")
			t.CloseWithError(err)
			return fmt.Errorf("transport: read error: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		var msg acptypes.JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			t.log.Warn().Err(err).Msg("transport: parse error")
			_ = t.SendError(nil, acperr.CodeParseError, "Parse error", nil)
			continue
		}

		switch {
		case msg.IsResponse():
			t.resolvePending(&msg)
		case msg.IsRequest():
			onRequest(&msg)
		case msg.IsNotification():
			onNotification(&msg)
		default:
			_ = t.SendError(msg.ID, acperr.CodeInvalidRequest, "Invalid request", nil)
		}
	}
}

func (t *Transport) readLine() ([]byte, error) {
	line, isPrefix, err := t.reader.ReadLine()
	if err != nil {
		return nil, err
	}
	if !isPrefix {
		return line, nil
	}
	// ReadLine split an over-length line across multiple reads; stitch it
	// back together rather than silently truncating a frame.
	full := append([]byte(nil), line...)
	for isPrefix {
		var more []byte
		more, isPrefix, err = t.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		full = append(full, more...)
	}
	return full, nil
}

func (t *Transport) writeFramed(msg *acptypes.JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	if _, err := t.writer.WriteString("\n"); err != nil {
		return err
	}
	return t.writer.Flush()
}

// SendResult writes a success response for the request identified by id.
func (t *Transport) SendResult(id *json.RawMessage, result any) error {
	msg, err := acptypes.NewResponse(id, result)
	if err != nil {
		return err
	}
	return t.writeFramed(msg)
}

// SendError writes an error response for the request identified by id
// (id may be nil for parse errors per JSON-RPC 2.0).
func (t *Transport) SendError(id *json.RawMessage, code int, message string, data any) error {
	return t.writeFramed(acptypes.NewErrorResponse(id, code, message, data))
}

// SendNotification writes a notification (no id, no response expected).
func (t *Transport) SendNotification(method string, params any) error {
	msg, err := acptypes.NewNotification(method, params)
	if err != nil {
		return err
	}
	return t.writeFramed(msg)
}

// Call sends a request to the client and blocks until a matching response
// arrives, ctx is cancelled, or the transport is closed. result, if
// non-nil, receives the decoded result payload.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	id := atomic.AddInt64(&t.nextID, 1)
	msg, err := acptypes.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *acptypes.JSONRPCMessage, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeFramed(msg); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-ch:
		if resp == nil {
			return fmt.Errorf("transport: closed while awaiting response to %s", method)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

func (t *Transport) resolvePending(resp *acptypes.JSONRPCMessage) {
	var id int64
	if resp.ID != nil {
		_ = json.Unmarshal(*resp.ID, &id)
	}
	t.pendingMu.Lock()
	ch, ok := t.pending[id]
	t.pendingMu.Unlock()
	if !ok {
		t.log.Warn().Int64("id", id).Msg("transport: response for unknown request id")
		return
	}
	ch <- resp
}

// CloseWithError rejects every pending outgoing request with a
// well-defined error, per spec section 4.1.
func (t *Transport) CloseWithError(cause error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		ch <- nil
		delete(t.pending, id)
	}
	_ = cause
}
