package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSendResultFraming(t *testing.T) {
	var out bytes.Buffer
	tr := New(strReader(""), &out, discardLogger())

	idRaw := json.RawMessage(`1`)
	if err := tr.SendResult(&idRaw, map[string]string{"ok": "yes"}); err != nil {
		t.Fatalf("SendResult: %v", err)
	}

	line := out.String()
	if n := bytes.Count([]byte(line), []byte("\n")); n != 1 {
		t.Fatalf("expected exactly one newline, got %d in %q", n, line)
	}

	var decoded acptypes.JSONRPCMessage
	if err := json.Unmarshal([]byte(line[:len(line)-1]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.IsResponse() {
		t.Fatalf("expected a response envelope, got %+v", decoded)
	}
}

func TestServeDispatchesRequestAndNotification(t *testing.T) {
	in := strReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n" +
		"{\"jsonrpc\":\"2.0\",\"method\":\"note\"}\n")
	var out bytes.Buffer
	tr := New(in, &out, discardLogger())

	gotReq := make(chan string, 1)
	gotNote := make(chan string, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tr.Serve(ctx,
			func(req *acptypes.JSONRPCMessage) {
				gotReq <- req.Method
				_ = tr.SendResult(req.ID, map[string]any{})
			},
			func(n *acptypes.JSONRPCMessage) {
				gotNote <- n.Method
			},
		)
	}()

	select {
	case m := <-gotReq:
		if m != "ping" {
			t.Fatalf("expected ping, got %s", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request dispatch")
	}

	select {
	case m := <-gotNote:
		if m != "note" {
			t.Fatalf("expected note, got %s", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification dispatch")
	}

	<-done
}

func strReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}
