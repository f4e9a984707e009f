package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vizbridged/internal/protocol"
)

// fakeRuntime answers each request line with the response produced by fn,
// mimicking the plugin runtime on the other end of the pipes.
func fakeRuntime(t *testing.T, fn func(req protocol.Request) []string) *Conn {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		sc := bufio.NewScanner(reqR)
		for sc.Scan() {
			var req protocol.Request
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				continue
			}
			for _, line := range fn(req) {
				if _, err := io.WriteString(respW, line+"\n"); err != nil {
					return
				}
			}
		}
		_ = respW.Close()
	}()
	t.Cleanup(func() {
		_ = reqW.Close()
		_ = respR.Close()
	})
	return NewConn(zerolog.Nop(), reqW, respR)
}

func TestRoundTrip(t *testing.T) {
	conn := fakeRuntime(t, func(req protocol.Request) []string {
		if req.Type != protocol.MsgList {
			t.Errorf("unexpected request type %q", req.Type)
		}
		return []string{`{"type":"manifest_list","manifests":[]}`}
	})
	resp, err := conn.RoundTrip(context.Background(), &protocol.Request{Type: protocol.MsgList})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.Type != protocol.RespManifestList {
		t.Fatalf("response type: %q", resp.Type)
	}
}

// Interpreter chatter on stdout must not break the protocol stream.
func TestRoundTripSkipsNonProtocolLines(t *testing.T) {
	conn := fakeRuntime(t, func(req protocol.Request) []string {
		return []string{
			"Loading plugin pack...",
			"",
			"WARNING: deprecated API",
			`{"type":"ok"}`,
		}
	})
	resp, err := conn.RoundTrip(context.Background(), &protocol.Request{Type: protocol.MsgScan})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.Type != protocol.RespOK {
		t.Fatalf("response type: %q", resp.Type)
	}
}

func TestRoundTripUndecodableProtocolLine(t *testing.T) {
	conn := fakeRuntime(t, func(req protocol.Request) []string {
		return []string{`{"type":`, `{"type":"ok"}`}
	})
	resp, err := conn.RoundTrip(context.Background(), &protocol.Request{Type: protocol.MsgScan})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.Type != protocol.RespOK {
		t.Fatalf("response type: %q", resp.Type)
	}
}

func TestRoundTripTimeout(t *testing.T) {
	conn := fakeRuntime(t, func(req protocol.Request) []string {
		return nil // runtime never answers
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.RoundTrip(ctx, &protocol.Request{Type: protocol.MsgRender})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestRoundTripRuntimeExit(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	conn := NewConn(zerolog.Nop(), reqW, respR)
	go func() {
		_ = respW.Close() // runtime dies immediately
	}()
	// Drain the request write so RoundTrip does not block on the pipe.
	go func() { _, _ = io.Copy(io.Discard, reqR) }()
	_, err := conn.RoundTrip(context.Background(), &protocol.Request{Type: protocol.MsgList})
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
