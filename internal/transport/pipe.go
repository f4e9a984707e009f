package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"vizbridged/internal/protocol"
)

// maxLineBytes bounds a single protocol line. Command buffers carrying
// shader source can get large.
const maxLineBytes = 8 << 20

// Conn is the line-delimited JSON channel over the runtime's stdin/stdout.
// Requests go out as one JSON object per line; a background goroutine reads
// the runtime's stdout, forwards protocol lines and logs everything else
// (interpreters print). One request is in flight at a time.
type Conn struct {
	log zerolog.Logger
	w   io.Writer

	mu    sync.Mutex
	lines chan []byte
}

// NewConn wraps the runtime's stdin (w) and stdout (r) and starts the line
// reader. The reader goroutine exits when r reaches EOF, which happens when
// the runtime process dies.
func NewConn(log zerolog.Logger, w io.Writer, r io.Reader) *Conn {
	c := &Conn{log: log, w: w, lines: make(chan []byte, 4)}
	go c.readLoop(r)
	return c
}

func (c *Conn) readLoop(r io.Reader) {
	defer close(c.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			c.log.Debug().Str("line", string(line)).Msg("runtime output")
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		c.lines <- buf
	}
	if err := sc.Err(); err != nil {
		c.log.Warn().Err(err).Msg("runtime stdout closed with error")
	}
}

// RoundTrip sends req and waits for the next protocol line, decoded as a
// Response. Cancellation of ctx abandons the wait; the supervisor treats
// that as a crash, so a late response never pairs with a later request.
func (c *Conn) RoundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(req); err != nil {
		return nil, err
	}
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return nil, ErrUnavailable("runtime closed its output")
			}
			var resp protocol.Response
			if err := json.Unmarshal(line, &resp); err != nil {
				c.log.Warn().Err(err).Msg("undecodable protocol line skipped")
				continue
			}
			return &resp, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("round trip: %w", ctx.Err())
		}
	}
}

// Send writes req without waiting for a reply. Used for one-way messages
// such as the shutdown notification.
func (c *Conn) Send(req *protocol.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(req)
}

func (c *Conn) send(req *protocol.Request) error {
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := c.w.Write(buf); err != nil {
		return ErrUnavailable(fmt.Sprintf("write request: %v", err))
	}
	return nil
}
