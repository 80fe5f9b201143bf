// Package stream implements the streaming transform: a line-oriented SSE
// parser, dialect re-emitter, and the signature-capture and
// stop-reason-patch side effects that ride along. Parsing is pull-based
// over the upstream response body with an idle timeout.
package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Frame is one raw SSE frame: an optional "event: " line and its "data: "
// payload.
type Frame struct {
	Event string
	Data  string
}

// Done reports whether this frame is the terminal "data: [DONE]" sentinel.
func (f Frame) Done() bool { return f.Data == "[DONE]" }

var errIdleTimeout = fmt.Errorf("SSE read idle timeout")

type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

func isIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SSE read idle timeout")
}

// FrameReader incrementally decodes an SSE byte stream into Frames, one at
// a time, tolerating partial lines across underlying Read() boundaries
// (bufio.Scanner already buffers for us).
type FrameReader struct {
	scanner     *bufio.Scanner
	idleTimeout time.Duration
}

// NewFrameReader wraps r with an idle-timeout guard and a line scanner.
func NewFrameReader(r io.Reader, idleTimeout time.Duration) *FrameReader {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	tr := &timedReader{r: r, timeout: idleTimeout}
	sc := bufio.NewScanner(tr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &FrameReader{scanner: sc, idleTimeout: idleTimeout}
}

// Next reads frames until the current one is complete (a "data: " line
// terminates it within this line-oriented dialect set — none of the three
// source dialects emit multi-line data payloads) or the stream ends.
// Returns io.EOF when the underlying reader is exhausted with no frame
// pending.
func (fr *FrameReader) Next(ctx context.Context) (Frame, error) {
	var cur Frame
	for fr.scanner.Scan() {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}

		line := fr.scanner.Text()

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
			continue
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
			return cur, nil
		case strings.HasPrefix(line, "data:"):
			cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			return cur, nil
		default:
			// Unknown SSE field (id:, retry:, comment): returns an empty
			// Frame; the line's text and any pending event name are not kept.
			return Frame{Event: "", Data: ""}, nil
		}
	}

	if err := fr.scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			return Frame{}, errIdleTimeout
		}
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// Encode renders a Frame back into wire SSE text.
func Encode(f Frame) []byte {
	var b strings.Builder
	if f.Event != "" {
		b.WriteString("event: ")
		b.WriteString(f.Event)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.WriteString(f.Data)
	b.WriteString("\n\n")
	return []byte(b.String())
}
