package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// StreamableHTTPTransport writes server-sent events to one response. It is
// used when a client only accepts text/event-stream replies.
type StreamableHTTPTransport struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

func NewStreamableHTTPTransport(w http.ResponseWriter, f http.Flusher) *StreamableHTTPTransport {
	return &StreamableHTTPTransport{
		writer:  w,
		flusher: f,
	}
}

// SendSSE writes one event frame carrying data as JSON.
func (t *StreamableHTTPTransport) SendSSE(event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	sseMessage := fmt.Sprintf("event: %s\ndata: %s\n\n", event, string(dataJSON))
	if err := t.writeLocked(sseMessage); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	return nil
}

// SendComment writes one SSE comment frame (":" prefixed lines).
func (t *StreamableHTTPTransport) SendComment(comment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	comment = strings.ReplaceAll(comment, "\r\n", "\n")
	comment = strings.ReplaceAll(comment, "\r", "\n")
	comment = strings.ReplaceAll(comment, "\n", "\n: ")
	frame := fmt.Sprintf(": %s\n\n", comment)
	if err := t.writeLocked(frame); err != nil {
		return fmt.Errorf("failed to write SSE comment: %w", err)
	}
	return nil
}

func (t *StreamableHTTPTransport) writeLocked(payload string) error {
	if _, err := t.writer.Write([]byte(payload)); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *StreamableHTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *StreamableHTTPTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// acceptsEventStream reports whether the Accept header lists text/event-stream.
func acceptsEventStream(acceptHeader string) bool {
	return acceptsMIME(acceptHeader, "text/event-stream")
}

// prefersEventStream reports whether the client accepts SSE but not JSON.
func prefersEventStream(acceptHeader string) bool {
	return acceptsEventStream(acceptHeader) &&
		!acceptsMIME(acceptHeader, "application/json") &&
		!acceptsMIME(acceptHeader, "*/*")
}

func acceptsMIME(acceptHeader, want string) bool {
	for part := range strings.SplitSeq(acceptHeader, ",") {
		mime := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mime, want) {
			return true
		}
	}
	return false
}
