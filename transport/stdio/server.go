package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/dataset-mcp-go/tools/types"
	"github.com/slighter12/dataset-mcp-go/transport/shared"
)

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 4 << 20

// Server handles MCP communication over newline-delimited JSON-RPC. Frames
// are handled one at a time in arrival order.
type Server struct {
	handler *shared.Handler
	reader  io.Reader
	writer  io.Writer
}

// NewServer creates a stdio server over the given streams.
func NewServer(handler *shared.Handler, reader io.Reader, writer io.Writer) *Server {
	return &Server{
		handler: handler,
		reader:  reader,
		writer:  writer,
	}
}

// Run serves frames until EOF or ctx is cancelled. EOF is a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readFrames(ctx, frames)
	}()

	encoder := json.NewEncoder(s.writer)
	ctx = types.WithCallContext(ctx, types.CallContext{Transport: config.TransportStdio})
	logger.Debug("Stdio server started and waiting for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stdio server stopping", "reason", ctx.Err())
			return nil
		case err := <-readErr:
			if err != nil {
				logger.Error("Error reading stdio frame", "error", err)
				return err
			}
			logger.Debug("Stdio EOF received, terminating server")
			return nil
		case frame := <-frames:
			response := s.handler.HandleFrame(ctx, frame)
			if response == nil {
				continue
			}
			if err := s.write(encoder, response); err != nil {
				return err
			}
		}
	}
}

// write encodes response. A response that cannot be encoded is replaced by an
// internal error for the same id; only a failing writer stops the server.
func (s *Server) write(encoder *json.Encoder, response *jsonrpc.Response) error {
	err := encoder.Encode(response)
	if err == nil {
		return nil
	}
	if !isEncodingError(err) {
		logger.Error("Error writing response", "error", err)
		return err
	}
	logger.Error("Error encoding response", "id", response.ID, "error", err)
	if err := encoder.Encode(jsonrpc.NewErrorResponse(response.ID, jsonrpc.ErrInternalError, "", nil)); err != nil {
		logger.Error("Error writing response", "error", err)
		return err
	}
	return nil
}

func isEncodingError(err error) bool {
	if _, ok := errors.AsType[*json.UnsupportedTypeError](err); ok {
		return true
	}
	if _, ok := errors.AsType[*json.UnsupportedValueError](err); ok {
		return true
	}
	_, ok := errors.AsType[*json.MarshalerError](err)
	return ok
}

func (s *Server) readFrames(ctx context.Context, frames chan<- []byte) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		select {
		case frames <- frame:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
