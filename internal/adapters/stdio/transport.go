// Package stdio drives one engine session over newline-delimited JSON on a
// reader/writer pair, typically stdin/stdout. It is the transport for running
// the engine as a subprocess of an agent harness: the harness writes one
// action envelope per line and reads one response object per line.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/concierge-sh/concierge/internal/logging"
)

// Engine is the subset of the engine surface the transport needs.
type Engine interface {
	CreateSession(ctx context.Context) (string, string, error)
	Handle(ctx context.Context, sessionID string, raw []byte) (string, error)
	EndSession(ctx context.Context, sessionID string) (string, error)
}

// Frame is one response line. Every line the transport writes is one JSON
// Frame; the continuation prompt travels in Message.
type Frame struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Transport runs the line loop.
type Transport struct {
	engine Engine
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Transport. Nil in/out default to os.Stdin/os.Stdout.
func New(engine Engine, in io.Reader, out io.Writer, opts ...Option) *Transport {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	t := &Transport{
		engine: engine,
		in:     in,
		out:    out,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run creates a session, then processes one envelope per input line until
// EOF or context cancellation. The session is ended on the way out.
func (t *Transport) Run(ctx context.Context) error {
	sessionID, greeting, err := t.engine.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	t.logger.Info("stdio session started", "session_id", sessionID)

	if err := t.emit(Frame{SessionID: sessionID, Message: greeting}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := t.engine.Handle(ctx, sessionID, []byte(line))
		if err != nil {
			if emitErr := t.emit(Frame{Error: err.Error()}); emitErr != nil {
				return emitErr
			}
			continue
		}
		if err := t.emit(Frame{Message: reply}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	farewell, err := t.engine.EndSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	t.logger.Info("stdio session ended", "session_id", sessionID)
	return t.emit(Frame{SessionID: sessionID, Message: farewell})
}

// emit writes one frame as a single JSON line.
func (t *Transport) emit(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if _, err := fmt.Fprintln(t.out, string(data)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
