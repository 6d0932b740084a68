package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Handler handles one client request. Every request must eventually get
// exactly one Respond or Fail call on the server that dispatched it, though
// the answer may be sent after Handle returns.
type Handler interface {
	Handle(ctx context.Context, req *Request)
}

// Enqueuer is implemented by handlers that need some requests in the order
// the client sent them. Serve calls Enqueue from its receive loop, before
// the request is dispatched to Handle. Enqueue must not block.
type Enqueuer interface {
	Enqueue(req *Request)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) { f(ctx, req) }

// Server reads requests from a transport and dispatches them to a handler.
// Each request runs on its own goroutine, so handlers see requests in no
// particular order unless they implement Enqueuer. Respond, Fail and
// SendEvent are safe for concurrent use.
type Server struct {
	transport Transport
	logger    *zap.Logger
	sendMu    sync.Mutex
	seq       int
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server on transport.
func NewServer(transport Transport, opts ...Option) *Server {
	s := &Server{
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve receives requests until the client closes the stream or ctx is
// done, then waits for in-flight handlers. A clean end of stream returns nil.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		msg, err := s.transport.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		var base ProtocolMessage
		if err := json.Unmarshal(msg.Content, &base); err != nil {
			s.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		if base.Type != TypeRequest {
			s.logger.Warn("dropping non-request message", zap.String("type", base.Type))
			continue
		}

		req := new(Request)
		if err := json.Unmarshal(msg.Content, req); err != nil {
			s.logger.Warn("dropping malformed request", zap.Error(err))
			continue
		}

		if q, ok := h.(Enqueuer); ok {
			q.Enqueue(req)
		}
		s.wg.Add(1)
		go s.dispatch(ctx, h, req)
	}
}

// dispatch runs one handler, answering with a failure if it panics.
func (s *Server) dispatch(ctx context.Context, h Handler, req *Request) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked",
				zap.String("command", req.Command),
				zap.Int("seq", req.Seq),
				zap.Any("panic", r),
			)
			_ = s.Fail(req, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.logger.Debug("request", zap.String("command", req.Command), zap.Int("seq", req.Seq))
	h.Handle(ctx, req)
}

// Close closes the transport. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
	})
	return err
}

// Respond sends a successful response to req.
func (s *Server) Respond(req *Request, body any) error {
	return s.send(func(seq int) any {
		return &Response{
			ProtocolMessage: ProtocolMessage{Seq: seq, Type: TypeResponse},
			RequestSeq:      req.Seq,
			Success:         true,
			Command:         req.Command,
			Body:            body,
		}
	})
}

// Fail sends a failed response to req.
func (s *Server) Fail(req *Request, message string) error {
	return s.send(func(seq int) any {
		return &Response{
			ProtocolMessage: ProtocolMessage{Seq: seq, Type: TypeResponse},
			RequestSeq:      req.Seq,
			Success:         false,
			Command:         req.Command,
			Message:         message,
		}
	})
}

// SendEvent sends an event.
func (s *Server) SendEvent(event string, body any) error {
	return s.send(func(seq int) any {
		return &Event{
			ProtocolMessage: ProtocolMessage{Seq: seq, Type: TypeEvent},
			Event:           event,
			Body:            body,
		}
	})
}

// send numbers and writes one message. Sequence numbers are assigned under
// the send lock so they reach the client in increasing order.
func (s *Server) send(build func(seq int) any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.seq++
	content, err := json.Marshal(build(s.seq))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.transport.Send(&Message{ContentLength: len(content), Content: content}); err != nil {
		s.logger.Warn("send failed", zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
