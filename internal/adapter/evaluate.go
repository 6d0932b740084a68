package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/expr"
)

// runningResult answers evaluations made while the target runs.
const runningResult = "(running)"

type evaluation struct {
	req  *dap.Request
	args dap.EvaluateArguments
}

// Enqueue implements dap.Enqueuer. The server calls it in arrival order,
// so evaluations join the queue in the order the client sent them even
// though each request is handled on its own goroutine.
func (s *Session) Enqueue(req *dap.Request) {
	if req.Command != "evaluate" {
		return
	}
	var args dap.EvaluateArguments
	if err := req.DecodeArguments(&args); err != nil {
		// Handle reports it.
		return
	}

	s.mu.Lock()
	s.accepted[req] = struct{}{}
	running := s.enqueueLocked(req, args)
	s.mu.Unlock()
	if running {
		s.respond(req, dap.EvaluateResponseBody{Result: runningResult})
	}
}

// enqueueLocked appends an evaluation, or reports true if the target runs
// and the request must be answered at once.
func (s *Session) enqueueLocked(req *dap.Request, args dap.EvaluateArguments) bool {
	if s.state == StateRunning {
		return true
	}
	s.evals = append(s.evals, evaluation{req: req, args: args})
	return false
}

// evaluate answers queued evaluations. At most one goroutine drains the
// queue at a time, so evaluations are answered in queue order and at most
// one talks to the agent. Requests that did not pass through Enqueue are
// queued here.
func (s *Session) evaluate(ctx context.Context, req *dap.Request) {
	s.mu.Lock()
	if _, ok := s.accepted[req]; ok {
		delete(s.accepted, req)
	} else {
		var args dap.EvaluateArguments
		if err := req.DecodeArguments(&args); err != nil {
			s.mu.Unlock()
			s.fail(req, fmt.Sprintf("invalid arguments: %v", err))
			return
		}
		if s.enqueueLocked(req, args) {
			s.mu.Unlock()
			s.respond(req, dap.EvaluateResponseBody{Result: runningResult})
			return
		}
	}
	if s.draining || len(s.evals) == 0 {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.evals) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		head := s.evals[0]
		pending := s.localsPending
		s.mu.Unlock()

		if pending != nil {
			s.waitLocals(ctx, pending)
		}
		s.answer(ctx, head)

		s.mu.Lock()
		s.evals = s.evals[1:]
		s.mu.Unlock()
	}
}

// waitLocals blocks until the first locals fetch after a resume, the
// configured timeout, or ctx.
func (s *Session) waitLocals(ctx context.Context, pending <-chan struct{}) {
	var timeout <-chan time.Time
	if s.opts.LocalsTimeout > 0 {
		t := time.NewTimer(s.opts.LocalsTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-pending:
	case <-timeout:
		s.log.Debug("evaluation stopped waiting for locals")
	case <-ctx.Done():
	}
}

func (s *Session) answer(ctx context.Context, ev evaluation) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		s.respond(ev.req, dap.EvaluateResponseBody{Result: runningResult})
		return
	}
	gen := s.handles.gen
	var scope expr.Scope = expr.Locals(nil)
	if sl, ok := s.handles.resolve(ev.args.FrameID); ok && sl.loaded {
		if _, isFrame := sl.entry.(frameLocals); isFrame {
			scope = expr.Locals(sl.cached)
		}
	}
	s.mu.Unlock()

	v, err := expr.NewEvaluator(scope, s.dbg).EvaluateString(ctx, ev.args.Expression)
	if err != nil {
		var ee *expr.Error
		if errors.As(err, &ee) {
			s.respond(ev.req, dap.EvaluateResponseBody{Result: ee.Message})
			return
		}
		s.log.Warn("evaluation failed", zap.String("expression", ev.args.Expression), zap.Error(err))
		s.fail(ev.req, err.Error())
		return
	}

	// A resume during the remote calls cleared the table; the value is
	// still shown but gets no handle.
	s.mu.Lock()
	res := s.displayValueLocked(v, s.handles.gen == gen, s.display().ExpandablePrimitives)
	s.mu.Unlock()
	s.respond(ev.req, dap.EvaluateResponseBody{Result: res.Value, VariablesReference: res.VariablesReference})
}
