package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/launch"
	"github.com/dshills/droidbug/internal/source"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateStopped is the initial state and the state at a breakpoint or
	// after a step.
	StateStopped State = iota
	// StateLaunching covers the launch sequence up to the first resume.
	StateLaunching
	// StateRunning means the target executes; handles are invalid.
	StateRunning
	// StateDisconnecting is entered when the client asks to disconnect.
	StateDisconnecting
	// StateEnded is terminal.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateDisconnecting:
		return "disconnecting"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Sender delivers responses and events to the client. *dap.Server
// implements it.
type Sender interface {
	Respond(req *dap.Request, body any) error
	Fail(req *dap.Request, message string) error
	SendEvent(event string, body any) error
}

// DisplayOptions control how values are presented.
type DisplayOptions struct {
	// ExpandablePrimitives lets integers, chars and strings be expanded to
	// show their value in other bases, or their length.
	ExpandablePrimitives bool
}

// Options configure a Session.
type Options struct {
	Logger *zap.Logger

	// Display is consulted on every variables and evaluate request, so
	// changes take effect without restarting the session.
	Display func() DisplayOptions

	// LocalsTimeout bounds how long an evaluation waits for the locals of a
	// new stop. Zero waits until they arrive.
	LocalsTimeout time.Duration
}

// Session is one debugging session. It answers client requests by driving
// the agent, and forwards agent events to the client.
type Session struct {
	id       string
	dbg      debugger.Debugger
	launcher launch.Launcher
	out      Sender
	log      *zap.Logger
	opts     Options

	configured     chan struct{}
	configuredOnce sync.Once
	ended          chan struct{}
	endedOnce      sync.Once

	mu            sync.Mutex
	state         State
	disconnecting bool
	linesStartAt1 bool
	packages      *source.Packages
	handles       *handleTable
	breakpoints   *breakpointRegistry
	evals         []evaluation
	draining      bool
	accepted      map[*dap.Request]struct{}
	localsPending chan struct{}
}

// NewSession creates a session that drives dbg and answers through out.
func NewSession(dbg debugger.Debugger, launcher launch.Launcher, out Sender, opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:            id,
		dbg:           dbg,
		launcher:      launcher,
		out:           out,
		log:           logger.With(zap.String("session", id)),
		opts:          opts,
		configured:    make(chan struct{}),
		ended:         make(chan struct{}),
		state:         StateStopped,
		linesStartAt1: true,
		packages:      source.NewPackages(),
		handles:       newHandleTable(),
		breakpoints:   newBreakpointRegistry(),
		accepted:      make(map[*dap.Request]struct{}),
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.ended }

// Handle implements dap.Handler.
func (s *Session) Handle(ctx context.Context, req *dap.Request) {
	switch req.Command {
	case "initialize":
		s.onInitialize(req)
	case "launch":
		s.onLaunch(ctx, req)
	case "configurationDone":
		s.configuredOnce.Do(func() { close(s.configured) })
		s.respond(req, nil)
	case "setBreakpoints":
		var args dap.SetBreakpointsArguments
		if !s.decode(req, &args) {
			return
		}
		bps := s.setBreakpoints(ctx, args.Source.Path, args.RequestedLines())
		s.respond(req, dap.SetBreakpointsResponseBody{Breakpoints: bps})
	case "threads":
		s.onThreads(ctx, req)
	case "stackTrace":
		var args dap.StackTraceArguments
		if !s.decode(req, &args) {
			return
		}
		body, err := s.stackTrace(ctx, args)
		if err != nil {
			s.log.Warn("stack trace failed", zap.Int("thread", args.ThreadID), zap.Error(err))
			s.fail(req, err.Error())
			return
		}
		s.respond(req, body)
	case "scopes":
		var args dap.ScopesArguments
		if !s.decode(req, &args) {
			return
		}
		s.respond(req, dap.ScopesResponseBody{
			Scopes: []dap.Scope{{Name: "Local", VariablesReference: args.FrameID}},
		})
	case "variables":
		var args dap.VariablesArguments
		if !s.decode(req, &args) {
			return
		}
		vars, err := s.variables(ctx, args.VariablesReference)
		if err != nil {
			s.log.Warn("variables failed", zap.Int("ref", args.VariablesReference), zap.Error(err))
			s.fail(req, err.Error())
			return
		}
		s.respond(req, dap.VariablesResponseBody{Variables: vars})
	case "continue":
		s.resume(ctx, req, false)
	case "next":
		s.step(ctx, req, debugger.StepOver)
	case "stepIn":
		s.step(ctx, req, debugger.StepIn)
	case "stepOut":
		s.step(ctx, req, debugger.StepOut)
	case "evaluate":
		s.evaluate(ctx, req)
	case "source":
		s.respond(req, dap.SourceResponseBody{Content: "// The source for this class is unavailable."})
	case "disconnect":
		s.onDisconnect(ctx, req)
	default:
		s.fail(req, fmt.Sprintf("unsupported command %q", req.Command))
	}
}

func (s *Session) decode(req *dap.Request, v any) bool {
	if err := req.DecodeArguments(v); err != nil {
		s.fail(req, fmt.Sprintf("invalid arguments: %v", err))
		return false
	}
	return true
}

func (s *Session) onInitialize(req *dap.Request) {
	var args dap.InitializeRequestArguments
	if !s.decode(req, &args) {
		return
	}
	s.mu.Lock()
	s.linesStartAt1 = args.LinesStartAt1 == nil || *args.LinesStartAt1
	s.mu.Unlock()

	s.respond(req, dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
	})
}

func (s *Session) onThreads(ctx context.Context, req *dap.Request) {
	ids, err := s.dbg.AllThreads(ctx)
	if err != nil {
		s.log.Warn("threads failed", zap.Error(err))
		s.fail(req, err.Error())
		return
	}
	threads := make([]dap.Thread, 0, len(ids))
	for _, raw := range ids {
		id, err := debugger.ParseThreadID(raw)
		if err != nil {
			s.log.Warn("skipping thread", zap.Error(err))
			continue
		}
		threads = append(threads, dap.Thread{ID: id, Name: fmt.Sprintf("Thread (id:%d)", id)})
	}
	s.respond(req, dap.ThreadsResponseBody{Threads: threads})
}

// resume answers req before the agent acknowledges the resume, because the
// target can hit a breakpoint before the call returns. A failed resume is
// reported as a stop. The initial resume of a launch answers the launch
// request itself.
func (s *Session) resume(ctx context.Context, req *dap.Request, launching bool) {
	s.mu.Lock()
	s.handles.clear()
	s.state = StateRunning
	s.armLocalsLocked()
	s.mu.Unlock()

	var body any = dap.ContinueResponseBody{AllThreadsContinued: true}
	if launching {
		body = nil
	}
	s.respond(req, body)

	if err := s.dbg.Resume(ctx); err != nil {
		s.log.Warn("resume failed", zap.Error(err))
		s.mu.Lock()
		if s.state == StateRunning {
			s.state = StateStopped
		}
		s.mu.Unlock()
		s.sendEvent("stopped", dap.StoppedEventBody{Reason: "Continue failed"})
		s.warn("Resume command failed")
		return
	}
	if launching {
		s.info("App started")
	}
}

func (s *Session) step(ctx context.Context, req *dap.Request, kind debugger.StepKind) {
	var args dap.StepArguments
	if !s.decode(req, &args) {
		return
	}

	s.mu.Lock()
	s.handles.clear()
	prev := s.state
	s.state = StateRunning
	s.armLocalsLocked()
	s.mu.Unlock()

	if err := s.dbg.Step(ctx, kind, debugger.FormatThreadID(args.ThreadID)); err != nil {
		s.log.Warn("step failed", zap.String("kind", string(kind)), zap.Error(err))
		s.mu.Lock()
		if s.state == StateRunning {
			s.state = prev
		}
		s.releaseLocalsLocked()
		s.mu.Unlock()
		s.fail(req, err.Error())
		return
	}
	s.respond(req, nil)
}

func (s *Session) onDisconnect(ctx context.Context, req *dap.Request) {
	s.mu.Lock()
	s.disconnecting = true
	s.state = StateDisconnecting
	s.mu.Unlock()

	if s.dbg.Status() == debugger.StatusConnected {
		if err := s.dbg.ForceStop(ctx); err != nil {
			s.log.Warn("force stop failed", zap.Error(err))
		}
	}
	prev, err := s.dbg.Disconnect(ctx)
	if err != nil {
		s.log.Warn("disconnect failed", zap.Error(err))
	}
	if prev == debugger.StatusConnected || prev == debugger.StatusConnecting {
		s.info("Debugger disconnected")
	}

	s.end()
	s.respond(req, nil)
}

// onEvent handles agent events.
func (s *Session) onEvent(ev debugger.Event) {
	switch ev := ev.(type) {
	case debugger.BreakpointStateEvent:
		s.breakpointsChanged(ev.Breakpoints)
	case debugger.BreakpointHitEvent:
		s.stopped("breakpoint", ev.Stop)
	case debugger.StepEvent:
		s.stopped("step", ev.Stop)
	case debugger.DisconnectEvent:
		s.mu.Lock()
		expected := s.disconnecting || s.state == StateEnded
		s.mu.Unlock()
		if expected {
			return
		}
		s.log.Info("agent disconnected")
		s.info("Device disconnected")
		s.end()
		s.sendEvent("terminated", dap.TerminatedEventBody{})
	}
}

func (s *Session) stopped(reason string, stop debugger.StopLocation) {
	threadID, err := debugger.ParseThreadID(stop.ThreadID)
	if err != nil {
		s.log.Warn("stop on unparseable thread", zap.Error(err))
	}

	s.mu.Lock()
	if s.state == StateEnded || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.handles.clear()
	s.mu.Unlock()

	s.sendEvent("stopped", dap.StoppedEventBody{Reason: reason, ThreadID: threadID, AllThreadsStopped: true})
}

// end moves the session to its terminal state and releases waiters.
func (s *Session) end() {
	s.mu.Lock()
	s.state = StateEnded
	s.handles.clear()
	s.releaseLocalsLocked()
	s.mu.Unlock()
	s.endedOnce.Do(func() { close(s.ended) })
}

// armLocalsLocked marks the locals of the next stop as not yet fetched.
func (s *Session) armLocalsLocked() {
	if s.localsPending == nil {
		s.localsPending = make(chan struct{})
	}
}

// releaseLocalsLocked lets evaluations waiting for locals proceed.
func (s *Session) releaseLocalsLocked() {
	if s.localsPending != nil {
		close(s.localsPending)
		s.localsPending = nil
	}
}

func (s *Session) display() DisplayOptions {
	if s.opts.Display == nil {
		return DisplayOptions{}
	}
	return s.opts.Display()
}

// Agent lines are 1-based.
func (s *Session) toClientLineLocked(line int) int {
	if s.linesStartAt1 {
		return line
	}
	return line - 1
}

func (s *Session) toAgentLineLocked(line int) int {
	if s.linesStartAt1 {
		return line
	}
	return line + 1
}

func (s *Session) respond(req *dap.Request, body any) {
	if err := s.out.Respond(req, body); err != nil {
		s.log.Debug("respond failed", zap.String("command", req.Command), zap.Error(err))
	}
}

func (s *Session) fail(req *dap.Request, message string) {
	if err := s.out.Fail(req, message); err != nil {
		s.log.Debug("fail response failed", zap.String("command", req.Command), zap.Error(err))
	}
}

func (s *Session) sendEvent(event string, body any) {
	if err := s.out.SendEvent(event, body); err != nil {
		s.log.Debug("send event failed", zap.String("event", event), zap.Error(err))
	}
}

// info shows a message in the client's console.
func (s *Session) info(msg string) {
	s.log.Info(msg)
	s.sendEvent("output", dap.OutputEventBody{Category: "console", Output: msg + "\n"})
}

// warn shows a warning in the client's console.
func (s *Session) warn(msg string) {
	s.log.Warn(msg)
	s.sendEvent("output", dap.OutputEventBody{Category: "console", Output: "Warning: " + msg + "\n"})
}
