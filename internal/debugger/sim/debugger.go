package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
)

// ErrInjected is returned by operations configured to fail with FailOn and
// no explicit error.
var ErrInjected = errors.New("injected failure")

type bpKey struct {
	path string
	line int
}

// Debugger is an in-memory debugger.Debugger.
type Debugger struct {
	sc *Scenario

	mu        sync.Mutex
	status    debugger.Status
	running   bool
	loaded    map[string]bool
	bps       map[bpKey]*debugger.Breakpoint
	handler   func(debugger.Event)
	strings   int
	stops     []Stop
	calls     map[string]int
	active    int
	maxActive int
	failures  map[string]error
	latency   time.Duration
	stopped   bool
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithLatency delays every remote operation by d.
func WithLatency(d time.Duration) Option {
	return func(s *Debugger) { s.latency = d }
}

// FailOn makes the named operation fail with err, or ErrInjected when nil.
func FailOn(op string, err error) Option {
	if err == nil {
		err = ErrInjected
	}
	return func(s *Debugger) { s.failures[op] = err }
}

// New returns a debugger serving sc.
func New(sc *Scenario, opts ...Option) *Debugger {
	if sc.BreakpointState == "" {
		sc.BreakpointState = debugger.BreakpointSet
	}
	d := &Debugger{
		sc:       sc,
		status:   debugger.StatusDisconnected,
		loaded:   make(map[string]bool),
		bps:      make(map[bpKey]*debugger.Breakpoint),
		stops:    append([]Stop(nil), sc.Stops...),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// call records an operation for the concurrency counters, applies latency
// and injected failures. The returned func must be called when the
// operation ends.
func (d *Debugger) call(ctx context.Context, op string) (func(), error) {
	d.mu.Lock()
	d.calls[op]++
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	err := d.failures[op]
	latency := d.latency
	d.mu.Unlock()

	done := func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			done()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return done, nil
}

// Calls returns how often op was called.
func (d *Debugger) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// MaxConcurrent returns the largest number of operations that were in
// progress at the same time.
func (d *Debugger) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Running reports whether the target was resumed and has not stopped since.
func (d *Debugger) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// ForceStopped reports whether ForceStop was called.
func (d *Debugger) ForceStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Breakpoints returns the agent-side breakpoints.
func (d *Debugger) Breakpoints() []debugger.Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]debugger.Breakpoint, 0, len(d.bps))
	for _, bp := range d.bps {
		out = append(out, *bp)
	}
	return out
}

func (d *Debugger) emit(ev debugger.Event) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Start implements debugger.Debugger.
func (d *Debugger) Start(ctx context.Context, target debugger.Target) error {
	done, err := d.call(ctx, "Start")
	if err != nil {
		return err
	}
	defer done()

	if target.PackageName != d.sc.PackageName {
		return fmt.Errorf("start %s: package not installed", target.PackageName)
	}

	d.mu.Lock()
	d.status = debugger.StatusConnected
	var changed []debugger.Breakpoint
	for _, bp := range d.bps {
		if bp.State == debugger.BreakpointNotLoaded && d.sc.BreakpointState != debugger.BreakpointNotLoaded {
			bp.State = d.sc.BreakpointState
			changed = append(changed, *bp)
		}
	}
	d.mu.Unlock()

	if len(changed) > 0 {
		d.emit(debugger.BreakpointStateEvent{Breakpoints: changed})
	}
	return nil
}

func (d *Debugger) frames(threadID string) ([]FrameSpec, error) {
	id, err := debugger.ParseThreadID(threadID)
	if err != nil {
		return nil, err
	}
	th, ok := d.sc.thread(id)
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, debugger.ErrUnknownThread)
	}
	return th.Frames, nil
}

// Frames implements debugger.Debugger.
func (d *Debugger) Frames(ctx context.Context, threadID string) ([]debugger.Frame, error) {
	done, err := d.call(ctx, "Frames")
	if err != nil {
		return nil, err
	}
	defer done()

	specs, err := d.frames(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]debugger.Frame, len(specs))
	for i, f := range specs {
		out[i] = debugger.Frame{
			ThreadID: threadID,
			Index:    i,
			Method:   f.Method,
			Location: debugger.Location{Index: f.Index},
		}
	}
	return out, nil
}

// EnsureMethodLines implements debugger.Debugger.
func (d *Debugger) EnsureMethodLines(ctx context.Context, m debugger.Method) error {
	done, err := d.call(ctx, "EnsureMethodLines")
	if err != nil {
		return err
	}
	defer done()

	d.mu.Lock()
	d.loaded[m.ID] = true
	d.mu.Unlock()
	return nil
}

// SourceLocation implements debugger.Debugger. Line tables must have been
// loaded with EnsureMethodLines.
func (d *Debugger) SourceLocation(m debugger.Method, index int64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded[m.ID] {
		return 0, false
	}
	line, ok := d.sc.Lines[m.ID][index]
	return line, ok
}

// Locals implements debugger.Debugger.
func (d *Debugger) Locals(ctx context.Context, threadID string, frame debugger.Frame) ([]debugger.Value, error) {
	done, err := d.call(ctx, "Locals")
	if err != nil {
		return nil, err
	}
	defer done()

	specs, err := d.frames(threadID)
	if err != nil {
		return nil, err
	}
	if frame.Index < 0 || frame.Index >= len(specs) {
		return nil, fmt.Errorf("frame %d of thread %s not found", frame.Index, threadID)
	}
	locals := append([]debugger.Value(nil), specs[frame.Index].Locals...)
	for i := range locals {
		locals[i].Kind = debugger.KindLocal
	}
	return locals, nil
}

// FieldValues implements debugger.Debugger.
func (d *Debugger) FieldValues(ctx context.Context, obj debugger.Value) ([]debugger.Value, error) {
	done, err := d.call(ctx, "FieldValues")
	if err != nil {
		return nil, err
	}
	defer done()

	o, ok := d.sc.Objects[obj.Raw]
	if !ok {
		return nil, fmt.Errorf("fields of %s: %w", obj.Raw, debugger.ErrUnknownObject)
	}
	return append([]debugger.Value(nil), o.Fields...), nil
}

// ArrayValues implements debugger.Debugger.
func (d *Debugger) ArrayValues(ctx context.Context, arr debugger.Value, start, count int) ([]debugger.Value, error) {
	done, err := d.call(ctx, "ArrayValues")
	if err != nil {
		return nil, err
	}
	defer done()

	els, ok := d.sc.Arrays[arr.Raw]
	if !ok {
		return nil, fmt.Errorf("elements of %s: %w", arr.Raw, debugger.ErrUnknownObject)
	}
	if start < 0 || count < 0 || start+count > len(els) {
		return nil, fmt.Errorf("elements %d..%d of %s out of range", start, start+count, arr.Raw)
	}
	return append([]debugger.Value(nil), els[start:start+count]...), nil
}

// SuperType implements debugger.Debugger.
func (d *Debugger) SuperType(ctx context.Context, obj debugger.Value) (jtype.Type, bool, error) {
	done, err := d.call(ctx, "SuperType")
	if err != nil {
		return jtype.Type{}, false, err
	}
	defer done()

	o, ok := d.sc.Objects[obj.Raw]
	if !ok {
		return jtype.Type{}, false, fmt.Errorf("super of %s: %w", obj.Raw, debugger.ErrUnknownObject)
	}
	return o.Super, o.Super.Signature != "", nil
}

// StringChars implements debugger.Debugger.
func (d *Debugger) StringChars(ctx context.Context, str debugger.Value) (string, error) {
	done, err := d.call(ctx, "StringChars")
	if err != nil {
		return "", err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sc.Strings[str.Raw]; ok {
		return s, nil
	}
	return str.String, nil
}

// CreateString implements debugger.Debugger.
func (d *Debugger) CreateString(ctx context.Context, text string) (debugger.Value, error) {
	done, err := d.call(ctx, "CreateString")
	if err != nil {
		return debugger.Value{}, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.strings++
	id := fmt.Sprintf("%016x", 0x7f000000+d.strings)
	if d.sc.Strings == nil {
		d.sc.Strings = make(map[string]string)
	}
	d.sc.Strings[id] = text
	return debugger.Value{
		Kind:   debugger.KindString,
		Type:   jtype.String,
		Raw:    id,
		String: text,
		Valid:  true,
	}, nil
}

// SetBreakpoint implements debugger.Debugger. Breakpoints created before
// Start stay not-loaded until the target connects.
func (d *Debugger) SetBreakpoint(ctx context.Context, relPath string, line int) (debugger.Breakpoint, error) {
	done, err := d.call(ctx, "SetBreakpoint")
	if err != nil {
		return debugger.Breakpoint{}, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	key := bpKey{relPath, line}
	if bp, ok := d.bps[key]; ok {
		return *bp, nil
	}
	state := debugger.BreakpointNotLoaded
	if d.status == debugger.StatusConnected {
		state = d.sc.BreakpointState
	}
	bp := &debugger.Breakpoint{RelPath: relPath, Line: line, State: state}
	d.bps[key] = bp
	return *bp, nil
}

// ClearBreakpoints implements debugger.Debugger.
func (d *Debugger) ClearBreakpoints(ctx context.Context, remove func(debugger.Breakpoint) bool) error {
	done, err := d.call(ctx, "ClearBreakpoints")
	if err != nil {
		return err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	for key, bp := range d.bps {
		if remove(*bp) {
			delete(d.bps, key)
		}
	}
	return nil
}

// Resume implements debugger.Debugger. When the scenario has stops left,
// the next one is played back after the resume returns.
func (d *Debugger) Resume(ctx context.Context) error {
	done, err := d.call(ctx, "Resume")
	if err != nil {
		return err
	}
	defer done()

	d.mu.Lock()
	if d.status != debugger.StatusConnected {
		d.mu.Unlock()
		return debugger.ErrNotConnected
	}
	d.running = true
	var next *Stop
	if len(d.stops) > 0 {
		next = &d.stops[0]
		d.stops = d.stops[1:]
	}
	latency := d.latency
	d.mu.Unlock()

	if next != nil {
		thread := next.Thread
		time.AfterFunc(latency+10*time.Millisecond, func() {
			_ = d.HitBreakpoint(thread)
		})
	}
	return nil
}

// Step implements debugger.Debugger. The step completes when CompleteStep
// is called.
func (d *Debugger) Step(ctx context.Context, kind debugger.StepKind, threadID string) error {
	done, err := d.call(ctx, "Step")
	if err != nil {
		return err
	}
	defer done()

	if _, err := d.frames(threadID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != debugger.StatusConnected {
		return debugger.ErrNotConnected
	}
	d.running = true
	return nil
}

// AllThreads implements debugger.Debugger.
func (d *Debugger) AllThreads(ctx context.Context) ([]string, error) {
	done, err := d.call(ctx, "AllThreads")
	if err != nil {
		return nil, err
	}
	defer done()

	ids := make([]string, len(d.sc.Threads))
	for i, th := range d.sc.Threads {
		ids[i] = debugger.FormatThreadID(th.ID)
	}
	return ids, nil
}

// Status implements debugger.Debugger.
func (d *Debugger) Status() debugger.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// ForceStop implements debugger.Debugger.
func (d *Debugger) ForceStop(ctx context.Context) error {
	done, err := d.call(ctx, "ForceStop")
	if err != nil {
		return err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.running = false
	return nil
}

// Disconnect implements debugger.Debugger.
func (d *Debugger) Disconnect(ctx context.Context) (debugger.Status, error) {
	done, err := d.call(ctx, "Disconnect")
	if err != nil {
		return d.Status(), err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.status
	d.status = debugger.StatusDisconnected
	d.running = false
	return prev, nil
}

// OnEvent implements debugger.Debugger.
func (d *Debugger) OnEvent(handler func(debugger.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

func (d *Debugger) stopAt(threadID int) (debugger.StopLocation, error) {
	th, ok := d.sc.thread(threadID)
	if !ok || len(th.Frames) == 0 {
		return debugger.StopLocation{}, fmt.Errorf("thread %d: %w", threadID, debugger.ErrUnknownThread)
	}
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return debugger.StopLocation{
		ThreadID: debugger.FormatThreadID(threadID),
		Method:   th.Frames[0].Method,
		Location: debugger.Location{Index: th.Frames[0].Index},
	}, nil
}

// HitBreakpoint stops threadID at its innermost frame and emits a
// breakpoint hit.
func (d *Debugger) HitBreakpoint(threadID int) error {
	stop, err := d.stopAt(threadID)
	if err != nil {
		return err
	}
	d.emit(debugger.BreakpointHitEvent{Stop: stop})
	return nil
}

// CompleteStep stops threadID and emits a step event.
func (d *Debugger) CompleteStep(threadID int) error {
	stop, err := d.stopAt(threadID)
	if err != nil {
		return err
	}
	d.emit(debugger.StepEvent{Stop: stop})
	return nil
}

// ChangeBreakpointState moves a breakpoint to state and emits the change.
func (d *Debugger) ChangeBreakpointState(relPath string, line int, state debugger.BreakpointState) error {
	d.mu.Lock()
	bp, ok := d.bps[bpKey{relPath, line}]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("no breakpoint at %s:%d", relPath, line)
	}
	bp.State = state
	changed := *bp
	d.mu.Unlock()

	d.emit(debugger.BreakpointStateEvent{Breakpoints: []debugger.Breakpoint{changed}})
	return nil
}

// Drop ends the connection as if the device went away.
func (d *Debugger) Drop() {
	d.mu.Lock()
	d.status = debugger.StatusDisconnected
	d.running = false
	d.mu.Unlock()
	d.emit(debugger.DisconnectEvent{})
}

var _ debugger.Debugger = (*Debugger)(nil)
