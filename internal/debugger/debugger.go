// Package debugger defines the contract of the remote debugging agent.
//
// The agent runs next to the target process on the device. This package only
// describes the operations the adapter core calls and the events it consumes;
// the wire protocol that implements them lives elsewhere. Identifiers
// exchanged with the agent are fixed-width hexadecimal strings, and 64-bit
// integer values cross this boundary as hexadecimal text.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dshills/droidbug/internal/jtype"
)

var (
	// ErrNotConnected indicates the agent is not attached to a target.
	ErrNotConnected = errors.New("debugger not connected")

	// ErrUnknownThread indicates a thread id the agent does not know.
	ErrUnknownThread = errors.New("unknown thread")

	// ErrUnknownObject indicates an object reference the agent does not know.
	ErrUnknownObject = errors.New("unknown object")
)

// Debugger is the set of remote operations the adapter core drives.
// Calls block until the agent answers or ctx is done.
type Debugger interface {
	// Start launches the target and attaches to it, leaving it suspended.
	Start(ctx context.Context, target Target) error

	// Frames returns the stack of a suspended thread, innermost first.
	Frames(ctx context.Context, threadID string) ([]Frame, error)

	// EnsureMethodLines loads the line table of m.
	EnsureMethodLines(ctx context.Context, m Method) error

	// SourceLocation maps a code index within m to a source line.
	// It reports false for synthetic code that has no line.
	SourceLocation(m Method, index int64) (line int, ok bool)

	// Locals returns the local variables of a frame.
	Locals(ctx context.Context, threadID string, frame Frame) ([]Value, error)

	// FieldValues returns the fields of an object, typed by obj.Type.
	FieldValues(ctx context.Context, obj Value) ([]Value, error)

	// ArrayValues returns count elements of arr starting at start.
	ArrayValues(ctx context.Context, arr Value, start, count int) ([]Value, error)

	// SuperType returns the direct supertype of obj's type.
	// ok is false for types without a supertype.
	SuperType(ctx context.Context, obj Value) (t jtype.Type, ok bool, err error)

	// StringChars returns the full contents of a string value.
	StringChars(ctx context.Context, str Value) (string, error)

	// CreateString creates a string instance in the target.
	CreateString(ctx context.Context, text string) (Value, error)

	// SetBreakpoint creates, or returns the existing, breakpoint at a
	// source-root-relative path and line.
	SetBreakpoint(ctx context.Context, relPath string, line int) (Breakpoint, error)

	// ClearBreakpoints removes every breakpoint for which remove reports true.
	ClearBreakpoints(ctx context.Context, remove func(Breakpoint) bool) error

	// Resume resumes all threads.
	Resume(ctx context.Context) error

	// Step starts a step of the given kind on a thread.
	Step(ctx context.Context, kind StepKind, threadID string) error

	// AllThreads returns the ids of all live threads.
	AllThreads(ctx context.Context) ([]string, error)

	// Status reports the connection state.
	Status() Status

	// ForceStop terminates the target application.
	ForceStop(ctx context.Context) error

	// Disconnect detaches from the target. It returns the status the agent
	// was in before the call.
	Disconnect(ctx context.Context) (Status, error)

	// OnEvent registers the handler for asynchronous agent events.
	OnEvent(handler func(Event))
}

// Target identifies what Start launches.
type Target struct {
	// PackageName is the application package.
	PackageName string

	// Activity is the component to launch.
	Activity string

	// DeviceSerial selects the device.
	DeviceSerial string

	// Packages are the dotted source package names known to the adapter.
	Packages []string
}

// Status is the agent connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// StepKind selects a step operation.
type StepKind string

const (
	StepOver StepKind = "over"
	StepIn   StepKind = "in"
	StepOut  StepKind = "out"
)

// Class is a loaded class.
type Class struct {
	Name       string     `yaml:"name"`
	Type       jtype.Type `yaml:"type"`
	SourceFile string     `yaml:"sourceFile"`
}

// Method is a method of a loaded class.
type Method struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Owner Class  `yaml:"owner"`
}

// Location is a code position within a method.
type Location struct {
	Index int64 `yaml:"index"`
}

// Frame is one stack frame of a suspended thread.
type Frame struct {
	ThreadID string
	Index    int
	Method   Method
	Location Location
}

// ValueKind tells where a value came from.
type ValueKind int

const (
	KindLocal ValueKind = iota
	KindField
	KindArrayElement
	KindLiteral
	KindSuper
	KindString
)

// Value is a runtime value as reported by the agent.
type Value struct {
	Kind ValueKind  `yaml:"-"`
	Name string     `yaml:"name"`
	Type jtype.Type `yaml:"type"`

	// Null is set for null references. Numeric literals use it to mark zero.
	Null bool `yaml:"null"`

	// Raw is the value text: decimal for byte/short/int, 16 hex digits for
	// long, the character itself for char, true/false for boolean, and the
	// hex object id for references.
	Raw string `yaml:"raw"`

	// String holds string contents, possibly truncated.
	String string `yaml:"string"`

	// BigLen is the full length of a truncated string, 0 when String is complete.
	BigLen int `yaml:"bigLen"`

	// ArrayLen is the element count of arrays.
	ArrayLen int `yaml:"arrayLen"`

	// Valid is false for values the agent could not read.
	Valid bool `yaml:"valid"`
}

// BreakpointState is the agent-side state of a breakpoint.
type BreakpointState string

const (
	BreakpointNotLoaded BreakpointState = "notloaded"
	BreakpointSet       BreakpointState = "set"
	BreakpointEnabled   BreakpointState = "enabled"
	BreakpointRemoved   BreakpointState = "removed"
)

// Verified reports whether the state means the target will stop there.
func (s BreakpointState) Verified() bool {
	return s == BreakpointSet || s == BreakpointEnabled
}

// Breakpoint is the agent's record of a breakpoint.
type Breakpoint struct {
	RelPath string
	Line    int
	State   BreakpointState
}

// StopLocation describes where a thread stopped.
type StopLocation struct {
	ThreadID string
	Method   Method
	Location Location
}

// Event is an asynchronous notification from the agent.
type Event interface {
	debuggerEvent()
}

// BreakpointStateEvent reports state changes of one or more breakpoints.
type BreakpointStateEvent struct {
	Breakpoints []Breakpoint
}

// BreakpointHitEvent reports that a thread stopped at a breakpoint.
type BreakpointHitEvent struct {
	Stop StopLocation
}

// StepEvent reports that a step completed.
type StepEvent struct {
	Stop StopLocation
}

// DisconnectEvent reports that the agent connection ended.
type DisconnectEvent struct{}

func (BreakpointStateEvent) debuggerEvent() {}
func (BreakpointHitEvent) debuggerEvent()   {}
func (StepEvent) debuggerEvent()            {}
func (DisconnectEvent) debuggerEvent()      {}

// FormatThreadID renders a client thread id as the agent's 16 hex digit form.
func FormatThreadID(id int) string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseThreadID parses an agent thread id into a client thread id.
func ParseThreadID(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse thread id %q: %w", s, err)
	}
	return int(v), nil
}
