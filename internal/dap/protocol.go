package dap

import (
	"encoding/json"
)

// Message types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// ProtocolMessage holds the fields every message carries.
type ProtocolMessage struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`
}

// Request is a client request.
type Request struct {
	ProtocolMessage
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DecodeArguments unmarshals the request arguments into v. Missing
// arguments leave v untouched.
func (r *Request) DecodeArguments(v any) error {
	if len(r.Arguments) == 0 || string(r.Arguments) == "null" {
		return nil
	}
	return json.Unmarshal(r.Arguments, v)
}

// Response answers the request with sequence number RequestSeq.
type Response struct {
	ProtocolMessage
	RequestSeq int    `json:"request_seq"`
	Success    bool   `json:"success"`
	Command    string `json:"command"`
	Message    string `json:"message,omitempty"`
	Body       any    `json:"body,omitempty"`
}

// Event is an unsolicited message to the client.
type Event struct {
	ProtocolMessage
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// Capabilities is the body of the initialize response.
type Capabilities struct {
	SupportsConfigurationDoneRequest bool `json:"supportsConfigurationDoneRequest,omitempty"`
	SupportsEvaluateForHovers        bool `json:"supportsEvaluateForHovers,omitempty"`
}

// InitializeRequestArguments describe the client. Only LinesStartAt1 changes
// adapter behavior.
type InitializeRequestArguments struct {
	ClientID        string `json:"clientID,omitempty"`
	ClientName      string `json:"clientName,omitempty"`
	AdapterID       string `json:"adapterID"`
	LinesStartAt1   *bool  `json:"linesStartAt1,omitempty"`
	ColumnsStartAt1 *bool  `json:"columnsStartAt1,omitempty"`
}

// LaunchRequestArguments are the launch.json settings of an Android launch.
type LaunchRequestArguments struct {
	NoDebug bool `json:"noDebug,omitempty"`

	// AppSrcRoot is the source root of the application.
	AppSrcRoot string `json:"appSrcRoot"`

	// APKFile is the build artifact to install.
	APKFile string `json:"apkFile"`

	// ADBPort is the port of the device bridge; 0 selects the default.
	ADBPort int `json:"adbPort,omitempty"`

	// TargetDevice is the serial of the device to use.
	TargetDevice string `json:"targetDevice,omitempty"`

	// LaunchActivity overrides the manifest's launcher activity.
	LaunchActivity string `json:"launchActivity,omitempty"`

	// StaleBuild is one of "ignore", "warn" or "stop".
	StaleBuild string `json:"staleBuild,omitempty"`
}

// SetBreakpointsArguments replace every breakpoint of one source file.
type SetBreakpointsArguments struct {
	Source         Source             `json:"source"`
	Breakpoints    []SourceBreakpoint `json:"breakpoints,omitempty"`
	Lines          []int              `json:"lines,omitempty"`
	SourceModified bool               `json:"sourceModified,omitempty"`
}

// RequestedLines returns the requested lines, preferring the deprecated
// lines field when present.
func (a *SetBreakpointsArguments) RequestedLines() []int {
	if a.Lines != nil {
		return a.Lines
	}
	lines := make([]int, len(a.Breakpoints))
	for i, bp := range a.Breakpoints {
		lines[i] = bp.Line
	}
	return lines
}

// SetBreakpointsResponseBody lists the breakpoints in request order.
type SetBreakpointsResponseBody struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// ContinueArguments name the thread to resume. The adapter always resumes
// every thread.
type ContinueArguments struct {
	ThreadID     int  `json:"threadId"`
	SingleThread bool `json:"singleThread,omitempty"`
}

type ContinueResponseBody struct {
	AllThreadsContinued bool `json:"allThreadsContinued"`
}

// StepArguments are shared by next, stepIn and stepOut.
type StepArguments struct {
	ThreadID     int    `json:"threadId"`
	SingleThread bool   `json:"singleThread,omitempty"`
	Granularity  string `json:"granularity,omitempty"`
}

// StackTraceArguments select a range of frames. Levels 0 means all.
type StackTraceArguments struct {
	ThreadID   int `json:"threadId"`
	StartFrame int `json:"startFrame,omitempty"`
	Levels     int `json:"levels,omitempty"`
}

type StackTraceResponseBody struct {
	StackFrames []StackFrame `json:"stackFrames"`
	TotalFrames int          `json:"totalFrames"`
}

type ScopesArguments struct {
	FrameID int `json:"frameId"`
}

type ScopesResponseBody struct {
	Scopes []Scope `json:"scopes"`
}

// VariablesArguments name the handle to expand.
type VariablesArguments struct {
	VariablesReference int `json:"variablesReference"`
}

type VariablesResponseBody struct {
	Variables []Variable `json:"variables"`
}

// EvaluateArguments carry an expression typed by the user or hovered in
// the editor.
type EvaluateArguments struct {
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId,omitempty"`
	Context    string `json:"context,omitempty"`
}

// EvaluateResponseBody holds the result text. VariablesReference is nonzero
// when the result can be expanded.
type EvaluateResponseBody struct {
	Result             string `json:"result"`
	VariablesReference int    `json:"variablesReference"`
}

type ThreadsResponseBody struct {
	Threads []Thread `json:"threads"`
}

type SourceArguments struct {
	Source          *Source `json:"source,omitempty"`
	SourceReference int     `json:"sourceReference"`
}

type SourceResponseBody struct {
	Content string `json:"content"`
}

type DisconnectArguments struct {
	Restart           bool `json:"restart,omitempty"`
	TerminateDebuggee bool `json:"terminateDebuggee,omitempty"`
}

// Source identifies a file by path, or by reference when the adapter
// has no path for it.
type Source struct {
	Name            string `json:"name,omitempty"`
	Path            string `json:"path,omitempty"`
	SourceReference int    `json:"sourceReference,omitempty"`
}

type SourceBreakpoint struct {
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Breakpoint is a breakpoint as reported to the client.
type Breakpoint struct {
	ID       int    `json:"id"`
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
	Line     int    `json:"line,omitempty"`

	// Order is the position of the breakpoint in the last setBreakpoints
	// request for its file.
	Order int `json:"order"`
}

type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StackFrame is one visible frame. Lines are in the client's numbering.
type StackFrame struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Source *Source `json:"source,omitempty"`
	Line   int     `json:"line"`
	Column int     `json:"column"`
}

type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

// Variable is one row of a variables response.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type"`
	VariablesReference int    `json:"variablesReference"`
}

// StoppedEventBody reports why execution stopped.
type StoppedEventBody struct {
	Reason            string `json:"reason"`
	Description       string `json:"description,omitempty"`
	ThreadID          int    `json:"threadId,omitempty"`
	AllThreadsStopped bool   `json:"allThreadsStopped,omitempty"`
}

type TerminatedEventBody struct {
	Restart bool `json:"restart,omitempty"`
}

// OutputEventBody is text for the client's debug console.
type OutputEventBody struct {
	Category string `json:"category,omitempty"`
	Output   string `json:"output"`
}

// BreakpointEventBody reports a breakpoint whose verification changed.
type BreakpointEventBody struct {
	Reason     string     `json:"reason"`
	Breakpoint Breakpoint `json:"breakpoint"`
}
