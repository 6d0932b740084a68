// Package adapter is the core of the debug adapter.
//
// A Session answers Debug Adapter Protocol requests by driving a
// debugger.Debugger. It owns the handle namespace through which the client
// expands runtime values, keeps client breakpoints in step with the agent,
// presents virtualized stack traces, and serializes expression evaluations
// so that at most one of them talks to the agent at a time.
//
// All session state is guarded by one mutex. Agent calls are made without
// holding it.
package adapter
