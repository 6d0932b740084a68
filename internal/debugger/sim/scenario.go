// Package sim provides an in-memory debugging target.
//
// A Scenario describes threads, frames, objects, arrays and strings of a
// suspended application. The Debugger serves it through the debugger
// contract and lets callers inject agent events, which makes it usable both
// in tests and as a demo backend for the CLI.
package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
	"github.com/dshills/droidbug/internal/source"
)

// Scenario is the static content of a simulated target.
type Scenario struct {
	PackageName string           `yaml:"packageName"`
	Activity    string           `yaml:"activity"`
	Device      string           `yaml:"device"`
	Installed   bool             `yaml:"installed"`
	Stale       bool             `yaml:"stale"`
	Packages    []source.Package `yaml:"packages"`
	Threads     []Thread         `yaml:"threads"`

	// Lines maps method id to code index to source line.
	Lines map[string]map[int64]int `yaml:"lines"`

	Objects map[string]Object           `yaml:"objects"`
	Arrays  map[string][]debugger.Value `yaml:"arrays"`
	Strings map[string]string           `yaml:"strings"`

	// BreakpointState is the state breakpoints reach once the target is
	// connected. Defaults to "set".
	BreakpointState debugger.BreakpointState `yaml:"breakpointState"`

	// Stops are played back one per resume: each resume is followed by a
	// breakpoint hit on the named thread.
	Stops []Stop `yaml:"stops"`
}

// Thread is a suspended thread.
type Thread struct {
	ID     int         `yaml:"id"`
	Frames []FrameSpec `yaml:"frames"`
}

// FrameSpec is one frame of a thread, innermost first.
type FrameSpec struct {
	Method debugger.Method  `yaml:"method"`
	Index  int64            `yaml:"index"`
	Locals []debugger.Value `yaml:"locals"`
}

// Object is a class instance.
type Object struct {
	Super  jtype.Type       `yaml:"super"`
	Fields []debugger.Value `yaml:"fields"`
}

// Stop names the thread that stops after a resume.
type Stop struct {
	Thread int `yaml:"thread"`
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.BreakpointState == "" {
		sc.BreakpointState = debugger.BreakpointSet
	}
	for id, obj := range sc.Objects {
		for i := range obj.Fields {
			obj.Fields[i].Kind = debugger.KindField
		}
		sc.Objects[id] = obj
	}
	for id, els := range sc.Arrays {
		for i := range els {
			els[i].Kind = debugger.KindArrayElement
			if els[i].Name == "" {
				els[i].Name = fmt.Sprintf("[%d]", i)
			}
		}
		sc.Arrays[id] = els
	}
	return &sc, nil
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

func (sc *Scenario) thread(id int) (*Thread, bool) {
	for i := range sc.Threads {
		if sc.Threads[i].ID == id {
			return &sc.Threads[i], true
		}
	}
	return nil, false
}
