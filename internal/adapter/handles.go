package adapter

import (
	"github.com/dshills/droidbug/internal/debugger"
)

const (
	// frameIDBase separates frame ids of different threads:
	// frameID = threadID*frameIDBase + frameIndex.
	frameIDBase = 0x10000

	// firstHandle is above every frame id of threads below 0x1000. Larger
	// thread ids produce frame ids inside the handle range; allocate skips
	// ids that a frame already occupies.
	firstHandle = 0x10000000
)

// entry is what a handle refers to. The concrete types form a closed set.
type entry interface {
	isEntry()
}

// frameLocals are the local variables of a stack frame.
type frameLocals struct {
	frame debugger.Frame
}

// objectFields are the fields of an object, plus a super pseudo-field.
type objectFields struct {
	obj debugger.Value
}

// arraySlice is the element range [start, start+count) of an array.
type arraySlice struct {
	arr   debugger.Value
	start int
	count int
}

// bigString is the full text of a string the agent truncated.
type bigString struct {
	str debugger.Value
}

// primitiveView shows a primitive in alternate bases. For strings value is
// the string length.
type primitiveView struct {
	signature string
	value     string
}

func (frameLocals) isEntry()   {}
func (objectFields) isEntry()  {}
func (arraySlice) isEntry()    {}
func (bigString) isEntry()     {}
func (primitiveView) isEntry() {}

// slot holds an entry and, once fetched, its values.
type slot struct {
	entry  entry
	cached []debugger.Value
	loaded bool
}

// handleTable maps handles to entries. It is not safe for concurrent use;
// the session serializes access.
type handleTable struct {
	next  int
	slots map[int]*slot

	// gen counts clears so callers can tell whether a table they read from
	// before a remote call is still current.
	gen int
}

func newHandleTable() *handleTable {
	return &handleTable{
		next:  firstHandle,
		slots: make(map[int]*slot),
	}
}

// allocate stores e under a fresh handle. Handles increase monotonically and
// are not reused after clear.
func (t *handleTable) allocate(e entry) int {
	t.next++
	for t.slots[t.next] != nil {
		t.next++
	}
	t.slots[t.next] = &slot{entry: e}
	return t.next
}

// bind stores e under a caller-chosen id, replacing what was there.
func (t *handleTable) bind(id int, e entry) {
	t.slots[id] = &slot{entry: e}
}

// resolve returns the slot for id.
func (t *handleTable) resolve(id int) (*slot, bool) {
	s, ok := t.slots[id]
	return s, ok
}

// clear drops every entry.
func (t *handleTable) clear() {
	t.slots = make(map[int]*slot)
	t.gen++
}

func (t *handleTable) len() int { return len(t.slots) }

// frameID returns the client id of a frame.
func frameID(threadID, index int) int {
	return threadID*frameIDBase + index
}
