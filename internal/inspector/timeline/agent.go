// Package timeline records nested begin/end activity records for the
// frontend's timeline panel.
//
// An Agent belongs to exactly one recording and carries the epoch it was
// created with. Instrumentation cookies capture that epoch so a did* hook can
// tell whether the agent it is about to close a record on is still the one
// that opened it.
package timeline

import (
	"time"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// RecordType identifies the activity a record describes.
type RecordType int

const (
	EventDispatch RecordType = iota
	Layout
	RecalculateStyles
	Paint
	ParseHTML
	TimerInstall
	TimerRemove
	TimerFire
	XHRReadyStateChange
	XHRLoad
	EvaluateScript
	Mark
	ResourceSendRequest
	ResourceReceiveResponse
	ResourceFinish
	FunctionCall
	ResourceReceiveData
	GCEvent
	MarkDOMContent
	MarkLoad
	ScheduleResourceRequest
)

// String returns a string representation of the record type.
func (t RecordType) String() string {
	if t < 0 || int(t) >= len(recordTypeNames) {
		return "unknown"
	}
	return recordTypeNames[t]
}

var recordTypeNames = [...]string{
	"EventDispatch",
	"Layout",
	"RecalculateStyles",
	"Paint",
	"ParseHTML",
	"TimerInstall",
	"TimerRemove",
	"TimerFire",
	"XHRReadyStateChange",
	"XHRLoad",
	"EvaluateScript",
	"Mark",
	"ResourceSendRequest",
	"ResourceReceiveResponse",
	"ResourceFinish",
	"FunctionCall",
	"ResourceReceiveData",
	"GCEvent",
	"MarkDOMContent",
	"MarkLoad",
	"ScheduleResourceRequest",
}

// EventAddRecord is the event carrying a finished top-level record.
const EventAddRecord = "addRecordToTimeline"

// EmitFunc delivers an event to the frontend.
type EmitFunc func(method string, params *value.Object)

type record struct {
	kind     RecordType
	obj      *value.Object
	children *value.Array
}

// Agent builds timeline records for one recording.
type Agent struct {
	epoch uint64
	emit  EmitFunc
	now   func() time.Time
	stack []*record
}

// NewAgent creates an agent for the recording identified by epoch. A nil
// clock selects time.Now.
func NewAgent(epoch uint64, emit EmitFunc, now func() time.Time) *Agent {
	if now == nil {
		now = time.Now
	}
	if emit == nil {
		emit = func(string, *value.Object) {}
	}
	return &Agent{epoch: epoch, emit: emit, now: now}
}

// Epoch returns the epoch the agent was created with.
func (a *Agent) Epoch() uint64 {
	if a == nil {
		return 0
	}
	return a.epoch
}

// Depth returns the number of open records.
func (a *Agent) Depth() int { return len(a.stack) }

func (a *Agent) timestamp() float64 {
	return float64(a.now().UnixNano()) / float64(time.Millisecond)
}

func (a *Agent) newRecord(t RecordType, data *value.Object) *value.Object {
	if data == nil {
		data = value.NewObject()
	}
	obj := value.NewObject()
	obj.SetNumber("startTime", a.timestamp())
	obj.Set("data", data)
	obj.SetInt("type", int(t))
	return obj
}

// Begin opens a record. Records opened while another is open become its
// children.
func (a *Agent) Begin(t RecordType, data *value.Object) {
	a.stack = append(a.stack, &record{
		kind:     t,
		obj:      a.newRecord(t, data),
		children: value.NewArray(),
	})
}

// End closes the innermost open record if it is of type t. A mismatched End
// is ignored.
func (a *Agent) End(t RecordType) {
	if len(a.stack) == 0 {
		return
	}
	top := a.stack[len(a.stack)-1]
	if top.kind != t {
		return
	}
	a.stack = a.stack[:len(a.stack)-1]
	top.obj.Set("children", top.children)
	top.obj.SetNumber("endTime", a.timestamp())
	a.add(top.obj)
}

// Amend sets key in the data of the innermost open record if it is of type t.
func (a *Agent) Amend(t RecordType, key string, v value.Value) {
	if len(a.stack) == 0 || a.stack[len(a.stack)-1].kind != t {
		return
	}
	data, ok := a.stack[len(a.stack)-1].obj.GetObject("data")
	if !ok {
		return
	}
	data.Set(key, v)
}

// Instant adds a record with no duration.
func (a *Agent) Instant(t RecordType, data *value.Object) {
	a.add(a.newRecord(t, data))
}

func (a *Agent) add(obj *value.Object) {
	if len(a.stack) > 0 {
		a.stack[len(a.stack)-1].children.Push(obj)
		return
	}
	params := value.NewObject()
	params.Set("record", obj)
	a.emit(EventAddRecord, params)
}
