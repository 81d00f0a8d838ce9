// Package chrome projects a structured trace into the Chrome Trace Event
// format (the JSON object form with traceEvents, displayTimeUnit, and
// otherData) consumed by chrome://tracing and Perfetto.
package chrome

import (
	"errors"
	"fmt"

	"spoor/internal/model"
)

// Phase letters fixed by the Trace Event format.
const (
	PhaseBegin = "B"
	PhaseEnd   = "E"
)

// DisplayTimeUnit is emitted on every projected trace.
const DisplayTimeUnit = "ns"

// CreatedAtLayout renders otherData.createdAt in the local time zone.
const CreatedAtLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// ErrUnknownEventType is matched by *UnknownEventTypeError.
var ErrUnknownEventType = errors.New("unknown event type")

// UnknownEventTypeError reports an event whose type is neither entry nor
// exit.
type UnknownEventTypeError struct {
	Value model.EventType
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("chrome: unknown event type '%d'", int32(e.Value))
}

func (e *UnknownEventTypeError) Is(target error) bool { return target == ErrUnknownEventType }

// Args carries per-event metadata. Every field but FunctionID is omitted
// when unknown.
type Args struct {
	FunctionID  string `json:"functionId" yaml:"functionId"`
	FileName    string `json:"fileName,omitempty" yaml:"fileName,omitempty"`
	Directory   string `json:"directory,omitempty" yaml:"directory,omitempty"`
	Line        *int32 `json:"line,omitempty" yaml:"line,omitempty"`
	LinkageName string `json:"linkageName,omitempty" yaml:"linkageName,omitempty"`
}

// Event is one duration-begin or duration-end record.
type Event struct {
	Name string  `json:"name" yaml:"name"`
	Ph   string  `json:"ph" yaml:"ph"`
	Ts   float64 `json:"ts" yaml:"ts"`
	Pid  string  `json:"pid" yaml:"pid"`
	Tid  string  `json:"tid" yaml:"tid"`
	Args Args    `json:"args" yaml:"args"`
}

// OtherData is free-form trace metadata shown by the viewer.
type OtherData struct {
	CreatedAt string   `json:"createdAt" yaml:"createdAt"`
	Modules   []string `json:"modules" yaml:"modules"`
}

// Trace is the JSON object format of the Chrome trace viewer.
type Trace struct {
	TraceEvents     []Event   `json:"traceEvents" yaml:"traceEvents"`
	DisplayTimeUnit string    `json:"displayTimeUnit" yaml:"displayTimeUnit"`
	OtherData       OtherData `json:"otherData" yaml:"otherData"`
}

// ProjectEvent maps one event. info may be nil when the function id has no
// metadata.
func ProjectEvent(e model.Event, info *model.FunctionInfo) (Event, error) {
	var ph string
	switch e.Type {
	case model.FunctionEntry:
		ph = PhaseBegin
	case model.FunctionExit:
		ph = PhaseEnd
	default:
		return Event{}, &UnknownEventTypeError{Value: e.Type}
	}

	name := e.FunctionID
	args := Args{FunctionID: e.FunctionID}
	if info != nil {
		if info.DemangledName != "" {
			name = info.DemangledName
		}
		args.FileName = info.FileName
		args.Directory = info.Directory
		args.LinkageName = info.LinkageName
		if info.Line >= 1 {
			line := info.Line
			args.Line = &line
		}
	}

	return Event{
		Name: name,
		Ph:   ph,
		Ts:   1_000_000.0*float64(e.Timestamp.Seconds) + float64(e.Timestamp.Nanos)/1000.0,
		Pid:  e.ProcessID,
		Tid:  e.ThreadID,
		Args: args,
	}, nil
}

// ProjectTrace maps every event of t, looking up function info by id.
func ProjectTrace(t *model.Trace) (*Trace, error) {
	events := make([]Event, 0, len(t.Events))
	for _, e := range t.Events {
		var info *model.FunctionInfo
		if fi, ok := t.Lookup(e.FunctionID); ok {
			info = &fi
		}
		ce, err := ProjectEvent(e, info)
		if err != nil {
			return nil, err
		}
		events = append(events, ce)
	}

	modules := t.Modules
	if modules == nil {
		modules = []string{}
	}
	return &Trace{
		TraceEvents:     events,
		DisplayTimeUnit: DisplayTimeUnit,
		OtherData: OtherData{
			CreatedAt: t.CreatedAt.Time().Local().Format(CreatedAtLayout),
			Modules:   modules,
		},
	}, nil
}
