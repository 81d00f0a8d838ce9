package model

import (
	"fmt"
	"time"
)

// EventType tags an event as a function entry or exit. The set is open:
// decoded structured traces may carry values outside the two known tags.
type EventType int32

const (
	FunctionExit  EventType = 0
	FunctionEntry EventType = 1
)

func (t EventType) String() string {
	switch t {
	case FunctionExit:
		return "FUNCTION_EXIT"
	case FunctionEntry:
		return "FUNCTION_ENTRY"
	default:
		return fmt.Sprintf("EventType(%d)", int32(t))
	}
}

const nanosPerSecond = 1_000_000_000

// Timestamp is a wall-clock instant split into whole seconds since the Unix
// epoch and a nanosecond remainder in [0, 1e9).
type Timestamp struct {
	Seconds int64 `json:"seconds" yaml:"seconds"`
	Nanos   int32 `json:"nanos" yaml:"nanos"`
}

// TimestampFromNanoseconds splits ns using floor division, so instants
// before the epoch still get a non-negative remainder.
func TimestampFromNanoseconds(ns int64) Timestamp {
	sec := ns / nanosPerSecond
	rem := ns % nanosPerSecond
	if rem < 0 {
		sec--
		rem += nanosPerSecond
	}
	return Timestamp{Seconds: sec, Nanos: int32(rem)}
}

// TimestampFromTime converts t to seconds and nanoseconds since the epoch.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns ts as a time.Time in the local zone.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos))
}

// Before orders by seconds, then nanos.
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.Seconds != other.Seconds {
		return ts.Seconds < other.Seconds
	}
	return ts.Nanos < other.Nanos
}

// Event is one function entry or exit in the wall-clock domain.
type Event struct {
	SessionID  string    `json:"sessionId" yaml:"session_id"`
	ProcessID  string    `json:"processId" yaml:"process_id"`
	ThreadID   string    `json:"threadId" yaml:"thread_id"`
	FunctionID string    `json:"functionId" yaml:"function_id"`
	Type       EventType `json:"type" yaml:"type"`
	Timestamp  Timestamp `json:"timestamp" yaml:"timestamp"`
}

// FunctionInfo is the debug metadata recorded for one instrumented function.
// Line is 1-based; values below 1 mean unknown. ModuleID names the module
// whose function map described the function, when known.
type FunctionInfo struct {
	ModuleID      string `json:"moduleId,omitempty" yaml:"module_id,omitempty"`
	LinkageName   string `json:"linkageName" yaml:"linkage_name"`
	DemangledName string `json:"demangledName" yaml:"demangled_name"`
	FileName      string `json:"fileName" yaml:"file_name"`
	Directory     string `json:"directory" yaml:"directory"`
	Line          int32  `json:"line" yaml:"line"`
	Instrumented  bool   `json:"instrumented" yaml:"instrumented"`
}

// FunctionMap is the per-module function table emitted at compile time.
type FunctionMap struct {
	ModuleID  string                  `json:"moduleId" yaml:"module_id"`
	Functions map[string]FunctionInfo `json:"functionMap" yaml:"function_map"`
	CreatedAt Timestamp               `json:"createdAt" yaml:"created_at"`
}

// Trace is the structured trace: chronologically ordered events, the sorted
// set of contributing modules, and the merged function table.
type Trace struct {
	Events    []Event                 `json:"events" yaml:"events"`
	Modules   []string                `json:"modules" yaml:"modules"`
	Functions map[string]FunctionInfo `json:"functionMap" yaml:"function_map"`
	CreatedAt Timestamp               `json:"createdAt" yaml:"created_at"`
}

// Lookup returns the function info for id, if any.
func (t *Trace) Lookup(id string) (FunctionInfo, bool) {
	info, ok := t.Functions[id]
	return info, ok
}
