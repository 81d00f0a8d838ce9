// Package perfetto projects a merged trace onto Perfetto's TracePacket
// stream, readable by ui.perfetto.dev and trace_processor.
//
// Packet order:
//
//	1. head packet: interned event names and source locations, trace config
//	2. one TrackDescriptor per (process, thread)
//	3. one ClockSnapshot
//	4. one TrackEvent per trace event, SLICE_BEGIN or SLICE_END
package perfetto

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"spoor/internal/model"
)

// TrustedPacketSequenceID tags every packet; all packets share one sequence
// so interned data applies to every track event.
const TrustedPacketSequenceID uint32 = 1

// FileExtension is the conventional extension of written traces.
const FileExtension = "perfetto"

// MaxNameLength bounds interned strings. The UI drops interned entries with
// very long strings.
const MaxNameLength = 1024

// UnknownFileName is the source file reported when a function has neither a
// file name nor a directory.
const UnknownFileName = "unknown"

// BuiltinClock mirrors perfetto.protos.BuiltinClock.
type BuiltinClock uint32

const (
	ClockRealtime  BuiltinClock = 1
	ClockMonotonic BuiltinClock = 3
	ClockBoottime  BuiltinClock = 6
)

// TrackEventType mirrors perfetto.protos.TrackEvent.Type.
type TrackEventType uint32

const (
	TypeSliceBegin TrackEventType = 1
	TypeSliceEnd   TrackEventType = 2
)

// Sequence flags of TracePacket.
const (
	SeqIncrementalStateCleared uint32 = 1
	SeqNeedsIncrementalState   uint32 = 2
)

// ErrUnknownEventType is matched by *UnknownEventTypeError.
var ErrUnknownEventType = errors.New("unknown event type")

// UnknownEventTypeError reports an event whose type is neither entry nor exit.
type UnknownEventTypeError struct {
	Value model.EventType
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("perfetto: unknown event type '%d'", int32(e.Value))
}

func (e *UnknownEventTypeError) Is(target error) bool { return target == ErrUnknownEventType }

// Trace is a perfetto.protos.Trace: a flat list of packets.
type Trace struct {
	Packets []Packet
}

// Packet is the subset of perfetto.protos.TracePacket spoor writes. At most
// one of TrackEvent, TrackDescriptor, ClockSnapshot and TraceConfig is set.
type Packet struct {
	Timestamp               uint64
	TimestampClockID        BuiltinClock
	TrustedPacketSequenceID uint32
	SequenceFlags           uint32
	PreviousPacketDropped   bool

	TrackEvent      *TrackEvent
	TrackDescriptor *TrackDescriptor
	ClockSnapshot   *ClockSnapshot
	TraceConfig     *TraceConfig
	InternedData    *InternedData
}

// TrackEvent is a slice boundary on one thread track. Names and source
// locations are interned; zero iids mean none.
type TrackEvent struct {
	Type              TrackEventType
	TrackUUID         uint64
	NameIID           uint64
	SourceLocationIID uint64
}

// TrackDescriptor declares one track. Thread is nil when the process or
// thread id is not numeric; Name carries the raw ids instead.
type TrackDescriptor struct {
	UUID   uint64
	Name   string
	Thread *ThreadDescriptor
}

type ThreadDescriptor struct {
	PID int32
	TID int32
}

type ClockSnapshot struct {
	Clocks            []Clock
	PrimaryTraceClock BuiltinClock
}

type Clock struct {
	ID        BuiltinClock
	Timestamp uint64
}

// TraceConfig carries only builtin_data_sources.primary_trace_clock.
type TraceConfig struct {
	PrimaryTraceClock BuiltinClock
}

type InternedData struct {
	EventNames      []EventName
	SourceLocations []SourceLocation
}

type EventName struct {
	IID  uint64
	Name string
}

// SourceLocation is an interned source position. LineNumber is zero when
// unknown.
type SourceLocation struct {
	IID          uint64
	FileName     string
	FunctionName string
	LineNumber   uint32
}

// track is one (process, thread) pair of the merged trace.
type track struct {
	process, thread string
}

// TrackUUID derives a stable track id from the process and thread ids.
func TrackUUID(processID, threadID string) uint64 {
	return xxhash.Sum64String(processID + "\x00" + threadID)
}

// Project converts a merged trace. Timestamps are wall-clock nanoseconds on
// the realtime clock, which is also declared the primary trace clock. A
// trace without events projects to an empty packet list.
func Project(t *model.Trace) (*Trace, error) {
	if len(t.Events) == 0 {
		return &Trace{}, nil
	}

	called := make(map[string]bool)
	var tracks []track
	seenTracks := make(map[track]bool)
	for _, e := range t.Events {
		if e.Type != model.FunctionEntry && e.Type != model.FunctionExit {
			return nil, &UnknownEventTypeError{Value: e.Type}
		}
		called[e.FunctionID] = true
		k := track{e.ProcessID, e.ThreadID}
		if !seenTracks[k] {
			seenTracks[k] = true
			tracks = append(tracks, k)
		}
	}

	ids := make([]string, 0, len(called))
	for id := range called {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// iids start at 1; 0 means "not interned".
	nameIIDs := make(map[string]uint64, len(ids))
	locationIIDs := make(map[string]uint64, len(ids))
	interned := &InternedData{}
	for i, id := range ids {
		iid := uint64(i + 1)
		nameIIDs[id] = iid
		info, ok := t.Lookup(id)
		name := functionName(id, info, ok)
		interned.EventNames = append(interned.EventNames, EventName{IID: iid, Name: name})
		if !ok {
			continue
		}
		loc := SourceLocation{IID: iid, FileName: fileName(info), FunctionName: name}
		if info.Line >= 1 {
			loc.LineNumber = uint32(info.Line)
		}
		interned.SourceLocations = append(interned.SourceLocations, loc)
		locationIIDs[id] = iid
	}

	out := &Trace{Packets: make([]Packet, 0, 2+len(tracks)+len(t.Events))}
	out.Packets = append(out.Packets, Packet{
		TrustedPacketSequenceID: TrustedPacketSequenceID,
		SequenceFlags:           SeqIncrementalStateCleared,
		PreviousPacketDropped:   true,
		TraceConfig:             &TraceConfig{PrimaryTraceClock: ClockRealtime},
		InternedData:            interned,
	})
	for _, k := range tracks {
		out.Packets = append(out.Packets, Packet{TrackDescriptor: trackDescriptor(k)})
	}
	out.Packets = append(out.Packets, Packet{
		TrustedPacketSequenceID: TrustedPacketSequenceID,
		ClockSnapshot: &ClockSnapshot{
			Clocks:            []Clock{{ID: ClockRealtime, Timestamp: wallNanos(t.Events[0].Timestamp)}},
			PrimaryTraceClock: ClockRealtime,
		},
	})

	for _, e := range t.Events {
		te := &TrackEvent{TrackUUID: TrackUUID(e.ProcessID, e.ThreadID)}
		if e.Type == model.FunctionEntry {
			te.Type = TypeSliceBegin
			te.NameIID = nameIIDs[e.FunctionID]
			te.SourceLocationIID = locationIIDs[e.FunctionID]
		} else {
			te.Type = TypeSliceEnd
		}
		out.Packets = append(out.Packets, Packet{
			Timestamp:               wallNanos(e.Timestamp),
			TimestampClockID:        ClockRealtime,
			TrustedPacketSequenceID: TrustedPacketSequenceID,
			SequenceFlags:           SeqNeedsIncrementalState,
			TrackEvent:              te,
		})
	}
	return out, nil
}

func trackDescriptor(k track) *TrackDescriptor {
	td := &TrackDescriptor{UUID: TrackUUID(k.process, k.thread)}
	pid, pok := numericID(k.process)
	tid, tok := numericID(k.thread)
	if pok && tok {
		td.Thread = &ThreadDescriptor{PID: pid, TID: tid}
	} else {
		td.Name = fmt.Sprintf("process %s thread %s", k.process, k.thread)
	}
	return td
}

// numericID accepts the 0x-prefixed hex form written for binary traces and
// plain decimal. Values are narrowed to the int32 Perfetto expects.
func numericID(s string) (int32, bool) {
	if id, err := model.ParseID(s); err == nil {
		return int32(uint64(id)), true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int32(n), true
	}
	return 0, false
}

// functionName prefers the demangled name, then the linkage name, then the
// raw id.
func functionName(id string, info model.FunctionInfo, ok bool) string {
	switch {
	case ok && info.DemangledName != "":
		return truncate(info.DemangledName)
	case ok && info.LinkageName != "":
		return truncate(info.LinkageName)
	default:
		return truncate(id)
	}
}

func fileName(info model.FunctionInfo) string {
	var p string
	switch {
	case info.Directory != "" && info.FileName != "":
		p = filepath.Join(info.Directory, info.FileName)
	case info.FileName != "":
		p = info.FileName
	case info.Directory != "":
		p = filepath.Clean(info.Directory)
	default:
		return UnknownFileName
	}
	return truncate(p)
}

func truncate(s string) string {
	const ellipsis = "..."
	if len(s) <= MaxNameLength {
		return s
	}
	return s[:MaxNameLength-len(ellipsis)] + ellipsis
}

// wallNanos flattens a timestamp; instants before the epoch clamp to zero.
func wallNanos(ts model.Timestamp) uint64 {
	ns := ts.Seconds*1_000_000_000 + int64(ts.Nanos)
	if ns < 0 {
		return 0
	}
	return uint64(ns)
}
