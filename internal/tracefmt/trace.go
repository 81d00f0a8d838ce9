// Package tracefmt decodes and encodes the fixed-layout binary trace files
// written by the instrumentation runtime.
//
// Layout (big-endian):
//
//	+0x00: Header (56 bytes)
//	  +0x00 version                  uint64
//	  +0x08 session_id               uint64
//	  +0x10 process_id               int64
//	  +0x18 thread_id                uint64
//	  +0x20 system_clock_timestamp   uint64, ns since Unix epoch
//	  +0x28 steady_clock_timestamp   uint64, ns since process-local epoch
//	  +0x30 event_count              int32
//	  +0x34 padding                  4 bytes
//	+0x38: Event[event_count] (16 bytes each)
//	  +0x00 function_id              uint64
//	  +0x08 type_and_timestamp       bit 63 = entry, bits 0..62 = steady ns
//	Footer (1 byte, reserved)
package tracefmt

import "spoor/internal/model"

const (
	HeaderSizeBytes = 56
	EventSizeBytes  = 16
	FooterSizeBytes = 1

	// MinSizeBytes is the size of a trace with zero events.
	MinSizeBytes = HeaderSizeBytes + FooterSizeBytes

	// CurrentVersion is the header version written by the runtime. The
	// runtime bumps it whenever the header, event, or footer layout changes.
	CurrentVersion uint64 = 0

	headerPaddingBytes = HeaderSizeBytes - 52

	entryBit      = uint64(1) << 63
	timestampMask = entryBit - 1
)

// Header is the fixed-size preamble of a binary trace.
type Header struct {
	Version                         uint64 `json:"version"`
	SessionID                       uint64 `json:"sessionId"`
	ProcessID                       int64  `json:"processId"`
	ThreadID                        uint64 `json:"threadId"`
	SystemClockTimestampNanoseconds uint64 `json:"systemClockTimestampNanoseconds"`
	SteadyClockTimestampNanoseconds uint64 `json:"steadyClockTimestampNanoseconds"`
	EventCount                      int32  `json:"eventCount"`
}

// EventType is the on-disk discriminator bit.
type EventType uint8

const (
	FunctionExit  EventType = 0
	FunctionEntry EventType = 1
)

// ModelType maps the on-disk bit to the structured event tag.
func (t EventType) ModelType() model.EventType {
	if t == FunctionEntry {
		return model.FunctionEntry
	}
	return model.FunctionExit
}

// Event is one packed 16-byte record.
type Event struct {
	Type                            EventType `json:"type"`
	FunctionID                      uint64    `json:"functionId"`
	SteadyClockTimestampNanoseconds uint64    `json:"steadyClockTimestampNanoseconds"`
}

// Footer carries no fields yet. Reserved holds the raw footer bytes so a
// later layout can give them meaning without changing Decode's contract.
type Footer struct {
	Reserved []byte `json:"reserved,omitempty"`
}

// Trace is one decoded binary trace: one thread of one process.
type Trace struct {
	Header Header  `json:"header"`
	Events []Event `json:"events"`
	Footer Footer  `json:"footer"`
}

// ExpectedSize returns the exact byte length of a trace holding eventCount
// events. Negative counts produce a size below MinSizeBytes.
func ExpectedSize(eventCount int32) int64 {
	return HeaderSizeBytes + int64(eventCount)*EventSizeBytes + FooterSizeBytes
}
