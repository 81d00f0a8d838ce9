package perfetto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"spoor/internal/model"
	"spoor/internal/protofmt"
)

var (
	funcA = model.ID(0xa).String()
	funcB = model.ID(0xb).String()
	funcC = model.ID(0xc).String()
	proc  = model.ID(0x10).String()
	tid1  = model.ID(1).String()
	tid2  = model.ID(2).String()
)

func event(thread, fn string, typ model.EventType, nanos int32) model.Event {
	return model.Event{
		SessionID:  model.ID(7).String(),
		ProcessID:  proc,
		ThreadID:   thread,
		FunctionID: fn,
		Type:       typ,
		Timestamp:  model.Timestamp{Seconds: 1, Nanos: nanos},
	}
}

func sampleTrace() *model.Trace {
	return &model.Trace{
		Events: []model.Event{
			event(tid1, funcA, model.FunctionEntry, 100),
			event(tid1, funcB, model.FunctionEntry, 200),
			event(tid2, funcC, model.FunctionEntry, 250),
			event(tid1, funcB, model.FunctionExit, 300),
			event(tid2, funcC, model.FunctionExit, 350),
			event(tid1, funcA, model.FunctionExit, 400),
		},
		Modules: []string{"app"},
		Functions: map[string]model.FunctionInfo{
			funcA: {DemangledName: "a()", LinkageName: "_Z1av", FileName: "a.cc", Directory: "/src", Line: 3},
			funcB: {LinkageName: "_Z1bv"},
		},
	}
}

func TestProjectEmpty(t *testing.T) {
	got, err := Project(&model.Trace{})
	require.NoError(t, err)
	assert.Empty(t, got.Packets)
	assert.Empty(t, Marshal(got))
}

func TestProjectLayout(t *testing.T) {
	got, err := Project(sampleTrace())
	require.NoError(t, err)
	// head + 2 tracks + clock snapshot + 6 events
	require.Len(t, got.Packets, 10)

	head := got.Packets[0]
	assert.Equal(t, TrustedPacketSequenceID, head.TrustedPacketSequenceID)
	assert.Equal(t, SeqIncrementalStateCleared, head.SequenceFlags)
	assert.True(t, head.PreviousPacketDropped)
	assert.Equal(t, &TraceConfig{PrimaryTraceClock: ClockRealtime}, head.TraceConfig)
	require.NotNil(t, head.InternedData)
	assert.Equal(t, []EventName{
		{IID: 1, Name: "a()"},
		{IID: 2, Name: "_Z1bv"},
		{IID: 3, Name: funcC},
	}, head.InternedData.EventNames)
	assert.Equal(t, []SourceLocation{
		{IID: 1, FileName: "/src/a.cc", FunctionName: "a()", LineNumber: 3},
		{IID: 2, FileName: UnknownFileName, FunctionName: "_Z1bv"},
	}, head.InternedData.SourceLocations)

	assert.Equal(t, &TrackDescriptor{UUID: TrackUUID(proc, tid1), Thread: &ThreadDescriptor{PID: 0x10, TID: 1}}, got.Packets[1].TrackDescriptor)
	assert.Equal(t, &TrackDescriptor{UUID: TrackUUID(proc, tid2), Thread: &ThreadDescriptor{PID: 0x10, TID: 2}}, got.Packets[2].TrackDescriptor)
	assert.NotEqual(t, TrackUUID(proc, tid1), TrackUUID(proc, tid2))

	assert.Equal(t, &ClockSnapshot{
		Clocks:            []Clock{{ID: ClockRealtime, Timestamp: 1_000_000_100}},
		PrimaryTraceClock: ClockRealtime,
	}, got.Packets[3].ClockSnapshot)

	events := got.Packets[4:]
	for _, p := range events {
		assert.Equal(t, ClockRealtime, p.TimestampClockID)
		assert.Equal(t, SeqNeedsIncrementalState, p.SequenceFlags)
		assert.Equal(t, TrustedPacketSequenceID, p.TrustedPacketSequenceID)
	}
	assert.Equal(t, uint64(1_000_000_100), events[0].Timestamp)
	assert.Equal(t, &TrackEvent{Type: TypeSliceBegin, TrackUUID: TrackUUID(proc, tid1), NameIID: 1, SourceLocationIID: 1}, events[0].TrackEvent)
	assert.Equal(t, &TrackEvent{Type: TypeSliceBegin, TrackUUID: TrackUUID(proc, tid2), NameIID: 3}, events[2].TrackEvent)
	assert.Equal(t, &TrackEvent{Type: TypeSliceEnd, TrackUUID: TrackUUID(proc, tid1)}, events[3].TrackEvent)
	assert.Equal(t, uint64(1_000_000_400), events[5].Timestamp)
}

func TestRoundTrip(t *testing.T) {
	want, err := Project(sampleTrace())
	require.NoError(t, err)

	got, err := Unmarshal(Marshal(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSliceBalancePerTrack(t *testing.T) {
	got, err := Project(sampleTrace())
	require.NoError(t, err)

	depth := make(map[uint64]int)
	for _, p := range got.Packets {
		if p.TrackEvent == nil {
			continue
		}
		switch p.TrackEvent.Type {
		case TypeSliceBegin:
			depth[p.TrackEvent.TrackUUID]++
		case TypeSliceEnd:
			depth[p.TrackEvent.TrackUUID]--
			assert.GreaterOrEqual(t, depth[p.TrackEvent.TrackUUID], 0)
		}
	}
	assert.Equal(t, map[uint64]int{TrackUUID(proc, tid1): 0, TrackUUID(proc, tid2): 0}, depth)
}

func TestMarshalFieldNumbers(t *testing.T) {
	tr := &Trace{Packets: []Packet{{
		Timestamp:               5,
		TimestampClockID:        ClockRealtime,
		TrustedPacketSequenceID: TrustedPacketSequenceID,
		SequenceFlags:           SeqNeedsIncrementalState,
		TrackEvent:              &TrackEvent{Type: TypeSliceBegin, TrackUUID: 9, NameIID: 1, SourceLocationIID: 1},
	}}}

	var packet []byte
	require.NoError(t, protofmt.Walk(Marshal(tr), func(num protowire.Number, typ protowire.Type, v []byte) error {
		assert.Equal(t, protowire.Number(1), num)
		packet = v
		return nil
	}))

	seen := make(map[protowire.Number]bool)
	require.NoError(t, protofmt.Walk(packet, func(num protowire.Number, typ protowire.Type, v []byte) error {
		seen[num] = true
		return nil
	}))
	assert.Equal(t, map[protowire.Number]bool{8: true, 10: true, 11: true, 13: true, 58: true}, seen)
}

func TestNonNumericThreadIDs(t *testing.T) {
	tr := &model.Trace{Events: []model.Event{
		{ProcessID: "main", ThreadID: "ui", FunctionID: "f", Type: model.FunctionEntry},
		{ProcessID: "42", ThreadID: "7", FunctionID: "f", Type: model.FunctionExit},
	}}
	got, err := Project(tr)
	require.NoError(t, err)

	assert.Equal(t, &TrackDescriptor{UUID: TrackUUID("main", "ui"), Name: "process main thread ui"}, got.Packets[1].TrackDescriptor)
	assert.Equal(t, &ThreadDescriptor{PID: 42, TID: 7}, got.Packets[2].TrackDescriptor.Thread)
	assert.Equal(t, []EventName{{IID: 1, Name: "f"}}, got.Packets[0].InternedData.EventNames)
	assert.Empty(t, got.Packets[0].InternedData.SourceLocations)
}

func TestLongNamesTruncated(t *testing.T) {
	long := strings.Repeat("x", MaxNameLength+10)
	tr := &model.Trace{
		Events:    []model.Event{{FunctionID: "f", Type: model.FunctionEntry}},
		Functions: map[string]model.FunctionInfo{"f": {DemangledName: long, Line: -1}},
	}
	got, err := Project(tr)
	require.NoError(t, err)

	name := got.Packets[0].InternedData.EventNames[0].Name
	assert.Len(t, name, MaxNameLength)
	assert.True(t, strings.HasSuffix(name, "..."))
	assert.Zero(t, got.Packets[0].InternedData.SourceLocations[0].LineNumber)
}

func TestProjectUnknownEventType(t *testing.T) {
	tr := sampleTrace()
	tr.Events[2].Type = model.EventType(9)
	_, err := Project(tr)
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Contains(t, err.Error(), "'9'")
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte{0x0a, 0x05, 0x01})
	assert.ErrorIs(t, err, protofmt.ErrMalformed)
}
