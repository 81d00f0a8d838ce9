package perfetto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"spoor/internal/protofmt"
)

// Field numbers from perfetto/protos/perfetto/trace.
const (
	traceFieldPacket protowire.Number = 1

	packetFieldClockSnapshot         protowire.Number = 6
	packetFieldTimestamp             protowire.Number = 8
	packetFieldTrustedSequenceID     protowire.Number = 10
	packetFieldTrackEvent            protowire.Number = 11
	packetFieldInternedData          protowire.Number = 12
	packetFieldSequenceFlags         protowire.Number = 13
	packetFieldTraceConfig           protowire.Number = 33
	packetFieldPreviousPacketDropped protowire.Number = 42
	packetFieldTimestampClockID      protowire.Number = 58
	packetFieldTrackDescriptor       protowire.Number = 60

	trackEventFieldType              protowire.Number = 9
	trackEventFieldNameIID           protowire.Number = 10
	trackEventFieldTrackUUID         protowire.Number = 11
	trackEventFieldSourceLocationIID protowire.Number = 34

	descriptorFieldUUID   protowire.Number = 1
	descriptorFieldName   protowire.Number = 2
	descriptorFieldThread protowire.Number = 4
	threadFieldPID        protowire.Number = 1
	threadFieldTID        protowire.Number = 2

	snapshotFieldClocks            protowire.Number = 1
	snapshotFieldPrimaryTraceClock protowire.Number = 2
	clockFieldID                   protowire.Number = 1
	clockFieldTimestamp            protowire.Number = 2

	configFieldBuiltinDataSources   protowire.Number = 20
	builtinSourcesFieldPrimaryClock protowire.Number = 5

	internedFieldEventNames         protowire.Number = 2
	internedFieldSourceLocations    protowire.Number = 4
	eventNameFieldIID               protowire.Number = 1
	eventNameFieldName              protowire.Number = 2
	sourceLocationFieldIID          protowire.Number = 1
	sourceLocationFieldFileName     protowire.Number = 2
	sourceLocationFieldFunctionName protowire.Number = 3
	sourceLocationFieldLineNumber   protowire.Number = 4
)

// Marshal encodes t as a perfetto.protos.Trace.
func Marshal(t *Trace) []byte {
	var b []byte
	for _, p := range t.Packets {
		b = protofmt.AppendMessage(b, traceFieldPacket, marshalPacket(p))
	}
	return b
}

func marshalPacket(p Packet) []byte {
	var b []byte
	if p.ClockSnapshot != nil {
		b = protofmt.AppendMessage(b, packetFieldClockSnapshot, marshalClockSnapshot(p.ClockSnapshot))
	}
	b = protofmt.AppendVarint(b, packetFieldTimestamp, p.Timestamp)
	b = protofmt.AppendVarint(b, packetFieldTrustedSequenceID, uint64(p.TrustedPacketSequenceID))
	if p.TrackEvent != nil {
		b = protofmt.AppendMessage(b, packetFieldTrackEvent, marshalTrackEvent(p.TrackEvent))
	}
	if p.InternedData != nil {
		b = protofmt.AppendMessage(b, packetFieldInternedData, marshalInternedData(p.InternedData))
	}
	b = protofmt.AppendVarint(b, packetFieldSequenceFlags, uint64(p.SequenceFlags))
	if p.TraceConfig != nil {
		var ds []byte
		ds = protofmt.AppendVarint(ds, builtinSourcesFieldPrimaryClock, uint64(p.TraceConfig.PrimaryTraceClock))
		cfg := protofmt.AppendMessage(nil, configFieldBuiltinDataSources, ds)
		b = protofmt.AppendMessage(b, packetFieldTraceConfig, cfg)
	}
	if p.PreviousPacketDropped {
		b = protofmt.AppendVarint(b, packetFieldPreviousPacketDropped, protowire.EncodeBool(true))
	}
	b = protofmt.AppendVarint(b, packetFieldTimestampClockID, uint64(p.TimestampClockID))
	if p.TrackDescriptor != nil {
		b = protofmt.AppendMessage(b, packetFieldTrackDescriptor, marshalTrackDescriptor(p.TrackDescriptor))
	}
	return b
}

func marshalTrackEvent(te *TrackEvent) []byte {
	var b []byte
	b = protofmt.AppendVarint(b, trackEventFieldType, uint64(te.Type))
	b = protofmt.AppendVarint(b, trackEventFieldNameIID, te.NameIID)
	b = protofmt.AppendVarint(b, trackEventFieldTrackUUID, te.TrackUUID)
	return protofmt.AppendVarint(b, trackEventFieldSourceLocationIID, te.SourceLocationIID)
}

func marshalTrackDescriptor(td *TrackDescriptor) []byte {
	var b []byte
	b = protofmt.AppendVarint(b, descriptorFieldUUID, td.UUID)
	b = protofmt.AppendString(b, descriptorFieldName, td.Name)
	if td.Thread != nil {
		var th []byte
		th = protofmt.AppendVarint(th, threadFieldPID, uint64(int64(td.Thread.PID)))
		th = protofmt.AppendVarint(th, threadFieldTID, uint64(int64(td.Thread.TID)))
		b = protofmt.AppendMessage(b, descriptorFieldThread, th)
	}
	return b
}

func marshalClockSnapshot(cs *ClockSnapshot) []byte {
	var b []byte
	for _, c := range cs.Clocks {
		var cb []byte
		cb = protofmt.AppendVarint(cb, clockFieldID, uint64(c.ID))
		cb = protofmt.AppendVarint(cb, clockFieldTimestamp, c.Timestamp)
		b = protofmt.AppendMessage(b, snapshotFieldClocks, cb)
	}
	return protofmt.AppendVarint(b, snapshotFieldPrimaryTraceClock, uint64(cs.PrimaryTraceClock))
}

func marshalInternedData(d *InternedData) []byte {
	var b []byte
	for _, n := range d.EventNames {
		var nb []byte
		nb = protofmt.AppendVarint(nb, eventNameFieldIID, n.IID)
		nb = protofmt.AppendString(nb, eventNameFieldName, n.Name)
		b = protofmt.AppendMessage(b, internedFieldEventNames, nb)
	}
	for _, l := range d.SourceLocations {
		var lb []byte
		lb = protofmt.AppendVarint(lb, sourceLocationFieldIID, l.IID)
		lb = protofmt.AppendString(lb, sourceLocationFieldFileName, l.FileName)
		lb = protofmt.AppendString(lb, sourceLocationFieldFunctionName, l.FunctionName)
		lb = protofmt.AppendVarint(lb, sourceLocationFieldLineNumber, uint64(l.LineNumber))
		b = protofmt.AppendMessage(b, internedFieldSourceLocations, lb)
	}
	return b
}

// Unmarshal decodes the fields Marshal writes; other fields are skipped.
func Unmarshal(data []byte) (*Trace, error) {
	t := &Trace{}
	err := protofmt.Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != traceFieldPacket || typ != protowire.BytesType {
			return nil
		}
		p, err := unmarshalPacket(v)
		if err != nil {
			return fmt.Errorf("packet %d: %w", len(t.Packets), err)
		}
		t.Packets = append(t.Packets, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// fields collects the varint and length-delimited fields of one message.
// Repeated message fields keep every occurrence in order.
type fields struct {
	varints  map[protowire.Number]uint64
	messages map[protowire.Number][][]byte
}

func (f fields) varint(num protowire.Number) uint64 { return f.varints[num] }

func (f fields) message(num protowire.Number) ([]byte, bool) {
	m := f.messages[num]
	if len(m) == 0 {
		return nil, false
	}
	return m[len(m)-1], true
}

func (f fields) str(num protowire.Number) string {
	if m, ok := f.message(num); ok {
		return string(m)
	}
	return ""
}

func readFields(data []byte) (fields, error) {
	f := fields{
		varints:  make(map[protowire.Number]uint64),
		messages: make(map[protowire.Number][][]byte),
	}
	err := protofmt.Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch typ {
		case protowire.VarintType:
			x, err := protofmt.Varint(v)
			if err != nil {
				return err
			}
			f.varints[num] = x
		case protowire.BytesType:
			f.messages[num] = append(f.messages[num], v)
		}
		return nil
	})
	return f, err
}

func unmarshalPacket(data []byte) (Packet, error) {
	f, err := readFields(data)
	if err != nil {
		return Packet{}, err
	}
	p := Packet{
		Timestamp:               f.varint(packetFieldTimestamp),
		TimestampClockID:        BuiltinClock(f.varint(packetFieldTimestampClockID)),
		TrustedPacketSequenceID: uint32(f.varint(packetFieldTrustedSequenceID)),
		SequenceFlags:           uint32(f.varint(packetFieldSequenceFlags)),
		PreviousPacketDropped:   protowire.DecodeBool(f.varint(packetFieldPreviousPacketDropped)),
	}

	if m, ok := f.message(packetFieldTrackEvent); ok {
		ef, err := readFields(m)
		if err != nil {
			return Packet{}, fmt.Errorf("track_event: %w", err)
		}
		p.TrackEvent = &TrackEvent{
			Type:              TrackEventType(ef.varint(trackEventFieldType)),
			TrackUUID:         ef.varint(trackEventFieldTrackUUID),
			NameIID:           ef.varint(trackEventFieldNameIID),
			SourceLocationIID: ef.varint(trackEventFieldSourceLocationIID),
		}
	}
	if m, ok := f.message(packetFieldTrackDescriptor); ok {
		if p.TrackDescriptor, err = unmarshalTrackDescriptor(m); err != nil {
			return Packet{}, fmt.Errorf("track_descriptor: %w", err)
		}
	}
	if m, ok := f.message(packetFieldClockSnapshot); ok {
		if p.ClockSnapshot, err = unmarshalClockSnapshot(m); err != nil {
			return Packet{}, fmt.Errorf("clock_snapshot: %w", err)
		}
	}
	if m, ok := f.message(packetFieldTraceConfig); ok {
		cf, err := readFields(m)
		if err != nil {
			return Packet{}, fmt.Errorf("trace_config: %w", err)
		}
		p.TraceConfig = &TraceConfig{}
		if ds, ok := cf.message(configFieldBuiltinDataSources); ok {
			df, err := readFields(ds)
			if err != nil {
				return Packet{}, fmt.Errorf("trace_config: %w", err)
			}
			p.TraceConfig.PrimaryTraceClock = BuiltinClock(df.varint(builtinSourcesFieldPrimaryClock))
		}
	}
	if m, ok := f.message(packetFieldInternedData); ok {
		if p.InternedData, err = unmarshalInternedData(m); err != nil {
			return Packet{}, fmt.Errorf("interned_data: %w", err)
		}
	}
	return p, nil
}

func unmarshalTrackDescriptor(data []byte) (*TrackDescriptor, error) {
	f, err := readFields(data)
	if err != nil {
		return nil, err
	}
	td := &TrackDescriptor{UUID: f.varint(descriptorFieldUUID), Name: f.str(descriptorFieldName)}
	if m, ok := f.message(descriptorFieldThread); ok {
		tf, err := readFields(m)
		if err != nil {
			return nil, err
		}
		td.Thread = &ThreadDescriptor{
			PID: int32(tf.varint(threadFieldPID)),
			TID: int32(tf.varint(threadFieldTID)),
		}
	}
	return td, nil
}

func unmarshalClockSnapshot(data []byte) (*ClockSnapshot, error) {
	f, err := readFields(data)
	if err != nil {
		return nil, err
	}
	cs := &ClockSnapshot{PrimaryTraceClock: BuiltinClock(f.varint(snapshotFieldPrimaryTraceClock))}
	for _, m := range f.messages[snapshotFieldClocks] {
		cf, err := readFields(m)
		if err != nil {
			return nil, err
		}
		cs.Clocks = append(cs.Clocks, Clock{
			ID:        BuiltinClock(cf.varint(clockFieldID)),
			Timestamp: cf.varint(clockFieldTimestamp),
		})
	}
	return cs, nil
}

func unmarshalInternedData(data []byte) (*InternedData, error) {
	f, err := readFields(data)
	if err != nil {
		return nil, err
	}
	d := &InternedData{}
	for _, m := range f.messages[internedFieldEventNames] {
		nf, err := readFields(m)
		if err != nil {
			return nil, err
		}
		d.EventNames = append(d.EventNames, EventName{
			IID:  nf.varint(eventNameFieldIID),
			Name: nf.str(eventNameFieldName),
		})
	}
	for _, m := range f.messages[internedFieldSourceLocations] {
		lf, err := readFields(m)
		if err != nil {
			return nil, err
		}
		d.SourceLocations = append(d.SourceLocations, SourceLocation{
			IID:          lf.varint(sourceLocationFieldIID),
			FileName:     lf.str(sourceLocationFieldFileName),
			FunctionName: lf.str(sourceLocationFieldFunctionName),
			LineNumber:   uint32(lf.varint(sourceLocationFieldLineNumber)),
		})
	}
	return d, nil
}
