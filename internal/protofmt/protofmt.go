// Package protofmt encodes structured traces (.spoor) and instrumented
// function maps (.spoor_function_map) in protobuf wire format.
//
// Schema:
//
//	message FunctionInfo {
//	  string linkage_name = 1; string demangled_name = 2; string file_name = 3;
//	  string directory = 4; int32 line = 5; bool instrumented = 6;
//	  string module_id = 7;
//	}
//	message Event {
//	  string session_id = 1; string process_id = 2; string thread_id = 3;
//	  string function_id = 4; Type type = 5; google.protobuf.Timestamp timestamp = 6;
//	}
//	message Trace {
//	  repeated Event events = 1; repeated string modules = 2;
//	  map<string, FunctionInfo> function_map = 3; google.protobuf.Timestamp created_at = 4;
//	}
//	message InstrumentedFunctionMap {
//	  string module_id = 1; map<string, FunctionInfo> function_map = 2;
//	  google.protobuf.Timestamp created_at = 3;
//	}
package protofmt

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"spoor/internal/model"
)

// ErrMalformed wraps every decoding failure.
var ErrMalformed = errors.New("protofmt: malformed message")

const (
	infoLinkageName   protowire.Number = 1
	infoDemangledName protowire.Number = 2
	infoFileName      protowire.Number = 3
	infoDirectory     protowire.Number = 4
	infoLine          protowire.Number = 5
	infoInstrumented  protowire.Number = 6
	infoModuleID      protowire.Number = 7

	eventSessionID  protowire.Number = 1
	eventProcessID  protowire.Number = 2
	eventThreadID   protowire.Number = 3
	eventFunctionID protowire.Number = 4
	eventType       protowire.Number = 5
	eventTimestamp  protowire.Number = 6

	traceEvents      protowire.Number = 1
	traceModules     protowire.Number = 2
	traceFunctionMap protowire.Number = 3
	traceCreatedAt   protowire.Number = 4

	mapModuleID    protowire.Number = 1
	mapFunctionMap protowire.Number = 2
	mapCreatedAt   protowire.Number = 3

	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2
)

// MarshalTrace encodes t. Function map entries are written in key order.
func MarshalTrace(t *model.Trace) ([]byte, error) {
	var b []byte
	for _, e := range t.Events {
		msg, err := appendEvent(nil, e)
		if err != nil {
			return nil, err
		}
		b = AppendMessage(b, traceEvents, msg)
	}
	for _, m := range t.Modules {
		b = protowire.AppendTag(b, traceModules, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	b = appendFunctionMap(b, traceFunctionMap, t.Functions)
	ts, err := marshalTimestamp(t.CreatedAt)
	if err != nil {
		return nil, err
	}
	b = AppendMessage(b, traceCreatedAt, ts)
	return b, nil
}

// UnmarshalTrace decodes a Trace message. Unknown fields are skipped.
func UnmarshalTrace(data []byte) (*model.Trace, error) {
	t := &model.Trace{Functions: map[string]model.FunctionInfo{}}
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == traceEvents && typ == protowire.BytesType:
			e, err := unmarshalEvent(v)
			if err != nil {
				return fmt.Errorf("event %d: %w", len(t.Events), err)
			}
			t.Events = append(t.Events, e)
		case num == traceModules && typ == protowire.BytesType:
			t.Modules = append(t.Modules, string(v))
		case num == traceFunctionMap && typ == protowire.BytesType:
			return unmarshalMapEntry(v, t.Functions)
		case num == traceCreatedAt && typ == protowire.BytesType:
			ts, err := unmarshalTimestamp(v)
			if err != nil {
				return err
			}
			t.CreatedAt = ts
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalFunctionMap encodes m. Entries are written in key order.
func MarshalFunctionMap(m *model.FunctionMap) ([]byte, error) {
	var b []byte
	b = AppendString(b, mapModuleID, m.ModuleID)
	b = appendFunctionMap(b, mapFunctionMap, m.Functions)
	ts, err := marshalTimestamp(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	b = AppendMessage(b, mapCreatedAt, ts)
	return b, nil
}

// UnmarshalFunctionMap decodes an InstrumentedFunctionMap message.
func UnmarshalFunctionMap(data []byte) (*model.FunctionMap, error) {
	m := &model.FunctionMap{Functions: map[string]model.FunctionInfo{}}
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == mapModuleID && typ == protowire.BytesType:
			m.ModuleID = string(v)
		case num == mapFunctionMap && typ == protowire.BytesType:
			return unmarshalMapEntry(v, m.Functions)
		case num == mapCreatedAt && typ == protowire.BytesType:
			ts, err := unmarshalTimestamp(v)
			if err != nil {
				return err
			}
			m.CreatedAt = ts
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func appendEvent(b []byte, e model.Event) ([]byte, error) {
	b = AppendString(b, eventSessionID, e.SessionID)
	b = AppendString(b, eventProcessID, e.ProcessID)
	b = AppendString(b, eventThreadID, e.ThreadID)
	b = AppendString(b, eventFunctionID, e.FunctionID)
	if e.Type != 0 {
		b = protowire.AppendTag(b, eventType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(e.Type)))
	}
	ts, err := marshalTimestamp(e.Timestamp)
	if err != nil {
		return nil, err
	}
	return AppendMessage(b, eventTimestamp, ts), nil
}

func unmarshalEvent(data []byte) (model.Event, error) {
	var e model.Event
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == eventType && typ == protowire.VarintType {
			x, err := Varint(v)
			if err != nil {
				return err
			}
			e.Type = model.EventType(int32(x))
			return nil
		}
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case eventSessionID:
			e.SessionID = string(v)
		case eventProcessID:
			e.ProcessID = string(v)
		case eventThreadID:
			e.ThreadID = string(v)
		case eventFunctionID:
			e.FunctionID = string(v)
		case eventTimestamp:
			ts, err := unmarshalTimestamp(v)
			if err != nil {
				return err
			}
			e.Timestamp = ts
		}
		return nil
	})
	return e, err
}

func appendFunctionMap(b []byte, num protowire.Number, fns map[string]model.FunctionInfo) []byte {
	keys := make([]string, 0, len(fns))
	for k := range fns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = AppendString(entry, entryKey, k)
		entry = AppendMessage(entry, entryValue, appendFunctionInfo(nil, fns[k]))
		b = AppendMessage(b, num, entry)
	}
	return b
}

func unmarshalMapEntry(data []byte, into map[string]model.FunctionInfo) error {
	var key string
	var info model.FunctionInfo
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case entryKey:
			key = string(v)
		case entryValue:
			var err error
			info, err = unmarshalFunctionInfo(v)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("function_map entry: %w", err)
	}
	into[key] = info
	return nil
}

func appendFunctionInfo(b []byte, fi model.FunctionInfo) []byte {
	b = AppendString(b, infoLinkageName, fi.LinkageName)
	b = AppendString(b, infoDemangledName, fi.DemangledName)
	b = AppendString(b, infoFileName, fi.FileName)
	b = AppendString(b, infoDirectory, fi.Directory)
	if fi.Line != 0 {
		b = protowire.AppendTag(b, infoLine, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(fi.Line)))
	}
	if fi.Instrumented {
		b = protowire.AppendTag(b, infoInstrumented, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return AppendString(b, infoModuleID, fi.ModuleID)
}

func unmarshalFunctionInfo(data []byte) (model.FunctionInfo, error) {
	var fi model.FunctionInfo
	err := Walk(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch typ {
		case protowire.BytesType:
			switch num {
			case infoLinkageName:
				fi.LinkageName = string(v)
			case infoDemangledName:
				fi.DemangledName = string(v)
			case infoFileName:
				fi.FileName = string(v)
			case infoDirectory:
				fi.Directory = string(v)
			case infoModuleID:
				fi.ModuleID = string(v)
			}
		case protowire.VarintType:
			x, err := Varint(v)
			if err != nil {
				return err
			}
			switch num {
			case infoLine:
				fi.Line = int32(x)
			case infoInstrumented:
				fi.Instrumented = protowire.DecodeBool(x)
			}
		}
		return nil
	})
	return fi, err
}

func marshalTimestamp(ts model.Timestamp) ([]byte, error) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(&timestamppb.Timestamp{
		Seconds: ts.Seconds,
		Nanos:   ts.Nanos,
	})
	if err != nil {
		return nil, fmt.Errorf("protofmt: timestamp: %w", err)
	}
	return b, nil
}

func unmarshalTimestamp(data []byte) (model.Timestamp, error) {
	var pb timestamppb.Timestamp
	if err := proto.Unmarshal(data, &pb); err != nil {
		return model.Timestamp{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
	}
	return model.Timestamp{Seconds: pb.GetSeconds(), Nanos: pb.GetNanos()}, nil
}

// AppendString appends a length-delimited string field; empty strings are
// omitted.
func AppendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendMessage appends msg as an embedded message field, even when empty.
func AppendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AppendVarint appends a varint field; zero is omitted.
func AppendVarint(b []byte, num protowire.Number, x uint64) []byte {
	if x == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, x)
}

// Varint decodes the raw varint Walk passes for VarintType fields.
func Varint(v []byte) (uint64, error) {
	x, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, fmt.Errorf("%w: varint: %v", ErrMalformed, protowire.ParseError(n))
	}
	return x, nil
}

// Walk calls fn for every field in data. For BytesType fields v is the
// payload; for VarintType fields v holds the raw varint; other wire types
// are passed with their raw encoding so fn can ignore them.
func Walk(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		var v []byte
		switch typ {
		case protowire.BytesType:
			payload, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			v, n = payload, m
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			v, n = data[:m], m
		}
		data = data[n:]

		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}
