package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"spoor/internal/model"
	"spoor/internal/perfetto"
	"spoor/internal/protofmt"
)

func sampleTrace() *model.Trace {
	return &model.Trace{
		Events: []model.Event{
			{ProcessID: "p", ThreadID: "t", FunctionID: "0x000000000000000a", Type: model.FunctionEntry},
			{ProcessID: "p", ThreadID: "t", FunctionID: "0x000000000000000a", Type: model.FunctionExit, Timestamp: model.Timestamp{Nanos: 10}},
		},
		Modules: []string{"mod"},
		Functions: map[string]model.FunctionInfo{
			"0x000000000000000b": {LinkageName: "b", DemangledName: "b, the second", Line: 0},
			"0x000000000000000a": {ModuleID: "app", LinkageName: "a", DemangledName: "a()", FileName: "a.cc", Directory: "/src", Line: 3, Instrumented: true},
		},
		CreatedAt: model.Timestamp{Seconds: 1},
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Contains(t, err.Error(), "proto, json, chrome")
}

func TestWriteProto(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatProto, sampleTrace()))

	got, err := protofmt.UnmarshalTrace(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sampleTrace(), got)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleTrace()))

	var got model.Trace
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, *sampleTrace(), got)
}

func TestWriteChrome(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatChrome, sampleTrace()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	events := got["traceEvents"].([]any)
	require.Len(t, events, 2)
	first := events[0].(map[string]any)
	assert.Equal(t, "a()", first["name"])
	assert.Equal(t, "B", first["ph"])
}

func TestWriteChromeUnknownType(t *testing.T) {
	tr := sampleTrace()
	tr.Events[0].Type = model.EventType(5)
	err := Write(&bytes.Buffer{}, FormatChrome, tr)
	assert.Error(t, err)
}

func TestWritePerfetto(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPerfetto, sampleTrace()))

	got, err := perfetto.Unmarshal(buf.Bytes())
	require.NoError(t, err)
	want, err := perfetto.Project(sampleTrace())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NotNil(t, got.Packets[0].InternedData)
	assert.Equal(t, "a()", got.Packets[0].InternedData.EventNames[0].Name)
}

func TestWritePerfettoUnknownType(t *testing.T) {
	tr := sampleTrace()
	tr.Events[1].Type = model.EventType(5)
	err := Write(&bytes.Buffer{}, FormatPerfetto, tr)
	assert.ErrorIs(t, err, perfetto.ErrUnknownEventType)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleTrace()))

	var got model.Trace
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, *sampleTrace(), got)
}

func TestWriteDOT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatDOT, sampleTrace()))
	assert.NotEmpty(t, buf.String())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleTrace()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "function_id,module_id,linkage_name,demangled_name,file_name,directory,line,instrumented", lines[0])
	assert.Equal(t, "0x000000000000000a,app,a,a(),a.cc,/src,3,true", lines[1])
	assert.Equal(t, `0x000000000000000b,,b,"b, the second",,,,false`, lines[2])
}

func TestWriteNone(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatNone, sampleTrace()))
	assert.Zero(t, buf.Len())
}

func TestWriteUnknown(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("xml"), sampleTrace())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
