package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spoor/internal/model"
	"spoor/internal/protofmt"
	"spoor/internal/tracefmt"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"a.spoor", KindTrace},
		{"/tmp/dir.x/b.spoor_trace", KindBinaryTrace},
		{"c.spoor_function_map", KindFunctionMap},
	}
	for _, tt := range tests {
		got, err := Classify(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	for _, bad := range []string{"a.json", "noext", "a.spoor.bak"} {
		_, err := Classify(bad)
		assert.ErrorIs(t, err, ErrUnsupportedExtension, bad)
	}
	_, err := Classify("x.txt")
	assert.Contains(t, err.Error(), "'.txt'")
	assert.Contains(t, err.Error(), ".spoor, .spoor_trace, and .spoor_function_map")
}

func writeFixtures(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()

	tr, err := protofmt.MarshalTrace(&model.Trace{Modules: []string{"m"}})
	require.NoError(t, err)
	fm, err := protofmt.MarshalFunctionMap(&model.FunctionMap{ModuleID: "fm"})
	require.NoError(t, err)

	files := map[string][]byte{
		"1.spoor_trace":        tracefmt.Encode(&tracefmt.Trace{Header: tracefmt.Header{ThreadID: 1}, Footer: tracefmt.Footer{Reserved: []byte{0}}}),
		"2.spoor":              tr,
		"3.spoor_function_map": fm,
		"4.spoor_trace":        tracefmt.Encode(&tracefmt.Trace{Header: tracefmt.Header{ThreadID: 2}, Footer: tracefmt.Footer{Reserved: []byte{0}}}),
	}
	var paths []string
	for _, name := range []string{"1.spoor_trace", "2.spoor", "3.spoor_function_map", "4.spoor_trace"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, files[name], 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestLoad(t *testing.T) {
	paths := writeFixtures(t)
	in, err := Load(context.Background(), paths, Options{Concurrency: 2})
	require.NoError(t, err)

	require.Len(t, in.Traces, 1)
	assert.Equal(t, []string{"m"}, in.Traces[0].Modules)
	require.Len(t, in.FunctionMaps, 1)
	assert.Equal(t, "fm", in.FunctionMaps[0].ModuleID)
	require.Len(t, in.BinaryTraces, 2)
	assert.EqualValues(t, 1, in.BinaryTraces[0].Header.ThreadID)
	assert.EqualValues(t, 2, in.BinaryTraces[1].Header.ThreadID)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.spoor")
	_, err := Load(context.Background(), []string{missing}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
	assert.Contains(t, err.Error(), missing)
}

func TestLoadUnsupportedExtensionReadsNothing(t *testing.T) {
	var reads atomic.Int32
	opts := Options{ReadFile: func(string) ([]byte, error) {
		reads.Add(1)
		return nil, nil
	}}
	_, err := Load(context.Background(), []string{"a.spoor", "b.txt"}, opts)
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
	assert.Zero(t, reads.Load())
}

func TestLoadDecodeErrorNamesFile(t *testing.T) {
	opts := Options{ReadFile: func(p string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}}
	_, err := Load(context.Background(), []string{"short.spoor_trace"}, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, tracefmt.ErrTruncatedInput)
	assert.Contains(t, err.Error(), "short.spoor_trace")
}

func TestLoadReadError(t *testing.T) {
	boom := errors.New("boom")
	opts := Options{ReadFile: func(string) ([]byte, error) { return nil, boom }}
	_, err := Load(context.Background(), []string{"a.spoor"}, opts)
	assert.ErrorIs(t, err, boom)
}

func TestLoadEmpty(t *testing.T) {
	in, err := Load(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, in.Traces)
	assert.Empty(t, in.BinaryTraces)
	assert.Empty(t, in.FunctionMaps)
}
