// Package output writes a merged trace in the format selected on the
// command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"spoor/internal/callgraph"
	"spoor/internal/chrome"
	"spoor/internal/model"
	"spoor/internal/perfetto"
	"spoor/internal/protofmt"
)

// Format selects the serialization written by Write.
type Format string

const (
	FormatProto    Format = "proto"
	FormatJSON     Format = "json"
	FormatChrome   Format = "chrome"
	FormatPerfetto Format = "perfetto"
	FormatYAML     Format = "yaml"
	FormatDOT      Format = "dot"
	FormatCSV      Format = "csv"
	FormatNone     Format = "none"
)

// Formats lists every accepted format, default first.
var Formats = []Format{FormatProto, FormatJSON, FormatChrome, FormatPerfetto, FormatYAML, FormatDOT, FormatCSV, FormatNone}

var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w '%s' (supported: %s)", ErrUnknownFormat, s, FormatNames())
}

// FormatNames joins Formats for help text.
func FormatNames() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Write serializes t to w.
func Write(w io.Writer, format Format, t *model.Trace) error {
	switch format {
	case FormatProto:
		data, err := protofmt.MarshalTrace(t)
		if err != nil {
			return fmt.Errorf("output: encode proto: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatJSON:
		return writeJSON(w, t)
	case FormatChrome:
		ct, err := chrome.ProjectTrace(t)
		if err != nil {
			return fmt.Errorf("output: chrome: %w", err)
		}
		return writeJSON(w, ct)
	case FormatPerfetto:
		pt, err := perfetto.Project(t)
		if err != nil {
			return fmt.Errorf("output: perfetto: %w", err)
		}
		_, err = w.Write(perfetto.Marshal(pt))
		return err
	case FormatYAML:
		return writeYAML(w, t)
	case FormatDOT:
		_, err := io.WriteString(w, callgraph.DOT(t, "spoor call graph"))
		return err
	case FormatCSV:
		return WriteFunctionsCSV(w, t.Functions)
	case FormatNone:
		return nil
	default:
		return fmt.Errorf("%w '%s'", ErrUnknownFormat, format)
	}
}

// functionColumns are the CSV header columns.
var functionColumns = []string{
	"function_id",
	"module_id",
	"linkage_name",
	"demangled_name",
	"file_name",
	"directory",
	"line",
	"instrumented",
}

// WriteFunctionsCSV writes one row per function, sorted by id.
func WriteFunctionsCSV(w io.Writer, functions map[string]model.FunctionInfo) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(functionColumns); err != nil {
		return fmt.Errorf("output: csv header: %w", err)
	}

	ids := make([]string, 0, len(functions))
	for id := range functions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fi := functions[id]
		line := ""
		if fi.Line >= 1 {
			line = strconv.Itoa(int(fi.Line))
		}
		row := []string{
			id,
			fi.ModuleID,
			fi.LinkageName,
			fi.DemangledName,
			fi.FileName,
			fi.Directory,
			line,
			strconv.FormatBool(fi.Instrumented),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("output: csv row %s: %w", id, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode json: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode yaml: %w", err)
	}
	return enc.Close()
}
