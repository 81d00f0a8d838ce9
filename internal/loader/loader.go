// Package loader reads trace files from disk and decodes each one according
// to its extension.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"spoor/internal/model"
	"spoor/internal/protofmt"
	"spoor/internal/tracefmt"
)

// Kind is the input kind implied by a file extension.
type Kind int

const (
	KindTrace Kind = iota
	KindBinaryTrace
	KindFunctionMap
)

// Recognized file extensions, without the leading dot.
const (
	ExtTrace       = "spoor"
	ExtBinaryTrace = "spoor_trace"
	ExtFunctionMap = "spoor_function_map"
)

// DefaultConcurrency bounds parallel file reads when Options.Concurrency is 0.
const DefaultConcurrency = 8

var ErrUnsupportedExtension = errors.New("unsupported file extension")

func (k Kind) String() string {
	switch k {
	case KindTrace:
		return "trace"
	case KindBinaryTrace:
		return "binary trace"
	case KindFunctionMap:
		return "function map"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SupportedExtensions renders the accepted extensions for messages.
func SupportedExtensions() string {
	return "." + ExtTrace + ", ." + ExtBinaryTrace + ", and ." + ExtFunctionMap
}

// Classify maps path's extension to an input kind.
func Classify(path string) (Kind, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch ext {
	case ExtTrace:
		return KindTrace, nil
	case ExtBinaryTrace:
		return KindBinaryTrace, nil
	case ExtFunctionMap:
		return KindFunctionMap, nil
	default:
		return 0, fmt.Errorf("%w '.%s'. Supported file extensions: %s", ErrUnsupportedExtension, ext, SupportedExtensions())
	}
}

// Inputs groups decoded files by kind, each in command-line order.
type Inputs struct {
	Traces       []*model.Trace
	BinaryTraces []*tracefmt.Trace
	FunctionMaps []*model.FunctionMap
}

// Options tunes Load. The zero value is usable.
type Options struct {
	// Concurrency caps parallel reads; zero means DefaultConcurrency.
	Concurrency int
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

// decoded holds one file's result; exactly one pointer is set.
type decoded struct {
	trace       *model.Trace
	binaryTrace *tracefmt.Trace
	functionMap *model.FunctionMap
}

// Load classifies every path up front, then reads and decodes the files
// concurrently. The first failure cancels the remaining reads.
func Load(ctx context.Context, paths []string, opts Options) (*Inputs, error) {
	kinds := make([]Kind, len(paths))
	for i, p := range paths {
		k, err := Classify(p)
		if err != nil {
			return nil, err
		}
		kinds[i] = k
	}

	readFile := opts.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]decoded, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := readFile(p)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no such file '%s'", p)
				}
				return fmt.Errorf("read %s: %w", p, err)
			}
			d, err := decode(kinds[i], data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", p, err)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &Inputs{}
	for _, d := range results {
		switch {
		case d.trace != nil:
			in.Traces = append(in.Traces, d.trace)
		case d.binaryTrace != nil:
			in.BinaryTraces = append(in.BinaryTraces, d.binaryTrace)
		case d.functionMap != nil:
			in.FunctionMaps = append(in.FunctionMaps, d.functionMap)
		}
	}
	return in, nil
}

func decode(k Kind, data []byte) (decoded, error) {
	switch k {
	case KindTrace:
		t, err := protofmt.UnmarshalTrace(data)
		return decoded{trace: t}, err
	case KindBinaryTrace:
		t, err := tracefmt.Decode(data)
		return decoded{binaryTrace: t}, err
	case KindFunctionMap:
		m, err := protofmt.UnmarshalFunctionMap(data)
		return decoded{functionMap: m}, err
	default:
		return decoded{}, fmt.Errorf("cannot parse input kind %s", k)
	}
}
