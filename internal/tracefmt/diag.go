package tracefmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagInfo          DiagKind = "info"
	DiagVersion       DiagKind = "version"
	DiagNonMonotonic  DiagKind = "non_monotonic"
	DiagUnmatchedExit DiagKind = "unmatched_exit"
)

// Diag records a semantic issue found by Lint. Index is the event index, or
// -1 for header-level findings.
type Diag struct {
	Index int      `json:"index"`
	Kind  DiagKind `json:"kind"`
	Msg   string   `json:"msg"`
}

func (d Diag) String() string {
	if d.Index < 0 {
		return fmt.Sprintf("[%s] header: %s", d.Kind, d.Msg)
	}
	return fmt.Sprintf("[%s] event %d: %s", d.Kind, d.Index, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Addf(index int, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Index: index, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Problems counts diagnostics other than DiagInfo.
func (d *Diags) Problems() int {
	n := 0
	for _, it := range d.items {
		if it.Kind != DiagInfo {
			n++
		}
	}
	return n
}

// Lint checks the invariants Decode does not: a known version,
// non-decreasing timestamps, and exits that close an open entry. Frames still open at the end of the trace
// are reported as DiagInfo since the runtime may flush mid-call.
func Lint(t *Trace) *Diags {
	var d Diags

	if t.Header.Version != CurrentVersion {
		d.Addf(-1, DiagVersion, "version %d, expected %d", t.Header.Version, CurrentVersion)
	}

	var stack []uint64
	var prev uint64
	for i, e := range t.Events {
		ts := e.SteadyClockTimestampNanoseconds
		if i > 0 && ts < prev {
			d.Addf(i, DiagNonMonotonic, "timestamp %d precedes previous %d", ts, prev)
		}
		prev = ts

		switch e.Type {
		case FunctionEntry:
			stack = append(stack, e.FunctionID)
		case FunctionExit:
			if len(stack) == 0 || stack[len(stack)-1] != e.FunctionID {
				d.Addf(i, DiagUnmatchedExit, "exit from 0x%016x without matching entry", e.FunctionID)
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		d.Addf(-1, DiagInfo, "%d frames still open at end of trace", len(stack))
	}
	return &d
}
