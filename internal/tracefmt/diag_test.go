package tracefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLintClean(t *testing.T) {
	d := Lint(sampleTrace())
	assert.Zero(t, d.Len())
	assert.Zero(t, d.Problems())
}

func TestLintFindings(t *testing.T) {
	tr := &Trace{
		Header: Header{Version: 3, EventCount: 4},
		Events: []Event{
			{Type: FunctionEntry, FunctionID: 1, SteadyClockTimestampNanoseconds: 10},
			{Type: FunctionEntry, FunctionID: 2, SteadyClockTimestampNanoseconds: 9},
			{Type: FunctionExit, FunctionID: 3, SteadyClockTimestampNanoseconds: 11},
			{Type: FunctionExit, FunctionID: 2, SteadyClockTimestampNanoseconds: 12},
		},
	}
	d := Lint(tr)

	var kinds []DiagKind
	for _, it := range d.Items() {
		kinds = append(kinds, it.Kind)
	}
	assert.Equal(t, []DiagKind{DiagVersion, DiagNonMonotonic, DiagUnmatchedExit, DiagInfo}, kinds)
	assert.Equal(t, 3, d.Problems())
	assert.Equal(t, "[non_monotonic] event 1: timestamp 9 precedes previous 10", d.Items()[1].String())
	assert.Equal(t, "[info] header: 1 frames still open at end of trace", d.Items()[3].String())
}
