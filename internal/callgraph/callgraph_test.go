package callgraph

import (
	"testing"

	"spoor/internal/model"
)

func ev(tid, fid string, typ model.EventType) model.Event {
	return model.Event{SessionID: "s", ProcessID: "p", ThreadID: tid, FunctionID: fid, Type: typ}
}

func TestBuildNesting(t *testing.T) {
	tr := &model.Trace{
		Events: []model.Event{
			ev("t1", "main", model.FunctionEntry),
			ev("t1", "fib", model.FunctionEntry),
			ev("t1", "fib", model.FunctionEntry),
			ev("t1", "fib", model.FunctionExit),
			ev("t1", "fib", model.FunctionExit),
			ev("t1", "log", model.FunctionEntry),
			ev("t1", "log", model.FunctionExit),
			ev("t1", "main", model.FunctionExit),
		},
		Functions: map[string]model.FunctionInfo{
			"fib": {DemangledName: "fib(int)"},
		},
	}

	g := Build(tr)

	if len(g.Nodes) != 3 {
		t.Errorf("expected 3 nodes, got %d: %v", len(g.Nodes), g.Nodes)
	}
	edges := make(map[string]bool)
	for _, e := range g.Edges {
		edges[e.Caller+" -> "+e.Callee] = true
	}
	for _, want := range []string{"main -> fib(int)", "main -> log"} {
		if !edges[want] {
			t.Errorf("missing edge %s in %v", want, g.Edges)
		}
	}
	if edges["log -> fib(int)"] || edges["fib(int) -> log"] {
		t.Errorf("log should hang off main only: %v", g.Edges)
	}
}

func TestBuildThreadsAreSeparate(t *testing.T) {
	tr := &model.Trace{
		Events: []model.Event{
			ev("t1", "a", model.FunctionEntry),
			ev("t2", "b", model.FunctionEntry),
			ev("t2", "b", model.FunctionExit),
			ev("t1", "a", model.FunctionExit),
		},
	}
	g := Build(tr)
	if len(g.Edges) != 0 {
		t.Errorf("expected no edges across threads, got %v", g.Edges)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(g.Nodes))
	}
}

func TestBuildUnwindsToMatchingFrame(t *testing.T) {
	tr := &model.Trace{
		Events: []model.Event{
			ev("t1", "a", model.FunctionEntry),
			ev("t1", "b", model.FunctionEntry),
			ev("t1", "c", model.FunctionEntry),
			ev("t1", "x", model.FunctionExit), // unmatched, ignored
			ev("t1", "b", model.FunctionExit), // unwinds c and b
			ev("t1", "d", model.FunctionEntry),
		},
	}
	g := Build(tr)
	found := false
	for _, e := range g.Edges {
		if e.Caller == "a" && e.Callee == "d" {
			found = true
		}
		if e.Callee == "d" && e.Caller != "a" {
			t.Errorf("d attached to %s, want a", e.Caller)
		}
	}
	if !found {
		t.Errorf("missing edge a -> d in %v", g.Edges)
	}
}

func TestDOT(t *testing.T) {
	tr := &model.Trace{
		Events: []model.Event{
			ev("t1", "a", model.FunctionEntry),
			ev("t1", "b", model.FunctionEntry),
		},
	}
	if dot := DOT(tr, "spoor call graph"); dot == "" {
		t.Error("expected non-empty DOT output")
	}
}
