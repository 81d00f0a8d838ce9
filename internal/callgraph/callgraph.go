// Package callgraph derives a caller/callee graph from the entry/exit
// nesting of a merged trace.
package callgraph

import (
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"spoor/internal/model"
)

// thread identifies one call stack.
type thread struct {
	session, process, thread string
}

// Build replays entries and exits per (session, process, thread). Each entry
// made while another frame is open adds an edge from that frame to the new
// one. An exit unwinds to the innermost matching frame; exits with no
// matching frame are ignored. Node names are demangled names when known,
// else function ids.
func Build(t *model.Trace) *lattice.Graph {
	g := &lattice.Graph{}
	seen := make(map[string]bool)
	stacks := make(map[thread][]string)

	for _, e := range t.Events {
		key := thread{e.SessionID, e.ProcessID, e.ThreadID}
		stack := stacks[key]

		switch e.Type {
		case model.FunctionEntry:
			name := displayName(t, e.FunctionID)
			if !seen[name] {
				seen[name] = true
				g.Nodes = append(g.Nodes, name)
			}
			if len(stack) > 0 {
				g.Edges = append(g.Edges, lattice.Edge{
					Caller: displayName(t, stack[len(stack)-1]),
					Callee: name,
				})
			}
			stacks[key] = append(stack, e.FunctionID)
		case model.FunctionExit:
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == e.FunctionID {
					stacks[key] = stack[:i]
					break
				}
			}
		}
	}
	g.Dedup()
	return g
}

// DOT renders the call graph of t.
func DOT(t *model.Trace, title string) string {
	return render.DOT(Build(t), title)
}

func displayName(t *model.Trace, functionID string) string {
	if info, ok := t.Lookup(functionID); ok && info.DemangledName != "" {
		return info.DemangledName
	}
	return functionID
}
