// Package merge reconciles structured traces, binary traces, and standalone
// function maps into one chronologically ordered structured trace.
package merge

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"spoor/internal/model"
	"spoor/internal/tracefmt"
)

// ErrConflictingFunctionInfo is matched by *ConflictingFunctionInfoError.
var ErrConflictingFunctionInfo = errors.New("conflicting function info")

// ConflictingFunctionInfoError names a function id that two sources
// describe differently.
type ConflictingFunctionInfoError struct {
	FunctionID string
}

func (e *ConflictingFunctionInfoError) Error() string {
	return fmt.Sprintf("merge: conflicting entries found for function ID '%s'", e.FunctionID)
}

func (e *ConflictingFunctionInfoError) Is(target error) bool {
	return target == ErrConflictingFunctionInfo
}

// domain is one recording domain: every thread of one process in one
// session shares a steady clock and therefore one offset.
type domain struct {
	sessionID uint64
	processID int64
}

type anchor struct {
	system uint64
	steady uint64
}

// offset converts a steady-clock reading to wall-clock nanoseconds.
func (a anchor) offset() int64 {
	return int64(a.system) - int64(a.steady)
}

// Merge builds one structured trace from all inputs. A zero now stamps the
// result with time.Now(). Nil slice elements are skipped.
//
// Structured events are taken as-is. Binary events are shifted into the
// wall-clock domain using, per (session, process), the header with the
// earliest system-clock timestamp. All events are then stably sorted by
// timestamp, so equal instants keep structured-before-binary input order.
//
// Function maps are merged from structured traces first, then standalone
// maps, in input order; an id mapped to two different infos fails the whole
// call. Functions from a standalone map without a ModuleID are stamped with
// the map's module. Modules are deduplicated and sorted.
func Merge(traces []*model.Trace, binaryTraces []*tracefmt.Trace, functionMaps []*model.FunctionMap, now time.Time) (*model.Trace, error) {
	if now.IsZero() {
		now = time.Now()
	}

	functions, err := mergeFunctions(traces, functionMaps)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, countEvents(traces, binaryTraces))
	for _, t := range traces {
		if t == nil {
			continue
		}
		events = append(events, t.Events...)
	}

	anchors := domainAnchors(binaryTraces)
	for _, bt := range binaryTraces {
		if bt == nil {
			continue
		}
		events = appendBinaryEvents(events, bt, anchors[domainOf(bt)])
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return &model.Trace{
		Events:    events,
		Modules:   mergeModules(traces, functionMaps),
		Functions: functions,
		CreatedAt: model.TimestampFromTime(now),
	}, nil
}

func domainOf(bt *tracefmt.Trace) domain {
	return domain{sessionID: bt.Header.SessionID, processID: bt.Header.ProcessID}
}

// domainAnchors picks, for every recording domain, the header with the
// smallest system-clock timestamp. Ties keep the first header seen.
func domainAnchors(binaryTraces []*tracefmt.Trace) map[domain]anchor {
	anchors := make(map[domain]anchor)
	for _, bt := range binaryTraces {
		if bt == nil {
			continue
		}
		key := domainOf(bt)
		cand := anchor{
			system: bt.Header.SystemClockTimestampNanoseconds,
			steady: bt.Header.SteadyClockTimestampNanoseconds,
		}
		if cur, ok := anchors[key]; !ok || cand.system < cur.system {
			anchors[key] = cand
		}
	}
	return anchors
}

func appendBinaryEvents(events []model.Event, bt *tracefmt.Trace, a anchor) []model.Event {
	sessionID := model.ID(bt.Header.SessionID).String()
	processID := model.ID(uint64(bt.Header.ProcessID)).String()
	threadID := model.ID(bt.Header.ThreadID).String()
	offset := a.offset()

	for _, e := range bt.Events {
		wall := int64(e.SteadyClockTimestampNanoseconds) + offset
		events = append(events, model.Event{
			SessionID:  sessionID,
			ProcessID:  processID,
			ThreadID:   threadID,
			FunctionID: model.ID(e.FunctionID).String(),
			Type:       e.Type.ModelType(),
			Timestamp:  model.TimestampFromNanoseconds(wall),
		})
	}
	return events
}

func mergeFunctions(traces []*model.Trace, functionMaps []*model.FunctionMap) (map[string]model.FunctionInfo, error) {
	merged := make(map[string]model.FunctionInfo)
	add := func(fns map[string]model.FunctionInfo, moduleID string) error {
		// Ids are visited in sorted order; the first conflicting one is reported.
		for _, id := range sortedKeys(fns) {
			info := fns[id]
			if info.ModuleID == "" {
				info.ModuleID = moduleID
			}
			existing, ok := merged[id]
			if !ok {
				merged[id] = info
				continue
			}
			if !sameFunction(existing, info) {
				return &ConflictingFunctionInfoError{FunctionID: id}
			}
			if existing.ModuleID == "" {
				merged[id] = info
			}
		}
		return nil
	}

	for _, t := range traces {
		if t == nil {
			continue
		}
		if err := add(t.Functions, ""); err != nil {
			return nil, err
		}
	}
	for _, m := range functionMaps {
		if m == nil {
			continue
		}
		if err := add(m.Functions, m.ModuleID); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// sameFunction compares debug metadata only. The module is provenance; the
// first module seen for an id is kept.
func sameFunction(a, b model.FunctionInfo) bool {
	a.ModuleID, b.ModuleID = "", ""
	return a == b
}

func mergeModules(traces []*model.Trace, functionMaps []*model.FunctionMap) []string {
	seen := make(map[string]struct{})
	modules := []string{}
	add := func(m string) {
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		modules = append(modules, m)
	}
	for _, t := range traces {
		if t == nil {
			continue
		}
		for _, m := range t.Modules {
			add(m)
		}
	}
	for _, fm := range functionMaps {
		if fm == nil {
			continue
		}
		add(fm.ModuleID)
	}
	slices.Sort(modules)
	return modules
}

func countEvents(traces []*model.Trace, binaryTraces []*tracefmt.Trace) int {
	n := 0
	for _, t := range traces {
		if t != nil {
			n += len(t.Events)
		}
	}
	for _, bt := range binaryTraces {
		if bt != nil {
			n += len(bt.Events)
		}
	}
	return n
}

func sortedKeys(m map[string]model.FunctionInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
