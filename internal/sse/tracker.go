package sse

import (
	"math"
	"strconv"
)

// choiceState tracks tool-call index assignment for one choice of one
// stream. The same logical call must keep one index across every fragment,
// and indices assigned by the tracker are dense in first-seen order.
type choiceState struct {
	nextIndex int
	assigned  map[string]int
}

func newChoiceState() *choiceState {
	return &choiceState{assigned: make(map[string]int)}
}

// toolCallKey derives the stable identity of a tool-call fragment: the id
// when present, else the function name prefixed to keep it from colliding
// with raw ids. Fragments with neither are always treated as new calls.
func toolCallKey(call map[string]any) string {
	if id, ok := call["id"].(string); ok && id != "" {
		return id
	}
	if fn, ok := call["function"].(map[string]any); ok {
		if name, ok := fn["name"].(string); ok && name != "" {
			return "fn:" + name
		}
	}
	return ""
}

// ensureToolCallIndex guarantees the fragment ends with a finite numeric
// index, reusing the index previously assigned to the same logical call.
// Returns whether the fragment was modified.
func ensureToolCallIndex(st *choiceState, call map[string]any) bool {
	key := toolCallKey(call)
	mutated := false

	// Some gateways send the index as a numeric string.
	if s, ok := call["index"].(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			call["index"] = float64(int(f))
			mutated = true
		} else {
			delete(call, "index")
		}
	}

	if f, ok := call["index"].(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		idx := int(f)
		if st.nextIndex <= idx {
			st.nextIndex = idx + 1
		}
		if key != "" {
			st.assigned[key] = idx
		}
		return mutated
	}

	if key != "" {
		if idx, seen := st.assigned[key]; seen {
			call["index"] = float64(idx)
			return true
		}
	}

	idx := st.nextIndex
	st.nextIndex++
	if key != "" {
		st.assigned[key] = idx
	}
	call["index"] = float64(idx)
	return true
}
