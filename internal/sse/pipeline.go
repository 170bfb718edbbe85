package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"gemini-shim/internal/signature"

	"github.com/sirupsen/logrus"
)

// Options selects which repairs the pipeline applies.
type Options struct {
	PatchToolCallIndexes    bool
	FilterEmptyChunks       bool
	BridgeThoughtSignatures bool
}

// StreamTransformer is a pull-driven io.ReadCloser that repairs a
// chat-completions SSE stream event by event. Each Read drains already
// corrected bytes before consuming more of the upstream, so backpressure is
// structural: the upstream is never read ahead of the downstream.
type StreamTransformer struct {
	upstream io.ReadCloser
	reader   *bufio.Reader
	opts     Options

	choices            map[int]*choiceState
	sawToolCallsFinish bool
	eventCount         int
	capturedSig        string
	onSignature        func(string)

	pending []byte
	err     error
	eof     bool
	closed  bool
}

// NewStreamTransformer wraps an upstream response body. onSignature, when
// non-nil, receives the last thought signature captured from the stream
// once the stream completes; it is not called for streams that end in error
// or capture nothing.
func NewStreamTransformer(upstream io.ReadCloser, opts Options, onSignature func(string)) *StreamTransformer {
	return &StreamTransformer{
		upstream:    upstream,
		reader:      bufio.NewReader(upstream),
		opts:        opts,
		choices:     make(map[int]*choiceState),
		onSignature: onSignature,
	}
}

// Read implements io.Reader.
func (t *StreamTransformer) Read(p []byte) (int, error) {
	for len(t.pending) == 0 && !t.eof {
		ev, err := readEvent(t.reader)
		if ev != nil {
			t.pending = append(t.pending, t.processEvent(ev)...)
		}
		if err == io.EOF {
			t.finish()
			t.eof = true
			break
		}
		if err != nil {
			// Terminal read error: surface it after draining what was
			// already corrected. Cancellation arrives here too and is the
			// caller's own doing, not a pipeline failure.
			t.err = err
			t.eof = true
			break
		}
	}

	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	if t.err != nil {
		return 0, t.err
	}
	return 0, io.EOF
}

// Close closes the upstream body, cancelling any in-flight upstream read.
func (t *StreamTransformer) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.upstream.Close()
}

// finish runs once at end of stream and hands the captured signature to the
// cross-request store.
func (t *StreamTransformer) finish() {
	if t.capturedSig != "" && t.onSignature != nil {
		t.onSignature(t.capturedSig)
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"events":             t.eventCount,
			"signature_captured": t.capturedSig != "",
		}).Debug("SSE stream completed")
	}
}

// processEvent applies the per-event pipeline: pass-through, mutate, or
// drop. Malformed payloads always pass through verbatim; broken upstream
// data must never break the pipe.
func (t *StreamTransformer) processEvent(ev *Event) []byte {
	payload := ev.Data()
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" || trimmed == "[DONE]" {
		return ev.Raw()
	}

	var chunk map[string]any
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return ev.Raw()
	}

	choicesVal, ok := chunk["choices"]
	if !ok {
		return ev.Raw()
	}
	choices, ok := choicesVal.([]any)
	if !ok || len(choices) == 0 {
		// An explicitly empty choices array is valid for non-chat payloads.
		return ev.Raw()
	}

	t.eventCount++

	if t.opts.BridgeThoughtSignatures {
		if sig := signature.ExtractFromChoices(choices); sig != "" {
			t.capturedSig = sig
		}
	}

	// Gemini gateways keep emitting filler chunks after the tool-call turn
	// finished; clients treat them as a malformed continuation.
	if t.opts.FilterEmptyChunks && t.sawToolCallsFinish && allDeltasEmpty(choices) {
		return nil
	}

	mutated := false
	for _, ch := range choices {
		chMap, ok := ch.(map[string]any)
		if !ok {
			continue
		}
		if fr, _ := chMap["finish_reason"].(string); fr == "tool_calls" {
			t.sawToolCallsFinish = true
		}
		if t.opts.PatchToolCallIndexes && t.patchChoice(chMap) {
			mutated = true
		}
	}

	if !mutated {
		return ev.Raw()
	}
	out, err := json.Marshal(chunk)
	if err != nil {
		logrus.WithError(err).Warn("Failed to re-serialize repaired SSE chunk, forwarding original")
		return ev.Raw()
	}
	return ev.WithData(string(out))
}

// patchChoice runs the index tracker over every tool-call fragment of one
// choice's delta.
func (t *StreamTransformer) patchChoice(choice map[string]any) bool {
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return false
	}
	toolCalls, ok := delta["tool_calls"].([]any)
	if !ok || len(toolCalls) == 0 {
		return false
	}

	idx := 0
	if f, ok := choice["index"].(float64); ok {
		idx = int(f)
	}
	state, ok := t.choices[idx]
	if !ok {
		state = newChoiceState()
		t.choices[idx] = state
	}

	mutated := false
	for _, tc := range toolCalls {
		tcMap, ok := tc.(map[string]any)
		if !ok {
			continue
		}
		if ensureToolCallIndex(state, tcMap) {
			mutated = true
		}
	}
	return mutated
}

// allDeltasEmpty reports whether every choice that carries a delta object
// has neither content text nor tool calls. Events without a single delta
// object are never judged empty, to avoid dropping malformed-but-meaningful
// payloads.
func allDeltasEmpty(choices []any) bool {
	sawDelta := false
	for _, ch := range choices {
		chMap, ok := ch.(map[string]any)
		if !ok {
			continue
		}
		delta, ok := chMap["delta"].(map[string]any)
		if !ok {
			continue
		}
		sawDelta = true
		if content, ok := delta["content"].(string); ok && content != "" {
			return false
		}
		if toolCalls, ok := delta["tool_calls"].([]any); ok && len(toolCalls) > 0 {
			return false
		}
	}
	return sawDelta
}
