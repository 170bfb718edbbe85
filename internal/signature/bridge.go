// Package signature bridges Gemini thought signatures across turns. The
// upstream issues an opaque token with a function-calling response and
// expects it echoed back on the next request; OpenAI-compat clients drop it
// because it is not part of the standard wire format.
package signature

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// deltaField is where some gateways surface the signature directly on a
	// streaming delta.
	deltaField = "thought_signature"
	// extensionPath is the provider-extension location on a tool call, both
	// for extraction from responses and injection into requests.
	extensionPath = "extra_content.google.thought_signature"
)

// ExtractFromChoices scans the deltas of a streamed chunk for a thought
// signature. Two locations are checked in order: the delta itself, then the
// provider-extension namespace of the first tool-call fragment. Absence is
// the normal case for turns without function calling.
func ExtractFromChoices(choices []any) string {
	for _, ch := range choices {
		chMap, ok := ch.(map[string]any)
		if !ok {
			continue
		}
		delta, ok := chMap["delta"].(map[string]any)
		if !ok {
			continue
		}

		if sig, ok := delta[deltaField].(string); ok && sig != "" {
			return sig
		}

		toolCalls, ok := delta["tool_calls"].([]any)
		if !ok || len(toolCalls) == 0 {
			continue
		}
		first, ok := toolCalls[0].(map[string]any)
		if !ok {
			continue
		}
		if sig := nestedString(first, "extra_content", "google", deltaField); sig != "" {
			return sig
		}
	}
	return ""
}

// nestedString walks a chain of object keys and returns the string at the
// end, or "" when any step is missing or of the wrong type.
func nestedString(m map[string]any, keys ...string) string {
	cur := any(m)
	for _, key := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// Inject writes the signature onto the most recent function-calling
// assistant message in the request body, on its first tool call only: the
// upstream associates reasoning state with the turn that produced it and
// documents the first parallel call as the carrier. Bodies without such a
// message are returned unchanged; that is the expected outcome for turns
// without function calling.
func Inject(body []byte, sig string) []byte {
	if sig == "" {
		return body
	}

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return body
	}

	msgs := messages.Array()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Get("role").String() != "assistant" {
			continue
		}
		toolCalls := msgs[i].Get("tool_calls")
		if !toolCalls.IsArray() || len(toolCalls.Array()) == 0 {
			continue
		}

		path := "messages." + strconv.Itoa(i) + ".tool_calls.0." + extensionPath
		out, err := sjson.SetBytes(body, path, sig)
		if err != nil {
			return body
		}
		return out
	}
	return body
}
