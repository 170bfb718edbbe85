package schema

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// TransformRequestTools sanitizes the tools array of a chat-completions
// request body. Bodies without a non-empty tools array are returned
// unchanged without a full decode. Any failure degrades to the original
// body: a missing sanitization is preferable to a failed request.
func TransformRequestTools(body []byte, cfg *Config) []byte {
	tools := gjson.GetBytes(body, "tools")
	if !tools.IsArray() || len(tools.Array()) == 0 {
		return body
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		logrus.WithError(err).Debug("Schema sanitization skipped: request body is not valid JSON")
		return body
	}

	toolsSlice, ok := req["tools"].([]any)
	if !ok || len(toolsSlice) == 0 {
		return body
	}

	transformed := make([]any, len(toolsSlice))
	for i, tool := range toolsSlice {
		transformed[i] = Transform(tool, cfg)
	}
	req["tools"] = transformed

	out, err := json.Marshal(req)
	if err != nil {
		logrus.WithError(err).Warn("Failed to marshal sanitized request body, keeping original")
		return body
	}
	return out
}
