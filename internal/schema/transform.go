// Package schema sanitizes JSON-Schema tool definitions before they are sent
// to upstreams that reject or mishandle parts of the vocabulary.
package schema

// TransformFunc rewrites a single keyword's value into one or more
// replacement keywords. All keys of the returned map are merged into the
// transformed object; callers registering custom transforms must avoid
// emitting keys that collide with sibling output.
type TransformFunc func(value any) map[string]any

// Config controls which keywords are removed and which are rewritten.
// Immutable after construction; one Config is shared by every request that
// flows through a shim instance.
type Config struct {
	RemoveKeywords    map[string]struct{}
	KeywordTransforms map[string]TransformFunc
}

// defaultRemoveKeywords are JSON-Schema keywords Gemini's OpenAI-compat layer
// rejects. $ref is removed rather than resolved: following references would
// require a registry the wire format does not carry.
var defaultRemoveKeywords = []string{
	"propertyNames",
	"patternProperties",
	"dependencies",
	"if",
	"then",
	"else",
	"not",
	"$ref",
	"$id",
	"$schema",
	"$comment",
}

// DefaultConfig returns the built-in removal set and the const→enum rewrite.
func DefaultConfig() *Config {
	cfg := &Config{
		RemoveKeywords:    make(map[string]struct{}, len(defaultRemoveKeywords)),
		KeywordTransforms: make(map[string]TransformFunc, 1),
	}
	for _, kw := range defaultRemoveKeywords {
		cfg.RemoveKeywords[kw] = struct{}{}
	}
	cfg.KeywordTransforms["const"] = func(value any) map[string]any {
		return map[string]any{"enum": []any{value}}
	}
	return cfg
}

// NewConfig merges caller-supplied keyword removals and transforms into the
// defaults. Caller transforms override defaults for the same keyword.
func NewConfig(extraRemove []string, extraTransforms map[string]TransformFunc) *Config {
	cfg := DefaultConfig()
	for _, kw := range extraRemove {
		if kw != "" {
			cfg.RemoveKeywords[kw] = struct{}{}
		}
	}
	for kw, fn := range extraTransforms {
		if fn != nil {
			cfg.KeywordTransforms[kw] = fn
		}
	}
	return cfg
}

// Transform returns a sanitized copy of a decoded JSON value. The input is
// never mutated. Scalars pass through, arrays map element-wise, and objects
// drop removed keywords, expand transformed keywords, and recurse into
// nested containers.
func Transform(v any, cfg *Config) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, child := range val {
			if _, removed := cfg.RemoveKeywords[key]; removed {
				continue
			}
			if fn, ok := cfg.KeywordTransforms[key]; ok {
				for rk, rv := range fn(child) {
					out[rk] = rv
				}
				continue
			}
			switch child.(type) {
			case map[string]any, []any:
				out[key] = Transform(child, cfg)
			default:
				out[key] = child
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Transform(child, cfg)
		}
		return out
	default:
		return v
	}
}
