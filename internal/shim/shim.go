// Package shim decorates an HTTP transport with the compatibility repairs
// Gemini-backed OpenAI gateways need: tool-schema sanitization on the way
// up, and SSE stream repair (stable tool-call indexes, filler-chunk removal,
// thought-signature bridging) on the way down.
package shim

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"gemini-shim/internal/schema"
	"gemini-shim/internal/signature"
	"gemini-shim/internal/sse"
	"gemini-shim/internal/types"
	"gemini-shim/internal/utils"

	"github.com/sirupsen/logrus"
)

// ConversationHeader carries the caller-chosen conversation identity used to
// key signature state across requests. Callers that omit it share one
// fallback conversation.
const (
	ConversationHeader     = "X-Conversation-ID"
	defaultConversationKey = "default"
)

// Transport wraps an inner http.RoundTripper. It only rewrites chat-style
// JSON requests and text/event-stream responses; everything else flows
// through untouched.
type Transport struct {
	inner      http.RoundTripper
	settings   types.ShimSettings
	schemaCfg  *schema.Config
	signatures *signature.Store
}

// NewTransport builds a Transport around inner. A nil inner falls back to
// http.DefaultTransport.
func NewTransport(inner http.RoundTripper, settings types.ShimSettings, signatures *signature.Store) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		inner:      inner,
		settings:   settings,
		schemaCfg:  schema.NewConfig(settings.SchemaRemoveKeywords, nil),
		signatures: signatures,
	}
}

// WithKeywordTransforms registers additional schema keyword transforms.
// Removals are configurable through the environment but transform functions
// can only be supplied by embedders through this API. Returns the receiver
// for chaining; call before the first request.
func (t *Transport) WithKeywordTransforms(transforms map[string]schema.TransformFunc) *Transport {
	t.schemaCfg = schema.NewConfig(t.settings.SchemaRemoveKeywords, transforms)
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	convKey := conversationKey(req)
	repairs := repairsFromContext(req.Context())

	if req.Body != nil && req.Body != http.NoBody && isJSONRequest(req) {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = t.rewriteRequestBody(body, convKey, repairs)
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		req.Header.Del("Content-Length")
	}
	// The conversation header is shim-internal and must not leak upstream.
	req.Header.Del(ConversationHeader)

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !isEventStream(resp) {
		return resp, nil
	}
	// With every stream repair disabled the body must flow through untouched,
	// byte for byte, including its framing and Content-Encoding.
	if !t.settings.PatchToolCallIndexes && !t.settings.FilterEmptyChunks && !t.settings.BridgeThoughtSignatures {
		return resp, nil
	}

	encoding := resp.Header.Get("Content-Encoding")
	decoded, known, decErr := utils.WrapDecoder(encoding, resp.Body)
	if decErr != nil || !known {
		if decErr != nil {
			logrus.WithError(decErr).Warn("Failed to set up SSE decoder, forwarding unmodified")
		}
		return resp, nil
	}
	if encoding != "" && encoding != "identity" {
		// The repaired stream is re-emitted decoded, so the encoding header
		// no longer describes the body.
		resp.Header.Del("Content-Encoding")
	}

	var onSignature func(string)
	if t.settings.BridgeThoughtSignatures && t.signatures != nil {
		onSignature = func(sig string) {
			if repairs != nil {
				repairs.SignatureCaptured = true
			}
			t.signatures.Save(convKey, sig)
		}
	}
	if repairs != nil {
		repairs.StreamRepaired = true
	}

	resp.Body = &closeCoupler{
		reader: sse.NewStreamTransformer(io.NopCloser(decoded), sse.Options{
			PatchToolCallIndexes:    t.settings.PatchToolCallIndexes,
			FilterEmptyChunks:       t.settings.FilterEmptyChunks,
			BridgeThoughtSignatures: t.settings.BridgeThoughtSignatures,
		}, onSignature),
		underlying: resp.Body,
	}
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

// rewriteRequestBody applies the outbound repairs: tool-schema sanitization
// and thought-signature injection. Failures leave the body unchanged.
func (t *Transport) rewriteRequestBody(body []byte, convKey string, repairs *Repairs) []byte {
	if t.settings.SanitizeToolSchemas {
		rewritten := schema.TransformRequestTools(body, t.schemaCfg)
		if repairs != nil && !bytes.Equal(rewritten, body) {
			repairs.SchemasSanitized = true
		}
		body = rewritten
	}
	if t.settings.BridgeThoughtSignatures && t.signatures != nil {
		if sig := t.signatures.Load(convKey); sig != "" {
			injected := signature.Inject(body, sig)
			if repairs != nil && !bytes.Equal(injected, body) {
				repairs.SignatureInjected = true
			}
			body = injected
		}
	}
	return body
}

func conversationKey(req *http.Request) string {
	if v := strings.TrimSpace(req.Header.Get(ConversationHeader)); v != "" {
		return v
	}
	return defaultConversationKey
}

func isJSONRequest(req *http.Request) bool {
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.HasPrefix(ct, "application/json")
	}
	return mediaType == "application/json"
}

func isEventStream(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.HasPrefix(ct, "text/event-stream")
	}
	return mediaType == "text/event-stream"
}

// closeCoupler makes sure closing the repaired stream also closes the raw
// upstream body even when a decompressor sits between them.
type closeCoupler struct {
	reader     io.ReadCloser
	underlying io.ReadCloser
}

func (c *closeCoupler) Read(p []byte) (int, error) { return c.reader.Read(p) }

func (c *closeCoupler) Close() error {
	err := c.reader.Close()
	if uerr := c.underlying.Close(); err == nil {
		err = uerr
	}
	return err
}
