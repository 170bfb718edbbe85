package utils

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// streamDecoders maps a Content-Encoding token to a streaming reader wrapper.
// Streaming variants are required for SSE bodies, which must be decoded
// incrementally as events arrive.
var streamDecoders = map[string]func(io.Reader) (io.Reader, error){
	"gzip": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
	"deflate": func(r io.Reader) (io.Reader, error) {
		return flate.NewReader(r), nil
	},
	"br": func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	},
	"zstd": func(r io.Reader) (io.Reader, error) {
		return zstd.NewReader(r)
	},
}

// WrapDecoder wraps r with a streaming decoder for the given Content-Encoding.
// Identity and unknown encodings return r unchanged; unknown encodings are
// reported so the caller can decide whether to touch the body at all.
func WrapDecoder(contentEncoding string, r io.Reader) (io.Reader, bool, error) {
	if contentEncoding == "" || contentEncoding == "identity" {
		return r, true, nil
	}
	wrap, ok := streamDecoders[contentEncoding]
	if !ok {
		logrus.Warnf("No decoder registered for encoding '%s', leaving body as-is", contentEncoding)
		return r, false, nil
	}
	decoded, err := wrap(r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create %s decoder: %w", contentEncoding, err)
	}
	return decoded, true, nil
}

// DecodeBody decompresses a complete response body based on its
// Content-Encoding header. Used when capturing bodies for the audit log.
// Failures fall back to the original bytes so capture never breaks a request.
func DecodeBody(contentEncoding string, data []byte) []byte {
	if contentEncoding == "" || contentEncoding == "identity" || len(data) == 0 {
		return data
	}
	decoded, known, err := WrapDecoder(contentEncoding, bytes.NewReader(data))
	if err != nil || !known {
		return data
	}
	out, err := io.ReadAll(decoded)
	if err != nil {
		logrus.WithError(err).Warnf("Failed to decode '%s' body, keeping original data", contentEncoding)
		return data
	}
	return out
}
