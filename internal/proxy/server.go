// Package proxy relays OpenAI-compatible API traffic to the upstream gateway,
// applying the shim's repairs in flight.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	app_errors "gemini-shim/internal/errors"
	"gemini-shim/internal/models"
	"gemini-shim/internal/response"
	"gemini-shim/internal/services"
	"gemini-shim/internal/shim"
	"gemini-shim/internal/types"
	"gemini-shim/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
)

// maxLoggedErrorLen caps error messages stored in the audit log.
const maxLoggedErrorLen = 512

// hopHeaders are stripped in both directions per RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyServer relays requests under /v1 to the configured upstream.
type ProxyServer struct {
	upstream          types.UpstreamConfig
	settings          types.ShimSettings
	client            *http.Client
	requestLogService *services.RequestLogService
}

// NewProxyServer creates a relay using the given client. The client's
// transport is expected to carry the shim decorations.
func NewProxyServer(configManager types.ConfigManager, client *http.Client, requestLogService *services.RequestLogService) *ProxyServer {
	return &ProxyServer{
		upstream:          configManager.GetUpstreamConfig(),
		settings:          configManager.GetShimSettings(),
		client:            client,
		requestLogService: requestLogService,
	}
}

// HandleProxy relays one request. It captures conversation identity and a
// body preview for the audit log before the transport consumes the body.
func (ps *ProxyServer) HandleProxy(c *gin.Context) {
	start := time.Now()

	entry := &models.RequestLog{
		Timestamp:      start,
		ConversationID: strings.TrimSpace(c.GetHeader(shim.ConversationHeader)),
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		SourceIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	}

	var bodyBytes []byte
	if c.Request.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(c.Request.Body)
		c.Request.Body.Close()
		if err != nil {
			response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, "failed to read request body"))
			return
		}
	}
	if len(bodyBytes) > 0 {
		entry.Model = gjson.GetBytes(bodyBytes, "model").String()
		entry.IsStream = gjson.GetBytes(bodyBytes, "stream").Bool()
		if ps.settings.EnableRequestBodyLog {
			decoded := utils.DecodeBody(c.GetHeader("Content-Encoding"), bodyBytes)
			if json.Valid(decoded) {
				entry.RequestBody = datatypes.JSON(decoded)
			}
		}
	}

	upstreamReq, err := ps.buildUpstreamRequest(c, bodyBytes)
	if err != nil {
		response.Error(c, app_errors.NewAPIError(app_errors.ErrBadRequest, err.Error()))
		return
	}

	ctx, repairs := shim.WithRepairs(upstreamReq.Context())
	upstreamReq = upstreamReq.WithContext(ctx)

	resp, err := ps.client.Do(upstreamReq)
	if err != nil {
		ps.finishWithError(c, entry, start, err)
		return
	}
	defer resp.Body.Close()

	entry.StatusCode = resp.StatusCode

	copyResponseHeaders(c, resp)
	c.Status(resp.StatusCode)

	if err := ps.streamBody(c, resp.Body); err != nil {
		entry.ErrorMessage = utils.TruncateString(err.Error(), maxLoggedErrorLen)
		logrus.WithFields(logrus.Fields{
			"path":  entry.Path,
			"error": err,
		}).Debug("Response stream interrupted")
	}

	ps.finish(entry, start, repairs)
}

// buildUpstreamRequest rewrites the inbound request against the upstream
// base URL, filters hop-by-hop headers and swaps in the upstream credential.
// The full inbound path (including /v1) is preserved, so UPSTREAM_BASE_URL
// is a bare origin.
func (ps *ProxyServer) buildUpstreamRequest(c *gin.Context, body []byte) (*http.Request, error) {
	target, err := url.Parse(ps.upstream.BaseURL + c.Request.URL.EscapedPath())
	if err != nil {
		return nil, err
	}
	target.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	req.Header = c.Request.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Host = target.Host

	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", utils.GenerateRequestID())
	}
	if ps.upstream.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ps.upstream.APIKey)
	}
	return req, nil
}

// streamBody copies the (already repaired) response body to the client,
// flushing after every read so SSE events leave as they arrive.
func (ps *ProxyServer) streamBody(c *gin.Context, body io.Reader) error {
	flusher, _ := c.Writer.(http.Flusher)

	buf := utils.GetBuffer()
	defer utils.PutBuffer(buf)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (ps *ProxyServer) finishWithError(c *gin.Context, entry *models.RequestLog, start time.Time, err error) {
	apiErr := app_errors.ErrBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		apiErr = app_errors.ErrUpstreamTimeout
	}
	logrus.WithFields(logrus.Fields{
		"path":  entry.Path,
		"error": err,
	}).Error("Upstream request failed")

	entry.StatusCode = apiErr.HTTPStatus
	entry.ErrorMessage = utils.TruncateString(err.Error(), maxLoggedErrorLen)
	response.Error(c, apiErr)
	ps.finish(entry, start, nil)
}

func (ps *ProxyServer) finish(entry *models.RequestLog, start time.Time, repairs *shim.Repairs) {
	entry.DurationMs = time.Since(start).Milliseconds()
	if repairs != nil {
		summary := models.RepairSummary{
			SchemasSanitized:  repairs.SchemasSanitized,
			SignatureInjected: repairs.SignatureInjected,
			SignatureCaptured: repairs.SignatureCaptured,
		}
		if data, err := json.Marshal(summary); err == nil {
			entry.Repairs = datatypes.JSON(data)
		}
	}
	ps.requestLogService.Record(entry)
}

func copyResponseHeaders(c *gin.Context, resp *http.Response) {
	headers := c.Writer.Header()
	for key, values := range resp.Header {
		if isHopHeader(key) || key == "Content-Length" {
			continue
		}
		for _, v := range values {
			headers.Add(key, v)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(key) == h {
			return true
		}
	}
	return false
}
