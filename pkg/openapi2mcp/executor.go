package openapi2mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/memory"
)

var responseBuffers = memory.NewBufferPool()

// execute builds the request for tool, sends it and renders the response.
func (d *Dispatcher) execute(ctx context.Context, tool *ToolDescriptor, args map[string]any, opts BuildOptions) Result {
	built, err := BuildRequest(d.baseURL, tool.Endpoint, args, opts)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.RequestID = RequestIDFromContext(ctx)
			return d.fail(e)
		}
		return d.fail(WrapWithContext(ctx, err, ErrorTypeInvalidArguments, "failed to build request"))
	}

	text, err := d.send(ctx, built)
	if err != nil {
		e, ok := err.(*Error)
		if !ok {
			e = WrapWithContext(ctx, err, ErrorTypeAPICall, fmt.Sprintf("%s %s failed", built.Method, tool.Endpoint.Path))
		}
		e.RequestID = RequestIDFromContext(ctx)
		return d.fail(e)
	}
	return Result{Text: text}
}

// send performs one HTTP call. JSON responses are pretty-printed; any other
// content type is returned as raw text. Non-2xx statuses are errors.
func (d *Dispatcher) send(ctx context.Context, built *BuiltRequest) (string, error) {
	var body io.Reader
	if built.Body != nil {
		body = bytes.NewReader(built.Body)
	}
	req, err := http.NewRequestWithContext(ctx, built.Method, built.URL, body)
	if err != nil {
		return "", NewError(ErrorTypeAPICall, "invalid request", err.Error())
	}
	for k, v := range built.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return "", NewError(ErrorTypeAPICall, "request failed", err.Error())
	}
	defer resp.Body.Close()

	buf := responseBuffers.Get()
	defer responseBuffers.Put(buf)
	tooLarge, err := memory.ReadLimited(buf, resp.Body, d.maxResponse)
	if err != nil {
		return "", NewError(ErrorTypeAPICall, "failed to read response", err.Error())
	}
	data := buf.Bytes()
	d.logger.Debug().
		Str("request_id", RequestIDFromContext(ctx)).
		Str("method", built.Method).
		Str("url", built.URL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("api call")

	if tooLarge {
		return "", NewError(ErrorTypeAPICall, "response too large", fmt.Sprintf("exceeds %d bytes", d.maxResponse))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", NewError(ErrorTypeAPICall,
			fmt.Sprintf("API returned %s", resp.Status),
			strings.TrimSpace(string(data)))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Sprintf("HTTP %s (empty body)", resp.Status), nil
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		out := responseBuffers.Get()
		defer responseBuffers.Put(out)
		if err := json.Indent(out, data, "", "  "); err != nil {
			return "", NewError(ErrorTypeAPICall, "invalid JSON in response", err.Error())
		}
		return out.String(), nil
	}
	return string(data), nil
}
