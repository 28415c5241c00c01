package ogc

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/observability"
)

// maxBody caps one upstream response; larger bodies are refused, not truncated.
var maxBody int64 = 32 << 20

type Response struct {
	Body        []byte
	ContentType string
}

// Get issues one GET against an OGC endpoint. Exception envelopes and error statuses become
// RemoteService errors; there is no retry.
func Get(ctx context.Context, c *http.Client, rawURL, upstream, operation string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindInvalidRequest, err, "build %s request", operation)
	}

	start := time.Now()
	resp, err := c.Do(req)
	observability.ObserveUpstreamLatency(upstream, operation, time.Since(start).Seconds())
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindRemoteService, err, "%s %s", upstream, operation)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindRemoteService, err, "read %s response", operation)
	}
	if int64(len(body)) > maxBody {
		return Response{}, apperr.New(apperr.KindRemoteService, "%s %s: response too large (over %d bytes)", upstream, operation, maxBody)
	}
	ct := resp.Header.Get("Content-Type")
	if IsServiceException(ct) {
		return Response{}, RemoteError(body)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Response{}, apperr.New(apperr.KindRemoteService, "%s %s: status %d", upstream, operation, resp.StatusCode)
	}
	return Response{Body: body, ContentType: ct}, nil
}
