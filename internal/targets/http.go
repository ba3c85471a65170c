package targets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"eventrouter/internal/constants"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/models"
)

// HTTP posts the envelope as JSON to a webhook. 2xx is success; 408, 429 and
// 5xx are transient; any other status is permanent.
type HTTP struct {
	id      string
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

func NewHTTP(id, url, method string, headers map[string]string, client *http.Client) *HTTP {
	if method == "" {
		method = http.MethodPost
	}
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return &HTTP{
		id:      id,
		url:     url,
		method:  method,
		headers: headers,
		client:  client,
	}
}

func (h *HTTP) ID() string { return h.id }

func (h *HTTP) Invoke(ctx context.Context, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal envelope: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", env.ID)
	if traceID := logging.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= constants.HTTPStatusOKMin && resp.StatusCode < constants.HTTPStatusOKMax {
		return nil
	}

	statusErr := fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return statusErr
	default:
		return Permanent(statusErr)
	}
}
