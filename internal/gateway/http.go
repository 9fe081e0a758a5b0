package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yoockh/medscribe/internal/models"
)

const maxResponseBytes = 1 << 20

// HTTPSummarizer posts the transcript as JSON to a summarization API.
type HTTPSummarizer struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPSummarizer(url, apiKey string, timeout time.Duration) *HTTPSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSummarizer{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPSummarizer) Summarize(ctx context.Context, req Request) (*models.ConsultationSummary, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("summary api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read summary api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary api error: %s - %s", resp.Status, string(data))
	}

	return DecodeResponse(data)
}
