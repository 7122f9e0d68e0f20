// Package jupiter quotes swaps through the Jupiter aggregator and derives
// the SOL/USD price used to value pool liquidity.
package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.jup.ag/swap/v1"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Client calls the /quote endpoint only.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient uses the public endpoint when baseURL is empty.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// HTTPError is a non-2xx quote response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("jupiter quote: status %d", e.StatusCode)
	}
	return fmt.Sprintf("jupiter quote: status %d: %s", e.StatusCode, e.Body)
}

// Quote returns an ExactIn quote for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if req.InputMint.IsZero() || req.OutputMint.IsZero() {
		return nil, fmt.Errorf("quote needs both mints")
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint.String())
	q.Set("outputMint", req.OutputMint.String())
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("swapMode", "ExactIn")
	if req.DirectOnly {
		q.Set("onlyDirectRoutes", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out QuoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	return &out, nil
}
