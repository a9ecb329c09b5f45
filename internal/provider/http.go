package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPMailer delivers email by POSTing JSON to a mail API.
// The URL is injected from config so tests can point to a local mock.
type HTTPMailer struct {
	client *client
}

func NewHTTPMailer(url, apiKey string, timeout time.Duration) *HTTPMailer {
	return &HTTPMailer{client: newClient(url, apiKey, timeout)}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) (*SendResult, error) {
	return m.client.post(ctx, msg)
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// HTTPSMSSender delivers SMS through a JSON gateway.
type HTTPSMSSender struct {
	client *client
}

func NewHTTPSMSSender(url, apiKey string, timeout time.Duration) *HTTPSMSSender {
	return &HTTPSMSSender{client: newClient(url, apiKey, timeout)}
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, body string) (*SendResult, error) {
	return s.client.post(ctx, smsRequest{To: phone, Body: body})
}

type client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func newClient(url, apiKey string, timeout time.Duration) *client {
	return &client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// post sends payload and expects a 2xx answer with a JSON body containing
// messageId. A 4xx answer wraps ErrRejected; anything else is transient.
func (c *client) post(ctx context.Context, payload any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// compile-time checks
var (
	_ Mailer    = (*HTTPMailer)(nil)
	_ SMSSender = (*HTTPSMSSender)(nil)
)
