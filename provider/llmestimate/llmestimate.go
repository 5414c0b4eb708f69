// Package llmestimate produces indicative quotes from an OpenAI-compatible
// chat completion API. Works with OpenAI, Grok/xAI, Cerebras, Together,
// Ollama, and others.
package llmestimate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ineyio/quoterouter"
)

const defaultSystemPrompt = `You are a freight rate analyst. Given a shipment, reply with a single JSON object
and nothing else: {"carrier_name": string, "transit_time": string, "total_cost": number, "currency": string}.
total_cost is the all-in price for the whole shipment in the given currency.`

// Estimator calls POST {baseURL}/chat/completions.
type Estimator struct {
	name         string
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
}

var _ quoterouter.Estimator = (*Estimator)(nil)

// Option configures the estimator.
type Option func(*Estimator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Estimator) { e.httpClient = c }
}

// WithSystemPrompt replaces the default instructions.
func WithSystemPrompt(prompt string) Option {
	return func(e *Estimator) { e.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature (default 0.2).
func WithTemperature(t float64) Option {
	return func(e *Estimator) { e.temperature = t }
}

// New creates an estimator for an OpenAI-compatible endpoint.
func New(baseURL, apiKey, model string, opts ...Option) *Estimator {
	e := &Estimator{
		name:         "llmestimate",
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		systemPrompt: defaultSystemPrompt,
		temperature:  0.2,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOpenAI creates an estimator backed by OpenAI.
func NewOpenAI(apiKey, model string, opts ...Option) *Estimator {
	return New("https://api.openai.com/v1", apiKey, model, opts...)
}

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

type estimate struct {
	CarrierName string          `json:"carrier_name"`
	TransitTime string          `json:"transit_time"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Currency    string          `json:"currency"`
}

// Estimate asks the model for one indicative quote.
func (e *Estimator) Estimate(ctx context.Context, req quoterouter.QuoteRequest) (quoterouter.Quote, error) {
	prompt, err := userPrompt(req)
	if err != nil {
		return quoterouter.Quote{}, err
	}

	temp := e.temperature
	body := apiRequest{
		Model: e.model,
		Messages: []apiMessage{
			{Role: "system", Content: e.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    &temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	httpResp, err := e.doRequest(ctx, body)
	if err != nil {
		return quoterouter.Quote{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return quoterouter.Quote{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return quoterouter.Quote{}, fmt.Errorf("%w: decode response: %v", quoterouter.ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return quoterouter.Quote{}, fmt.Errorf("%w: empty choices in response", quoterouter.ErrMalformedResponse)
	}

	var est estimate
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &est); err != nil {
		return quoterouter.Quote{}, fmt.Errorf("%w: decode estimate: %v", quoterouter.ErrMalformedResponse, err)
	}

	return quoterouter.Quote{
		CarrierName:     strings.TrimSpace(est.CarrierName),
		TransitTime:     strings.TrimSpace(est.TransitTime),
		TotalCost:       est.TotalCost.Round(2),
		Currency:        strings.ToUpper(strings.TrimSpace(est.Currency)),
		ServiceProvider: e.name,
	}, nil
}

func userPrompt(req quoterouter.QuoteRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\nOrigin: %s\nDestination: %s\n", req.Service, req.Origin, req.Destination)
	if len(req.Params) > 0 {
		params, err := json.Marshal(req.Params)
		if err != nil {
			return "", fmt.Errorf("%w: params: %v", quoterouter.ErrInvalidRequest, err)
		}
		fmt.Fprintf(&b, "Shipment details: %s\n", params)
	}
	return b.String(), nil
}

// stripFences removes a ```json ... ``` wrapper some models add despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (e *Estimator) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("quoterouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("quoterouter: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, quoterouter.ErrProviderUnavailable
	}
	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return quoterouter.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return quoterouter.ErrAuthFailed
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", quoterouter.ErrInvalidRequest, string(body))
	default:
		return quoterouter.ErrProviderUnavailable
	}
}
