// Package litellm implements the provider gateway port over a LiteLLM
// proxy. The proxy exposes every configured provider behind one
// OpenAI-compatible chat completion API, so this client is the only place
// provider-specific behavior (status codes, payload shapes) is handled.
package litellm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/quorumlabs/quorum/internal/port/cache"
	"github.com/quorumlabs/quorum/internal/port/gateway"
	"github.com/quorumlabs/quorum/internal/resilience"
)

// Client talks to the LiteLLM proxy and implements gateway.Gateway.
type Client struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
	breaker    *resilience.Breaker
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewClient creates a gateway client for the given proxy endpoint.
// timeout is the transport-level ceiling; per-call deadlines arrive via ctx.
func NewClient(baseURL, masterKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		masterKey: masterKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetCache attaches a read-through completion cache. Identical
// (model, prompt, max_tokens, temperature, logprobs) requests within the
// TTL are served from cache without touching the proxy.
func (c *Client) SetCache(ca cache.Cache, ttl time.Duration) {
	c.cache = ca
	c.cacheTTL = ttl
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Logprobs    bool          `json:"logprobs,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Logprobs *struct {
			Content []struct {
				Logprob float64 `json:"logprob"`
			} `json:"content"`
		} `json:"logprobs"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements gateway.Gateway over POST /chat/completions.
func (c *Client) Complete(ctx context.Context, req gateway.CompletionRequest) (*gateway.Completion, error) {
	key := completionKey(req)
	if c.cache != nil {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			var cached gateway.Completion
			if err := json.Unmarshal(data, &cached); err == nil {
				// Served locally: no latency, and no tokens spent, so
				// cost accounting must not re-bill the original usage.
				cached.Latency = 0
				cached.PromptTokens = 0
				cached.CompletionTokens = 0
				return &cached, nil
			}
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Logprobs:    req.Logprobs,
	})
	if err != nil {
		return nil, &gateway.Error{Kind: gateway.KindBadRequest, Model: req.Model, Err: err}
	}

	start := time.Now()
	data, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body, req.Model)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &gateway.Error{Kind: gateway.KindTransport, Model: req.Model, Err: fmt.Errorf("unmarshal completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &gateway.Error{Kind: gateway.KindTransport, Model: req.Model, Err: errors.New("completion has no choices")}
	}

	out := &gateway.Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(start),
		Confidence:       confidenceFromLogprobs(&resp),
	}

	if c.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = c.cache.Set(ctx, key, data, c.cacheTTL)
		}
	}
	return out, nil
}

// confidenceFromLogprobs converts mean token logprob into a [0,1] score.
// Providers that return no logprobs yield 0, meaning "unreported".
func confidenceFromLogprobs(resp *chatResponse) float64 {
	lp := resp.Choices[0].Logprobs
	if lp == nil || len(lp.Content) == 0 {
		return 0
	}
	var sum float64
	for i := range lp.Content {
		sum += lp.Content[i].Logprob
	}
	mean := sum / float64(len(lp.Content))
	conf := math.Exp(mean) // geometric mean token probability
	if conf > 1 {
		conf = 1
	}
	return conf
}

func completionKey(req gateway.CompletionRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%g\x00%t", req.Model, req.Prompt, req.MaxTokens, req.Temperature, req.Logprobs)
	return "cmpl:" + hex.EncodeToString(h.Sum(nil))
}

// DiscoveredModel is one model known to the proxy, with reachability.
type DiscoveredModel struct {
	Name     string `json:"model_name"`
	Provider string `json:"litellm_provider,omitempty"`
	Healthy  bool   `json:"healthy"`
}

// DiscoverModels lists the proxy's configured models and their health.
// A failing /health endpoint degrades to "all listed models healthy"
// rather than failing discovery outright.
func (c *Client) DiscoverModels(ctx context.Context) ([]DiscoveredModel, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/model/info", nil, "")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var listing struct {
		Data []struct {
			ModelName string `json:"model_name"`
			Provider  string `json:"litellm_provider"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}

	unhealthy := map[string]bool{}
	if hdata, herr := c.doRequest(ctx, http.MethodGet, "/health", nil, ""); herr == nil {
		var health struct {
			Unhealthy []struct {
				Model string `json:"model"`
			} `json:"unhealthy_endpoints"`
		}
		if err := json.Unmarshal(hdata, &health); err == nil {
			for _, m := range health.Unhealthy {
				unhealthy[m.Model] = true
			}
		}
	}

	models := make([]DiscoveredModel, 0, len(listing.Data))
	for _, m := range listing.Data {
		models = append(models, DiscoveredModel{
			Name:     m.ModelName,
			Provider: m.Provider,
			Healthy:  !unhealthy[m.ModelName],
		})
	}
	return models, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, model string) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return &gateway.Error{Kind: gateway.KindBadRequest, Model: model, Err: err}
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &gateway.Error{Kind: gateway.KindTimeout, Model: model, Err: ctx.Err()}
			}
			return &gateway.Error{Kind: gateway.KindTransport, Model: model, Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &gateway.Error{Kind: gateway.KindTransport, Model: model, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, model, data)
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, &gateway.Error{Kind: gateway.KindTransport, Model: model, Err: err}
			}
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyStatus maps proxy HTTP status codes onto the typed error kinds
// the dispatcher's retry policy keys on.
func classifyStatus(status int, model string, body []byte) error {
	apiErr := fmt.Errorf("litellm API error %d: %s", status, string(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &gateway.Error{Kind: gateway.KindAuthFailed, Model: model, Err: apiErr}
	case status == http.StatusTooManyRequests:
		return &gateway.Error{Kind: gateway.KindRateLimited, Model: model, Err: apiErr}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &gateway.Error{Kind: gateway.KindTimeout, Model: model, Err: apiErr}
	case status == http.StatusBadRequest && bytes.Contains(body, []byte("content_policy")):
		return &gateway.Error{Kind: gateway.KindContentPolicy, Model: model, Err: apiErr}
	case status >= 500:
		return &gateway.Error{Kind: gateway.KindTransport, Model: model, Err: apiErr}
	default:
		return &gateway.Error{Kind: gateway.KindBadRequest, Model: model, Err: apiErr}
	}
}
