package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hustlerlabs/hustler/types"
)

// Named presets understood by the Universal provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderCustom     = "custom"
)

// UniversalConfig configures the Universal provider.
type UniversalConfig struct {
	// Provider selects a preset: openrouter (default), openai, ollama, or
	// custom.
	Provider string `json:"provider" yaml:"provider"`
	// APIKey overrides the environment lookup (<PROVIDER>_API_KEY).
	APIKey string `json:"api_key" yaml:"api_key"`
	// BaseURL overrides the preset endpoint; for custom it falls back to
	// the CUSTOM_LLM_URL environment variable.
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// RPS enables a client-side rate limit when > 0.
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	// Referer and Title are the OpenRouter attribution headers.
	Referer string `json:"referer,omitempty" yaml:"referer,omitempty"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Universal adapts any OpenAI-compatible chat-completions endpoint to the
// Provider interface. One implementation covers OpenRouter, OpenAI, local
// Ollama, and arbitrary compatible gateways.
type Universal struct {
	cfg     UniversalConfig
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewUniversal creates a provider from cfg. Endpoint and API key fall back
// to per-preset defaults and environment variables.
func NewUniversal(cfg UniversalConfig, logger *zap.Logger) *Universal {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenRouter
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &Universal{
		cfg:     cfg,
		baseURL: strings.TrimRight(resolveBaseURL(cfg), "/"),
		apiKey:  resolveAPIKey(cfg),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "llm"), zap.String("provider", cfg.Provider)),
	}
	if cfg.RPS > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return u
}

func resolveBaseURL(cfg UniversalConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	switch cfg.Provider {
	case ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderOllama:
		return "http://localhost:11434/v1"
	}
	return os.Getenv("CUSTOM_LLM_URL")
}

func resolveAPIKey(cfg UniversalConfig) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	// Ollama ignores the key but its endpoint requires a non-empty one.
	if cfg.Provider == ProviderOllama {
		return "ollama"
	}
	return os.Getenv(strings.ToUpper(cfg.Provider) + "_API_KEY")
}

func (u *Universal) Name() string { return u.cfg.Provider }

// openAI-compatible wire structures.

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatCompletionError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion implements Provider.
func (u *Universal) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if u.baseURL == "" {
		return nil, types.NewError(types.ErrProviderUnavailable,
			"no endpoint configured: set BaseURL or CUSTOM_LLM_URL").WithProvider(u.cfg.Provider)
	}
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body := chatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encoding request").
			WithCause(err).WithProvider(u.cfg.Provider)
	}

	endpoint := u.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "building request").
			WithCause(err).WithProvider(u.cfg.Provider)
	}
	u.buildHeaders(httpReq)

	start := time.Now()
	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, u.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, u.statusError(resp)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decoding response").
			WithRetryable(true).WithCause(err).WithProvider(u.cfg.Provider)
	}

	u.logger.Debug("completion ok",
		zap.String("model", req.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)

	result := &ChatResponse{
		ID:        out.ID,
		Provider:  u.cfg.Provider,
		Model:     out.Model,
		CreatedAt: time.Unix(out.Created, 0),
		Usage: ChatUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}
	for _, c := range out.Choices {
		result.Choices = append(result.Choices, ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      types.Message{Role: types.Role(c.Message.Role), Content: c.Message.Content},
		})
	}
	return result, nil
}

// HealthCheck implements Provider with a lightweight models listing.
func (u *Universal) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	u.buildHeaders(httpReq)

	resp, err := u.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("health check failed: status=%d", resp.StatusCode)
	}
	return &HealthStatus{Healthy: true, Latency: latency}, nil
}

func (u *Universal) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if u.cfg.Provider == ProviderOpenRouter {
		referer := u.cfg.Referer
		if referer == "" {
			referer = "https://localhost"
		}
		title := u.cfg.Title
		if title == "" {
			title = "Hustler"
		}
		req.Header.Set("HTTP-Referer", referer)
		req.Header.Set("X-Title", title)
	}
}

func (u *Universal) transportError(err error) error {
	code := types.ErrUpstreamError
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		code = types.ErrUpstreamTimeout
		msg = "request timed out"
	}
	return types.NewError(code, msg).WithRetryable(true).WithCause(err).WithProvider(u.cfg.Provider)
}

func (u *Universal) statusError(resp *http.Response) error {
	msg := readErrMsg(resp.Body)

	var code types.ErrorCode
	retryable := false
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		code = types.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case resp.StatusCode == http.StatusPaymentRequired:
		code = types.ErrQuotaExceeded
	case resp.StatusCode >= 500:
		code = types.ErrUpstreamError
		retryable = true
	default:
		code = types.ErrInvalidRequest
	}

	u.logger.Warn("completion rejected",
		zap.Int("status", resp.StatusCode),
		zap.String("message", msg),
	)
	return types.NewError(code, msg).
		WithHTTPStatus(resp.StatusCode).
		WithRetryable(retryable).
		WithProvider(u.cfg.Provider)
}

func readErrMsg(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "upstream error"
	}
	var parsed chatCompletionError
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}
