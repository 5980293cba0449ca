package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient is a Runtime backed by the OpenAI chat completions API (or any
// compatible endpoint reachable through BaseURL).
type OpenAIClient struct {
	client           *openai.Client
	hasKey           bool
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOpenAIClient builds a client; an empty baseURL uses api.openai.com.
// retryMax of 1 (or less) disables retries.
func NewOpenAIClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OpenAIClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	return &OpenAIClient{
		client:           openai.NewClientWithConfig(cfg),
		hasKey:           apiKey != "",
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if !c.hasKey {
		return nil, ErrMissingAPIKey
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(req.Messages)),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	for i, m := range req.Messages {
		creq.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := c.client.CreateChatCompletion(ctx, creq)
		if err == nil {
			return fromOpenAI(resp), nil
		}
		lastErr = mapOpenAIError(err)
		if attempt >= c.retryMaxAttempts || !retryable(lastErr) {
			break
		}
		wait := withJitter(backoff)
		var rl *RateLimitError
		if errors.As(lastErr, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		} else if wait > c.retryMaxDelay {
			wait = c.retryMaxDelay
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

func fromOpenAI(resp openai.ChatCompletionResponse) *GenerateResponse {
	out := &GenerateResponse{
		ID: resp.ID,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Message: Message{Role: ch.Message.Role, Content: ch.Message.Content}})
	}
	if h := resp.Header(); h != nil {
		out.RequestID = extractRequestID(&http.Response{Header: h})
	}
	return out
}

// mapOpenAIError converts go-openai errors into this package's taxonomy so
// callers see the same error types regardless of runtime.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		return classifyAPIError(&APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Code:       code,
			Message:    apiErr.Message,
		}, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return classifyAPIError(&APIError{StatusCode: reqErr.HTTPStatusCode, Message: strings.TrimSpace(msg)}, nil)
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return &UnreachableError{Err: err}
	}
	return err
}

func retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	var ue *UnreachableError
	return errors.As(err, &rl) || errors.As(err, &se) || errors.As(err, &ue)
}
