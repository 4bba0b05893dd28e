// Package openai talks to an OpenAI-compatible completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/tollgate/internal/config"
	providerdomain "github.com/smallbiznis/tollgate/internal/provider/domain"
	"go.uber.org/zap"
)

const (
	providerName    = "openai"
	completionsPath = "/v1/completions"
	maxErrorBody    = 4 << 10
)

type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	http      *http.Client
	log       *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) providerdomain.Generator {
	return NewClient(cfg.Provider, &http.Client{Timeout: cfg.Provider.Timeout}, log)
}

func NewClient(cfg config.ProviderConfig, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		http:      httpClient,
		log:       log.Named("provider.openai"),
	}
}

func (c *Client) Name() string { return providerName }

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (*providerdomain.Result, error) {
	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, c.fail(0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var parsed errorResponse
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return nil, c.fail(resp.StatusCode, message)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, c.fail(resp.StatusCode, fmt.Sprintf("malformed response: %v", err))
	}
	if decoded.Usage == nil {
		return nil, c.fail(resp.StatusCode, "response carries no usage")
	}
	if decoded.Usage.PromptTokens < 0 || decoded.Usage.CompletionTokens < 0 {
		return nil, c.fail(resp.StatusCode, "response carries negative usage")
	}

	var text string
	if len(decoded.Choices) > 0 {
		text = decoded.Choices[0].Text
	}
	model := decoded.Model
	if model == "" {
		model = c.model
	}

	c.log.Debug("completion received",
		zap.String("model", model),
		zap.Int64("prompt_tokens", decoded.Usage.PromptTokens),
		zap.Int64("completion_tokens", decoded.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &providerdomain.Result{
		Text:             text,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
		Model:            model,
	}, nil
}

func (c *Client) fail(status int, message string) error {
	return &providerdomain.Error{Provider: providerName, StatusCode: status, Message: message}
}
