package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OpenRouterProvider calls the OpenRouter chat completions endpoint.
type OpenRouterProvider struct {
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	http    *resty.Client
}

type openRouterChatReq struct {
	Model    string    `json:"model"`
	Messages []wireMsg `json:"messages"`
	Stream   bool      `json:"stream"`
	User     string    `json:"user,omitempty"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message wireMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		http:    newRESTClient(baseURL),
	}
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message, user string) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New("openrouter: model is required")
	}

	req := p.http.R().
		SetContext(ctx).
		SetAuthToken(p.APIKey).
		SetBody(openRouterChatReq{Model: model, Messages: toWire(messages), User: user})
	if p.SiteURL != "" {
		req.SetHeader("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.SetHeader("X-Title", p.AppName)
	}

	res, err := req.Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	if !res.IsSuccess() {
		msg := strings.TrimSpace(res.String())
		if len(msg) > 4096 {
			msg = msg[:4096]
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", res.StatusCode())
		}
		return "", fmt.Errorf("openrouter: %s", msg)
	}

	var decoded openRouterChatResp
	if err := json.Unmarshal(res.Body(), &decoded); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
