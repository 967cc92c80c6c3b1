package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// OllamaProvider talks to a local Ollama server (/api/chat).
type OllamaProvider struct {
	Model string
	http  *resty.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{Model: model, http: newRESTClient(baseURL)}
}

type ollamaChatReq struct {
	Model    string    `json:"model"`
	Messages []wireMsg `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResp struct {
	Message wireMsg `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Chat ignores user: the Ollama chat API has no end-user field.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, user string) (string, error) {
	res, err := p.http.R().
		SetContext(ctx).
		SetBody(ollamaChatReq{Model: p.Model, Messages: toWire(messages)}).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}

	var decoded ollamaChatResp
	if err := json.Unmarshal(res.Body(), &decoded); err != nil {
		return "", fmt.Errorf("ollama: status %d: %w", res.StatusCode(), err)
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("ollama: status %d", res.StatusCode())
	}
	return decoded.Message.Content, nil
}
