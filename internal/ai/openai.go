package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// NewOpenAIClient builds the SDK client shared by the chat provider and the
// image generator. Empty apiKey/baseURL fall back to OPENAI_API_KEY and the
// public endpoint.
func NewOpenAIClient(apiKey, baseURL string, extra ...option.RequestOption) openai.Client {
	opts := []option.RequestOption{option.WithRequestTimeout(90 * time.Second)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return openai.NewClient(opts...)
}

type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(client openai.Client, model string) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, user string) (string, error) {
	model := strings.TrimSpace(p.model)
	if model == "" {
		return "", errors.New("openai: model is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if user != "" {
		params.User = openai.String(user)
	}

	res, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return res.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Image is a generated picture: either a URL the platform can fetch or raw bytes.
type Image struct {
	URL  string
	Data []byte
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, quality, user string) (Image, error)
}

type OpenAIImageGenerator struct {
	client openai.Client
	model  string
	size   string
}

func NewOpenAIImageGenerator(client openai.Client, model, size string) *OpenAIImageGenerator {
	if model == "" {
		model = "dall-e-3"
	}
	if size == "" {
		size = "1024x1024"
	}
	return &OpenAIImageGenerator{client: client, model: model, size: size}
}

func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, prompt, quality, user string) (Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return Image{}, errors.New("openai: image prompt is required")
	}
	if quality == "" {
		quality = QualityStandard
	}

	params := openai.ImageGenerateParams{
		Prompt:  prompt,
		Model:   openai.ImageModel(g.model),
		Quality: openai.ImageGenerateParamsQuality(quality),
		Size:    openai.ImageGenerateParamsSize(g.size),
		N:       openai.Int(1),
	}
	if user != "" {
		params.User = openai.String(user)
	}

	res, err := g.client.Images.Generate(ctx, params)
	if err != nil {
		return Image{}, fmt.Errorf("openai: image generation: %w", err)
	}
	if len(res.Data) == 0 {
		return Image{}, errors.New("openai: no image returned")
	}

	first := res.Data[0]
	if first.URL != "" {
		return Image{URL: first.URL}, nil
	}
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return Image{}, fmt.Errorf("openai: decode image: %w", err)
		}
		return Image{Data: data}, nil
	}
	return Image{}, errors.New("openai: image has neither url nor data")
}
