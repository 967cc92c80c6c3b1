package ai

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// wireMsg is the role/content pair shared by OpenAI-compatible chat APIs.
type wireMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(messages []Message) []wireMsg {
	out := make([]wireMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func newRESTClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(90*time.Second).
		SetHeader("Content-Type", "application/json")
}
