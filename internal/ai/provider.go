package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Provider produces one assistant reply for an ordered (oldest -> newest) history.
// user is an opaque end-user reference forwarded to providers that accept one.
type Provider interface {
	Chat(ctx context.Context, messages []Message, user string) (string, error)
}
