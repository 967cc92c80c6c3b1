package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
	"go.uber.org/zap"
)

// ErrNoReply means the completion request produced nothing usable. The user
// message has been stored; no assistant message was written.
var ErrNoReply = errors.New("chat: no reply generated")

var ErrUnknownModel = errors.New("chat: unknown model")

type Service struct {
	repo              *Repo
	registry          *ai.Registry
	catalog           *ai.Catalog
	contextWindowSize int
	systemPrompt      string
	log               *zap.Logger
}

type Option func(*Service)

func WithSystemPrompt(prompt string) Option {
	return func(s *Service) { s.systemPrompt = strings.TrimSpace(prompt) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(repo *Repo, registry *ai.Registry, catalog *ai.Catalog, contextWindowSize int, opts ...Option) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	s := &Service{
		repo:              repo,
		registry:          registry,
		catalog:           catalog,
		contextWindowSize: contextWindowSize,
		log:               zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("chat")
	return s
}

func (s *Service) Catalog() *ai.Catalog { return s.catalog }

func (s *Service) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	return s.repo.FindUserByTelegramID(ctx, telegramID)
}

// EnsureUser finds the user for a Telegram id or creates one with the default
// model. created reports whether a new row was written.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, displayName string) (u *User, created bool, err error) {
	u, err = s.repo.FindUserByTelegramID(ctx, telegramID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	u = &User{
		TelegramID:  telegramID,
		DisplayName: displayName,
		Model:       s.catalog.DefaultModel(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// SetModel stores a validated model choice on the user.
func (s *Service) SetModel(ctx context.Context, u *User, model string) error {
	if !s.catalog.IsModel(model) {
		return ErrUnknownModel
	}
	if err := s.repo.UpdateUserModel(ctx, u.ID, model); err != nil {
		return err
	}
	u.Model = model
	return nil
}

func (s *Service) StartChat(ctx context.Context, u *User) (*Chat, error) {
	c := &Chat{UserID: u.ID}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveChat picks the chat a message belongs to: the session's active chat
// when it still exists and is owned by u, otherwise the user's latest chat.
// ErrNotFound means the user has no chat at all.
func (s *Service) ResolveChat(ctx context.Context, u *User, activeChatID string) (*Chat, error) {
	if activeChatID != "" {
		c, err := s.repo.FindChat(ctx, activeChatID)
		switch {
		case err == nil && c.UserID == u.ID:
			return c, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	return s.repo.FindLatestChat(ctx, u.ID)
}

// History returns the newest contextWindowSize messages of a chat in
// chronological order.
func (s *Service) History(ctx context.Context, chatID string) ([]ai.Message, error) {
	recent, err := s.repo.ListRecentMessages(ctx, chatID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	out := make([]ai.Message, 0, len(recent))
	for _, m := range recent {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Complete asks the provider serving model for a reply. Any failure (unknown
// provider, transport error, timeout, blank content) is logged and reported as
// an empty string.
func (s *Service) Complete(ctx context.Context, history []ai.Message, telegramID int64, model string) string {
	provider, info, err := s.registry.ForModel(ctx, s.catalog, model)
	if err != nil {
		s.log.Error("resolve provider failed", zap.String("model", model), zap.Error(err))
		return ""
	}

	msgs := history
	if s.systemPrompt != "" {
		msgs = make([]ai.Message, 0, len(history)+1)
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: s.systemPrompt})
		msgs = append(msgs, history...)
	}

	reply, err := provider.Chat(ctx, msgs, strconv.FormatInt(telegramID, 10))
	if err != nil {
		s.log.Error("completion failed",
			zap.String("model", info.ID),
			zap.String("provider", info.Provider),
			zap.Int64("telegram_id", telegramID),
			zap.Error(err),
		)
		return ""
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.log.Warn("completion returned no content", zap.String("model", info.ID), zap.Int64("telegram_id", telegramID))
	}
	return reply
}

// Reply runs one exchange: store the user message, assemble history, request a
// completion and store the assistant message. ErrNoReply is returned when the
// completion is empty; the user message stays stored.
func (s *Service) Reply(ctx context.Context, u *User, c *Chat, content string) (string, error) {
	// 1) store user message
	if err := s.repo.CreateMessage(ctx, &Message{
		ChatID:  c.ID,
		UserID:  u.ID,
		Role:    RoleUser,
		Content: content,
	}); err != nil {
		return "", err
	}

	// 2) windowed history, includes the message above
	history, err := s.History(ctx, c.ID)
	if err != nil {
		return "", err
	}

	// 3) call provider
	reply := s.Complete(ctx, history, u.TelegramID, u.Model)
	if reply == "" {
		return "", ErrNoReply
	}

	// 4) store assistant message
	if err := s.repo.CreateMessage(ctx, &Message{
		ChatID:  c.ID,
		UserID:  u.ID,
		Role:    RoleAssistant,
		Content: reply,
	}); err != nil {
		return "", err
	}

	if err := s.repo.TouchChat(ctx, c.ID); err != nil {
		s.log.Warn("touch chat failed", zap.String("chat_id", c.ID), zap.Error(err))
	}
	return reply, nil
}

func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.repo.Totals(ctx)
}
