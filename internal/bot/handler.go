// Package bot routes Telegram updates to the chat service, the image dialog
// and the model catalog, and turns outcomes into replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/chat"
	"github.com/suPer8Hu/gopherchat-bot/internal/session"
	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendPhoto(ctx context.Context, chatID int64, img ai.Image, caption string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// StatsSource reports analytics for /stats.
type StatsSource interface {
	Summary(ctx context.Context, since time.Time) (analytics.Summary, error)
}

type Deps struct {
	Chats    *chat.Service
	Sessions session.Store
	Telegram Messenger
	Images   ai.ImageGenerator
	Events   analytics.Publisher // optional
	Stats    StatsSource         // optional
	IsAdmin  func(telegramUserID int64) bool

	// SelectQuality offers the quality keyboard before asking for an image prompt.
	SelectQuality bool
	Logger        *zap.Logger
}

type Handler struct {
	chats         *chat.Service
	catalog       *ai.Catalog
	sessions      session.Store
	tg            Messenger
	images        ai.ImageGenerator
	events        analytics.Publisher
	stats         StatsSource
	isAdmin       func(int64) bool
	selectQuality bool
	log           *zap.Logger
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		chats:         d.Chats,
		catalog:       d.Chats.Catalog(),
		sessions:      d.Sessions,
		tg:            d.Telegram,
		images:        d.Images,
		events:        d.Events,
		stats:         d.Stats,
		isAdmin:       d.IsAdmin,
		selectQuality: d.SelectQuality,
		log:           d.Logger,
	}
	if h.events == nil {
		h.events = analytics.NopPublisher{}
	}
	if h.isAdmin == nil {
		h.isAdmin = func(int64) bool { return false }
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.Named("bot")
	return h
}

// HandleUpdate processes one update. Errors and panics stop here: they are
// logged and the user gets a generic message when possible.
func (h *Handler) HandleUpdate(ctx context.Context, upd telegram.Update) {
	chatID := upd.ChatID()
	log := h.log.With(zap.Int64("update_id", upd.UpdateID), zap.Int64("chat_id", chatID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling update", zap.Any("panic", r), zap.Stack("stack"))
			h.notifyFailure(ctx, log, chatID)
		}
	}()

	var err error
	switch {
	case upd.CallbackQuery != nil:
		err = h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil && upd.Message.Command() != "":
		err = h.handleCommand(ctx, upd.Message)
	case upd.Message != nil && upd.Message.From != nil && upd.Message.Text != "":
		err = h.handleText(ctx, upd.Message)
	default:
		return
	}
	if err != nil {
		log.Error("handle update failed", zap.Error(err))
		h.notifyFailure(ctx, log, chatID)
	}
}

func (h *Handler) notifyFailure(ctx context.Context, log *zap.Logger, chatID int64) {
	if chatID == 0 {
		return
	}
	if _, err := h.tg.SendMessage(ctx, chatID, textGenericError, nil); err != nil {
		log.Warn("failure notification not delivered", zap.Error(err))
	}
}

func (h *Handler) publish(ctx context.Context, e analytics.Event) {
	if err := h.events.Publish(ctx, e); err != nil {
		h.log.Warn("publish event failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) error {
	_, err := h.tg.SendMessage(ctx, chatID, text, nil)
	return err
}

// ---- commands ----

func (h *Handler) handleCommand(ctx context.Context, m *telegram.Message) error {
	cmd := m.Command()

	// a command from the dialog owner abandons a dialog still waiting for input
	if cmd != "image" {
		if err := h.resetDialog(ctx, m.Chat.ID, m.From.ID); err != nil {
			return err
		}
	}

	switch cmd {
	case "start":
		return h.cmdStart(ctx, m)
	case "help":
		return h.send(ctx, m.Chat.ID, textHelp)
	case "newchat":
		return h.cmdNewChat(ctx, m)
	case "image":
		return h.cmdImage(ctx, m)
	case "models":
		return h.cmdModels(ctx, m)
	case "stats":
		return h.cmdStats(ctx, m)
	}
	return h.send(ctx, m.Chat.ID, textHelp)
}

func (h *Handler) resetDialog(ctx context.Context, chatID, userID int64) error {
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return err
	}
	if !sess.Image.Active() || !sess.Image.OwnedBy(userID) {
		return nil
	}
	sess.Image.Reset()
	return h.sessions.Save(ctx, chatID, sess)
}

func (h *Handler) cmdStart(ctx context.Context, m *telegram.Message) error {
	chatID := m.Chat.ID
	if err := h.send(ctx, chatID, textWelcome); err != nil {
		return err
	}
	placeholder, err := h.tg.SendMessage(ctx, chatID, textLoading, nil)
	if err != nil {
		return err
	}

	u, created, err := h.chats.EnsureUser(ctx, m.From.ID, m.From.DisplayName())
	if err != nil {
		return h.failPlaceholder(ctx, placeholder, textGenericError, err)
	}
	if created {
		h.publish(ctx, analytics.NewEvent(analytics.EventUserCreated, u.TelegramID))
	}

	c, err := h.startChat(ctx, chatID, u)
	if err != nil {
		return h.failPlaceholder(ctx, placeholder, textGenericError, err)
	}
	h.log.Info("chat started", zap.String("user_id", u.ID), zap.String("chat_id", c.ID), zap.Bool("new_user", created))

	return h.tg.EditMessageText(ctx, chatID, placeholder.MessageID, textChatCreated, nil)
}

func (h *Handler) cmdNewChat(ctx context.Context, m *telegram.Message) error {
	chatID := m.Chat.ID
	u, err := h.chats.FindUser(ctx, m.From.ID)
	if errors.Is(err, chat.ErrNotFound) {
		return h.send(ctx, chatID, textPleaseStart)
	}
	if err != nil {
		return err
	}
	if _, err := h.startChat(ctx, chatID, u); err != nil {
		return err
	}
	return h.send(ctx, chatID, textChatCreated)
}

// startChat creates a chat and makes it the active one of the conversation.
func (h *Handler) startChat(ctx context.Context, chatID int64, u *chat.User) (*chat.Chat, error) {
	c, err := h.chats.StartChat(ctx, u)
	if err != nil {
		return nil, err
	}
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sess.ActiveChatID = c.ID
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		return nil, err
	}

	e := analytics.NewEvent(analytics.EventChatCreated, u.TelegramID)
	e.ChatID = c.ID
	h.publish(ctx, e)
	return c, nil
}

func (h *Handler) cmdModels(ctx context.Context, m *telegram.Message) error {
	current := h.catalog.DefaultModel()
	u, err := h.chats.FindUser(ctx, m.From.ID)
	switch {
	case err == nil:
		current = u.Model
	case !errors.Is(err, chat.ErrNotFound):
		return err
	}

	models := h.catalog.Models()
	buttons := make([]telegram.InlineKeyboardButton, 0, len(models))
	for _, mi := range models {
		label := mi.Label
		if mi.ID == current {
			label = "✅ " + label
		}
		buttons = append(buttons, telegram.InlineKeyboardButton{Text: label, CallbackData: mi.ID})
	}

	_, err = h.tg.SendMessage(ctx, m.Chat.ID, textChooseModel(h.catalog.Label(current)), telegram.Keyboard(1, buttons...))
	return err
}

func (h *Handler) cmdStats(ctx context.Context, m *telegram.Message) error {
	if !h.isAdmin(m.From.ID) {
		return h.send(ctx, m.Chat.ID, textRestricted)
	}
	totals, err := h.chats.Totals(ctx)
	if err != nil {
		return err
	}

	var summary *analytics.Summary
	if h.stats != nil {
		s, err := h.stats.Summary(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			h.log.Warn("analytics summary failed", zap.Error(err))
		} else {
			summary = &s
		}
	}
	return h.send(ctx, m.Chat.ID, textStats(totals, summary))
}

// ---- image dialog ----

func (h *Handler) cmdImage(ctx context.Context, m *telegram.Message) error {
	chatID := m.Chat.ID
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return err
	}
	sess.Image.Start(m.From.ID, h.selectQuality)
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		return err
	}

	if !sess.Image.AwaitingQuality() {
		return h.send(ctx, chatID, textDescribeImage)
	}

	qualities := h.catalog.Qualities()
	buttons := make([]telegram.InlineKeyboardButton, 0, len(qualities)+1)
	for _, q := range qualities {
		buttons = append(buttons, telegram.InlineKeyboardButton{Text: q.Label, CallbackData: q.ID})
	}
	buttons = append(buttons, telegram.InlineKeyboardButton{Text: "Cancel", CallbackData: CallbackCancel})

	_, err = h.tg.SendMessage(ctx, chatID, textChooseQuality, telegram.Keyboard(2, buttons...))
	return err
}

// generateImage consumes a free-text message as the image prompt.
func (h *Handler) generateImage(ctx context.Context, m *telegram.Message, sess *session.Session) error {
	chatID := m.Chat.ID
	if err := sess.Image.Submit(m.Text); err != nil {
		return h.send(ctx, chatID, textEmptyPrompt)
	}
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		return err
	}

	placeholder, err := h.tg.SendMessage(ctx, chatID, textGeneratingImage, nil)
	if err != nil {
		return err
	}

	quality := sess.Quality(h.catalog.DefaultQuality())
	start := time.Now()
	img, genErr := h.images.GenerateImage(ctx, sess.Image.Prompt, quality, strconv.FormatInt(m.From.ID, 10))
	if genErr == nil {
		genErr = h.tg.SendPhoto(ctx, chatID, img, sess.Image.Prompt)
	}

	_ = sess.Image.Finish(genErr)
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		h.log.Warn("save session failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	e := analytics.NewEvent(analytics.EventImageGenerated, m.From.ID)
	e.Quality = quality
	if genErr != nil {
		e.Type = analytics.EventImageFailed
		h.publish(ctx, e)
		return h.failPlaceholder(ctx, placeholder, textImageFailed,
			fmt.Errorf("image generation (quality=%s, cost=%s): %w", quality, time.Since(start), genErr))
	}
	h.publish(ctx, e)

	if err := h.tg.DeleteMessage(ctx, chatID, placeholder.MessageID); err != nil {
		h.log.Warn("delete placeholder failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return nil
}

// ---- free text ----

func (h *Handler) handleText(ctx context.Context, m *telegram.Message) error {
	chatID := m.Chat.ID
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return err
	}
	// in a group only the member who asked for the image supplies its prompt
	if sess.Image.AwaitingPrompt() && sess.Image.OwnedBy(m.From.ID) {
		return h.generateImage(ctx, m, sess)
	}

	placeholder, err := h.tg.SendMessage(ctx, chatID, textLoading, nil)
	if err != nil {
		return err
	}

	u, err := h.chats.FindUser(ctx, m.From.ID)
	if errors.Is(err, chat.ErrNotFound) {
		return h.tg.EditMessageText(ctx, chatID, placeholder.MessageID, textPleaseStart, nil)
	}
	if err != nil {
		return h.failPlaceholder(ctx, placeholder, textGenericError, err)
	}

	c, err := h.chats.ResolveChat(ctx, u, sess.ActiveChatID)
	if errors.Is(err, chat.ErrNotFound) {
		return h.tg.EditMessageText(ctx, chatID, placeholder.MessageID, textPleaseStart, nil)
	}
	if err != nil {
		return h.failPlaceholder(ctx, placeholder, textGenericError, err)
	}
	if c.ID != sess.ActiveChatID {
		sess.ActiveChatID = c.ID
		if err := h.sessions.Save(ctx, chatID, sess); err != nil {
			h.log.Warn("save session failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}

	reply, err := h.chats.Reply(ctx, u, c, m.Text)
	if errors.Is(err, chat.ErrNoReply) {
		e := analytics.NewEvent(analytics.EventCompletionFailed, u.TelegramID)
		e.ChatID, e.Model = c.ID, u.Model
		h.publish(ctx, e)
		return h.tg.EditMessageText(ctx, chatID, placeholder.MessageID, textCompletionFailed, nil)
	}
	if err != nil {
		return h.failPlaceholder(ctx, placeholder, textGenericError, err)
	}

	e := analytics.NewEvent(analytics.EventMessage, u.TelegramID)
	e.ChatID, e.Model = c.ID, u.Model
	h.publish(ctx, e)

	return h.tg.EditMessageText(ctx, chatID, placeholder.MessageID, reply, nil)
}

// failPlaceholder logs cause and shows text in place of the loading message.
// The cause is not returned: the user has already been told.
func (h *Handler) failPlaceholder(ctx context.Context, placeholder *telegram.Message, text string, cause error) error {
	h.log.Error("request failed", zap.Int64("chat_id", placeholder.Chat.ID), zap.Error(cause))
	if err := h.tg.EditMessageText(ctx, placeholder.Chat.ID, placeholder.MessageID, text, nil); err != nil {
		h.log.Warn("failure notification not delivered", zap.Int64("chat_id", placeholder.Chat.ID), zap.Error(err))
	}
	return nil
}

// ---- callbacks ----

func (h *Handler) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	answer, err := h.routeCallback(ctx, q)
	if aerr := h.tg.AnswerCallbackQuery(ctx, q.ID, answer); aerr != nil {
		h.log.Warn("answer callback failed", zap.String("callback_id", q.ID), zap.Error(aerr))
	}
	return err
}

// routeCallback returns the short notice shown on the pressed button.
func (h *Handler) routeCallback(ctx context.Context, q *telegram.CallbackQuery) (string, error) {
	switch data := q.Data; {
	case data == CallbackCancel:
		return h.cbCancel(ctx, q)
	case h.catalog.IsQuality(data):
		return h.cbQuality(ctx, q)
	case h.catalog.IsModel(data):
		return h.cbModel(ctx, q)
	}
	h.log.Info("unknown callback data", zap.String("data", q.Data), zap.Int64("from", q.From.ID))
	return textUnknownOption, nil
}

func callbackChatID(q *telegram.CallbackQuery) int64 {
	if q.Message != nil {
		return q.Message.Chat.ID
	}
	return q.From.ID
}

// editOrSend edits the message carrying the keyboard, or sends text when the
// original message is unavailable.
func (h *Handler) editOrSend(ctx context.Context, q *telegram.CallbackQuery, text string) error {
	if q.Message != nil {
		return h.tg.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text, nil)
	}
	return h.send(ctx, callbackChatID(q), text)
}

func (h *Handler) cbModel(ctx context.Context, q *telegram.CallbackQuery) (string, error) {
	u, err := h.chats.FindUser(ctx, q.From.ID)
	if errors.Is(err, chat.ErrNotFound) {
		return textPleaseStart, h.editOrSend(ctx, q, textPleaseStart)
	}
	if err != nil {
		return "", err
	}
	if err := h.chats.SetModel(ctx, u, q.Data); err != nil {
		if errors.Is(err, chat.ErrUnknownModel) {
			return textUnknownOption, nil
		}
		return "", err
	}

	e := analytics.NewEvent(analytics.EventModelSelected, u.TelegramID)
	e.Model = u.Model
	h.publish(ctx, e)

	text := textModelSelected(h.catalog.Label(u.Model))
	return text, h.editOrSend(ctx, q, text)
}

func (h *Handler) cbQuality(ctx context.Context, q *telegram.CallbackQuery) (string, error) {
	chatID := callbackChatID(q)
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return "", err
	}
	if sess.Image.Active() && !sess.Image.OwnedBy(q.From.ID) {
		return textNotYourDialog, nil
	}
	sess.ImageQuality = q.Data
	advanced := sess.Image.ChooseQuality() == nil
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		return "", err
	}

	label := h.catalog.QualityLabel(q.Data)
	if !advanced {
		return textQualitySaved(label), nil
	}
	return "", h.editOrSend(ctx, q, textQualityChosen(label))
}

func (h *Handler) cbCancel(ctx context.Context, q *telegram.CallbackQuery) (string, error) {
	chatID := callbackChatID(q)
	sess, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		return "", err
	}
	if sess.Image.Active() && !sess.Image.OwnedBy(q.From.ID) {
		return textNotYourDialog, nil
	}
	if err := sess.Image.Cancel(); err != nil {
		return textNothingToCancel, nil
	}
	if err := h.sessions.Save(ctx, chatID, sess); err != nil {
		return "", err
	}

	h.publish(ctx, analytics.NewEvent(analytics.EventImageCancelled, q.From.ID))
	return "", h.editOrSend(ctx, q, textImageCancelled)
}
