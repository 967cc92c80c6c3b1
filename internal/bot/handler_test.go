package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/chat"
	"github.com/suPer8Hu/gopherchat-bot/internal/db"
	"github.com/suPer8Hu/gopherchat-bot/internal/imagegen"
	"github.com/suPer8Hu/gopherchat-bot/internal/session"
	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	userID  int64 = 42
	adminID int64 = 7
	chatID  int64 = 4200
)

type call struct {
	Method string
	ChatID int64
	MsgID  int64
	Text   string
	Markup *telegram.InlineKeyboardMarkup
}

type fakeTelegram struct {
	mu     sync.Mutex
	nextID int64
	calls  []call
}

func (f *fakeTelegram) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeTelegram) SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	f.record(call{Method: "send", ChatID: chatID, MsgID: id, Text: text, Markup: markup})
	return &telegram.Message{MessageID: id, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeTelegram) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	f.record(call{Method: "edit", ChatID: chatID, MsgID: messageID, Text: text, Markup: markup})
	return nil
}

func (f *fakeTelegram) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.record(call{Method: "delete", ChatID: chatID, MsgID: messageID})
	return nil
}

func (f *fakeTelegram) SendPhoto(ctx context.Context, chatID int64, img ai.Image, caption string) error {
	f.record(call{Method: "photo", ChatID: chatID, Text: caption})
	return nil
}

func (f *fakeTelegram) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	f.record(call{Method: "answer", Text: text})
	return nil
}

func (f *fakeTelegram) byMethod(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) last(method string) call {
	calls := f.byMethod(method)
	if len(calls) == 0 {
		return call{}
	}
	return calls[len(calls)-1]
}

type fakeImages struct {
	calls   int
	prompt  string
	quality string
	user    string
	err     error
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt, quality, user string) (ai.Image, error) {
	f.calls++
	f.prompt, f.quality, f.user = prompt, quality, user
	if f.err != nil {
		return ai.Image{}, f.err
	}
	return ai.Image{URL: "https://images.example/1.png"}, nil
}

type fakeProvider struct {
	reply    string
	err      error
	panicMsg string
	calls    int
}

func (p *fakeProvider) Chat(ctx context.Context, messages []ai.Message, user string) (string, error) {
	p.calls++
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return p.reply, p.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e analytics.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []analytics.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]analytics.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type env struct {
	h        *Handler
	svc      *chat.Service
	gdb      *gorm.DB
	tg       *fakeTelegram
	images   *fakeImages
	provider *fakeProvider
	sessions *session.MemoryStore
	events   *recordingPublisher
}

func newEnv(t *testing.T, opts ...func(*Deps)) *env {
	t.Helper()
	gdb, err := db.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	prov := &fakeProvider{reply: "Hello from the model"}
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return prov, nil
	})
	catalog := ai.NewCatalog([]ai.ModelInfo{
		{ID: "fake-small", Label: "Fake small", Provider: "fake"},
		{ID: "fake-large", Label: "Fake large", Provider: "fake"},
	}, ai.DefaultQualities(), "fake-small")
	svc := chat.NewService(chat.NewRepo(gdb), reg, catalog, 20)

	e := &env{
		svc:      svc,
		gdb:      gdb,
		tg:       &fakeTelegram{},
		images:   &fakeImages{},
		provider: prov,
		sessions: session.NewMemoryStore(),
		events:   &recordingPublisher{},
	}
	deps := Deps{
		Chats:         svc,
		Sessions:      e.sessions,
		Telegram:      e.tg,
		Images:        e.images,
		Events:        e.events,
		Stats:         analytics.NewRecorder(gdb),
		IsAdmin:       func(id int64) bool { return id == adminID },
		SelectQuality: true,
		Logger:        zaptest.NewLogger(t),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	e.h = NewHandler(deps)
	return e
}

func (e *env) send(from int64, text string) {
	e.h.HandleUpdate(context.Background(), telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			From:      &telegram.User{ID: from, FirstName: "Ada"},
			Chat:      telegram.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	})
}

func (e *env) press(from int64, data string) {
	e.h.HandleUpdate(context.Background(), telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb-1",
			From:    telegram.User{ID: from},
			Message: &telegram.Message{MessageID: 99, Chat: telegram.Chat{ID: chatID}},
			Data:    data,
		},
	})
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.gdb.Model(model).Count(&n).Error)
	return n
}

func (e *env) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.sessions.Load(context.Background(), chatID)
	require.NoError(t, err)
	return s
}

func withoutQualitySelection(d *Deps) { d.SelectQuality = false }

func TestEndToEnd_StartThenHello(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "/start")

	sends := e.tg.byMethod("send")
	require.Len(t, sends, 2)
	assert.Equal(t, textWelcome, sends[0].Text)
	assert.Equal(t, textLoading, sends[1].Text)
	edits := e.tg.byMethod("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, sends[1].MsgID, edits[0].MsgID)
	assert.Equal(t, textChatCreated, edits[0].Text)
	assert.EqualValues(t, 1, e.count(t, &chat.User{}))
	assert.EqualValues(t, 1, e.count(t, &chat.Chat{}))

	e.send(userID, "hello")

	placeholder := e.tg.last("send")
	assert.Equal(t, textLoading, placeholder.Text)
	reply := e.tg.last("edit")
	assert.Equal(t, placeholder.MsgID, reply.MsgID)
	assert.Equal(t, "Hello from the model", reply.Text)

	var msgs []chat.Message
	require.NoError(t, e.gdb.Order("created_at ASC, id ASC").Find(&msgs).Error)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello from the model", msgs[1].Content)

	assert.Equal(t, []analytics.EventType{
		analytics.EventUserCreated,
		analytics.EventChatCreated,
		analytics.EventMessage,
	}, e.events.types())
}

func TestStart_ReusesUserAndAlwaysCreatesChat(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "/start")
	first := e.session(t).ActiveChatID
	e.send(userID, "/start")

	assert.EqualValues(t, 1, e.count(t, &chat.User{}))
	assert.EqualValues(t, 2, e.count(t, &chat.Chat{}))
	active := e.session(t).ActiveChatID
	assert.NotEmpty(t, active)
	assert.NotEqual(t, first, active)
}

func TestNewChat_RequiresUser(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "/newchat")

	assert.Equal(t, textPleaseStart, e.tg.last("send").Text)
	assert.EqualValues(t, 0, e.count(t, &chat.Chat{}))
}

func TestNewChat_SwitchesActiveChat(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")
	before := e.session(t).ActiveChatID

	e.send(userID, "/newchat@GopherChatBot")

	assert.Equal(t, textChatCreated, e.tg.last("send").Text)
	assert.EqualValues(t, 2, e.count(t, &chat.Chat{}))
	assert.NotEqual(t, before, e.session(t).ActiveChatID)
}

func TestText_WithoutUserAsksForStart(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "hello")

	assert.Equal(t, textPleaseStart, e.tg.last("edit").Text)
	assert.EqualValues(t, 0, e.count(t, &chat.Message{}))
	assert.Zero(t, e.provider.calls)
}

func TestText_WithoutChatAsksForStart(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.svc.EnsureUser(context.Background(), userID, "Ada")
	require.NoError(t, err)

	e.send(userID, "hello")

	assert.Equal(t, textPleaseStart, e.tg.last("edit").Text)
	assert.EqualValues(t, 0, e.count(t, &chat.Message{}))
}

func TestText_FallsBackToLatestChat(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")
	e.send(userID, "/newchat")
	latest := e.session(t).ActiveChatID
	require.NoError(t, e.sessions.Save(context.Background(), chatID, &session.Session{}))

	e.send(userID, "hello")

	var m chat.Message
	require.NoError(t, e.gdb.Where("role = ?", chat.RoleUser).First(&m).Error)
	assert.Equal(t, latest, m.ChatID)
	assert.Equal(t, latest, e.session(t).ActiveChatID)
}

func TestText_CompletionFailure(t *testing.T) {
	e := newEnv(t)
	e.provider.err = errors.New("upstream down")
	e.send(userID, "/start")

	e.send(userID, "hello")

	assert.Equal(t, textCompletionFailed, e.tg.last("edit").Text)
	var msgs []chat.Message
	require.NoError(t, e.gdb.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Contains(t, e.events.types(), analytics.EventCompletionFailed)
}

func TestHandleUpdate_RecoversFromPanic(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")
	e.provider.panicMsg = "boom"

	assert.NotPanics(t, func() { e.send(userID, "hello") })
	assert.Equal(t, textGenericError, e.tg.last("send").Text)
}

func TestImage_CancelNeverCallsImageAPI(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")

	e.send(userID, "/image")

	prompt := e.tg.last("send")
	assert.Equal(t, textChooseQuality, prompt.Text)
	require.NotNil(t, prompt.Markup)
	var data []string
	for _, row := range prompt.Markup.InlineKeyboard {
		for _, b := range row {
			data = append(data, b.CallbackData)
		}
	}
	assert.Equal(t, []string{ai.QualityStandard, ai.QualityHD, CallbackCancel}, data)

	e.press(userID, CallbackCancel)

	assert.Equal(t, textImageCancelled, e.tg.last("edit").Text)
	assert.Len(t, e.tg.byMethod("answer"), 1)
	assert.Equal(t, imagegen.StateCancelled, e.session(t).Image.State)

	// the next text is an ordinary chat message
	e.send(userID, "a cat")
	assert.Zero(t, e.images.calls)
	assert.Equal(t, 1, e.provider.calls)
	assert.Contains(t, e.events.types(), analytics.EventImageCancelled)
}

func TestImage_QualityThenPrompt(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")
	e.send(userID, "/image")

	e.press(userID, ai.QualityHD)
	assert.Equal(t, textQualityChosen("HD"), e.tg.last("edit").Text)
	assert.Equal(t, ai.QualityHD, e.session(t).ImageQuality)

	e.send(userID, "a red bicycle")

	assert.Equal(t, 1, e.images.calls)
	assert.Equal(t, ai.QualityHD, e.images.quality)
	assert.Equal(t, "a red bicycle", e.images.prompt)
	assert.Equal(t, "42", e.images.user)

	photo := e.tg.last("photo")
	assert.Equal(t, "a red bicycle", photo.Text)
	placeholder := e.tg.last("send")
	assert.Equal(t, textGeneratingImage, placeholder.Text)
	assert.Equal(t, placeholder.MsgID, e.tg.last("delete").MsgID)

	assert.Equal(t, imagegen.StateDelivered, e.session(t).Image.State)
	assert.EqualValues(t, 0, e.count(t, &chat.Message{}))
	assert.Zero(t, e.provider.calls)
	assert.Contains(t, e.events.types(), analytics.EventImageGenerated)
}

func TestImage_DefaultQualityWithoutSelection(t *testing.T) {
	e := newEnv(t, withoutQualitySelection)

	e.send(userID, "/image")
	assert.Equal(t, textDescribeImage, e.tg.last("send").Text)

	e.send(userID, "a lighthouse")

	assert.Equal(t, 1, e.images.calls)
	assert.Equal(t, ai.QualityStandard, e.images.quality)
}

func TestImage_FailureEditsPlaceholder(t *testing.T) {
	e := newEnv(t, withoutQualitySelection)
	e.images.err = errors.New("content policy")

	e.send(userID, "/image")
	e.send(userID, "something")

	assert.Equal(t, textImageFailed, e.tg.last("edit").Text)
	assert.Empty(t, e.tg.byMethod("photo"))
	assert.Equal(t, imagegen.StateFailed, e.session(t).Image.State)
	assert.Contains(t, e.events.types(), analytics.EventImageFailed)
}

func TestImage_CommandAbandonsPendingPrompt(t *testing.T) {
	e := newEnv(t, withoutQualitySelection)
	e.send(userID, "/start")
	e.send(userID, "/image")

	e.send(userID, "/help")
	e.send(userID, "hello")

	assert.Zero(t, e.images.calls)
	assert.Equal(t, 1, e.provider.calls)
}

func TestImage_BlankPromptIsRejected(t *testing.T) {
	e := newEnv(t, withoutQualitySelection)
	e.send(userID, "/image")

	e.send(userID, "   ")

	assert.Equal(t, textEmptyPrompt, e.tg.last("send").Text)
	assert.Zero(t, e.images.calls)
	assert.True(t, e.session(t).Image.AwaitingPrompt())
}

func TestImage_GroupMemberTextGoesToChat(t *testing.T) {
	const member int64 = 777
	e := newEnv(t, withoutQualitySelection)
	e.send(userID, "/start")
	e.send(member, "/start")
	e.send(userID, "/image")

	e.send(member, "what is the capital of Peru?")

	assert.Zero(t, e.images.calls)
	assert.Equal(t, 1, e.provider.calls)
	assert.True(t, e.session(t).Image.AwaitingPrompt())

	e.send(userID, "a fox in the snow")

	assert.Equal(t, 1, e.images.calls)
	assert.Equal(t, "a fox in the snow", e.images.prompt)
	assert.Equal(t, "42", e.images.user)
	assert.Equal(t, imagegen.StateDelivered, e.session(t).Image.State)
}

func TestImage_GroupMemberCannotDriveDialog(t *testing.T) {
	const member int64 = 777
	e := newEnv(t)
	e.send(userID, "/image")

	e.press(member, ai.QualityHD)
	assert.Equal(t, textNotYourDialog, e.tg.last("answer").Text)
	assert.True(t, e.session(t).Image.AwaitingQuality())
	assert.Empty(t, e.session(t).ImageQuality)

	e.press(member, CallbackCancel)
	assert.Equal(t, textNotYourDialog, e.tg.last("answer").Text)
	assert.True(t, e.session(t).Image.AwaitingQuality())
	assert.Empty(t, e.tg.byMethod("edit"))

	e.send(member, "/help")
	assert.True(t, e.session(t).Image.AwaitingQuality())

	e.press(userID, ai.QualityHD)
	assert.True(t, e.session(t).Image.AwaitingPrompt())
	assert.Equal(t, userID, e.session(t).Image.UserID)
}

func TestCallback_QualityOutsideDialogIsStored(t *testing.T) {
	e := newEnv(t)

	e.press(userID, ai.QualityHD)

	assert.Equal(t, textQualitySaved("HD"), e.tg.last("answer").Text)
	assert.Empty(t, e.tg.byMethod("edit"))
	assert.Equal(t, ai.QualityHD, e.session(t).ImageQuality)
}

func TestCallback_CancelWithoutDialog(t *testing.T) {
	e := newEnv(t)

	e.press(userID, CallbackCancel)

	assert.Equal(t, textNothingToCancel, e.tg.last("answer").Text)
	assert.Empty(t, e.tg.byMethod("edit"))
}

func TestCallback_ModelSelection(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")

	e.press(userID, "fake-large")

	want := textModelSelected("Fake large")
	edit := e.tg.last("edit")
	assert.Equal(t, want, edit.Text)
	assert.EqualValues(t, 99, edit.MsgID)
	assert.Equal(t, want, e.tg.last("answer").Text)

	u, err := e.svc.FindUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "fake-large", u.Model)
}

func TestCallback_ModelWithoutUser(t *testing.T) {
	e := newEnv(t)

	e.press(userID, "fake-large")

	assert.Equal(t, textPleaseStart, e.tg.last("answer").Text)
	assert.EqualValues(t, 0, e.count(t, &chat.User{}))
}

func TestCallback_UnknownData(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")
	edits := len(e.tg.byMethod("edit"))

	e.press(userID, "gpt-9000")

	assert.Equal(t, textUnknownOption, e.tg.last("answer").Text)
	assert.Len(t, e.tg.byMethod("edit"), edits)
}

func TestModels_MarksCurrentModel(t *testing.T) {
	e := newEnv(t)
	e.send(userID, "/start")

	e.send(userID, "/models")

	msg := e.tg.last("send")
	assert.Equal(t, textChooseModel("Fake small"), msg.Text)
	require.NotNil(t, msg.Markup)
	require.Len(t, msg.Markup.InlineKeyboard, 2)
	assert.Equal(t, "✅ Fake small", msg.Markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "fake-small", msg.Markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Fake large", msg.Markup.InlineKeyboard[1][0].Text)
}

func TestStats_AdminOnly(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "/stats")
	assert.Equal(t, textRestricted, e.tg.last("send").Text)

	e.send(adminID, "/start")
	e.send(adminID, "/stats")

	out := e.tg.last("send").Text
	assert.Contains(t, out, "Users: 1")
	assert.Contains(t, out, "Chats: 1")
	assert.Contains(t, out, "Last 24h:")
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	e := newEnv(t)

	e.send(userID, "/whatever")

	assert.Equal(t, textHelp, e.tg.last("send").Text)
}
