package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
)

// Client is a Telegram Bot API client.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for a bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
//
// Flood control (429) and server errors are retried twice. A 429 waits for
// the retry_after the API asks for, capped at the max retry wait.
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(apiBase, "/")).
			SetTimeout(requestTimeout).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			SetRetryResetReaders(true).
			AddRetryCondition(retryable).
			SetRetryAfter(retryAfter),
	}
}

// retryable keeps transport errors out: the request may have reached
// Telegram and a second sendMessage would post twice.
func retryable(res *resty.Response, err error) bool {
	if err != nil || res == nil {
		return false
	}
	code := res.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func retryAfter(c *resty.Client, res *resty.Response) (time.Duration, error) {
	if res == nil || res.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	var tgResp response
	if err := json.Unmarshal(res.Body(), &tgResp); err != nil || tgResp.Parameters == nil {
		return 0, nil
	}
	wait := time.Duration(tgResp.Parameters.RetryAfter) * time.Second
	if wait > c.RetryMaxWaitTime {
		wait = c.RetryMaxWaitTime
	}
	return wait, nil
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set on flood control errors.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// NotModified reports the harmless "message is not modified" edit error.
func (e *APIError) NotModified() bool {
	return strings.Contains(e.Description, "message is not modified")
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	return decode(method, res, out)
}

func decode(method string, res *resty.Response, out any) error {
	var tgResp response
	if err := json.Unmarshal(res.Body(), &tgResp); err != nil {
		return fmt.Errorf("telegram %s: status %d: unparsable response: %w", method, res.StatusCode(), err)
	}
	if !tgResp.OK {
		apiErr := &APIError{Method: method, Code: tgResp.ErrorCode, Description: tgResp.Description}
		if tgResp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(tgResp.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(tgResp.Result, out); err != nil {
		return fmt.Errorf("telegram %s: failed to parse result: %w", method, err)
	}
	return nil
}

// GetUpdates long-polls for updates. The client timeout must exceed timeout seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type sendMessageReq struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageReq{
		ChatID:      chatID,
		Text:        truncate(text, MaxMessageLength),
		ReplyMarkup: markup,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageTextReq struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text (and keyboard) of a sent message. A nil
// markup removes an existing keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	err := c.call(ctx, "editMessageText", editMessageTextReq{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        truncate(text, MaxMessageLength),
		ReplyMarkup: markup,
	}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotModified() {
		return nil
	}
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SendPhoto sends a picture by URL, or uploads its bytes when no URL is set.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, img ai.Image, caption string) error {
	caption = truncate(caption, 1024)
	if img.URL != "" {
		return c.call(ctx, "sendPhoto", map[string]any{
			"chat_id": chatID,
			"photo":   img.URL,
			"caption": caption,
		}, nil)
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("telegram sendPhoto: empty image")
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": strconv.FormatInt(chatID, 10),
			"caption": caption,
		}).
		SetFileReader("photo", "image.png", bytes.NewReader(img.Data)).
		Post("/sendPhoto")
	if err != nil {
		return fmt.Errorf("telegram sendPhoto request failed: %w", err)
	}
	return decode("sendPhoto", res, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	callbackID = strings.TrimSpace(callbackID)
	if callbackID == "" {
		return nil
	}
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", body, nil)
}

func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// SetWebhook registers url; Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", body, nil)
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, nil)
}
