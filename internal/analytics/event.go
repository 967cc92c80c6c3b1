// Package analytics records what the bot does so that /stats can report on it.
// The bot publishes events to a queue; cmd/worker drains the queue into the
// bot_events table read by Recorder.Summary.
package analytics

import (
	"context"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/common"
)

type EventType string

const (
	EventUserCreated      EventType = "user_created"
	EventChatCreated      EventType = "chat_created"
	EventMessage          EventType = "message"
	EventCompletionFailed EventType = "completion_failed"
	EventModelSelected    EventType = "model_selected"
	EventImageGenerated   EventType = "image_generated"
	EventImageFailed      EventType = "image_failed"
	EventImageCancelled   EventType = "image_cancelled"
)

// EventTypes lists every event type in reporting order.
func EventTypes() []EventType {
	return []EventType{
		EventUserCreated,
		EventChatCreated,
		EventMessage,
		EventCompletionFailed,
		EventModelSelected,
		EventImageGenerated,
		EventImageFailed,
		EventImageCancelled,
	}
}

type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	TelegramUserID int64     `json:"telegram_user_id"`
	ChatID         string    `json:"chat_id,omitempty"`
	Model          string    `json:"model,omitempty"`
	Quality        string    `json:"quality,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(t EventType, telegramUserID int64) Event {
	id, _ := common.NewULID()
	return Event{
		ID:             id,
		Type:           t,
		TelegramUserID: telegramUserID,
		OccurredAt:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops events; used when no queue is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
