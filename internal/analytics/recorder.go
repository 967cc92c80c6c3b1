package analytics

import (
	"context"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRecord struct {
	ID             string    `gorm:"primaryKey;size:26"`
	Type           string    `gorm:"type:varchar(32);not null;index:idx_bot_events_type_time,priority:1"`
	TelegramUserID int64     `gorm:"index"`
	ChatID         string    `gorm:"size:26"`
	Model          string    `gorm:"type:varchar(64)"`
	Quality        string    `gorm:"type:varchar(16)"`
	OccurredAt     time.Time `gorm:"not null;index:idx_bot_events_type_time,priority:2"`
}

func (EventRecord) TableName() string { return "bot_events" }

type Summary struct {
	Since  time.Time
	Counts map[EventType]int64
}

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Insert stores an event. Redelivered events (same id) are ignored.
func (r *Recorder) Insert(ctx context.Context, e Event) error {
	if e.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	rec := EventRecord{
		ID:             e.ID,
		Type:           string(e.Type),
		TelegramUserID: e.TelegramUserID,
		ChatID:         e.ChatID,
		Model:          e.Model,
		Quality:        e.Quality,
		OccurredAt:     e.OccurredAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

// Summary counts events per type since the given time.
func (r *Recorder) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var rows []struct {
		Type string
		N    int64
	}
	if err := r.db.WithContext(ctx).
		Model(&EventRecord{}).
		Select("type, COUNT(*) AS n").
		Where("occurred_at >= ?", since).
		Group("type").
		Scan(&rows).Error; err != nil {
		return Summary{}, err
	}

	s := Summary{Since: since, Counts: make(map[EventType]int64, len(rows))}
	for _, row := range rows {
		s.Counts[EventType(row.Type)] = row.N
	}
	return s, nil
}
