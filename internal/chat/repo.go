package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/common"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("chat: record not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func ensureID(id *string) error {
	if *id != "" {
		return nil
	}
	v, err := common.NewULID()
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (r *Repo) FindUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Order("created_at ASC, id ASC").
		First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	if err := ensureID(&u.ID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) UpdateUserModel(ctx context.Context, userID, model string) error {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("model", model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	if err := ensureID(&c.ID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) FindChat(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", chatID).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindLatestChat returns the most recently created chat of a user.
func (r *Repo) FindLatestChat(ctx context.Context, userID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *Repo) TouchChat(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", time.Now()).Error
}

func (r *Repo) CreateMessage(ctx context.Context, m *Message) error {
	if err := ensureID(&m.ID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns every message of a chat, oldest first.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessages returns the newest limit messages of a chat, oldest first.
func (r *Repo) ListRecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var desc []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&desc).Error; err != nil {
		return nil, err
	}

	// reverse to ASC (oldest -> newest)
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

func (r *Repo) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	db := r.db.WithContext(ctx)
	if err := db.Model(&User{}).Count(&t.Users).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&Chat{}).Count(&t.Chats).Error; err != nil {
		return Totals{}, err
	}
	if err := db.Model(&Message{}).Count(&t.Messages).Error; err != nil {
		return Totals{}, err
	}
	return t, nil
}
