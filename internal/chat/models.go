package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is one Telegram end-user. TelegramID is not unique at the schema level:
// users are created find-before-create.
type User struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	TelegramID  int64     `gorm:"index;not null" json:"telegram_id"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	Model       string    `gorm:"type:varchar(64);not null" json:"model"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Chat is one conversation thread owned by a User.
type Chat struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	UserID    string    `gorm:"size:26;not null;index:idx_chats_user_created,priority:1" json:"user_id"`
	CreatedAt time.Time `gorm:"index:idx_chats_user_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

type Message struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	ChatID    string    `gorm:"size:26;not null;index:idx_messages_chat_created,priority:1" json:"chat_id"`
	UserID    string    `gorm:"size:26;not null;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Totals is a coarse usage snapshot of the store.
type Totals struct {
	Users    int64
	Chats    int64
	Messages int64
}
