package domain

import (
	"context"
	"slices"
	"time"
)

// Conversation 一条记录 + 一对参与者唯一；UserA < UserB
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36"`
	RecordID    string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_key"`
	UserA       string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_key;index"`
	UserB       string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_key;index"`
	LastUpdated time.Time `gorm:"index"`

	IsCompleted      bool     `gorm:"not null;default:false"`
	InitiatedBy      *string  `gorm:"size:36"`
	ConfirmedBy      *string  `gorm:"size:36"`
	FeedbackProvided []string `gorm:"type:text;serializer:json"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

type Message struct {
	ID             uint          `gorm:"primaryKey"`
	ConversationID string        `gorm:"size:36;not null;index"`
	SenderID       string        `gorm:"size:36;not null;index"`
	Text           string        `gorm:"type:text;not null"`
	Timestamp      time.Time     `gorm:"index"`
	Reads          []MessageRead `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

type MessageRead struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false"`
	UserID    string    `gorm:"primaryKey;size:36"`
	ReadAt    time.Time
}

// TradeState 会话的成交状态
type TradeState int

const (
	TradeNone TradeState = iota
	TradeInitiated
	TradeCompleted
)

func (s TradeState) String() string {
	switch s {
	case TradeInitiated:
		return "INITIATED"
	case TradeCompleted:
		return "COMPLETED"
	default:
		return "NONE"
	}
}

// ParticipantPair 参与者规范化排序
func ParticipantPair(x, y string) (string, string) {
	if x <= y {
		return x, y
	}
	return y, x
}

func (c *Conversation) Participants() []string { return []string{c.UserA, c.UserB} }

func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other 返回另一方参与者
func (c *Conversation) Other(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

func (c *Conversation) TradeState() TradeState {
	switch {
	case c.IsCompleted:
		return TradeCompleted
	case c.InitiatedBy != nil:
		return TradeInitiated
	default:
		return TradeNone
	}
}

func (c *Conversation) FeedbackGiven(userID string) bool {
	return slices.Contains(c.FeedbackProvided, userID)
}

// ReadBy 返回已预加载的已读用户
func (m *Message) ReadBy() []string {
	out := make([]string, 0, len(m.Reads))
	for _, r := range m.Reads {
		out = append(out, r.UserID)
	}
	return out
}

type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	FindByID(ctx context.Context, id string) (*Conversation, error)
	FindWithMessages(ctx context.Context, id string) (*Conversation, error)
	FindByKey(ctx context.Context, recordID, userA, userB string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]Conversation, error)

	AddMessage(ctx context.Context, m *Message) error
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	CountPendingConfirmations(ctx context.Context, userID string) (int64, error)

	// 带条件的状态迁移，返回是否命中（false 表示被并发请求抢先）
	Initiate(ctx context.Context, id, userID string) (bool, error)
	Complete(ctx context.Context, id, userID string) (bool, error)
	SetFeedbackProvided(ctx context.Context, c *Conversation) error
}

// Store 聚合仓储，Atomic 内的操作共享同一事务
type Store interface {
	Users() UserRepository
	Records() RecordRepository
	Conversations() ConversationRepository
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
