package domain

import (
	"context"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID              string   `gorm:"primaryKey;size:36" json:"id"`
	Username        string   `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email           string   `gorm:"uniqueIndex;size:191;not null" json:"email"`
	PasswordHash    string   `gorm:"size:100" json:"-"`
	Role            string   `gorm:"size:16;not null;default:user" json:"-"`
	Country         string   `gorm:"size:64" json:"country"`
	FavoriteArtists []string `gorm:"type:text;serializer:json" json:"favoriteArtists"`
	FavoriteGenres  []string `gorm:"type:text;serializer:json" json:"favoriteGenres"`
	About           string   `gorm:"type:text" json:"about"`
	SavedItems      []string `gorm:"type:text;serializer:json" json:"savedItems"`
	// 在售记录（有序），成交或删除时移除
	ListedRecords []string `gorm:"column:records_listed_for_trade;type:text;serializer:json" json:"recordsListedForTrade"`
	TradeCount    int      `gorm:"not null;default:0" json:"tradeCount"`

	SpotifyID           *string `gorm:"uniqueIndex;size:64" json:"-"`
	SpotifyAccessToken  string  `gorm:"type:text" json:"-"`
	SpotifyRefreshToken string  `gorm:"type:text" json:"-"`

	LookingFor    []LookingFor   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Feedback      []Feedback     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Notifications []Notification `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LookingFor 用户想要的专辑（目录 ID），(user_id, album_id) 唯一
type LookingFor struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_looking_for_user_album" json:"-"`
	AlbumID   string    `gorm:"size:64;not null;uniqueIndex:idx_looking_for_user_album;index" json:"albumId"`
	CreatedAt time.Time `json:"-"`
}

func (LookingFor) TableName() string { return "looking_for" }

// Feedback 存在接收方名下；每个会话每个评价人最多一条
type Feedback struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:36;not null;index" json:"-"`
	FromUserID     string    `gorm:"size:36;not null;uniqueIndex:idx_feedback_conv_from" json:"fromUserId"`
	ConversationID string    `gorm:"size:36;not null;uniqueIndex:idx_feedback_conv_from" json:"conversationId"`
	Rating         int       `gorm:"not null" json:"rating"`
	Comment        string    `gorm:"type:text" json:"comment"`
	Date           time.Time `json:"date"`

	FromUser *User `gorm:"foreignKey:FromUserID" json:"-"`
}

func (Feedback) TableName() string { return "feedback" }

const NotificationLookingForMatch = "LookingForMatch"

// Notification 只增不改
type Notification struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   string    `gorm:"size:36;not null;index" json:"-"`
	Type     string    `gorm:"size:32;not null" json:"type"`
	Message  string    `gorm:"type:text;not null" json:"message"`
	RecordID string    `gorm:"size:36;not null" json:"recordId"`
	Date     time.Time `json:"date"`
}

// LookingForIDs 返回已预加载的想要列表
func (u *User) LookingForIDs() []string {
	out := make([]string, 0, len(u.LookingFor))
	for _, lf := range u.LookingFor {
		out = append(out, lf.AlbumID)
	}
	return out
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByIDForUpdate 在事务内锁行读取，列表列（在售、收藏）的读改写必须经过它
	FindByIDForUpdate(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindBySpotifyID(ctx context.Context, spotifyID string) (*User, error)
	FindByIDs(ctx context.Context, ids []string) ([]User, error)
	List(ctx context.Context, q string, offset, limit int) ([]User, int64, error)
	// UpdateFields 只写入指定列，避免覆盖并发修改的计数
	UpdateFields(ctx context.Context, u *User, fields ...string) error
	IncrementTradeCount(ctx context.Context, ids ...string) error

	AddLookingFor(ctx context.Context, userID, albumID string) error
	RemoveLookingFor(ctx context.Context, userID, albumID string) error
	LookingFor(ctx context.Context, userID string) ([]string, error)
	FindLookingFor(ctx context.Context, albumID string) ([]User, error)

	AddNotification(ctx context.Context, n *Notification) error
	Notifications(ctx context.Context, userID string) ([]Notification, error)

	AddFeedback(ctx context.Context, f *Feedback) error
	FeedbackFor(ctx context.Context, userID string) ([]Feedback, error)
}
