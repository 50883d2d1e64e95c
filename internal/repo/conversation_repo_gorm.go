package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vinyl-exchange/internal/domain"
)

type ConversationRepo struct{ db *gorm.DB }

func NewConversationRepo(db *gorm.DB) *ConversationRepo { return &ConversationRepo{db: db} }

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error)
}

func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ConversationRepo) FindWithMessages(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Messages.Reads").
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ConversationRepo) FindByKey(ctx context.Context, recordID, userA, userB string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.WithContext(ctx).
		Where("record_id = ? AND user_a = ? AND user_b = ?", recordID, userA, userB).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	cs := []domain.Conversation{}
	err := r.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("last_updated desc").
		Find(&cs).Error
	return cs, err
}

// AddMessage 写消息（含发送者已读）并刷新 last_updated；调用方负责事务
func (r *ConversationRepo) AddMessage(ctx context.Context, m *domain.Message) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(m).Error; err != nil {
		return err
	}
	res := db.Model(&domain.Conversation{}).
		Where("id = ?", m.ConversationID).
		Update("last_updated", m.Timestamp)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	db := r.db.WithContext(ctx)
	read := db.Model(&domain.MessageRead{}).Select("message_id").Where("user_id = ?", userID)

	var ids []uint
	err := db.Model(&domain.Message{}).
		Where("conversation_id = ? AND id NOT IN (?)", conversationID, read).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	rows := make([]domain.MessageRead, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *ConversationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	db := r.db.WithContext(ctx)
	read := db.Model(&domain.MessageRead{}).
		Select("1").
		Where("message_reads.message_id = messages.id AND message_reads.user_id = ?", userID)

	var n int64
	err := db.Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.user_a = ? OR conversations.user_b = ?)", userID, userID).
		Where("messages.sender_id <> ?", userID).
		Where("NOT EXISTS (?)", read).
		Count(&n).Error
	return n, err
}

func (r *ConversationRepo) CountPendingConfirmations(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("(user_a = ? OR user_b = ?)", userID, userID).
		Where("is_completed = ? AND initiated_by IS NOT NULL AND initiated_by <> ?", false, userID).
		Count(&n).Error
	return n, err
}

func (r *ConversationRepo) Initiate(ctx context.Context, id, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ? AND is_completed = ? AND initiated_by IS NULL", id, false).
		Updates(map[string]any{"initiated_by": userID, "confirmed_by": nil})
	return res.RowsAffected > 0, res.Error
}

func (r *ConversationRepo) Complete(ctx context.Context, id, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ? AND is_completed = ? AND initiated_by IS NOT NULL AND initiated_by <> ?", id, false, userID).
		Updates(map[string]any{"is_completed": true, "confirmed_by": userID})
	return res.RowsAffected > 0, res.Error
}

func (r *ConversationRepo) SetFeedbackProvided(ctx context.Context, c *domain.Conversation) error {
	return r.db.WithContext(ctx).Model(c).Select("feedback_provided").Updates(c).Error
}
