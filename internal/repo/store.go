package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vinyl-exchange/internal/domain"
)

// Store gorm 版聚合仓储；事务内复用同一个 *gorm.DB
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Users() domain.UserRepository                 { return &UserRepo{db: s.db} }
func (s *Store) Records() domain.RecordRepository             { return &RecordRepo{db: s.db} }
func (s *Store) Conversations() domain.ConversationRepository { return &ConversationRepo{db: s.db} }

func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&domain.User{},
		&domain.LookingFor{},
		&domain.Feedback{},
		&domain.Notification{},
		&domain.Record{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.MessageRead{},
	}
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(Models()...)
}

// lockRow 事务内锁住 table 中 id 对应的行；之后的读取看到的是最新提交的数据。
// sqlite 没有行锁，先做一次空写拿到库级写锁
func lockRow(db *gorm.DB, table, id string) (*gorm.DB, error) {
	if db.Dialector.Name() != "sqlite" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}), nil
	}
	res := db.Exec("UPDATE "+table+" SET created_at = created_at WHERE id = ?", id)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return db, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey) || isDupKey(err):
		return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
	}
	return err
}

func isDupKey(err error) bool {
	// 不依赖 gorm.ErrDuplicatedKey（需开启 TranslateError，且会丢失列名）
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "duplicate key")
}
