package repo

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vinyl-exchange/internal/domain"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(u).Error)
}

func (r *UserRepo) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, query, arg).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	db, err := lockRow(r.db.WithContext(ctx), "users", id)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepo) FindBySpotifyID(ctx context.Context, spotifyID string) (*domain.User, error) {
	return r.first(ctx, "spotify_id = ?", spotifyID)
}

func (r *UserRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	var users []domain.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepo) List(ctx context.Context, q string, offset, limit int) ([]domain.User, int64, error) {
	var users []domain.User
	tx := r.db.WithContext(ctx).Model(&domain.User{})
	if s := strings.TrimSpace(q); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("email LIKE ? OR username LIKE ?", like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Offset(offset).Limit(limit).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) UpdateFields(ctx context.Context, u *domain.User, fields ...string) error {
	res := r.db.WithContext(ctx).Model(u).Select(fields).Updates(u)
	if res.Error != nil {
		return translate(res.Error)
	}
	return nil
}

func (r *UserRepo) IncrementTradeCount(ctx context.Context, ids ...string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id IN ?", ids).
		UpdateColumn("trade_count", gorm.Expr("trade_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("increment trade count: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) AddLookingFor(ctx context.Context, userID, albumID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.LookingFor{UserID: userID, AlbumID: albumID}).Error
}

func (r *UserRepo) RemoveLookingFor(ctx context.Context, userID, albumID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND album_id = ?", userID, albumID).
		Delete(&domain.LookingFor{}).Error
}

func (r *UserRepo) LookingFor(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&domain.LookingFor{}).
		Where("user_id = ?", userID).
		Order("id").
		Pluck("album_id", &ids).Error
	return ids, err
}

func (r *UserRepo) FindLookingFor(ctx context.Context, albumID string) ([]domain.User, error) {
	db := r.db.WithContext(ctx)
	sub := db.Model(&domain.LookingFor{}).Select("user_id").Where("album_id = ?", albumID)
	var users []domain.User
	err := db.Where("id IN (?)", sub).Order("created_at").Find(&users).Error
	return users, err
}

func (r *UserRepo) AddNotification(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *UserRepo) Notifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	ns := []domain.Notification{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("date desc, id desc").Find(&ns).Error
	return ns, err
}

func (r *UserRepo) AddFeedback(ctx context.Context, f *domain.Feedback) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(f).Error)
}

func (r *UserRepo) FeedbackFor(ctx context.Context, userID string) ([]domain.Feedback, error) {
	fs := []domain.Feedback{}
	err := r.db.WithContext(ctx).Preload("FromUser").
		Where("user_id = ?", userID).
		Order("date desc, id desc").
		Find(&fs).Error
	return fs, err
}
