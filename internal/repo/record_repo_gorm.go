package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"vinyl-exchange/internal/domain"
)

type RecordRepo struct{ db *gorm.DB }

func NewRecordRepo(db *gorm.DB) *RecordRepo { return &RecordRepo{db: db} }

func (r *RecordRepo) Create(ctx context.Context, rec *domain.Record) error {
	return translate(r.db.WithContext(ctx).Create(rec).Error)
}

func (r *RecordRepo) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	var rec domain.Record
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *RecordRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Record, error) {
	db, err := lockRow(r.db.WithContext(ctx), "records", id)
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *RecordRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	recs := []domain.Record{}
	if len(ids) == 0 {
		return recs, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error
	return recs, err
}

func (r *RecordRepo) List(ctx context.Context, f domain.RecordFilter) ([]domain.Record, int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Record{})
	if s := strings.TrimSpace(f.Query); s != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if g := strings.TrimSpace(f.Genre); g != "" {
		// genres 以 JSON 文本存储，按带引号的元素匹配
		tx = tx.Where("LOWER(genres) LIKE ?", `%"`+strings.ToLower(g)+`"%`)
	}
	if f.OwnerID != "" {
		tx = tx.Where("user_id = ?", f.OwnerID)
	}
	if f.ExcludeOwner != "" {
		tx = tx.Where("user_id <> ?", f.ExcludeOwner)
	}
	if !f.IncludeTraded {
		tx = tx.Where("is_traded = ?", false)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	tx = tx.Order("created_at desc")
	if f.Limit > 0 {
		tx = tx.Offset(f.Offset).Limit(f.Limit)
	}
	recs := []domain.Record{}
	if err := tx.Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (r *RecordRepo) UpdateFields(ctx context.Context, rec *domain.Record, fields ...string) error {
	return translate(r.db.WithContext(ctx).Model(rec).Select(fields).Updates(rec).Error)
}

func (r *RecordRepo) MarkTraded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Record{}).
		Where("id = ?", id).
		Update("is_traded", true).Error
}

func (r *RecordRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
