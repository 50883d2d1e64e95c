package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/pkg/utils"
)

// CreateRecordInput 字段为 nil 表示调用方未提供；提供的字段覆盖目录数据
type CreateRecordInput struct {
	AlbumID     string             `json:"albumId"`
	Title       *string            `json:"title"`
	Artist      *domain.StringList `json:"artist"`
	Genres      *domain.StringList `json:"genres"`
	CoverURL    *string            `json:"coverUrl"`
	ReleaseDate *string            `json:"releaseDate"`
	Condition   *string            `json:"condition"`
	Description *string            `json:"description"`
	Shipping    *string            `json:"shipping"`
	Images      *domain.StringList `json:"images"`
}

type RecordQuery struct {
	Q             string `form:"q"`
	Genre         string `form:"genre"`
	IncludeTraded bool   `form:"includeTraded"`
	Page          int    `form:"page"`
	Size          int    `form:"size"`
}

type RecordService struct {
	store    domain.Store
	catalog  Catalog
	notifier *Notifier
	log      *zap.Logger
}

func NewRecordService(store domain.Store, cat Catalog, n *Notifier, l *zap.Logger) *RecordService {
	return &RecordService{store: store, catalog: cat, notifier: n, log: l}
}

// Create 补全 -> 合并 -> 校验 -> 事务内写记录并追加到在售列表 -> 通知
func (s *RecordService) Create(ctx context.Context, userID string, in CreateRecordInput) (*domain.Record, error) {
	rec := &domain.Record{
		AlbumID: strings.TrimSpace(in.AlbumID),
		Artist:  []string{},
		Genres:  []string{},
		Images:  []string{},
	}
	if rec.AlbumID != "" {
		if err := s.enrich(ctx, rec); err != nil {
			return nil, err
		}
	}
	mergeInput(rec, in)
	rec.ID = utils.NewID()
	rec.UserID = userID
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		owner, err := tx.Users().FindByIDForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "User")
		}
		if err := tx.Records().Create(ctx, rec); err != nil {
			return err
		}
		owner.ListedRecords = append(orEmpty(owner.ListedRecords), rec.ID)
		return tx.Users().UpdateFields(ctx, owner, "ListedRecords")
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("record listed",
		zap.String("record_id", rec.ID), zap.String("user_id", userID), zap.String("album_id", rec.AlbumID))

	if rec.AlbumID != "" && s.notifier != nil {
		s.notifier.LookingForMatch(ctx, rec)
	}
	return rec, nil
}

// enrich 专辑取标题/艺人/封面/发行日期，流派取第一个艺人的
func (s *RecordService) enrich(ctx context.Context, rec *domain.Record) error {
	if s.catalog == nil {
		return wrap(domain.ErrUpstream, "catalog is not configured")
	}
	album, err := s.catalog.Album(ctx, rec.AlbumID)
	if err != nil {
		return err
	}
	if len(album.Artists) == 0 || album.Artists[0].ID == "" {
		return wrap(domain.ErrUpstream, "catalog album has no artist")
	}
	artist, err := s.catalog.Artist(ctx, album.Artists[0].ID)
	if err != nil {
		return err
	}
	rec.Title = album.Name
	rec.Artist = album.ArtistNames()
	rec.Genres = orEmpty(artist.Genres)
	rec.CoverURL = album.CoverURL()
	rec.ReleaseDate = album.ReleaseDate
	return nil
}

func mergeInput(rec *domain.Record, in CreateRecordInput) {
	if in.Title != nil {
		rec.Title = strings.TrimSpace(*in.Title)
	}
	if in.Artist != nil {
		rec.Artist = orEmpty(*in.Artist)
	}
	if in.Genres != nil {
		rec.Genres = orEmpty(*in.Genres)
	}
	if in.CoverURL != nil {
		rec.CoverURL = *in.CoverURL
	}
	if in.ReleaseDate != nil {
		rec.ReleaseDate = *in.ReleaseDate
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	if in.Images != nil {
		rec.Images = orEmpty(*in.Images)
	}
	rec.Condition = domain.ConditionNew
	if in.Condition != nil {
		rec.Condition = *in.Condition
	}
	rec.Shipping = domain.ShippingNone
	if in.Shipping != nil {
		rec.Shipping = *in.Shipping
	}
}

func (s *RecordService) Get(ctx context.Context, id string) (*domain.Record, error) {
	rec, err := s.store.Records().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Record")
	}
	return rec, nil
}

func (s *RecordService) List(ctx context.Context, q RecordQuery) (*Page[domain.Record], error) {
	page, size := normalizePage(q.Page, q.Size)
	recs, total, err := s.store.Records().List(ctx, domain.RecordFilter{
		Query:         q.Q,
		Genre:         q.Genre,
		IncludeTraded: q.IncludeTraded,
		Offset:        (page - 1) * size,
		Limit:         size,
	})
	if err != nil {
		return nil, err
	}
	return &Page[domain.Record]{Items: recs, Total: total, Page: page, Size: size}, nil
}

// Delete 本人删除；asAdmin 为管理端下架
func (s *RecordService) Delete(ctx context.Context, actorID, id string, asAdmin bool) error {
	rec, err := s.store.Records().FindByID(ctx, id)
	if err != nil {
		return notFound(err, "Record")
	}
	if !asAdmin && rec.UserID != actorID {
		return wrap(domain.ErrForbidden, "You can only delete your own records")
	}
	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		// 先锁所有者再动记录，与成交确认的加锁顺序一致
		owner, err := tx.Users().FindByIDForUpdate(ctx, rec.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := tx.Records().Delete(ctx, id); err != nil {
			return notFound(err, "Record")
		}
		if owner == nil {
			// 所有者不存在时只删记录
			return nil
		}
		list, removed := removeString(owner.ListedRecords, id)
		if !removed {
			return nil
		}
		owner.ListedRecords = list
		return tx.Users().UpdateFields(ctx, owner, "ListedRecords")
	})
	if err != nil {
		return err
	}
	s.log.Info("record deleted", zap.String("record_id", id), zap.String("actor_id", actorID), zap.Bool("admin", asAdmin))
	return nil
}

// AddImage 上传完成后把公开地址挂到记录上，仅所有者
func (s *RecordService) AddImage(ctx context.Context, actorID, id, imageURL string) (*domain.Record, error) {
	imageURL = strings.TrimSpace(imageURL)
	if err := validate.Var(imageURL, "required,url"); err != nil {
		return nil, validation("imageUrl must be a valid URL")
	}
	var rec *domain.Record
	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		var err error
		rec, err = tx.Records().FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "Record")
		}
		if rec.UserID != actorID {
			return wrap(domain.ErrForbidden, "You can only modify your own records")
		}
		rec.Images = append(orEmpty(rec.Images), imageURL)
		return tx.Records().UpdateFields(ctx, rec, "Images")
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
