package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
)

type TradeInput struct {
	ConversationID string `json:"conversationId"`
}

type FeedbackInput struct {
	ConversationID string `json:"conversationId"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
}

type TradeResult struct {
	Message     string          `json:"message"`
	TradeStatus TradeStatusView `json:"tradeStatus"`
}

// TradeService 会话上的成交状态机：NONE -> INITIATED -> COMPLETED
type TradeService struct {
	store domain.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewTradeService(store domain.Store, l *zap.Logger) *TradeService {
	return &TradeService{store: store, log: l, now: nowUTC}
}

func (s *TradeService) Initiate(ctx context.Context, userID string, in TradeInput) (*TradeResult, error) {
	conv, err := loadParticipant(ctx, s.store, in.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := initiable(conv); err != nil {
		return nil, err
	}
	ok, err := s.store.Conversations().Initiate(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发请求抢先，按最新状态报错
		if cur, err := s.store.Conversations().FindByID(ctx, conv.ID); err == nil {
			if e := initiable(cur); e != nil {
				return nil, e
			}
		}
		return nil, wrap(domain.ErrConflict, "Trade already initiated")
	}
	conv.InitiatedBy, conv.ConfirmedBy = &userID, nil
	s.log.Info("trade initiated", zap.String("conversation_id", conv.ID), zap.String("user_id", userID))
	return &TradeResult{Message: "Trade completion initiated", TradeStatus: tradeStatus(conv)}, nil
}

func initiable(c *domain.Conversation) error {
	switch c.TradeState() {
	case domain.TradeCompleted:
		return wrap(domain.ErrConflict, "Trade already completed")
	case domain.TradeInitiated:
		return wrap(domain.ErrConflict, "Trade already initiated")
	}
	return nil
}

// Confirm 由另一方确认；状态、双方计数、记录成交与下架在同一事务内完成
func (s *TradeService) Confirm(ctx context.Context, userID string, in TradeInput) (*TradeResult, error) {
	conv, err := loadParticipant(ctx, s.store, in.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := confirmable(conv, userID); err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		ok, err := tx.Conversations().Complete(ctx, conv.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return wrap(domain.ErrConflict, "Trade already completed")
		}
		if err := tx.Users().IncrementTradeCount(ctx, conv.Participants()...); err != nil {
			return err
		}
		rec, err := tx.Records().FindByID(ctx, conv.RecordID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("traded record no longer exists",
				zap.String("conversation_id", conv.ID), zap.String("record_id", conv.RecordID))
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Records().MarkTraded(ctx, rec.ID); err != nil {
			return err
		}
		owner, err := tx.Users().FindByIDForUpdate(ctx, rec.UserID)
		if err != nil {
			return notFound(err, "Seller")
		}
		list, removed := removeString(owner.ListedRecords, rec.ID)
		if !removed {
			return nil
		}
		owner.ListedRecords = list
		return tx.Users().UpdateFields(ctx, owner, "ListedRecords")
	})
	if err != nil {
		return nil, err
	}
	conv.IsCompleted, conv.ConfirmedBy = true, &userID
	s.log.Info("trade confirmed",
		zap.String("conversation_id", conv.ID), zap.String("record_id", conv.RecordID), zap.String("user_id", userID))
	return &TradeResult{Message: "Trade completion confirmed", TradeStatus: tradeStatus(conv)}, nil
}

func confirmable(c *domain.Conversation, userID string) error {
	switch {
	case c.IsCompleted:
		return wrap(domain.ErrConflict, "Trade already completed")
	case c.InitiatedBy == nil:
		return wrap(domain.ErrInvalidState, "Trade completion not initiated")
	case *c.InitiatedBy == userID:
		return wrap(domain.ErrForbidden, "You cannot confirm your own initiation")
	}
	return nil
}

// Feedback 成交后每个参与者可评价对方一次
func (s *TradeService) Feedback(ctx context.Context, userID string, in FeedbackInput) (*TradeResult, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, validation("Rating must be between 1 and 5")
	}
	conv, err := loadParticipant(ctx, s.store, in.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !conv.IsCompleted {
		return nil, wrap(domain.ErrInvalidState, "Trade not completed")
	}
	if conv.FeedbackGiven(userID) {
		return nil, wrap(domain.ErrConflict, "Feedback already provided")
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		fb := &domain.Feedback{
			UserID:         conv.Other(userID),
			FromUserID:     userID,
			ConversationID: conv.ID,
			Rating:         in.Rating,
			Comment:        strings.TrimSpace(in.Comment),
			Date:           s.now(),
		}
		if err := tx.Users().AddFeedback(ctx, fb); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return wrap(domain.ErrConflict, "Feedback already provided")
			}
			return err
		}
		// 事务内重读后再追加
		cur, err := tx.Conversations().FindByID(ctx, conv.ID)
		if err != nil {
			return err
		}
		list, _ := addUnique(orEmpty(cur.FeedbackProvided), userID)
		cur.FeedbackProvided = list
		conv = cur
		return tx.Conversations().SetFeedbackProvided(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("feedback left",
		zap.String("conversation_id", conv.ID), zap.String("from_user_id", userID), zap.Int("rating", in.Rating))
	return &TradeResult{Message: "Feedback submitted", TradeStatus: tradeStatus(conv)}, nil
}
