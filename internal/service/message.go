package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/pkg/utils"
)

type TradeStatusView struct {
	State            string   `json:"state"`
	IsCompleted      bool     `json:"isCompleted"`
	InitiatedBy      *string  `json:"initiatedBy"`
	ConfirmedBy      *string  `json:"confirmedBy"`
	FeedbackProvided []string `json:"feedbackProvided"`
}

type MessageView struct {
	ID        uint      `json:"id"`
	Sender    UserRef   `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	ReadBy    []string  `json:"readBy"`
}

type ConversationView struct {
	ID           string          `json:"id"`
	RecordID     string          `json:"recordId"`
	Record       *RecordSummary  `json:"record"`
	Participants []UserRef       `json:"participants"`
	Messages     []MessageView   `json:"messages,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	TradeStatus  TradeStatusView `json:"tradeStatus"`
}

// UnreadCounts 未读消息与待确认交易分开计数，UnreadCount 为两者之和
type UnreadCounts struct {
	UnreadMessages            int64 `json:"unreadMessages"`
	PendingTradeConfirmations int64 `json:"pendingTradeConfirmations"`
	UnreadCount               int64 `json:"unreadCount"`
}

type StartInput struct {
	RecordID string `json:"recordId"`
	SellerID string `json:"sellerId"`
}

type SendInput struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

type MessageService struct {
	store domain.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewMessageService(store domain.Store, l *zap.Logger) *MessageService {
	return &MessageService{store: store, log: l, now: nowUTC}
}

// Start 同一记录 + 同一对参与者只有一个会话；并发创建由唯一索引兜底
func (s *MessageService) Start(ctx context.Context, buyerID string, in StartInput) (*ConversationView, error) {
	recordID := strings.TrimSpace(in.RecordID)
	if recordID == "" {
		return nil, validation("recordId is required")
	}
	rec, err := s.store.Records().FindByID(ctx, recordID)
	if err != nil {
		return nil, notFound(err, "Record")
	}
	sellerID := strings.TrimSpace(in.SellerID)
	if sellerID == "" {
		sellerID = rec.UserID
	}
	if sellerID == buyerID {
		return nil, validation("Cannot start a conversation with yourself")
	}
	if _, err := s.store.Users().FindByID(ctx, sellerID); err != nil {
		return nil, notFound(err, "User")
	}

	a, b := domain.ParticipantPair(buyerID, sellerID)
	convs := s.store.Conversations()
	conv, err := convs.FindByKey(ctx, recordID, a, b)
	if errors.Is(err, domain.ErrNotFound) {
		conv = &domain.Conversation{
			ID:               utils.NewID(),
			RecordID:         recordID,
			UserA:            a,
			UserB:            b,
			LastUpdated:      s.now(),
			FeedbackProvided: []string{},
		}
		err = convs.Create(ctx, conv)
		if errors.Is(err, domain.ErrDuplicate) {
			conv, err = convs.FindByKey(ctx, recordID, a, b)
		} else if err == nil {
			s.log.Info("conversation started",
				zap.String("conversation_id", conv.ID), zap.String("record_id", recordID))
		}
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, buyerID, conv.ID)
}

// Send 发送者默认已读；刷新 lastUpdated
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (*ConversationView, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, validation("Message text is required")
	}
	if _, err := loadParticipant(ctx, s.store, in.ConversationID, senderID); err != nil {
		return nil, err
	}
	now := s.now()
	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Text:           text,
		Timestamp:      now,
		Reads:          []domain.MessageRead{{UserID: senderID, ReadAt: now}},
	}
	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		return notFound(tx.Conversations().AddMessage(ctx, msg), "Conversation")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, senderID, in.ConversationID)
}

// MarkRead 幂等
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID string) (int64, error) {
	if _, err := loadParticipant(ctx, s.store, conversationID, userID); err != nil {
		return 0, err
	}
	return s.store.Conversations().MarkRead(ctx, conversationID, userID, s.now())
}

func (s *MessageService) Get(ctx context.Context, userID, conversationID string) (*ConversationView, error) {
	conv, err := s.store.Conversations().FindWithMessages(ctx, conversationID)
	if err != nil {
		return nil, notFound(err, "Conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, wrap(domain.ErrForbidden, "You are not a participant of this conversation")
	}
	views, err := s.views(ctx, []domain.Conversation{*conv}, true)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List 按 lastUpdated 倒序，不含消息体
func (s *MessageService) List(ctx context.Context, userID string) ([]ConversationView, error) {
	convs, err := s.store.Conversations().ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, convs, false)
}

func (s *MessageService) UnreadCount(ctx context.Context, userID string) (*UnreadCounts, error) {
	msgs, err := s.store.Conversations().CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.Conversations().CountPendingConfirmations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UnreadCounts{UnreadMessages: msgs, PendingTradeConfirmations: pending, UnreadCount: msgs + pending}, nil
}

// loadParticipant 会话存在且 userID 为参与者
func loadParticipant(ctx context.Context, st domain.Store, conversationID, userID string) (*domain.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, validation("conversationId is required")
	}
	conv, err := st.Conversations().FindByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err, "Conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, wrap(domain.ErrForbidden, "You are not a participant of this conversation")
	}
	return conv, nil
}

// views 批量取参与者用户名与记录摘要
func (s *MessageService) views(ctx context.Context, convs []domain.Conversation, withMessages bool) ([]ConversationView, error) {
	userIDs := make([]string, 0, len(convs)*2)
	recordIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		userIDs = append(userIDs, c.UserA, c.UserB)
		recordIDs = append(recordIDs, c.RecordID)
	}
	users, err := s.store.Users().FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	recs, err := s.store.Records().FindByIDs(ctx, recordIDs)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]*RecordSummary, len(recs))
	for _, r := range recs {
		summaries[r.ID] = &RecordSummary{ID: r.ID, Title: r.Title, CoverURL: r.CoverURL}
	}

	ref := func(id string) UserRef { return UserRef{ID: id, Username: names[id]} }
	out := make([]ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		v := ConversationView{
			ID:           c.ID,
			RecordID:     c.RecordID,
			Record:       summaries[c.RecordID],
			Participants: []UserRef{ref(c.UserA), ref(c.UserB)},
			LastUpdated:  c.LastUpdated,
			TradeStatus:  tradeStatus(c),
		}
		if withMessages {
			v.Messages = make([]MessageView, 0, len(c.Messages))
			for j := range c.Messages {
				m := &c.Messages[j]
				v.Messages = append(v.Messages, MessageView{
					ID:        m.ID,
					Sender:    ref(m.SenderID),
					Text:      m.Text,
					Timestamp: m.Timestamp,
					ReadBy:    m.ReadBy(),
				})
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func tradeStatus(c *domain.Conversation) TradeStatusView {
	return TradeStatusView{
		State:            c.TradeState().String(),
		IsCompleted:      c.IsCompleted,
		InitiatedBy:      c.InitiatedBy,
		ConfirmedBy:      c.ConfirmedBy,
		FeedbackProvided: orEmpty(c.FeedbackProvided),
	}
}
