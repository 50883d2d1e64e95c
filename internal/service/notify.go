package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vinyl_lookingfor_notifications_total",
		Help: "Looking-for match notifications by result",
	},
	[]string{"result"},
)

func init() { prometheus.MustRegister(notificationsTotal) }

// Notifier 新上架记录匹配 lookingFor 时逐个写通知；单个失败只记日志
type Notifier struct {
	users domain.UserRepository
	log   *zap.Logger
	now   func() time.Time
}

func NewNotifier(users domain.UserRepository, l *zap.Logger) *Notifier {
	return &Notifier{users: users, log: l, now: nowUTC}
}

// LookingForMatch 返回成功写入的通知数
func (n *Notifier) LookingForMatch(ctx context.Context, rec *domain.Record) int {
	if rec.AlbumID == "" {
		return 0
	}
	matched, err := n.users.FindLookingFor(ctx, rec.AlbumID)
	if err != nil {
		n.log.Warn("lookup looking-for users failed",
			zap.String("record_id", rec.ID), zap.String("album_id", rec.AlbumID), zap.Error(err))
		return 0
	}
	msg := fmt.Sprintf("The album \"%s\" you are looking for has been listed.", rec.Title)
	delivered := 0
	for _, u := range matched {
		note := &domain.Notification{
			UserID:   u.ID,
			Type:     domain.NotificationLookingForMatch,
			Message:  msg,
			RecordID: rec.ID,
			Date:     n.now(),
		}
		if err := n.users.AddNotification(ctx, note); err != nil {
			notificationsTotal.WithLabelValues("failed").Inc()
			n.log.Warn("notify looking-for user failed",
				zap.String("user_id", u.ID), zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		notificationsTotal.WithLabelValues("delivered").Inc()
		delivered++
	}
	if delivered > 0 {
		n.log.Info("looking-for notifications sent",
			zap.String("record_id", rec.ID), zap.Int("delivered", delivered), zap.Int("matched", len(matched)))
	}
	return delivered
}
