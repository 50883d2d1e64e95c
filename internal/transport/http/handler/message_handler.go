package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
)

type MessageHandler struct {
	svc *service.MessageService
	log *zap.Logger
}

func NewMessageHandler(svc *service.MessageService, l *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, log: l}
}

func (h *MessageHandler) Priority() int { return 40 }

type markReadOut struct {
	Message string `json:"message"`
	Marked  int64  `json:"marked"`
}

func (h *MessageHandler) MountAPI(_, authed *gin.RouterGroup) {
	a := ez.New(authed.Group("/messages"), h.log)
	ez.RegisterAction(a, ez.Action[service.StartInput, *service.ConversationView]{
		Method: http.MethodPost,
		Path:   "/start",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.StartInput) (*service.ConversationView, error) {
			return h.svc.Start(c.Request.Context(), uid(c), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[service.SendInput, *service.ConversationView]{
		Method: http.MethodPost,
		Path:   "/send",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.SendInput) (*service.ConversationView, error) {
			return h.svc.Send(c.Request.Context(), uid(c), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, markReadOut]{
		Method: http.MethodPost,
		Path:   "/conversation/:id/mark-read",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (markReadOut, error) {
			n, err := h.svc.MarkRead(c.Request.Context(), uid(c), c.Param("id"))
			return markReadOut{Message: "Messages marked as read", Marked: n}, err
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, *service.ConversationView]{
		Method: http.MethodGet,
		Path:   "/conversation/:id",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.ConversationView, error) {
			return h.svc.Get(c.Request.Context(), uid(c), c.Param("id"))
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, []service.ConversationView]{
		Method: http.MethodGet,
		Path:   "/conversations",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]service.ConversationView, error) {
			return h.svc.List(c.Request.Context(), uid(c))
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, *service.UnreadCounts]{
		Method: http.MethodGet,
		Path:   "/unread-count",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.UnreadCounts, error) {
			return h.svc.UnreadCount(c.Request.Context(), uid(c))
		},
	})
}
