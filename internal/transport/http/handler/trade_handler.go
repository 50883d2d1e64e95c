package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
)

type TradeHandler struct {
	svc *service.TradeService
	log *zap.Logger
}

func NewTradeHandler(svc *service.TradeService, l *zap.Logger) *TradeHandler {
	return &TradeHandler{svc: svc, log: l}
}

func (h *TradeHandler) Priority() int { return 50 }

func (h *TradeHandler) MountAPI(_, authed *gin.RouterGroup) {
	a := ez.New(authed.Group("/trades"), h.log)
	ez.RegisterAction(a, ez.Action[service.TradeInput, *service.TradeResult]{
		Method: http.MethodPost,
		Path:   "/initiate",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.TradeInput) (*service.TradeResult, error) {
			return h.svc.Initiate(c.Request.Context(), uid(c), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[service.TradeInput, *service.TradeResult]{
		Method: http.MethodPost,
		Path:   "/confirm",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.TradeInput) (*service.TradeResult, error) {
			return h.svc.Confirm(c.Request.Context(), uid(c), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[service.FeedbackInput, *service.TradeResult]{
		Method: http.MethodPost,
		Path:   "/feedback",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.FeedbackInput) (*service.TradeResult, error) {
			return h.svc.Feedback(c.Request.Context(), uid(c), *in)
		},
	})
}
