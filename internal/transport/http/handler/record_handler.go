package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
)

type RecordHandler struct {
	svc *service.RecordService
	log *zap.Logger
}

func NewRecordHandler(svc *service.RecordService, l *zap.Logger) *RecordHandler {
	return &RecordHandler{svc: svc, log: l}
}

func (h *RecordHandler) Priority() int { return 20 }

type addImageIn struct {
	ImageURL string `json:"imageUrl"`
}

func (h *RecordHandler) MountAPI(public, authed *gin.RouterGroup) {
	pub := ez.New(public.Group("/records"), h.log)
	ez.RegisterAction(pub, ez.Action[service.RecordQuery, *service.Page[domain.Record]]{
		Method: http.MethodGet,
		Path:   "",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *service.RecordQuery) (*service.Page[domain.Record], error) {
			return h.svc.List(c.Request.Context(), *in)
		},
	})

	a := ez.New(authed.Group("/records"), h.log)
	ez.RegisterAction(a, ez.Action[service.CreateRecordInput, *domain.Record]{
		Method: http.MethodPost,
		Path:   "",
		Binder: ez.BindJSON,
		Auth:   true,
		Status: http.StatusCreated,
		Handler: func(c *gin.Context, in *service.CreateRecordInput) (*domain.Record, error) {
			return h.svc.Create(c.Request.Context(), uid(c), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, *domain.Record]{
		Method: http.MethodGet,
		Path:   "/:id",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Record, error) {
			return h.svc.Get(c.Request.Context(), c.Param("id"))
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, messageOnly]{
		Method: http.MethodDelete,
		Path:   "/delete/:id",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (messageOnly, error) {
			if err := h.svc.Delete(c.Request.Context(), uid(c), c.Param("id"), false); err != nil {
				return messageOnly{}, err
			}
			return messageOnly{Message: "Record deleted"}, nil
		},
	})
	ez.RegisterAction(a, ez.Action[addImageIn, *domain.Record]{
		Method: http.MethodPost,
		Path:   "/:id/add-image",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *addImageIn) (*domain.Record, error) {
			return h.svc.AddImage(c.Request.Context(), uid(c), c.Param("id"), in.ImageURL)
		},
	})
}
