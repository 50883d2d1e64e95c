package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/storage"
	"vinyl-exchange/internal/transport/http/ez"
)

// UploadHandler 签发图片直传地址；signer 为 nil 表示未配置对象存储
type UploadHandler struct {
	signer UploadSigner
	log    *zap.Logger
}

func NewUploadHandler(signer UploadSigner, l *zap.Logger) *UploadHandler {
	return &UploadHandler{signer: signer, log: l}
}

func (h *UploadHandler) Priority() int { return 60 }

type uploadIn struct {
	FileName string `form:"fileName"`
	FileType string `form:"fileType"`
	AlbumID  string `form:"albumId"`
}

func (h *UploadHandler) MountAPI(_, authed *gin.RouterGroup) {
	a := ez.New(authed.Group("/s3"), h.log)
	ez.RegisterAction(a, ez.Action[uploadIn, *storage.Upload]{
		Method: http.MethodGet,
		Path:   "/generate-upload-url",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *uploadIn) (*storage.Upload, error) {
			if h.signer == nil {
				return nil, ez.Internal("object storage is not configured", domain.ErrUpstream)
			}
			return h.signer.UploadURL(c.Request.Context(), in.AlbumID, in.FileName, in.FileType)
		},
	})
}
