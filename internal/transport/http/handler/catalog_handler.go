package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
)

// CatalogHandler 目录代理与目录账号登录，路径沿用 /spotify-equivalent
type CatalogHandler struct {
	cat   CatalogReader
	users *service.UserService
	log   *zap.Logger
}

func NewCatalogHandler(cat CatalogReader, users *service.UserService, l *zap.Logger) *CatalogHandler {
	return &CatalogHandler{cat: cat, users: users, log: l}
}

func (h *CatalogHandler) Priority() int { return 30 }

type searchIn struct {
	Q     string `form:"q"`
	Limit int    `form:"limit"`
}

type callbackIn struct {
	Code string `json:"code" binding:"required"`
}

func (h *CatalogHandler) MountAPI(public, _ *gin.RouterGroup) {
	pub := ez.New(public.Group("/spotify-equivalent"), h.log)
	ez.RegisterAction(pub, ez.Action[searchIn, []catalog.Album]{
		Method: http.MethodGet,
		Path:   "/search",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *searchIn) ([]catalog.Album, error) {
			return h.cat.SearchAlbums(c.Request.Context(), in.Q, in.Limit)
		},
	})
	ez.RegisterAction(pub, ez.Action[struct{}, *catalog.Album]{
		Method: http.MethodGet,
		Path:   "/album/:id",
		Handler: func(c *gin.Context, _ *struct{}) (*catalog.Album, error) {
			return h.cat.Album(c.Request.Context(), c.Param("id"))
		},
	})
	ez.RegisterAction(pub, ez.Action[struct{}, *catalog.Artist]{
		Method: http.MethodGet,
		Path:   "/artist/:id",
		Handler: func(c *gin.Context, _ *struct{}) (*catalog.Artist, error) {
			return h.cat.Artist(c.Request.Context(), c.Param("id"))
		},
	})
	ez.RegisterAction(pub, ez.Action[callbackIn, *service.AuthResult]{
		Method: http.MethodPost,
		Path:   "/callback",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *callbackIn) (*service.AuthResult, error) {
			return h.users.CatalogLogin(c.Request.Context(), in.Code)
		},
	})
}
