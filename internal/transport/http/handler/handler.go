// Package handler HTTP 模块：每个模块把 service 方法挂成 ez.Action
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/storage"
	mdw "vinyl-exchange/internal/transport/http/middleware"
)

// CatalogReader 目录只读接口（搜索、专辑、艺人）
type CatalogReader interface {
	SearchAlbums(ctx context.Context, q string, limit int) ([]catalog.Album, error)
	Album(ctx context.Context, id string) (*catalog.Album, error)
	Artist(ctx context.Context, id string) (*catalog.Artist, error)
}

// UploadSigner 预签名上传
type UploadSigner interface {
	UploadURL(ctx context.Context, albumID, fileName, fileType string) (*storage.Upload, error)
}

type messageOnly struct {
	Message string `json:"message"`
}

func uid(c *gin.Context) string { return c.GetString(mdw.KeyUserID) }
