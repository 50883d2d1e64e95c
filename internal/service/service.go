// Package service 业务编排：校验、事务边界与跨仓储的副作用都在这一层
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/domain"
)

// Catalog 列表补全需要的目录读接口
type Catalog interface {
	Album(ctx context.Context, id string) (*catalog.Album, error)
	Artist(ctx context.Context, id string) (*catalog.Artist, error)
}

// CatalogAccounts 目录账号绑定（authorization-code 流程）
type CatalogAccounts interface {
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	Me(ctx context.Context, accessToken string) (*catalog.Profile, error)
}

// Page 分页结果
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// UserRef 对外展示的用户引用
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type RecordSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	CoverURL string `json:"coverUrl"`
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func wrap(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// notFound 把仓储的 ErrNotFound 换成带实体名的消息
func notFound(err error, what string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return wrap(domain.ErrNotFound, what+" not found")
	}
	return err
}

func nowUTC() time.Time { return time.Now().UTC() }

func removeString(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, s := range list {
		if s == v {
			removed = true
			continue
		}
		out = append(out, s)
	}
	return out, removed
}

func addUnique(list []string, v string) ([]string, bool) {
	for _, s := range list {
		if s == v {
			return list, false
		}
	}
	return append(list, v), true
}

func lowerSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
