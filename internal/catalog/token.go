package catalog

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"vinyl-exchange/internal/domain"
)

// TokenProvider 提供应用级访问令牌，实现方负责缓存与刷新
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// CredentialsProvider client-credentials 模式，令牌在过期前复用
type CredentialsProvider struct {
	cfg  clientcredentials.Config
	hc   *http.Client
	once sync.Once
	ts   oauth2.TokenSource
}

func NewCredentialsProvider(clientID, clientSecret, tokenURL string, hc *http.Client) *CredentialsProvider {
	return &CredentialsProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		hc: hc,
	}
}

func (p *CredentialsProvider) Token(ctx context.Context) (string, error) {
	p.once.Do(func() {
		// TokenSource 持有创建时的 ctx，这里用不会取消的 ctx，单次请求的超时由 http.Client 控制
		base := context.Background()
		if p.hc != nil {
			base = context.WithValue(base, oauth2.HTTPClient, p.hc)
		}
		p.ts = oauth2.ReuseTokenSource(nil, p.cfg.TokenSource(base))
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.ts.Token()
	if err != nil {
		return "", fmt.Errorf("%w: catalog token: %v", domain.ErrUpstream, err)
	}
	return tok.AccessToken, nil
}

// StaticToken 固定令牌，测试或已持有用户令牌时使用
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
