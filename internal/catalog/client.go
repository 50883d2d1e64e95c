package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"vinyl-exchange/internal/core/cache"
	"vinyl-exchange/internal/domain"
)

const (
	DefaultBaseURL     = "https://api.spotify.com/v1"
	DefaultTokenURL    = "https://accounts.spotify.com/api/token"
	defaultAuthURL     = "https://accounts.spotify.com/authorize"
	DefaultSearchLimit = 5
)

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	BaseURL      string
	Timeout      time.Duration

	Tokens     TokenProvider // 为空则按 client-credentials 自动创建
	HTTPClient *http.Client
	Cache      *cache.Cache // 可选
	CacheTTL   time.Duration
}

type Client struct {
	baseURL string
	hc      *http.Client
	tokens  TokenProvider
	oauth   *oauth2.Config
	cache   *cache.Cache
	ttl     time.Duration
}

func New(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.TokenURL == "" {
		o.TokenURL = DefaultTokenURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	tokens := o.Tokens
	if tokens == nil {
		tokens = NewCredentialsProvider(o.ClientID, o.ClientSecret, o.TokenURL, hc)
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 10 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		hc:      hc,
		tokens:  tokens,
		oauth: &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURI,
			Scopes:       []string{"user-read-private", "user-read-email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  o.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		cache: o.Cache,
		ttl:   o.CacheTTL,
	}
}

func (c *Client) Album(ctx context.Context, id string) (*Album, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: album id is required", domain.ErrValidation)
	}
	return cache.GetOrLoadJSON(c.cache, ctx, "catalog:album:"+id, c.ttl, func(ctx context.Context) (*Album, error) {
		var a Album
		if err := c.appGet(ctx, "/albums/"+url.PathEscape(id), nil, &a); err != nil {
			return nil, err
		}
		return &a, nil
	})
}

func (c *Client) Artist(ctx context.Context, id string) (*Artist, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: artist id is required", domain.ErrValidation)
	}
	return cache.GetOrLoadJSON(c.cache, ctx, "catalog:artist:"+id, c.ttl, func(ctx context.Context) (*Artist, error) {
		var a Artist
		if err := c.appGet(ctx, "/artists/"+url.PathEscape(id), nil, &a); err != nil {
			return nil, err
		}
		return &a, nil
	})
}

func (c *Client) SearchAlbums(ctx context.Context, q string, limit int) ([]Album, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query parameter q is required", domain.ErrValidation)
	}
	if limit <= 0 || limit > 50 {
		limit = DefaultSearchLimit
	}
	key := "catalog:search:" + strconv.Itoa(limit) + ":" + strings.ToLower(q)
	items, err := cache.GetOrLoadJSON(c.cache, ctx, key, c.ttl, func(ctx context.Context) (*[]Album, error) {
		var sr searchResponse
		params := url.Values{"q": {q}, "type": {"album"}, "limit": {strconv.Itoa(limit)}}
		if err := c.appGet(ctx, "/search", params, &sr); err != nil {
			return nil, err
		}
		items := sr.Albums.Items
		if items == nil {
			items = []Album{}
		}
		return &items, nil
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		return []Album{}, nil
	}
	return *items, nil
}

// ExchangeCode authorization-code 换取用户令牌
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is required", domain.ErrValidation)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.hc)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %v", domain.ErrUpstream, err)
	}
	return tok, nil
}

// Me 用用户令牌读取账号资料
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, accessToken, "/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) appGet(ctx context.Context, path string, params url.Values, out any) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	return c.get(ctx, tok, path, params, out)
}

func (c *Client) get(ctx context.Context, bearer, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", domain.ErrUpstream, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: GET %s: status %d: %s", domain.ErrUpstream, path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, path, err)
	}
	return nil
}
