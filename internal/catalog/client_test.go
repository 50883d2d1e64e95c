package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"vinyl-exchange/internal/domain"
)

// fakeCatalog 模拟 token 端点与 v1 读接口
type fakeCatalog struct {
	tokenCalls int32
}

func (f *fakeCatalog) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "client_credentials":
			atomic.AddInt32(&f.tokenCalls, 1)
			_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`))
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"user-token","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	requireBearer := func(want string, next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+want {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/v1/albums/", requireBearer("app-token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/albums/X123" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"status":404,"message":"Resource not found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(Album{
			ID:          "X123",
			Name:        "Blue Train",
			Artists:     []Artist{{ID: "art1", Name: "John Coltrane"}, {ID: "art2", Name: "Lee Morgan"}},
			ReleaseDate: "1958-01-01",
			Images:      []Image{{URL: "https://img/cover.jpg", Height: 640, Width: 640}},
		})
	}))
	mux.HandleFunc("/v1/artists/art1", requireBearer("app-token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Artist{ID: "art1", Name: "John Coltrane", Genres: []string{"jazz", "hard bop"}})
	}))
	mux.HandleFunc("/v1/search", requireBearer("app-token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "album" || q.Get("limit") != "5" {
			t.Errorf("search params = %v", q)
		}
		_, _ = w.Write([]byte(`{"albums":{"items":[{"id":"X123","name":"Blue Train"}]}}`))
	}))
	mux.HandleFunc("/v1/me", requireBearer("user-token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"sp-user","display_name":"Trane Fan","email":"fan@example.com"}`))
	}))
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeCatalog) {
	t.Helper()
	f := &fakeCatalog{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := New(Options{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "http://localhost/callback",
		TokenURL:     srv.URL + "/api/token",
		BaseURL:      srv.URL + "/v1",
	})
	return c, f
}

func TestAlbumAndArtist(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	a, err := c.Album(ctx, "X123")
	if err != nil {
		t.Fatalf("Album: %v", err)
	}
	if a.Name != "Blue Train" || a.CoverURL() != "https://img/cover.jpg" {
		t.Errorf("album = %+v", a)
	}
	if got := a.ArtistNames(); len(got) != 2 || got[0] != "John Coltrane" {
		t.Errorf("artist names = %v", got)
	}

	ar, err := c.Artist(ctx, a.Artists[0].ID)
	if err != nil {
		t.Fatalf("Artist: %v", err)
	}
	if len(ar.Genres) != 2 || ar.Genres[0] != "jazz" {
		t.Errorf("genres = %v", ar.Genres)
	}

	if n := atomic.LoadInt32(&f.tokenCalls); n != 1 {
		t.Errorf("token fetched %d times, want 1 (reused)", n)
	}
}

func TestAlbum_UpstreamErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Album(ctx, "missing"); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("404 album err = %v, want ErrUpstream", err)
	}
	if _, err := c.Album(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank id err = %v, want ErrValidation", err)
	}

	bad := New(Options{ClientID: "cid", ClientSecret: "wrong", TokenURL: c.oauth.Endpoint.TokenURL, BaseURL: c.baseURL})
	if _, err := bad.Album(ctx, "X123"); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("bad credentials err = %v, want ErrUpstream", err)
	}

	down := New(Options{Tokens: StaticToken("app-token"), BaseURL: "http://127.0.0.1:1/v1"})
	if _, err := down.Artist(ctx, "art1"); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("unreachable err = %v, want ErrUpstream", err)
	}
}

func TestSearchAlbums(t *testing.T) {
	c, _ := newTestClient(t)
	items, err := c.SearchAlbums(context.Background(), "blue train", 0)
	if err != nil {
		t.Fatalf("SearchAlbums: %v", err)
	}
	if len(items) != 1 || items[0].ID != "X123" {
		t.Errorf("items = %+v", items)
	}
	if _, err := c.SearchAlbums(context.Background(), "", 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty q err = %v", err)
	}
}

func TestExchangeCodeAndMe(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	tok, err := c.ExchangeCode(ctx, "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "user-token" || tok.RefreshToken != "refresh" {
		t.Errorf("token = %+v", tok)
	}
	p, err := c.Me(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p.ID != "sp-user" || p.Email != "fan@example.com" {
		t.Errorf("profile = %+v", p)
	}

	if _, err := c.ExchangeCode(ctx, "bad-code"); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("bad code err = %v, want ErrUpstream", err)
	}
}
