package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/core/auth"
	"vinyl-exchange/internal/core/database"
	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/repo"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/storage"
	"vinyl-exchange/internal/transport/http/handler"
)

type fakeCatalog struct{}

func (fakeCatalog) Album(_ context.Context, id string) (*catalog.Album, error) {
	if id != "X123" {
		return nil, fmt.Errorf("%w: catalog returned 404", domain.ErrUpstream)
	}
	return &catalog.Album{
		ID:      "X123",
		Name:    "Kind of Blue",
		Artists: []catalog.Artist{{ID: "miles", Name: "Miles Davis"}},
		Images:  []catalog.Image{{URL: "https://img/kob.jpg"}},
	}, nil
}

func (fakeCatalog) Artist(context.Context, string) (*catalog.Artist, error) {
	return &catalog.Artist{ID: "miles", Name: "Miles Davis", Genres: []string{"jazz"}}, nil
}

func (fakeCatalog) SearchAlbums(_ context.Context, q string, _ int) ([]catalog.Album, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: query parameter q is required", domain.ErrValidation)
	}
	return []catalog.Album{{ID: "X123", Name: "Kind of Blue"}}, nil
}

type revokedSet map[string]time.Time

func (r revokedSet) Revoke(_ context.Context, jti string, until time.Time) error {
	r[jti] = until
	return nil
}

func (r revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := r[jti]
	return ok, nil
}

type apiEnv struct {
	t     *testing.T
	api   *gin.Engine
	admin *gin.Engine
	jwt   *auth.JWTer
	store *repo.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := filepath.Join(t.TempDir(), "api.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := database.NewGorm(database.Opts{Driver: "sqlite", DSN: dsn, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	l := zap.NewNop()
	store := repo.NewStore(db)
	jwter := &auth.JWTer{Secret: []byte("test"), Issuer: "vinyl-exchange", TTL: time.Hour}
	rv := revokedSet{}
	cat := fakeCatalog{}
	signer, err := storage.New(storage.Options{Region: "us-east-1", Bucket: "vinyl", AccessKey: "ak", SecretKey: "sk", UseSSL: true})
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	users := service.NewUserService(store, jwter, l).WithRevoker(rv).WithBcryptCost(4)
	records := service.NewRecordService(store, cat, service.NewNotifier(store.Users(), l), l)
	mods := NewRegistry(
		handler.NewUserHandler(users, l),
		handler.NewRecordHandler(records, l),
		handler.NewCatalogHandler(cat, users, l),
		handler.NewMessageHandler(service.NewMessageService(store, l), l),
		handler.NewTradeHandler(service.NewTradeService(store, l), l),
		handler.NewUploadHandler(signer, l),
		handler.NewAdminHandler(users, records, l),
	)
	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	deps := Deps{
		Log:     l,
		JWT:     jwter,
		Revoker: rv,
		Modules: mods,
		Checks:  map[string]HealthCheck{"db": ping},
	}
	return &apiEnv{t: t, api: NewAPIEngine(deps), admin: NewAdminEngine(deps), jwt: jwter, store: store}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *apiEnv) call(h http.Handler, method, path, token string, body any) (int, envelope) {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func (e *apiEnv) do(method, path, token string, body any) (int, envelope) {
	return e.call(e.api, method, path, token, body)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Data, err)
	}
	return v
}

type authOut struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (e *apiEnv) register(name string) authOut {
	e.t.Helper()
	code, env := e.do(http.MethodPost, "/api/users/register", "", gin.H{
		"username": name, "email": name + "@example.com",
		"password": "pw", "confirmPassword": "pw",
		"favoriteGenres": "jazz, blues",
	})
	if code != http.StatusCreated {
		e.t.Fatalf("register %s: %d %+v", name, code, env)
	}
	return decode[authOut](e.t, env)
}

func TestAuthEnvelope(t *testing.T) {
	e := newAPIEnv(t)

	code, env := e.do(http.MethodGet, "/api/messages/conversations", "", nil)
	if code != http.StatusForbidden || env.Code != 403 || env.Msg != "Access denied, no token provided" {
		t.Errorf("no token: %d %+v", code, env)
	}
	code, env = e.do(http.MethodGet, "/api/messages/conversations", "garbage", nil)
	if code != http.StatusUnauthorized || env.Msg != "Invalid token" {
		t.Errorf("bad token: %d %+v", code, env)
	}

	a := e.register("alice")
	code, env = e.do(http.MethodPost, "/api/users/register", "", gin.H{
		"username": "alice", "email": "x@example.com", "password": "pw", "confirmPassword": "pw",
	})
	if code != 400 || env.Msg != "Username is already taken" {
		t.Errorf("duplicate: %d %+v", code, env)
	}

	code, env = e.do(http.MethodPost, "/api/users/login", "", gin.H{"identifier": "alice", "password": "nope"})
	if code != 400 || env.Msg != "Invalid username/email or password" {
		t.Errorf("bad login: %d %+v", code, env)
	}
	code, env = e.do(http.MethodPost, "/api/users/login", "", gin.H{"identifier": "alice@example.com", "password": "pw"})
	if code != 200 {
		t.Fatalf("login: %d %+v", code, env)
	}
	login := decode[authOut](t, env)
	claims, err := e.jwt.Parse(login.Token)
	if err != nil || claims.UserID != a.User.ID {
		t.Fatalf("claims = %+v, %v", claims, err)
	}

	// 登出后 token 失效
	if code, _ := e.do(http.MethodPost, "/api/users/logout", login.Token, nil); code != 200 {
		t.Fatalf("logout = %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/users/"+a.User.ID, login.Token, nil); code != http.StatusUnauthorized {
		t.Errorf("revoked token = %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/users/"+a.User.ID, a.Token, nil); code != 200 {
		t.Errorf("other token = %d", code)
	}
}

func TestTradeFlowOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	seller := e.register("seller")
	buyer := e.register("buyer")
	if code, _ := e.do(http.MethodPost, "/api/users/add-looking-for", buyer.Token, gin.H{"albumId": "X123"}); code != 200 {
		t.Fatalf("add-looking-for = %d", code)
	}

	code, env := e.do(http.MethodPost, "/api/records", seller.Token, gin.H{
		"albumId": "X123", "condition": "Used", "shipping": "US Shipping",
	})
	if code != http.StatusCreated {
		t.Fatalf("create record: %d %+v", code, env)
	}
	rec := decode[domain.Record](t, env)
	if rec.Title != "Kind of Blue" || rec.Condition != "Used" || rec.Genres[0] != "jazz" {
		t.Errorf("record = %+v", rec)
	}

	code, env = e.do(http.MethodGet, "/api/users/"+buyer.User.ID+"/notifications", buyer.Token, nil)
	notes := decode[struct {
		Notifications []domain.Notification `json:"notifications"`
	}](t, env)
	if code != 200 || len(notes.Notifications) != 1 || notes.Notifications[0].RecordID != rec.ID {
		t.Errorf("notifications: %d %+v", code, notes)
	}
	if code, _ := e.do(http.MethodGet, "/api/users/"+seller.User.ID+"/notifications", buyer.Token, nil); code != 403 {
		t.Errorf("foreign notifications = %d", code)
	}

	code, env = e.do(http.MethodGet, "/api/records?genre=jazz", "", nil)
	page := decode[service.Page[domain.Record]](t, env)
	if code != 200 || page.Total != 1 {
		t.Errorf("browse: %d %+v", code, page)
	}

	code, env = e.do(http.MethodPost, "/api/messages/start", buyer.Token, gin.H{"recordId": rec.ID})
	if code != 200 {
		t.Fatalf("start: %d %+v", code, env)
	}
	conv := decode[service.ConversationView](t, env)

	if code, env := e.do(http.MethodPost, "/api/messages/send", buyer.Token, gin.H{"conversationId": conv.ID, "text": "hi"}); code != 200 {
		t.Fatalf("send: %d %+v", code, env)
	}
	code, env = e.do(http.MethodGet, "/api/messages/unread-count", seller.Token, nil)
	if counts := decode[service.UnreadCounts](t, env); code != 200 || counts.UnreadMessages != 1 {
		t.Errorf("unread: %d %+v", code, counts)
	}
	if code, _ := e.do(http.MethodPost, "/api/messages/conversation/"+conv.ID+"/mark-read", seller.Token, nil); code != 200 {
		t.Errorf("mark-read = %d", code)
	}

	trade := gin.H{"conversationId": conv.ID}
	if code, env := e.do(http.MethodPost, "/api/trades/confirm", seller.Token, trade); code != 400 || env.Msg != "Trade completion not initiated" {
		t.Errorf("confirm before initiate: %d %+v", code, env)
	}
	if code, _ := e.do(http.MethodPost, "/api/trades/initiate", buyer.Token, trade); code != 200 {
		t.Fatalf("initiate = %d", code)
	}
	if code, env := e.do(http.MethodPost, "/api/trades/confirm", buyer.Token, trade); code != 403 {
		t.Errorf("self confirm: %d %+v", code, env)
	}
	code, env = e.do(http.MethodPost, "/api/trades/confirm", seller.Token, trade)
	if code != 200 {
		t.Fatalf("confirm: %d %+v", code, env)
	}
	if res := decode[service.TradeResult](t, env); res.TradeStatus.State != "COMPLETED" {
		t.Errorf("status = %+v", res.TradeStatus)
	}
	if code, env := e.do(http.MethodPost, "/api/trades/confirm", seller.Token, trade); code != 400 || env.Msg != "Trade already completed" {
		t.Errorf("second confirm: %d %+v", code, env)
	}

	fb := gin.H{"conversationId": conv.ID, "rating": 5, "comment": "great"}
	if code, _ := e.do(http.MethodPost, "/api/trades/feedback", buyer.Token, fb); code != 200 {
		t.Errorf("feedback = %d", code)
	}
	if code, env := e.do(http.MethodPost, "/api/trades/feedback", buyer.Token, fb); code != 400 || env.Msg != "Feedback already provided" {
		t.Errorf("second feedback: %d %+v", code, env)
	}

	code, env = e.do(http.MethodGet, "/api/users/"+seller.User.ID+"/public", "", nil)
	pub := decode[service.PublicProfile](t, env)
	if code != 200 || pub.TradeCount != 1 || len(pub.Feedback) != 1 || pub.Feedback[0].FromUser.Username != "buyer" {
		t.Errorf("public profile: %d %+v", code, pub)
	}
}

func TestRecordsAndUploads(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.register("owner")
	other := e.register("other")

	code, env := e.do(http.MethodPost, "/api/records", owner.Token, gin.H{"title": "Plain", "condition": "Mint"})
	if code != 400 || env.Code != 400 {
		t.Errorf("invalid enum: %d %+v", code, env)
	}
	code, env = e.do(http.MethodPost, "/api/records", owner.Token, gin.H{"albumId": "MISSING"})
	if code != 500 || env.Msg != "Server error" {
		t.Errorf("catalog failure: %d %+v", code, env)
	}

	_, env = e.do(http.MethodPost, "/api/records", owner.Token, gin.H{"title": "Plain"})
	rec := decode[domain.Record](t, env)
	if rec.Condition != "New" || rec.Shipping != "No Shipping" {
		t.Errorf("defaults = %+v", rec)
	}

	if code, _ := e.do(http.MethodGet, "/api/records/missing", owner.Token, nil); code != 404 {
		t.Errorf("missing record = %d", code)
	}
	if code, _ := e.do(http.MethodPost, "/api/records/"+rec.ID+"/add-image", other.Token, gin.H{"imageUrl": "https://cdn/x.jpg"}); code != 403 {
		t.Errorf("foreign add-image = %d", code)
	}

	code, env = e.do(http.MethodGet, "/api/s3/generate-upload-url?fileName=cover.jpg&fileType=image/jpeg&albumId=X123", owner.Token, nil)
	if code != 200 {
		t.Fatalf("upload url: %d %+v", code, env)
	}
	up := decode[storage.Upload](t, env)
	if up.UploadURL == "" || up.ImageURL == "" {
		t.Errorf("upload = %+v", up)
	}
	if code, env := e.do(http.MethodGet, "/api/s3/generate-upload-url?fileName=cover.jpg", owner.Token, nil); code != 400 || env.Msg != "Missing required query parameters" {
		t.Errorf("missing params: %d %+v", code, env)
	}

	if code, _ := e.do(http.MethodPost, "/api/records/"+rec.ID+"/add-image", owner.Token, gin.H{"imageUrl": up.ImageURL}); code != 200 {
		t.Errorf("add-image = %d", code)
	}
	if code, _ := e.do(http.MethodDelete, "/api/records/delete/"+rec.ID, other.Token, nil); code != 403 {
		t.Errorf("foreign delete = %d", code)
	}
	if code, _ := e.do(http.MethodDelete, "/api/records/delete/"+rec.ID, owner.Token, nil); code != 200 {
		t.Errorf("delete = %d", code)
	}
}

func TestCatalogProxy(t *testing.T) {
	e := newAPIEnv(t)
	code, env := e.do(http.MethodGet, "/api/spotify-equivalent/search?q=blue", "", nil)
	if albums := decode[[]catalog.Album](t, env); code != 200 || len(albums) != 1 {
		t.Errorf("search: %d %+v", code, albums)
	}
	if code, _ := e.do(http.MethodGet, "/api/spotify-equivalent/search", "", nil); code != 400 {
		t.Errorf("empty search = %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/spotify-equivalent/album/X123", "", nil); code != 200 {
		t.Errorf("album = %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/spotify-equivalent/artist/miles", "", nil); code != 200 {
		t.Errorf("artist = %d", code)
	}
}

func TestAdminEngine(t *testing.T) {
	e := newAPIEnv(t)
	u := e.register("plain")
	if code, _ := e.call(e.admin, http.MethodGet, "/admin/v1/users", u.Token, nil); code != 403 {
		t.Errorf("non-admin = %d", code)
	}

	admin, _, err := e.jwt.Issue("admin-1", "root", domain.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	code, env := e.call(e.admin, http.MethodGet, "/admin/v1/users?q=plain", admin, nil)
	if code != 200 {
		t.Fatalf("admin users: %d %+v", code, env)
	}
	if page := decode[service.Page[map[string]any]](t, env); page.Total != 1 {
		t.Errorf("page = %+v", page)
	}

	_, env = e.do(http.MethodPost, "/api/records", u.Token, gin.H{"title": "Take down"})
	rec := decode[domain.Record](t, env)
	if code, _ := e.call(e.admin, http.MethodDelete, "/admin/v1/records/"+rec.ID, admin, nil); code != 200 {
		t.Errorf("admin delete = %d", code)
	}
	if code, _ := e.call(e.admin, http.MethodDelete, "/admin/v1/records/"+rec.ID, admin, nil); code != 404 {
		t.Errorf("admin delete again = %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newAPIEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.api.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	e.api.ServeHTTP(w, req)
	if w.Code != 200 || !bytes.Contains(w.Body.Bytes(), []byte("http_requests_total")) {
		t.Errorf("metrics = %d", w.Code)
	}
}
