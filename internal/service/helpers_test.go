package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/core/auth"
	"vinyl-exchange/internal/core/database"
	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/repo"
)

type fakeCatalog struct {
	albums  map[string]*catalog.Album
	artists map[string]*catalog.Artist
	err     error
	calls   int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		albums: map[string]*catalog.Album{
			"X123": {
				ID:          "X123",
				Name:        "Kind of Blue",
				Artists:     []catalog.Artist{{ID: "miles", Name: "Miles Davis"}, {ID: "trane", Name: "John Coltrane"}},
				Genres:      []string{"album-genre-ignored"},
				ReleaseDate: "1959-08-17",
				Images:      []catalog.Image{{URL: "https://img/kob.jpg"}},
			},
			"NOART": {ID: "NOART", Name: "Nobody"},
		},
		artists: map[string]*catalog.Artist{
			"miles": {ID: "miles", Name: "Miles Davis", Genres: []string{"jazz", "cool jazz"}},
		},
	}
}

func (f *fakeCatalog) Album(_ context.Context, id string) (*catalog.Album, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.albums[id]
	if !ok {
		return nil, errors.Join(domain.ErrUpstream, errors.New("status 404"))
	}
	return a, nil
}

func (f *fakeCatalog) Artist(_ context.Context, id string) (*catalog.Artist, error) {
	f.calls++
	a, ok := f.artists[id]
	if !ok {
		return nil, errors.Join(domain.ErrUpstream, errors.New("status 404"))
	}
	return a, nil
}

type fakeAccounts struct {
	profile catalog.Profile
}

func (f *fakeAccounts) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if code != "ok" {
		return nil, errors.Join(domain.ErrUpstream, errors.New("invalid_grant"))
	}
	return &oauth2.Token{AccessToken: "user-at", RefreshToken: "user-rt"}, nil
}

func (f *fakeAccounts) Me(context.Context, string) (*catalog.Profile, error) {
	p := f.profile
	return &p, nil
}

type env struct {
	store    *repo.Store
	jwt      *auth.JWTer
	catalog  *fakeCatalog
	users    *UserService
	records  *RecordService
	messages *MessageService
	trades   *TradeService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
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
	cat := newFakeCatalog()
	return &env{
		store:    store,
		jwt:      jwter,
		catalog:  cat,
		users:    NewUserService(store, jwter, l).WithBcryptCost(4),
		records:  NewRecordService(store, cat, NewNotifier(store.Users(), l), l),
		messages: NewMessageService(store, l),
		trades:   NewTradeService(store, l),
	}
}

func (e *env) register(t *testing.T, name string) string {
	t.Helper()
	res, err := e.users.Register(context.Background(), RegisterInput{
		Username:        name,
		Email:           name + "@example.com",
		Password:        "pw-" + name,
		ConfirmPassword: "pw-" + name,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return res.User.ID
}

func (e *env) list(t *testing.T, ownerID string, in CreateRecordInput) *domain.Record {
	t.Helper()
	if in.Shipping == nil {
		in.Shipping = ptr(domain.ShippingLocalPickup)
	}
	rec, err := e.records.Create(context.Background(), ownerID, in)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func (e *env) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := e.store.Users().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find user %s: %v", id, err)
	}
	return u
}

func ptr[T any](v T) *T { return &v }

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}
