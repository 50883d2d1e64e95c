package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/core/auth"
	"vinyl-exchange/internal/domain"
	"vinyl-exchange/pkg/utils"
)

const (
	msgUsernameTaken      = "Username is already taken"
	msgEmailTaken         = "Email is already registered"
	msgInvalidCredentials = "Invalid username/email or password"
)

var validate = validator.New()

type UserService struct {
	store      domain.Store
	jwt        *auth.JWTer
	revoker    auth.Revoker
	accounts   CatalogAccounts
	log        *zap.Logger
	bcryptCost int
}

func NewUserService(store domain.Store, jwter *auth.JWTer, l *zap.Logger) *UserService {
	return &UserService{store: store, jwt: jwter, log: l}
}

// WithRevoker 启用登出吊销
func (s *UserService) WithRevoker(r auth.Revoker) *UserService { s.revoker = r; return s }

// WithAccounts 启用目录账号登录
func (s *UserService) WithAccounts(a CatalogAccounts) *UserService { s.accounts = a; return s }

// WithBcryptCost 测试里调低 cost
func (s *UserService) WithBcryptCost(cost int) *UserService { s.bcryptCost = cost; return s }

type RegisterInput struct {
	Username        string            `json:"username"`
	Email           string            `json:"email"`
	Password        string            `json:"password"`
	ConfirmPassword string            `json:"confirmPassword"`
	Country         string            `json:"country"`
	About           string            `json:"about"`
	FavoriteArtists domain.StringList `json:"favoriteArtists"`
	FavoriteGenres  domain.StringList `json:"favoriteGenres"`
	LookingFor      domain.StringList `json:"lookingFor"`
}

type LoginInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// UpdateProfileInput 只允许这些字段，nil 表示不修改
type UpdateProfileInput struct {
	Username        *string            `json:"username"`
	Email           *string            `json:"email"`
	Country         *string            `json:"country"`
	About           *string            `json:"about"`
	FavoriteArtists *domain.StringList `json:"favoriteArtists"`
	FavoriteGenres  *domain.StringList `json:"favoriteGenres"`
}

type AuthResult struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *ProfileView `json:"user"`
}

type FeedbackView struct {
	ID             uint      `json:"id"`
	FromUser       UserRef   `json:"fromUser"`
	ConversationID string    `json:"conversationId"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	Date           time.Time `json:"date"`
}

type ProfileView struct {
	ID                    string         `json:"id"`
	Username              string         `json:"username"`
	Email                 string         `json:"email"`
	Country               string         `json:"country"`
	About                 string         `json:"about"`
	FavoriteArtists       []string       `json:"favoriteArtists"`
	FavoriteGenres        []string       `json:"favoriteGenres"`
	LookingFor            []string       `json:"lookingFor"`
	SavedItems            []string       `json:"savedItems"`
	RecordsListedForTrade any            `json:"recordsListedForTrade"` // 登录时为 id 列表，资料页展开为记录
	TradeCount            int            `json:"tradeCount"`
	Feedback              []FeedbackView `json:"feedback"`
}

type PublicProfile struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	TradeCount int            `json:"tradeCount"`
	Feedback   []FeedbackView `json:"feedback"`
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, validation("Username, email and password are required")
	}
	if err := validate.Var(in.Email, "email"); err != nil {
		return nil, validation("Email is invalid")
	}
	if in.Password != in.ConfirmPassword {
		return nil, validation("Passwords do not match")
	}

	users := s.store.Users()
	if _, err := users.FindByUsername(ctx, in.Username); err == nil {
		return nil, wrap(domain.ErrDuplicate, msgUsernameTaken)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := users.FindByEmail(ctx, in.Email); err == nil {
		return nil, wrap(domain.ErrDuplicate, msgEmailTaken)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:              utils.NewID(),
		Username:        in.Username,
		Email:           in.Email,
		PasswordHash:    hash,
		Role:            domain.RoleUser,
		Country:         strings.TrimSpace(in.Country),
		About:           in.About,
		FavoriteArtists: orEmpty(in.FavoriteArtists),
		FavoriteGenres:  orEmpty(in.FavoriteGenres),
		SavedItems:      []string{},
		ListedRecords:   []string{},
	}
	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			// 并发注册时由唯一索引兜底
			return duplicateField(err)
		}
		for _, albumID := range in.LookingFor {
			if err := tx.Users().AddLookingFor(ctx, u.ID, albumID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return s.authResult(ctx, "User registered successfully", u)
}

// duplicateField 唯一索引冲突时指明是哪个字段
func duplicateField(err error) error {
	if !errors.Is(err, domain.ErrDuplicate) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "username"):
		return wrap(domain.ErrDuplicate, msgUsernameTaken)
	case strings.Contains(msg, "email"):
		return wrap(domain.ErrDuplicate, msgEmailTaken)
	}
	return err
}

// Login identifier 含 @ 按邮箱查，否则按用户名；用户不存在与密码错误返回同一错误
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	id := strings.TrimSpace(in.Identifier)
	if id == "" || in.Password == "" {
		return nil, validation("Username/email and password are required")
	}
	var (
		u   *domain.User
		err error
	)
	if strings.Contains(id, "@") {
		u, err = s.store.Users().FindByEmail(ctx, strings.ToLower(id))
	} else {
		u, err = s.store.Users().FindByUsername(ctx, id)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, validation(msgInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(in.Password, u.PasswordHash) {
		return nil, validation(msgInvalidCredentials)
	}
	return s.authResult(ctx, "Login successful", u)
}

// Logout 配置了吊销器时让 token 立即失效，否则无状态成功
func (s *UserService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || s.revoker == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.log.Warn("revoke token failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return err
	}
	return nil
}

func (s *UserService) authResult(ctx context.Context, msg string, u *domain.User) (*AuthResult, error) {
	tok, _, err := s.jwt.Issue(u.ID, u.Username, roleOf(u))
	if err != nil {
		return nil, err
	}
	view, err := s.profile(ctx, s.store, u, false)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Message: msg, Token: tok, User: view}, nil
}

func roleOf(u *domain.User) string {
	if u.Role == "" {
		return domain.RoleUser
	}
	return u.Role
}

// Profile 完整资料；在售记录按列表顺序展开
func (s *UserService) Profile(ctx context.Context, userID string) (*ProfileView, error) {
	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User")
	}
	return s.profile(ctx, s.store, u, true)
}

func (s *UserService) profile(ctx context.Context, st domain.Store, u *domain.User, populate bool) (*ProfileView, error) {
	lookingFor, err := st.Users().LookingFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	feedback, err := s.feedback(ctx, st, u.ID)
	if err != nil {
		return nil, err
	}
	v := &ProfileView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Country:         u.Country,
		About:           u.About,
		FavoriteArtists: orEmpty(u.FavoriteArtists),
		FavoriteGenres:  orEmpty(u.FavoriteGenres),
		LookingFor:      lookingFor,
		SavedItems:      orEmpty(u.SavedItems),
		TradeCount:      u.TradeCount,
		Feedback:        feedback,
	}
	if !populate {
		v.RecordsListedForTrade = orEmpty(u.ListedRecords)
		return v, nil
	}
	recs, err := st.Records().FindByIDs(ctx, u.ListedRecords)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	listed := make([]domain.Record, 0, len(u.ListedRecords))
	for _, id := range u.ListedRecords {
		if r, ok := byID[id]; ok {
			listed = append(listed, r)
		}
	}
	v.RecordsListedForTrade = listed
	return v, nil
}

func (s *UserService) feedback(ctx context.Context, st domain.Store, userID string) ([]FeedbackView, error) {
	fs, err := st.Users().FeedbackFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]FeedbackView, 0, len(fs))
	for _, f := range fs {
		ref := UserRef{ID: f.FromUserID}
		if f.FromUser != nil {
			ref.Username = f.FromUser.Username
		}
		out = append(out, FeedbackView{
			ID:             f.ID,
			FromUser:       ref,
			ConversationID: f.ConversationID,
			Rating:         f.Rating,
			Comment:        f.Comment,
			Date:           f.Date,
		})
	}
	return out, nil
}

func (s *UserService) PublicProfile(ctx context.Context, userID string) (*PublicProfile, error) {
	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User")
	}
	fb, err := s.feedback(ctx, s.store, u.ID)
	if err != nil {
		return nil, err
	}
	return &PublicProfile{ID: u.ID, Username: u.Username, TradeCount: u.TradeCount, Feedback: fb}, nil
}

// UpdateProfile 只能改自己
func (s *UserService) UpdateProfile(ctx context.Context, actorID, targetID string, in UpdateProfileInput) (*ProfileView, error) {
	if actorID != targetID {
		return nil, wrap(domain.ErrForbidden, "Unauthorized")
	}
	u, err := s.store.Users().FindByID(ctx, targetID)
	if err != nil {
		return nil, notFound(err, "User")
	}

	var fields []string
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" {
			return nil, validation("Username cannot be empty")
		}
		u.Username = name
		fields = append(fields, "Username")
	}
	if in.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*in.Email))
		if err := validate.Var(email, "required,email"); err != nil {
			return nil, validation("Email is invalid")
		}
		u.Email = email
		fields = append(fields, "Email")
	}
	if in.Country != nil {
		u.Country = strings.TrimSpace(*in.Country)
		fields = append(fields, "Country")
	}
	if in.About != nil {
		u.About = *in.About
		fields = append(fields, "About")
	}
	if in.FavoriteArtists != nil {
		u.FavoriteArtists = orEmpty(*in.FavoriteArtists)
		fields = append(fields, "FavoriteArtists")
	}
	if in.FavoriteGenres != nil {
		u.FavoriteGenres = orEmpty(*in.FavoriteGenres)
		fields = append(fields, "FavoriteGenres")
	}
	if len(fields) > 0 {
		if err := s.store.Users().UpdateFields(ctx, u, fields...); err != nil {
			return nil, duplicateField(err)
		}
	}
	return s.profile(ctx, s.store, u, true)
}

// SaveRecord 收藏（集合语义）
func (s *UserService) SaveRecord(ctx context.Context, userID, recordID string) ([]string, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, validation("recordId is required")
	}
	if _, err := s.store.Records().FindByID(ctx, recordID); err != nil {
		return nil, notFound(err, "Record")
	}
	return s.updateSaved(ctx, userID, func(list []string) ([]string, bool) { return addUnique(list, recordID) })
}

func (s *UserService) UnsaveRecord(ctx context.Context, userID, recordID string) ([]string, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, validation("recordId is required")
	}
	return s.updateSaved(ctx, userID, func(list []string) ([]string, bool) { return removeString(list, recordID) })
}

func (s *UserService) updateSaved(ctx context.Context, userID string, mutate func([]string) ([]string, bool)) ([]string, error) {
	var saved []string
	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		u, err := tx.Users().FindByIDForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "User")
		}
		list, changed := mutate(orEmpty(u.SavedItems))
		saved = list
		if !changed {
			return nil
		}
		u.SavedItems = list
		return tx.Users().UpdateFields(ctx, u, "SavedItems")
	})
	return saved, err
}

func (s *UserService) AddLookingFor(ctx context.Context, userID, albumID string) ([]string, error) {
	albumID = strings.TrimSpace(albumID)
	if albumID == "" {
		return nil, validation("albumId is required")
	}
	if _, err := s.store.Users().FindByID(ctx, userID); err != nil {
		return nil, notFound(err, "User")
	}
	if err := s.store.Users().AddLookingFor(ctx, userID, albumID); err != nil {
		return nil, err
	}
	return s.store.Users().LookingFor(ctx, userID)
}

func (s *UserService) RemoveLookingFor(ctx context.Context, userID, albumID string) ([]string, error) {
	albumID = strings.TrimSpace(albumID)
	if albumID == "" {
		return nil, validation("albumId is required")
	}
	if err := s.store.Users().RemoveLookingFor(ctx, userID, albumID); err != nil {
		return nil, err
	}
	return s.store.Users().LookingFor(ctx, userID)
}

// Notifications 只能看自己的，最新在前
func (s *UserService) Notifications(ctx context.Context, actorID, targetID string) ([]domain.Notification, error) {
	if actorID != targetID {
		return nil, wrap(domain.ErrForbidden, "Unauthorized")
	}
	if _, err := s.store.Users().FindByID(ctx, targetID); err != nil {
		return nil, notFound(err, "User")
	}
	return s.store.Users().Notifications(ctx, targetID)
}

// Recommendations 未成交、非本人、流派或艺人与偏好有交集（忽略大小写）
func (s *UserService) Recommendations(ctx context.Context, userID string) ([]domain.Record, error) {
	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User")
	}
	genres := lowerSet(u.FavoriteGenres)
	artists := lowerSet(u.FavoriteArtists)
	out := []domain.Record{}
	if len(genres) == 0 && len(artists) == 0 {
		return out, nil
	}
	recs, _, err := s.store.Records().List(ctx, domain.RecordFilter{ExcludeOwner: userID})
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if intersects(genres, r.Genres) || intersects(artists, r.Artist) {
			out = append(out, r)
		}
	}
	return out, nil
}

func intersects(set map[string]struct{}, vals []string) bool {
	for _, v := range vals {
		if _, ok := set[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

// CatalogLogin 目录账号登录：按 catalog id 找人，否则按邮箱绑定，否则新建
func (s *UserService) CatalogLogin(ctx context.Context, code string) (*AuthResult, error) {
	if s.accounts == nil {
		return nil, wrap(domain.ErrUpstream, "catalog login is not configured")
	}
	tok, err := s.accounts.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	p, err := s.accounts.Me(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, wrap(domain.ErrUpstream, "catalog profile has no id")
	}

	var u *domain.User
	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		users := tx.Users()
		found, err := users.FindBySpotifyID(ctx, p.ID)
		if err == nil {
			u = found
			u.SpotifyAccessToken, u.SpotifyRefreshToken = tok.AccessToken, tok.RefreshToken
			return users.UpdateFields(ctx, u, "SpotifyAccessToken", "SpotifyRefreshToken")
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		email := strings.ToLower(strings.TrimSpace(p.Email))
		if email != "" {
			found, err = users.FindByEmail(ctx, email)
			if err == nil {
				u = found
				u.SpotifyID = &p.ID
				u.SpotifyAccessToken, u.SpotifyRefreshToken = tok.AccessToken, tok.RefreshToken
				return users.UpdateFields(ctx, u, "SpotifyID", "SpotifyAccessToken", "SpotifyRefreshToken")
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		} else {
			email = p.ID + "@users.catalog.invalid"
		}

		name, err := freeUsername(ctx, users, usernameCandidates(p))
		if err != nil {
			return err
		}
		u = &domain.User{
			ID:                  utils.NewID(),
			Username:            name,
			Email:               email,
			Role:                domain.RoleUser,
			FavoriteArtists:     []string{},
			FavoriteGenres:      []string{},
			SavedItems:          []string{},
			ListedRecords:       []string{},
			SpotifyID:           &p.ID,
			SpotifyAccessToken:  tok.AccessToken,
			SpotifyRefreshToken: tok.RefreshToken,
		}
		return users.Create(ctx, u)
	})
	if err != nil {
		return nil, duplicateField(err)
	}
	s.log.Info("catalog login", zap.String("user_id", u.ID), zap.String("catalog_id", p.ID))
	return s.authResult(ctx, "Login successful", u)
}

// usernameCandidates 显示名被占用时依次追加 catalog id、随机后缀
func usernameCandidates(p *catalog.Profile) []string {
	base := strings.TrimSpace(p.DisplayName)
	if base == "" {
		base = p.ID
	}
	out := []string{base}
	if base != p.ID {
		out = append(out, base+"_"+p.ID)
	}
	return append(out, base+"_"+utils.NewID()[:8])
}

func freeUsername(ctx context.Context, users domain.UserRepository, candidates []string) (string, error) {
	for _, name := range candidates {
		_, err := users.FindByUsername(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", wrap(domain.ErrDuplicate, msgUsernameTaken)
}

// ListUsers 管理端分页搜索
func (s *UserService) ListUsers(ctx context.Context, q string, page, size int) (*Page[domain.User], error) {
	page, size = normalizePage(page, size)
	users, total, err := s.store.Users().List(ctx, q, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return &Page[domain.User]{Items: users, Total: total, Page: page, Size: size}, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
