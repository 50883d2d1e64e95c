package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
	mdw "vinyl-exchange/internal/transport/http/middleware"
)

type UserHandler struct {
	svc *service.UserService
	log *zap.Logger
}

func NewUserHandler(svc *service.UserService, l *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: l}
}

func (h *UserHandler) Priority() int { return 10 }

type recordRef struct {
	RecordID string `json:"recordId"`
}

type albumRef struct {
	AlbumID string `json:"albumId"`
}

type savedOut struct {
	Message    string   `json:"message"`
	SavedItems []string `json:"savedItems"`
}

type lookingForOut struct {
	Message    string   `json:"message"`
	LookingFor []string `json:"lookingFor"`
}

type notificationsOut struct {
	Notifications []domain.Notification `json:"notifications"`
}

func (h *UserHandler) MountAPI(public, authed *gin.RouterGroup) {
	pub := ez.New(public.Group("/users"), h.log)
	ez.RegisterAction(pub, ez.Action[service.RegisterInput, *service.AuthResult]{
		Method: http.MethodPost,
		Path:   "/register",
		Binder: ez.BindJSON,
		Status: http.StatusCreated,
		Handler: func(c *gin.Context, in *service.RegisterInput) (*service.AuthResult, error) {
			return h.svc.Register(c.Request.Context(), *in)
		},
	})
	ez.RegisterAction(pub, ez.Action[service.LoginInput, *service.AuthResult]{
		Method: http.MethodPost,
		Path:   "/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *service.LoginInput) (*service.AuthResult, error) {
			return h.svc.Login(c.Request.Context(), *in)
		},
	})
	// 公共分组带 OptionalJWT，携带 token 时吊销
	ez.RegisterAction(pub, ez.Action[struct{}, messageOnly]{
		Method: http.MethodPost,
		Path:   "/logout",
		Handler: func(c *gin.Context, _ *struct{}) (messageOnly, error) {
			if err := h.svc.Logout(c.Request.Context(), mdw.ClaimsFrom(c)); err != nil {
				return messageOnly{}, err
			}
			return messageOnly{Message: "Sign out successful"}, nil
		},
	})
	ez.RegisterAction(pub, ez.Action[struct{}, *service.PublicProfile]{
		Method: http.MethodGet,
		Path:   "/:id/public",
		Handler: func(c *gin.Context, _ *struct{}) (*service.PublicProfile, error) {
			return h.svc.PublicProfile(c.Request.Context(), c.Param("id"))
		},
	})

	a := ez.New(authed.Group("/users"), h.log)
	ez.RegisterAction(a, ez.Action[struct{}, []domain.Record]{
		Method: http.MethodGet,
		Path:   "/recommendations",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.Record, error) {
			return h.svc.Recommendations(c.Request.Context(), uid(c))
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, *service.ProfileView]{
		Method: http.MethodGet,
		Path:   "/:id",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.ProfileView, error) {
			return h.svc.Profile(c.Request.Context(), c.Param("id"))
		},
	})
	ez.RegisterAction(a, ez.Action[service.UpdateProfileInput, *service.ProfileView]{
		Method: http.MethodPut,
		Path:   "/:id",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.UpdateProfileInput) (*service.ProfileView, error) {
			return h.svc.UpdateProfile(c.Request.Context(), uid(c), c.Param("id"), *in)
		},
	})
	ez.RegisterAction(a, ez.Action[struct{}, notificationsOut]{
		Method: http.MethodGet,
		Path:   "/:id/notifications",
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (notificationsOut, error) {
			ns, err := h.svc.Notifications(c.Request.Context(), uid(c), c.Param("id"))
			return notificationsOut{Notifications: ns}, err
		},
	})
	ez.RegisterAction(a, ez.Action[recordRef, savedOut]{
		Method: http.MethodPost,
		Path:   "/save",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *recordRef) (savedOut, error) {
			saved, err := h.svc.SaveRecord(c.Request.Context(), uid(c), in.RecordID)
			return savedOut{Message: "Record saved", SavedItems: saved}, err
		},
	})
	ez.RegisterAction(a, ez.Action[recordRef, savedOut]{
		Method: http.MethodPost,
		Path:   "/unsave",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *recordRef) (savedOut, error) {
			saved, err := h.svc.UnsaveRecord(c.Request.Context(), uid(c), in.RecordID)
			return savedOut{Message: "Record unsaved", SavedItems: saved}, err
		},
	})
	ez.RegisterAction(a, ez.Action[albumRef, lookingForOut]{
		Method: http.MethodPost,
		Path:   "/add-looking-for",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *albumRef) (lookingForOut, error) {
			lf, err := h.svc.AddLookingFor(c.Request.Context(), uid(c), in.AlbumID)
			return lookingForOut{Message: "Album added to Looking For list", LookingFor: lf}, err
		},
	})
	ez.RegisterAction(a, ez.Action[albumRef, lookingForOut]{
		Method: http.MethodPost,
		Path:   "/remove-looking-for",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *albumRef) (lookingForOut, error) {
			lf, err := h.svc.RemoveLookingFor(c.Request.Context(), uid(c), in.AlbumID)
			return lookingForOut{Message: "Album removed from Looking For list", LookingFor: lf}, err
		},
	})
}
