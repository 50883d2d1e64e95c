package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vinyl-exchange/internal/domain"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/transport/http/ez"
)

// AdminHandler 管理端：用户检索与记录下架，分组已校验 admin 角色
type AdminHandler struct {
	users   *service.UserService
	records *service.RecordService
	log     *zap.Logger
}

func NewAdminHandler(users *service.UserService, records *service.RecordService, l *zap.Logger) *AdminHandler {
	return &AdminHandler{users: users, records: records, log: l}
}

type userListQ struct {
	Q    string `form:"q"` // 按 email/username 模糊搜
	Page int    `form:"page"`
	Size int    `form:"size"`
}

type adminUserRow struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	TradeCount int    `json:"tradeCount"`
	CreatedAt  string `json:"createdAt"`
}

func (h *AdminHandler) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin, h.log)

	// --- GET /admin/v1/users  用户列表 ---
	ez.RegisterAction(e, ez.Action[userListQ, *service.Page[adminUserRow]]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Auth:   true,
		Roles:  []string{domain.RoleAdmin},
		Handler: func(c *gin.Context, in *userListQ) (*service.Page[adminUserRow], error) {
			p, err := h.users.ListUsers(c.Request.Context(), in.Q, in.Page, in.Size)
			if err != nil {
				return nil, err
			}
			out := &service.Page[adminUserRow]{Items: make([]adminUserRow, 0, len(p.Items)), Total: p.Total, Page: p.Page, Size: p.Size}
			for _, u := range p.Items {
				out.Items = append(out.Items, adminUserRow{
					ID:         u.ID,
					Username:   u.Username,
					Email:      u.Email,
					Role:       u.Role,
					TradeCount: u.TradeCount,
					CreatedAt:  u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				})
			}
			return out, nil
		},
	})

	// --- GET /admin/v1/records  含已成交 ---
	ez.RegisterAction(e, ez.Action[service.RecordQuery, *service.Page[domain.Record]]{
		Method: http.MethodGet,
		Path:   "/records",
		Binder: ez.BindQuery,
		Auth:   true,
		Roles:  []string{domain.RoleAdmin},
		Handler: func(c *gin.Context, in *service.RecordQuery) (*service.Page[domain.Record], error) {
			in.IncludeTraded = true
			return h.records.List(c.Request.Context(), *in)
		},
	})

	// --- DELETE /admin/v1/records/:id  下架 ---
	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "/records/:id",
		Auth:   true,
		Roles:  []string{domain.RoleAdmin},
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := c.Param("id")
			if err := h.records.Delete(c.Request.Context(), uid(c), id, true); err != nil {
				return nil, err
			}
			h.log.Info("record removed by admin", zap.String("record_id", id), zap.String("admin_id", uid(c)))
			return gin.H{"id": id}, nil
		},
	})
}
