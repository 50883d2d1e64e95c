package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"vinyl-exchange/internal/core/auth"
	resp "vinyl-exchange/internal/transport/http/response"
)

// 上下文键
const (
	KeyUserID = "userId"
	KeyRole   = "role"
	KeyClaims = "claims"
)

// AuthJWT 缺少 token -> 403；无效、过期或已登出 -> 401
func AuthJWT(j *auth.JWTer, rv auth.Revoker, requireRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			resp.Abort(c, resp.CodeForbidden, "Access denied, no token provided")
			return
		}
		claims, err := j.Parse(raw)
		if err != nil {
			resp.Abort(c, resp.CodeUnauthorized, "Invalid token")
			return
		}
		if rv != nil {
			// redis 故障时放行，仍以签名和过期时间为准
			if revoked, err := rv.IsRevoked(c.Request.Context(), claims.ID); err == nil && revoked {
				resp.Abort(c, resp.CodeUnauthorized, "Invalid token")
				return
			}
		}
		if requireRole != "" && claims.Role != requireRole {
			resp.Abort(c, resp.CodeForbidden, "forbidden")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWT 有合法 token 就写入上下文，否则按匿名继续
func OptionalJWT(j *auth.JWTer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c); ok {
			if claims, err := j.Parse(raw); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// ClaimsFrom 取出 AuthJWT/OptionalJWT 写入的 claims
func ClaimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(KeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func bearer(c *gin.Context) (string, bool) {
	ah := c.GetHeader("Authorization")
	if !strings.HasPrefix(ah, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	return tok, tok != ""
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(KeyClaims, claims)
	c.Set(KeyUserID, claims.UserID)
	c.Set(KeyRole, claims.Role)
}
