package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	UserIDKey               = "userID"
	UserRoleKey             = "userRole"
	UsernameKey             = "username"
)

// TokenValidator là phần của AuthService mà middleware cần.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Token, jwt.MapClaims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	log       zerolog.Logger
}

func NewAuthMiddleware(validator TokenValidator, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		log:       log.With().Str("component", "auth_middleware").Logger(),
	}
}

// Authenticate là middleware để xác thực JWT
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Thiếu authorization header"})
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Định dạng authorization header không hợp lệ"})
			return
		}

		_, claims, err := m.validator.ValidateToken(fields[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token không hợp lệ hoặc đã hết hạn", "details": err.Error()})
			return
		}

		userIDStr, okUserID := claims["sub"].(string)
		userRole, okUserRole := claims["role"].(string)
		username, okUsername := claims["username"].(string)
		if !okUserID || !okUserRole || !okUsername {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Thông tin người dùng trong token không hợp lệ"})
			return
		}
		userID, err := strconv.Atoi(userIDStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Thông tin người dùng trong token không hợp lệ"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, userRole)
		c.Set(UsernameKey, username)
		c.Next()
	}
}

// AuthorizeRole là middleware để kiểm tra vai trò
func (m *AuthMiddleware) AuthorizeRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(UserRoleKey)
		if userRole == "" {
			m.log.Warn().Str("path", c.FullPath()).Msg("Không tìm thấy vai trò người dùng trong context (cần Authenticate() trước)")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Không có quyền truy cập (thiếu vai trò)"})
			return
		}

		for _, reqRole := range requiredRoles {
			if userRole == reqRole {
				c.Next()
				return
			}
		}

		m.log.Warn().Str("role", userRole).Strs("required", requiredRoles).Str("path", c.FullPath()).
			Msg("Người dùng không có quyền truy cập")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Không có quyền truy cập (vai trò không phù hợp)"})
	}
}

// CurrentUserID trả về id người dùng đã xác thực.
func CurrentUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

// CurrentActor dựng domain.Actor từ context của request.
func CurrentActor(c *gin.Context) domain.Actor {
	actor := domain.Actor{Username: c.GetString(UsernameKey)}
	if id, ok := CurrentUserID(c); ok {
		actor.UserID = null.IntFrom(int64(id))
	}
	return actor
}
