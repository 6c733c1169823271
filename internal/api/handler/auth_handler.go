package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// Authenticator là phần của AuthService mà AuthHandler dùng.
type Authenticator interface {
	Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error)
	Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error)
}

type AuthHandler struct {
	authService Authenticator
}

func NewAuthHandler(as Authenticator) *AuthHandler {
	return &AuthHandler{authService: as}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var dto domain.RegisterUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err, "Không thể đăng ký người dùng")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authResponse, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err, "Lỗi đăng nhập")
		return
	}
	c.JSON(http.StatusOK, authResponse)
}
