package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleClient   = "client"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // password hash, không bao giờ trả về
	Role      string    `json:"role"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	LastLogin null.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterUserDTO struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
	FullName string `json:"full_name,omitempty"`
}

type LoginUserDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
