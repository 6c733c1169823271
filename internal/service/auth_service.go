package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

var ErrInvalidCredentials = errors.New("tên đăng nhập hoặc mật khẩu không đúng")
var ErrUserAlreadyExists = errors.New("tên người dùng đã tồn tại")
var ErrUserInactive = errors.New("tài khoản đã bị khóa")
var ErrTokenInvalid = errors.New("token không hợp lệ hoặc đã hết hạn")

type AuthService struct {
	userRepo           repository.UserRepository
	jwtSecret          string
	jwtExpirationHours time.Duration
	log                zerolog.Logger
	now                func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpHours time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo:           userRepo,
		jwtSecret:          jwtSecret,
		jwtExpirationHours: jwtExpHours,
		log:                log.With().Str("component", "auth_service").Logger(),
		now:                time.Now,
	}
}

// Register tạo tài khoản client; operator/admin do admin cấp.
func (s *AuthService) Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error) {
	existingUser, err := s.userRepo.FindByUsername(ctx, dto.Username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lỗi khi kiểm tra người dùng: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("lỗi hash mật khẩu: %w", err)
	}

	user := &domain.User{
		Username: dto.Username,
		Password: string(hashedPassword),
		Role:     domain.RoleClient,
		FullName: dto.FullName,
		IsActive: true,
	}
	createdUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("lỗi khi tạo người dùng: %w", err)
	}
	createdUser.Password = ""
	s.log.Info().Str("username", createdUser.Username).Msg("Đã đăng ký người dùng mới")
	return createdUser, nil
}

func (s *AuthService) Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error) {
	user, err := s.userRepo.FindByUsername(ctx, dto.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lỗi khi tìm người dùng: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":      strconv.Itoa(user.ID),
		"exp":      now.Add(s.jwtExpirationHours).Unix(),
		"iat":      now.Unix(),
		"role":     user.Role,
		"username": user.Username,
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("lỗi tạo token: %w", err)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now.UTC()); err != nil {
		s.log.Warn().Err(err).Int("user_id", user.ID).Msg("Không cập nhật được last_login")
	}
	return &domain.AuthResponseDTO{
		Token:    tokenString,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

// ValidateToken dùng cho middleware.
func (s *AuthService) ValidateToken(tokenString string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("phương thức ký không mong muốn: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, nil, fmt.Errorf("%w: token có định dạng sai", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, nil, fmt.Errorf("%w: token đã hết hạn", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, nil, fmt.Errorf("%w: token chưa hợp lệ", ErrTokenInvalid)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, nil, ErrTokenInvalid
	}
	return token, claims, nil
}
