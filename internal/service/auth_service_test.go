package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

type fakeUserRepo struct {
	users     map[string]*domain.User
	lastLogin map[int]time.Time
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}, lastLogin: map[int]time.Time{}}
}

func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	if _, ok := f.users[u.Username]; ok {
		return nil, repository.ErrDuplicateEntry
	}
	u.ID = len(f.users) + 1
	c := *u
	f.users[u.Username] = &c
	return u, nil
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id int, at time.Time) error {
	f.lastLogin[id] = at
	return nil
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour, zerolog.Nop())
	ctx := context.Background()

	user, err := svc.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	if user.Password != "" || user.Role != domain.RoleClient {
		t.Errorf("registered user = %+v", user)
	}
	if _, err := svc.Register(ctx, domain.RegisterUserDTO{Username: "alice", Password: "x"}); !errors.Is(err, ErrUserAlreadyExists) {
		t.Errorf("duplicate register err = %v", err)
	}

	if _, err := svc.Login(ctx, domain.LoginUserDTO{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.Login(ctx, domain.LoginUserDTO{Username: "bob", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}

	resp, err := svc.Login(ctx, domain.LoginUserDTO{Username: "alice", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.lastLogin[resp.UserID]; !ok {
		t.Errorf("last login not recorded")
	}

	_, claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims["username"] != "alice" || claims["role"] != domain.RoleClient || claims["sub"] != "1" {
		t.Errorf("claims = %v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour, zerolog.Nop())
	ctx := context.Background()
	if _, err := svc.Register(ctx, domain.RegisterUserDTO{Username: "op", Password: "password1"}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.ValidateToken("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("malformed err = %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	resp, err := svc.Login(ctx, domain.LoginUserDTO{Username: "op", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}
	svc.now = time.Now
	if _, _, err := svc.ValidateToken(resp.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expired err = %v", err)
	}

	other := NewAuthService(repo, "other-secret", time.Hour, zerolog.Nop())
	fresh, _ := svc.Login(ctx, domain.LoginUserDTO{Username: "op", Password: "password1"})
	if _, _, err := other.ValidateToken(fresh.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong secret err = %v", err)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, "secret", time.Hour, zerolog.Nop())
	ctx := context.Background()
	if _, err := svc.Register(ctx, domain.RegisterUserDTO{Username: "old", Password: "password1"}); err != nil {
		t.Fatal(err)
	}
	repo.users["old"].IsActive = false
	if _, err := svc.Login(ctx, domain.LoginUserDTO{Username: "old", Password: "password1"}); !errors.Is(err, ErrUserInactive) {
		t.Errorf("err = %v, want ErrUserInactive", err)
	}
}
