package httpapi

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errUnauthorized       = errors.New("unauthorized")
)

const minPasswordLength = 8

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	now      func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
}

type sawmillClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a customer account and signs it in.
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.LoginResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.LoginResponse{}, errors.Wrap(store.ErrInvalidInput, "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return domain.LoginResponse{}, errors.Wrap(store.ErrInvalidInput, "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return domain.LoginResponse{}, errors.Wrapf(store.ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.LoginResponse{}, errors.Wrap(err, "hash password")
	}
	user, err := a.users.CreateUser(ctx, domain.UserAccount{
		Name:         name,
		Email:        addr.Address,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    a.now(),
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return a.issue(*user)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, errors.Wrap(err, "load user")
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, errors.Wrap(errUnauthorized, "account is inactive")
	}
	return a.issue(*user)
}

// Me returns the account behind a token.
func (a *AuthManager) Me(ctx context.Context, actor domain.Actor) (domain.UserAccount, error) {
	user, err := a.users.GetUserByID(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UserAccount{}, errors.Wrap(errUnauthorized, "account no longer exists")
	}
	if err != nil {
		return domain.UserAccount{}, errors.Wrap(err, "load user")
	}
	return *user, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &sawmillClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.Wrap(errUnauthorized, "invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.Wrap(errUnauthorized, "invalid token subject")
	}
	return domain.Actor{UserID: sub, Email: claims.Email, Role: claims.Role}, nil
}

func (a *AuthManager) issue(user domain.UserAccount) (domain.LoginResponse, error) {
	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, errors.Wrap(err, "sign token")
	}
	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        user,
	}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := sawmillClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "sawmill",
		},
		Email: user.Email,
		Role:  user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
