package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type AuthService struct {
	Users    *repos.UserRepo
	Secret   []byte
	TokenTTL time.Duration
}

func NewAuthService(users *repos.UserRepo, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{Users: users, Secret: []byte(secret), TokenTTL: ttl}
}

// Signup creates a user with the "user" role and binds sid to it.
func (s *AuthService) Signup(sid, email, name, password string) (*domain.User, error) {
	if _, err := s.Users.ByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	roleID, err := s.Users.RoleIDByName(domain.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("resolve user role: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := domain.User{
		ID:     uuid.NewString(),
		Email:  strings.ToLower(email),
		Name:   name,
		Hash:   string(hash),
		RoleID: &roleID,
	}
	if err := s.Users.Create(u); err != nil {
		return nil, err
	}
	if sid != "" {
		if err := s.Users.BindSession(sid, u.ID); err != nil {
			return nil, err
		}
	}
	return s.Users.ByID(u.ID)
}

// Login checks the credentials and, when sid is set, binds the session to the user.
func (s *AuthService) Login(sid, email, password string) (*domain.User, error) {
	u, err := s.Users.ByEmail(email)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if sid != "" {
		if err := s.Users.BindSession(sid, u.ID); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// ChangePassword replaces the password of userID once current matches the
// stored hash. next must already be validated.
func (s *AuthService) ChangePassword(userID, current, next string) error {
	u, err := s.Users.ByID(userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(current)) != nil {
		return ErrBadCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.Users.SetPassword(u.ID, string(hash))
}

func (s *AuthService) Logout(sid string) error {
	return s.Users.UnbindSession(sid)
}

func (s *AuthService) CurrentUser(sid string) (*domain.User, error) {
	return s.Users.SessionUser(sid)
}

// IssueToken signs an HS256 bearer token for u.
func (s *AuthService) IssueToken(u *domain.User) (string, time.Time, error) {
	exp := time.Now().Add(s.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// UserFromToken validates a bearer token and loads its user. The user is
// re-read on every call so role changes and deletions apply immediately.
func (s *AuthService) UserFromToken(raw string) (*domain.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u, err := s.Users.ByID(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return u, nil
}
