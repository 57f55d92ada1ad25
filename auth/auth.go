// Package auth authenticates catalog administrators and carries the
// authenticated actor through a request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"appcatalog/apperr"
	"appcatalog/models"
)

const (
	issuer          = "appcatalog"
	minPasswordLen  = 8
	invalidLoginMsg = "Invalid username or password"
)

// Actor is the caller of a request. The zero value is an anonymous visitor.
type Actor struct {
	ID       uint
	Username string
	Admin    bool
}

func (a Actor) IsAdmin() bool { return a.Admin && a.ID != 0 }

// CurrentActorID is nil for anonymous callers.
func (a Actor) CurrentActorID() *uint {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// Request identifies the caller of a mutation and where it came from.
type Request struct {
	Actor     Actor
	SourceIP  string
	UserAgent string
}

type claims struct {
	UserID   uint   `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, secret string, ttl time.Duration, log *logrus.Logger) *Service {
	return &Service{db: db, secret: []byte(secret), ttl: ttl, log: log, now: time.Now}
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Login checks credentials against an active user matched by username or
// email and returns a signed session token.
func (s *Service) Login(ctx context.Context, identifier, password string) (string, models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return "", models.User{}, apperr.Invalid("Please fill in all required fields")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("(username = ? OR email = ?) AND is_active = ?", identifier, identifier, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", models.User{}, apperr.Invalid(invalidLoginMsg)
	}
	if err != nil {
		return "", models.User{}, apperr.StorageErr("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", models.User{}, apperr.Invalid(invalidLoginMsg)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("update last login")
	}

	token, err := s.issue(user, now)
	if err != nil {
		return "", models.User{}, apperr.Wrap(apperr.Unknown, "sign token", err)
	}
	return token, user, nil
}

func (s *Service) issue(user models.User, now time.Time) (string, error) {
	c := claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Authenticate resolves a session token to an actor. The user must still
// exist and be active.
func (s *Service) Authenticate(ctx context.Context, token string) (Actor, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Actor{}, apperr.Denied("Session expired")
	}

	var user models.User
	err = s.db.WithContext(ctx).
		Where("id = ? AND username = ? AND is_active = ?", c.UserID, c.Username, true).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Actor{}, apperr.Denied("Session expired")
	}
	if err != nil {
		return Actor{}, apperr.StorageErr("load session user", err)
	}
	return Actor{ID: user.ID, Username: user.Username, Admin: true}, nil
}

func (s *Service) User(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, apperr.Missing("User not found")
	}
	if err != nil {
		return user, apperr.StorageErr("load user", err)
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, actor Actor, current, next string) error {
	if !actor.IsAdmin() {
		return apperr.Denied("You are not allowed to do this")
	}
	if current == "" || next == "" {
		return apperr.Invalid("Please fill in all required fields")
	}
	if len(next) < minPasswordLen {
		return apperr.Invalid(fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}

	user, err := s.User(ctx, actor.ID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apperr.Invalid("Current password is incorrect")
	}
	hash, err := HashPassword(next)
	if err != nil {
		return apperr.Wrap(apperr.Unknown, "hash password", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
		return apperr.StorageErr("update password", err)
	}
	return nil
}

// EnsureAdmin creates the user or, when it exists, resets its password and
// reactivates it.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (models.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" {
		return models.User{}, apperr.Invalid("username and email are required")
	}
	if len(password) < minPasswordLen {
		return models.User{}, apperr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Username: username, Email: email, PasswordHash: hash, IsActive: true}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return models.User{}, apperr.StorageErr("create admin", err)
		}
	case err != nil:
		return models.User{}, apperr.StorageErr("find admin", err)
	default:
		user.Email = email
		user.PasswordHash = hash
		user.IsActive = true
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return models.User{}, apperr.StorageErr("update admin", err)
		}
	}
	return user, nil
}

// HasUsers reports whether any user exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
