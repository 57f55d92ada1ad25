package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appcatalog/apperr"
	"appcatalog/db/dbtest"
	"appcatalog/models"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.New(t), "test-secret", time.Hour, dbtest.Quiet())
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	admin, err := s.EnsureAdmin(ctx, "admin", "admin@example.com", "s3cret-pass")
	require.NoError(t, err)

	token, user, err := s.Login(ctx, "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)
	assert.NotEmpty(t, token)

	actor, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, actor.IsAdmin())
	assert.Equal(t, admin.ID, *actor.CurrentActorID())

	reloaded, err := s.User(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastLogin)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	_, err := s.EnsureAdmin(ctx, "admin", "admin@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, _, errWrongPass := s.Login(ctx, "admin", "nope-nope")
	_, _, errNoUser := s.Login(ctx, "ghost", "nope-nope")

	require.Error(t, errWrongPass)
	require.Error(t, errNoUser)
	assert.Equal(t, errWrongPass.Error(), errNoUser.Error())
	assert.True(t, apperr.Is(errWrongPass, apperr.InvalidArgument))
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	admin, err := s.EnsureAdmin(ctx, "admin", "admin@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "garbage")
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	other := NewService(s.db, "other-secret", time.Hour, dbtest.Quiet())
	forged, err := other.issue(admin, time.Now())
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, forged)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	expired, err := s.issue(admin, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, expired)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	token, err := s.issue(admin, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_active", false).Error)
	_, err = s.Authenticate(ctx, token)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	admin, err := s.EnsureAdmin(ctx, "admin", "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	actor := Actor{ID: admin.ID, Username: admin.Username, Admin: true}

	assert.True(t, apperr.Is(s.ChangePassword(ctx, Actor{}, "a", "b"), apperr.Forbidden))
	assert.True(t, apperr.Is(s.ChangePassword(ctx, actor, "wrong-pass", "new-password"), apperr.InvalidArgument))
	assert.True(t, apperr.Is(s.ChangePassword(ctx, actor, "s3cret-pass", "short"), apperr.InvalidArgument))

	require.NoError(t, s.ChangePassword(ctx, actor, "s3cret-pass", "new-password"))
	_, _, err = s.Login(ctx, "admin", "new-password")
	assert.NoError(t, err)
}

func TestEnsureAdminResetsExisting(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	first, err := s.EnsureAdmin(ctx, "admin", "a@example.com", "first-pass")
	require.NoError(t, err)
	second, err := s.EnsureAdmin(ctx, "admin", "b@example.com", "second-pass")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b@example.com", second.Email)
	has, err := s.HasUsers(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = s.EnsureAdmin(ctx, "x", "x@example.com", "short")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestMiddlewareSetsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s := newService(t)
	admin, err := s.EnsureAdmin(ctx, "admin", "admin@example.com", "s3cret-pass")
	require.NoError(t, err)
	token, err := s.issue(admin, time.Now())
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware(s))
	r.GET("/whoami", func(c *gin.Context) {
		a := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"admin": a.IsAdmin(), "username": a.Username})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"admin":true,"username":"admin"}`, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"admin":true,"username":"admin"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.JSONEq(t, `{"admin":false,"username":""}`, w.Body.String())
}
