package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainUser "library-auth/internal/domain/user"
	"library-auth/internal/domain/user/usertest"
	"library-auth/internal/hasher"
	"library-auth/internal/middleware"
	"library-auth/internal/token"
	"library-auth/internal/usecase/auth"
	"library-auth/internal/usecase/password"
)

type memoryNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *memoryNotifier) SendPasswordReset(_ context.Context, email, tok string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[email] = tok
	return nil
}

type testServer struct {
	router        *gin.Engine
	users         *usertest.MemoryUserRepository
	refreshTokens *usertest.MemoryRefreshTokenRepository
	notifier      *memoryNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := usertest.NewMemoryUserRepository()
	refreshTokens := usertest.NewMemoryRefreshTokenRepository()
	resetTokens := usertest.NewMemoryResetTokenRepository()
	n := &memoryNotifier{tokens: make(map[string]string)}
	h := hasher.NewBcrypt(bcrypt.MinCost)
	accessIssuer := token.NewIssuer("access-secret", 15*time.Minute)
	refreshIssuer := token.NewIssuer("refresh-secret", 7*24*time.Hour)

	authService := auth.NewService(users, refreshTokens, h, accessIssuer, refreshIssuer)
	passwordService := password.NewService(users, resetTokens, refreshTokens, h, n)

	router := gin.New()
	group := router.Group("/api/v1/auth")
	NewAuthHandler(authService).RegisterRoutes(group)
	NewPasswordHandler(passwordService).RegisterRoutes(group)

	protected := group.Group("")
	protected.Use(middleware.AuthMiddleware(accessIssuer))
	NewAuthHandler(authService).RegisterProtectedRoutes(protected)

	return &testServer{
		router:        router,
		users:         users,
		refreshTokens: refreshTokens,
		notifier:      n,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (envelope, tokenPair) {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))

	var pair tokenPair
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &pair))
	}
	return env, pair
}

func registerBody() gin.H {
	return gin.H{
		"email":     "a@b.com",
		"password":  "secret1",
		"firstName": "A",
		"lastName":  "B",
	}
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	s := newTestServer(t)

	// Register.
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env, registered := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "a@b.com", registered.User.Email)
	assert.Equal(t, domainUser.RoleReader, registered.User.Role)
	assert.NotEmpty(t, registered.AccessToken)
	assert.NotEmpty(t, registered.RefreshToken)
	assert.NotContains(t, rec.Body.String(), "password")

	// Login mints a fresh pair.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, loggedIn := decode(t, rec)
	assert.NotEqual(t, registered.RefreshToken, loggedIn.RefreshToken)

	// Refresh rotates the pair.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": loggedIn.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, rotated := decode(t, rec)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, loggedIn.RefreshToken, rotated.RefreshToken)

	// The consumed token is now rejected.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": loggedIn.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDuplicateConflict(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env, _ := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "user with this email already exists", env.Message)
}

func TestRegisterNormalizesEmailCase(t *testing.T) {
	s := newTestServer(t)

	body := registerBody()
	body["email"] = "  Alice@Example.COM "
	body["password"] = "secret1"
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, registered := decode(t, rec)
	assert.Equal(t, "alice@example.com", registered.User.Email)

	// Lookup uses the same canonical form.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "ALICE@EXAMPLE.COM",
		"password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLoginFailuresShareMessage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "nobody@b.com",
		"password": "secret1",
	}, nil)
	wrongPassword := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "wrong-password",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)

	unknownEnv, _ := decode(t, unknown)
	wrongEnv, _ := decode(t, wrongPassword)
	assert.Equal(t, unknownEnv.Message, wrongEnv.Message)
}

func TestLogoutEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decode(t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The session is gone.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out again is still a success, even with an empty body.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeRequiresBearerToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decode(t, rec)

	// No header.
	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh token is not an access token.
	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + registered.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + registered.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var profile struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "a@b.com", profile.Email)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decode(t, rec)

	// Known and unknown emails get the identical response.
	known := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", gin.H{"email": "a@b.com"}, nil)
	unknown := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", gin.H{"email": "nobody@b.com"}, nil)
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	resetToken := s.notifier.tokens["a@b.com"]
	require.NotEmpty(t, resetToken)

	// The link is validated before showing the form.
	rec = s.do(t, http.MethodGet, "/api/v1/auth/validate-reset-token/"+resetToken, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid": true}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/auth/validate-reset-token/bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"valid": false}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", gin.H{
		"token":       resetToken,
		"newPassword": "brand-new-password",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Old sessions and the old password are both dead.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "brand-new-password",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The reset token is single-use.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", gin.H{
		"token":       resetToken,
		"newPassword": "yet-another-password",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationErrorsAreBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body gin.H
	}{
		{"register short password", "/api/v1/auth/register", gin.H{
			"email": "a@b.com", "password": "abc", "firstName": "A", "lastName": "B",
		}},
		{"register bad email", "/api/v1/auth/register", gin.H{
			"email": "not-an-email", "password": "secret1", "firstName": "A", "lastName": "B",
		}},
		{"forgot bad email", "/api/v1/auth/forgot-password", gin.H{"email": "not-an-email"}},
		{"refresh missing token", "/api/v1/auth/refresh", gin.H{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			env, _ := decode(t, rec)
			assert.False(t, env.Success)
		})
	}
}

func TestInactiveAccountForbidden(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decode(t, rec)

	u, err := s.users.GetByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	s.users.SetActive(u.ID, false)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Sanity: the earlier session keeps refreshing, matching the policy
	// that deactivation only blocks new logins.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminRevokeRoute(t *testing.T) {
	s := newTestServer(t)
	gin.SetMode(gin.TestMode)

	// An admin-scoped router wired without the role middleware noise.
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, registered := decode(t, rec)

	admin := gin.New()
	adminGroup := admin.Group("/api/v1/auth")
	NewAuthHandler(auth.NewService(
		s.users,
		s.refreshTokens,
		hasher.NewBcrypt(bcrypt.MinCost),
		token.NewIssuer("access-secret", 15*time.Minute),
		token.NewIssuer("refresh-secret", 7*24*time.Hour),
	)).RegisterAdminRoutes(adminGroup)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/auth/users/%s/revoke-tokens", registered.User.ID), nil)
	res := httptest.NewRecorder()
	admin.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	// The victim's session is gone.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{
		"refreshToken": registered.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A malformed ID is rejected before touching the store.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/users/not-a-uuid/revoke-tokens", nil)
	res = httptest.NewRecorder()
	admin.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
