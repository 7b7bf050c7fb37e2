package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campuschat/internal/core/domain"
	"campuschat/internal/core/services"
	"campuschat/internal/infrastructure/middleware"
	"campuschat/internal/infrastructure/repositories/memory"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLister struct {
	records []domain.IdentityRecord
}

func (s staticLister) ListOnline(ctx context.Context) ([]domain.IdentityRecord, error) {
	return s.records, nil
}

func newTestRouter(online OnlineLister) (*gin.Engine, services.AuthService) {
	gin.SetMode(gin.TestMode)

	authService := services.NewAuthService("test-secret", time.Hour, "/avatar/man.png", memory.NewMemoryUserRepository())

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger.NewContextLogger(zap.NewNop())))
	NewAuthHandler(authService).SetupRoutes(router)
	NewUsersHandler(online).SetupRoutes(router, middleware.AuthMiddleware(authService))
	return router, authService
}

func doJSON(router *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginFlow(t *testing.T) {
	router, _ := newTestRouter(staticLister{})

	w := doJSON(router, http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"alice@example.edu","password":"password1"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created["token"])

	w = doJSON(router, http.MethodPost, "/api/auth/login",
		`{"username":"alice","password":"password1"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var logged map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logged))
	assert.NotEmpty(t, logged["token"])
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	router, _ := newTestRouter(staticLister{})

	body := `{"username":"alice","email":"alice@example.edu","password":"password1"}`
	w := doJSON(router, http.MethodPost, "/api/auth/register", body, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/auth/register", body, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	router, _ := newTestRouter(staticLister{})

	cases := []string{
		`{"username":"al","email":"alice@example.edu","password":"password1"}`,
		`{"username":"alice","email":"not-an-email","password":"password1"}`,
		`{"username":"alice","email":"alice@example.edu","password":"short"}`,
		`not json`,
	}
	for _, body := range cases {
		w := doJSON(router, http.MethodPost, "/api/auth/register", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	router, _ := newTestRouter(staticLister{})

	w := doJSON(router, http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"alice@example.edu","password":"password1"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/auth/login",
		`{"username":"alice","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOnlineUsersRequiresToken(t *testing.T) {
	router, _ := newTestRouter(staticLister{})

	w := doJSON(router, http.MethodGet, "/api/users/online", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/users/online", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOnlineUsersReturnsRecords(t *testing.T) {
	lister := staticLister{records: []domain.IdentityRecord{
		{ID: "1", Name: "alice", Avatar: "/avatar/man.png", Online: true},
		{ID: "2", Name: "bob", Avatar: "/avatar/man.png", Online: true},
	}}
	router, authService := newTestRouter(lister)

	_, token, err := authService.Register(context.Background(), "carol", "carol@example.edu", "password1")
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/users/online", "", token)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OnlineUsers []domain.IdentityRecord `json:"onlineUsers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.OnlineUsers, 2)
	assert.Equal(t, "alice", resp.OnlineUsers[0].Name)
}

func TestOnlineUsersEmptyListIsArray(t *testing.T) {
	router, authService := newTestRouter(staticLister{})

	_, token, err := authService.Register(context.Background(), "carol", "carol@example.edu", "password1")
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/users/online", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"onlineUsers":[]`)
}
