package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"focuschat/internal/middleware"
	"focuschat/internal/mocks"
	"focuschat/internal/models"
	"focuschat/internal/telemetry"
	"focuschat/internal/ws"
)

func setupBanRouter(handler *BanHandler, actor models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserContextKey, actor)
		c.Next()
	})
	r.POST("/bans", handler.CreateBan)
	r.DELETE("/bans/:user_id", handler.DeleteBan)
	r.GET("/bans/:user_id", handler.GetBan)
	r.GET("/roles/:user_id", handler.GetRole)
	return r
}

func newBanHandler(banRepo *mocks.BanRepositoryMock, roleRepo *mocks.RoleRepositoryMock) *BanHandler {
	return NewBanHandler(banRepo, roleRepo, ws.NewHub(),
		telemetry.NewAuditEmitter("audit", "focuschat", "test"))
}

func TestCreateBanPermanent(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	roleRepo := new(mocks.RoleRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, roleRepo), models.User{ID: "mod", Role: models.RoleModerator})

	roleRepo.On("FetchRole", mock.Anything, "target").Return(models.RoleUser, nil).Once()
	banRepo.On("InsertBan", mock.Anything, mock.MatchedBy(func(ban models.Ban) bool {
		return ban.UserID == "target" && ban.BannedByID == "mod" &&
			ban.BannedByRole == models.RoleModerator && ban.ExpiresAt == nil
	})).Return(models.Ban{ID: "b1", UserID: "target"}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":"target","reason":"spam"}`)
	req := httptest.NewRequest(http.MethodPost, "/bans", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	banRepo.AssertExpectations(t)
	roleRepo.AssertExpectations(t)
}

func TestCreateBanTimed(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	roleRepo := new(mocks.RoleRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, roleRepo), models.User{ID: "root", Role: models.RoleAdmin})

	before := time.Now()
	roleRepo.On("FetchRole", mock.Anything, "target").Return(models.RoleModerator, nil).Once()
	banRepo.On("InsertBan", mock.Anything, mock.MatchedBy(func(ban models.Ban) bool {
		if ban.ExpiresAt == nil {
			return false
		}
		return ban.ExpiresAt.After(before.Add(23 * time.Hour)) &&
			ban.ExpiresAt.Before(before.Add(25*time.Hour))
	})).Return(models.Ban{ID: "b1", UserID: "target"}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":"target","reason":"spam","duration_minutes":1440}`)
	req := httptest.NewRequest(http.MethodPost, "/bans", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	banRepo.AssertExpectations(t)
}

func TestCreateBanHierarchyDenied(t *testing.T) {
	cases := []struct {
		name       string
		actor      models.User
		targetRole models.Role
	}{
		{"plain user", models.User{ID: "u1", Role: models.RoleUser}, models.RoleUser},
		{"moderator vs moderator", models.User{ID: "mod", Role: models.RoleModerator}, models.RoleModerator},
		{"moderator vs admin", models.User{ID: "mod", Role: models.RoleModerator}, models.RoleAdmin},
		{"admin vs admin", models.User{ID: "root", Role: models.RoleAdmin}, models.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			banRepo := new(mocks.BanRepositoryMock)
			roleRepo := new(mocks.RoleRepositoryMock)
			router := setupBanRouter(newBanHandler(banRepo, roleRepo), tc.actor)

			roleRepo.On("FetchRole", mock.Anything, "target").Return(tc.targetRole, nil).Once()

			body := bytes.NewBufferString(`{"user_id":"target"}`)
			req := httptest.NewRequest(http.MethodPost, "/bans", body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusForbidden, rec.Code)
			banRepo.AssertNotCalled(t, "InsertBan", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBanSelfDenied(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	roleRepo := new(mocks.RoleRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, roleRepo), models.User{ID: "mod", Role: models.RoleModerator})

	roleRepo.On("FetchRole", mock.Anything, "mod").Return(models.RoleModerator, nil).Once()

	body := bytes.NewBufferString(`{"user_id":"mod"}`)
	req := httptest.NewRequest(http.MethodPost, "/bans", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	banRepo.AssertNotCalled(t, "InsertBan", mock.Anything, mock.Anything)
}

func TestDeleteBanSuccess(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, new(mocks.RoleRepositoryMock)),
		models.User{ID: "mod", Role: models.RoleModerator})

	banRepo.On("FetchActiveBan", mock.Anything, "target").
		Return(&models.Ban{ID: "b1", UserID: "target", BannedByRole: models.RoleModerator}, nil).Once()
	banRepo.On("DeleteBan", mock.Anything, "b1").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/bans/target", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	banRepo.AssertExpectations(t)
}

func TestDeleteBanNoActiveBan(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, new(mocks.RoleRepositoryMock)),
		models.User{ID: "mod", Role: models.RoleModerator})

	banRepo.On("FetchActiveBan", mock.Anything, "target").Return((*models.Ban)(nil), nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/bans/target", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	banRepo.AssertExpectations(t)
}

func TestDeleteBanAdminIssuedNeedsAdmin(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, new(mocks.RoleRepositoryMock)),
		models.User{ID: "mod", Role: models.RoleModerator})

	banRepo.On("FetchActiveBan", mock.Anything, "target").
		Return(&models.Ban{ID: "b1", UserID: "target", BannedByRole: models.RoleAdmin}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/bans/target", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	banRepo.AssertNotCalled(t, "DeleteBan", mock.Anything, mock.Anything)
}

func TestGetBanReturnsNullWhenClean(t *testing.T) {
	banRepo := new(mocks.BanRepositoryMock)
	router := setupBanRouter(newBanHandler(banRepo, new(mocks.RoleRepositoryMock)), models.User{ID: "u1"})

	banRepo.On("FetchActiveBan", mock.Anything, "clean").Return((*models.Ban)(nil), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/bans/clean", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "null", string(resp["ban"]))
}

func TestGetRole(t *testing.T) {
	roleRepo := new(mocks.RoleRepositoryMock)
	router := setupBanRouter(newBanHandler(new(mocks.BanRepositoryMock), roleRepo), models.User{ID: "u1"})

	roleRepo.On("FetchRole", mock.Anything, "u2").Return(models.RoleModerator, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/roles/u2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "moderator", resp["role"])
}
