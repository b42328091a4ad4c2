package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parkwatch/internal/config"
	"parkwatch/internal/notify"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"
)

func newTestRouter(t *testing.T, auth config.AuthConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&repository.Permit{}, &repository.TimedStay{}, &repository.Event{}))

	hub := notify.NewHub(zerolog.Nop())
	decisions := service.NewDecisionService(
		gdb,
		repository.NewPermitRepository(gdb),
		repository.NewStayRepository(gdb),
		repository.NewEventRepository(gdb),
		hub,
		service.Options{},
		zerolog.Nop(),
	)

	r := gin.New()
	NewHandler(decisions, hub, zerolog.Nop()).Register(r, AuthMiddleware(auth))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
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
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})
	w := doJSON(t, r, http.MethodGet, "/api/v1/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), "parkwatch")
}

func TestOCREventFlow(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	now := time.Now().UTC()
	w := doJSON(t, r, http.MethodPost, "/api/v1/permits/seed", []map[string]interface{}{{
		"plate_text": "ABC123",
		"zone":       "A",
		"valid_from": now.Add(-time.Hour).Format(time.RFC3339),
		"valid_to":   now.Add(time.Hour).Format(time.RFC3339),
	}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"loaded":1`)

	w = doJSON(t, r, http.MethodPost, "/api/v1/events/ocr", map[string]interface{}{
		"plate_text": "abc-123",
		"confidence": 0.99,
		"zone":       "A",
		"type":       "permit",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var decision struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, "APPROVED", decision.Result)

	w = doJSON(t, r, http.MethodGet, "/api/v1/events?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ABC123")
}

func TestOCREventLowConfidence(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/events/ocr", map[string]interface{}{
		"plate_text": "ABC123",
		"confidence": 0.30,
		"zone":       "A",
		"type":       "timed",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "REJECTED_LOW_CONFIDENCE")
	assert.Contains(t, w.Body.String(), "0.95")
}

func TestOCREventValidation(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/events/ocr", map[string]interface{}{
		"plate_text": "---",
		"confidence": 0.99,
		"zone":       "A",
		"type":       "timed",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/events/ocr", map[string]interface{}{
		"plate_text": "ABC123",
		"confidence": 0.99,
		"zone":       "A",
		"type":       "valet",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRawEventAndRemoveLast(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	w := doJSON(t, r, http.MethodDelete, "/api/v1/events/last", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":null`)

	w = doJSON(t, r, http.MethodPost, "/api/v1/events/raw", map[string]interface{}{
		"plate_text": "XYZ999",
		"type":       "timed",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "XYZ999")

	w = doJSON(t, r, http.MethodDelete, "/api/v1/events/last", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "XYZ999")

	w = doJSON(t, r, http.MethodGet, "/api/v1/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestResetStays(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	w := doJSON(t, r, http.MethodPost, "/api/v1/events/raw", map[string]interface{}{
		"plate_text": "XYZ999",
		"type":       "timed",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/stays/reset", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":1`)

	w = doJSON(t, r, http.MethodGet, "/api/v1/stays", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	secret := "test-secret"
	r := newTestRouter(t, config.AuthConfig{Enabled: true, Secret: secret})

	w := doJSON(t, r, http.MethodPost, "/api/v1/stays/reset", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/stays/reset", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	w = doJSON(t, r, http.MethodPost, "/api/v1/stays/reset", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// public endpoints stay open
	w = doJSON(t, r, http.MethodGet, "/api/v1/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
