package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/directory"
	"github.com/Dan9191/lostcard-service/internal/metrics"
	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/Dan9191/lostcard-service/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "correct horse"

type stubExtractor struct {
	info models.ExtractedInfo
}

func (s stubExtractor) Extract(context.Context, []byte) models.ExtractedInfo {
	return s.info
}

type stubNotifier struct {
	err   error
	count int
}

func (s *stubNotifier) NotifyFoundCard(context.Context, models.Owner, *models.Card) error {
	if s.err != nil {
		return s.err
	}
	s.count++
	return nil
}

type testServer struct {
	router   http.Handler
	notifier *stubNotifier
}

func newTestServer(t *testing.T, extracted models.ExtractedInfo) *testServer {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		AppEnv:            "development",
		JWTSecret:         "test-secret",
		AdminPasswordHash: string(hash),
		AdminTokenTTL:     time.Hour,
		LookupTimeout:     time.Second,
		NotifyTimeout:     time.Second,
		PickupRateLimit:   100,
		CORSOrigins:       []string{"*"},
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	notifier := &stubNotifier{}
	svc := service.NewService(service.Dependencies{
		Store:     repository.NewMemoryStore(),
		Extractor: stubExtractor{info: extracted},
		Directory: directory.NewStatic(map[string]string{"824665585": "owner@example.edu"}),
		Notifier:  notifier,
		Metrics:   metrics.New(reg),
	}, log, cfg)

	return &testServer{
		router:   NewRouter(NewHandler(svc, log, cfg), reg),
		notifier: notifier,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (s *testServer) token(t *testing.T) string {
	t.Helper()
	rec, body := s.do(t, jsonRequest(t, "/api/admin/login", map[string]string{"password": adminPassword}))
	require.Equal(t, http.StatusOK, rec.Code)
	return body["token"].(string)
}

func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func photoRequest(t *testing.T, fileField string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile(fileField, "card.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/found-card-photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFoundCardPhoto_ExtractedOwnerNotified(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{RedID: models.Ptr("824665585"), FullName: models.Ptr("Jane Doe")})

	rec, body := srv.do(t, photoRequest(t, "image", []byte("jpeg"), map[string]string{
		"boxId":               "BOX_1",
		"locationDescription": "Library",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, true, body["emailSent"])
	assert.Equal(t, "owner@example.edu", body["emailAddress"])
	assert.Equal(t, "824665585", body["redId"])
	assert.Equal(t, "BOX_1", body["boxId"])
	assert.Len(t, body["pickupCode"], 4)
	assert.Len(t, body["referenceCode"], 8)
	assert.Equal(t, map[string]any{"redId": "824665585", "fullName": "Jane Doe"}, body["extractedInfo"])
	assert.Contains(t, body["message"], "Thanks! We extracted information from the card.")
	assert.Equal(t, 1, srv.notifier.count)
}

func TestFoundCardPhoto_LegacyFieldAndNulls(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, photoRequest(t, "cardImage", []byte("jpeg"), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, key := range []string{"boxId", "pickupCode", "redId", "emailAddress"} {
		v, ok := body[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, false, body["emailSent"])
	assert.NotNil(t, body["extractedInfo"])
}

func TestFoundCardPhoto_ManualRedIDJSON(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, jsonRequest(t, "/api/found-card-photo", map[string]string{"manualRedId": "824665585"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["emailSent"])
	assert.Nil(t, body["extractedInfo"])
}

func TestFoundCardPhoto_BadInput(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, photoRequest(t, "image", nil, map[string]string{"finderContact": "me"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image file provided", body["error"])

	rec, _ = srv.do(t, photoRequest(t, "image", []byte("jpeg"), map[string]string{"boxId": "BOX_7"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedIDAndPickupFlow(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, formRequest("/api/found-card-redid", url.Values{"redId": {"824665585"}, "boxId": {"BOX_2"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := body["pickupCode"].(string)
	cardID := body["cardId"].(string)
	assert.Equal(t, 1, srv.notifier.count)

	rec, body = srv.do(t, jsonRequest(t, "/api/pickup-request", map[string]string{"pickupCode": code, "boxId": "BOX_1"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "invalid_code", body["reason"])

	rec, body = srv.do(t, jsonRequest(t, "/api/pickup-request", map[string]string{"pickupCode": code, "boxId": "BOX_2"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, cardID, body["cardId"])
	assert.Equal(t, "Card has been taken out successfully", body["message"])

	rec, body = srv.do(t, jsonRequest(t, "/api/pickup-request", map[string]string{"pickupCode": code, "boxId": "BOX_2"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_picked_up", body["reason"])

	rec, body = srv.do(t, jsonRequest(t, "/api/found-card-redid", map[string]string{"boxId": "BOX_2"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "redId and boxId are required", body["error"])
}

func TestFoundCardRedID_NumericJSON(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, jsonRequest(t, "/api/found-card-redid", map[string]any{"redId": 824665585, "boxId": "BOX_1"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, srv.notifier.count)
	cardID := body["cardId"].(string)

	rec, card := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/cards/"+cardID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "824665585", card["redId"])
	assert.Equal(t, "owner@example.edu", card["email"])
	assert.Equal(t, "email_sent", card["status"])
}

func TestGetCard(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})
	_, created := srv.do(t, jsonRequest(t, "/api/found-card-photo", map[string]string{"manualRedId": "123456789"}))
	ref := created["referenceCode"].(string)

	rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/cards/"+ref, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created["cardId"], body["id"])
	assert.Equal(t, "waiting_for_email", body["status"])

	rec, body = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/cards/ZZZZZZZZ", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Card not found. Please check your reference code.", body["error"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, _ := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/cards", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, jsonRequest(t, "/api/admin/login", map[string]string{"password": "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cards?status=picked_up", nil)
	req.Header.Set("Authorization", "Bearer "+srv.token(t))
	rec, _ = srv.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSetEmail(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})
	token := srv.token(t)
	_, created := srv.do(t, jsonRequest(t, "/api/found-card-photo", map[string]string{"manualRedId": "123456789", "boxId": "BOX_3"}))
	cardID := created["cardId"].(string)

	authed := func(body map[string]string) *http.Request {
		req := jsonRequest(t, "/api/cards/"+cardID+"/set-email", body)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	rec, body := srv.do(t, authed(map[string]string{"email": "bad"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Valid email address is required", body["error"])

	srv.notifier.err = errors.New("smtp down")
	rec, body = srv.do(t, authed(map[string]string{"email": "owner@example.edu"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])

	srv.notifier.err = nil
	rec, body = srv.do(t, authed(map[string]string{"email": "owner@example.edu"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email sent successfully", body["message"])
	card := body["card"].(map[string]any)
	assert.Equal(t, "email_sent", card["status"])

	rec, body = srv.do(t, authed(map[string]string{"email": "owner@example.edu"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Card is not waiting for email. Current status: email_sent", body["error"])
}

func TestTestEmail(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	req := jsonRequest(t, "/api/admin/test-email", map[string]string{"toEmail": "ops@example.edu"})
	req.Header.Set("Authorization", "Bearer "+srv.token(t))
	rec, body := srv.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ops@example.edu", body["recipient"])
}

func TestHealthInfoAndMetrics(t *testing.T) {
	srv := newTestServer(t, models.ExtractedInfo{})

	rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = srv.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "endpoints")

	srv.do(t, jsonRequest(t, "/api/found-card-redid", map[string]string{"redId": "1", "boxId": "BOX_1"}))
	rec, _ = srv.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lostcard_submissions_total{source="box"} 1`)
}
