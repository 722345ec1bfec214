package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/admin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/identity"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "sf_session"
)

type stubFetcher struct {
	mu       sync.Mutex
	profiles map[string]auth.ProviderProfile
}

func (f *stubFetcher) register(accessToken, subject, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[accessToken] = auth.ProviderProfile{
		Provider:  auth.ProviderGoogle,
		SubjectID: subject,
		Email:     email,
		GivenName: "Sample",
		RawClaims: json.RawMessage(`{"sub":"` + subject + `","email":"` + email + `"}`),
	}
}

func (f *stubFetcher) FetchProfile(_ context.Context, accessToken string) (auth.ProviderProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[accessToken]
	if !ok {
		return auth.ProviderProfile{}, auth.ErrProviderRejected
	}
	return profile, nil
}

type testServer struct {
	db         *gorm.DB
	store      *accounts.Store
	events     *events.Service
	fetcher    *stubFetcher
	dispatcher *RosterDispatcher
	handler    http.Handler
	logs       *observer.ObservedLogs
}

type testServerOptions struct {
	loginRatePerMinute int
}

func newTestServer(t *testing.T, options testServerOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&accounts.User{}, &accounts.SocialAccount{}, &accounts.BearerToken{}, &events.Event{}, &events.Participation{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store, err := accounts.NewStore(accounts.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	dispatcher := NewRosterDispatcher()
	eventService, err := events.NewService(events.ServiceConfig{Database: db, Logger: logger, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct event service: %v", err)
	}
	registry, err := admin.NewRegistry(admin.RegistryConfig{Database: db, Users: store, Events: eventService, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct admin registry: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSigningSecret), TTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to construct session issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret), CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	fetcher := &stubFetcher{profiles: map[string]auth.ProviderProfile{}}
	identityService, err := identity.NewService(identity.ServiceConfig{
		Store:    store,
		Provider: fetcher,
		Sessions: issuer,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to construct identity service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Identity:           identityService,
		Accounts:           store,
		Events:             eventService,
		Admin:              registry,
		Sessions:           validator,
		Realtime:           dispatcher,
		LoginRatePerMinute: options.loginRatePerMinute,
		HeartbeatInterval:  time.Hour,
		Logger:             logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{
		db:         db,
		store:      store,
		events:     eventService,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		handler:    handler,
		logs:       logs,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Token "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

type loginPayload struct {
	Token string           `json:"token"`
	User  accounts.Profile `json:"user"`
}

func (s *testServer) login(t *testing.T, accessToken, subject, email string) loginPayload {
	t.Helper()
	s.fetcher.register(accessToken, subject, email)
	recorder := s.do(t, http.MethodPost, "/api/auth/google", "", `{"access_token":"`+accessToken+`"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload loginPayload
	decodeBody(t, recorder, &payload)
	return payload
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func eventBody(title string, maxParticipants int) string {
	start := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(50 * time.Hour).Format(time.RFC3339)
	body := `{"title":"` + title + `","event_type":"match","location":"Central Park","start_date":"` + start + `","end_date":"` + end + `"`
	if maxParticipants > 0 {
		body += `,"max_participants":` + strconv.Itoa(maxParticipants)
	}
	return body + "}"
}
