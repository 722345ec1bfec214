package identity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type stubProvider struct {
	mu       sync.Mutex
	profiles map[string]auth.ProviderProfile
	err      error
	calls    atomic.Int32
}

func newStubProvider() *stubProvider {
	return &stubProvider{profiles: map[string]auth.ProviderProfile{}}
}

func (p *stubProvider) register(accessToken string, profile auth.ProviderProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if profile.Provider == "" {
		profile.Provider = auth.ProviderGoogle
	}
	p.profiles[accessToken] = profile
}

func (p *stubProvider) FetchProfile(_ context.Context, accessToken string) (auth.ProviderProfile, error) {
	p.calls.Add(1)
	if p.err != nil {
		return auth.ProviderProfile{}, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.profiles[accessToken]
	if !ok {
		return auth.ProviderProfile{}, auth.ErrProviderRejected
	}
	return profile, nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&accounts.User{}, &accounts.SocialAccount{}, &accounts.BearerToken{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestAccountStore(t *testing.T, db *gorm.DB) *accounts.Store {
	t.Helper()
	store, err := accounts.NewStore(accounts.StoreConfig{
		Database: db,
		Clock: func() time.Time {
			return testNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct account store: %v", err)
	}
	return store
}

func newTestSessionIssuer(t *testing.T) *auth.SessionIssuer {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte("identity-test-secret"),
		Clock: func() time.Time {
			return testNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct session issuer: %v", err)
	}
	return issuer
}

func newTestService(t *testing.T, store AccountStore, provider ProfileFetcher, options Options, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Store:    store,
		Provider: provider,
		Sessions: newTestSessionIssuer(t),
		Options:  options,
		Clock: func() time.Time {
			return testNow
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to construct identity service: %v", err)
	}
	return service
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func seedUser(t *testing.T, store *accounts.Store, username, email string) accounts.User {
	t.Helper()
	user := accounts.User{Username: username, Email: email, IsActive: true}
	if err := store.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("failed to seed user %q: %v", username, err)
	}
	return user
}

func requireKind(t *testing.T, err error, expected Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", expected)
	}
	if kind := KindOf(err); kind != expected {
		t.Fatalf("expected %s error, got %s (%v)", expected, kind, err)
	}
}
