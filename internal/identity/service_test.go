package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExchangeProviderTokenRegistersSampleUser(t *testing.T) {
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"sub":"G123","email":"sample@example.com","given_name":"Sample","family_name":"User"}`))
	}))
	defer userInfoServer.Close()

	provider, err := auth.NewGoogleUserInfoClient(auth.GoogleUserInfoConfig{
		UserInfoURL: userInfoServer.URL,
		HTTPClient:  userInfoServer.Client(),
	})
	if err != nil {
		t.Fatalf("failed to construct provider client: %v", err)
	}

	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	service := newTestService(t, store, provider, Options{}, nil)

	result, err := service.ExchangeProviderToken(context.Background(), "google-access-token")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if result.User.Username != "sample" || result.User.Email != "sample@example.com" {
		t.Fatalf("unexpected profile %#v", result.User)
	}
	if result.User.FirstName != "Sample" || result.User.LastName != "User" {
		t.Fatalf("unexpected names %#v", result.User)
	}
	if len(result.Token) != 40 {
		t.Fatalf("expected a 40 character token, got %q", result.Token)
	}
	if !result.UserCreated || !result.TokenCreated {
		t.Fatalf("expected a new user and token, got %#v", result)
	}
	if result.SessionToken == "" || !result.SessionExpiresAt.After(testNow) {
		t.Fatalf("expected a session to be established, got %#v", result)
	}
	if result.User.LastLogin == nil || !result.User.LastLogin.Equal(testNow) {
		t.Fatalf("expected last login to be stamped, got %v", result.User.LastLogin)
	}

	if users := countRows(t, db, &accounts.User{}); users != 1 {
		t.Fatalf("expected one user, got %d", users)
	}
	if links := countRows(t, db, &accounts.SocialAccount{}); links != 1 {
		t.Fatalf("expected one social account, got %d", links)
	}
	if tokens := countRows(t, db, &accounts.BearerToken{}); tokens != 1 {
		t.Fatalf("expected one bearer token, got %d", tokens)
	}

	link, err := store.FindSocialAccount(context.Background(), accounts.ProviderGoogle, "G123")
	if err != nil {
		t.Fatalf("expected social account: %v", err)
	}
	if !strings.Contains(link.ExtraData, `"sub":"G123"`) {
		t.Fatalf("expected raw claims snapshot, got %s", link.ExtraData)
	}
	stored, err := store.UserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if !stored.IsActive {
		t.Fatalf("expected new user to be active")
	}
	if stored.HasUsablePassword() {
		t.Fatalf("expected provider-only account to have no usable password")
	}
}

func TestExchangeProviderTokenReusesExistingLink(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	provider := newStubProvider()
	provider.register("first", auth.ProviderProfile{SubjectID: "G123", Email: "sample@example.com"})
	provider.register("second", auth.ProviderProfile{SubjectID: "G123", Email: "sample@example.com"})
	service := newTestService(t, store, provider, Options{}, nil)

	first, err := service.ExchangeProviderToken(context.Background(), "first")
	if err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	second, err := service.ExchangeProviderToken(context.Background(), "second")
	if err != nil {
		t.Fatalf("second exchange failed: %v", err)
	}

	if second.Token != first.Token {
		t.Fatalf("expected the token to be reused, got %s and %s", first.Token, second.Token)
	}
	if second.User.ID != first.User.ID {
		t.Fatalf("expected the same user, got %d and %d", first.User.ID, second.User.ID)
	}
	if second.UserCreated || second.TokenCreated {
		t.Fatalf("expected no records to be created on repeat login, got %#v", second)
	}
	if users := countRows(t, db, &accounts.User{}); users != 1 {
		t.Fatalf("expected one user, got %d", users)
	}
	if links := countRows(t, db, &accounts.SocialAccount{}); links != 1 {
		t.Fatalf("expected one social account, got %d", links)
	}
	if tokens := countRows(t, db, &accounts.BearerToken{}); tokens != 1 {
		t.Fatalf("expected one bearer token, got %d", tokens)
	}
}

func TestExchangeProviderTokenDerivesSuffixedUsernames(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	seedUser(t, store, "jane.doe", "someone@example.com")

	provider := newStubProvider()
	provider.register("a", auth.ProviderProfile{SubjectID: "A", Email: "jane.doe@example.com"})
	provider.register("b", auth.ProviderProfile{SubjectID: "B", Email: "jane.doe@example.org"})
	service := newTestService(t, store, provider, Options{}, nil)

	first, err := service.ExchangeProviderToken(context.Background(), "a")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if first.User.Username != "jane.doe1" {
		t.Fatalf("expected jane.doe1, got %s", first.User.Username)
	}
	second, err := service.ExchangeProviderToken(context.Background(), "b")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if second.User.Username != "jane.doe2" {
		t.Fatalf("expected jane.doe2, got %s", second.User.Username)
	}
}

func TestExchangeProviderTokenRequiresAccessToken(t *testing.T) {
	db := openTestDatabase(t)
	provider := newStubProvider()
	service := newTestService(t, newTestAccountStore(t, db), provider, Options{}, nil)

	for _, accessToken := range []string{"", "   "} {
		_, err := service.ExchangeProviderToken(context.Background(), accessToken)
		requireKind(t, err, KindMissingCredential)
	}
	if calls := provider.calls.Load(); calls != 0 {
		t.Fatalf("expected no provider calls, got %d", calls)
	}
}

func TestExchangeProviderTokenReportsProviderFailures(t *testing.T) {
	cases := map[string]error{
		"rejected":    auth.ErrProviderRejected,
		"unavailable": auth.ErrProviderUnavailable,
		"unexpected":  errors.New("boom"),
	}
	for name, providerErr := range cases {
		t.Run(name, func(t *testing.T) {
			db := openTestDatabase(t)
			provider := newStubProvider()
			provider.err = providerErr
			service := newTestService(t, newTestAccountStore(t, db), provider, Options{}, nil)

			_, err := service.ExchangeProviderToken(context.Background(), "token")
			requireKind(t, err, KindInvalidCredential)
			if users := countRows(t, db, &accounts.User{}); users != 0 {
				t.Fatalf("expected no users, got %d", users)
			}
		})
	}
}

func TestExchangeProviderTokenRejectsIncompleteProfiles(t *testing.T) {
	profiles := map[string]auth.ProviderProfile{
		"missing-sub":   {Email: "sample@example.com"},
		"missing-email": {SubjectID: "G123"},
	}
	for name, profile := range profiles {
		t.Run(name, func(t *testing.T) {
			db := openTestDatabase(t)
			provider := newStubProvider()
			provider.register("token", profile)
			service := newTestService(t, newTestAccountStore(t, db), provider, Options{}, nil)

			_, err := service.ExchangeProviderToken(context.Background(), "token")
			requireKind(t, err, KindIncompleteProfile)
			for _, model := range []interface{}{&accounts.User{}, &accounts.SocialAccount{}, &accounts.BearerToken{}} {
				if rows := countRows(t, db, model); rows != 0 {
					t.Fatalf("expected no records for %T, got %d", model, rows)
				}
			}
		})
	}

	t.Run("provider-reported", func(t *testing.T) {
		db := openTestDatabase(t)
		provider := newStubProvider()
		provider.err = auth.ErrIncompleteProfile
		service := newTestService(t, newTestAccountStore(t, db), provider, Options{}, nil)
		_, err := service.ExchangeProviderToken(context.Background(), "token")
		requireKind(t, err, KindIncompleteProfile)
	})
}

func TestExchangeProviderTokenConcurrentFirstLogins(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G123", Email: "sample@example.com"})
	service := newTestService(t, store, provider, Options{}, nil)

	const callers = 8
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for index := 0; index < callers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index], errs[index] = service.ExchangeProviderToken(context.Background(), "token")
		}(index)
	}
	wg.Wait()

	for index := 0; index < callers; index++ {
		if errs[index] != nil {
			t.Fatalf("caller %d failed: %v", index, errs[index])
		}
		if results[index].User.ID != results[0].User.ID || results[index].Token != results[0].Token {
			t.Fatalf("caller %d resolved a different account: %#v", index, results[index])
		}
	}
	if links := countRows(t, db, &accounts.SocialAccount{}); links != 1 {
		t.Fatalf("expected exactly one social account, got %d", links)
	}
	if users := countRows(t, db, &accounts.User{}); users != 1 {
		t.Fatalf("expected exactly one user, got %d", users)
	}
}

// racingStore links the identity to a competing user right before the
// service inserts its own link.
type racingStore struct {
	*accounts.Store
	winner accounts.User
}

func (s *racingStore) CreateSocialAccount(ctx context.Context, account *accounts.SocialAccount) error {
	competing := accounts.SocialAccount{
		UserID:    s.winner.ID,
		Provider:  account.Provider,
		UID:       account.UID,
		ExtraData: "{}",
	}
	if err := s.Store.CreateSocialAccount(ctx, &competing); err != nil {
		return err
	}
	return s.Store.CreateSocialAccount(ctx, account)
}

func TestExchangeProviderTokenRetriesLostLinkRaceAsLookup(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	winner := seedUser(t, store, "winner", "winner@example.com")

	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G123", Email: "sample@example.com"})
	service := newTestService(t, &racingStore{Store: store, winner: winner}, provider, Options{}, nil)

	result, err := service.ExchangeProviderToken(context.Background(), "token")
	if err != nil {
		t.Fatalf("expected the lost race to resolve, got %v", err)
	}
	if result.User.ID != winner.ID {
		t.Fatalf("expected the winning user %d, got %d", winner.ID, result.User.ID)
	}
	if result.UserCreated {
		t.Fatalf("expected no user to be reported as created")
	}
	if users := countRows(t, db, &accounts.User{}); users != 1 {
		t.Fatalf("expected the orphaned user to be removed, got %d users", users)
	}
}

// usernameRaceStore claims the candidate username right before the service
// inserts it, for the first conflicts calls.
type usernameRaceStore struct {
	*accounts.Store
	conflicts int
}

func (s *usernameRaceStore) CreateUser(ctx context.Context, user *accounts.User) error {
	if s.conflicts > 0 {
		s.conflicts--
		competing := accounts.User{Username: user.Username, Email: "racer@example.com", IsActive: true}
		if err := s.Store.CreateUser(ctx, &competing); err != nil {
			return err
		}
	}
	return s.Store.CreateUser(ctx, user)
}

func TestExchangeProviderTokenRetriesUsernameConflictWithNextSuffix(t *testing.T) {
	db := openTestDatabase(t)
	store := &usernameRaceStore{Store: newTestAccountStore(t, db), conflicts: 1}
	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	service := newTestService(t, store, provider, Options{}, nil)

	result, err := service.ExchangeProviderToken(context.Background(), "token")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if result.User.Username != "jane1" {
		t.Fatalf("expected jane1 after the conflict, got %s", result.User.Username)
	}
}

func TestExchangeProviderTokenGivesUpAfterRepeatedUsernameConflicts(t *testing.T) {
	db := openTestDatabase(t)
	store := &usernameRaceStore{Store: newTestAccountStore(t, db), conflicts: 2}
	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	core, logs := observer.New(zap.ErrorLevel)
	service := newTestService(t, store, provider, Options{}, zap.New(core))

	_, err := service.ExchangeProviderToken(context.Background(), "token")
	requireKind(t, err, KindInternalFailure)
	if links := countRows(t, db, &accounts.SocialAccount{}); links != 0 {
		t.Fatalf("expected no social account, got %d", links)
	}
	if logs.FilterMessage("identity exchange failed").Len() != 1 {
		t.Fatalf("expected the failure to be logged, got %d entries", logs.Len())
	}
}

type exhaustedStore struct {
	*accounts.Store
}

func (exhaustedStore) UsernameTaken(context.Context, string) (bool, error) {
	return true, nil
}

func TestExchangeProviderTokenReportsUsernameExhaustion(t *testing.T) {
	db := openTestDatabase(t)
	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	service := newTestService(t, exhaustedStore{Store: newTestAccountStore(t, db)}, provider, Options{}, nil)

	_, err := service.ExchangeProviderToken(context.Background(), "token")
	requireKind(t, err, KindUsernameExhausted)
	if KindUsernameExhausted.IsClientError() {
		t.Fatalf("expected username exhaustion to be a server side failure")
	}
}

func TestExchangeProviderTokenCreatesSeparateAccountForSharedEmailByDefault(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	existing := seedUser(t, store, "jane", "jane@example.com")

	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	service := newTestService(t, store, provider, Options{}, nil)

	result, err := service.ExchangeProviderToken(context.Background(), "token")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if result.User.ID == existing.ID || result.User.Username != "jane1" {
		t.Fatalf("expected a separate jane1 account, got %#v", result.User)
	}
	if users := countRows(t, db, &accounts.User{}); users != 2 {
		t.Fatalf("expected two users, got %d", users)
	}
}

func TestExchangeProviderTokenLinksExistingEmailWhenEnabled(t *testing.T) {
	db := openTestDatabase(t)
	store := newTestAccountStore(t, db)
	existing := seedUser(t, store, "jane", "Jane@Example.com")

	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	service := newTestService(t, store, provider, Options{LinkExistingByEmail: true}, nil)

	result, err := service.ExchangeProviderToken(context.Background(), "token")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if result.User.ID != existing.ID || result.UserCreated {
		t.Fatalf("expected the existing account to be linked, got %#v", result)
	}
	if users := countRows(t, db, &accounts.User{}); users != 1 {
		t.Fatalf("expected one user, got %d", users)
	}
	link, err := store.FindSocialAccount(context.Background(), accounts.ProviderGoogle, "G1")
	if err != nil || link.UserID != existing.ID {
		t.Fatalf("expected link to existing user, got %#v %v", link, err)
	}
}

func TestExchangeProviderTokenProfileRefresh(t *testing.T) {
	for _, refresh := range []bool{false, true} {
		name := "preserve"
		if refresh {
			name = "refresh"
		}
		t.Run(name, func(t *testing.T) {
			db := openTestDatabase(t)
			store := newTestAccountStore(t, db)
			provider := newStubProvider()
			provider.register("first", auth.ProviderProfile{SubjectID: "G1", Email: "old@example.com", GivenName: "Old"})
			provider.register("second", auth.ProviderProfile{
				SubjectID: "G1",
				Email:     "new@example.com",
				GivenName: "New",
				RawClaims: []byte(`{"sub":"G1","email":"new@example.com"}`),
			})
			service := newTestService(t, store, provider, Options{RefreshProfileOnLogin: refresh}, nil)

			if _, err := service.ExchangeProviderToken(context.Background(), "first"); err != nil {
				t.Fatalf("first exchange failed: %v", err)
			}
			result, err := service.ExchangeProviderToken(context.Background(), "second")
			if err != nil {
				t.Fatalf("second exchange failed: %v", err)
			}

			expectedEmail, expectedName := "old@example.com", "Old"
			if refresh {
				expectedEmail, expectedName = "new@example.com", "New"
			}
			if result.User.Email != expectedEmail || result.User.FirstName != expectedName {
				t.Fatalf("expected %s/%s, got %s/%s", expectedEmail, expectedName, result.User.Email, result.User.FirstName)
			}
			if result.User.Username != "old" {
				t.Fatalf("expected username to stay stable, got %s", result.User.Username)
			}
			link, err := store.FindSocialAccount(context.Background(), accounts.ProviderGoogle, "G1")
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if refreshed := strings.Contains(link.ExtraData, "new@example.com"); refreshed != refresh {
				t.Fatalf("expected claims refresh=%t, got %s", refresh, link.ExtraData)
			}
		})
	}
}

type failingStore struct {
	*accounts.Store
}

func (failingStore) FindSocialAccount(context.Context, string, string) (accounts.SocialAccount, error) {
	return accounts.SocialAccount{}, errors.New("database unavailable")
}

func TestExchangeProviderTokenHidesStoreFailures(t *testing.T) {
	db := openTestDatabase(t)
	provider := newStubProvider()
	provider.register("token", auth.ProviderProfile{SubjectID: "G1", Email: "jane@example.com"})
	core, logs := observer.New(zap.ErrorLevel)
	service := newTestService(t, failingStore{Store: newTestAccountStore(t, db)}, provider, Options{}, zap.New(core))

	_, err := service.ExchangeProviderToken(context.Background(), "token")
	requireKind(t, err, KindInternalFailure)

	entries := logs.FilterMessage("identity exchange failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	if reason := entries[0].ContextMap()["reason"]; reason != "resolve_user" {
		t.Fatalf("unexpected reason %v", reason)
	}
}

func TestNewServiceValidatesCollaborators(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); KindOf(err) != KindInternalFailure {
		t.Fatalf("expected missing store to fail, got %v", err)
	}
	db := openTestDatabase(t)
	if _, err := NewService(ServiceConfig{Store: newTestAccountStore(t, db)}); err == nil {
		t.Fatalf("expected missing provider to fail")
	}
	if _, err := NewService(ServiceConfig{Store: newTestAccountStore(t, db), Provider: newStubProvider()}); err == nil {
		t.Fatalf("expected missing session issuer to fail")
	}
}
