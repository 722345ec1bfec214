package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	errMissingAccessToken  = errors.New("access token is required")
	errMissingStore        = errors.New("account store is required")
	errMissingFetcher      = errors.New("profile fetcher is required")
	errMissingSessions     = errors.New("session issuer is required")
	errUsernameExhausted   = errors.New("no free username candidate")
	errLinkedUserMissing   = errors.New("social account references a missing user")
	errUnexpectedFlightVal = errors.New("unexpected singleflight value")
	noOpLogger             = zap.NewNop()
)

// AccountStore is the persistence surface the linking flow depends on.
type AccountStore interface {
	FindSocialAccount(ctx context.Context, provider, uid string) (accounts.SocialAccount, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (accounts.User, error)
	UserByID(ctx context.Context, id uint) (accounts.User, error)
	CreateUser(ctx context.Context, user *accounts.User) error
	CreateSocialAccount(ctx context.Context, account *accounts.SocialAccount) error
	DeleteUser(ctx context.Context, id uint) error
	RefreshSocialAccount(ctx context.Context, id uint, extraData string) error
	ApplyProviderNames(ctx context.Context, userID uint, email, firstName, lastName string) error
	RecordLogin(ctx context.Context, userID uint, at time.Time) error
	GetOrCreateToken(ctx context.Context, userID uint) (accounts.BearerToken, bool, error)
}

// ProfileFetcher exchanges a provider access token for profile claims.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (auth.ProviderProfile, error)
}

// SessionIssuer mints the session credential established on login.
type SessionIssuer interface {
	IssueSession(ctx context.Context, subject auth.SessionSubject) (string, time.Time, error)
}

// Options toggles behavior left open by the product owners. Both default to off.
type Options struct {
	// LinkExistingByEmail attaches a new provider identity to the oldest user
	// holding the same email instead of creating a separate account.
	LinkExistingByEmail bool
	// RefreshProfileOnLogin writes the latest provider claims and names back
	// on every login through an already linked identity.
	RefreshProfileOnLogin bool
}

// ServiceConfig describes the collaborators of the linking service.
type ServiceConfig struct {
	Store    AccountStore
	Provider ProfileFetcher
	Sessions SessionIssuer
	Options  Options
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Result is the outcome of a successful token exchange.
type Result struct {
	Token            string
	User             accounts.Profile
	SessionToken     string
	SessionExpiresAt time.Time
	// UserCreated reports whether this exchange registered a new account.
	UserCreated bool
	// TokenCreated reports whether this exchange minted the bearer token.
	TokenCreated bool
}

// Service links provider identities to local accounts and issues credentials.
type Service struct {
	store    AccountStore
	provider ProfileFetcher
	sessions SessionIssuer
	options  Options
	clock    func() time.Time
	logger   *zap.Logger
	flights  singleflight.Group
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newError(KindInternalFailure, errMissingStore)
	}
	if cfg.Provider == nil {
		return nil, newError(KindInternalFailure, errMissingFetcher)
	}
	if cfg.Sessions == nil {
		return nil, newError(KindInternalFailure, errMissingSessions)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:    cfg.Store,
		provider: cfg.Provider,
		sessions: cfg.Sessions,
		options:  cfg.Options,
		clock:    clock,
		logger:   logger,
	}, nil
}

type resolution struct {
	user    accounts.User
	created bool
}

// ExchangeProviderToken verifies accessToken with the identity provider,
// resolves or registers the matching local account, establishes a session
// and returns the account's bearer token.
func (s *Service) ExchangeProviderToken(ctx context.Context, accessToken string) (Result, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Result{}, newError(KindMissingCredential, errMissingAccessToken)
	}

	profile, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		if errors.Is(err, auth.ErrIncompleteProfile) {
			return Result{}, newError(KindIncompleteProfile, err)
		}
		s.logger.Debug("provider rejected access token", zap.Error(err))
		return Result{}, newError(KindInvalidCredential, err)
	}
	if strings.TrimSpace(profile.SubjectID) == "" || strings.TrimSpace(profile.Email) == "" {
		return Result{}, newError(KindIncompleteProfile, auth.ErrIncompleteProfile)
	}
	if profile.Provider == "" {
		profile.Provider = accounts.ProviderGoogle
	}

	// The shared lookup must not inherit the starting caller's cancellation.
	flightKey := profile.Provider + ":" + profile.SubjectID
	ranHere := false
	flight := s.flights.DoChan(flightKey, func() (interface{}, error) {
		ranHere = true
		return s.resolveUser(context.WithoutCancel(ctx), profile)
	})
	var outcome singleflight.Result
	select {
	case <-ctx.Done():
		return Result{}, s.internal("resolve_user", ctx.Err(), zap.String("provider", profile.Provider))
	case outcome = <-flight:
	}
	if outcome.Err != nil {
		return Result{}, s.internal("resolve_user", outcome.Err, zap.String("provider", profile.Provider))
	}
	resolved, ok := outcome.Val.(resolution)
	if !ok {
		return Result{}, s.internal("resolve_user", errUnexpectedFlightVal)
	}
	// Only the caller that ran the lookup reports the registration.
	resolved.created = resolved.created && ranHere

	return s.issueCredentials(ctx, resolved)
}

func (s *Service) issueCredentials(ctx context.Context, resolved resolution) (Result, error) {
	user := resolved.user
	loginAt := s.clock().UTC()
	if err := s.store.RecordLogin(ctx, user.ID, loginAt); err != nil {
		return Result{}, s.internal("record_login", err, zap.Uint("user_id", user.ID))
	}
	user.LastLogin = &loginAt

	sessionToken, sessionExpiry, err := s.sessions.IssueSession(ctx, auth.SessionSubject{UserID: user.ID, Username: user.Username})
	if err != nil {
		return Result{}, s.internal("issue_session", err, zap.Uint("user_id", user.ID))
	}

	token, tokenCreated, err := s.store.GetOrCreateToken(ctx, user.ID)
	if err != nil {
		return Result{}, s.internal("issue_token", err, zap.Uint("user_id", user.ID))
	}

	return Result{
		Token:            token.Key,
		User:             accounts.ProfileOf(user),
		SessionToken:     sessionToken,
		SessionExpiresAt: sessionExpiry,
		UserCreated:      resolved.created,
		TokenCreated:     tokenCreated,
	}, nil
}

func (s *Service) resolveUser(ctx context.Context, profile auth.ProviderProfile) (resolution, error) {
	link, err := s.store.FindSocialAccount(ctx, profile.Provider, profile.SubjectID)
	if err == nil {
		return s.linkedUser(ctx, link, profile)
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return resolution{}, err
	}

	if s.options.LinkExistingByEmail {
		existing, lookupErr := s.store.FindUserByEmail(ctx, profile.Email)
		switch {
		case lookupErr == nil:
			return s.attachIdentity(ctx, existing, profile)
		case !errors.Is(lookupErr, accounts.ErrNotFound):
			return resolution{}, lookupErr
		}
	}

	return s.registerUser(ctx, profile)
}

// linkedUser loads the account behind an existing provider link.
func (s *Service) linkedUser(ctx context.Context, link accounts.SocialAccount, profile auth.ProviderProfile) (resolution, error) {
	if s.options.RefreshProfileOnLogin {
		if err := s.store.RefreshSocialAccount(ctx, link.ID, extraData(profile)); err != nil {
			return resolution{}, err
		}
		if err := s.store.ApplyProviderNames(ctx, link.UserID, profile.Email, profile.GivenName, profile.FamilyName); err != nil {
			return resolution{}, err
		}
	}
	user, err := s.store.UserByID(ctx, link.UserID)
	if errors.Is(err, accounts.ErrNotFound) {
		return resolution{}, errLinkedUserMissing
	}
	if err != nil {
		return resolution{}, err
	}
	return resolution{user: user}, nil
}

// attachIdentity links profile to an account found by email.
func (s *Service) attachIdentity(ctx context.Context, user accounts.User, profile auth.ProviderProfile) (resolution, error) {
	link := accounts.SocialAccount{
		UserID:    user.ID,
		Provider:  profile.Provider,
		UID:       profile.SubjectID,
		ExtraData: extraData(profile),
	}
	err := s.store.CreateSocialAccount(ctx, &link)
	if errors.Is(err, accounts.ErrConflict) {
		return s.retryAsLookup(ctx, profile, err)
	}
	if err != nil {
		return resolution{}, err
	}
	s.logger.Info("linked provider identity to existing user",
		zap.String("provider", profile.Provider),
		zap.Uint("user_id", user.ID),
	)
	return resolution{user: user}, nil
}

// registerUser creates a user with a derived username and links profile to it.
func (s *Service) registerUser(ctx context.Context, profile auth.ProviderProfile) (resolution, error) {
	password, err := accounts.UnusablePassword()
	if err != nil {
		return resolution{}, err
	}

	base := usernameBase(profile.Email)
	suffix := 0
	usernameRetried := false
	var user accounts.User
	for {
		username, candidate, err := freeUsername(ctx, s.store, base, suffix)
		if err != nil {
			return resolution{}, err
		}
		user = accounts.User{
			Username:     username,
			Email:        profile.Email,
			FirstName:    profile.GivenName,
			LastName:     profile.FamilyName,
			PasswordHash: password,
			IsActive:     true,
			DateJoined:   s.clock().UTC(),
		}
		err = s.store.CreateUser(ctx, &user)
		if err == nil {
			break
		}
		if !errors.Is(err, accounts.ErrConflict) {
			return resolution{}, err
		}
		if usernameRetried {
			return resolution{}, newError(KindConflictRetryable, err)
		}
		// a concurrent registration claimed the candidate
		usernameRetried = true
		suffix = candidate + 1
	}

	link := accounts.SocialAccount{
		UserID:    user.ID,
		Provider:  profile.Provider,
		UID:       profile.SubjectID,
		ExtraData: extraData(profile),
	}
	err = s.store.CreateSocialAccount(ctx, &link)
	if errors.Is(err, accounts.ErrConflict) {
		if deleteErr := s.store.DeleteUser(ctx, user.ID); deleteErr != nil {
			s.logError("rollback_user", deleteErr, zap.Uint("user_id", user.ID))
		}
		return s.retryAsLookup(ctx, profile, err)
	}
	if err != nil {
		if deleteErr := s.store.DeleteUser(ctx, user.ID); deleteErr != nil {
			s.logError("rollback_user", deleteErr, zap.Uint("user_id", user.ID))
		}
		return resolution{}, err
	}

	s.logger.Info("registered user from provider identity",
		zap.String("provider", profile.Provider),
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
	)
	return resolution{user: user, created: true}, nil
}

// retryAsLookup resolves a lost link race through the identity that won it.
func (s *Service) retryAsLookup(ctx context.Context, profile auth.ProviderProfile, conflict error) (resolution, error) {
	link, err := s.store.FindSocialAccount(ctx, profile.Provider, profile.SubjectID)
	if err != nil {
		return resolution{}, newError(KindConflictRetryable, errors.Join(conflict, err))
	}
	return s.linkedUser(ctx, link, profile)
}

// internal logs err and converts it to an internal failure unless it already
// carries a reportable kind.
func (s *Service) internal(step string, err error, fields ...zap.Field) error {
	var identityErr *Error
	if errors.As(err, &identityErr) && identityErr.Kind.IsClientError() {
		return identityErr
	}
	s.logError(step, err, fields...)
	if identityErr != nil && (identityErr.Kind == KindUsernameExhausted || identityErr.Kind == KindInternalFailure) {
		return identityErr
	}
	return newError(KindInternalFailure, err)
}

func (s *Service) logError(step string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", "identity.exchange_provider_token"),
		zap.String("reason", step),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("identity exchange failed", attrs...)
}

func extraData(profile auth.ProviderProfile) string {
	if len(profile.RawClaims) == 0 {
		return "{}"
	}
	return string(profile.RawClaims)
}
