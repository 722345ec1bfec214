package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/database/constraint"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("accounts: not found")
	// ErrConflict indicates a unique constraint rejected the write.
	ErrConflict = errors.New("accounts: conflict")
	// ErrInactiveUser indicates the credential belongs to a deactivated account.
	ErrInactiveUser = errors.New("accounts: user inactive")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew          = "accounts.store.new"
	opFindSocialAccount = "accounts.find_social_account"
	opCreateUser        = "accounts.create_user"
	opCreateSocial      = "accounts.create_social_account"
	opGetOrCreateToken  = "accounts.get_or_create_token"
	opUserByToken       = "accounts.user_by_token"
	opUpdateProfile     = "accounts.update_profile"
	opListUsers         = "accounts.list_users"
	opBulkUpdate        = "accounts.bulk_update"
)

// ServiceError carries a stable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of the account store.
type StoreConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	Logger       *zap.Logger
	KeyGenerator func() (string, error)
}

// Store persists users, their social identities and bearer tokens.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
	newKey func() (string, error)
}

// NewStore validates the configuration and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	keyGenerator := cfg.KeyGenerator
	if keyGenerator == nil {
		keyGenerator = GenerateTokenKey
	}
	return &Store{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
		newKey: keyGenerator,
	}, nil
}

// Now returns the store clock reading in UTC.
func (s *Store) Now() time.Time {
	return s.clock().UTC()
}

// FindSocialAccount returns the link for provider and uid, or ErrNotFound.
func (s *Store) FindSocialAccount(ctx context.Context, provider, uid string) (SocialAccount, error) {
	var account SocialAccount
	err := s.db.WithContext(ctx).
		Where("provider = ? AND uid = ?", provider, uid).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SocialAccount{}, ErrNotFound
	}
	if err != nil {
		s.logError(opFindSocialAccount, "query_failed", err, zap.String("provider", provider))
		return SocialAccount{}, newServiceError(opFindSocialAccount, "query_failed", err)
	}
	return account, nil
}

// UsernameTaken reports whether any user already holds username.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindUserByEmail returns the oldest user registered with email, or ErrNotFound.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("id").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UserByID loads a user by primary key, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UserByUsername loads a user by username, or ErrNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts user. A username collision is reported as ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = s.Now()
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if constraint.IsUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", ErrConflict, user.Username)
		}
		s.logError(opCreateUser, "insert_failed", err, zap.String("username", user.Username))
		return newServiceError(opCreateUser, "insert_failed", err)
	}
	return nil
}

// CreateSocialAccount inserts a provider link. An existing (provider, uid) pair is reported as ErrConflict.
func (s *Store) CreateSocialAccount(ctx context.Context, account *SocialAccount) error {
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if constraint.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s account already linked", ErrConflict, account.Provider)
		}
		s.logError(opCreateSocial, "insert_failed", err, zap.String("provider", account.Provider))
		return newServiceError(opCreateSocial, "insert_failed", err)
	}
	return nil
}

// DeleteUser removes a user row. It is used to roll back a user whose provider link lost a race.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{}).Error
}

// RefreshSocialAccount stores the latest provider claims and login time on an existing link.
func (s *Store) RefreshSocialAccount(ctx context.Context, id uint, extraData string) error {
	return s.db.WithContext(ctx).Model(&SocialAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"extra_data": extraData,
			"last_login": s.Now(),
		}).Error
}

// ApplyProviderNames overwrites the names and email of a user with provider supplied values.
// Empty values leave the stored field untouched.
func (s *Store) ApplyProviderNames(ctx context.Context, userID uint, email, firstName, lastName string) error {
	updates := map[string]interface{}{}
	if email != "" {
		updates["email"] = email
	}
	if firstName != "" {
		updates["first_name"] = firstName
	}
	if lastName != "" {
		updates["last_name"] = lastName
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates).Error
}

// RecordLogin stamps the user's last login time.
func (s *Store) RecordLogin(ctx context.Context, userID uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("last_login", at.UTC()).Error
}

// GetOrCreateToken returns the user's bearer token, minting one on first use.
// The boolean reports whether a token was created by this call.
func (s *Store) GetOrCreateToken(ctx context.Context, userID uint) (BearerToken, bool, error) {
	var token BearerToken
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&token).Error
	if err == nil {
		return token, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opGetOrCreateToken, "query_failed", err, zap.Uint("user_id", userID))
		return BearerToken{}, false, newServiceError(opGetOrCreateToken, "query_failed", err)
	}

	key, err := s.newKey()
	if err != nil {
		s.logError(opGetOrCreateToken, "key_generation_failed", err, zap.Uint("user_id", userID))
		return BearerToken{}, false, newServiceError(opGetOrCreateToken, "key_generation_failed", err)
	}
	token = BearerToken{Key: key, UserID: userID, CreatedAt: s.Now()}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		if !constraint.IsUniqueViolation(err) {
			s.logError(opGetOrCreateToken, "insert_failed", err, zap.Uint("user_id", userID))
			return BearerToken{}, false, newServiceError(opGetOrCreateToken, "insert_failed", err)
		}
		// another request minted the token first
		var existing BearerToken
		if reloadErr := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&existing).Error; reloadErr != nil {
			s.logError(opGetOrCreateToken, "reload_failed", reloadErr, zap.Uint("user_id", userID))
			return BearerToken{}, false, newServiceError(opGetOrCreateToken, "reload_failed", reloadErr)
		}
		return existing, false, nil
	}
	return token, true, nil
}

// UserByToken resolves an active user from a bearer token key.
func (s *Store) UserByToken(ctx context.Context, key string) (User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return User{}, ErrNotFound
	}
	var user User
	err := s.db.WithContext(ctx).
		Joins("JOIN auth_tokens ON auth_tokens.user_id = users.id").
		Where("auth_tokens.token_key = ?", key).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		s.logError(opUserByToken, "query_failed", err)
		return User{}, newServiceError(opUserByToken, "query_failed", err)
	}
	if !user.IsActive {
		return User{}, ErrInactiveUser
	}
	return user, nil
}

// RevokeToken deletes the user's bearer token, returning its key if one existed.
func (s *Store) RevokeToken(ctx context.Context, userID uint) (string, error) {
	var token BearerToken
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Where("token_key = ?", token.Key).Delete(&BearerToken{}).Error; err != nil {
		return "", err
	}
	return token.Key, nil
}

// UpdateProfile applies the non-nil fields of update and returns the stored user.
func (s *Store) UpdateProfile(ctx context.Context, userID uint, update ProfileUpdate) (User, error) {
	updates := map[string]interface{}{}
	if update.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*update.LastName)
	}
	if update.Email != nil {
		updates["email"] = strings.TrimSpace(*update.Email)
	}
	if update.Location != nil {
		updates["location"] = strings.TrimSpace(*update.Location)
	}
	if update.Latitude != nil {
		updates["latitude"] = *update.Latitude
	}
	if update.Longitude != nil {
		updates["longitude"] = *update.Longitude
	}
	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			s.logError(opUpdateProfile, "update_failed", result.Error, zap.Uint("user_id", userID))
			return User{}, newServiceError(opUpdateProfile, "update_failed", result.Error)
		}
	}
	return s.UserByID(ctx, userID)
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("accounts store error", attrs...)
}
