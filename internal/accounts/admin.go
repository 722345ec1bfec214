package accounts

import (
	"context"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	activityWindow    = 30 * 24 * time.Hour
	recentJoinWindow  = 7 * 24 * time.Hour
	activityActive    = "active"
	activityInactive  = "inactive"
	activityRecent    = "recent"
	userSearchParam   = "search"
	userActivityParam = "activity"
)

// UserFilters lists the admin filters applicable to user listings, in evaluation order.
func UserFilters() []listing.Filter {
	return []listing.Filter{
		{
			Parameter: userActivityParam,
			Title:     "User Activity",
			Lookups: []listing.Lookup{
				{Value: activityActive, Label: "Active Users"},
				{Value: activityInactive, Label: "Inactive Users"},
				{Value: activityRecent, Label: "Recently Joined"},
			},
			Build: activityScope,
		},
		listing.BoolFilter("is_active", "Active", "is_active"),
		listing.BoolFilter("is_staff", "Staff status", "is_staff"),
		listing.BoolFilter("is_superuser", "Superuser status", "is_superuser"),
		{
			Parameter: "location",
			Title:     "Location",
			Build: func(value string, _ time.Time) (listing.Scope, bool) {
				return func(db *gorm.DB) *gorm.DB {
					return db.Where("location = ?", value)
				}, true
			},
		},
		{
			Parameter: userSearchParam,
			Title:     "Search",
			Build: func(value string, _ time.Time) (listing.Scope, bool) {
				return listing.SearchScope(value, "username", "email", "first_name", "last_name", "location"), true
			},
		},
	}
}

func activityScope(value string, now time.Time) (listing.Scope, bool) {
	switch value {
	case activityActive:
		cutoff := now.Add(-activityWindow)
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("last_login >= ?", cutoff)
		}, true
	case activityInactive:
		cutoff := now.Add(-activityWindow)
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("last_login < ?", cutoff)
		}, true
	case activityRecent:
		cutoff := now.Add(-recentJoinWindow)
		return func(db *gorm.DB) *gorm.DB {
			return db.Where("date_joined >= ?", cutoff)
		}, true
	default:
		return nil, false
	}
}

// UserPage is one page of an admin user listing.
type UserPage struct {
	Users []User
	Total int64
	Page  listing.Page
}

// ListUsers returns users matching params, newest first.
func (s *Store) ListUsers(ctx context.Context, params listing.Params, page listing.Page) (UserPage, error) {
	scopes := listing.Scopes(UserFilters(), params, s.Now())
	query := listing.Apply(s.db.WithContext(ctx).Model(&User{}), scopes)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		s.logError(opListUsers, "count_failed", err)
		return UserPage{}, newServiceError(opListUsers, "count_failed", err)
	}

	var users []User
	if err := page.Scope()(query.Session(&gorm.Session{})).
		Order("date_joined DESC").
		Order("id DESC").
		Find(&users).Error; err != nil {
		s.logError(opListUsers, "query_failed", err)
		return UserPage{}, newServiceError(opListUsers, "query_failed", err)
	}
	return UserPage{Users: users, Total: total, Page: page}, nil
}

// SetActive toggles the active flag on the given users and returns the number updated.
func (s *Store) SetActive(ctx context.Context, userIDs []uint, active bool) (int64, error) {
	return s.bulkUpdate(ctx, userIDs, "is_active", active)
}

// SetStaff toggles the staff flag on the given users and returns the number updated.
func (s *Store) SetStaff(ctx context.Context, userIDs []uint, staff bool) (int64, error) {
	return s.bulkUpdate(ctx, userIDs, "is_staff", staff)
}

func (s *Store) bulkUpdate(ctx context.Context, userIDs []uint, column string, value bool) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&User{}).Where("id IN ?", userIDs).Update(column, value)
	if result.Error != nil {
		s.logError(opBulkUpdate, "update_failed", result.Error, zap.String("column", column))
		return 0, newServiceError(opBulkUpdate, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}
