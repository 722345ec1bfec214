package admin

import (
	"context"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
)

const (
	recentEventWindow = 7 * 24 * time.Hour
	topCreatorLimit   = 10
)

// Dashboard holds the headline site counters.
type Dashboard struct {
	TotalUsers   int64 `json:"total_users"`
	TotalEvents  int64 `json:"total_events"`
	ActiveEvents int64 `json:"active_events"`
	RecentEvents int64 `json:"recent_events"`
}

// MonthCount is the number of users who joined in a calendar month, across years.
type MonthCount struct {
	Month int   `json:"month"`
	Count int64 `json:"count"`
}

// TypeCount is the number of events of one type.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// CreatorCount is the number of events a user created.
type CreatorCount struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	EventCount int64  `json:"event_count"`
}

// QuickStats holds the detailed statistics view.
type QuickStats struct {
	UsersByMonth     []MonthCount   `json:"users_by_month"`
	EventsByType     []TypeCount    `json:"events_by_type"`
	TopEventCreators []CreatorCount `json:"top_event_creators"`
}

// Dashboard counts users and events. Recent events started within the last week or later.
func (r *Registry) Dashboard(ctx context.Context) (Dashboard, error) {
	var dashboard Dashboard
	db := r.db.WithContext(ctx)
	if err := db.Model(&accounts.User{}).Count(&dashboard.TotalUsers).Error; err != nil {
		return Dashboard{}, err
	}
	if err := db.Model(&events.Event{}).Count(&dashboard.TotalEvents).Error; err != nil {
		return Dashboard{}, err
	}
	if err := db.Model(&events.Event{}).Where("is_active = ?", true).Count(&dashboard.ActiveEvents).Error; err != nil {
		return Dashboard{}, err
	}
	cutoff := r.clock().UTC().Add(-recentEventWindow)
	if err := db.Model(&events.Event{}).Where("start_date >= ?", cutoff).Count(&dashboard.RecentEvents).Error; err != nil {
		return Dashboard{}, err
	}
	return dashboard, nil
}

// QuickStats aggregates registrations per month, events per type and the most active creators.
func (r *Registry) QuickStats(ctx context.Context) (QuickStats, error) {
	db := r.db.WithContext(ctx)

	var joined []time.Time
	if err := db.Model(&accounts.User{}).Pluck("date_joined", &joined).Error; err != nil {
		return QuickStats{}, err
	}
	perMonth := make(map[time.Month]int64)
	for _, at := range joined {
		perMonth[at.UTC().Month()]++
	}
	usersByMonth := make([]MonthCount, 0, len(perMonth))
	for month := time.January; month <= time.December; month++ {
		if count, ok := perMonth[month]; ok {
			usersByMonth = append(usersByMonth, MonthCount{Month: int(month), Count: count})
		}
	}

	eventsByType := []TypeCount{}
	if err := db.Model(&events.Event{}).
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Order("event_type").
		Scan(&eventsByType).Error; err != nil {
		return QuickStats{}, err
	}

	topCreators := []CreatorCount{}
	if err := db.Table("users").
		Select("users.id AS user_id, users.username AS username, COUNT(events.id) AS event_count").
		Joins("JOIN events ON events.created_by_id = users.id").
		Group("users.id, users.username").
		Order("event_count DESC").
		Order("users.id").
		Limit(topCreatorLimit).
		Scan(&topCreators).Error; err != nil {
		return QuickStats{}, err
	}

	return QuickStats{
		UsersByMonth:     usersByMonth,
		EventsByType:     eventsByType,
		TopEventCreators: topCreators,
	}, nil
}
