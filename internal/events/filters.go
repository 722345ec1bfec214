package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"gorm.io/gorm"
)

const maxUpcomingDays = 365

// Filters lists the filters applicable to event listings, in evaluation order.
func Filters() []listing.Filter {
	typeLookups := make([]listing.Lookup, 0, len(typeLabels))
	for _, entry := range typeLabels {
		typeLookups = append(typeLookups, listing.Lookup{Value: entry.Value, Label: entry.Label})
	}
	return []listing.Filter{
		{
			Parameter: "event_type",
			Title:     "Event Type",
			Lookups:   typeLookups,
			Build: func(value string, _ time.Time) (listing.Scope, bool) {
				if !ValidType(value) {
					return nil, false
				}
				return func(db *gorm.DB) *gorm.DB {
					return db.Where("events.event_type = ?", value)
				}, true
			},
		},
		listing.BoolFilter("is_active", "Active", "events.is_active"),
		{
			Parameter: "upcoming",
			Title:     "Starts within",
			Lookups: []listing.Lookup{
				{Value: "7", Label: "Next 7 days"},
				{Value: "30", Label: "Next 30 days"},
			},
			Build: upcomingScope,
		},
		{
			Parameter: "created_by",
			Title:     "Creator",
			Build: func(value string, _ time.Time) (listing.Scope, bool) {
				creatorID, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, false
				}
				return func(db *gorm.DB) *gorm.DB {
					return db.Where("events.created_by_id = ?", creatorID)
				}, true
			},
		},
		{
			Parameter: "search",
			Title:     "Search",
			Build:     searchScope,
		},
	}
}

func upcomingScope(value string, now time.Time) (listing.Scope, bool) {
	days, err := strconv.Atoi(value)
	if err != nil || days < 1 || days > maxUpcomingDays {
		return nil, false
	}
	until := now.Add(time.Duration(days) * 24 * time.Hour)
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("events.start_date >= ? AND events.start_date < ?", now, until)
	}, true
}

// searchScope matches events by their own text or by their creator's username or email.
func searchScope(value string, _ time.Time) (listing.Scope, bool) {
	term := strings.TrimSpace(value)
	if term == "" {
		return nil, false
	}
	pattern := "%" + strings.ToLower(term) + "%"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(LOWER(events.title) LIKE ? OR LOWER(events.description) LIKE ? OR LOWER(events.location) LIKE ? "+
				"OR events.created_by_id IN (SELECT id FROM users WHERE LOWER(username) LIKE ? OR LOWER(email) LIKE ?))",
			pattern, pattern, pattern, pattern, pattern,
		)
	}, true
}
