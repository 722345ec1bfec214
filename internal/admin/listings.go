package admin

import (
	"context"
	"fmt"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
)

// UserRow is one line of the user listing.
type UserRow struct {
	accounts.Profile
	IsActive    bool              `json:"is_active"`
	IsStaff     bool              `json:"is_staff"`
	IsSuperuser bool              `json:"is_superuser"`
	Events      events.UserCounts `json:"events"`
	EventCount  string            `json:"event_count"`
	MapLink     string            `json:"map_link"`
}

// UserListing is one page of user rows.
type UserListing struct {
	Rows  []UserRow    `json:"results"`
	Total int64        `json:"count"`
	Page  listing.Page `json:"page"`
}

// EventRow is one line of the event listing.
type EventRow struct {
	events.View
	MapLink string `json:"map_link"`
}

// EventListing is one page of event rows.
type EventListing struct {
	Rows  []EventRow   `json:"results"`
	Total int64        `json:"count"`
	Page  listing.Page `json:"page"`
}

// FormatEventCount renders the listing summary of a user's event involvement.
func FormatEventCount(counts events.UserCounts) string {
	return fmt.Sprintf("%d created, %d participated", counts.Created, counts.Participated)
}

// Users lists users newest first with their event involvement.
func (r *Registry) Users(ctx context.Context, params listing.Params, page listing.Page) (UserListing, error) {
	found, err := r.users.ListUsers(ctx, params, page)
	if err != nil {
		return UserListing{}, err
	}
	userIDs := make([]uint, 0, len(found.Users))
	for _, user := range found.Users {
		userIDs = append(userIDs, user.ID)
	}
	counts, err := r.events.UserCounts(ctx, userIDs)
	if err != nil {
		return UserListing{}, err
	}
	rows := make([]UserRow, 0, len(found.Users))
	for _, user := range found.Users {
		userCounts := counts[user.ID]
		rows = append(rows, UserRow{
			Profile:     accounts.ProfileOf(user),
			IsActive:    user.IsActive,
			IsStaff:     user.IsStaff,
			IsSuperuser: user.IsSuperuser,
			Events:      userCounts,
			EventCount:  FormatEventCount(userCounts),
			MapLink:     MapLink(user.Latitude, user.Longitude),
		})
	}
	return UserListing{Rows: rows, Total: found.Total, Page: found.Page}, nil
}

// Events lists events latest start first.
func (r *Registry) Events(ctx context.Context, params listing.Params, page listing.Page) (EventListing, error) {
	found, err := r.events.List(ctx, params, page)
	if err != nil {
		return EventListing{}, err
	}
	rows := make([]EventRow, 0, len(found.Events))
	for _, view := range found.Events {
		rows = append(rows, EventRow{View: view, MapLink: MapLink(view.Latitude, view.Longitude)})
	}
	return EventListing{Rows: rows, Total: found.Total, Page: found.Page}, nil
}
