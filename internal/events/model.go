package events

import (
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
)

// Event types accepted by the platform.
const (
	TypeMatch      = "match"
	TypeTraining   = "training"
	TypeTournament = "tournament"
	TypeOther      = "other"
)

// typeLabels lists the event types in display order.
var typeLabels = []struct {
	Value string
	Label string
}{
	{Value: TypeMatch, Label: "Match"},
	{Value: TypeTraining, Label: "Training"},
	{Value: TypeTournament, Label: "Tournament"},
	{Value: TypeOther, Label: "Other"},
}

// ValidType reports whether value names a known event type.
func ValidType(value string) bool {
	for _, entry := range typeLabels {
		if entry.Value == value {
			return true
		}
	}
	return false
}

// Event is a scheduled football activity.
type Event struct {
	ID              uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Title           string    `gorm:"column:title;size:200;not null"`
	Description     string    `gorm:"column:description;type:text;not null;default:''"`
	EventType       string    `gorm:"column:event_type;size:20;not null;index"`
	Location        string    `gorm:"column:location;size:255;not null;default:''"`
	Latitude        *float64  `gorm:"column:latitude"`
	Longitude       *float64  `gorm:"column:longitude"`
	StartDate       time.Time `gorm:"column:start_date;not null;index"`
	EndDate         time.Time `gorm:"column:end_date;not null"`
	CreatedByID     uint      `gorm:"column:created_by_id;not null;index"`
	MaxParticipants *int      `gorm:"column:max_participants"`
	IsActive        bool      `gorm:"column:is_active;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

// TableName binds Event to the events table.
func (Event) TableName() string {
	return "events"
}

// Participation records a user on an event roster.
type Participation struct {
	ID       uint      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID  uint      `gorm:"column:event_id;not null;uniqueIndex:idx_event_participant,priority:1"`
	UserID   uint      `gorm:"column:user_id;not null;uniqueIndex:idx_event_participant,priority:2;index"`
	JoinedAt time.Time `gorm:"column:joined_at;not null"`
}

// TableName binds Participation to the event_participants table.
func (Participation) TableName() string {
	return "event_participants"
}

// View is the API representation of an event with its creator and roster.
type View struct {
	ID               uint               `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	EventType        string             `json:"event_type"`
	Location         string             `json:"location"`
	Latitude         *float64           `json:"latitude"`
	Longitude        *float64           `json:"longitude"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	CreatedBy        accounts.Profile   `json:"created_by"`
	Participants     []accounts.Profile `json:"participants"`
	ParticipantCount int                `json:"participant_count"`
	MaxParticipants  *int               `json:"max_participants"`
	IsActive         bool               `json:"is_active"`
	IsFull           bool               `json:"is_full"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func newView(event Event, creator accounts.User, participants []accounts.User) View {
	profiles := make([]accounts.Profile, 0, len(participants))
	for _, participant := range participants {
		profiles = append(profiles, accounts.ProfileOf(participant))
	}
	return View{
		ID:               event.ID,
		Title:            event.Title,
		Description:      event.Description,
		EventType:        event.EventType,
		Location:         event.Location,
		Latitude:         event.Latitude,
		Longitude:        event.Longitude,
		StartDate:        event.StartDate,
		EndDate:          event.EndDate,
		CreatedBy:        accounts.ProfileOf(creator),
		Participants:     profiles,
		ParticipantCount: len(profiles),
		MaxParticipants:  event.MaxParticipants,
		IsActive:         event.IsActive,
		IsFull:           isFull(event, int64(len(profiles))),
		CreatedAt:        event.CreatedAt,
		UpdatedAt:        event.UpdatedAt,
	}
}

func isFull(event Event, participants int64) bool {
	return event.MaxParticipants != nil && participants >= int64(*event.MaxParticipants)
}

// Input carries the writable fields of an event.
type Input struct {
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	EventType       string    `json:"event_type" validate:"required,event_type"`
	Location        string    `json:"location" validate:"required,max=255"`
	Latitude        *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxParticipants *int      `json:"max_participants" validate:"omitempty,min=1"`
	IsActive        *bool     `json:"is_active"`
}

// Actor identifies who performs a roster or event mutation.
type Actor struct {
	UserID  uint
	IsStaff bool
}

// canManage reports whether actor may edit event.
func (a Actor) canManage(event Event) bool {
	return a.IsStaff || (a.UserID != 0 && a.UserID == event.CreatedByID)
}

// RosterAction names a roster change.
type RosterAction string

const (
	RosterJoined  RosterAction = "joined"
	RosterLeft    RosterAction = "left"
	RosterRemoved RosterAction = "removed"
)

// RosterChange describes a single update to an event roster.
type RosterChange struct {
	EventID          uint         `json:"event_id"`
	UserID           uint         `json:"user_id"`
	Action           RosterAction `json:"action"`
	ParticipantCount int64        `json:"participant_count"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// UserCounts summarises a user's involvement in events.
type UserCounts struct {
	Created      int64 `json:"created"`
	Participated int64 `json:"participated"`
}
