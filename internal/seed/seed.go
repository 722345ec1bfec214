// Package seed populates a database with a sample user and sample events.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"go.uber.org/zap"
)

const (
	sampleUsername     = "sample_user"
	samplePassword     = "password123"
	sampleLocation     = "New York, NY"
	maxSeedParticipant = 5
)

var (
	errMissingAccounts = errors.New("account store is required")
	errMissingEvents   = errors.New("event service is required")
)

// AccountStore is the account surface the seeder writes to.
type AccountStore interface {
	UserByUsername(ctx context.Context, username string) (accounts.User, error)
	CreateUser(ctx context.Context, user *accounts.User) error
}

// EventStore is the event surface the seeder writes to.
type EventStore interface {
	FindByTitle(ctx context.Context, title string) (events.Event, error)
	Create(ctx context.Context, creatorID uint, input events.Input) (events.View, error)
	Participate(ctx context.Context, eventID, userID uint) (events.View, error)
}

// Config describes the dependencies of a Seeder.
type Config struct {
	Accounts AccountStore
	Events   EventStore
	Clock    func() time.Time
	// IntN returns a uniform integer in [0, n). Defaults to math/rand/v2.
	IntN   func(n int) int
	Logger *zap.Logger
}

// Seeder creates the sample data set. Every step is get-or-create, so reruns are safe.
type Seeder struct {
	accounts AccountStore
	events   EventStore
	clock    func() time.Time
	intN     func(n int) int
	logger   *zap.Logger
}

// Summary reports what a seeding run changed.
type Summary struct {
	SampleUser        string
	SampleUserCreated bool
	EventsCreated     int
	EventsExisting    int
	ParticipantsAdded int
}

// New validates cfg and constructs a Seeder.
func New(cfg Config) (*Seeder, error) {
	if cfg.Accounts == nil {
		return nil, errMissingAccounts
	}
	if cfg.Events == nil {
		return nil, errMissingEvents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	intN := cfg.IntN
	if intN == nil {
		intN = rand.IntN
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		accounts: cfg.Accounts,
		events:   cfg.Events,
		clock:    clock,
		intN:     intN,
		logger:   logger,
	}, nil
}

type sampleEvent struct {
	title       string
	description string
	eventType   string
	location    string
	latitude    float64
	longitude   float64
	startAfter  time.Duration
	endAfter    time.Duration
	capacity    int
}

func day(days, hours int) time.Duration {
	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour
}

var sampleEvents = []sampleEvent{
	{
		title:       "Weekend Football Match",
		description: "Join us for a friendly 11v11 football match at Central Park. All skill levels welcome!",
		eventType:   events.TypeMatch,
		location:    "Central Park, New York",
		latitude:    40.7829,
		longitude:   -73.9654,
		startAfter:  day(2, 14),
		endAfter:    day(2, 16),
		capacity:    22,
	},
	{
		title:       "Youth Training Session",
		description: "Professional coaching session for young players aged 12-16. Focus on technique and teamwork.",
		eventType:   events.TypeTraining,
		location:    "Brooklyn Bridge Park",
		latitude:    40.7021,
		longitude:   -73.9969,
		startAfter:  day(3, 10),
		endAfter:    day(3, 12),
		capacity:    20,
	},
	{
		title:       "Summer Football Tournament",
		description: "Annual summer tournament with prizes for winners. Teams of 5 players. Registration required.",
		eventType:   events.TypeTournament,
		location:    "Prospect Park, Brooklyn",
		latitude:    40.6602,
		longitude:   -73.9690,
		startAfter:  day(7, 9),
		endAfter:    day(7, 18),
		capacity:    50,
	},
	{
		title:       "Evening Pickup Game",
		description: "Casual pickup game every Tuesday evening. No registration needed, just show up!",
		eventType:   events.TypeMatch,
		location:    "Riverside Park",
		latitude:    40.7755,
		longitude:   -73.9861,
		startAfter:  day(1, 19),
		endAfter:    day(1, 21),
		capacity:    30,
	},
	{
		title:       "Advanced Skills Workshop",
		description: "Advanced training session focusing on dribbling, shooting, and tactical awareness.",
		eventType:   events.TypeTraining,
		location:    "Flushing Meadows Park",
		latitude:    40.7505,
		longitude:   -73.8454,
		startAfter:  day(4, 15),
		endAfter:    day(4, 17),
		capacity:    15,
	},
	{
		title:       "Community Football Meetup",
		description: "Weekly community gathering for football enthusiasts. Great for networking and making friends.",
		eventType:   events.TypeOther,
		location:    "Washington Square Park",
		latitude:    40.7308,
		longitude:   -73.9973,
		startAfter:  day(5, 16),
		endAfter:    day(5, 18),
		capacity:    25,
	},
}

// Run seeds the sample user, the sample events and a few random participants
// on each newly created event.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	sampleUser, created, err := s.ensureUser(ctx, accounts.User{
		Username:  sampleUsername,
		Email:     "sample@example.com",
		FirstName: "Sample",
		LastName:  "User",
		Location:  sampleLocation,
	}, samplePassword)
	if err != nil {
		return Summary{}, fmt.Errorf("seed sample user: %w", err)
	}
	summary := Summary{SampleUser: sampleUser.Username, SampleUserCreated: created}
	if created {
		s.logger.Info("created sample user", zap.String("username", sampleUser.Username))
	} else {
		s.logger.Info("using existing sample user", zap.String("username", sampleUser.Username))
	}

	now := s.clock().UTC()
	for _, sample := range sampleEvents {
		if _, err := s.events.FindByTitle(ctx, sample.title); err == nil {
			summary.EventsExisting++
			continue
		} else if !errors.Is(err, events.ErrNotFound) {
			return summary, fmt.Errorf("seed event %q: %w", sample.title, err)
		}

		latitude, longitude, capacity := sample.latitude, sample.longitude, sample.capacity
		view, err := s.events.Create(ctx, sampleUser.ID, events.Input{
			Title:           sample.title,
			Description:     sample.description,
			EventType:       sample.eventType,
			Location:        sample.location,
			Latitude:        &latitude,
			Longitude:       &longitude,
			StartDate:       now.Add(sample.startAfter),
			EndDate:         now.Add(sample.endAfter),
			MaxParticipants: &capacity,
		})
		if err != nil {
			return summary, fmt.Errorf("seed event %q: %w", sample.title, err)
		}
		summary.EventsCreated++

		added, err := s.addParticipants(ctx, view.ID, s.intN(min(maxSeedParticipant, capacity)+1))
		summary.ParticipantsAdded += added
		if err != nil {
			return summary, fmt.Errorf("seed participants of %q: %w", sample.title, err)
		}
	}

	s.logger.Info("sample data seeded",
		zap.Int("events_created", summary.EventsCreated),
		zap.Int("events_existing", summary.EventsExisting),
		zap.Int("participants_added", summary.ParticipantsAdded),
	)
	return summary, nil
}

func (s *Seeder) addParticipants(ctx context.Context, eventID uint, count int) (int, error) {
	added := 0
	for index := 0; index < count; index++ {
		username := fmt.Sprintf("participant_%d", index)
		participant, _, err := s.ensureUser(ctx, accounts.User{
			Username:  username,
			Email:     username + "@example.com",
			FirstName: "Participant",
			LastName:  strconv.Itoa(index),
			Location:  sampleLocation,
		}, "")
		if err != nil {
			return added, err
		}
		if _, err := s.events.Participate(ctx, eventID, participant.ID); err != nil {
			if errors.Is(err, events.ErrAlreadyParticipating) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}

// ensureUser returns the user named by template.Username, creating it when absent.
// An empty password leaves the account without a usable password.
func (s *Seeder) ensureUser(ctx context.Context, template accounts.User, password string) (accounts.User, bool, error) {
	existing, err := s.accounts.UserByUsername(ctx, template.Username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return accounts.User{}, false, err
	}

	if password != "" {
		template.PasswordHash, err = accounts.HashPassword(password)
	} else {
		template.PasswordHash, err = accounts.UnusablePassword()
	}
	if err != nil {
		return accounts.User{}, false, err
	}
	template.IsActive = true
	if err := s.accounts.CreateUser(ctx, &template); err != nil {
		return accounts.User{}, false, err
	}
	return template, true, nil
}
