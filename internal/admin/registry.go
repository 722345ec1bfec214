// Package admin exposes the staff back office: registered model listings,
// bulk actions and site statistics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ModelUsers names the registered user admin.
	ModelUsers = "users"
	// ModelEvents names the registered event admin.
	ModelEvents = "events"

	noCoordinates = "No coordinates"
)

var (
	// ErrUnknownModel indicates no admin is registered under the requested name.
	ErrUnknownModel = errors.New("admin: unknown model")
	// ErrUnknownAction indicates the model admin has no such action.
	ErrUnknownAction = errors.New("admin: unknown action")

	errMissingDatabase = errors.New("database handle is required")
	errMissingUsers    = errors.New("user directory is required")
	errMissingEvents   = errors.New("event catalog is required")
)

// UserDirectory is the account surface the back office manages.
type UserDirectory interface {
	ListUsers(ctx context.Context, params listing.Params, page listing.Page) (accounts.UserPage, error)
	SetActive(ctx context.Context, userIDs []uint, active bool) (int64, error)
	SetStaff(ctx context.Context, userIDs []uint, staff bool) (int64, error)
}

// EventCatalog is the event surface the back office manages.
type EventCatalog interface {
	List(ctx context.Context, params listing.Params, page listing.Page) (events.Page, error)
	SetActive(ctx context.Context, eventIDs []uint, active bool) (int64, error)
	UserCounts(ctx context.Context, userIDs []uint) (map[uint]events.UserCounts, error)
}

// Action is a bulk operation over selected records.
type Action struct {
	Name        string
	Description string
	run         func(ctx context.Context, ids []uint) (int64, error)
	message     string
}

// ModelAdmin describes one registered model: its filters and bulk actions.
type ModelAdmin struct {
	Name    string
	Title   string
	Filters []listing.Filter
	Actions []Action
}

// FilterSpec is the public description of a filter.
type FilterSpec struct {
	Parameter string           `json:"parameter"`
	Title     string           `json:"title"`
	Lookups   []listing.Lookup `json:"lookups"`
}

// ActionSpec is the public description of an action.
type ActionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelSpec is the public description of a registered model.
type ModelSpec struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Filters []FilterSpec `json:"filters"`
	Actions []ActionSpec `json:"actions"`
}

// ActionResult reports the outcome of a bulk action.
type ActionResult struct {
	Updated int64  `json:"updated"`
	Message string `json:"message"`
}

// RegistryConfig describes the dependencies of the admin registry.
type RegistryConfig struct {
	Database *gorm.DB
	Users    UserDirectory
	Events   EventCatalog
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Registry is built once at startup and owns the registered model admins.
type Registry struct {
	db     *gorm.DB
	users  UserDirectory
	events EventCatalog
	clock  func() time.Time
	logger *zap.Logger
	models map[string]ModelAdmin
	order  []string
}

// NewRegistry validates cfg and registers the user and event admins.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	switch {
	case cfg.Database == nil:
		return nil, errMissingDatabase
	case cfg.Users == nil:
		return nil, errMissingUsers
	case cfg.Events == nil:
		return nil, errMissingEvents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &Registry{
		db:     cfg.Database,
		users:  cfg.Users,
		events: cfg.Events,
		clock:  clock,
		logger: logger,
		models: map[string]ModelAdmin{},
	}
	registry.register(ModelAdmin{
		Name:    ModelUsers,
		Title:   "Users",
		Filters: accounts.UserFilters(),
		Actions: []Action{
			{
				Name:        "activate_users",
				Description: "Activate selected users",
				message:     "%d users have been activated.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Users.SetActive(ctx, ids, true)
				},
			},
			{
				Name:        "deactivate_users",
				Description: "Deactivate selected users",
				message:     "%d users have been deactivated.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Users.SetActive(ctx, ids, false)
				},
			},
			{
				Name:        "make_staff",
				Description: "Make selected users staff",
				message:     "%d users have been made staff members.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Users.SetStaff(ctx, ids, true)
				},
			},
			{
				Name:        "remove_staff",
				Description: "Remove staff status from selected users",
				message:     "%d users have been removed from staff.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Users.SetStaff(ctx, ids, false)
				},
			},
		},
	})
	registry.register(ModelAdmin{
		Name:    ModelEvents,
		Title:   "Events",
		Filters: events.Filters(),
		Actions: []Action{
			{
				Name:        "activate_events",
				Description: "Activate selected events",
				message:     "%d events have been activated.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Events.SetActive(ctx, ids, true)
				},
			},
			{
				Name:        "deactivate_events",
				Description: "Deactivate selected events",
				message:     "%d events have been deactivated.",
				run: func(ctx context.Context, ids []uint) (int64, error) {
					return cfg.Events.SetActive(ctx, ids, false)
				},
			},
		},
	})
	return registry, nil
}

func (r *Registry) register(model ModelAdmin) {
	if _, exists := r.models[model.Name]; !exists {
		r.order = append(r.order, model.Name)
	}
	r.models[model.Name] = model
}

// Models describes every registered model in registration order.
func (r *Registry) Models() []ModelSpec {
	specs := make([]ModelSpec, 0, len(r.order))
	for _, name := range r.order {
		model := r.models[name]
		spec := ModelSpec{
			Name:    model.Name,
			Title:   model.Title,
			Filters: make([]FilterSpec, 0, len(model.Filters)),
			Actions: make([]ActionSpec, 0, len(model.Actions)),
		}
		for _, filter := range model.Filters {
			lookups := filter.Lookups
			if lookups == nil {
				lookups = []listing.Lookup{}
			}
			spec.Filters = append(spec.Filters, FilterSpec{Parameter: filter.Parameter, Title: filter.Title, Lookups: lookups})
		}
		for _, action := range model.Actions {
			spec.Actions = append(spec.Actions, ActionSpec{Name: action.Name, Description: action.Description})
		}
		specs = append(specs, spec)
	}
	return specs
}

// RunAction applies the named bulk action of model to ids.
func (r *Registry) RunAction(ctx context.Context, model, action string, ids []uint) (ActionResult, error) {
	registered, ok := r.models[model]
	if !ok {
		return ActionResult{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	for _, candidate := range registered.Actions {
		if candidate.Name != action {
			continue
		}
		updated, err := candidate.run(ctx, ids)
		if err != nil {
			r.logger.Error("admin action failed",
				zap.String("model", model),
				zap.String("action", action),
				zap.Error(err),
			)
			return ActionResult{}, err
		}
		r.logger.Info("admin action applied",
			zap.String("model", model),
			zap.String("action", action),
			zap.Int64("updated", updated),
		)
		return ActionResult{Updated: updated, Message: fmt.Sprintf(candidate.message, updated)}, nil
	}
	return ActionResult{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

// MapLink renders a Google Maps link for a coordinate pair.
func MapLink(latitude, longitude *float64) string {
	if latitude == nil || longitude == nil || *latitude == 0 || *longitude == 0 {
		return noCoordinates
	}
	return "https://www.google.com/maps?q=" +
		strconv.FormatFloat(*latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(*longitude, 'f', -1, 64)
}
