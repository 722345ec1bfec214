package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/database/constraint"
	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the event does not exist.
	ErrNotFound = errors.New("events: not found")
	// ErrForbidden indicates the actor may not manage the event.
	ErrForbidden = errors.New("events: forbidden")
	// ErrInvalidInput wraps validation failures of an Input.
	ErrInvalidInput = errors.New("events: invalid input")
	// ErrEventInactive indicates the event no longer accepts participants.
	ErrEventInactive = errors.New("events: event inactive")
	// ErrEventFull indicates the event reached its participant limit.
	ErrEventFull = errors.New("events: event full")
	// ErrAlreadyParticipating indicates the user is already on the roster.
	ErrAlreadyParticipating = errors.New("events: already participating")
	// ErrNotParticipating indicates the user is not on the roster.
	ErrNotParticipating = errors.New("events: not participating")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew    = "events.service.new"
	opCreate        = "events.create"
	opGet           = "events.get"
	opList          = "events.list"
	opUpdate        = "events.update"
	opDelete        = "events.delete"
	opParticipate   = "events.participate"
	opLeave         = "events.leave"
	opRemove        = "events.remove_participant"
	opSetActive     = "events.set_active"
	opUserCounts    = "events.user_counts"
	opLoadRelations = "events.load_relations"
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

// RosterPublisher receives roster changes after they are committed.
type RosterPublisher interface {
	PublishRoster(change RosterChange)
}

// ServiceConfig describes the dependencies of the event service.
type ServiceConfig struct {
	Database  *gorm.DB
	Clock     func() time.Time
	Logger    *zap.Logger
	Publisher RosterPublisher
}

// Service manages events and their rosters.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	publisher RosterPublisher
	validate  *validator.Validate
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	validate, err := newInputValidator()
	if err != nil {
		return nil, newServiceError(opServiceNew, "validator_setup", err)
	}
	return &Service{
		db:        cfg.Database,
		clock:     clock,
		logger:    logger,
		publisher: cfg.Publisher,
		validate:  validate,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) validateInput(input *Input) error {
	input.Title = strings.TrimSpace(input.Title)
	input.Location = strings.TrimSpace(input.Location)
	input.EventType = strings.TrimSpace(input.EventType)
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// Create stores a new event owned by creatorID. The creator is not added to the roster.
func (s *Service) Create(ctx context.Context, creatorID uint, input Input) (View, error) {
	if err := s.validateInput(&input); err != nil {
		return View{}, err
	}
	now := s.now()
	event := Event{CreatedByID: creatorID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	applyInput(&event, input)
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Uint("creator_id", creatorID))
		return View{}, newServiceError(opCreate, "insert_failed", err)
	}
	return s.Get(ctx, event.ID)
}

func applyInput(event *Event, input Input) {
	event.Title = input.Title
	event.Description = input.Description
	event.EventType = input.EventType
	event.Location = input.Location
	event.Latitude = input.Latitude
	event.Longitude = input.Longitude
	event.StartDate = input.StartDate.UTC()
	event.EndDate = input.EndDate.UTC()
	event.MaxParticipants = input.MaxParticipants
	if input.IsActive != nil {
		event.IsActive = *input.IsActive
	}
}

func (s *Service) find(ctx context.Context, db *gorm.DB, id uint) (Event, error) {
	var event Event
	err := db.WithContext(ctx).Where("id = ?", id).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, ErrNotFound
	}
	return event, err
}

// Get returns the event with its creator and roster.
func (s *Service) Get(ctx context.Context, id uint) (View, error) {
	event, err := s.find(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return View{}, err
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Uint("event_id", id))
		return View{}, newServiceError(opGet, "query_failed", err)
	}
	views, err := s.views(ctx, []Event{event})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

// Page is one page of an event listing.
type Page struct {
	Events []View
	Total  int64
	Page   listing.Page
}

// List returns events matching params, latest start date first.
func (s *Service) List(ctx context.Context, params listing.Params, page listing.Page) (Page, error) {
	scopes := listing.Scopes(Filters(), params, s.now())
	query := listing.Apply(s.db.WithContext(ctx).Model(&Event{}), scopes)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err)
		return Page{}, newServiceError(opList, "count_failed", err)
	}

	var found []Event
	if err := page.Scope()(query.Session(&gorm.Session{})).
		Order("events.start_date DESC").
		Order("events.id DESC").
		Find(&found).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return Page{}, newServiceError(opList, "query_failed", err)
	}

	views, err := s.views(ctx, found)
	if err != nil {
		return Page{}, err
	}
	return Page{Events: views, Total: total, Page: page}, nil
}

// views loads creators and rosters for found in two batched queries.
func (s *Service) views(ctx context.Context, found []Event) ([]View, error) {
	if len(found) == 0 {
		return []View{}, nil
	}
	eventIDs := make([]uint, 0, len(found))
	userIDs := make([]uint, 0, len(found))
	for _, event := range found {
		eventIDs = append(eventIDs, event.ID)
		userIDs = append(userIDs, event.CreatedByID)
	}

	var roster []Participation
	if err := s.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("joined_at").
		Order("id").
		Find(&roster).Error; err != nil {
		s.logError(opLoadRelations, "roster_query_failed", err)
		return nil, newServiceError(opLoadRelations, "roster_query_failed", err)
	}
	for _, entry := range roster {
		userIDs = append(userIDs, entry.UserID)
	}

	var users []accounts.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		s.logError(opLoadRelations, "user_query_failed", err)
		return nil, newServiceError(opLoadRelations, "user_query_failed", err)
	}
	usersByID := make(map[uint]accounts.User, len(users))
	for _, user := range users {
		usersByID[user.ID] = user
	}
	participantsByEvent := make(map[uint][]accounts.User, len(found))
	for _, entry := range roster {
		if user, ok := usersByID[entry.UserID]; ok {
			participantsByEvent[entry.EventID] = append(participantsByEvent[entry.EventID], user)
		}
	}

	views := make([]View, 0, len(found))
	for _, event := range found {
		views = append(views, newView(event, usersByID[event.CreatedByID], participantsByEvent[event.ID]))
	}
	return views, nil
}

// Update replaces the writable fields of an event the actor manages.
func (s *Service) Update(ctx context.Context, actor Actor, id uint, input Input) (View, error) {
	if err := s.validateInput(&input); err != nil {
		return View{}, err
	}
	event, err := s.managedEvent(ctx, opUpdate, actor, id)
	if err != nil {
		return View{}, err
	}
	applyInput(&event, input)
	event.UpdatedAt = s.now()
	if err := s.db.WithContext(ctx).Save(&event).Error; err != nil {
		s.logError(opUpdate, "save_failed", err, zap.Uint("event_id", id))
		return View{}, newServiceError(opUpdate, "save_failed", err)
	}
	return s.Get(ctx, id)
}

// Delete removes an event the actor manages together with its roster.
func (s *Service) Delete(ctx context.Context, actor Actor, id uint) error {
	if _, err := s.managedEvent(ctx, opDelete, actor, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&Participation{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Event{}).Error
	})
	if err != nil {
		s.logError(opDelete, "delete_failed", err, zap.Uint("event_id", id))
		return newServiceError(opDelete, "delete_failed", err)
	}
	return nil
}

func (s *Service) managedEvent(ctx context.Context, operation string, actor Actor, id uint) (Event, error) {
	event, err := s.find(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return Event{}, err
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.Uint("event_id", id))
		return Event{}, newServiceError(operation, "query_failed", err)
	}
	if !actor.canManage(event) {
		return Event{}, ErrForbidden
	}
	return event, nil
}

// Participate adds userID to the roster of an active event with free capacity.
func (s *Service) Participate(ctx context.Context, eventID, userID uint) (View, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.find(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !event.IsActive {
			return ErrEventInactive
		}
		if err := tx.Model(&Participation{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if isFull(event, count) {
			return ErrEventFull
		}
		entry := Participation{EventID: eventID, UserID: userID, JoinedAt: s.now()}
		if err := tx.Create(&entry).Error; err != nil {
			if constraint.IsUniqueViolation(err) {
				return ErrAlreadyParticipating
			}
			return err
		}
		count++
		return nil
	})
	if err != nil {
		if isRosterError(err) {
			return View{}, err
		}
		s.logError(opParticipate, "insert_failed", err, zap.Uint("event_id", eventID), zap.Uint("user_id", userID))
		return View{}, newServiceError(opParticipate, "insert_failed", err)
	}
	s.publish(eventID, userID, RosterJoined, count)
	return s.Get(ctx, eventID)
}

// Leave removes userID from the roster.
func (s *Service) Leave(ctx context.Context, eventID, userID uint) (View, error) {
	return s.removeFromRoster(ctx, eventID, userID, RosterLeft)
}

// RemoveParticipant removes userID from the roster of an event the actor manages.
func (s *Service) RemoveParticipant(ctx context.Context, actor Actor, eventID, userID uint) (View, error) {
	if _, err := s.managedEvent(ctx, opRemove, actor, eventID); err != nil {
		return View{}, err
	}
	return s.removeFromRoster(ctx, eventID, userID, RosterRemoved)
}

func (s *Service) removeFromRoster(ctx context.Context, eventID, userID uint, action RosterAction) (View, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.find(ctx, tx, eventID); err != nil {
			return err
		}
		result := tx.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&Participation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotParticipating
		}
		return tx.Model(&Participation{}).Where("event_id = ?", eventID).Count(&count).Error
	})
	if err != nil {
		if isRosterError(err) {
			return View{}, err
		}
		s.logError(opLeave, "delete_failed", err, zap.Uint("event_id", eventID), zap.Uint("user_id", userID))
		return View{}, newServiceError(opLeave, "delete_failed", err)
	}
	s.publish(eventID, userID, action, count)
	return s.Get(ctx, eventID)
}

func isRosterError(err error) bool {
	for _, known := range []error{ErrNotFound, ErrEventInactive, ErrEventFull, ErrAlreadyParticipating, ErrNotParticipating} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

func (s *Service) publish(eventID, userID uint, action RosterAction, count int64) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishRoster(RosterChange{
		EventID:          eventID,
		UserID:           userID,
		Action:           action,
		ParticipantCount: count,
		OccurredAt:       s.now(),
	})
}

// SetActive toggles the active flag on the given events and returns the number updated.
func (s *Service) SetActive(ctx context.Context, eventIDs []uint, active bool) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&Event{}).
		Where("id IN ?", eventIDs).
		Updates(map[string]interface{}{"is_active": active, "updated_at": s.now()})
	if result.Error != nil {
		s.logError(opSetActive, "update_failed", result.Error)
		return 0, newServiceError(opSetActive, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// UserCounts reports how many events each user created and joined.
func (s *Service) UserCounts(ctx context.Context, userIDs []uint) (map[uint]UserCounts, error) {
	counts := make(map[uint]UserCounts, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}
	type row struct {
		UserID uint
		Total  int64
	}
	var created []row
	if err := s.db.WithContext(ctx).Model(&Event{}).
		Select("created_by_id AS user_id, COUNT(*) AS total").
		Where("created_by_id IN ?", userIDs).
		Group("created_by_id").
		Scan(&created).Error; err != nil {
		s.logError(opUserCounts, "created_query_failed", err)
		return nil, newServiceError(opUserCounts, "created_query_failed", err)
	}
	var joined []row
	if err := s.db.WithContext(ctx).Model(&Participation{}).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&joined).Error; err != nil {
		s.logError(opUserCounts, "joined_query_failed", err)
		return nil, newServiceError(opUserCounts, "joined_query_failed", err)
	}
	for _, userID := range userIDs {
		counts[userID] = UserCounts{}
	}
	for _, entry := range created {
		current := counts[entry.UserID]
		current.Created = entry.Total
		counts[entry.UserID] = current
	}
	for _, entry := range joined {
		current := counts[entry.UserID]
		current.Participated = entry.Total
		counts[entry.UserID] = current
	}
	return counts, nil
}

// FindByTitle returns the oldest event with title, or ErrNotFound.
func (s *Service) FindByTitle(ctx context.Context, title string) (Event, error) {
	var event Event
	err := s.db.WithContext(ctx).Where("title = ?", title).Order("id").Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, ErrNotFound
	}
	return event, err
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("events service error", attrs...)
}
