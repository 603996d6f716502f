package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPartyNotFound indicates no party matched the id within the restaurant.
	ErrPartyNotFound = errors.New("waitlist: party not found")
	// ErrVersionConflict indicates an edit was based on a stale version of the party.
	ErrVersionConflict = errors.New("waitlist: party version conflict")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a stable dotted code.
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

const (
	opServiceNew     = "waitlist.service.new"
	opCreateParty    = "waitlist.create_party"
	opListParties    = "waitlist.list_parties"
	opGetParty       = "waitlist.get_party"
	opTransition     = "waitlist.transition"
	opUpdateParty    = "waitlist.update_party"
	opDeleteParty    = "waitlist.delete_party"
	opAnalytics      = "waitlist.analytics"
	defaultWindowDay = 30
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new parties.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the waitlist service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Publisher  ChangePublisher
	Notifier   NotificationSink
}

// Service applies queue mutations against the party store.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	publisher  ChangePublisher
	notifier   NotificationSink
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		publisher:  cfg.Publisher,
		notifier:   cfg.Notifier,
	}, nil
}

// Now returns the service clock reading used for derived views.
func (s *Service) Now() time.Time {
	return s.clock()
}

// CreatePartyInput describes a guest join or host walk-in.
type CreatePartyInput struct {
	Slug  string
	Name  string
	Size  int
	Phone string
	Notes string
}

// CreateParty validates and inserts a waiting party.
// A join confirmation is requested when a phone number is present.
func (s *Service) CreateParty(ctx context.Context, input CreatePartyInput) (Party, error) {
	if s == nil || s.db == nil {
		return Party{}, newServiceError(opCreateParty, "missing_database", errMissingDatabase)
	}
	slug, err := NewRestaurantSlug(input.Slug)
	if err != nil {
		return Party{}, newServiceError(opCreateParty, "invalid_slug", err)
	}
	name, err := normalizeName(input.Name)
	if err != nil {
		return Party{}, newServiceError(opCreateParty, "invalid_name", err)
	}
	if err := validateSize(input.Size); err != nil {
		return Party{}, newServiceError(opCreateParty, "invalid_size", err)
	}
	phone, err := optionalText(input.Phone, maxPhoneLength, ErrInvalidPhone)
	if err != nil {
		return Party{}, newServiceError(opCreateParty, "invalid_phone", err)
	}
	notes, err := optionalText(input.Notes, maxNotesLength, ErrInvalidNotes)
	if err != nil {
		return Party{}, newServiceError(opCreateParty, "invalid_notes", err)
	}

	partyID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateParty, "id_generation_failed", err, zap.String("restaurant_slug", slug.String()))
		return Party{}, newServiceError(opCreateParty, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	party := Party{
		ID:             partyID,
		RestaurantSlug: slug.String(),
		Name:           name,
		Size:           input.Size,
		Phone:          phone,
		Notes:          notes,
		Status:         StatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := s.db.WithContext(ctx).Create(&party).Error; err != nil {
		s.logError(opCreateParty, "insert_failed", err, zap.String("restaurant_slug", slug.String()))
		return Party{}, newServiceError(opCreateParty, "insert_failed", err)
	}

	s.publish(ChangeInsert, party, now)

	if party.HasPhone() {
		position := 0
		if parties, err := s.listParties(ctx, slug.String()); err != nil {
			s.logError(opCreateParty, "position_lookup_failed", err,
				zap.String("restaurant_slug", slug.String()),
				zap.String("party_id", party.ID))
		} else {
			position = WaitingPositions(parties)[party.ID]
		}
		s.notify(NotificationRequest{
			Kind:        NotificationJoinConfirmation,
			Slug:        party.RestaurantSlug,
			PartyID:     party.ID,
			PartyName:   party.Name,
			Phone:       *party.Phone,
			Position:    position,
			RequestedAt: now,
		})
	}

	return party, nil
}

// ListParties returns every party of a restaurant in FIFO order.
func (s *Service) ListParties(ctx context.Context, rawSlug string) ([]Party, error) {
	if s == nil || s.db == nil {
		return nil, newServiceError(opListParties, "missing_database", errMissingDatabase)
	}
	slug, err := NewRestaurantSlug(rawSlug)
	if err != nil {
		return nil, newServiceError(opListParties, "invalid_slug", err)
	}
	parties, err := s.listParties(ctx, slug.String())
	if err != nil {
		s.logError(opListParties, "query_failed", err, zap.String("restaurant_slug", slug.String()))
		return nil, newServiceError(opListParties, "query_failed", err)
	}
	return parties, nil
}

func (s *Service) listParties(ctx context.Context, slug string) ([]Party, error) {
	var parties []Party
	err := s.db.WithContext(ctx).
		Where("restaurant_slug = ?", slug).
		Order("created_at ASC").
		Order("id ASC").
		Find(&parties).Error
	return parties, err
}

// GetParty returns one party scoped by restaurant and id.
func (s *Service) GetParty(ctx context.Context, rawSlug, rawPartyID string) (Party, error) {
	if s == nil || s.db == nil {
		return Party{}, newServiceError(opGetParty, "missing_database", errMissingDatabase)
	}
	slug, partyID, err := parseScope(rawSlug, rawPartyID)
	if err != nil {
		return Party{}, newServiceError(opGetParty, "invalid_request", err)
	}
	party, err := s.loadParty(ctx, slug, partyID)
	if err != nil {
		return Party{}, s.wrapLoadError(opGetParty, slug, partyID, err)
	}
	return party, nil
}

// TransitionParty moves a party to target along an allowed edge.
// Requesting the current status succeeds without side effects.
func (s *Service) TransitionParty(ctx context.Context, rawSlug, rawPartyID string, target Status) (Party, error) {
	if s == nil || s.db == nil {
		return Party{}, newServiceError(opTransition, "missing_database", errMissingDatabase)
	}
	slug, partyID, err := parseScope(rawSlug, rawPartyID)
	if err != nil {
		return Party{}, newServiceError(opTransition, "invalid_request", err)
	}
	if _, err := ParseStatus(string(target)); err != nil {
		return Party{}, newServiceError(opTransition, "invalid_status", err)
	}

	current, err := s.loadParty(ctx, slug, partyID)
	if err != nil {
		return Party{}, s.wrapLoadError(opTransition, slug, partyID, err)
	}

	now := s.clock().UTC()
	plan, err := planTransition(current, target, now)
	if err != nil {
		return Party{}, newServiceError(opTransition, "invalid_transition", err)
	}
	if plan.noop {
		return current, nil
	}

	result := s.db.WithContext(ctx).
		Model(&Party{}).
		Where("id = ? AND restaurant_slug = ? AND status = ?", partyID.String(), slug.String(), plan.from).
		Updates(plan.assignments)
	if result.Error != nil {
		s.logError(opTransition, "update_failed", result.Error,
			zap.String("restaurant_slug", slug.String()),
			zap.String("party_id", partyID.String()))
		return Party{}, newServiceError(opTransition, "update_failed", result.Error)
	}

	updated, err := s.loadParty(ctx, slug, partyID)
	if err != nil {
		return Party{}, s.wrapLoadError(opTransition, slug, partyID, err)
	}
	if result.RowsAffected == 0 {
		if updated.Status == target {
			return updated, nil
		}
		return Party{}, newServiceError(opTransition, "conflict",
			fmt.Errorf("%w: expected %s, found %s", ErrTransitionConflict, plan.from, updated.Status))
	}

	s.publish(ChangeUpdate, updated, now)

	if plan.notifyReady && updated.HasPhone() {
		s.notify(NotificationRequest{
			Kind:        NotificationTableReady,
			Slug:        updated.RestaurantSlug,
			PartyID:     updated.ID,
			PartyName:   updated.Name,
			Phone:       *updated.Phone,
			RequestedAt: now,
		})
	}
	return updated, nil
}

// UpdatePartyInput describes a host edit. Notes are left untouched when nil;
// ExpectedVersion is checked only when positive.
type UpdatePartyInput struct {
	Size            int
	Notes           *string
	ExpectedVersion int64
}

// UpdateParty edits the size and notes of a party.
func (s *Service) UpdateParty(ctx context.Context, rawSlug, rawPartyID string, input UpdatePartyInput) (Party, error) {
	if s == nil || s.db == nil {
		return Party{}, newServiceError(opUpdateParty, "missing_database", errMissingDatabase)
	}
	slug, partyID, err := parseScope(rawSlug, rawPartyID)
	if err != nil {
		return Party{}, newServiceError(opUpdateParty, "invalid_request", err)
	}
	if err := validateSize(input.Size); err != nil {
		return Party{}, newServiceError(opUpdateParty, "invalid_size", err)
	}

	now := s.clock().UTC()
	assignments := map[string]any{
		"size":       input.Size,
		"updated_at": now,
		"version":    gorm.Expr("version + ?", 1),
	}
	if input.Notes != nil {
		notes, err := optionalText(*input.Notes, maxNotesLength, ErrInvalidNotes)
		if err != nil {
			return Party{}, newServiceError(opUpdateParty, "invalid_notes", err)
		}
		if notes == nil {
			assignments["notes"] = nil
		} else {
			assignments["notes"] = *notes
		}
	}

	query := s.db.WithContext(ctx).
		Model(&Party{}).
		Where("id = ? AND restaurant_slug = ?", partyID.String(), slug.String())
	if input.ExpectedVersion > 0 {
		query = query.Where("version = ?", input.ExpectedVersion)
	}
	result := query.Updates(assignments)
	if result.Error != nil {
		s.logError(opUpdateParty, "update_failed", result.Error,
			zap.String("restaurant_slug", slug.String()),
			zap.String("party_id", partyID.String()))
		return Party{}, newServiceError(opUpdateParty, "update_failed", result.Error)
	}

	updated, err := s.loadParty(ctx, slug, partyID)
	if err != nil {
		return Party{}, s.wrapLoadError(opUpdateParty, slug, partyID, err)
	}
	if result.RowsAffected == 0 {
		return Party{}, newServiceError(opUpdateParty, "version_conflict",
			fmt.Errorf("%w: expected %d, found %d", ErrVersionConflict, input.ExpectedVersion, updated.Version))
	}

	s.publish(ChangeUpdate, updated, now)
	return updated, nil
}

// DeleteParty removes a party from the restaurant queue.
func (s *Service) DeleteParty(ctx context.Context, rawSlug, rawPartyID string) error {
	if s == nil || s.db == nil {
		return newServiceError(opDeleteParty, "missing_database", errMissingDatabase)
	}
	slug, partyID, err := parseScope(rawSlug, rawPartyID)
	if err != nil {
		return newServiceError(opDeleteParty, "invalid_request", err)
	}

	existing, err := s.loadParty(ctx, slug, partyID)
	if err != nil {
		return s.wrapLoadError(opDeleteParty, slug, partyID, err)
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND restaurant_slug = ?", partyID.String(), slug.String()).
		Delete(&Party{})
	if result.Error != nil {
		s.logError(opDeleteParty, "delete_failed", result.Error,
			zap.String("restaurant_slug", slug.String()),
			zap.String("party_id", partyID.String()))
		return newServiceError(opDeleteParty, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteParty, "not_found", ErrPartyNotFound)
	}

	s.publish(ChangeDelete, existing, s.clock().UTC())
	return nil
}

// Analytics aggregates KPIs over the trailing window of days ending now.
func (s *Service) Analytics(ctx context.Context, rawSlug string, days int, location *time.Location) (KPIs, error) {
	if s == nil || s.db == nil {
		return KPIs{}, newServiceError(opAnalytics, "missing_database", errMissingDatabase)
	}
	slug, err := NewRestaurantSlug(rawSlug)
	if err != nil {
		return KPIs{}, newServiceError(opAnalytics, "invalid_slug", err)
	}
	if days <= 0 {
		days = defaultWindowDay
	}

	now := s.clock()
	windowStart := now.AddDate(0, 0, -days)

	var parties []Party
	if err := s.db.WithContext(ctx).
		Where("restaurant_slug = ? AND created_at >= ?", slug.String(), windowStart.UTC()).
		Order("created_at ASC").
		Find(&parties).Error; err != nil {
		s.logError(opAnalytics, "query_failed", err, zap.String("restaurant_slug", slug.String()))
		return KPIs{}, newServiceError(opAnalytics, "query_failed", err)
	}

	return ComputeKPIs(parties, windowStart, now, location), nil
}

func parseScope(rawSlug, rawPartyID string) (RestaurantSlug, PartyID, error) {
	slug, err := NewRestaurantSlug(rawSlug)
	if err != nil {
		return "", "", err
	}
	partyID, err := NewPartyID(rawPartyID)
	if err != nil {
		return "", "", err
	}
	return slug, partyID, nil
}

func (s *Service) loadParty(ctx context.Context, slug RestaurantSlug, partyID PartyID) (Party, error) {
	var party Party
	err := s.db.WithContext(ctx).
		Where("id = ? AND restaurant_slug = ?", partyID.String(), slug.String()).
		Take(&party).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Party{}, ErrPartyNotFound
	}
	return party, err
}

func (s *Service) wrapLoadError(operation string, slug RestaurantSlug, partyID PartyID, err error) error {
	if errors.Is(err, ErrPartyNotFound) {
		return newServiceError(operation, "not_found", err)
	}
	s.logError(operation, "select_failed", err,
		zap.String("restaurant_slug", slug.String()),
		zap.String("party_id", partyID.String()))
	return newServiceError(operation, "select_failed", err)
}

func (s *Service) publish(operation ChangeOperation, party Party, occurredAt time.Time) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishChange(ChangeEvent{
		Operation:  operation,
		Slug:       party.RestaurantSlug,
		Party:      party,
		OccurredAt: occurredAt,
	})
}

func (s *Service) notify(request NotificationRequest) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.Enqueue(request) {
		s.loggerOrDefault().Warn("notification request dropped",
			zap.String("kind", string(request.Kind)),
			zap.String("restaurant_slug", request.Slug),
			zap.String("party_id", request.PartyID))
	}
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
	s.loggerOrDefault().Error("waitlist service error", attrs...)
}
