package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMissingRestaurant indicates a checkout request without a restaurant id.
	ErrMissingRestaurant = errors.New("billing: restaurant id is required")
	// ErrInvalidSignature indicates the webhook payload could not be authenticated.
	ErrInvalidSignature = errors.New("billing: webhook signature verification failed")
	// ErrProviderNotConfigured indicates checkout was requested without a payment provider.
	ErrProviderNotConfigured = errors.New("billing: payment provider not configured")
	// ErrSubscriptionNotFound indicates no subscription row exists for the restaurant.
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")

	errMissingDatabase = errors.New("database handle is required")
)

const (
	opServiceNew      = "billing.service.new"
	opCreateCheckout  = "billing.checkout"
	opHandleWebhook   = "billing.webhook"
	opGetSubscription = "billing.get_subscription"

	metadataRestaurantID  = "restaurant_id"
	metadataPlanType      = "plan_type"
	metadataBillingPeriod = "billing_period"

	eventCheckoutCompleted    = "checkout.session.completed"
	eventSubscriptionCreated  = "customer.subscription.created"
	eventSubscriptionUpdated  = "customer.subscription.updated"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	eventInvoicePaymentFailed = "invoice.payment_failed"
	eventInvoicePaid          = "invoice.paid"
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

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of the billing service.
type ServiceConfig struct {
	Database      *gorm.DB
	Provider      PaymentProvider
	Catalog       PriceCatalog
	WebhookSecret string
	AppURL        string
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service creates checkouts and mirrors provider subscription state.
type Service struct {
	db            *gorm.DB
	provider      PaymentProvider
	catalog       PriceCatalog
	webhookSecret string
	appURL        string
	clock         func() time.Time
	logger        *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = DefaultPriceCatalog()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:            cfg.Database,
		provider:      cfg.Provider,
		catalog:       catalog,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		appURL:        strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/"),
		clock:         clock,
		logger:        logger,
	}, nil
}

// CheckoutInput describes a subscription purchase for a restaurant.
type CheckoutInput struct {
	PlanType      PlanType
	BillingPeriod BillingPeriod
	RestaurantID  string
}

// CreateCheckout resolves the price, reuses or creates the provider customer and
// opens a subscription checkout session. Validation happens before any mutation.
func (s *Service) CreateCheckout(ctx context.Context, input CheckoutInput) (CheckoutSession, error) {
	restaurantID := strings.TrimSpace(input.RestaurantID)
	if restaurantID == "" {
		return CheckoutSession{}, newServiceError(opCreateCheckout, "missing_restaurant", ErrMissingRestaurant)
	}
	priceID, err := s.catalog.Resolve(input.PlanType, input.BillingPeriod)
	if err != nil {
		return CheckoutSession{}, newServiceError(opCreateCheckout, "invalid_plan", err)
	}
	if s.provider == nil {
		return CheckoutSession{}, newServiceError(opCreateCheckout, "not_configured", ErrProviderNotConfigured)
	}

	customerID, err := s.ensureCustomer(ctx, restaurantID)
	if err != nil {
		return CheckoutSession{}, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.appURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.appURL + "/pricing",
		Metadata: map[string]string{
			metadataRestaurantID:  restaurantID,
			metadataPlanType:      string(input.PlanType),
			metadataBillingPeriod: string(input.BillingPeriod),
		},
	})
	if err != nil {
		s.logError(opCreateCheckout, "session_failed", err, zap.String("restaurant_id", restaurantID))
		return CheckoutSession{}, newServiceError(opCreateCheckout, "session_failed", err)
	}
	return session, nil
}

func (s *Service) ensureCustomer(ctx context.Context, restaurantID string) (string, error) {
	var existing Subscription
	err := s.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID).Take(&existing).Error
	switch {
	case err == nil && existing.StripeCustomerID != "":
		return existing.StripeCustomerID, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		s.logError(opCreateCheckout, "select_failed", err, zap.String("restaurant_id", restaurantID))
		return "", newServiceError(opCreateCheckout, "select_failed", err)
	}

	customerID, err := s.provider.CreateCustomer(ctx, map[string]string{metadataRestaurantID: restaurantID})
	if err != nil {
		s.logError(opCreateCheckout, "customer_failed", err, zap.String("restaurant_id", restaurantID))
		return "", newServiceError(opCreateCheckout, "customer_failed", err)
	}

	now := s.clock().UTC()
	record := Subscription{
		RestaurantID:     restaurantID,
		StripeCustomerID: customerID,
		Status:           StatusIncomplete,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "restaurant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_customer_id", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opCreateCheckout, "upsert_failed", err, zap.String("restaurant_id", restaurantID))
		return "", newServiceError(opCreateCheckout, "upsert_failed", err)
	}
	return customerID, nil
}

// GetSubscription returns the stored subscription of a restaurant.
func (s *Service) GetSubscription(ctx context.Context, restaurantID string) (Subscription, error) {
	var record Subscription
	err := s.db.WithContext(ctx).Where("restaurant_id = ?", strings.TrimSpace(restaurantID)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Subscription{}, newServiceError(opGetSubscription, "not_found", ErrSubscriptionNotFound)
	}
	if err != nil {
		return Subscription{}, newServiceError(opGetSubscription, "select_failed", err)
	}
	return record, nil
}

// HandleWebhook verifies and applies one payment provider event.
// Unknown event types are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.webhookSecret == "" || strings.TrimSpace(signatureHeader) == "" {
		return newServiceError(opHandleWebhook, "invalid_signature",
			fmt.Errorf("%w: missing signature or webhook secret", ErrInvalidSignature))
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Warn("webhook signature verification failed", zap.Error(err))
		return newServiceError(opHandleWebhook, "invalid_signature", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}

	eventType := string(event.Type)
	if event.Data == nil {
		return newServiceError(opHandleWebhook, "invalid_payload", errors.New("event carries no data"))
	}
	raw := event.Data.Raw

	switch eventType {
	case eventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return newServiceError(opHandleWebhook, "invalid_payload", err)
		}
		err = s.linkCheckout(ctx, session)
	case eventSubscriptionCreated, eventSubscriptionUpdated:
		var subscription stripe.Subscription
		if err := json.Unmarshal(raw, &subscription); err != nil {
			return newServiceError(opHandleWebhook, "invalid_payload", err)
		}
		err = s.upsertSubscription(ctx, subscription)
	case eventSubscriptionDeleted:
		var subscription stripe.Subscription
		if err := json.Unmarshal(raw, &subscription); err != nil {
			return newServiceError(opHandleWebhook, "invalid_payload", err)
		}
		err = s.cancelSubscription(ctx, subscription)
	case eventInvoicePaymentFailed, eventInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return newServiceError(opHandleWebhook, "invalid_payload", err)
		}
		status := StatusActive
		if eventType == eventInvoicePaymentFailed {
			status = StatusPastDue
		}
		err = s.updateInvoiceStatus(ctx, invoice, status)
	default:
		s.logger.Debug("webhook event ignored", zap.String("event_type", eventType), zap.String("event_id", event.ID))
		return nil
	}

	if err != nil {
		s.logError(opHandleWebhook, "apply_failed", err,
			zap.String("event_type", eventType),
			zap.String("event_id", event.ID))
		return newServiceError(opHandleWebhook, "apply_failed", err)
	}
	return nil
}

func (s *Service) linkCheckout(ctx context.Context, session stripe.CheckoutSession) error {
	restaurantID := strings.TrimSpace(session.Metadata[metadataRestaurantID])
	if restaurantID == "" {
		s.logger.Debug("checkout session without restaurant metadata", zap.String("session_id", session.ID))
		return nil
	}
	now := s.clock().UTC()
	record := Subscription{
		RestaurantID:  restaurantID,
		Status:        StatusIncomplete,
		PlanType:      session.Metadata[metadataPlanType],
		BillingPeriod: session.Metadata[metadataBillingPeriod],
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	columns := []string{"plan_type", "billing_period", "updated_at"}
	if session.Customer != nil && session.Customer.ID != "" {
		record.StripeCustomerID = session.Customer.ID
		columns = append(columns, "stripe_customer_id")
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		record.StripeSubscriptionID = session.Subscription.ID
		columns = append(columns, "stripe_subscription_id")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "restaurant_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&record).Error
}

func (s *Service) upsertSubscription(ctx context.Context, subscription stripe.Subscription) error {
	restaurantID, err := s.resolveRestaurant(ctx, subscription)
	if err != nil || restaurantID == "" {
		return err
	}
	now := s.clock().UTC()
	record := Subscription{
		RestaurantID:         restaurantID,
		StripeSubscriptionID: subscription.ID,
		Status:               string(subscription.Status),
		CurrentPeriodStart:   unixTime(subscription.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(subscription.CurrentPeriodEnd),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	columns := []string{"stripe_subscription_id", "status", "current_period_start", "current_period_end", "updated_at"}
	if subscription.Customer != nil && subscription.Customer.ID != "" {
		record.StripeCustomerID = subscription.Customer.ID
		columns = append(columns, "stripe_customer_id")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "restaurant_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&record).Error
}

func (s *Service) cancelSubscription(ctx context.Context, subscription stripe.Subscription) error {
	restaurantID, err := s.resolveRestaurant(ctx, subscription)
	if err != nil || restaurantID == "" {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("restaurant_id = ?", restaurantID).
		Updates(map[string]any{"status": StatusCanceled, "updated_at": s.clock().UTC()}).Error
}

func (s *Service) updateInvoiceStatus(ctx context.Context, invoice stripe.Invoice, status string) error {
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		s.logger.Debug("invoice without subscription", zap.String("invoice_id", invoice.ID))
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("stripe_subscription_id = ?", invoice.Subscription.ID).
		Updates(map[string]any{"status": status, "updated_at": s.clock().UTC()}).Error
}

// resolveRestaurant prefers the restaurant_id metadata and falls back to the stored subscription id.
// An empty id with a nil error means the event cannot be attributed and is skipped.
func (s *Service) resolveRestaurant(ctx context.Context, subscription stripe.Subscription) (string, error) {
	if restaurantID := strings.TrimSpace(subscription.Metadata[metadataRestaurantID]); restaurantID != "" {
		return restaurantID, nil
	}
	if subscription.ID == "" {
		return "", nil
	}
	var record Subscription
	err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", subscription.ID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug("subscription event without restaurant", zap.String("subscription_id", subscription.ID))
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return record.RestaurantID, nil
}

func unixTime(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	value := time.Unix(seconds, 0).UTC()
	return &value
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
	s.logger.Error("billing service error", attrs...)
}
