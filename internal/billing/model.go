package billing

import "time"

// Subscription statuses written by this service. Provider-reported statuses are stored verbatim.
const (
	StatusIncomplete = "incomplete"
	StatusActive     = "active"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
)

// Subscription links a restaurant to its payment provider customer and subscription.
type Subscription struct {
	RestaurantID         string     `gorm:"column:restaurant_id;primaryKey;size:190;not null"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;size:255;index"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;size:255;index"`
	Status               string     `gorm:"column:status;size:32;not null"`
	PlanType             string     `gorm:"column:plan_type;size:32"`
	BillingPeriod        string     `gorm:"column:billing_period;size:32"`
	CurrentPeriodStart   *time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end"`
	CreatedAt            time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Subscription) TableName() string {
	return "subscriptions"
}
