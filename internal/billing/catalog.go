package billing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlan indicates an unknown plan and billing period combination.
var ErrInvalidPlan = errors.New("billing: invalid plan or billing period")

// PlanType names a subscription tier.
type PlanType string

const (
	PlanStarter      PlanType = "starter"
	PlanProfessional PlanType = "professional"
	PlanEnterprise   PlanType = "enterprise"
)

// BillingPeriod names a billing cadence.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "monthly"
	PeriodAnnual  BillingPeriod = "annual"
)

// PriceCatalog maps "<plan>_<period>" keys to payment provider price ids.
type PriceCatalog map[string]string

// DefaultPriceCatalog returns the fixed catalog of the three tiers.
func DefaultPriceCatalog() PriceCatalog {
	catalog := PriceCatalog{}
	for _, plan := range []PlanType{PlanStarter, PlanProfessional, PlanEnterprise} {
		for _, period := range []BillingPeriod{PeriodMonthly, PeriodAnnual} {
			key := catalogKey(plan, period)
			catalog[key] = "price_" + key
		}
	}
	return catalog
}

// Resolve returns the price id for plan and period.
func (c PriceCatalog) Resolve(plan PlanType, period BillingPeriod) (string, error) {
	priceID, ok := c[catalogKey(plan, period)]
	if !ok || priceID == "" {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidPlan, plan, period)
	}
	return priceID, nil
}

func catalogKey(plan PlanType, period BillingPeriod) string {
	return strings.TrimSpace(string(plan)) + "_" + strings.TrimSpace(string(period))
}
