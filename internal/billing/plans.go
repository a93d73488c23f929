// Package billing defines the premium plans that can be purchased and the
// mapping between plan keys, Stripe prices and stored plan types.
package billing

import (
	"strings"
	"time"

	"tourism/internal/types"
)

// Plan is a purchasable premium pass. It satisfies entitlement.PremiumPlan.
type Plan struct {
	Key     string
	Days    int
	PriceID string
}

// UserType returns the stored plan value granted by this pass.
func (p Plan) UserType() types.PlanType {
	return types.PlanType("premium_" + p.Key)
}

// Duration returns how long the pass lasts from the moment of purchase.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.Days) * 24 * time.Hour
}

// Plan keys accepted by checkout and carried in Stripe session metadata.
const (
	PlanKey7Days  = "7days"
	PlanKey20Days = "20days"
)

// planDays is the authoritative pass length per key.
//
//	| Key    | Days | Stored user_type |
//	|--------|------|------------------|
//	| 7days  | 7    | premium_7days    |
//	| 20days | 20   | premium_20days   |
var planDays = map[string]int{
	PlanKey7Days:  7,
	PlanKey20Days: 20,
}

// Catalog resolves plan keys and Stripe price IDs.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog builds the catalog. Price IDs come from configuration and map by plan key;
// keys with no price ID can still be granted by a webhook but not sold at checkout.
func NewCatalog(priceIDs map[string]string) *Catalog {
	m := make(map[string]Plan, len(planDays))
	for key, days := range planDays {
		m[key] = Plan{Key: key, Days: days, PriceID: priceIDs[key]}
	}
	return &Catalog{plans: m}
}

// Lookup returns the plan for key. Keys are matched case-insensitively.
func (c *Catalog) Lookup(key string) (Plan, bool) {
	p, ok := c.plans[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// ForCheckout returns the plan for key if it can be sold, or validation_invalid_plan.
func (c *Catalog) ForCheckout(key string) (Plan, error) {
	p, ok := c.Lookup(key)
	if !ok {
		return Plan{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlan,
			"unknown plan type", nil, map[string]any{"plan_type": key, "allowed": c.Keys()})
	}
	if p.PriceID == "" {
		return Plan{}, types.NewAppError(types.ErrCodeValidationInvalidPlan,
			"plan is not available for purchase", nil)
	}
	return p, nil
}

// Keys returns the plan keys in ascending duration order.
func (c *Catalog) Keys() []string {
	return []string{PlanKey7Days, PlanKey20Days}
}

// zeroDecimalCurrencies are charged by Stripe in major units already.
var zeroDecimalCurrencies = map[string]bool{
	"jpy": true, "krw": true, "vnd": true, "clp": true, "pyg": true, "ugx": true, "xaf": true, "xof": true,
}

// MajorUnits converts a Stripe amount in the smallest currency unit to major units.
func MajorUnits(amount int64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount
	}
	return amount / 100
}
