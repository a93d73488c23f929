package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PlanType is the stored plan value of a user record.
type PlanType string

const (
	PlanTypeFree          PlanType = "free"
	PlanTypePremium7Days  PlanType = "premium_7days"
	PlanTypePremium20Days PlanType = "premium_20days"
)

// ParsePlanType maps a raw stored value onto a known PlanType.
// Anything unrecognized, including the empty string, is Free.
func ParsePlanType(raw string) PlanType {
	switch p := PlanType(raw); p {
	case PlanTypePremium7Days, PlanTypePremium20Days:
		return p
	default:
		return PlanTypeFree
	}
}

// IsPremium reports whether the plan type is one of the paid plans.
func (p PlanType) IsPremium() bool {
	return p == PlanTypePremium7Days || p == PlanTypePremium20Days
}

// PlanState is the coarse plan variant surfaced in decisions.
type PlanState string

const (
	PlanStateFree    PlanState = "free"
	PlanStatePremium PlanState = "premium"
)

// EntitlementRecord is the per-user quota and plan record.
// Counters are never negative once a record has passed through a store adapter.
type EntitlementRecord struct {
	UserID            string     `json:"user_id"`
	PlanType          PlanType   `json:"user_type"`
	PremiumExpiresAt  *time.Time `json:"premium_expiry,omitempty"`
	MonthlyUsageCount int        `json:"monthly_analysis_count"`
	TotalUsageCount   int        `json:"total_analysis_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewFreeRecord returns the record synthesized for a previously unseen user.
func NewFreeRecord(userID string, now time.Time) *EntitlementRecord {
	return &EntitlementRecord{
		UserID:    userID,
		PlanType:  PlanTypeFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State returns the plan variant of the record, ignoring expiry.
func (r *EntitlementRecord) State() PlanState {
	if r.PlanType.IsPremium() {
		return PlanStatePremium
	}
	return PlanStateFree
}

// Sanitize coerces malformed values to safe defaults in place:
// unknown plans become Free and negative counters become zero.
func (r *EntitlementRecord) Sanitize() {
	r.PlanType = ParsePlanType(string(r.PlanType))
	if r.MonthlyUsageCount < 0 {
		r.MonthlyUsageCount = 0
	}
	if r.TotalUsageCount < 0 {
		r.TotalUsageCount = 0
	}
}

// PlanChange replaces the plan fields of a record.
// A nil ExpiresAt clears the stored expiry.
type PlanChange struct {
	Type      PlanType
	ExpiresAt *time.Time
}

// RecordMutation is a single update applied to a record by the store.
// UsageIncrement is added to both counters atomically; Plan, when set,
// overwrites the plan fields. Stores create the record if it is absent.
type RecordMutation struct {
	UsageIncrement int
	Plan           *PlanChange
	UpdatedAt      time.Time
}

// ParseCounter coerces a stored counter value to a non-negative int.
// Non-numeric and negative values become zero.
func ParseCounter(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// unlimitedJSON is the wire form of an unlimited Remaining value.
const unlimitedJSON = "unlimited"

// Remaining is a non-negative quota count or the Unlimited sentinel.
// The zero value is a limited count of zero.
type Remaining struct {
	count     int
	unlimited bool
}

// Unlimited is the remaining quota of an active premium plan.
var Unlimited = Remaining{unlimited: true}

// Limited returns a bounded Remaining. Negative counts clamp to zero.
func Limited(n int) Remaining {
	if n < 0 {
		n = 0
	}
	return Remaining{count: n}
}

// IsUnlimited reports whether r is the Unlimited sentinel.
func (r Remaining) IsUnlimited() bool { return r.unlimited }

// Count returns the bounded count and false when r is Unlimited.
func (r Remaining) Count() (int, bool) {
	if r.unlimited {
		return 0, false
	}
	return r.count, true
}

func (r Remaining) String() string {
	if r.unlimited {
		return unlimitedJSON
	}
	return strconv.Itoa(r.count)
}

// MarshalJSON encodes bounded counts as numbers and Unlimited as "unlimited".
func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.unlimited {
		return []byte(`"` + unlimitedJSON + `"`), nil
	}
	return []byte(strconv.Itoa(r.count)), nil
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (r *Remaining) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == `"`+unlimitedJSON+`"` {
		*r = Unlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("remaining: expected integer or %q: %w", unlimitedJSON, err)
	}
	*r = Limited(n)
	return nil
}

// DenyReason explains a denied decision.
type DenyReason string

const ReasonQuotaExhausted DenyReason = "quota_exhausted"

// DecisionMessage carries an advisory note on an allowed decision.
type DecisionMessage string

const MessageSystemDegraded DecisionMessage = "system_degraded"

// Decision is the outcome of evaluating a user's entitlement.
// Exactly one of the Allowed or Denied shapes is populated; build values with
// AllowFree, AllowPremium, AllowDegraded or DenyQuota.
type Decision struct {
	Allowed         bool            `json:"allowed"`
	Remaining       Remaining       `json:"remaining"`
	PlanState       PlanState       `json:"plan_state"`
	DaysRemaining   int             `json:"days_remaining,omitempty"`
	JustExpired     bool            `json:"just_expired,omitempty"`
	Message         DecisionMessage `json:"message,omitempty"`
	Reason          DenyReason      `json:"reason,omitempty"`
	UpgradeRequired bool            `json:"upgrade_required,omitempty"`
}

// AllowFree is an allowed decision on the free tier.
func AllowFree(remaining int, justExpired bool) Decision {
	return Decision{
		Allowed:     true,
		Remaining:   Limited(remaining),
		PlanState:   PlanStateFree,
		JustExpired: justExpired,
	}
}

// AllowPremium is an allowed decision for an active premium plan.
func AllowPremium(daysRemaining int) Decision {
	return Decision{
		Allowed:       true,
		Remaining:     Unlimited,
		PlanState:     PlanStatePremium,
		DaysRemaining: daysRemaining,
	}
}

// AllowDegraded is the fail-open decision used when the store is unreachable.
func AllowDegraded(limit int) Decision {
	return Decision{
		Allowed:   true,
		Remaining: Limited(limit),
		PlanState: PlanStateFree,
		Message:   MessageSystemDegraded,
	}
}

// DenyQuota is the denial returned once the free quota is used up.
func DenyQuota(justExpired bool) Decision {
	return Decision{
		Allowed:         false,
		Remaining:       Limited(0),
		PlanState:       PlanStateFree,
		JustExpired:     justExpired,
		Reason:          ReasonQuotaExhausted,
		UpgradeRequired: true,
	}
}

// Degraded reports whether the decision was produced by the fail-open path.
func (d Decision) Degraded() bool { return d.Message == MessageSystemDegraded }

// Outcome is a short label used for logs and metric dimensions.
func (d Decision) Outcome() string {
	switch {
	case !d.Allowed:
		return "denied"
	case d.Degraded():
		return "degraded"
	case d.JustExpired:
		return "expired"
	default:
		return "allowed"
	}
}

// CeilDays rounds a positive duration up to whole days.
// Zero and negative durations return 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	return int((d + day - 1) / day)
}
