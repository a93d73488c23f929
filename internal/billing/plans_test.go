package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourism/internal/types"
)

func testCatalog() *Catalog {
	return NewCatalog(map[string]string{
		PlanKey7Days:  "price_7",
		PlanKey20Days: "price_20",
	})
}

func TestLookup_KnownPlans(t *testing.T) {
	c := testCatalog()

	p, ok := c.Lookup("7days")
	require.True(t, ok)
	assert.Equal(t, types.PlanTypePremium7Days, p.UserType())
	assert.Equal(t, 7*24*time.Hour, p.Duration())
	assert.Equal(t, "price_7", p.PriceID)

	p, ok = c.Lookup(" 20DAYS ")
	require.True(t, ok)
	assert.Equal(t, types.PlanTypePremium20Days, p.UserType())
	assert.Equal(t, 20*24*time.Hour, p.Duration())
}

func TestLookup_UnknownPlan(t *testing.T) {
	_, ok := testCatalog().Lookup("30days")
	assert.False(t, ok)
}

func TestForCheckout(t *testing.T) {
	c := testCatalog()

	p, err := c.ForCheckout("7days")
	require.NoError(t, err)
	assert.Equal(t, "price_7", p.PriceID)

	_, err = c.ForCheckout("lifetime")
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidPlan))

	unpriced := NewCatalog(map[string]string{PlanKey7Days: "price_7"})
	_, err = unpriced.ForCheckout("20days")
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidPlan))

	// Unpriced plans can still be granted.
	_, ok := unpriced.Lookup("20days")
	assert.True(t, ok)
}

func TestPlanUserTypesAreRecognizedAsPremium(t *testing.T) {
	c := testCatalog()
	for _, key := range c.Keys() {
		p, ok := c.Lookup(key)
		require.True(t, ok, key)
		assert.True(t, p.UserType().IsPremium(), key)
		assert.Equal(t, p.UserType(), types.ParsePlanType(string(p.UserType())))
	}
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, int64(980), MajorUnits(980, "jpy"))
	assert.Equal(t, int64(980), MajorUnits(980, "JPY"))
	assert.Equal(t, int64(9), MajorUnits(999, "usd"))
}
