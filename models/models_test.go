package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func validCoupon() *Coupon {
	return &Coupon{
		Code:          "SAVE10",
		DiscountType:  DiscountPercentage,
		DiscountValue: d(10),
		UsageLimit:    5,
		ValidFrom:     now.Add(-time.Hour),
		IsActive:      true,
	}
}

func TestCouponIsValid(t *testing.T) {
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		mutate func(c *Coupon)
		want   bool
	}{
		{"valid", func(c *Coupon) {}, true},
		{"inactive", func(c *Coupon) { c.IsActive = false }, false},
		{"expired", func(c *Coupon) { c.ValidTo = &past }, false},
		{"not yet valid", func(c *Coupon) { c.ValidFrom = future }, false},
		{"expires later", func(c *Coupon) { c.ValidTo = &future }, true},
		{"limit reached", func(c *Coupon) { c.TimesUsed = 5 }, false},
		{"below limit", func(c *Coupon) { c.TimesUsed = 4 }, true},
		{"unlimited", func(c *Coupon) { c.UsageLimit = 0; c.TimesUsed = 1000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCoupon()
			tt.mutate(c)
			assert.Equal(t, tt.want, c.IsValid(now))
		})
	}
}

func TestCouponApplyDiscount(t *testing.T) {
	c := validCoupon()
	assert.True(t, d(90000).Equal(c.ApplyDiscount(d(100000), now)))
	assert.True(t, d(10000).Equal(c.DiscountFor(d(100000), now)))

	c.DiscountType = DiscountFixed
	c.DiscountValue = d(30000)
	assert.True(t, d(70000).Equal(c.ApplyDiscount(d(100000), now)))
	assert.True(t, decimal.Zero.Equal(c.ApplyDiscount(d(20000), now)))

	c.DiscountType = DiscountPercentage
	c.DiscountValue = d(150)
	assert.True(t, decimal.Zero.Equal(c.ApplyDiscount(d(100000), now)))

	c.IsActive = false
	assert.True(t, d(100000).Equal(c.ApplyDiscount(d(100000), now)))
}

func TestCouponDiscountBounds(t *testing.T) {
	c := validCoupon()
	for _, typ := range []DiscountType{DiscountPercentage, DiscountFixed} {
		for _, value := range []int64{0, 1, 10, 100, 250, 100000} {
			for _, amount := range []int64{0, 1, 999, 100000} {
				c.DiscountType = typ
				c.DiscountValue = d(value)
				got := c.ApplyDiscount(d(amount), now)
				assert.False(t, got.IsNegative())
				assert.True(t, got.LessThanOrEqual(d(amount)))
			}
		}
	}
}

func TestRecordUsage(t *testing.T) {
	c := validCoupon()
	c.UsageLimit = 1
	require.True(t, c.IsValid(now))
	c.RecordUsage()
	assert.Equal(t, 1, c.TimesUsed)
	assert.False(t, c.IsValid(now))
}

func TestSpecialOfferPrice(t *testing.T) {
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	course := &Course{Price: d(100000)}
	assert.True(t, d(100000).Equal(course.UnitPrice(now)))

	course.SpecialOffer = SpecialOffer{
		Price: decimal.NewNullDecimal(d(60000)),
		Start: &start,
		End:   &end,
	}
	assert.True(t, d(60000).Equal(course.UnitPrice(now)))
	assert.True(t, d(100000).Equal(course.UnitPrice(end.Add(time.Second))))
	assert.False(t, course.IsFree(now))

	plan := &SubscriptionPlan{Price: d(500000), SpecialOffer: course.SpecialOffer}
	assert.True(t, d(60000).Equal(plan.UnitPrice(now)))
	assert.Equal(t, ItemRef{Kind: KindSubscriptionPlan}, plan.Ref())
}

func TestInferOrderType(t *testing.T) {
	assert.Equal(t, OrderTypeCourse, InferOrderType([]ItemRef{{Kind: KindCourse, ID: 1}}))
	assert.Equal(t, OrderTypeSubscription, InferOrderType([]ItemRef{{Kind: KindSubscriptionPlan, ID: 1}}))
	assert.Equal(t, OrderTypeMulti, InferOrderType([]ItemRef{{Kind: KindCourse, ID: 1}, {Kind: KindCourse, ID: 2}}))
}

func TestParseItemKind(t *testing.T) {
	k, err := ParseItemKind("")
	require.NoError(t, err)
	assert.Equal(t, KindCourse, k)

	_, err = ParseItemKind("ebook")
	assert.Error(t, err)
}

func TestOrderSetAmounts(t *testing.T) {
	var o Order
	o.SetAmounts(d(100000), d(10000))
	assert.True(t, d(90000).Equal(o.FinalAmount))

	o.SetAmounts(d(5000), d(10000))
	assert.True(t, decimal.Zero.Equal(o.FinalAmount))
	assert.True(t, o.FinalAmount.Equal(o.TotalAmount.Sub(o.DiscountAmount)))
}

func TestTransactionMarkFailed(t *testing.T) {
	tx := &Transaction{Description: "Payment for order ORD-1"}
	tx.MarkFailed("canceled by user")
	assert.Equal(t, TransactionFailed, tx.Status)
	assert.Equal(t, "Payment for order ORD-1\nFailure reason: canceled by user", tx.Description)
}

func TestExtraDataRoundTrip(t *testing.T) {
	data := ExtraData{"ref_id": "REF123"}
	v, err := data.Value()
	require.NoError(t, err)

	var scanned ExtraData
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, "REF123", scanned.Get("ref_id"))

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}

func TestUserSubscription(t *testing.T) {
	sub := &UserSubscription{StartDate: now.Add(-10 * 24 * time.Hour), EndDate: now.Add(20 * 24 * time.Hour), IsActive: true}
	assert.True(t, sub.IsValid(now))
	assert.Equal(t, 20, sub.RemainingDays(now))
	assert.InDelta(t, 33.3, sub.ProgressPercentage(now), 0.01)

	sub.EndDate = now
	assert.False(t, sub.IsValid(now))
	assert.Equal(t, 0, sub.RemainingDays(now))
}

func TestClassifyIdentifier(t *testing.T) {
	kind, id, ok := ClassifyIdentifier(" User@Example.com ")
	assert.True(t, ok)
	assert.Equal(t, IdentifierEmail, kind)
	assert.Equal(t, "user@example.com", id)

	kind, _, ok = ClassifyIdentifier("09121234567")
	assert.True(t, ok)
	assert.Equal(t, IdentifierPhone, kind)

	_, _, ok = ClassifyIdentifier("+989121234567")
	assert.True(t, ok)

	_, _, ok = ClassifyIdentifier("12345")
	assert.False(t, ok)
}

func TestCourseHours(t *testing.T) {
	secs := func(v int) *int { return &v }
	episodes := []Episode{
		{Type: EpisodeVideo, DurationSeconds: secs(3600)},
		{Type: EpisodeVideo, DurationSeconds: secs(1800)},
		{Type: EpisodeText, DurationSeconds: secs(7200)},
		{Type: EpisodeVideo},
	}
	assert.Equal(t, "1.5", CourseHours(episodes).String())
}

func TestTicketAcceptsMessages(t *testing.T) {
	ticket := &Ticket{Status: TicketAnswered}
	assert.True(t, ticket.AcceptsMessages())
	ticket.Status = TicketClosed
	assert.False(t, ticket.AcceptsMessages())
}
