package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBudget(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBudgetAt(24*time.Second, clock.Now)

	assert.False(t, b.Exceeded())
	assert.Equal(t, 24*time.Second, b.Remaining())

	clock.Advance(23 * time.Second)
	assert.False(t, b.Exceeded())
	assert.Equal(t, time.Second, b.Remaining())

	clock.Advance(time.Second)
	assert.True(t, b.Exceeded())
	assert.Equal(t, time.Duration(0), b.Remaining())
	assert.Equal(t, 24*time.Second, b.Elapsed())
}

func TestBudget_Unbounded(t *testing.T) {
	var nilBudget *Budget
	assert.False(t, nilBudget.Exceeded())
	assert.Equal(t, time.Duration(0), nilBudget.Elapsed())

	assert.False(t, NewBudget(0).Exceeded())
}
