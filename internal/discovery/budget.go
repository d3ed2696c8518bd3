package discovery

import "time"

// Budget is the wall-clock allowance of one invocation. It is checked only
// at zone boundaries; a zone that has started always finishes.
type Budget struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// NewBudget starts a budget of d. A non-positive d never expires.
func NewBudget(d time.Duration) *Budget {
	return newBudgetAt(d, time.Now)
}

func newBudgetAt(d time.Duration, now func() time.Time) *Budget {
	return &Budget{start: now(), limit: d, now: now}
}

// Exceeded reports whether the allowance is spent. A nil budget never is.
func (b *Budget) Exceeded() bool {
	if b == nil || b.limit <= 0 {
		return false
	}
	return b.Elapsed() >= b.limit
}

// Elapsed returns the time since the budget started.
func (b *Budget) Elapsed() time.Duration {
	if b == nil {
		return 0
	}
	return b.now().Sub(b.start)
}

// Remaining returns the unspent allowance, never negative.
func (b *Budget) Remaining() time.Duration {
	if b == nil || b.limit <= 0 {
		return 0
	}
	return max(b.limit-b.Elapsed(), 0)
}
