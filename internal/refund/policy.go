// Package refund evaluates cancellation refund policies. Everything here is
// pure: no clock reads, no I/O.
package refund

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrEmptyPolicy        = errors.New("refund policy has no rules")
	ErrNoCatchAllRule     = errors.New("refund policy has no rule covering sessions zero or fewer days away")
	ErrInvalidPercentage  = errors.New("refund percentage must be between 0 and 100")
	ErrDuplicateThreshold = errors.New("refund policy has duplicate day thresholds")
	ErrNegativeAmount     = errors.New("refund base amount cannot be negative")
)

const day = 24 * time.Hour

type Rule struct {
	MinDaysBeforeSession int `json:"minDaysBeforeSession" yaml:"min_days_before_session"`
	RefundPercentage     int `json:"refundPercentage" yaml:"refund_percentage"`
}

type Policy struct {
	Name  string `json:"name" yaml:"name"`
	Rules []Rule `json:"rules" yaml:"rules"`
}

type Decision struct {
	RefundAmount     int64  `json:"refundAmount"`
	RefundPercentage int    `json:"refundPercentage"`
	DaysUntilSession int    `json:"daysUntilSession"`
	Reason           string `json:"reason"`
}

// DefaultPolicy is full refund a week out, half refund three days out,
// nothing after that.
func DefaultPolicy() Policy {
	return Policy{
		Name: "standard",
		Rules: []Rule{
			{MinDaysBeforeSession: 7, RefundPercentage: 100},
			{MinDaysBeforeSession: 3, RefundPercentage: 50},
			{MinDaysBeforeSession: 0, RefundPercentage: 0},
		},
	}
}

// Validate rejects policies the engine refuses to evaluate.
func (p Policy) Validate() error {
	if len(p.Rules) == 0 {
		return ErrEmptyPolicy
	}

	seen := make(map[int]struct{}, len(p.Rules))
	catchAll := false
	for _, r := range p.Rules {
		if r.RefundPercentage < 0 || r.RefundPercentage > 100 {
			return fmt.Errorf("%w: got %d", ErrInvalidPercentage, r.RefundPercentage)
		}
		if _, dup := seen[r.MinDaysBeforeSession]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateThreshold, r.MinDaysBeforeSession)
		}
		seen[r.MinDaysBeforeSession] = struct{}{}
		if r.MinDaysBeforeSession <= 0 {
			catchAll = true
		}
	}
	if !catchAll {
		return ErrNoCatchAllRule
	}
	return nil
}

// Sorted returns a copy of the rules in descending threshold order.
func (p Policy) Sorted() []Rule {
	rules := make([]Rule, len(p.Rules))
	copy(rules, p.Rules)
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].MinDaysBeforeSession > rules[j].MinDaysBeforeSession
	})
	return rules
}

// DaysUntil is ceil((start - now) / 24h). Sessions already under way yield
// zero or a negative count.
func DaysUntil(sessionStart, now time.Time) int {
	d := sessionStart.Sub(now)
	days := d / day
	if d%day > 0 {
		days++
	}
	return int(days)
}

// Evaluate computes the refund for amount under policy p.
func Evaluate(amount int64, sessionStart, now time.Time, p Policy) (Decision, error) {
	if amount < 0 {
		return Decision{}, ErrNegativeAmount
	}
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	days := DaysUntil(sessionStart, now)
	rules := p.Sorted()
	// The lowest rule is the catch-all and also covers anything below its
	// own threshold.
	match := rules[len(rules)-1]
	for _, r := range rules {
		if r.MinDaysBeforeSession <= days {
			match = r
			break
		}
	}

	return Decision{
		RefundAmount:     percentOf(amount, match.RefundPercentage),
		RefundPercentage: match.RefundPercentage,
		DaysUntilSession: days,
		Reason:           explain(days, match),
	}, nil
}

// percentOf rounds half up in integer minor units.
func percentOf(amount int64, pct int) int64 {
	return (amount*int64(pct) + 50) / 100
}

func explain(days int, r Rule) string {
	notice := fmt.Sprintf("%d days", days)
	if days == 1 {
		notice = "1 day"
	}
	switch {
	case r.RefundPercentage == 100:
		return fmt.Sprintf("Full refund: cancelled %s before the session (%d+ days notice).", notice, r.MinDaysBeforeSession)
	case days <= 0:
		return fmt.Sprintf("%d%% refund: the session has already started or starts today.", r.RefundPercentage)
	case r.RefundPercentage == 0:
		return fmt.Sprintf("No refund: cancelled %s before the session, inside the minimum notice period.", notice)
	default:
		return fmt.Sprintf("%d%% refund: cancelled %s before the session (%d+ days notice).", r.RefundPercentage, notice, r.MinDaysBeforeSession)
	}
}
