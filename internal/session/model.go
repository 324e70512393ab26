package session

import (
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/refund"
)

type Session struct {
	ID            string    `db:"id" json:"id" bson:"_id"`
	Name          string    `db:"name" json:"name" bson:"name"`
	Capacity      int       `db:"capacity" json:"capacity" bson:"capacity"`
	Enrolled      int       `db:"enrolled" json:"enrolled" bson:"enrolled"`
	Price         int64     `db:"price" json:"price" bson:"price"`
	StartDate     time.Time `db:"start_date" json:"startDate" bson:"start_date"`
	IsForceClosed bool      `db:"is_force_closed" json:"isForceClosed" bson:"is_force_closed"`
	// RefundPolicy is a JSON array of rules overriding the default policy.
	RefundPolicy []byte `db:"refund_policy" json:"-" bson:"refund_policy,omitempty"`
}

type WithAvailability struct {
	Session
	Available int  `json:"available"`
	IsFull    bool `json:"isFull"`
}

func (s *Session) Available() int {
	if n := s.Capacity - s.Enrolled; n > 0 {
		return n
	}
	return 0
}

// Bookable reports whether a new booking may take a seat.
func (s *Session) Bookable(now time.Time) bool {
	return !s.IsForceClosed && s.Enrolled < s.Capacity && s.StartDate.After(now)
}

func (s *Session) HasStarted(now time.Time) bool {
	return !s.StartDate.After(now)
}

// Policy returns the session's own refund policy, or def when it has none.
func (s *Session) Policy(def refund.Policy) (refund.Policy, error) {
	p, err := refund.ParseRules(s.RefundPolicy)
	if err != nil {
		return refund.Policy{}, err
	}
	if p == nil {
		return def, nil
	}
	return *p, nil
}

func (s *Session) WithAvailability() WithAvailability {
	return WithAvailability{Session: *s, Available: s.Available(), IsFull: s.Available() == 0}
}
