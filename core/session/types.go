package session

import (
	"context"
	"errors"
	"time"
)

// ErrNilSession is returned by Upsert when called with nil.
var ErrNilSession = errors.New("session: nil session")

// CartLine is one recorded item selection.
type CartLine struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Description string `json:"description,omitempty"`
}

// Session is a user's menu position plus the cart accumulated so far.
type Session struct {
	UserID        string     `json:"user_id"`
	CurrentMenuID string     `json:"current_menu_id"`
	Cart          []CartLine `json:"cart"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// New returns a fresh session positioned at menuID with an empty cart.
func New(userID, menuID string) *Session {
	return &Session{UserID: userID, CurrentMenuID: menuID}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Cart = append([]CartLine(nil), s.Cart...)
	return &cp
}

// Total sums the prices of all cart lines.
func (s *Session) Total() int {
	total := 0
	for _, l := range s.Cart {
		total += l.Price
	}
	return total
}

// Store persists sessions keyed by user id. Implementations return copies so
// callers never share state with the store.
type Store interface {
	Get(ctx context.Context, userID string) (*Session, bool, error)
	Upsert(ctx context.Context, s *Session) error
}
