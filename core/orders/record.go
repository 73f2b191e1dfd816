// Package orders records completed item selections into an append-only sink.
package orders

import (
	"time"

	"github.com/m3rciful/menubot/core/session"
)

// StatusNew is the status every record carries when it is appended.
const StatusNew = "Новый"

// TimestampLayout formats the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header lists the sink columns in row order.
var Header = []string{"Timestamp", "ClientId", "ItemName", "ItemDetails", "Price", "Status"}

// Record is one appended order row.
type Record struct {
	Timestamp time.Time
	ClientID  string
	ItemID    string
	ItemName  string
	Details   string
	Price     int
	Status    string
}

// NewRecord builds a new-order record for a cart line selected by clientID.
func NewRecord(clientID string, line session.CartLine, now time.Time) Record {
	return Record{
		Timestamp: now,
		ClientID:  clientID,
		ItemID:    line.ItemID,
		ItemName:  line.Name,
		Details:   line.Description,
		Price:     line.Price,
		Status:    StatusNew,
	}
}

// FormattedTimestamp renders Timestamp with TimestampLayout.
func (r Record) FormattedTimestamp() string {
	return r.Timestamp.Format(TimestampLayout)
}

// Row returns the record as ordered cell values matching Header.
func (r Record) Row() []any {
	return []any{r.FormattedTimestamp(), r.ClientID, r.ItemName, r.Details, r.Price, r.Status}
}
