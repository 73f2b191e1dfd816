package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menubot/core/logger"
)

const insertOrder = `INSERT INTO orders (ordered_at, client_id, item_id, item_name, details, price, status)
VALUES (:ordered_at, :client_id, :item_id, :item_name, :details, :price, :status)`

type orderRow struct {
	OrderedAt string `db:"ordered_at"`
	ClientID  string `db:"client_id"`
	ItemID    string `db:"item_id"`
	ItemName  string `db:"item_name"`
	Details   string `db:"details"`
	Price     int    `db:"price"`
	Status    string `db:"status"`
}

// SQLSink appends records to the orders table of a postgres or sqlite database.
// The schema is owned by database.RunMigrations.
type SQLSink struct {
	db *sqlx.DB
}

// NewSQLSink wraps an open connection.
func NewSQLSink(db *sqlx.DB) *SQLSink {
	return &SQLSink{db: db}
}

// Record inserts rec as a new row.
func (s *SQLSink) Record(ctx context.Context, rec Record) error {
	start := time.Now()
	row := orderRow{
		OrderedAt: rec.FormattedTimestamp(),
		ClientID:  rec.ClientID,
		ItemID:    rec.ItemID,
		ItemName:  rec.ItemName,
		Details:   rec.Details,
		Price:     rec.Price,
		Status:    rec.Status,
	}
	if _, err := s.db.NamedExecContext(ctx, insertOrder, row); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	logger.Debug(ctx, component, "order.recorded",
		slog.String("backend", s.db.DriverName()),
		slog.String("item_id", rec.ItemID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
