package postgres

import (
	"context"
	"fmt"
	"time"
)

// Rows a write transaction stamps with clock_timestamp() only become visible
// at commit. Holding the watermark at the start of the oldest transaction that
// has written keeps those rows ahead of it until they are visible.
const watermarkQuery = `
	SELECT LEAST(clock_timestamp(), MIN(xact_start))
	FROM pg_stat_activity
	WHERE datname = current_database()
	  AND backend_xid IS NOT NULL
	  AND pid <> pg_backend_pid()
`

type storeClock struct {
	db DB
}

func (c *storeClock) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := c.db.QueryRow(ctx, watermarkQuery).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database clock: %w", err)
	}
	return now.UTC(), nil
}
