package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects to PostgreSQL through the pgx stdlib driver and pings it,
// retrying with exponential backoff for up to maxElapsed. The database is
// often still starting when the server comes up in compose setups.
func Open(ctx context.Context, dsn string, maxElapsed time.Duration, logger logging.Logger) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	}

	notify := func(err error, t time.Duration) {
		logger.Warn(ctx, "database not ready, retrying", "error", err, "backoff", t)
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return db, nil
}
