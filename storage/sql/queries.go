package sql

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	saveSampleSQL = `INSERT INTO rate_samples (
        base_rate,
        secondary_rate,
        sell_rate,
        buy_rate,
        source,
        captured_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING created_at;`

	latestSampleSQL = `SELECT
        base_rate,
        secondary_rate,
        sell_rate,
        buy_rate,
        source,
        captured_at,
        created_at
    FROM rate_samples
    ORDER BY id DESC
    LIMIT 1;`

	listSamplesSQL = `SELECT
        base_rate,
        secondary_rate,
        sell_rate,
        buy_rate,
        source,
        captured_at,
        created_at
    FROM rate_samples
    ORDER BY id DESC
    LIMIT $1;`
)

// DBTX is the query surface shared by pgx connections and pools
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}
