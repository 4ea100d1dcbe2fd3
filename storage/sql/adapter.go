package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/sig-0/p2prates/storage/types"
)

// numericScale is the scale of the NUMERIC rate columns
const numericScale = 4

var errInvalidNumeric = errors.New("invalid numeric value")

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) SaveSample(
	ctx context.Context,
	sample *types.RateSample,
) error {
	var createdAt pgtype.Timestamptz

	err := s.db.QueryRow(
		ctx,
		saveSampleSQL,
		decimalToNumeric(sample.BaseRate),
		decimalToNumeric(sample.SecondaryRate),
		decimalToNumeric(sample.SellRate),
		decimalToNumeric(sample.BuyRate),
		sample.Source.String(),
		timeToTimestampz(sample.CapturedAt),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("unable to save sample: %w", err)
	}

	sample.CreatedAt = timestampzToTime(createdAt)

	return nil
}

func (s *Storage) LatestSample(ctx context.Context) (*types.RateSample, error) {
	sample, err := scanSample(s.db.QueryRow(ctx, latestSampleSQL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch latest sample: %w", err)
	}

	return sample, nil
}

func (s *Storage) ListSamples(ctx context.Context, limit int32) ([]*types.RateSample, error) {
	rows, err := s.db.Query(ctx, listSamplesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch samples: %w", err)
	}
	defer rows.Close()

	out := make([]*types.RateSample, 0, limit)

	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan sample: %w", err)
		}

		out = append(out, sample)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate samples: %w", err)
	}

	return out, nil
}

// scanSample parses a single rate_samples row to the common Go type
func scanSample(row pgx.Row) (*types.RateSample, error) {
	var (
		base, secondary, sell, buy pgtype.Numeric
		source                     string
		capturedAt, createdAt      pgtype.Timestamptz
	)

	if err := row.Scan(
		&base,
		&secondary,
		&sell,
		&buy,
		&source,
		&capturedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	sample := &types.RateSample{
		Source:     types.Source(source),
		CapturedAt: timestampzToTime(capturedAt),
		CreatedAt:  timestampzToTime(createdAt),
	}

	for _, field := range []struct {
		dst *decimal.Decimal
		src pgtype.Numeric
	}{
		{&sample.BaseRate, base},
		{&sample.SecondaryRate, secondary},
		{&sample.SellRate, sell},
		{&sample.BuyRate, buy},
	} {
		value, err := numericToDecimal(field.src)
		if err != nil {
			return nil, err
		}

		*field.dst = value
	}

	return sample, nil
}

// decimalToNumeric converts the decimal value to postgres numeric
func decimalToNumeric(value decimal.Decimal) pgtype.Numeric {
	rounded := value.Round(numericScale)

	return pgtype.Numeric{
		Int:   rounded.Coefficient(),
		Exp:   rounded.Exponent(),
		Valid: true,
	}
}

// numericToDecimal converts the postgres value to decimal
func numericToDecimal(value pgtype.Numeric) (decimal.Decimal, error) {
	if !value.Valid || value.Int == nil || value.NaN || value.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errInvalidNumeric
	}

	return decimal.NewFromBigInt(value.Int, value.Exp), nil
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time.UTC()
}
