package features

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

// All returns every row ordered by id, labeled or not.
func (s *Store) All(ctx context.Context) ([]knn.Sample, error) {
	query, args, err := s.goquDb.From(s.tableID).
		Select(goqu.Star()).
		Order(goqu.I(s.firstColumn(ctx)).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.query(ctx, "all", query, args)
}

// Get returns the row with the given id.
func (s *Store) Get(ctx context.Context, id int64) (knn.Sample, error) {
	query, args, err := s.goquDb.From(s.tableID).
		Select(goqu.Star()).
		Where(goqu.I(s.firstColumn(ctx)).Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return knn.Sample{}, fmt.Errorf("build select: %w", err)
	}
	samples, err := s.query(ctx, "get", query, args)
	if err != nil {
		return knn.Sample{}, err
	}
	if len(samples) == 0 {
		return knn.Sample{}, services.Wrap(services.ErrNotFound, "features", "get", fmt.Sprintf("feature row %d does not exist", id), nil)
	}
	return samples[0], nil
}

// MaxID returns the largest row id, or zero for an empty table.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	query, args, err := s.goquDb.From(s.tableID).
		Select(goqu.MAX(s.firstColumn(ctx))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build max query: %w", err)
	}
	var maxID sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&maxID); err != nil {
		return 0, storeError("max id", err)
	}
	return maxID.Int64, nil
}

// Count returns the number of rows and how many of them are labeled.
func (s *Store) Count(ctx context.Context) (total, labeled int, err error) {
	samples, err := s.All(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, sample := range samples {
		if sample.Label != "" {
			labeled++
		}
	}
	return len(samples), labeled, nil
}

// Upsert inserts rows, replacing label and features of rows whose id exists.
// Column names are taken from the live table so tables not created by
// EnsureTable are written correctly.
func (s *Store) Upsert(ctx context.Context, samples []knn.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	cols, err := s.columns(ctx)
	if err != nil {
		return err
	}
	width := len(cols) - 2

	records := make([]interface{}, 0, len(samples))
	for _, sample := range samples {
		if sample.ID <= 0 {
			return services.Wrap(services.ErrValidation, "features", "upsert", "row id must be positive", nil)
		}
		if len(sample.Features) != width {
			return services.Wrap(services.ErrValidation, "features", "upsert",
				fmt.Sprintf("row %d has %d features, table expects %d", sample.ID, len(sample.Features), width), nil)
		}
		record := goqu.Record{cols[0]: sample.ID, cols[1]: nullableLabel(sample.Label)}
		for i, v := range sample.Features {
			record[cols[i+2]] = v
		}
		records = append(records, record)
	}

	update := goqu.Record{}
	for _, col := range cols[1:] {
		update[col] = goqu.I("excluded." + col)
	}
	query, args, err := s.goquDb.Insert(s.tableID).
		Rows(records...).
		OnConflict(goqu.DoUpdate(cols[0], update)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storeError("upsert", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, operation, query string, args []interface{}) ([]knn.Sample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(operation, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storeError(operation, err)
	}
	if len(cols) < 3 {
		return nil, services.Wrap(services.ErrValidation, "features", operation,
			fmt.Sprintf("table %s needs id, label, and at least one feature column", s.table), nil)
	}

	var (
		out    []knn.Sample
		id     int64
		label  sql.NullString
		values = make([]sql.NullFloat64, len(cols)-2)
		dest   = make([]any, len(cols))
	)
	dest[0], dest[1] = &id, &label
	for i := range values {
		dest[i+2] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, storeError(operation, err)
		}
		sample := knn.Sample{ID: id, Label: label.String, Features: make([]float64, len(values))}
		for i, v := range values {
			if !v.Valid {
				return nil, services.Wrap(services.ErrValidation, "features", operation,
					fmt.Sprintf("row %d has a null %s", id, cols[i+2]), nil)
			}
			sample.Features[i] = v.Float64
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(operation, err)
	}
	return out, nil
}

// firstColumn resolves the id column name, falling back to "id" when the table
// cannot be inspected; the following query then reports the real error.
func (s *Store) firstColumn(ctx context.Context) string {
	cols, err := s.columns(ctx)
	if err != nil {
		return "id"
	}
	return cols[0]
}

func nullableLabel(label string) any {
	if label == "" {
		return nil
	}
	return label
}
